package intent

import (
	"context"
	"errors"
	"testing"
)

func TestLegacyExtractRemote(t *testing.T) {
	stub := &stubLLM{text: `{
		"no_change": false,
		"company": "Microsoft",
		"role": "PM",
		"confirmation_text": "I understand you left Google and now work at Microsoft as a PM.",
		"confidence": 0.9
	}`}
	x := NewLegacyExtractor(stub, "gpt-4o-mini", nil)

	got := x.Extract(context.Background(), "• Company: Google", "I left Google and now work at Microsoft as a PM")
	if got.Company != "Microsoft" || got.Role != "PM" {
		t.Fatalf("Extract() = %+v", got)
	}
	if got.Confidence != 0.9 || got.NoChange {
		t.Fatalf("Extract() confidence/no_change = %v/%v", got.Confidence, got.NoChange)
	}
	if !got.HasChanges() {
		t.Fatalf("HasChanges() = false")
	}
	updates := got.Updates()
	if updates["Company"] != "Microsoft" || updates["Role"] != "PM" {
		t.Fatalf("Updates() = %v", updates)
	}
}

func TestLegacyExtractBadConfidenceString(t *testing.T) {
	stub := &stubLLM{text: `{"confirmation_text": "ok", "confidence": "very sure"}`}
	x := NewLegacyExtractor(stub, "gpt-4o-mini", nil)

	got := x.Extract(context.Background(), "", "moved teams")
	if got.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5 for unparseable string", got.Confidence)
	}
}

func TestLegacyExtractFallbackNoChange(t *testing.T) {
	stub := &stubLLM{err: errors.New("timeout")}
	x := NewLegacyExtractor(stub, "gpt-4o-mini", nil)

	got := x.Extract(context.Background(), "", "all good, nothing changed")
	if !got.NoChange || got.Confidence != 0.8 {
		t.Fatalf("Extract() = %+v, want no_change fallback", got)
	}
}

func TestLegacyExtractFallbackFields(t *testing.T) {
	x := &LegacyExtractor{}

	got := x.Extract(context.Background(), "", "I joined Stripe")
	if got.Company != "Stripe" {
		t.Fatalf("company = %q", got.Company)
	}
	if got.Confidence != 0.6 {
		t.Fatalf("confidence = %v, want 0.6 for a single change", got.Confidence)
	}
	if got.ConfirmationText != "I understand: company changed to Stripe. Reply YES to confirm these changes." {
		t.Fatalf("confirmation = %q", got.ConfirmationText)
	}
}

func TestLegacyExtractFallbackUnclear(t *testing.T) {
	x := &LegacyExtractor{}

	got := x.Extract(context.Background(), "", "hmm lots going on")
	if got.HasChanges() || got.Confidence != 0.3 {
		t.Fatalf("Extract() = %+v, want low-confidence catch-all", got)
	}
}

func TestLegacyPendingLifecycle(t *testing.T) {
	x := &LegacyExtractor{}
	e := LegacyExtraction{Company: "Stripe", Confidence: 0.9}

	x.Remember("+15551230000", e)
	got, ok := x.TakePending("+15551230000")
	if !ok || got.Company != "Stripe" {
		t.Fatalf("TakePending() = %+v, %v", got, ok)
	}
	if _, ok := x.TakePending("+15551230000"); ok {
		t.Fatalf("TakePending() second call should be empty")
	}

	x.Remember("+15551230000", e)
	x.ClearPending("+15551230000")
	if _, ok := x.TakePending("+15551230000"); ok {
		t.Fatalf("ClearPending() left an entry")
	}
}
