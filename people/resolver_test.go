package people

import (
	"context"
	"errors"
	"testing"

	"github.com/thebrunchguy/sms-controller/llm"
)

var resolverCandidates = []Person{
	{ID: "1", Name: "David Kobrosky"},
	{ID: "2", Name: "David Smith"},
	{ID: "3", Name: "Sarah Chen"},
}

func TestResolveByNameFirstMatchWins(t *testing.T) {
	got, ok := ResolveByName("david", resolverCandidates)
	if !ok || got.ID != "1" {
		t.Fatalf("ResolveByName() = %+v, %v; first store-order match should win", got, ok)
	}
}

func TestResolveByNameCaseInsensitiveSubstring(t *testing.T) {
	got, ok := ResolveByName("CHEN", resolverCandidates)
	if !ok || got.ID != "3" {
		t.Fatalf("ResolveByName() = %+v, %v", got, ok)
	}
	if _, ok := ResolveByName("nobody", resolverCandidates); ok {
		t.Fatalf("ResolveByName() matched an unknown name")
	}
	if _, ok := ResolveByName("   ", resolverCandidates); ok {
		t.Fatalf("ResolveByName() matched an empty query")
	}
}

type stubResolverLLM struct {
	text  string
	err   error
	calls int
}

func (s *stubResolverLLM) Chat(_ context.Context, _ llm.Request) (llm.Result, error) {
	s.calls++
	if s.err != nil {
		return llm.Result{}, s.err
	}
	return llm.Result{Text: s.text}, nil
}

func TestLLMResolverSubstringShortCircuits(t *testing.T) {
	stub := &stubResolverLLM{text: `{"name": "Sarah Chen", "confidence": 1}`}
	r := NewLLMResolver(stub, "gpt-4o-mini", nil)

	got, ok, err := r.Resolve(context.Background(), "david", resolverCandidates)
	if err != nil || !ok || got.ID != "1" {
		t.Fatalf("Resolve() = %+v, %v, %v", got, ok, err)
	}
	if stub.calls != 0 {
		t.Fatalf("model called %d times for an exact substring match", stub.calls)
	}
}

func TestLLMResolverFuzzyMatch(t *testing.T) {
	stub := &stubResolverLLM{text: `{"name": "David Kobrosky", "confidence": 0.92}`}
	r := NewLLMResolver(stub, "gpt-4o-mini", nil)

	got, ok, err := r.Resolve(context.Background(), "dave kobrowski", resolverCandidates)
	if err != nil || !ok {
		t.Fatalf("Resolve() = %v, %v", ok, err)
	}
	if got.ID != "1" {
		t.Fatalf("Resolve() = %+v", got)
	}
}

func TestLLMResolverLowConfidenceDiscarded(t *testing.T) {
	cases := []struct {
		name       string
		confidence string
		want       bool
	}{
		{"below the floor", "0.5", false},
		{"exactly the floor", "0.7", false},
		{"just above the floor", "0.71", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubResolverLLM{text: `{"name": "David Kobrosky", "confidence": ` + tc.confidence + `}`}
			r := NewLLMResolver(stub, "gpt-4o-mini", nil)

			_, ok, err := r.Resolve(context.Background(), "dk", resolverCandidates)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if ok != tc.want {
				t.Fatalf("Resolve() matched = %v, want %v", ok, tc.want)
			}
		})
	}
}

func TestLLMResolverUnknownPickDiscarded(t *testing.T) {
	stub := &stubResolverLLM{text: `{"name": "Someone Else", "confidence": 0.99}`}
	r := NewLLMResolver(stub, "gpt-4o-mini", nil)

	if _, ok, err := r.Resolve(context.Background(), "smn else", resolverCandidates); ok || err != nil {
		t.Fatalf("Resolve() = %v, %v; picks outside the candidate list must be discarded", ok, err)
	}
}

func TestLLMResolverRemoteFailure(t *testing.T) {
	stub := &stubResolverLLM{err: errors.New("boom")}
	r := NewLLMResolver(stub, "gpt-4o-mini", nil)

	if _, ok, err := r.Resolve(context.Background(), "dave kobrowski", resolverCandidates); ok || err != nil {
		t.Fatalf("Resolve() = %v, %v; remote failure should mean no match", ok, err)
	}
}
