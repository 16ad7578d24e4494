package intent

import (
	"context"
	"reflect"
	"testing"
	"time"
)

var keywordNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func keywordClassify(t *testing.T, message string) Classification {
	t.Helper()
	c := &KeywordClassifier{Now: func() time.Time { return keywordNow }}
	got, err := c.Classify(context.Background(), message, nil)
	if err != nil {
		t.Fatalf("Classify(%q) error = %v", message, err)
	}
	return got
}

func TestKeywordClassifyGreeting(t *testing.T) {
	got := keywordClassify(t, "hey! how's it going")
	if got.Intent != KindUnclear || got.Extracted.ErrorMessage != greetingGuidance {
		t.Fatalf("Classify() = %+v, want unclear greeting guidance", got)
	}
	if got.Confidence != 0.3 || got.TargetTable != TableNone {
		t.Fatalf("Classify() confidence/table = %v/%q", got.Confidence, got.TargetTable)
	}
}

func TestKeywordClassifyQuestion(t *testing.T) {
	got := keywordClassify(t, "What notes do I have about Sarah?")
	if got.Intent != KindUnclear || got.Extracted.ErrorMessage != questionGuidance {
		t.Fatalf("Classify() = %+v, want unclear question guidance", got)
	}
}

func TestKeywordClassifyNewFriend(t *testing.T) {
	got := keywordClassify(t, "met Sarah Johnson")
	if got.Intent != KindNewFriend || got.Confidence != 0.8 {
		t.Fatalf("Classify() = %+v, want new_friend 0.8", got)
	}
	if got.Extracted.FriendName != "Sarah Johnson" {
		t.Fatalf("friend name = %q", got.Extracted.FriendName)
	}
}

func TestKeywordClassifyBirthdayUpdate(t *testing.T) {
	got := keywordClassify(t, "update John's birthday to 3/14/1999")
	if got.Intent != KindUpdatePersonInfo || got.Confidence != 0.7 {
		t.Fatalf("Classify() = %+v, want update_person_info 0.7", got)
	}
	if got.Extracted.TargetPerson != "John" {
		t.Fatalf("target person = %q", got.Extracted.TargetPerson)
	}
	if got.Extracted.FieldUpdates["birthday"] != "3/14/1999" {
		t.Fatalf("field updates = %v", got.Extracted.FieldUpdates)
	}
}

func TestKeywordClassifySelfBirthdayRejected(t *testing.T) {
	for _, msg := range []string{
		"update my birthday to 3/14/1999",
		"i'm born on 3/14/1999",
	} {
		got := keywordClassify(t, msg)
		if got.Intent != KindUnclear {
			t.Fatalf("Classify(%q) intent = %s, want unclear", msg, got.Intent)
		}
		if got.Extracted.ErrorMessage != birthdayGuardMessage {
			t.Fatalf("Classify(%q) guidance = %q", msg, got.Extracted.ErrorMessage)
		}
	}
}

func TestKeywordClassifyBirthdayWithoutTargetRejected(t *testing.T) {
	got := keywordClassify(t, "birthday 3/14/1999")
	if got.Intent != KindUnclear || got.Extracted.ErrorMessage != birthdayGuardMessage {
		t.Fatalf("Classify() = %+v, want birthday guidance", got)
	}
}

func TestKeywordClassifyReminder(t *testing.T) {
	got := keywordClassify(t, "remind me to call david tomorrow")
	if got.Intent != KindCreateReminder || got.Confidence != 0.6 {
		t.Fatalf("Classify() = %+v, want create_reminder 0.6", got)
	}
	x := got.Extracted
	if x.ReminderAction != "remind me to call david tomorrow" {
		t.Fatalf("action = %q", x.ReminderAction)
	}
	if x.ReminderTimeline != "tomorrow" || x.ReminderPriority != "medium" {
		t.Fatalf("timeline/priority = %q/%q", x.ReminderTimeline, x.ReminderPriority)
	}
}

func TestKeywordClassifyTags(t *testing.T) {
	got := keywordClassify(t, `tag John with "Tech"`)
	if got.Intent != KindManageTags || got.Confidence != 0.6 {
		t.Fatalf("Classify() = %+v, want manage_tags 0.6", got)
	}
	if !reflect.DeepEqual(got.Extracted.TagsToAdd, []string{"Tech"}) {
		t.Fatalf("tags = %v", got.Extracted.TagsToAdd)
	}
}

func TestKeywordClassifyQuery(t *testing.T) {
	got := keywordClassify(t, "Is David Kobrosky in here")
	if got.Intent != KindQueryData || got.Confidence != 0.7 {
		t.Fatalf("Classify() = %+v, want query_data 0.7", got)
	}
	if got.Extracted.QueryType != "people" {
		t.Fatalf("query type = %q", got.Extracted.QueryType)
	}
	if !reflect.DeepEqual(got.Extracted.QueryTerms, []string{"David Kobrosky"}) {
		t.Fatalf("query terms = %v", got.Extracted.QueryTerms)
	}
}

func TestKeywordClassifyUnclear(t *testing.T) {
	got := keywordClassify(t, "jane switched companies")
	if got.Intent != KindUnclear || got.Extracted.ErrorMessage != unclearGuidance {
		t.Fatalf("Classify() = %+v, want unclear guidance", got)
	}
}

func TestClassificationCommandConversion(t *testing.T) {
	c := Classification{
		Intent:      KindCreateReminder,
		Confidence:  0.9,
		TargetTable: TableReminders,
		Extracted: Extracted{
			TargetPerson:     "David",
			ReminderAction:   "call david",
			ReminderTimeline: "tomorrow",
			ReminderPriority: "high",
		},
	}
	cmd := c.Command()
	if cmd.Kind != KindCreateReminder || cmd.TargetName != "David" {
		t.Fatalf("Command() = %+v", cmd)
	}
	if cmd.Action != "call david" || cmd.TimelineText != "tomorrow" || cmd.Priority != "high" {
		t.Fatalf("Command() reminder fields = %+v", cmd)
	}

	u := Classification{Intent: KindUnclear, Extracted: Extracted{ErrorMessage: "nope"}}
	if got := u.Command(); got.ErrorMessage != "nope" {
		t.Fatalf("Command() unclear = %+v", got)
	}
}
