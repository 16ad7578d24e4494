package intent

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/thebrunchguy/sms-controller/timeline"
)

// Classifier turns a free-form message into a Classification. The person
// context carries the sender's current record fields for prompt grounding;
// keyword classification ignores it.
type Classifier interface {
	Classify(ctx context.Context, message string, personContext map[string]any) (Classification, error)
}

// User-facing guidance for messages that cannot be acted on.
const (
	birthdayGuardMessage = "❌ Please specify whose birthday you want to update. For example: 'update John's birthday to 3/14/1999'"
	greetingGuidance     = "Hello! I'm here to help you manage your information. You can ask me to 'remind you to...', 'update your...', or 'add a note...'. What would you like me to help you with?"
	questionGuidance     = "I'm designed to help you manage your information and reminders. You can ask me to 'remind you to...', 'update your...', or 'add a note...'. What specific action would you like me to help you with?"
	unclearGuidance      = "I couldn't understand what you'd like me to do. Please try rephrasing your message with specific actions like 'remind me to...', 'update my...', or 'add a note...'"
)

var (
	greetingWords = []string{"hello", "hi", "hey", "how are you", "what's up", "good morning", "good afternoon", "good evening"}
	questionWords = []string{"what", "how", "when", "where", "why", "can you", "do you", "are you"}
	birthdayWords = []string{"birthday", "born", "birth"}
	selfRefWords  = []string{"my", "mine", "i am", "i'm"}
	friendWords   = []string{"new friend", "met", "introduce"}
	tagWords      = []string{"tag", "label", "categorize"}
	reminderWords = []string{"remind", "reminder", "follow up", "reach out"}
	noteWords     = []string{"note", "comment", "observe"}
	queryWords    = []string{"is", "do i have", "what", "show me", "find", "search", "look for", "tell me about"}
)

// KeywordClassifier classifies with substring keyword matching. It is the
// always-available bottom layer: it never returns an error, and anything it
// cannot place becomes KindUnclear with guidance text.
type KeywordClassifier struct {
	// Now anchors relative time expressions; defaults to time.Now.
	Now func() time.Time
}

func (c *KeywordClassifier) Classify(_ context.Context, message string, _ map[string]any) (Classification, error) {
	lower := strings.ToLower(strings.TrimSpace(message))

	if containsAny(lower, greetingWords) {
		return unclearClassification(greetingGuidance), nil
	}
	if containsAny(lower, questionWords) {
		return unclearClassification(questionGuidance), nil
	}

	switch {
	case containsAny(lower, friendWords):
		return Classification{
			Intent:      KindNewFriend,
			Confidence:  0.8,
			TargetTable: TablePeople,
			Extracted:   Extracted{FriendName: extractFriendName(lower)},
		}, nil

	case containsAny(lower, birthdayWords):
		if guarded, ok := birthdayGuard(message); ok {
			return guarded, nil
		}
		return Classification{
			Intent:      KindUpdatePersonInfo,
			Confidence:  0.7,
			TargetTable: TablePeople,
			Extracted: Extracted{
				TargetPerson: extractPersonFromBirthdayUpdate(lower),
				FieldUpdates: map[string]string{"birthday": extractBirthdayDate(message)},
			},
		}, nil

	case containsAny(lower, tagWords):
		return Classification{
			Intent:      KindManageTags,
			Confidence:  0.6,
			TargetTable: TablePeople,
			Extracted:   Extracted{TagsToAdd: extractTags(message)},
		}, nil

	case containsAny(lower, reminderWords):
		now := time.Now()
		if c != nil && c.Now != nil {
			now = c.Now()
		}
		return Classification{
			Intent:      KindCreateReminder,
			Confidence:  0.6,
			TargetTable: TableCheckins,
			Extracted: Extracted{
				ReminderAction:   message,
				ReminderTimeline: timeline.Extract(message, now).MatchedText,
				ReminderPriority: "medium",
			},
		}, nil

	case containsAny(lower, noteWords):
		return Classification{
			Intent:      KindCreateNote,
			Confidence:  0.6,
			TargetTable: TablePeople,
			Extracted:   Extracted{NoteContent: message},
		}, nil

	case containsAny(lower, queryWords):
		return Classification{
			Intent:      KindQueryData,
			Confidence:  0.7,
			TargetTable: TableMultiple,
			Extracted: Extracted{
				QueryType:  queryTypeFor(lower),
				QueryTerms: extractQueryTerms(message),
			},
		}, nil
	}

	return unclearClassification(unclearGuidance), nil
}

// birthdayGuard rejects birthday-themed messages that are self-referential
// or name no target person. The system only edits other people's records,
// so both cases need a rephrase from the sender.
func birthdayGuard(message string) (Classification, bool) {
	lower := strings.ToLower(message)
	if !containsAny(lower, birthdayWords) {
		return Classification{}, false
	}
	if containsAny(lower, selfRefWords) {
		return unclearClassification(birthdayGuardMessage), true
	}
	if extractPersonFromBirthdayUpdate(lower) == "" {
		return unclearClassification(birthdayGuardMessage), true
	}
	return Classification{}, false
}

func unclearClassification(guidance string) Classification {
	return Classification{
		Intent:      KindUnclear,
		Confidence:  0.3,
		TargetTable: TableNone,
		Extracted:   Extracted{ErrorMessage: guidance},
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

var birthdayDateRe = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{4}`)

func extractBirthdayDate(message string) string {
	return birthdayDateRe.FindString(message)
}

var friendNameRes = []*regexp.Regexp{
	regexp.MustCompile(`new\s+friend\s+(.+)`),
	regexp.MustCompile(`met\s+(.+)`),
	regexp.MustCompile(`introduce\s+(.+)`),
}

func extractFriendName(lower string) string {
	for _, re := range friendNameRes {
		if m := re.FindStringSubmatch(lower); m != nil {
			return titleWords(m[1])
		}
	}
	return ""
}

var birthdayPersonRes = []*regexp.Regexp{
	regexp.MustCompile(`update\s+([a-z\s]+?)'s\s+birthday`),
	regexp.MustCompile(`change\s+([a-z\s]+?)'s\s+birthday`),
	regexp.MustCompile(`set\s+([a-z\s]+?)'s\s+birthday`),
	regexp.MustCompile(`([a-z\s]+?)'s\s+birthday\s+is`),
	regexp.MustCompile(`birthday\s+for\s+([a-z\s]+?)\s+is`),
	regexp.MustCompile(`update\s+([a-z\s]+?)\s+birthday`),
	regexp.MustCompile(`change\s+([a-z\s]+?)\s+birthday`),
}

func extractPersonFromBirthdayUpdate(lower string) string {
	for _, re := range birthdayPersonRes {
		if m := re.FindStringSubmatch(lower); m != nil {
			return titleWords(m[1])
		}
	}
	return ""
}

var tagRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tag\s+\w+\s+with\s+["']([^"']+)["']`),
	regexp.MustCompile(`(?i)tag\s+\w+\s+with\s+(\w+)`),
	regexp.MustCompile(`(?i)["']([^"']+)["']`),
}

func extractTags(message string) []string {
	var tags []string
	seen := map[string]bool{}
	for _, re := range tagRes {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			tag := m[1]
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func queryTypeFor(lower string) string {
	switch {
	case containsAny(lower, []string{"reminder", "remind"}):
		return "reminders"
	case containsAny(lower, []string{"note", "notes"}):
		return "notes"
	case containsAny(lower, []string{"checkin", "check-in", "check in"}):
		return "checkins"
	default:
		return "people"
	}
}

var capitalizedRunRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

var queryStopwords = map[string]bool{
	"is": true, "do": true, "have": true, "what": true, "show": true,
	"me": true, "find": true, "search": true, "look": true, "for": true,
	"tell": true, "about": true, "any": true, "the": true, "a": true, "an": true,
}

// extractQueryTerms keeps the capitalized word runs that look like names.
func extractQueryTerms(message string) []string {
	var terms []string
	for _, m := range capitalizedRunRe.FindAllString(message, -1) {
		if !queryStopwords[strings.ToLower(m)] {
			terms = append(terms, m)
		}
	}
	return terms
}

func titleWords(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, " ")
}
