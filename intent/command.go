package intent

import "strings"

// Kind tags the command variant extracted from an inbound message.
type Kind string

const (
	KindAddBirthday      Kind = "add_birthday"
	KindChangeRole       Kind = "change_role"
	KindChangeCompany    Kind = "change_company"
	KindNewFriend        Kind = "new_friend"
	KindAddEmail         Kind = "add_email"
	KindAddPhone         Kind = "add_phone"
	KindAddLinkedIn      Kind = "add_linkedin"
	KindUpdatePersonInfo Kind = "update_person_info"
	KindManageTags       Kind = "manage_tags"
	KindCreateReminder   Kind = "create_reminder"
	KindCreateNote       Kind = "create_note"
	KindScheduleFollowup Kind = "schedule_followup"
	KindQueryData        Kind = "query_data"
	KindNoChange         Kind = "no_change"
	KindConfirmChanges   Kind = "confirm_changes"
	KindOptOut           Kind = "opt_out"
	KindUnclear          Kind = "unclear"
)

// Target tables in the record store.
const (
	TablePeople    = "Core People"
	TableCheckins  = "SMS Check-ins - From Core"
	TableReminders = "Reminders"
	TableMultiple  = "Multiple"
	TableNone      = "None"
)

// Command is the single structured result of interpreting one message.
// Exactly one Kind is set per parse; only the fields that variant uses are
// populated. Unrecognized input becomes KindUnclear, never a partially
// filled other variant.
type Command struct {
	Kind Kind

	// Person the command is about. Never the sender for person-mutating
	// kinds; validated by the router.
	TargetName string

	Birthday string // normalized YYYY-MM-DD
	Role     string
	Company  string
	Email    string
	Phone    string
	LinkedIn string

	FieldUpdates map[string]string
	TagsAdd      []string
	TagsRemove   []string

	Action       string
	TimelineText string
	Priority     string

	NoteContent    string
	FollowupReason string

	QueryType  string
	QueryTerms []string

	ErrorMessage string
}

// KnownKind reports whether s names a command variant.
func KnownKind(s string) bool {
	switch Kind(strings.TrimSpace(s)) {
	case KindAddBirthday, KindChangeRole, KindChangeCompany, KindNewFriend,
		KindAddEmail, KindAddPhone, KindAddLinkedIn, KindUpdatePersonInfo,
		KindManageTags, KindCreateReminder, KindCreateNote, KindScheduleFollowup,
		KindQueryData, KindNoChange, KindConfirmChanges, KindOptOut, KindUnclear:
		return true
	}
	return false
}

// Classification is the schema a classifier (keyword or remote) must
// populate: all four fields are required on the wire; confidence is
// coerced to a number when a model returns it as a string.
type Classification struct {
	Intent      Kind
	Confidence  float64
	TargetTable string
	Extracted   Extracted
}

// Extracted carries the per-intent payload of a classification.
type Extracted struct {
	TargetPerson     string
	FriendName       string
	FieldUpdates     map[string]string
	TagsToAdd        []string
	TagsToRemove     []string
	ReminderAction   string
	ReminderTimeline string
	ReminderPriority string
	NoteContent      string
	FollowupTimeline string
	FollowupReason   string
	QueryType        string
	QueryTerms       []string
	ErrorMessage     string
}

// Command converts a classification into the routed command variant.
func (c Classification) Command() Command {
	x := c.Extracted
	switch c.Intent {
	case KindUpdatePersonInfo:
		return Command{Kind: c.Intent, TargetName: x.TargetPerson, FieldUpdates: x.FieldUpdates}
	case KindManageTags:
		return Command{Kind: c.Intent, TargetName: x.TargetPerson, TagsAdd: x.TagsToAdd, TagsRemove: x.TagsToRemove}
	case KindCreateReminder:
		return Command{
			Kind:         c.Intent,
			TargetName:   x.TargetPerson,
			Action:       x.ReminderAction,
			TimelineText: x.ReminderTimeline,
			Priority:     x.ReminderPriority,
		}
	case KindCreateNote:
		return Command{Kind: c.Intent, TargetName: x.TargetPerson, NoteContent: x.NoteContent}
	case KindScheduleFollowup:
		return Command{
			Kind:           c.Intent,
			TargetName:     x.TargetPerson,
			TimelineText:   x.FollowupTimeline,
			FollowupReason: x.FollowupReason,
		}
	case KindNewFriend:
		name := x.FriendName
		if name == "" {
			name = x.TargetPerson
		}
		return Command{Kind: c.Intent, TargetName: name}
	case KindQueryData:
		return Command{Kind: c.Intent, QueryType: x.QueryType, QueryTerms: x.QueryTerms}
	case KindUnclear:
		return Command{Kind: c.Intent, ErrorMessage: x.ErrorMessage}
	default:
		return Command{Kind: c.Intent}
	}
}
