package people

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("people: not found")
	ErrExists   = errors.New("people: already exists")
)

// Person record fields accepted by UpdatePerson.
const (
	FieldName          = "Name"
	FieldPhone         = "Phone"
	FieldEmail         = "Email"
	FieldCompany       = "Company"
	FieldRole          = "Role"
	FieldCity          = "City"
	FieldBirthday      = "Birthday"
	FieldLinkedIn      = "LinkedIn"
	FieldHowWeMet      = "How We Met"
	FieldTags          = "Tags"
	FieldOptOut        = "Opt-out"
	FieldLastConfirmed = "Last Confirmed"
)

type PersonStore interface {
	ListPeople(ctx context.Context) ([]Person, error)
	GetPersonByPhone(ctx context.Context, phone string) (Person, bool, error)
	CreatePerson(ctx context.Context, p Person) (Person, error)
	// UpdatePerson applies the named field values to an existing record.
	// Unknown field names are ignored; string values are expected for all
	// fields except Tags ([]string) and Opt-out (bool).
	UpdatePerson(ctx context.Context, id string, fields map[string]any) error
}

type ReminderStore interface {
	CreateReminder(ctx context.Context, r Reminder) (Reminder, error)
	ListReminders(ctx context.Context) ([]Reminder, error)
	// ListDueReminders returns pending reminders due at or before the cutoff.
	ListDueReminders(ctx context.Context, cutoff time.Time) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
}

type NoteStore interface {
	CreateNote(ctx context.Context, n Note) (Note, error)
	ListNotes(ctx context.Context) ([]Note, error)
}

type FollowupStore interface {
	CreateFollowup(ctx context.Context, f Followup) (Followup, error)
}

type CheckinStore interface {
	// UpsertCheckin finds or creates the check-in row for a person-month.
	UpsertCheckin(ctx context.Context, personID, month, status string) (Checkin, error)
	UpdateCheckinStatus(ctx context.Context, id, status string) error
	ListCheckins(ctx context.Context) ([]Checkin, error)
	LogMessage(ctx context.Context, m Message) error
}

// Store is the full record-store surface the server wires up.
type Store interface {
	PersonStore
	ReminderStore
	NoteStore
	FollowupStore
	CheckinStore
}
