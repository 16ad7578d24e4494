package people

import "time"

// Check-in cadences.
const (
	FrequencyMonthly   = "Monthly"
	FrequencyQuarterly = "Quarterly"
)

// Reminder states.
const (
	ReminderPending   = "Pending"
	ReminderSent      = "Sent"
	ReminderCompleted = "Completed"
)

// Check-in states.
const (
	CheckinSent      = "Sent"
	CheckinConfirmed = "Confirmed"
	CheckinNoChange  = "No Change"
	CheckinOptedOut  = "Opted Out"
)

// Person is one contact record. Birthday and LastConfirmed are stored as
// YYYY-MM-DD strings, matching the record store's date columns.
type Person struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Phone         string   `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email         string   `json:"email,omitempty" yaml:"email,omitempty"`
	Company       string   `json:"company,omitempty" yaml:"company,omitempty"`
	Role          string   `json:"role,omitempty" yaml:"role,omitempty"`
	City          string   `json:"city,omitempty" yaml:"city,omitempty"`
	Birthday      string   `json:"birthday,omitempty" yaml:"birthday,omitempty"`
	LinkedIn      string   `json:"linkedin,omitempty" yaml:"linkedin,omitempty"`
	HowWeMet      string   `json:"how_we_met,omitempty" yaml:"how_we_met,omitempty"`
	Tags          []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Consent       bool     `json:"consent,omitempty" yaml:"consent,omitempty"`
	OptOut        bool     `json:"opt_out,omitempty" yaml:"opt_out,omitempty"`
	Frequency     string   `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	LastConfirmed string   `json:"last_confirmed,omitempty" yaml:"last_confirmed,omitempty"`
}

// Reminder is a future action tied to a person.
type Reminder struct {
	ID         string     `json:"id"`
	PersonID   string     `json:"person_id,omitempty"`
	PersonName string     `json:"person_name"`
	Action     string     `json:"action"`
	Timeline   string     `json:"timeline,omitempty"`
	Priority   string     `json:"priority,omitempty"`
	Status     string     `json:"status"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Note is a free-form observation about a person.
type Note struct {
	ID         string    `json:"id"`
	PersonID   string    `json:"person_id,omitempty"`
	PersonName string    `json:"person_name,omitempty"`
	Content    string    `json:"content"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Followup is a scheduled future check-in with a person.
type Followup struct {
	ID          string     `json:"id"`
	PersonID    string     `json:"person_id,omitempty"`
	PersonName  string     `json:"person_name"`
	Reason      string     `json:"reason,omitempty"`
	Timeline    string     `json:"timeline,omitempty"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Checkin tracks one monthly prompt sent to a person.
type Checkin struct {
	ID        string    `json:"id"`
	PersonID  string    `json:"person_id"`
	Month     string    `json:"month"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one transcript entry tied to a check-in conversation.
type Message struct {
	CheckinID   string    `json:"checkin_id,omitempty"`
	Direction   string    `json:"direction"`
	From        string    `json:"from,omitempty"`
	Body        string    `json:"body"`
	ProviderSID string    `json:"provider_sid,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
