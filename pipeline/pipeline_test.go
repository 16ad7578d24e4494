package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/thebrunchguy/sms-controller/intent"
	"github.com/thebrunchguy/sms-controller/people"
	"github.com/thebrunchguy/sms-controller/router"
)

var pipelineNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type fakeStore struct {
	roster    []people.Person
	updates   map[string]map[string]any
	reminders []people.Reminder
	notes     []people.Note
	followups []people.Followup
	checkins  []people.Checkin
}

func (s *fakeStore) ListPeople(context.Context) ([]people.Person, error) {
	return s.roster, nil
}

func (s *fakeStore) GetPersonByPhone(_ context.Context, phone string) (people.Person, bool, error) {
	for _, p := range s.roster {
		if NormalizePhone(p.Phone) == NormalizePhone(phone) {
			return p, true, nil
		}
	}
	return people.Person{}, false, nil
}

func (s *fakeStore) CreatePerson(_ context.Context, p people.Person) (people.Person, error) {
	p.ID = "new"
	s.roster = append(s.roster, p)
	return p, nil
}

func (s *fakeStore) UpdatePerson(_ context.Context, id string, fields map[string]any) error {
	if s.updates == nil {
		s.updates = map[string]map[string]any{}
	}
	if s.updates[id] == nil {
		s.updates[id] = map[string]any{}
	}
	for k, v := range fields {
		s.updates[id][k] = v
	}
	return nil
}

func (s *fakeStore) CreateReminder(_ context.Context, r people.Reminder) (people.Reminder, error) {
	r.ID = "rem1"
	s.reminders = append(s.reminders, r)
	return r, nil
}

func (s *fakeStore) ListReminders(context.Context) ([]people.Reminder, error) {
	return s.reminders, nil
}

func (s *fakeStore) ListDueReminders(context.Context, time.Time) ([]people.Reminder, error) {
	return nil, nil
}

func (s *fakeStore) MarkReminderSent(context.Context, string, time.Time) error { return nil }

func (s *fakeStore) CreateNote(_ context.Context, n people.Note) (people.Note, error) {
	n.ID = "note1"
	s.notes = append(s.notes, n)
	return n, nil
}

func (s *fakeStore) ListNotes(context.Context) ([]people.Note, error) { return s.notes, nil }

func (s *fakeStore) CreateFollowup(_ context.Context, f people.Followup) (people.Followup, error) {
	f.ID = "fu1"
	s.followups = append(s.followups, f)
	return f, nil
}

func (s *fakeStore) UpsertCheckin(_ context.Context, personID, month, status string) (people.Checkin, error) {
	c := people.Checkin{ID: "chk1", PersonID: personID, Month: month, Status: status}
	s.checkins = append(s.checkins, c)
	return c, nil
}

func (s *fakeStore) UpdateCheckinStatus(context.Context, string, string) error { return nil }

func (s *fakeStore) ListCheckins(context.Context) ([]people.Checkin, error) {
	return s.checkins, nil
}

func (s *fakeStore) LogMessage(context.Context, people.Message) error { return nil }

const adminPhone = "+19785550100"

func newTestPipeline(store *fakeStore) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := router.New(router.Deps{
		People:    store,
		Reminders: store,
		Notes:     store,
		Followups: store,
		Checkins:  store,
		Now:       func() time.Time { return pipelineNow },
		Logger:    logger,
	})
	return New(Config{
		Admins:     []string{adminPhone},
		Classifier: &intent.KeywordClassifier{Now: func() time.Time { return pipelineNow }},
		Router:     rt,
		Legacy:     intent.NewLegacyExtractor(nil, "", logger),
		People:     store,
		Now:        func() time.Time { return pipelineNow },
		Logger:     logger,
	})
}

func seededStore() *fakeStore {
	return &fakeStore{roster: []people.Person{
		{ID: "p1", Name: "John Doe", Phone: "5551112222"},
		{ID: "p2", Name: "David Kobrosky", Phone: "5553334444"},
	}}
}

func TestHandleMessageAdminGrammar(t *testing.T) {
	store := seededStore()
	p := newTestPipeline(store)

	reply := p.HandleMessage(context.Background(), adminPhone, "add birthday John Doe 1990-05-15")
	if !reply.OK {
		t.Fatalf("HandleMessage() not OK: %q", reply.Text)
	}
	if reply.Text != "✅ Added birthday 1990-05-15 for John Doe" {
		t.Fatalf("reply = %q", reply.Text)
	}
	if store.updates["p1"]["Birthday"] != "1990-05-15" {
		t.Fatalf("updates = %+v", store.updates)
	}
}

func TestHandleMessageGrammarRequiresAdmin(t *testing.T) {
	store := seededStore()
	p := newTestPipeline(store)

	reply := p.HandleMessage(context.Background(), "+15559990000", "add birthday John Doe 1990-05-15")
	if reply.OK {
		t.Fatalf("HandleMessage() should not run grammar for non-admins: %q", reply.Text)
	}
	if len(store.updates) != 0 {
		t.Fatalf("updates = %+v", store.updates)
	}
}

func TestHandleMessageSelfBirthdayRejected(t *testing.T) {
	p := newTestPipeline(seededStore())

	reply := p.HandleMessage(context.Background(), adminPhone, "update my birthday to 3/14/1999")
	if reply.OK {
		t.Fatalf("HandleMessage() OK = true, want rejection")
	}
	if !strings.Contains(reply.Text, "whose birthday") {
		t.Fatalf("reply = %q", reply.Text)
	}
}

func TestHandleMessageReminder(t *testing.T) {
	store := seededStore()
	p := newTestPipeline(store)

	reply := p.HandleMessage(context.Background(), adminPhone, "remind me to call david tomorrow")
	if !reply.OK {
		t.Fatalf("HandleMessage() not OK: %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "✅ Reminder created:") || !strings.Contains(reply.Text, "(due: tomorrow at noon)") {
		t.Fatalf("reply = %q", reply.Text)
	}
	if len(store.reminders) != 1 || store.reminders[0].PersonName != "David Kobrosky" {
		t.Fatalf("reminders = %+v", store.reminders)
	}
}

func TestHandleMessageHelp(t *testing.T) {
	p := newTestPipeline(seededStore())

	reply := p.HandleMessage(context.Background(), "+15551112222", "help")
	if !reply.OK || !strings.Contains(reply.Text, "Available Commands") {
		t.Fatalf("reply = %q", reply.Text)
	}

	reply = p.HandleMessage(context.Background(), adminPhone, "CONTROLS")
	if !reply.OK || !strings.Contains(reply.Text, "Admin Commands") {
		t.Fatalf("admin reply = %q", reply.Text)
	}
}

func TestHandleMessageStop(t *testing.T) {
	store := seededStore()
	p := newTestPipeline(store)

	reply := p.HandleMessage(context.Background(), "+15551112222", "STOP")
	if !reply.OK {
		t.Fatalf("HandleMessage() not OK: %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "unsubscribed") {
		t.Fatalf("reply = %q", reply.Text)
	}
	if store.updates["p1"]["Opt-out"] != true {
		t.Fatalf("updates = %+v", store.updates)
	}
}

func TestHandleMessageNoChange(t *testing.T) {
	store := seededStore()
	p := newTestPipeline(store)

	reply := p.HandleMessage(context.Background(), "+15551112222", "No change")
	if !reply.OK {
		t.Fatalf("HandleMessage() not OK: %q", reply.Text)
	}
	if store.updates["p1"]["Last Confirmed"] != "2026-03-10" {
		t.Fatalf("updates = %+v", store.updates)
	}
}

func TestHandleMessageCheckinUpdateThenYes(t *testing.T) {
	store := seededStore()
	p := newTestPipeline(store)

	reply := p.HandleMessage(context.Background(), "+15551112222", "I joined Stripe")
	if !reply.OK {
		t.Fatalf("HandleMessage() not OK: %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "company changed to Stripe") || !strings.Contains(reply.Text, "Reply YES") {
		t.Fatalf("reply = %q", reply.Text)
	}
	if len(store.updates) != 0 {
		t.Fatalf("no update should land before confirmation: %+v", store.updates)
	}

	reply = p.HandleMessage(context.Background(), "+15551112222", "yes")
	if !reply.OK || reply.Text != "✅ Changes applied! Thanks for the update." {
		t.Fatalf("reply = %q", reply.Text)
	}
	if store.updates["p1"]["Company"] != "Stripe" {
		t.Fatalf("updates = %+v", store.updates)
	}
	if store.updates["p1"]["Last Confirmed"] != "2026-03-10" {
		t.Fatalf("updates = %+v", store.updates)
	}
}

func TestHandleMessageYesWithoutPending(t *testing.T) {
	p := newTestPipeline(seededStore())

	reply := p.HandleMessage(context.Background(), "+15551112222", "yes")
	if !reply.OK || reply.Text != "✅ Changes applied! Thanks for the update." {
		t.Fatalf("reply = %q", reply.Text)
	}
}

type stubClassifier struct {
	cls intent.Classification
}

func (s stubClassifier) Classify(context.Context, string, map[string]any) (intent.Classification, error) {
	return s.cls, nil
}

func TestHandleMessageConfidenceGateBoundary(t *testing.T) {
	cases := []struct {
		name       string
		confidence float64
		routed     bool
	}{
		{"just below the gate", 0.55, false},
		{"just above the gate", 0.61, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := seededStore()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			rt := router.New(router.Deps{
				People:    store,
				Reminders: store,
				Notes:     store,
				Followups: store,
				Checkins:  store,
				Now:       func() time.Time { return pipelineNow },
				Logger:    logger,
			})
			p := New(Config{
				Classifier: stubClassifier{cls: intent.Classification{
					Intent:      intent.KindCreateNote,
					Confidence:  tc.confidence,
					TargetTable: intent.TableNone,
					Extracted:   intent.Extracted{NoteContent: "John mentioned a new role"},
				}},
				Router: rt,
				People: store,
				Now:    func() time.Time { return pipelineNow },
				Logger: logger,
			})

			reply := p.HandleMessage(context.Background(), "+15559990000", "john mentioned a new role")
			if tc.routed {
				if !reply.OK {
					t.Fatalf("HandleMessage() not OK: %q", reply.Text)
				}
				if len(store.notes) != 1 {
					t.Fatalf("notes = %+v", store.notes)
				}
				return
			}
			if reply.OK {
				t.Fatalf("HandleMessage() dispatched below the gate: %q", reply.Text)
			}
			if len(store.notes) != 0 {
				t.Fatalf("no note should be created below the gate: %+v", store.notes)
			}
			if !strings.Contains(reply.Text, "rephrase") {
				t.Fatalf("reply = %q", reply.Text)
			}
		})
	}
}

func TestHandleMessageUnclear(t *testing.T) {
	p := newTestPipeline(seededStore())

	reply := p.HandleMessage(context.Background(), "+15559990000", "asdf qwerty")
	if reply.OK {
		t.Fatalf("HandleMessage() OK = true for gibberish")
	}
	if reply.Text == "" {
		t.Fatalf("expected guidance text")
	}
}
