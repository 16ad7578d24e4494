package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/thebrunchguy/sms-controller/intent"
	"github.com/thebrunchguy/sms-controller/internal/twilioclient"
	"github.com/thebrunchguy/sms-controller/people"
	"github.com/thebrunchguy/sms-controller/pipeline"
	"github.com/thebrunchguy/sms-controller/router"
)

var serveNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type memStore struct {
	roster    []people.Person
	updates   map[string]map[string]any
	reminders []people.Reminder
	notes     []people.Note
	followups []people.Followup
	checkins  []people.Checkin
	messages  []people.Message
	markSent  []string
}

func (s *memStore) ListPeople(context.Context) ([]people.Person, error) { return s.roster, nil }

func (s *memStore) GetPersonByPhone(_ context.Context, phone string) (people.Person, bool, error) {
	for _, p := range s.roster {
		if pipeline.NormalizePhone(p.Phone) == pipeline.NormalizePhone(phone) {
			return p, true, nil
		}
	}
	return people.Person{}, false, nil
}

func (s *memStore) CreatePerson(_ context.Context, p people.Person) (people.Person, error) {
	p.ID = "new"
	s.roster = append(s.roster, p)
	return p, nil
}

func (s *memStore) UpdatePerson(_ context.Context, id string, fields map[string]any) error {
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

func (s *memStore) CreateReminder(_ context.Context, r people.Reminder) (people.Reminder, error) {
	r.ID = "rem1"
	s.reminders = append(s.reminders, r)
	return r, nil
}

func (s *memStore) ListReminders(context.Context) ([]people.Reminder, error) {
	return s.reminders, nil
}

func (s *memStore) ListDueReminders(_ context.Context, cutoff time.Time) ([]people.Reminder, error) {
	var due []people.Reminder
	for _, r := range s.reminders {
		if r.Status == people.ReminderPending && r.DueAt != nil && !r.DueAt.After(cutoff) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (s *memStore) MarkReminderSent(_ context.Context, id string, _ time.Time) error {
	s.markSent = append(s.markSent, id)
	return nil
}

func (s *memStore) CreateNote(_ context.Context, n people.Note) (people.Note, error) {
	s.notes = append(s.notes, n)
	return n, nil
}

func (s *memStore) ListNotes(context.Context) ([]people.Note, error) { return s.notes, nil }

func (s *memStore) CreateFollowup(_ context.Context, f people.Followup) (people.Followup, error) {
	s.followups = append(s.followups, f)
	return f, nil
}

func (s *memStore) UpsertCheckin(_ context.Context, personID, month, status string) (people.Checkin, error) {
	c := people.Checkin{ID: "chk-" + personID, PersonID: personID, Month: month, Status: status}
	s.checkins = append(s.checkins, c)
	return c, nil
}

func (s *memStore) UpdateCheckinStatus(context.Context, string, string) error { return nil }

func (s *memStore) ListCheckins(context.Context) ([]people.Checkin, error) { return s.checkins, nil }

func (s *memStore) LogMessage(_ context.Context, m people.Message) error {
	s.messages = append(s.messages, m)
	return nil
}

type smsCapture struct {
	forms []url.Values
}

func newTestServer(t *testing.T, store *memStore) (*httptest.Server, *smsCapture) {
	t.Helper()
	capture := &smsCapture{}
	twilioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		capture.forms = append(capture.forms, r.PostForm)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	t.Cleanup(twilioSrv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := router.New(router.Deps{
		People:    store,
		Reminders: store,
		Notes:     store,
		Followups: store,
		Checkins:  store,
		Now:       func() time.Time { return serveNow },
		Logger:    logger,
	})
	pipe := pipeline.New(pipeline.Config{
		Admins:     []string{"+19785550100"},
		Classifier: &intent.KeywordClassifier{Now: func() time.Time { return serveNow }},
		Router:     rt,
		Legacy:     intent.NewLegacyExtractor(nil, "", logger),
		People:     store,
		Now:        func() time.Time { return serveNow },
		Logger:     logger,
	})
	sms := twilioclient.New(twilioSrv.Client(), "AC1", "token",
		twilioclient.Options{BaseURL: twilioSrv.URL, FromNumber: "+15550001111"})

	srv := newServer(serverConfig{
		store:   store,
		pipe:    pipe,
		sms:     sms,
		logger:  logger,
		auth:    "secret",
		baseURL: "https://crm.example.com",
		admins:  []string{"9785550100"},
		now:     func() time.Time { return serveNow },
	})
	app := httptest.NewServer(srv.routes())
	t.Cleanup(app.Close)
	return app, capture
}

func postForm(t *testing.T, rawURL string, form url.Values) map[string]any {
	t.Helper()
	resp, err := http.PostForm(rawURL, form)
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestInboundNoChange(t *testing.T) {
	store := &memStore{roster: []people.Person{
		{ID: "p1", Name: "John Doe", Phone: "5551112222", Consent: true},
	}}
	app, capture := newTestServer(t, store)

	out := postForm(t, app.URL+"/twilio/inbound", url.Values{
		"From":       {"+15551112222"},
		"Body":       {"No change"},
		"MessageSid": {"SM42"},
	})
	if out["ok"] != true {
		t.Fatalf("response = %v", out)
	}
	if store.updates["p1"]["Last Confirmed"] != "2026-03-10" {
		t.Fatalf("updates = %+v", store.updates)
	}
	if len(capture.forms) != 1 {
		t.Fatalf("sends = %d", len(capture.forms))
	}
	sent := capture.forms[0]
	if sent.Get("To") != "+15551112222" || !strings.Contains(sent.Get("Body"), "Thanks for confirming") {
		t.Fatalf("sent = %v", sent)
	}
	if sent.Get("StatusCallback") != "https://crm.example.com/twilio/status" {
		t.Fatalf("StatusCallback = %q", sent.Get("StatusCallback"))
	}
	if len(store.messages) != 2 || store.messages[0].Direction != "Inbound" || store.messages[1].Direction != "Outbound" {
		t.Fatalf("messages = %+v", store.messages)
	}
}

func TestInboundUnknownNumber(t *testing.T) {
	app, capture := newTestServer(t, &memStore{})

	out := postForm(t, app.URL+"/twilio/inbound", url.Values{
		"From": {"+15559990000"},
		"Body": {"hello"},
	})
	if out["ok"] != false || out["message"] != "Unknown phone number" {
		t.Fatalf("response = %v", out)
	}
	if len(capture.forms) != 0 {
		t.Fatalf("no SMS should be sent: %v", capture.forms)
	}
}

func TestInboundOptedOut(t *testing.T) {
	store := &memStore{roster: []people.Person{
		{ID: "p1", Name: "John Doe", Phone: "5551112222", OptOut: true},
	}}
	app, capture := newTestServer(t, store)

	out := postForm(t, app.URL+"/twilio/inbound", url.Values{
		"From": {"+15551112222"},
		"Body": {"hello"},
	})
	if out["ok"] != false || out["message"] != "Person has opted out" {
		t.Fatalf("response = %v", out)
	}
	if len(capture.forms) != 0 {
		t.Fatalf("no SMS should be sent: %v", capture.forms)
	}
}

func TestJobsRequireAuth(t *testing.T) {
	app, _ := newTestServer(t, &memStore{})

	resp, err := http.Post(app.URL+"/jobs/send-monthly", "application/json", nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func jobPost(t *testing.T, rawURL string) map[string]any {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, rawURL, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSendMonthlyJob(t *testing.T) {
	store := &memStore{roster: []people.Person{
		{ID: "p1", Name: "Sarah Chen", Phone: "5553334444", Consent: true, Frequency: "Monthly"},
		{ID: "p2", Name: "Opted Out", Phone: "5550000000", Consent: true, OptOut: true},
	}}
	app, capture := newTestServer(t, store)

	out := jobPost(t, app.URL+"/jobs/send-monthly")
	if out["ok"] != true || out["sent"] != float64(1) {
		t.Fatalf("response = %v", out)
	}
	if len(capture.forms) != 1 {
		t.Fatalf("sends = %d", len(capture.forms))
	}
	sent := capture.forms[0]
	if sent.Get("To") != "+15553334444" {
		t.Fatalf("To = %q", sent.Get("To"))
	}
	if !strings.Contains(sent.Get("Body"), "Hi Sarah Chen! Monthly check-in.") {
		t.Fatalf("Body = %q", sent.Get("Body"))
	}
	if len(store.checkins) != 1 || store.checkins[0].Status != people.CheckinSent {
		t.Fatalf("checkins = %+v", store.checkins)
	}
}

func TestCheckRemindersJob(t *testing.T) {
	due := serveNow.Add(2 * time.Minute)
	later := serveNow.Add(2 * time.Hour)
	store := &memStore{reminders: []people.Reminder{
		{ID: "r1", Action: "call John", Status: people.ReminderPending, DueAt: &due},
		{ID: "r2", Action: "email Sarah", Status: people.ReminderPending, DueAt: &later},
	}}
	app, capture := newTestServer(t, store)

	out := jobPost(t, app.URL+"/jobs/check-reminders")
	if out["ok"] != true || out["sent"] != float64(1) {
		t.Fatalf("response = %v", out)
	}
	if len(capture.forms) != 1 {
		t.Fatalf("sends = %d", len(capture.forms))
	}
	sent := capture.forms[0]
	if sent.Get("To") != "+19785550100" {
		t.Fatalf("To = %q", sent.Get("To"))
	}
	if sent.Get("Body") != "🔔 Reminder: call John (due at 09:32 AM)" {
		t.Fatalf("Body = %q", sent.Get("Body"))
	}
	if len(store.markSent) != 1 || store.markSent[0] != "r1" {
		t.Fatalf("markSent = %v", store.markSent)
	}
}
