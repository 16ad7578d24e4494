// Package airtable implements the record stores over the Airtable REST API.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thebrunchguy/sms-controller/people"
)

const defaultBaseURL = "https://api.airtable.com/v0"

// Tables names the tables inside the base. Zero values fall back to the
// conventional names.
type Tables struct {
	People    string
	Checkins  string
	Messages  string
	Reminders string
	Notes     string
	Followups string
}

func (t Tables) withDefaults() Tables {
	if t.People == "" {
		t.People = "People"
	}
	if t.Checkins == "" {
		t.Checkins = "Check-ins"
	}
	if t.Messages == "" {
		t.Messages = "Messages"
	}
	if t.Reminders == "" {
		t.Reminders = "Reminders"
	}
	if t.Notes == "" {
		t.Notes = "Notes"
	}
	if t.Followups == "" {
		t.Followups = "Followups"
	}
	return t
}

type Options struct {
	BaseURL string
	Tables  Tables
}

// Client talks to one Airtable base and satisfies people.Store.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	baseID  string
	tables  Tables
}

func New(httpClient *http.Client, apiKey, baseID string, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		baseID:  strings.TrimSpace(baseID),
		tables:  opts.Tables.withDefaults(),
	}
}

type record struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type recordList struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, body, out any) error {
	if c.apiKey == "" || c.baseID == "" {
		return fmt.Errorf("airtable credentials are required")
	}
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.baseID, url.PathEscape(table))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("airtable %s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("airtable read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("airtable http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("airtable decode response: %w", err)
		}
	}
	return nil
}

// listAll walks every page of a table, optionally filtered by formula.
func (c *Client) listAll(ctx context.Context, table, filter string) ([]record, error) {
	var records []record
	offset := ""
	for {
		query := url.Values{}
		if filter != "" {
			query.Set("filterByFormula", filter)
		}
		if offset != "" {
			query.Set("offset", offset)
		}
		var page recordList
		if err := c.do(ctx, http.MethodGet, table, query, nil, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		if page.Offset == "" {
			return records, nil
		}
		offset = page.Offset
	}
}

func (c *Client) createRecord(ctx context.Context, table string, fields map[string]any) (string, error) {
	var out recordList
	body := recordList{Records: []record{{Fields: fields}}}
	if err := c.do(ctx, http.MethodPost, table, nil, body, &out); err != nil {
		return "", err
	}
	if len(out.Records) == 0 {
		return "", fmt.Errorf("airtable create returned no records")
	}
	return out.Records[0].ID, nil
}

func (c *Client) updateRecord(ctx context.Context, table, id string, fields map[string]any) error {
	body := recordList{Records: []record{{ID: id, Fields: fields}}}
	return c.do(ctx, http.MethodPatch, table, nil, body, nil)
}

// quoteFormula escapes a value for use inside a single-quoted formula string.
func quoteFormula(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func fieldBool(fields map[string]any, key string) bool {
	if v, ok := fields[key].(bool); ok {
		return v
	}
	return false
}

func fieldStrings(fields map[string]any, key string) []string {
	items, ok := fields[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func fieldTime(fields map[string]any, key string) *time.Time {
	s := fieldString(fields, key)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func decodePerson(r record) people.Person {
	return people.Person{
		ID:            r.ID,
		Name:          fieldString(r.Fields, "Name"),
		Phone:         fieldString(r.Fields, "Phone"),
		Email:         fieldString(r.Fields, "Email"),
		Company:       fieldString(r.Fields, "Company"),
		Role:          fieldString(r.Fields, "Role"),
		City:          fieldString(r.Fields, "City"),
		Birthday:      fieldString(r.Fields, "Birthday"),
		LinkedIn:      fieldString(r.Fields, "LinkedIn"),
		HowWeMet:      fieldString(r.Fields, "How We Met"),
		Tags:          fieldStrings(r.Fields, "Tags"),
		Consent:       fieldBool(r.Fields, "Consent"),
		OptOut:        fieldBool(r.Fields, "Opt-out"),
		Frequency:     fieldString(r.Fields, "Check-in Frequency"),
		LastConfirmed: fieldString(r.Fields, "Last Confirmed"),
	}
}

func (c *Client) ListPeople(ctx context.Context) ([]people.Person, error) {
	records, err := c.listAll(ctx, c.tables.People, "")
	if err != nil {
		return nil, err
	}
	out := make([]people.Person, 0, len(records))
	for _, r := range records {
		out = append(out, decodePerson(r))
	}
	return out, nil
}

func (c *Client) GetPersonByPhone(ctx context.Context, phone string) (people.Person, bool, error) {
	filter := fmt.Sprintf("{Phone} = %s", quoteFormula(phone))
	records, err := c.listAll(ctx, c.tables.People, filter)
	if err != nil {
		return people.Person{}, false, err
	}
	if len(records) == 0 {
		return people.Person{}, false, nil
	}
	return decodePerson(records[0]), true, nil
}

func (c *Client) CreatePerson(ctx context.Context, p people.Person) (people.Person, error) {
	if existing, found, err := c.GetPersonByName(ctx, p.Name); err != nil {
		return people.Person{}, err
	} else if found {
		return people.Person{}, fmt.Errorf("%w: %s", people.ErrExists, existing.Name)
	}

	fields := map[string]any{"Name": p.Name}
	if p.Phone != "" {
		fields["Phone"] = p.Phone
	}
	if p.Email != "" {
		fields["Email"] = p.Email
	}
	id, err := c.createRecord(ctx, c.tables.People, fields)
	if err != nil {
		return people.Person{}, err
	}
	p.ID = id
	return p, nil
}

// GetPersonByName does an exact, case-insensitive name lookup.
func (c *Client) GetPersonByName(ctx context.Context, name string) (people.Person, bool, error) {
	filter := fmt.Sprintf("LOWER({Name}) = %s", quoteFormula(strings.ToLower(strings.TrimSpace(name))))
	records, err := c.listAll(ctx, c.tables.People, filter)
	if err != nil {
		return people.Person{}, false, err
	}
	if len(records) == 0 {
		return people.Person{}, false, nil
	}
	return decodePerson(records[0]), true, nil
}

func (c *Client) UpdatePerson(ctx context.Context, id string, fields map[string]any) error {
	return c.updateRecord(ctx, c.tables.People, id, fields)
}

func decodeReminder(r record) people.Reminder {
	created := time.Time{}
	if t := fieldTime(r.Fields, "Created At"); t != nil {
		created = *t
	}
	return people.Reminder{
		ID:         r.ID,
		PersonName: fieldString(r.Fields, "Person Name"),
		Action:     fieldString(r.Fields, "Action"),
		Timeline:   fieldString(r.Fields, "Timeline"),
		Priority:   fieldString(r.Fields, "Priority"),
		Status:     fieldString(r.Fields, "Status"),
		DueAt:      fieldTime(r.Fields, "Due At"),
		SentAt:     fieldTime(r.Fields, "Sent At"),
		CreatedAt:  created,
	}
}

func (c *Client) CreateReminder(ctx context.Context, r people.Reminder) (people.Reminder, error) {
	if r.Status == "" {
		r.Status = people.ReminderPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	fields := map[string]any{
		"Person Name": r.PersonName,
		"Action":      r.Action,
		"Status":      r.Status,
		"Created At":  r.CreatedAt.Format(time.RFC3339),
	}
	if r.Timeline != "" {
		fields["Timeline"] = r.Timeline
	}
	if r.Priority != "" {
		fields["Priority"] = r.Priority
	}
	if r.DueAt != nil {
		fields["Due At"] = r.DueAt.Format(time.RFC3339)
	}
	id, err := c.createRecord(ctx, c.tables.Reminders, fields)
	if err != nil {
		return people.Reminder{}, err
	}
	r.ID = id
	return r, nil
}

func (c *Client) ListReminders(ctx context.Context) ([]people.Reminder, error) {
	records, err := c.listAll(ctx, c.tables.Reminders, "")
	if err != nil {
		return nil, err
	}
	out := make([]people.Reminder, 0, len(records))
	for _, r := range records {
		out = append(out, decodeReminder(r))
	}
	return out, nil
}

func (c *Client) ListDueReminders(ctx context.Context, cutoff time.Time) ([]people.Reminder, error) {
	filter := fmt.Sprintf("AND({Status} = 'Pending', NOT(IS_AFTER({Due At}, %s)))",
		quoteFormula(cutoff.UTC().Format(time.RFC3339)))
	records, err := c.listAll(ctx, c.tables.Reminders, filter)
	if err != nil {
		return nil, err
	}
	out := make([]people.Reminder, 0, len(records))
	for _, r := range records {
		out = append(out, decodeReminder(r))
	}
	return out, nil
}

func (c *Client) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	return c.updateRecord(ctx, c.tables.Reminders, id, map[string]any{
		"Status":  people.ReminderSent,
		"Sent At": at.UTC().Format(time.RFC3339),
	})
}

func (c *Client) CreateNote(ctx context.Context, n people.Note) (people.Note, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	fields := map[string]any{
		"Content":    n.Content,
		"Created At": n.CreatedAt.Format(time.RFC3339),
	}
	if n.PersonID != "" {
		fields["Person"] = []string{n.PersonID}
	}
	if n.PersonName != "" {
		fields["Person Name"] = n.PersonName
	}
	if n.Source != "" {
		fields["Created By"] = n.Source
	}
	id, err := c.createRecord(ctx, c.tables.Notes, fields)
	if err != nil {
		return people.Note{}, err
	}
	n.ID = id
	return n, nil
}

func (c *Client) ListNotes(ctx context.Context) ([]people.Note, error) {
	records, err := c.listAll(ctx, c.tables.Notes, "")
	if err != nil {
		return nil, err
	}
	out := make([]people.Note, 0, len(records))
	for _, r := range records {
		created := time.Time{}
		if t := fieldTime(r.Fields, "Created At"); t != nil {
			created = *t
		}
		out = append(out, people.Note{
			ID:         r.ID,
			PersonName: fieldString(r.Fields, "Person Name"),
			Content:    fieldString(r.Fields, "Content"),
			Source:     fieldString(r.Fields, "Created By"),
			CreatedAt:  created,
		})
	}
	return out, nil
}

func (c *Client) CreateFollowup(ctx context.Context, f people.Followup) (people.Followup, error) {
	if f.Status == "" {
		f.Status = "Scheduled"
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	fields := map[string]any{
		"Reason":     f.Reason,
		"Timeline":   f.Timeline,
		"Status":     f.Status,
		"Created At": f.CreatedAt.Format(time.RFC3339),
		"Created By": "SMS",
	}
	if f.PersonID != "" {
		fields["Person"] = []string{f.PersonID}
	}
	if f.PersonName != "" {
		fields["Person Name"] = f.PersonName
	}
	if f.ScheduledAt != nil {
		fields["Scheduled Date"] = f.ScheduledAt.Format(time.RFC3339)
	}
	id, err := c.createRecord(ctx, c.tables.Followups, fields)
	if err != nil {
		return people.Followup{}, err
	}
	f.ID = id
	return f, nil
}

func decodeCheckin(r record) people.Checkin {
	personID := ""
	if links := fieldStrings(r.Fields, "Person"); len(links) > 0 {
		personID = links[0]
	}
	updated := time.Time{}
	if t := fieldTime(r.Fields, "Last Message At"); t != nil {
		updated = *t
	}
	return people.Checkin{
		ID:        r.ID,
		PersonID:  personID,
		Month:     fieldString(r.Fields, "Month"),
		Status:    fieldString(r.Fields, "Status"),
		UpdatedAt: updated,
	}
}

func (c *Client) UpsertCheckin(ctx context.Context, personID, month, status string) (people.Checkin, error) {
	filter := fmt.Sprintf("AND({Person} = %s, {Month} = %s)", quoteFormula(personID), quoteFormula(month))
	records, err := c.listAll(ctx, c.tables.Checkins, filter)
	if err != nil {
		return people.Checkin{}, err
	}

	now := time.Now().UTC()
	fields := map[string]any{
		"Person":          []string{personID},
		"Month":           month,
		"Status":          status,
		"Last Message At": now.Format(time.RFC3339),
	}
	if len(records) > 0 {
		id := records[0].ID
		if err := c.updateRecord(ctx, c.tables.Checkins, id, fields); err != nil {
			return people.Checkin{}, err
		}
		return people.Checkin{ID: id, PersonID: personID, Month: month, Status: status, UpdatedAt: now}, nil
	}

	id, err := c.createRecord(ctx, c.tables.Checkins, fields)
	if err != nil {
		return people.Checkin{}, err
	}
	return people.Checkin{ID: id, PersonID: personID, Month: month, Status: status, UpdatedAt: now}, nil
}

func (c *Client) UpdateCheckinStatus(ctx context.Context, id, status string) error {
	return c.updateRecord(ctx, c.tables.Checkins, id, map[string]any{"Status": status})
}

func (c *Client) ListCheckins(ctx context.Context) ([]people.Checkin, error) {
	records, err := c.listAll(ctx, c.tables.Checkins, "")
	if err != nil {
		return nil, err
	}
	out := make([]people.Checkin, 0, len(records))
	for _, r := range records {
		out = append(out, decodeCheckin(r))
	}
	return out, nil
}

func (c *Client) LogMessage(ctx context.Context, m people.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	fields := map[string]any{
		"Direction": m.Direction,
		"Body":      m.Body,
		"When":      m.CreatedAt.Format(time.RFC3339),
	}
	if m.CheckinID != "" {
		fields["Check-in"] = []string{m.CheckinID}
	}
	if m.From != "" {
		fields["From"] = m.From
	}
	if m.ProviderSID != "" {
		fields["Twilio SID"] = m.ProviderSID
	}
	_, err := c.createRecord(ctx, c.tables.Messages, fields)
	return err
}
