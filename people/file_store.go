package people

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/thebrunchguy/sms-controller/internal/fsstore"
)

const (
	peopleFileVersion  = 1
	recordsFileVersion = 1
)

type peopleFile struct {
	Version int      `yaml:"version"`
	People  []Person `yaml:"people"`
}

type reminderFile struct {
	Version int        `json:"version"`
	Records []Reminder `json:"records"`
}

type noteFile struct {
	Version int    `json:"version"`
	Records []Note `json:"records"`
}

type followupFile struct {
	Version int        `json:"version"`
	Records []Followup `json:"records"`
}

type checkinFile struct {
	Version int       `json:"version"`
	Records []Checkin `json:"records"`
}

// FileStore keeps all records under one directory: people as YAML, the
// append-heavy record sets as versioned JSON files, and the message
// transcript as JSONL. Mutations run under a file lock so concurrent
// processes do not clobber each other.
type FileStore struct {
	root string

	mu       sync.Mutex
	messages *fsstore.JSONLWriter
	now      func() time.Time
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: strings.TrimSpace(root), now: time.Now}
}

func (s *FileStore) Ensure(ctx context.Context) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fsstore.EnsureDir(s.root, 0o700)
}

// Close flushes the transcript writer.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages == nil {
		return nil
	}
	err := s.messages.Close()
	s.messages = nil
	return err
}

func (s *FileStore) peoplePath() string    { return filepath.Join(s.root, "people.yaml") }
func (s *FileStore) remindersPath() string { return filepath.Join(s.root, "reminders.json") }
func (s *FileStore) notesPath() string     { return filepath.Join(s.root, "notes.json") }
func (s *FileStore) followupsPath() string { return filepath.Join(s.root, "followups.json") }
func (s *FileStore) checkinsPath() string  { return filepath.Join(s.root, "checkins.json") }
func (s *FileStore) messagesPath() string  { return filepath.Join(s.root, "messages.jsonl") }
func (s *FileStore) lockPath() string      { return filepath.Join(s.root, "state.lock") }

func (s *FileStore) nowUTC() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func ensureNotCanceled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

func (s *FileStore) loadPeopleLocked() ([]Person, error) {
	content, found, err := fsstore.ReadText(s.peoplePath())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var file peopleFile
	if err := yaml.Unmarshal([]byte(content), &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.peoplePath(), err)
	}
	return file.People, nil
}

func (s *FileStore) savePeopleLocked(items []Person) error {
	out, err := yaml.Marshal(peopleFile{Version: peopleFileVersion, People: items})
	if err != nil {
		return err
	}
	return fsstore.WriteTextAtomic(s.peoplePath(), string(out), fsstore.FileOptions{})
}

func (s *FileStore) ListPeople(ctx context.Context) ([]Person, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPeopleLocked()
}

func (s *FileStore) GetPersonByPhone(ctx context.Context, phone string) (Person, bool, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return Person{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadPeopleLocked()
	if err != nil {
		return Person{}, false, err
	}
	key := phoneKey(phone)
	if key == "" {
		return Person{}, false, nil
	}
	for _, p := range items {
		if phoneKey(p.Phone) == key {
			return p, true, nil
		}
	}
	return Person{}, false, nil
}

func (s *FileStore) CreatePerson(ctx context.Context, p Person) (Person, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return Person{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fsstore.WithLock(ctx, s.lockPath(), func() error {
		items, err := s.loadPeopleLocked()
		if err != nil {
			return err
		}
		for _, existing := range items {
			if strings.EqualFold(strings.TrimSpace(existing.Name), strings.TrimSpace(p.Name)) {
				return fmt.Errorf("%w: %s", ErrExists, p.Name)
			}
		}
		if strings.TrimSpace(p.ID) == "" {
			p.ID = uuid.NewString()
		}
		items = append(items, p)
		return s.savePeopleLocked(items)
	})
	if err != nil {
		return Person{}, err
	}
	return p, nil
}

func (s *FileStore) UpdatePerson(ctx context.Context, id string, fields map[string]any) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return fsstore.WithLock(ctx, s.lockPath(), func() error {
		items, err := s.loadPeopleLocked()
		if err != nil {
			return err
		}
		for i := range items {
			if items[i].ID != id {
				continue
			}
			for name, value := range fields {
				applyPersonField(&items[i], name, value)
			}
			return s.savePeopleLocked(items)
		}
		return fmt.Errorf("%w: person %s", ErrNotFound, id)
	})
}

func applyPersonField(p *Person, name string, value any) {
	switch name {
	case FieldName:
		p.Name = asString(value)
	case FieldPhone:
		p.Phone = asString(value)
	case FieldEmail:
		p.Email = asString(value)
	case FieldCompany:
		p.Company = asString(value)
	case FieldRole:
		p.Role = asString(value)
	case FieldCity:
		p.City = asString(value)
	case FieldBirthday:
		p.Birthday = asString(value)
	case FieldLinkedIn:
		p.LinkedIn = asString(value)
	case FieldHowWeMet:
		p.HowWeMet = asString(value)
	case FieldLastConfirmed:
		p.LastConfirmed = asString(value)
	case FieldTags:
		switch v := value.(type) {
		case []string:
			p.Tags = v
		case string:
			p.Tags = splitTags(v)
		}
	case FieldOptOut:
		switch v := value.(type) {
		case bool:
			p.OptOut = v
		case string:
			p.OptOut = strings.EqualFold(strings.TrimSpace(v), "true")
		}
	}
}

func asString(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func splitTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// phoneKey reduces a phone number to its digits, dropping a US country
// prefix, so "+1 (555) 123-4567" and "5551234567" compare equal.
func phoneKey(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	return digits
}

func (s *FileStore) loadRemindersLocked() ([]Reminder, error) {
	var file reminderFile
	if _, err := fsstore.ReadJSON(s.remindersPath(), &file); err != nil {
		return nil, err
	}
	return file.Records, nil
}

func (s *FileStore) saveRemindersLocked(items []Reminder) error {
	file := reminderFile{Version: recordsFileVersion, Records: items}
	return fsstore.WriteJSONAtomic(s.remindersPath(), file, fsstore.FileOptions{})
}

func (s *FileStore) CreateReminder(ctx context.Context, r Reminder) (Reminder, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return Reminder{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ReminderPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.nowUTC()
	}

	err := fsstore.WithLock(ctx, s.lockPath(), func() error {
		items, err := s.loadRemindersLocked()
		if err != nil {
			return err
		}
		return s.saveRemindersLocked(append(items, r))
	})
	if err != nil {
		return Reminder{}, err
	}
	return r, nil
}

func (s *FileStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRemindersLocked()
}

func (s *FileStore) ListDueReminders(ctx context.Context, cutoff time.Time) ([]Reminder, error) {
	items, err := s.ListReminders(ctx)
	if err != nil {
		return nil, err
	}
	var due []Reminder
	for _, r := range items {
		if r.Status != ReminderPending || r.DueAt == nil {
			continue
		}
		if !r.DueAt.After(cutoff) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (s *FileStore) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return fsstore.WithLock(ctx, s.lockPath(), func() error {
		items, err := s.loadRemindersLocked()
		if err != nil {
			return err
		}
		for i := range items {
			if items[i].ID == id {
				items[i].Status = ReminderSent
				sentAt := at.UTC()
				items[i].SentAt = &sentAt
				return s.saveRemindersLocked(items)
			}
		}
		return fmt.Errorf("%w: reminder %s", ErrNotFound, id)
	})
}

func (s *FileStore) CreateNote(ctx context.Context, n Note) (Note, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return Note{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(n.ID) == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.nowUTC()
	}

	err := fsstore.WithLock(ctx, s.lockPath(), func() error {
		var file noteFile
		if _, err := fsstore.ReadJSON(s.notesPath(), &file); err != nil {
			return err
		}
		file.Version = recordsFileVersion
		file.Records = append(file.Records, n)
		return fsstore.WriteJSONAtomic(s.notesPath(), file, fsstore.FileOptions{})
	})
	if err != nil {
		return Note{}, err
	}
	return n, nil
}

func (s *FileStore) ListNotes(ctx context.Context) ([]Note, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var file noteFile
	if _, err := fsstore.ReadJSON(s.notesPath(), &file); err != nil {
		return nil, err
	}
	return file.Records, nil
}

func (s *FileStore) CreateFollowup(ctx context.Context, f Followup) (Followup, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return Followup{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(f.ID) == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = "Scheduled"
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.nowUTC()
	}

	err := fsstore.WithLock(ctx, s.lockPath(), func() error {
		var file followupFile
		if _, err := fsstore.ReadJSON(s.followupsPath(), &file); err != nil {
			return err
		}
		file.Version = recordsFileVersion
		file.Records = append(file.Records, f)
		return fsstore.WriteJSONAtomic(s.followupsPath(), file, fsstore.FileOptions{})
	})
	if err != nil {
		return Followup{}, err
	}
	return f, nil
}

func (s *FileStore) loadCheckinsLocked() (checkinFile, error) {
	var file checkinFile
	if _, err := fsstore.ReadJSON(s.checkinsPath(), &file); err != nil {
		return checkinFile{}, err
	}
	file.Version = recordsFileVersion
	return file, nil
}

func (s *FileStore) UpsertCheckin(ctx context.Context, personID, month, status string) (Checkin, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return Checkin{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Checkin
	err := fsstore.WithLock(ctx, s.lockPath(), func() error {
		file, err := s.loadCheckinsLocked()
		if err != nil {
			return err
		}
		for i := range file.Records {
			if file.Records[i].PersonID == personID && file.Records[i].Month == month {
				file.Records[i].Status = status
				file.Records[i].UpdatedAt = s.nowUTC()
				out = file.Records[i]
				return fsstore.WriteJSONAtomic(s.checkinsPath(), file, fsstore.FileOptions{})
			}
		}
		out = Checkin{
			ID:        uuid.NewString(),
			PersonID:  personID,
			Month:     month,
			Status:    status,
			UpdatedAt: s.nowUTC(),
		}
		file.Records = append(file.Records, out)
		return fsstore.WriteJSONAtomic(s.checkinsPath(), file, fsstore.FileOptions{})
	})
	if err != nil {
		return Checkin{}, err
	}
	return out, nil
}

func (s *FileStore) UpdateCheckinStatus(ctx context.Context, id, status string) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return fsstore.WithLock(ctx, s.lockPath(), func() error {
		file, err := s.loadCheckinsLocked()
		if err != nil {
			return err
		}
		for i := range file.Records {
			if file.Records[i].ID == id {
				file.Records[i].Status = status
				file.Records[i].UpdatedAt = s.nowUTC()
				return fsstore.WriteJSONAtomic(s.checkinsPath(), file, fsstore.FileOptions{})
			}
		}
		return fmt.Errorf("%w: checkin %s", ErrNotFound, id)
	})
}

func (s *FileStore) ListCheckins(ctx context.Context) ([]Checkin, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.loadCheckinsLocked()
	if err != nil {
		return nil, err
	}
	return file.Records, nil
}

func (s *FileStore) LogMessage(ctx context.Context, m Message) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.nowUTC()
	}
	if s.messages == nil {
		w, err := fsstore.NewJSONLWriter(s.messagesPath(), fsstore.JSONLOptions{FlushEachWrite: true})
		if err != nil {
			return err
		}
		s.messages = w
	}
	return s.messages.AppendJSON(m)
}
