package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/thebrunchguy/sms-controller/internal/jsonutil"
	"github.com/thebrunchguy/sms-controller/llm"
)

const defaultClassifyTimeout = 10 * time.Second

// requiredClassificationKeys must all be present in a model response for it
// to be trusted; anything less falls back to keyword classification.
var requiredClassificationKeys = []string{"intent", "confidence", "target_table", "extracted_data"}

// RemoteClassifier asks a language model to classify the message, with the
// keyword classifier as its fallback. A remote failure of any kind, from
// transport errors to malformed JSON, degrades to the fallback instead of
// surfacing an error to the sender.
type RemoteClassifier struct {
	Client   llm.Client
	Model    string
	Timeout  time.Duration
	Fallback *KeywordClassifier
	Logger   *slog.Logger
}

func NewRemoteClassifier(client llm.Client, model string, logger *slog.Logger) *RemoteClassifier {
	return &RemoteClassifier{
		Client:   client,
		Model:    strings.TrimSpace(model),
		Fallback: &KeywordClassifier{},
		Logger:   logger,
	}
}

func (x *RemoteClassifier) Classify(ctx context.Context, message string, personContext map[string]any) (Classification, error) {
	if guarded, ok := birthdayGuard(message); ok {
		return guarded, nil
	}

	fallback := x.fallback()
	if x == nil || x.Client == nil || x.Model == "" {
		return fallback.Classify(ctx, message, personContext)
	}

	timeout := x.Timeout
	if timeout <= 0 {
		timeout = defaultClassifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := x.Client.Chat(ctx, llm.Request{
		Model:     x.Model,
		ForceJSON: true,
		Messages: []llm.Message{
			{Role: "system", Content: classifySystemPrompt(message, personContext)},
		},
		Parameters: map[string]any{
			"temperature": 0.1,
			"max_tokens":  500,
		},
	})
	if err != nil {
		x.warn("intent_classify_remote_failed", err)
		return fallback.Classify(ctx, message, personContext)
	}

	cls, err := decodeClassification(res.Text)
	if err != nil {
		x.warn("intent_classify_decode_failed", err)
		return fallback.Classify(ctx, message, personContext)
	}
	return cls, nil
}

func (x *RemoteClassifier) fallback() *KeywordClassifier {
	if x != nil && x.Fallback != nil {
		return x.Fallback
	}
	return &KeywordClassifier{}
}

func (x *RemoteClassifier) warn(msg string, err error) {
	if x != nil && x.Logger != nil {
		x.Logger.Warn(msg, "error", err)
	}
}

func classifySystemPrompt(message string, personContext map[string]any) string {
	contextJSON, _ := json.MarshalIndent(personContext, "", "  ")
	return fmt.Sprintf(`You are an intent classifier for SMS messages about people management and relationship tracking.

Current person context: %s

Classify the user's intent and determine which table should be updated from this message: %q

IMPORTANT: This system is ONLY used to update OTHER PEOPLE'S data, never the texter's own data. The texter is always updating someone else's information.

Available intents and their target tables:
- update_person_info -> Core People: updates to personal info (birthday, company, role, location)
- manage_tags -> Core People: adding or removing tags
- create_reminder -> Reminders: creating a reminder or task for future action
- create_note -> Core People: adding notes
- schedule_followup -> SMS Check-ins - From Core: scheduling future check-ins or meetings
- new_friend -> Core People: creating a new person record
- query_data -> Multiple: querying stored information (people, reminders, notes, checkins)
- no_change -> None: confirming no updates needed
- confirm_changes -> None: confirming previously proposed changes
- opt_out -> Core People: unsubscribing from messages
- unclear -> None: message is ambiguous or fits no other category

Extract relevant data based on the intent:
- update_person_info: ALWAYS extract target_person (whose info is being updated) AND field_updates with the fields to change (birthday, company, role, location). NEVER use the current person context. If no specific person is mentioned, classify as "unclear".
- manage_tags: extract tags_to_add and/or tags_to_remove arrays.
- create_reminder: extract reminder_action, reminder_timeline, and reminder_priority (low, medium, high).
- create_note: extract note_content.
- schedule_followup: extract followup_timeline and followup_reason.
- new_friend: extract friend_name.
- query_data: extract query_type (people, reminders, notes, checkins) and query_terms.

Return a JSON object with intent, confidence (0-1), target_table, and extracted_data.`, contextJSON, message)
}

type wireExtracted struct {
	TargetPerson     string         `json:"target_person"`
	TargetPersonName string         `json:"target_person_name"`
	FriendName       string         `json:"friend_name"`
	FieldUpdates     map[string]any `json:"field_updates"`
	TagsToAdd        []string       `json:"tags_to_add"`
	TagsToRemove     []string       `json:"tags_to_remove"`
	ReminderAction   string         `json:"reminder_action"`
	ReminderTimeline string         `json:"reminder_timeline"`
	ReminderPriority string         `json:"reminder_priority"`
	NoteContent      string         `json:"note_content"`
	FollowupTimeline string         `json:"followup_timeline"`
	FollowupReason   string         `json:"followup_reason"`
	QueryType        string         `json:"query_type"`
	QueryTerms       any            `json:"query_terms"`
	ErrorMessage     string         `json:"error_message"`
}

// decodeClassification validates and converts a model response. The schema
// requires all four top-level keys; confidence is accepted as a number or a
// numeric string and clamped to [0,1].
func decodeClassification(text string) (Classification, error) {
	raw := jsonutil.StripFences(strings.TrimSpace(text))
	if raw == "" {
		return Classification{}, fmt.Errorf("empty classification response")
	}
	if !gjson.Valid(raw) {
		var v any
		if err := jsonutil.DecodeWithFallback(raw, &v); err != nil {
			return Classification{}, fmt.Errorf("invalid classification json: %w", err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return Classification{}, err
		}
		raw = string(b)
	}

	g := gjson.Parse(raw)
	for _, key := range requiredClassificationKeys {
		if !g.Get(key).Exists() {
			return Classification{}, fmt.Errorf("classification missing %q", key)
		}
	}

	intent := strings.TrimSpace(g.Get("intent").String())
	if !KnownKind(intent) {
		return Classification{}, fmt.Errorf("unknown intent %q", intent)
	}

	var wx wireExtracted
	if data := g.Get("extracted_data"); data.IsObject() {
		if err := jsonutil.DecodeWithFallback(data.Raw, &wx); err != nil {
			return Classification{}, fmt.Errorf("decode extracted_data: %w", err)
		}
	}

	return Classification{
		Intent:      Kind(intent),
		Confidence:  clamp(g.Get("confidence").Float(), 0, 1),
		TargetTable: g.Get("target_table").String(),
		Extracted:   wx.toExtracted(),
	}, nil
}

func (wx wireExtracted) toExtracted() Extracted {
	target := strings.TrimSpace(wx.TargetPerson)
	if target == "" {
		target = strings.TrimSpace(wx.TargetPersonName)
	}

	var updates map[string]string
	if len(wx.FieldUpdates) > 0 {
		updates = make(map[string]string, len(wx.FieldUpdates))
		for k, v := range wx.FieldUpdates {
			if v == nil {
				continue
			}
			updates[k] = fmt.Sprint(v)
		}
	}

	return Extracted{
		TargetPerson:     target,
		FriendName:       strings.TrimSpace(wx.FriendName),
		FieldUpdates:     updates,
		TagsToAdd:        wx.TagsToAdd,
		TagsToRemove:     wx.TagsToRemove,
		ReminderAction:   strings.TrimSpace(wx.ReminderAction),
		ReminderTimeline: strings.TrimSpace(wx.ReminderTimeline),
		ReminderPriority: strings.TrimSpace(wx.ReminderPriority),
		NoteContent:      strings.TrimSpace(wx.NoteContent),
		FollowupTimeline: strings.TrimSpace(wx.FollowupTimeline),
		FollowupReason:   strings.TrimSpace(wx.FollowupReason),
		QueryType:        strings.TrimSpace(wx.QueryType),
		QueryTerms:       queryTermList(wx.QueryTerms),
		ErrorMessage:     strings.TrimSpace(wx.ErrorMessage),
	}
}

// Models return query_terms as either a string or an array of strings.
func queryTermList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		var terms []string
		for _, item := range t {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				terms = append(terms, s)
			}
		}
		return terms
	default:
		return nil
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
