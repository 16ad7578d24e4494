package intent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/thebrunchguy/sms-controller/internal/jsonutil"
	"github.com/thebrunchguy/sms-controller/llm"
)

// LegacyExtraction is the structured result of reading a free-form reply to
// a monthly check-in: which profile fields changed, a human confirmation
// line, and how sure the extractor is.
type LegacyExtraction struct {
	NoChange         bool
	Company          string
	Role             string
	City             string
	TagsAdd          []string
	TagsRemove       []string
	ConfirmationText string
	Confidence       float64
}

// Updates returns the record fields this extraction would change.
func (e LegacyExtraction) Updates() map[string]any {
	updates := map[string]any{}
	if e.Company != "" {
		updates["Company"] = e.Company
	}
	if e.Role != "" {
		updates["Role"] = e.Role
	}
	if e.City != "" {
		updates["City"] = e.City
	}
	return updates
}

// HasChanges reports whether anything would be written.
func (e LegacyExtraction) HasChanges() bool {
	return !e.NoChange && (e.Company != "" || e.Role != "" || e.City != "" || len(e.TagsAdd) > 0 || len(e.TagsRemove) > 0)
}

// LegacyExtractor handles replies to monthly check-in prompts. Unlike the
// command classifiers, this path edits the sender's own record: the sender
// describes what changed about themselves and confirms with a follow-up
// "yes". Pending extractions are held per phone number until confirmed or
// replaced.
type LegacyExtractor struct {
	Client  llm.Client
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]LegacyExtraction
}

func NewLegacyExtractor(client llm.Client, model string, logger *slog.Logger) *LegacyExtractor {
	return &LegacyExtractor{
		Client: client,
		Model:  strings.TrimSpace(model),
		Logger: logger,
	}
}

// Extract reads profile updates out of inbound, grounded on the sender's
// current snapshot. Remote failures degrade to keyword extraction.
func (x *LegacyExtractor) Extract(ctx context.Context, snapshot, inbound string) LegacyExtraction {
	if x == nil || x.Client == nil || x.Model == "" {
		return keywordExtract(inbound)
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
			{Role: "system", Content: legacySystemPrompt(snapshot, inbound)},
		},
		Parameters: map[string]any{
			"temperature": 0.1,
			"max_tokens":  500,
		},
	})
	if err != nil {
		if x.Logger != nil {
			x.Logger.Warn("checkin_extract_remote_failed", "error", err)
		}
		return keywordExtract(inbound)
	}

	out, err := decodeLegacyExtraction(res.Text)
	if err != nil {
		if x.Logger != nil {
			x.Logger.Warn("checkin_extract_decode_failed", "error", err)
		}
		return keywordExtract(inbound)
	}
	return out
}

// Remember holds an extraction awaiting a "yes" from the sender.
func (x *LegacyExtractor) Remember(phone string, e LegacyExtraction) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.pending == nil {
		x.pending = make(map[string]LegacyExtraction)
	}
	x.pending[phone] = e
}

// TakePending removes and returns the extraction waiting on phone.
func (x *LegacyExtractor) TakePending(phone string) (LegacyExtraction, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.pending[phone]
	if ok {
		delete(x.pending, phone)
	}
	return e, ok
}

// ClearPending drops any extraction waiting on phone.
func (x *LegacyExtractor) ClearPending(phone string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.pending, phone)
}

func legacySystemPrompt(snapshot, inbound string) string {
	return fmt.Sprintf(`You are an assistant that parses SMS updates about people's professional information.

Current information for this person:
%s

The user has sent this SMS: %q

Extract any updates to their professional information and return a structured response.

Rules:
1. If the user says "no change" or similar, set no_change=true and confidence=1.0
2. Extract company, role, city changes if mentioned
3. For tags, identify any new tags to add or existing tags to remove
4. Write a clear confirmation_text that summarizes what you understood
5. Set confidence based on how clear the user's intent is (0.0-1.0)

Return a JSON object with keys: no_change (boolean), company, role, city (strings), tags_add, tags_remove (arrays of strings), confirmation_text (string, required), confidence (number 0-1, required).`, snapshot, inbound)
}

type legacyWire struct {
	NoChange         bool     `json:"no_change"`
	Company          string   `json:"company"`
	Role             string   `json:"role"`
	City             string   `json:"city"`
	TagsAdd          []string `json:"tags_add"`
	TagsRemove       []string `json:"tags_remove"`
	ConfirmationText string   `json:"confirmation_text"`
}

func decodeLegacyExtraction(text string) (LegacyExtraction, error) {
	raw := jsonutil.StripFences(strings.TrimSpace(text))
	if raw == "" {
		return LegacyExtraction{}, fmt.Errorf("empty extraction response")
	}

	var wire legacyWire
	if err := jsonutil.DecodeWithFallback(raw, &wire); err != nil {
		return LegacyExtraction{}, fmt.Errorf("decode extraction: %w", err)
	}

	g := gjson.Parse(raw)
	if !g.Get("confirmation_text").Exists() || !g.Get("confidence").Exists() {
		return LegacyExtraction{}, fmt.Errorf("extraction missing required fields")
	}

	confVal := g.Get("confidence")
	conf := confVal.Float()
	if confVal.Type == gjson.String {
		if _, err := strconv.ParseFloat(strings.TrimSpace(confVal.String()), 64); err != nil {
			conf = 0.5
		}
	}

	return LegacyExtraction{
		NoChange:         wire.NoChange,
		Company:          strings.TrimSpace(wire.Company),
		Role:             strings.TrimSpace(wire.Role),
		City:             strings.TrimSpace(wire.City),
		TagsAdd:          wire.TagsAdd,
		TagsRemove:       wire.TagsRemove,
		ConfirmationText: strings.TrimSpace(wire.ConfirmationText),
		Confidence:       clamp(conf, 0, 1),
	}, nil
}

var (
	noChangeRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(no\s+change|no\s+changes?)\b`),
		regexp.MustCompile(`\b(nothing\s+changed?|same|all\s+good|correct|accurate)\b`),
		regexp.MustCompile(`\b(no\s+updates?|no\s+news)\b`),
	}
	optOutRe = regexp.MustCompile(`\b(stop|unsubscribe|opt.?out|quit)\b`)

	companyRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:left|quit|resigned\s+from|no\s+longer\s+at)\s+([A-Z][A-Za-z\s&]+?)(?:\s|$|,|\.)`),
		regexp.MustCompile(`(?:now\s+at|working\s+at|joined|started\s+at)\s+([A-Z][A-Za-z\s&]+?)(?:\s|$|,|\.)`),
		regexp.MustCompile(`(?:moved\s+to|switched\s+to)\s+([A-Z][A-Za-z\s&]+?)(?:\s|$|,|\.)`),
	}
	legacyRoleRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:as\s+an?\s+)([A-Z][A-Za-z\s]+?)(?:\s|$|,|\.)`),
		regexp.MustCompile(`(?:role\s+is\s+)([A-Z][A-Za-z\s]+?)(?:\s|$|,|\.)`),
		regexp.MustCompile(`(?:position\s+is\s+)([A-Z][A-Za-z\s]+?)(?:\s|$|,|\.)`),
	}
	cityRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:moved\s+to|relocated\s+to|now\s+in)\s+([A-Z][A-Za-z\s]+?)(?:\s|$|,|\.)`),
		regexp.MustCompile(`(?:based\s+in|located\s+in)\s+([A-Z][A-Za-z\s]+?)(?:\s|$|,|\.)`),
	}
)

// keywordExtract is the no-model path. Field values are matched against the
// raw text so capitalized names survive.
func keywordExtract(inbound string) LegacyExtraction {
	text := strings.TrimSpace(inbound)
	lower := strings.ToLower(text)

	for _, re := range noChangeRes {
		if re.MatchString(lower) {
			return LegacyExtraction{
				NoChange:         true,
				ConfirmationText: "I understand no changes are needed.",
				Confidence:       0.8,
			}
		}
	}
	if optOutRe.MatchString(lower) {
		return LegacyExtraction{
			ConfirmationText: "You have been unsubscribed from monthly check-ins.",
			Confidence:       0.9,
		}
	}

	out := LegacyExtraction{
		Company: firstSubmatch(companyRes, text),
		Role:    firstSubmatch(legacyRoleRes, text),
		City:    firstSubmatch(cityRes, text),
	}

	var changes []string
	if out.Company != "" {
		changes = append(changes, "company changed to "+out.Company)
	}
	if out.Role != "" {
		changes = append(changes, "role changed to "+out.Role)
	}
	if out.City != "" {
		changes = append(changes, "city changed to "+out.City)
	}

	if len(changes) == 0 {
		out.ConfirmationText = "I received your message but need more context. Please provide specific details about what changed."
		out.Confidence = 0.3
		return out
	}

	out.ConfirmationText = "I understand: " + strings.Join(changes, ", ") + ". Reply YES to confirm these changes."
	if len(changes) == 1 {
		out.Confidence = 0.6
	} else {
		out.Confidence = 0.4
	}
	return out
}

func firstSubmatch(res []*regexp.Regexp, text string) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
