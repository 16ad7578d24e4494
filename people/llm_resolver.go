package people

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/thebrunchguy/sms-controller/internal/jsonutil"
	"github.com/thebrunchguy/sms-controller/llm"
)

const (
	defaultResolveTimeout       = 10 * time.Second
	defaultResolveMinConfidence = 0.7
)

// LLMResolver tries exact substring resolution first and asks a model to
// pick among the candidates only when that misses. Model picks below the
// confidence floor are discarded, so a fuzzy guess never beats no match.
type LLMResolver struct {
	Client llm.Client
	Model  string
	// MinConfidence gates model picks; only confidences strictly above
	// it are accepted. Defaults to 0.7.
	MinConfidence float64
	Timeout       time.Duration
	Logger        *slog.Logger
}

func NewLLMResolver(client llm.Client, model string, logger *slog.Logger) *LLMResolver {
	return &LLMResolver{
		Client: client,
		Model:  strings.TrimSpace(model),
		Logger: logger,
	}
}

func (x *LLMResolver) Resolve(ctx context.Context, name string, candidates []Person) (Person, bool, error) {
	if p, ok := ResolveByName(name, candidates); ok {
		return p, true, nil
	}
	if x == nil || x.Client == nil || x.Model == "" || len(candidates) == 0 {
		return Person{}, false, nil
	}

	timeout := x.Timeout
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	names := make([]string, 0, len(candidates))
	for _, p := range candidates {
		names = append(names, p.Name)
	}
	payload, _ := json.Marshal(map[string]any{
		"query":       name,
		"known_names": names,
		"rules": []string{
			"Return JSON only.",
			"Output schema: {\"name\":\"...\",\"confidence\":0..1}.",
			"name must be copied verbatim from known_names, or empty when nothing plausibly matches.",
			"Treat nicknames, misspellings, and partial names as candidates for a match.",
		},
	})

	res, err := x.Client.Chat(ctx, llm.Request{
		Model:     x.Model,
		ForceJSON: true,
		Messages: []llm.Message{
			{Role: "system", Content: "You match a possibly misspelled person name against a list of known names. Return JSON only, no markdown."},
			{Role: "user", Content: string(payload)},
		},
		Parameters: map[string]any{
			"temperature": 0,
			"max_tokens":  200,
		},
	})
	if err != nil {
		if x.Logger != nil {
			x.Logger.Warn("resolve_remote_failed", "error", err)
		}
		return Person{}, false, nil
	}

	var out struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	}
	raw := strings.TrimSpace(res.Text)
	if raw == "" {
		return Person{}, false, nil
	}
	if err := jsonutil.DecodeWithFallback(raw, &out); err != nil {
		if x.Logger != nil {
			x.Logger.Warn("resolve_decode_failed", "error", err)
		}
		return Person{}, false, nil
	}

	minConf := x.MinConfidence
	if minConf <= 0 {
		minConf = defaultResolveMinConfidence
	}
	// The floor is exclusive: a pick must beat it, not merely meet it.
	picked := strings.TrimSpace(out.Name)
	if picked == "" || out.Confidence <= minConf {
		return Person{}, false, nil
	}
	for _, p := range candidates {
		if strings.EqualFold(strings.TrimSpace(p.Name), picked) {
			return p, true, nil
		}
	}
	if x.Logger != nil {
		x.Logger.Warn("resolve_unknown_pick", "picked", picked)
	}
	return Person{}, false, nil
}
