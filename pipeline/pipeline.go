// Package pipeline interprets one inbound SMS end to end: fast-path
// keywords, the admin command grammar, intent classification with a
// confidence gate, and finally the command router.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/thebrunchguy/sms-controller/checkin"
	"github.com/thebrunchguy/sms-controller/intent"
	"github.com/thebrunchguy/sms-controller/people"
	"github.com/thebrunchguy/sms-controller/router"
)

const (
	// Classifications below this confidence are never routed.
	DefaultMinConfidence = 0.6

	clarificationReply = "I'm not sure I understood your message. Could you please rephrase or provide more details?"
	saveFailureReply   = "❌ I couldn't save your changes. Please try again."

	helpReply = `📋 Available Commands:
• new friend [Name] - Add a new friend
• update [Name]'s birthday [Date]
• tag [Name] with [Tag]
• remind me to [Action] [Timeline] - Create a reminder
• note: [Note] - Add a note
• follow up with [Name] [Timeline]
• no change - Confirm no updates needed
• stop - Unsubscribe from messages`

	adminHelpReply = `📋 Admin Commands:
• new friend [Name]
• add birthday [Name] [Date]
• add email [Name] [Email]
• add phone [Name] [Phone]
• add linkedin [Name] [URL]
• change role [Name] [Role]
• change company [Name] [Company]
• help/controls - Show commands`
)

var noChangePhrases = map[string]bool{
	"no change":       true,
	"no changes":      true,
	"nothing changed": true,
	"same":            true,
}

// Config wires a Pipeline. Classifier, Router, and People are required;
// Legacy is optional and enables the confirm-with-YES check-in flow.
type Config struct {
	Admins        []string
	Classifier    intent.Classifier
	Router        *router.Router
	Legacy        *intent.LegacyExtractor
	People        people.PersonStore
	MinConfidence float64
	Now           func() time.Time
	Logger        *slog.Logger
}

type Pipeline struct {
	admins        map[string]bool
	classifier    intent.Classifier
	router        *router.Router
	legacy        *intent.LegacyExtractor
	people        people.PersonStore
	minConfidence float64
	now           func() time.Time
	logger        *slog.Logger
}

func New(cfg Config) *Pipeline {
	admins := make(map[string]bool, len(cfg.Admins))
	for _, number := range cfg.Admins {
		if n := NormalizePhone(number); n != "" {
			admins[n] = true
		}
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		admins:        admins,
		classifier:    cfg.Classifier,
		router:        cfg.Router,
		legacy:        cfg.Legacy,
		people:        cfg.People,
		minConfidence: cfg.MinConfidence,
		now:           cfg.Now,
		logger:        cfg.Logger,
	}
}

// NormalizePhone strips whitespace and the leading US country prefix so
// numbers compare equal regardless of how the transport formats them.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+1")
	return s
}

// IsAdmin reports whether the number is on the admin allow-list.
func (p *Pipeline) IsAdmin(phone string) bool {
	return p.admins[NormalizePhone(phone)]
}

// Reply is the outcome of handling one inbound message.
type Reply struct {
	Text       string
	OK         bool
	Intent     intent.Kind
	Confidence float64

	// Sender is the resolved person record, when the phone number is known.
	Sender      people.Person
	SenderFound bool
}

// HandleMessage interprets one inbound message and returns the reply to
// send back. It never returns an error; every failure becomes reply text.
func (p *Pipeline) HandleMessage(ctx context.Context, from, body string) Reply {
	phone := NormalizePhone(from)
	admin := p.IsAdmin(phone)

	var sender people.Person
	found := false
	if p.people != nil {
		var err error
		sender, found, err = p.people.GetPersonByPhone(ctx, phone)
		if err != nil {
			p.logger.Warn("pipeline_sender_lookup_failed", "phone", phone, "error", err)
			found = false
		}
	}
	req := router.Requester{Person: sender, Admin: admin}

	finish := func(text string, ok bool, kind intent.Kind, conf float64) Reply {
		return Reply{Text: text, OK: ok, Intent: kind, Confidence: conf, Sender: sender, SenderFound: found}
	}
	route := func(cmd intent.Command, conf float64) Reply {
		res := p.router.Route(ctx, cmd, req)
		return finish(res.Reply, res.OK, cmd.Kind, conf)
	}

	lower := strings.ToLower(strings.TrimSpace(body))
	switch {
	case lower == "help" || lower == "controls":
		if admin {
			return finish(adminHelpReply, true, "", 1)
		}
		return finish(helpReply, true, "", 1)

	case lower == "stop":
		if p.legacy != nil {
			p.legacy.ClearPending(phone)
		}
		return route(intent.Command{Kind: intent.KindOptOut}, 1)

	case noChangePhrases[lower]:
		if p.legacy != nil {
			p.legacy.ClearPending(phone)
		}
		return route(intent.Command{Kind: intent.KindNoChange}, 1)

	case lower == "yes":
		return p.confirmPending(ctx, phone, req, finish, route)
	}

	if admin {
		if cmd, ok := intent.ParseGrammar(body); ok {
			return route(cmd, 1)
		}
	}

	cls, err := p.classifier.Classify(ctx, body, personContext(sender, found))
	if err != nil {
		p.logger.Warn("pipeline_classify_failed", "error", err)
		return finish(clarificationReply, false, intent.KindUnclear, 0)
	}
	p.logger.Info("pipeline_classified",
		"intent", string(cls.Intent),
		"confidence", cls.Confidence,
		"target_table", cls.TargetTable)

	if cls.Intent != intent.KindUnclear && cls.Confidence >= p.minConfidence {
		return route(cls.Command(), cls.Confidence)
	}

	// Low confidence or unclear. A known sender may be replying to a
	// monthly check-in, so try the snapshot extractor before giving up.
	if p.legacy != nil && found {
		extraction := p.legacy.Extract(ctx, checkin.Snapshot(sender), body)
		if extraction.NoChange {
			return route(intent.Command{Kind: intent.KindNoChange}, extraction.Confidence)
		}
		if extraction.HasChanges() {
			p.legacy.Remember(phone, extraction)
			return finish(extraction.ConfirmationText, true, intent.KindConfirmChanges, extraction.Confidence)
		}
	}

	if cls.Intent == intent.KindUnclear {
		if msg := cls.Extracted.ErrorMessage; msg != "" {
			return finish(msg, false, cls.Intent, cls.Confidence)
		}
	}
	return finish(clarificationReply, false, intent.KindUnclear, cls.Confidence)
}

// confirmPending applies a remembered check-in extraction once the sender
// replies YES. Without one, the bare confirmation reply is sent.
func (p *Pipeline) confirmPending(
	ctx context.Context,
	phone string,
	req router.Requester,
	finish func(string, bool, intent.Kind, float64) Reply,
	route func(intent.Command, float64) Reply,
) Reply {
	if p.legacy == nil {
		return route(intent.Command{Kind: intent.KindConfirmChanges}, 1)
	}
	extraction, ok := p.legacy.TakePending(phone)
	if !ok || !extraction.HasChanges() {
		return route(intent.Command{Kind: intent.KindConfirmChanges}, 1)
	}
	if req.Person.ID == "" {
		return finish(clarificationReply, false, intent.KindConfirmChanges, extraction.Confidence)
	}

	updates := extraction.Updates()
	if len(extraction.TagsAdd) > 0 || len(extraction.TagsRemove) > 0 {
		updates[people.FieldTags] = people.MergeTags(req.Person.Tags, extraction.TagsAdd, extraction.TagsRemove)
	}
	updates[people.FieldLastConfirmed] = p.now().Format("2006-01-02")
	if err := p.people.UpdatePerson(ctx, req.Person.ID, updates); err != nil {
		p.logger.Error("pipeline_apply_pending_failed", "person", req.Person.Name, "error", err)
		return finish(saveFailureReply, false, intent.KindConfirmChanges, extraction.Confidence)
	}
	return finish("✅ Changes applied! Thanks for the update.", true, intent.KindConfirmChanges, extraction.Confidence)
}

// personContext is the sender snapshot handed to the remote classifier for
// prompt grounding. The classifier must never use it as a command target.
func personContext(p people.Person, found bool) map[string]any {
	if !found {
		return nil
	}
	return map[string]any{
		"Name":    p.Name,
		"Company": p.Company,
		"Role":    p.Role,
		"City":    p.City,
		"Tags":    p.Tags,
	}
}
