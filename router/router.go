package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/thebrunchguy/sms-controller/intent"
	"github.com/thebrunchguy/sms-controller/people"
	"github.com/thebrunchguy/sms-controller/timeline"
)

// Deps are the stores and services a Router dispatches into.
type Deps struct {
	People    people.PersonStore
	Reminders people.ReminderStore
	Notes     people.NoteStore
	Followups people.FollowupStore
	Checkins  people.CheckinStore
	Resolver  people.Resolver
	Now       func() time.Time
	Logger    *slog.Logger
}

// Router validates a command, resolves its target person, and executes it
// against the record stores. Every reply starts with the success marker or
// the failure marker so callers can tell outcomes apart from the text alone.
type Router struct {
	deps Deps
}

func New(deps Deps) *Router {
	if deps.Resolver == nil {
		deps.Resolver = people.SubstringResolver{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Router{deps: deps}
}

// Requester identifies the sender of the message being routed.
type Requester struct {
	Person people.Person
	Admin  bool
}

// Result is the outcome of routing one command.
type Result struct {
	OK    bool
	Reply string
}

func ok(format string, args ...any) Result {
	return Result{OK: true, Reply: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Result {
	return Result{OK: false, Reply: fmt.Sprintf(format, args...)}
}

const storeFailureReply = "❌ I couldn't save that change. This might be due to a connection issue. Please try again."

func (r *Router) Route(ctx context.Context, cmd intent.Command, req Requester) Result {
	switch cmd.Kind {
	case intent.KindAddBirthday:
		return r.updateField(ctx, cmd.TargetName, people.FieldBirthday, cmd.Birthday,
			"✅ Added birthday %s for %s", cmd.Birthday)
	case intent.KindChangeRole:
		return r.updateField(ctx, cmd.TargetName, people.FieldRole, cmd.Role,
			"✅ Changed %[2]s's role to %[1]s", cmd.Role)
	case intent.KindChangeCompany:
		return r.updateField(ctx, cmd.TargetName, people.FieldCompany, cmd.Company,
			"✅ Changed %[2]s's company to %[1]s", cmd.Company)
	case intent.KindAddEmail:
		return r.updateField(ctx, cmd.TargetName, people.FieldEmail, cmd.Email,
			"✅ Added email %s for %s", cmd.Email)
	case intent.KindAddPhone:
		return r.updateField(ctx, cmd.TargetName, people.FieldPhone, cmd.Phone,
			"✅ Added phone %s for %s", cmd.Phone)
	case intent.KindAddLinkedIn:
		return r.updateField(ctx, cmd.TargetName, people.FieldLinkedIn, cmd.LinkedIn,
			"✅ Added LinkedIn %s for %s", cmd.LinkedIn)
	case intent.KindNewFriend:
		return r.newFriend(ctx, cmd)
	case intent.KindUpdatePersonInfo:
		return r.updatePersonInfo(ctx, cmd)
	case intent.KindManageTags:
		return r.manageTags(ctx, cmd)
	case intent.KindCreateReminder:
		return r.createReminder(ctx, cmd, req)
	case intent.KindCreateNote:
		return r.createNote(ctx, cmd)
	case intent.KindScheduleFollowup:
		return r.scheduleFollowup(ctx, cmd)
	case intent.KindQueryData:
		return r.queryData(ctx, cmd)
	case intent.KindNoChange:
		return r.noChange(ctx, req)
	case intent.KindConfirmChanges:
		return ok("✅ Changes applied! Thanks for the update.")
	case intent.KindOptOut:
		return r.optOut(ctx, req)
	case intent.KindUnclear:
		if cmd.ErrorMessage != "" {
			return fail("%s", cmd.ErrorMessage)
		}
		return fail("❌ I couldn't understand what you'd like me to do. Please try rephrasing your message.")
	default:
		r.deps.Logger.Warn("route_unknown_command", "kind", string(cmd.Kind))
		return fail("❌ I couldn't understand what you'd like me to do. Please try rephrasing your message.")
	}
}

// resolveTarget finds the person a command names. The bool is false when
// the name matched nobody.
func (r *Router) resolveTarget(ctx context.Context, name string) (people.Person, bool, error) {
	candidates, err := r.deps.People.ListPeople(ctx)
	if err != nil {
		return people.Person{}, false, err
	}
	return r.deps.Resolver.Resolve(ctx, name, candidates)
}

func (r *Router) updateField(ctx context.Context, targetName, field, value, format string, valueArg string) Result {
	target, found, err := r.resolveTarget(ctx, targetName)
	if err != nil {
		r.deps.Logger.Error("route_resolve_failed", "target", targetName, "error", err)
		return fail("%s", storeFailureReply)
	}
	if !found {
		return fail("❌ Person '%s' not found", targetName)
	}
	if err := r.deps.People.UpdatePerson(ctx, target.ID, map[string]any{field: value}); err != nil {
		r.deps.Logger.Error("route_update_failed", "target", target.Name, "field", field, "error", err)
		return fail("%s", storeFailureReply)
	}
	return ok(format, valueArg, target.Name)
}

func (r *Router) newFriend(ctx context.Context, cmd intent.Command) Result {
	name := strings.TrimSpace(cmd.TargetName)
	if name == "" {
		return fail("❌ I couldn't determine the name of the friend you'd like to add. Please specify a name, like 'new friend John Smith'")
	}
	if _, found, err := r.resolveTarget(ctx, name); err != nil {
		r.deps.Logger.Error("route_resolve_failed", "target", name, "error", err)
		return fail("%s", storeFailureReply)
	} else if found {
		return fail("❌ Person '%s' already exists", name)
	}
	if _, err := r.deps.People.CreatePerson(ctx, people.Person{Name: name}); err != nil {
		r.deps.Logger.Error("route_create_person_failed", "name", name, "error", err)
		return fail("❌ Failed to create new friend '%s'", name)
	}
	return ok("✅ Added new friend '%s'", name)
}

func (r *Router) updatePersonInfo(ctx context.Context, cmd intent.Command) Result {
	if strings.TrimSpace(cmd.TargetName) == "" {
		return fail("❌ Please specify whose information you want to update. For example: 'update John's birthday to 3/14/1999' or 'change Sarah's company to Tech Corp'")
	}
	target, found, err := r.resolveTarget(ctx, cmd.TargetName)
	if err != nil {
		r.deps.Logger.Error("route_resolve_failed", "target", cmd.TargetName, "error", err)
		return fail("%s", storeFailureReply)
	}
	if !found {
		return fail("❌ I couldn't find a person named '%s' in the system. Please check the spelling and try again.", cmd.TargetName)
	}

	updates := buildPersonUpdates(cmd.FieldUpdates, target)
	if len(updates) == 0 {
		return fail("❌ I couldn't determine what information you'd like me to update. Please be specific, like 'update John's birthday to 03/14/1999' or 'change Sarah's company to Tech Corp'")
	}

	if err := r.deps.People.UpdatePerson(ctx, target.ID, updates); err != nil {
		r.deps.Logger.Error("route_update_failed", "target", target.Name, "error", err)
		return fail("❌ I couldn't update %s's information in the system. Please try again.", target.Name)
	}

	fields := make([]string, 0, len(updates))
	for name := range updates {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return ok("✅ Updated %s for %s", strings.Join(fields, ", "), target.Name)
}

// buildPersonUpdates maps loosely named classifier fields onto record
// columns. Company, role, and location land in How We Met because the
// synced professional-profile columns are read-only.
func buildPersonUpdates(fieldUpdates map[string]string, target people.Person) map[string]any {
	updates := map[string]any{}

	if birthday, ok := fieldUpdates["birthday"]; ok {
		if normalized := NormalizeBirthday(birthday); normalized != "" {
			updates[people.FieldBirthday] = normalized
		}
	}

	howWeMet := strings.TrimSpace(target.HowWeMet)
	if howWeMet == "N/A" {
		howWeMet = ""
	}
	var parts []string
	if howWeMet != "" {
		parts = append(parts, howWeMet)
	}
	if company, ok := fieldUpdates["company"]; ok {
		parts = append(parts, "Company: "+company)
	}
	if role, ok := fieldUpdates["role"]; ok {
		parts = append(parts, "Role: "+role)
	}
	location := fieldUpdates["location"]
	if location == "" {
		location = fieldUpdates["city"]
	}
	if location != "" {
		parts = append(parts, "Location: "+location)
	}
	if len(parts) > 0 && (howWeMet == "" || len(parts) > 1) {
		updates[people.FieldHowWeMet] = strings.Join(parts, " | ")
	}

	return updates
}

// NormalizeBirthday converts M/D/YYYY and M-D-YYYY to YYYY-MM-DD; input
// that is already ISO or unparseable passes through unchanged.
func NormalizeBirthday(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range []string{"1/2/2006", "1-2-2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func (r *Router) manageTags(ctx context.Context, cmd intent.Command) Result {
	if len(cmd.TagsAdd) == 0 && len(cmd.TagsRemove) == 0 {
		return fail("❌ I couldn't determine which tags you'd like to add or remove. Please be specific, like 'tag John with mentor' or 'remove the developer tag from Sarah'")
	}
	if strings.TrimSpace(cmd.TargetName) == "" {
		return fail("❌ Please specify whose tags you want to update. For example: 'tag John with mentor' or 'remove the developer tag from Sarah'")
	}

	target, found, err := r.resolveTarget(ctx, cmd.TargetName)
	if err != nil {
		r.deps.Logger.Error("route_resolve_failed", "target", cmd.TargetName, "error", err)
		return fail("%s", storeFailureReply)
	}
	if !found {
		return fail("❌ I couldn't find '%s' in your contacts. Please check the spelling or add them first.", cmd.TargetName)
	}

	tags := people.MergeTags(target.Tags, cmd.TagsAdd, cmd.TagsRemove)
	if err := r.deps.People.UpdatePerson(ctx, target.ID, map[string]any{people.FieldTags: tags}); err != nil {
		r.deps.Logger.Error("route_update_failed", "target", target.Name, "error", err)
		return fail("❌ I couldn't update %s's tags in the system. Please try again.", target.Name)
	}

	var notes []string
	if len(cmd.TagsAdd) > 0 {
		notes = append(notes, "Added: "+strings.Join(cmd.TagsAdd, ", "))
	}
	if len(cmd.TagsRemove) > 0 {
		notes = append(notes, "Removed: "+strings.Join(cmd.TagsRemove, ", "))
	}
	return ok("✅ Tags updated for %s - %s", target.Name, strings.Join(notes, ", "))
}

func (r *Router) createReminder(ctx context.Context, cmd intent.Command, req Requester) Result {
	action := strings.TrimSpace(cmd.Action)
	if action == "" {
		return fail("❌ I couldn't determine what you'd like me to remind you about. Please be more specific, like 'remind me to call John' or 'remind me to follow up on the project'")
	}

	name := strings.TrimSpace(cmd.TargetName)
	if name == "" {
		name = extractPersonFromAction(action, req.Person)
	}
	if name == "" || strings.EqualFold(name, "none") || strings.EqualFold(name, "unknown") {
		return fail("❌ I couldn't determine who you'd like this reminder to involve. Please specify a name, like 'remind me to text John Doe today'.")
	}

	now := r.deps.Now()
	timelineText := strings.TrimSpace(cmd.TimelineText)
	source := timelineText
	if source == "" {
		source = action
	}
	match := timeline.Extract(source, now)

	reminder := people.Reminder{
		PersonName: name,
		Action:     action,
		Timeline:   match.MatchedText,
		Priority:   normalizePriority(cmd.Priority),
		DueAt:      match.At,
	}
	if target, found, err := r.resolveTarget(ctx, name); err == nil && found {
		reminder.PersonID = target.ID
		reminder.PersonName = target.Name
	}

	if _, err := r.deps.Reminders.CreateReminder(ctx, reminder); err != nil {
		r.deps.Logger.Error("route_create_reminder_failed", "person", name, "error", err)
		return fail("❌ I couldn't create the reminder in your system. Please try again.")
	}

	if match.At != nil {
		return ok("✅ Reminder created: %s (due: %s)", action, timeline.Format(match, now))
	}
	return ok("✅ Reminder created: %s", action)
}

var actionPersonRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:text|call|email|reach out to|follow up with|check in with|contact)\s+([a-z\s]+?)(?:\s+(?:tomorrow|today|next|at|in|later))`),
	regexp.MustCompile(`(?:text|call|email|reach out to|follow up with|check in with|contact)\s+([a-z\s]+)$`),
	regexp.MustCompile(`(?:text|call|email|reach out to|follow up with|check in with|contact)\s+([a-z\s]+?)(?:\s|,|\.)`),
}

// extractPersonFromAction pulls a person name out of a reminder phrase,
// falling back to the requester's own name when none is mentioned.
func extractPersonFromAction(action string, requester people.Person) string {
	lower := strings.ToLower(action)
	for _, re := range actionPersonRes {
		if m := re.FindStringSubmatch(lower); m != nil {
			name := strings.TrimSpace(m[1])
			if name == "" || name == "me" {
				continue
			}
			parts := strings.Fields(name)
			for i, p := range parts {
				parts[i] = strings.ToUpper(p[:1]) + p[1:]
			}
			return strings.Join(parts, " ")
		}
	}
	return strings.TrimSpace(requester.Name)
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "low":
		return "low"
	case "high":
		return "high"
	default:
		return "medium"
	}
}

func (r *Router) createNote(ctx context.Context, cmd intent.Command) Result {
	content := strings.TrimSpace(cmd.NoteContent)
	if content == "" {
		return fail("❌ I couldn't determine what note you'd like me to add. Please be more specific, like 'note: John mentioned he's interested in the PM role'")
	}

	note := people.Note{Content: content, Source: "sms"}
	targetText := ""
	if name := strings.TrimSpace(cmd.TargetName); name != "" {
		target, found, err := r.resolveTarget(ctx, name)
		if err != nil {
			r.deps.Logger.Error("route_resolve_failed", "target", name, "error", err)
			return fail("%s", storeFailureReply)
		}
		if !found {
			return fail("❌ I couldn't find '%s' in your contacts. Please check the spelling or add them first.", name)
		}
		note.PersonID = target.ID
		note.PersonName = target.Name
		targetText = " for " + target.Name
	}

	if _, err := r.deps.Notes.CreateNote(ctx, note); err != nil {
		r.deps.Logger.Error("route_create_note_failed", "error", err)
		return fail("❌ I couldn't save the note to your system. Please try again.")
	}
	return ok("✅ Note added%s: %s", targetText, truncate(content, 50))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func (r *Router) scheduleFollowup(ctx context.Context, cmd intent.Command) Result {
	timelineText := strings.TrimSpace(cmd.TimelineText)
	if timelineText == "" {
		return fail("❌ I couldn't determine when you'd like to schedule the follow-up. Please specify a time, like 'follow up with John next week' or 'follow up with Sarah in 2 weeks'")
	}
	if strings.TrimSpace(cmd.TargetName) == "" {
		return fail("❌ Please specify who you'd like to follow up with. For example: 'follow up with John next week' or 'follow up with Sarah in 2 weeks'")
	}

	target, found, err := r.resolveTarget(ctx, cmd.TargetName)
	if err != nil {
		r.deps.Logger.Error("route_resolve_failed", "target", cmd.TargetName, "error", err)
		return fail("%s", storeFailureReply)
	}
	if !found {
		return fail("❌ I couldn't find '%s' in your contacts. Please check the spelling or add them first.", cmd.TargetName)
	}

	reason := strings.TrimSpace(cmd.FollowupReason)
	if reason == "" {
		reason = "Follow up with " + target.Name
	}
	match := timeline.Extract(timelineText, r.deps.Now())
	followup := people.Followup{
		PersonID:    target.ID,
		PersonName:  target.Name,
		Reason:      reason,
		Timeline:    timelineText,
		ScheduledAt: match.At,
	}
	if _, err := r.deps.Followups.CreateFollowup(ctx, followup); err != nil {
		r.deps.Logger.Error("route_create_followup_failed", "person", target.Name, "error", err)
		return fail("❌ I couldn't schedule the follow-up with %s in your system. Please try again.", target.Name)
	}
	return ok("✅ Follow-up scheduled with %s: %s", target.Name, timelineText)
}

func (r *Router) noChange(ctx context.Context, req Requester) Result {
	if req.Person.ID != "" {
		today := r.deps.Now().Format("2006-01-02")
		if err := r.deps.People.UpdatePerson(ctx, req.Person.ID, map[string]any{people.FieldLastConfirmed: today}); err != nil {
			r.deps.Logger.Error("route_no_change_failed", "person", req.Person.Name, "error", err)
			return fail("%s", storeFailureReply)
		}
	}
	return ok("✅ Thanks for confirming! No changes needed.")
}

func (r *Router) optOut(ctx context.Context, req Requester) Result {
	if req.Person.ID != "" {
		if err := r.deps.People.UpdatePerson(ctx, req.Person.ID, map[string]any{people.FieldOptOut: true}); err != nil {
			r.deps.Logger.Error("route_opt_out_failed", "person", req.Person.Name, "error", err)
			return fail("%s", storeFailureReply)
		}
	}
	return ok("✅ You have been unsubscribed from monthly check-ins. Reply START to resubscribe.")
}
