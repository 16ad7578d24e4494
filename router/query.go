package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/thebrunchguy/sms-controller/intent"
	"github.com/thebrunchguy/sms-controller/people"
)

func (r *Router) queryData(ctx context.Context, cmd intent.Command) Result {
	terms := cmd.QueryTerms
	if len(terms) == 0 {
		return fail("❌ I couldn't determine what you're looking for. Please be specific, like 'Is David Kobrosky in here?' or 'Do I have any reminders about Sarah?'")
	}

	switch cmd.QueryType {
	case "", "people":
		return r.queryPeople(ctx, terms)
	case "reminders":
		return r.queryReminders(ctx, terms)
	case "notes":
		return r.queryNotes(ctx, terms)
	case "checkins":
		return r.queryCheckins(ctx, terms)
	default:
		return fail("❌ I don't know how to search for %s. I can search people, reminders, notes, or checkins.", cmd.QueryType)
	}
}

func matchesAny(terms []string, fields ...string) bool {
	for _, term := range terms {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle == "" {
			continue
		}
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
	}
	return false
}

func (r *Router) queryPeople(ctx context.Context, terms []string) Result {
	all, err := r.deps.People.ListPeople(ctx)
	if err != nil {
		r.deps.Logger.Error("route_query_failed", "query", "people", "error", err)
		return fail("❌ Error searching people: %v", err)
	}

	var matches []people.Person
	for _, p := range all {
		if matchesAny(terms, p.Name) {
			matches = append(matches, p)
		}
	}

	if len(matches) == 0 {
		return ok("❌ No people found matching: %s", strings.Join(terms, ", "))
	}
	if len(matches) == 1 {
		p := matches[0]
		var b strings.Builder
		fmt.Fprintf(&b, "✅ Found %s:\n", p.Name)
		fmt.Fprintf(&b, "Email: %s\n", orPlaceholder(p.Email, "No email"))
		fmt.Fprintf(&b, "Phone: %s\n", orPlaceholder(p.Phone, "No phone"))
		fmt.Fprintf(&b, "Company: %s\n", orPlaceholder(p.Company, "No company"))
		fmt.Fprintf(&b, "Role: %s\n", orPlaceholder(p.Role, "No role"))
		fmt.Fprintf(&b, "Birthday: %s", orPlaceholder(p.Birthday, "No birthday"))
		if len(p.Tags) > 0 {
			fmt.Fprintf(&b, "\nTags: %s", strings.Join(p.Tags, ", "))
		}
		return ok("%s", b.String())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Found %d people matching: %s\n", len(matches), strings.Join(terms, ", "))
	for i, p := range matches {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, p.Name, orPlaceholder(p.Email, "no email"))
	}
	return ok("%s", b.String())
}

func orPlaceholder(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}

func (r *Router) queryReminders(ctx context.Context, terms []string) Result {
	all, err := r.deps.Reminders.ListReminders(ctx)
	if err != nil {
		r.deps.Logger.Error("route_query_failed", "query", "reminders", "error", err)
		return fail("❌ Error searching reminders: %v", err)
	}

	var matches []people.Reminder
	for _, rem := range all {
		if matchesAny(terms, rem.Action, rem.PersonName) {
			matches = append(matches, rem)
		}
	}

	if len(matches) == 0 {
		return ok("❌ No reminders found matching: %s", strings.Join(terms, ", "))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Found %d reminder(s) matching: %s\n", len(matches), strings.Join(terms, ", "))
	for i, rem := range matches {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, rem.Action)
		fmt.Fprintf(&b, "   Person: %s\n", orPlaceholder(rem.PersonName, "Unknown"))
		fmt.Fprintf(&b, "   Timeline: %s\n", orPlaceholder(rem.Timeline, "No timeline"))
		fmt.Fprintf(&b, "   Priority: %s\n", orPlaceholder(rem.Priority, "No priority"))
		fmt.Fprintf(&b, "   Status: %s", orPlaceholder(rem.Status, "No status"))
	}
	return ok("%s", b.String())
}

func (r *Router) queryNotes(ctx context.Context, terms []string) Result {
	all, err := r.deps.Notes.ListNotes(ctx)
	if err != nil {
		r.deps.Logger.Error("route_query_failed", "query", "notes", "error", err)
		return fail("❌ Error searching notes: %v", err)
	}

	var matches []people.Note
	for _, n := range all {
		if matchesAny(terms, n.PersonName, n.Content) {
			matches = append(matches, n)
		}
	}

	if len(matches) == 0 {
		return ok("❌ No notes found matching: %s", strings.Join(terms, ", "))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Found %d note(s) matching: %s\n", len(matches), strings.Join(terms, ", "))
	for i, n := range matches {
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, orPlaceholder(n.PersonName, "General"), truncate(n.Content, 80))
	}
	return ok("%s", b.String())
}

func (r *Router) queryCheckins(ctx context.Context, terms []string) Result {
	all, err := r.deps.Checkins.ListCheckins(ctx)
	if err != nil {
		r.deps.Logger.Error("route_query_failed", "query", "checkins", "error", err)
		return fail("❌ Error searching check-ins: %v", err)
	}
	roster, err := r.deps.People.ListPeople(ctx)
	if err != nil {
		r.deps.Logger.Error("route_query_failed", "query", "checkins", "error", err)
		return fail("❌ Error searching check-ins: %v", err)
	}
	nameByID := make(map[string]string, len(roster))
	for _, p := range roster {
		nameByID[p.ID] = p.Name
	}

	type hit struct {
		name string
		c    people.Checkin
	}
	var matches []hit
	for _, c := range all {
		name := nameByID[c.PersonID]
		if matchesAny(terms, name) {
			matches = append(matches, hit{name: name, c: c})
		}
	}

	if len(matches) == 0 {
		return ok("❌ No check-ins found matching: %s", strings.Join(terms, ", "))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Found %d check-in(s) matching: %s\n", len(matches), strings.Join(terms, ", "))
	for i, m := range matches {
		fmt.Fprintf(&b, "\n%d. %s - %s\n", i+1, m.name, m.c.Month)
		fmt.Fprintf(&b, "   Status: %s", orPlaceholder(m.c.Status, "Unknown"))
	}
	return ok("%s", b.String())
}
