package intent

import (
	"regexp"
	"strings"
	"time"
)

// Deterministic command grammar. Each template is anchored to the whole
// message, so partial matches inside longer sentences never fire. Misses
// fall through to the classifier layer.
var (
	birthdayISORe = regexp.MustCompile(`(?i)^add\s+birthday\s+(.+?)\s+(\d{4}-\d{2}-\d{2})$`)
	birthdayUSRe  = regexp.MustCompile(`(?i)^add\s+birthday\s+(.+?)\s+(\d{1,2}/\d{1,2}/\d{4})$`)
	roleRe        = regexp.MustCompile(`(?i)^change\s+role\s+(.+?)\s+(.+)$`)
	companyRe     = regexp.MustCompile(`(?i)^change\s+company\s+(.+?)\s+(.+)$`)
	newFriendRe   = regexp.MustCompile(`(?i)^new\s+friend\s+(.+)$`)
	emailRe       = regexp.MustCompile(`(?i)^add\s+email\s+(.+?)\s+["']?([^\s"'<>]+@[^\s"'<>]+\.[^\s"'<>]+)["']?$`)
	phoneRe       = regexp.MustCompile(`(?i)^add\s+phone\s+(.+?)\s+["']?(\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}|[0-9]{10,11}|\+?[0-9]{10,15})["']?$`)
	linkedinRe    = regexp.MustCompile(`(?i)^add\s+linkedin\s+(.+?)\s+["']?(https?://[^\s"'<>]+|linkedin\.com/[^\s"'<>]+)["']?$`)
)

// ParseGrammar matches message against the fixed command templates and
// returns the command when exactly one template applies. The bool reports
// whether any template matched.
func ParseGrammar(message string) (Command, bool) {
	message = strings.TrimSpace(message)

	if m := birthdayISORe.FindStringSubmatch(message); m != nil {
		return Command{Kind: KindAddBirthday, TargetName: strings.TrimSpace(m[1]), Birthday: m[2]}, true
	}
	if m := birthdayUSRe.FindStringSubmatch(message); m != nil {
		iso, ok := usDateToISO(m[2])
		if !ok {
			return Command{}, false
		}
		return Command{Kind: KindAddBirthday, TargetName: strings.TrimSpace(m[1]), Birthday: iso}, true
	}
	if m := roleRe.FindStringSubmatch(message); m != nil {
		return Command{Kind: KindChangeRole, TargetName: strings.TrimSpace(m[1]), Role: strings.TrimSpace(m[2])}, true
	}
	if m := companyRe.FindStringSubmatch(message); m != nil {
		return Command{Kind: KindChangeCompany, TargetName: strings.TrimSpace(m[1]), Company: strings.TrimSpace(m[2])}, true
	}
	if m := newFriendRe.FindStringSubmatch(message); m != nil {
		return Command{Kind: KindNewFriend, TargetName: strings.TrimSpace(m[1])}, true
	}
	if m := emailRe.FindStringSubmatch(message); m != nil {
		return Command{Kind: KindAddEmail, TargetName: strings.TrimSpace(m[1]), Email: strings.TrimSpace(m[2])}, true
	}
	if m := phoneRe.FindStringSubmatch(message); m != nil {
		return Command{Kind: KindAddPhone, TargetName: strings.TrimSpace(m[1]), Phone: strings.TrimSpace(m[2])}, true
	}
	if m := linkedinRe.FindStringSubmatch(message); m != nil {
		return Command{Kind: KindAddLinkedIn, TargetName: strings.TrimSpace(m[1]), LinkedIn: strings.TrimSpace(m[2])}, true
	}
	return Command{}, false
}

// usDateToISO converts M/D/YYYY to YYYY-MM-DD, rejecting impossible dates.
func usDateToISO(s string) (string, bool) {
	t, err := time.Parse("1/2/2006", s)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}
