package people

import (
	"context"
	"strings"
)

// Resolver maps a name mentioned in a message to a known person.
type Resolver interface {
	Resolve(ctx context.Context, name string, candidates []Person) (Person, bool, error)
}

// ResolveByName returns the first candidate whose name contains the query,
// case-insensitively. The first match in store order is authoritative; there
// is no ranking among multiple matches.
func ResolveByName(name string, candidates []Person) (Person, bool) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return Person{}, false
	}
	for _, p := range candidates {
		if strings.Contains(strings.ToLower(p.Name), query) {
			return p, true
		}
	}
	return Person{}, false
}

// SubstringResolver is the deterministic resolver used when no model is
// configured.
type SubstringResolver struct{}

func (SubstringResolver) Resolve(_ context.Context, name string, candidates []Person) (Person, bool, error) {
	p, ok := ResolveByName(name, candidates)
	return p, ok, nil
}
