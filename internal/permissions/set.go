package permissions

import "sort"

// Decision is the binary outcome of an evaluation. Absence of any matching
// rule is a denial.
type Decision bool

// Evaluation outcomes.
const (
	DecisionAllow Decision = true
	DecisionDeny  Decision = false
)

// Set is a deduplicated collection of permissions, keyed by encoded form.
type Set struct {
	rules map[string]Permission
}

// NewSet builds a set from the given permissions.
func NewSet(perms ...Permission) *Set {
	s := &Set{rules: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		s.Add(p)
	}
	return s
}

// ParseSet decodes encoded tokens into a set. Malformed entries are returned
// separately so the caller may log and drop them; valid entries always land in
// the set.
func ParseSet(tokens []string) (*Set, []error) {
	s := NewSet()
	var errs []error
	for _, token := range tokens {
		p, err := Parse(token)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.Add(p)
	}
	return s, errs
}

// Add inserts a permission. Reports whether the set changed.
func (s *Set) Add(p Permission) bool {
	key := p.Encode()
	if _, ok := s.rules[key]; ok {
		return false
	}
	s.rules[key] = p
	return true
}

// Remove deletes a permission. Reports whether it was present.
func (s *Set) Remove(p Permission) bool {
	key := p.Encode()
	if _, ok := s.rules[key]; !ok {
		return false
	}
	delete(s.rules, key)
	return true
}

// Contains reports whether the exact permission is present.
func (s *Set) Contains(p Permission) bool {
	_, ok := s.rules[p.Encode()]
	return ok
}

// Len returns the number of distinct permissions.
func (s *Set) Len() int { return len(s.rules) }

// Union returns a new set holding every permission of both sets.
func (s *Set) Union(other *Set) *Set {
	merged := NewSet()
	for _, p := range s.rules {
		merged.Add(p)
	}
	if other != nil {
		for _, p := range other.rules {
			merged.Add(p)
		}
	}
	return merged
}

// Encoded returns the sorted encoded forms, suitable for headers, cache
// records and token claims.
func (s *Set) Encoded() []string {
	out := make([]string, 0, len(s.rules))
	for key := range s.rules {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Evaluate decides whether the requested (action, resource, resourceID) is
// allowed by this set. Each of the three dimensions is wildcardable
// independently: a rule matches when its resource equals the query's or is the
// wildcard resource, its action equals the query's or is the wildcard action,
// and its resource id equals the query's or is "*". Any matching deny wins
// unconditionally; otherwise any matching allow grants; otherwise the default
// is deny.
func (s *Set) Evaluate(action Action, resource Resource, resourceID string) Decision {
	if resourceID == "" {
		resourceID = wildcard
	}
	allowed := false
	for _, rule := range s.rules {
		if !rule.matches(action, resource, resourceID) {
			continue
		}
		if rule.Effect == Deny {
			return DecisionDeny
		}
		allowed = true
	}
	if allowed {
		return DecisionAllow
	}
	return DecisionDeny
}

func (p Permission) matches(action Action, resource Resource, resourceID string) bool {
	if p.Resource != resource && p.Resource != ResourceAny {
		return false
	}
	if p.Action != action && p.Action != ActionAny {
		return false
	}
	return p.ResourceID == resourceID || p.ResourceID == wildcard
}
