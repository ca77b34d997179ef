package capabilities

import "sort"

// Grant represents the collection of capabilities granted to one extension run.
type Grant []Capability

// NewGrant creates a new empty Grant.
func NewGrant() Grant {
	return make(Grant, 0)
}

// Add adds a capability to the grant if it's not already present.
func (g *Grant) Add(capability Capability) {
	if g.Contains(capability) {
		return
	}
	*g = append(*g, capability)
}

// Contains checks if the grant contains a specific capability.
func (g Grant) Contains(capability Capability) bool {
	for _, existing := range g {
		if existing.Equals(capability) {
			return true
		}
	}
	return false
}

// OfKind returns the capabilities of the given kind, in grant order.
func (g Grant) OfKind(kind string) Grant {
	out := NewGrant()
	for _, c := range g {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Strings returns the sorted "kind:pattern" form of every capability.
func (g Grant) Strings() []string {
	out := make([]string, 0, len(g))
	for _, c := range g {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out
}

// HighestRisk returns the highest risk level in the grant.
func (g Grant) HighestRisk() RiskLevel {
	risk := RiskLevelLow
	for _, c := range g {
		if r := c.RiskLevel(); r > risk {
			risk = r
		}
	}
	return risk
}
