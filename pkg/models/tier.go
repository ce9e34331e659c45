package models

// SecurityTier is the permission level a plan requires, or an agent is cleared for.
// Tiers are ordered: discovery < read < write < system.
type SecurityTier string

const (
	// TierDiscovery permits listing and searching only.
	TierDiscovery SecurityTier = "discovery"
	// TierRead permits reading file contents.
	TierRead SecurityTier = "read"
	// TierWrite permits creating and editing files.
	TierWrite SecurityTier = "write"
	// TierSystem permits arbitrary commands.
	TierSystem SecurityTier = "system"
)

// Valid returns true if the tier is a known value.
func (t SecurityTier) Valid() bool {
	return t.Rank() >= 0
}

// Rank returns the position of the tier in the ordering, or -1 if unknown.
func (t SecurityTier) Rank() int {
	switch t {
	case TierDiscovery:
		return 0
	case TierRead:
		return 1
	case TierWrite:
		return 2
	case TierSystem:
		return 3
	default:
		return -1
	}
}

// Allows reports whether a holder of t may operate at tier other.
// Unknown tiers never allow and are never allowed.
func (t SecurityTier) Allows(other SecurityTier) bool {
	if !t.Valid() || !other.Valid() {
		return false
	}
	return t.Rank() >= other.Rank()
}
