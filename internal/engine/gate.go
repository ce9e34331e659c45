// Package engine provides reference execution engines for sub-plans.
package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ShayCichocki/fanout/pkg/models"
)

// ErrTierDenied is returned by a TierGate when a step needs a higher tier.
var ErrTierDenied = errors.New("security tier denied")

// TierGate decides whether a step may run at a plan's security tier.
type TierGate interface {
	Allow(tier models.SecurityTier, step models.Step) error
}

// ActionGate maps each action kind to the minimum tier it needs.
// Steps invoking one of SystemTools always need TierSystem.
type ActionGate struct {
	SystemTools []string
}

// NewActionGate creates an ActionGate with the given system tools.
func NewActionGate(systemTools ...string) *ActionGate {
	return &ActionGate{SystemTools: systemTools}
}

// Required returns the minimum tier for the step.
func (g *ActionGate) Required(step models.Step) models.SecurityTier {
	if step.Tool != "" && slices.Contains(g.SystemTools, step.Tool) {
		return models.TierSystem
	}
	switch step.Action {
	case models.ActionDiscover, models.ActionSearch:
		return models.TierDiscovery
	case models.ActionRead, models.ActionDiff, models.ActionVerify, models.ActionReport:
		return models.TierRead
	case models.ActionWrite, models.ActionEdit, models.ActionUndo:
		return models.TierWrite
	default:
		return models.TierSystem
	}
}

// Allow implements TierGate.
func (g *ActionGate) Allow(tier models.SecurityTier, step models.Step) error {
	need := g.Required(step)
	if !tier.Allows(need) {
		return fmt.Errorf("%w: step %d (%s) needs %s, plan has %q", ErrTierDenied, step.Number, step.Action, need, tier)
	}
	return nil
}

// AllowAll is a TierGate that never denies.
type AllowAll struct{}

// Allow implements TierGate.
func (AllowAll) Allow(models.SecurityTier, models.Step) error { return nil }
