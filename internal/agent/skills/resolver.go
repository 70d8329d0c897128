package skills

import (
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
)

// RecordRef identifies a structured content record attached to a request,
// carrying the classification used for automatic skill routing.
type RecordRef struct {
	ID             string `json:"id"`
	Classification string `json:"classification,omitempty"`
}

// Resolution is the outcome of skill resolution for one request.
// Skill is nil when no skill resolved; the request then runs with only
// the global instruction block.
type Resolution struct {
	Skill *Skill

	// AutoRouted is true when the skill was selected from a record
	// classification rather than named by the caller.
	AutoRouted bool

	// Classification is the record classification that drove auto-routing.
	// Empty unless AutoRouted.
	Classification string
}

// Resolver selects a skill for a request from an explicit identifier or,
// failing that, from the classification of a single referenced record.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver backed by the given registry
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve applies the selection rules:
//
//  1. An explicit identifier naming an enabled skill always wins.
//  2. Otherwise, when exactly one record is referenced and its
//     classification maps to an enabled skill, that skill is auto-selected.
//     With two or more referenced records auto-routing is skipped entirely,
//     whatever their classifications.
//  3. Otherwise no skill resolves.
//
// A disabled skill behaves exactly as an unknown one at every step.
func (r *Resolver) Resolve(explicitID string, refs []RecordRef) Resolution {
	if explicitID != "" {
		if skill, ok := r.registry.Get(explicitID); ok {
			return Resolution{Skill: skill}
		}
		logging.Debugf("[skills] Explicit skill %q not available, trying auto-route", explicitID)
	}

	if len(refs) == 1 && refs[0].Classification != "" {
		if skill, ok := r.registry.ByClassification(refs[0].Classification); ok {
			logging.Infof("[skills] Auto-routed classification %q to skill %q", refs[0].Classification, skill.Name)
			return Resolution{
				Skill:          skill,
				AutoRouted:     true,
				Classification: refs[0].Classification,
			}
		}
	}

	return Resolution{}
}
