package guard

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/MrEthical07/authsession/session"
)

// Decision is the navigation action for a (phase, location) pair.
type Decision uint8

const (
	// DecisionNone leaves navigation alone.
	DecisionNone Decision = iota
	// DecisionGoLogin sends the user to the sign-in screen.
	DecisionGoLogin
	// DecisionGoHome sends the user to the authenticated area.
	DecisionGoHome
)

func (d Decision) String() string {
	switch d {
	case DecisionGoLogin:
		return "go_login"
	case DecisionGoHome:
		return "go_home"
	default:
		return "none"
	}
}

// Target returns the location a decision navigates to.
func (d Decision) Target() (Location, bool) {
	switch d {
	case DecisionGoLogin:
		return LocationLogin, true
	case DecisionGoHome:
		return LocationProtected, true
	default:
		return LocationUnknown, false
	}
}

// ErrOverlappingGroups is returned when a location is both protected and entry.
var ErrOverlappingGroups = errors.New("guard: location is both protected and entry")

// Policy holds the protected and entry location groups.
type Policy struct {
	protected mapset.Set[Location]
	entry     mapset.Set[Location]
}

var defaultPolicy = &Policy{
	protected: mapset.NewThreadUnsafeSet(LocationProtected),
	entry:     mapset.NewThreadUnsafeSet(LocationEntry, LocationLogin, LocationRegister),
}

// DefaultPolicy returns the policy used by Decide.
func DefaultPolicy() *Policy {
	return defaultPolicy
}

// NewPolicy builds a policy from explicit groups. The groups must be disjoint.
func NewPolicy(protected, entry []Location) (*Policy, error) {
	p := &Policy{
		protected: mapset.NewThreadUnsafeSet(protected...),
		entry:     mapset.NewThreadUnsafeSet(entry...),
	}
	if both := p.protected.Intersect(p.entry); both.Cardinality() > 0 {
		return nil, fmt.Errorf("%w: %v", ErrOverlappingGroups, both.ToSlice())
	}
	return p, nil
}

// Protected reports whether l requires an authenticated session.
func (p *Policy) Protected(l Location) bool {
	return p.protected.Contains(l)
}

// Entry reports whether l is a sign-in or landing location.
func (p *Policy) Entry(l Location) bool {
	return p.entry.Contains(l)
}

// Decide evaluates the decision table.
func (p *Policy) Decide(phase session.Phase, l Location) Decision {
	switch phase {
	case session.PhaseAuthenticated:
		if p.Entry(l) {
			return DecisionGoHome
		}
	case session.PhaseAnonymous:
		if p.Protected(l) {
			return DecisionGoLogin
		}
	}
	return DecisionNone
}

// Decide evaluates the default policy.
func Decide(phase session.Phase, l Location) Decision {
	return defaultPolicy.Decide(phase, l)
}
