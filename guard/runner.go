package guard

import (
	"context"

	"github.com/MrEthical07/authsession/session"
)

// Navigator is the host application's navigation primitive.
type Navigator interface {
	Location() Location
	Navigate(ctx context.Context, to Location) error
}

// SnapshotSource publishes session snapshots.
type SnapshotSource interface {
	Subscribe() (<-chan session.Snapshot, func())
}

// Runner re-evaluates the policy whenever the session or the location changes
// and applies the resulting decision through a Navigator.
type Runner struct {
	source SnapshotSource
	nav    Navigator
	policy *Policy

	// Warn receives navigation failures. Nil discards them.
	Warn func(format string, args ...any)
	// OnDecision, when set, observes every issued navigation.
	OnDecision func(phase session.Phase, from Location, d Decision)

	phase      session.Phase
	pending    Location
	hasPending bool
}

// NewRunner creates a Runner. A nil policy means DefaultPolicy.
func NewRunner(source SnapshotSource, nav Navigator, policy *Policy) *Runner {
	if policy == nil {
		policy = defaultPolicy
	}
	return &Runner{source: source, nav: nav, policy: policy, phase: session.PhaseLoading}
}

// Run evaluates until ctx is done or the snapshot subscription closes. Values
// received on locations signal that Navigator.Location changed; a nil channel
// means only session changes trigger evaluation.
func (r *Runner) Run(ctx context.Context, locations <-chan Location) error {
	snaps, cancel := r.source.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if snap.Phase != r.phase {
				r.phase = snap.Phase
				r.hasPending = false
			}
		case _, ok := <-locations:
			if !ok {
				locations = nil
				continue
			}
		}
		r.evaluate(ctx)
	}
}

func (r *Runner) evaluate(ctx context.Context) {
	at := r.nav.Location()
	if r.hasPending && at == r.pending {
		r.hasPending = false
	}

	d := r.policy.Decide(r.phase, at)
	target, ok := d.Target()
	if !ok || at == target {
		return
	}
	if r.hasPending && r.pending == target {
		return
	}

	r.pending = target
	r.hasPending = true
	if r.OnDecision != nil {
		r.OnDecision(r.phase, at, d)
	}
	if err := r.nav.Navigate(ctx, target); err != nil {
		r.hasPending = false
		if r.Warn != nil {
			r.Warn("authsession: navigate to %s failed: %v", target, err)
		}
	}
}
