package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authsession/storage"
)

var (
	// ErrNotRestored is returned when a transition is attempted before Restore resolved.
	ErrNotRestored = errors.New("session: not restored")
	// ErrPersistenceFailure marks a session that could not be written or removed durably.
	ErrPersistenceFailure = errors.New("session: persistence failure")
	// ErrInvalidSession is returned for an establish without a user id or access credential.
	ErrInvalidSession = errors.New("session: invalid session")
	// ErrSessionChanged is returned when a conditional transition finds a different session.
	ErrSessionChanged = errors.New("session: session changed")
	// ErrCorruptRecord is returned when a persisted user record cannot be decoded.
	ErrCorruptRecord = errors.New("session: corrupt persisted record")
)

// Keys names the three persisted slots.
type Keys struct {
	Access  string `toml:"access" env:"ACCESS"`
	Refresh string `toml:"refresh" env:"REFRESH"`
	User    string `toml:"user" env:"USER"`
}

// DefaultKeys returns the slot names used by earlier releases of the app.
func DefaultKeys() Keys {
	return Keys{Access: "userToken", Refresh: "refreshToken", User: "userData"}
}

func (k Keys) all() []string {
	return []string{k.Access, k.Refresh, k.User}
}

// Validate checks that the slot names are non-empty and distinct.
func (k Keys) Validate() error {
	seen := make(map[string]struct{}, 3)
	for _, key := range k.all() {
		if key == "" {
			return errors.New("session: slot keys must be non-empty")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("session: duplicate slot key %q", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Revoker invalidates a refresh credential on the remote service.
type Revoker interface {
	Revoke(ctx context.Context, refresh string) error
}

// RestoreOutcome classifies how Restore resolved.
type RestoreOutcome uint8

const (
	// RestoreAuthenticated means a complete record was found.
	RestoreAuthenticated RestoreOutcome = iota
	// RestoreEmpty means no slot was present.
	RestoreEmpty
	// RestoreCorrupt means a partial or undecodable record was found and removed.
	RestoreCorrupt
	// RestoreReadFailure means the backend could not be read.
	RestoreReadFailure
)

func (o RestoreOutcome) String() string {
	switch o {
	case RestoreAuthenticated:
		return "authenticated"
	case RestoreEmpty:
		return "empty"
	case RestoreCorrupt:
		return "corrupt"
	case RestoreReadFailure:
		return "read_failure"
	default:
		return "unknown"
	}
}

// Hooks receive lifecycle notifications. They run synchronously while the
// transition lock is held and must not call back into the Store.
//
// PersistenceFailure runs after the transition it belongs to was published;
// snap is that published snapshot.
type Hooks struct {
	Restored           func(ctx context.Context, snap Snapshot, outcome RestoreOutcome)
	Established        func(ctx context.Context, snap Snapshot)
	Cleared            func(ctx context.Context, prev Snapshot)
	PersistenceFailure func(ctx context.Context, snap Snapshot, op string, err error)
	RevokeFailure      func(ctx context.Context, err error)
}

// persistErr is a storage failure held back until its transition is published.
type persistErr struct {
	op  string
	err error
}

// Options configures a Store.
type Options struct {
	Keys    Keys
	Revoker Revoker
	Hooks   Hooks
}

// Store is the owned session state container.
type Store struct {
	backend storage.Store
	keys    Keys
	revoker Revoker
	hooks   Hooks

	// mu serializes transitions.
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	ready   chan struct{}

	subsMu  sync.Mutex
	subs    map[uint64]chan Snapshot
	nextSub uint64
}

// NewStore creates a Store in PhaseLoading backed by backend. Zero-valued keys
// fall back to DefaultKeys.
func NewStore(backend storage.Store, opts Options) (*Store, error) {
	if backend == nil {
		return nil, errors.New("session: storage backend is nil")
	}
	keys := opts.Keys
	if keys == (Keys{}) {
		keys = DefaultKeys()
	}
	if err := keys.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		backend: backend,
		keys:    keys,
		revoker: opts.Revoker,
		hooks:   opts.Hooks,
		ready:   make(chan struct{}),
		subs:    make(map[uint64]chan Snapshot),
	}
	s.current.Store(&Snapshot{Phase: PhaseLoading})
	return s, nil
}

// SetRevoker installs the revoker used by Clear. It is intended for wiring
// during construction, before the Store is shared.
func (s *Store) SetRevoker(r Revoker) {
	s.mu.Lock()
	s.revoker = r
	s.mu.Unlock()
}

// Keys returns the slot names in use.
func (s *Store) Keys() Keys {
	return s.keys
}

// Snapshot returns the current published snapshot.
func (s *Store) Snapshot() Snapshot {
	return *s.current.Load()
}

// Ready is closed once Restore has resolved the Loading phase.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Restored reports whether Restore has resolved.
func (s *Store) Restored() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Restore resolves the Loading phase from the persisted record. It runs once;
// later calls return the current snapshot. It never fails: unreadable or corrupt
// records resolve to Anonymous.
func (s *Store) Restore(ctx context.Context) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Restored() {
		return s.Snapshot()
	}

	next, outcome, failures := s.readPersisted(ctx)
	snap := s.publish(next)
	close(s.ready)
	s.reportFailures(ctx, snap, failures)
	if s.hooks.Restored != nil {
		s.hooks.Restored(ctx, snap, outcome)
	}
	return snap
}

func (s *Store) readPersisted(ctx context.Context) (Snapshot, RestoreOutcome, []persistErr) {
	anonymous := Snapshot{Phase: PhaseAnonymous, Durable: true}

	values := make([]string, 0, 3)
	present := 0
	for _, key := range s.keys.all() {
		value, ok, err := s.backend.Get(ctx, key)
		if errors.Is(err, storage.ErrCorrupt) {
			// An undecodable medium is wiped whole.
			failures := []persistErr{{op: "restore", err: err}}
			if clearErr := s.backend.ClearAll(ctx); clearErr != nil {
				failures = append(failures, persistErr{op: "restore_cleanup", err: clearErr})
				anonymous.Durable = false
			}
			return anonymous, RestoreCorrupt, failures
		}
		if err != nil {
			return anonymous, RestoreReadFailure, []persistErr{{op: "restore", err: err}}
		}
		if ok && value != "" {
			present++
		} else {
			value = ""
		}
		values = append(values, value)
	}
	if present == 0 {
		return anonymous, RestoreEmpty, nil
	}

	access, refresh, rawUser := values[0], values[1], values[2]
	if access != "" && rawUser != "" {
		user, err := DecodeUser(rawUser)
		if err == nil {
			return Snapshot{
				Phase:       PhaseAuthenticated,
				User:        &user,
				Credentials: Credentials{Access: access, Refresh: refresh},
				Durable:     true,
			}, RestoreAuthenticated, nil
		}
	}

	if err := storage.RemoveMany(ctx, s.backend, s.keys.all()...); err != nil {
		anonymous.Durable = false
		return anonymous, RestoreCorrupt, []persistErr{{op: "restore_cleanup", err: err}}
	}
	return anonymous, RestoreCorrupt, nil
}

// Establish persists and publishes an Authenticated session. When the record
// cannot be fully persisted the session is still established for this run with
// Durable=false and the partial record is rolled back.
func (s *Store) Establish(ctx context.Context, user User, creds Credentials) (Snapshot, error) {
	if user.ID == "" || creds.Access == "" {
		return s.Snapshot(), ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Restored() {
		return s.Snapshot(), ErrNotRestored
	}
	return s.establishLocked(ctx, user, creds), nil
}

// Rotate replaces the credential pair of the current session, keeping its user.
// It fails with ErrSessionChanged when the current refresh credential is no
// longer expectedRefresh.
func (s *Store) Rotate(ctx context.Context, expectedRefresh string, next Credentials) (Snapshot, error) {
	if next.Access == "" {
		return s.Snapshot(), ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Restored() {
		return s.Snapshot(), ErrNotRestored
	}
	cur := s.Snapshot()
	if !cur.Authenticated() || cur.Credentials.Refresh != expectedRefresh {
		return cur, ErrSessionChanged
	}
	if next.Refresh == "" {
		next.Refresh = cur.Credentials.Refresh
	}
	return s.establishLocked(ctx, *cur.User, next), nil
}

// ReplaceUser re-establishes the current session with a fresh user record. The
// record must describe the same user.
func (s *Store) ReplaceUser(ctx context.Context, user User) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Restored() {
		return s.Snapshot(), ErrNotRestored
	}
	cur := s.Snapshot()
	if !cur.Authenticated() || cur.User.ID != user.ID {
		return cur, ErrSessionChanged
	}
	return s.establishLocked(ctx, user, cur.Credentials), nil
}

func (s *Store) establishLocked(ctx context.Context, user User, creds Credentials) Snapshot {
	var failures []persistErr
	raw, err := EncodeUser(user)
	if err == nil {
		err = storage.SetMany(ctx, s.backend, map[string]string{
			s.keys.Access:  creds.Access,
			s.keys.Refresh: creds.Refresh,
			s.keys.User:    raw,
		})
	}
	if err != nil {
		failures = append(failures, persistErr{op: "establish", err: err})
		if rbErr := storage.RemoveMany(ctx, s.backend, s.keys.all()...); rbErr != nil {
			failures = append(failures, persistErr{op: "establish_rollback", err: rbErr})
		}
	}

	u := user
	snap := s.publish(Snapshot{
		Phase:       PhaseAuthenticated,
		User:        &u,
		Credentials: creds,
		Durable:     len(failures) == 0,
	})
	s.reportFailures(ctx, snap, failures)
	if s.hooks.Established != nil {
		s.hooks.Established(ctx, snap)
	}
	return snap
}

// Clear signs out: the refresh credential is revoked best-effort, the persisted
// record is removed and an Anonymous snapshot is published. Clearing an
// Anonymous session only repeats the removal.
//
// A session established while the revocation was in flight is left in place
// and returned with ErrSessionChanged.
func (s *Store) Clear(ctx context.Context) (Snapshot, error) {
	return s.clear(ctx, "", false)
}

// Invalidate clears the session only while its refresh credential is still
// expectedRefresh. A session established meanwhile is left untouched and
// ErrSessionChanged is returned.
func (s *Store) Invalidate(ctx context.Context, expectedRefresh string) (Snapshot, error) {
	return s.clear(ctx, expectedRefresh, true)
}

func (s *Store) clear(ctx context.Context, expectedRefresh string, conditional bool) (Snapshot, error) {
	if !s.Restored() {
		return s.Snapshot(), ErrNotRestored
	}

	matches := func(snap Snapshot) bool {
		return !conditional || (snap.Authenticated() && snap.Credentials.Refresh == expectedRefresh)
	}

	cur := s.Snapshot()
	if !matches(cur) {
		return cur, ErrSessionChanged
	}

	// Revocation is a network call; it runs outside the transition lock.
	s.mu.Lock()
	revoker := s.revoker
	s.mu.Unlock()
	if cur.Authenticated() && cur.Credentials.Refresh != "" && revoker != nil {
		if err := revoker.Revoke(ctx, cur.Credentials.Refresh); err != nil && s.hooks.RevokeFailure != nil {
			s.hooks.RevokeFailure(ctx, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.Snapshot()
	if !matches(latest) || (latest.Version != cur.Version && latest.Authenticated()) {
		return latest, ErrSessionChanged
	}

	removeErr := storage.RemoveMany(ctx, s.backend, s.keys.all()...)
	if latest.Phase == PhaseAnonymous {
		if removeErr != nil {
			s.reportFailures(ctx, latest, []persistErr{{op: "clear", err: removeErr}})
		}
		return latest, nil
	}

	snap := s.publish(Snapshot{Phase: PhaseAnonymous, Durable: removeErr == nil})
	if removeErr != nil {
		s.reportFailures(ctx, snap, []persistErr{{op: "clear", err: removeErr}})
	}
	if s.hooks.Cleared != nil {
		s.hooks.Cleared(ctx, latest)
	}
	return snap, nil
}

// Subscribe returns a channel that always holds the latest snapshot, starting
// with the current one. Intermediate snapshots may be skipped by slow readers.
// cancel stops delivery and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.Snapshot()
	s.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subsMu.Unlock()
		})
	}
	return ch, cancel
}

// publish must be called with mu held.
func (s *Store) publish(next Snapshot) Snapshot {
	next.Version = s.current.Load().Version + 1
	s.current.Store(&next)

	s.subsMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- next
		}
	}
	s.subsMu.Unlock()
	return next
}

func (s *Store) reportFailures(ctx context.Context, snap Snapshot, failures []persistErr) {
	if s.hooks.PersistenceFailure == nil {
		return
	}
	for _, f := range failures {
		s.hooks.PersistenceFailure(ctx, snap, f.op, fmt.Errorf("%w: %s: %w", ErrPersistenceFailure, f.op, f.err))
	}
}
