package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authsession/storage"
)

// flakyStore wraps a MemoryStore and fails selected operations.
type flakyStore struct {
	mem *storage.MemoryStore

	mu        sync.Mutex
	failGet   bool
	failSetOn map[string]bool
	failRm    bool
	removes   int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{mem: storage.NewMemoryStore(), failSetOn: map[string]bool{}}
}

var errInjected = errors.New("injected failure")

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return "", false, errInjected
	}
	return f.mem.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	fail := f.failSetOn[key]
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.mem.Set(ctx, key, value)
}

func (f *flakyStore) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	f.removes++
	fail := f.failRm
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.mem.Remove(ctx, key)
}

func (f *flakyStore) ClearAll(ctx context.Context) error {
	return f.mem.ClearAll(ctx)
}

type recordingRevoker struct {
	mu      sync.Mutex
	revoked []string
	err     error
}

func (r *recordingRevoker) Revoke(_ context.Context, refresh string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, refresh)
	return r.err
}

func (r *recordingRevoker) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.revoked...)
}

func newTestStore(t *testing.T, backend storage.Store, opts Options) *Store {
	t.Helper()
	s, err := NewStore(backend, opts)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func testUser(id string) User {
	return User{ID: UserID(id), Email: id + "@example.com", FirstName: "Test", LastName: "User"}
}

func TestRestoreEmptyResolvesAnonymous(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryStore(), Options{})
	if got := s.Snapshot().Phase; got != PhaseLoading {
		t.Fatalf("initial phase = %v, want loading", got)
	}

	var outcome RestoreOutcome = 255
	s.hooks.Restored = func(_ context.Context, _ Snapshot, o RestoreOutcome) { outcome = o }

	snap := s.Restore(context.Background())
	if snap.Phase != PhaseAnonymous || snap.User != nil {
		t.Fatalf("expected anonymous snapshot, got %+v", snap)
	}
	if outcome != RestoreEmpty {
		t.Fatalf("outcome = %v, want empty", outcome)
	}
	select {
	case <-s.Ready():
	default:
		t.Fatal("expected Ready to be closed after restore")
	}
}

func TestEstablishSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()

	first := newTestStore(t, backend, Options{})
	first.Restore(ctx)
	user := testUser("42")
	if _, err := first.Establish(ctx, user, Credentials{Access: "A1", Refresh: "R1"}); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	second := newTestStore(t, backend, Options{})
	snap := second.Restore(ctx)
	if !snap.Authenticated() {
		t.Fatalf("expected authenticated after restart, got %+v", snap)
	}
	if snap.User.ID != "42" || snap.User.Email != user.Email {
		t.Fatalf("unexpected user %+v", snap.User)
	}
	if snap.Credentials != (Credentials{Access: "A1", Refresh: "R1"}) {
		t.Fatalf("unexpected credentials %+v", snap.Credentials)
	}
}

func TestRestoreCorruptRecordsResolveAnonymous(t *testing.T) {
	keys := DefaultKeys()
	cases := map[string]map[string]string{
		"access_only":      {keys.Access: "A1"},
		"user_only":        {keys.User: `{"id":"1"}`},
		"refresh_only":     {keys.Refresh: "R1"},
		"undecodable_user": {keys.Access: "A1", keys.Refresh: "R1", keys.User: "{not json"},
		"user_without_id":  {keys.Access: "A1", keys.User: `{"email":"x@example.com"}`},
	}

	for name, slots := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			backend := storage.NewMemoryStore()
			for k, v := range slots {
				if err := backend.Set(ctx, k, v); err != nil {
					t.Fatalf("seed: %v", err)
				}
			}

			var outcome RestoreOutcome
			s := newTestStore(t, backend, Options{Hooks: Hooks{
				Restored: func(_ context.Context, _ Snapshot, o RestoreOutcome) { outcome = o },
			}})
			snap := s.Restore(ctx)
			if snap.Phase != PhaseAnonymous {
				t.Fatalf("phase = %v, want anonymous", snap.Phase)
			}
			if outcome != RestoreCorrupt {
				t.Fatalf("outcome = %v, want corrupt", outcome)
			}
			if n := backend.Len(); n != 0 {
				t.Fatalf("expected leftovers removed, %d keys remain", n)
			}
		})
	}
}

func TestRestoreNumericUserID(t *testing.T) {
	ctx := context.Background()
	keys := DefaultKeys()
	backend := storage.NewMemoryStore()
	_ = backend.Set(ctx, keys.Access, "A1")
	_ = backend.Set(ctx, keys.User, `{"id":17,"email":"n@example.com"}`)

	snap := newTestStore(t, backend, Options{}).Restore(ctx)
	if !snap.Authenticated() || snap.User.ID != "17" {
		t.Fatalf("expected numeric id to decode, got %+v", snap)
	}
	if snap.Credentials.Refresh != "" {
		t.Fatalf("expected empty refresh credential, got %q", snap.Credentials.Refresh)
	}
}

func TestRestoreReadFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyStore()
	first := newTestStore(t, backend, Options{})
	first.Restore(ctx)
	if _, err := first.Establish(ctx, testUser("1"), Credentials{Access: "A", Refresh: "R"}); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	backend.failGet = true
	var failures []string
	second := newTestStore(t, backend, Options{Hooks: Hooks{
		PersistenceFailure: func(_ context.Context, _ Snapshot, op string, err error) {
			if !errors.Is(err, ErrPersistenceFailure) {
				t.Errorf("hook error does not match ErrPersistenceFailure: %v", err)
			}
			failures = append(failures, op)
		},
	}})
	if snap := second.Restore(ctx); snap.Phase != PhaseAnonymous {
		t.Fatalf("phase = %v, want anonymous", snap.Phase)
	}
	if len(failures) != 1 || failures[0] != "restore" {
		t.Fatalf("unexpected failure ops %v", failures)
	}
	if backend.mem.Len() != 3 {
		t.Fatalf("read failure must not remove the record, %d keys remain", backend.mem.Len())
	}
}

func TestRestoreRunsOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore(), Options{})
	s.Restore(ctx)
	established, err := s.Establish(ctx, testUser("1"), Credentials{Access: "A"})
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}

	again := s.Restore(ctx)
	if again.Version != established.Version || again.Phase != PhaseAuthenticated {
		t.Fatalf("second Restore changed state: %+v", again)
	}
}

func TestTransitionsBeforeRestoreFail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore(), Options{})

	if _, err := s.Establish(ctx, testUser("1"), Credentials{Access: "A"}); !errors.Is(err, ErrNotRestored) {
		t.Fatalf("Establish before restore: %v", err)
	}
	if _, err := s.Clear(ctx); !errors.Is(err, ErrNotRestored) {
		t.Fatalf("Clear before restore: %v", err)
	}
	if _, err := s.Rotate(ctx, "", Credentials{Access: "A"}); !errors.Is(err, ErrNotRestored) {
		t.Fatalf("Rotate before restore: %v", err)
	}
	if s.Snapshot().Phase != PhaseLoading {
		t.Fatalf("phase changed before restore")
	}
}

func TestEstablishRejectsIncompleteSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore(), Options{})
	s.Restore(ctx)

	if _, err := s.Establish(ctx, User{}, Credentials{Access: "A"}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("missing user id: %v", err)
	}
	if _, err := s.Establish(ctx, testUser("1"), Credentials{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("missing access credential: %v", err)
	}
	if s.Snapshot().Phase != PhaseAnonymous {
		t.Fatalf("rejected establish changed phase")
	}
}

func TestEstablishPersistenceFailureIsNotDurable(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyStore()
	var failures []string
	s := newTestStore(t, backend, Options{Hooks: Hooks{
		PersistenceFailure: func(_ context.Context, _ Snapshot, op string, _ error) { failures = append(failures, op) },
	}})
	s.Restore(ctx)

	// Slots are written in key order; failing the user slot leaves a partial write to roll back.
	backend.failSetOn[DefaultKeys().User] = true
	snap, err := s.Establish(ctx, testUser("7"), Credentials{Access: "A", Refresh: "R"})
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if !snap.Authenticated() || snap.Durable {
		t.Fatalf("expected authenticated non-durable snapshot, got %+v", snap)
	}
	if len(failures) == 0 || failures[0] != "establish" {
		t.Fatalf("expected establish persistence failure, got %v", failures)
	}

	restarted := newTestStore(t, backend.mem, Options{})
	if got := restarted.Restore(ctx); got.Phase != PhaseAnonymous {
		t.Fatalf("restart after failed persist: phase = %v, want anonymous", got.Phase)
	}
}

func TestClearRevokesAndRemoves(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	revoker := &recordingRevoker{}
	var cleared []Snapshot
	s := newTestStore(t, backend, Options{Revoker: revoker, Hooks: Hooks{
		Cleared: func(_ context.Context, prev Snapshot) { cleared = append(cleared, prev) },
	}})
	s.Restore(ctx)
	if _, err := s.Establish(ctx, testUser("1"), Credentials{Access: "A", Refresh: "R"}); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	snap, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if snap.Phase != PhaseAnonymous || snap.User != nil || snap.Credentials != (Credentials{}) {
		t.Fatalf("unexpected snapshot after clear: %+v", snap)
	}
	if calls := revoker.calls(); len(calls) != 1 || calls[0] != "R" {
		t.Fatalf("unexpected revoke calls %v", calls)
	}
	if backend.Len() != 0 {
		t.Fatalf("expected slots removed, %d remain", backend.Len())
	}
	if len(cleared) != 1 || cleared[0].User.ID != "1" {
		t.Fatalf("cleared hook got %+v", cleared)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyStore()
	revoker := &recordingRevoker{}
	s := newTestStore(t, backend, Options{Revoker: revoker})
	s.Restore(ctx)
	_, _ = s.Establish(ctx, testUser("1"), Credentials{Access: "A", Refresh: "R"})

	first, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("first Clear: %v", err)
	}
	second, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if second.Version != first.Version || second.Phase != PhaseAnonymous {
		t.Fatalf("second clear published a new snapshot: %+v vs %+v", second, first)
	}
	if n := len(revoker.calls()); n != 1 {
		t.Fatalf("revoke called %d times, want 1", n)
	}
}

func TestClearRevokeFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	revoker := &recordingRevoker{err: errors.New("service down")}
	var revokeErrs int
	s := newTestStore(t, storage.NewMemoryStore(), Options{Revoker: revoker, Hooks: Hooks{
		RevokeFailure: func(context.Context, error) { revokeErrs++ },
	}})
	s.Restore(ctx)
	_, _ = s.Establish(ctx, testUser("1"), Credentials{Access: "A", Refresh: "R"})

	snap, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if snap.Phase != PhaseAnonymous {
		t.Fatalf("phase = %v, want anonymous", snap.Phase)
	}
	if revokeErrs != 1 {
		t.Fatalf("revoke failure hook calls = %d, want 1", revokeErrs)
	}
}

func TestClearRemovalFailureStillSignsOut(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyStore()
	s := newTestStore(t, backend, Options{})
	s.Restore(ctx)
	_, _ = s.Establish(ctx, testUser("1"), Credentials{Access: "A", Refresh: "R"})

	backend.failRm = true
	snap, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if snap.Phase != PhaseAnonymous || snap.Durable {
		t.Fatalf("expected anonymous non-durable snapshot, got %+v", snap)
	}
}

func TestRotateAndInvalidateAreConditional(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore(), Options{})
	s.Restore(ctx)
	_, _ = s.Establish(ctx, testUser("1"), Credentials{Access: "A1", Refresh: "R1"})

	rotated, err := s.Rotate(ctx, "R1", Credentials{Access: "A2", Refresh: "R2"})
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rotated.Credentials.Access != "A2" || rotated.User.ID != "1" {
		t.Fatalf("unexpected rotated snapshot %+v", rotated)
	}

	if _, err := s.Rotate(ctx, "R1", Credentials{Access: "A3", Refresh: "R3"}); !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("stale Rotate: %v", err)
	}
	if _, err := s.Invalidate(ctx, "R1"); !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("stale Invalidate: %v", err)
	}
	if !s.Snapshot().Authenticated() {
		t.Fatal("stale Invalidate signed out a newer session")
	}

	snap, err := s.Invalidate(ctx, "R2")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if snap.Phase != PhaseAnonymous {
		t.Fatalf("phase = %v, want anonymous", snap.Phase)
	}
}

func TestRotateKeepsRefreshWhenNotReissued(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore(), Options{})
	s.Restore(ctx)
	_, _ = s.Establish(ctx, testUser("1"), Credentials{Access: "A1", Refresh: "R1"})

	snap, err := s.Rotate(ctx, "R1", Credentials{Access: "A2"})
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if snap.Credentials.Refresh != "R1" {
		t.Fatalf("refresh = %q, want R1", snap.Credentials.Refresh)
	}
}

func TestReplaceUserRequiresSameUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore(), Options{})
	s.Restore(ctx)
	_, _ = s.Establish(ctx, testUser("1"), Credentials{Access: "A", Refresh: "R"})

	updated := testUser("1")
	updated.FullName = "Renamed"
	snap, err := s.ReplaceUser(ctx, updated)
	if err != nil {
		t.Fatalf("ReplaceUser: %v", err)
	}
	if snap.User.DisplayName() != "Renamed" || snap.Credentials.Access != "A" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := s.ReplaceUser(ctx, testUser("2")); !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("ReplaceUser for another user: %v", err)
	}
}

func TestSubscribeDeliversLatest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore(), Options{})
	ch, cancel := s.Subscribe()
	defer cancel()

	if first := <-ch; first.Phase != PhaseLoading {
		t.Fatalf("first delivery phase = %v, want loading", first.Phase)
	}

	s.Restore(ctx)
	_, _ = s.Establish(ctx, testUser("1"), Credentials{Access: "A"})
	_, _ = s.Clear(ctx)

	select {
	case got := <-ch:
		if got.Phase != PhaseAnonymous || got.Version != s.Snapshot().Version {
			t.Fatalf("expected latest snapshot, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestConcurrentTransitionsNeverMixFields(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	s := newTestStore(t, backend, Options{})
	s.Restore(ctx)

	ch, cancel := s.Subscribe()
	defer cancel()

	done := make(chan struct{})
	var observed []Snapshot
	var obsWG sync.WaitGroup
	obsWG.Add(1)
	go func() {
		defer obsWG.Done()
		for {
			select {
			case snap := <-ch:
				observed = append(observed, snap)
			case <-done:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("u%d-%d", w, i)
				if i%3 == 0 {
					_, _ = s.Clear(ctx)
					continue
				}
				_, _ = s.Establish(ctx, testUser(id), Credentials{Access: "access-" + id, Refresh: "refresh-" + id})
				checkConsistent(t, s.Snapshot())
			}
		}(w)
	}
	wg.Wait()
	close(done)
	obsWG.Wait()

	for _, snap := range observed {
		checkConsistent(t, snap)
	}

	final := s.Snapshot()
	restarted := newTestStore(t, backend, Options{}).Restore(ctx)
	if final.Phase != restarted.Phase {
		t.Fatalf("persisted phase %v does not match in-memory %v", restarted.Phase, final.Phase)
	}
	if final.Authenticated() && restarted.User.ID != final.User.ID {
		t.Fatalf("persisted user %q does not match in-memory %q", restarted.User.ID, final.User.ID)
	}
}

func TestRandomTransitionsHoldInvariant(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	backend := newFlakyStore()
	s := newTestStore(t, backend, Options{Revoker: &recordingRevoker{}})
	s.Restore(ctx)

	var lastVersion uint64
	for i := 0; i < 500; i++ {
		backend.mu.Lock()
		backend.failSetOn[DefaultKeys().Refresh] = rng.Intn(5) == 0
		backend.failRm = rng.Intn(7) == 0
		backend.mu.Unlock()

		switch rng.Intn(4) {
		case 0, 1:
			id := fmt.Sprintf("%d", rng.Intn(10))
			_, _ = s.Establish(ctx, testUser(id), Credentials{Access: "access-" + id, Refresh: "refresh-" + id})
		case 2:
			_, _ = s.Clear(ctx)
		case 3:
			_, _ = s.Rotate(ctx, s.Snapshot().Credentials.Refresh, Credentials{Access: "access-rotated", Refresh: "refresh-rotated"})
		}

		snap := s.Snapshot()
		if snap.Phase == PhaseLoading {
			t.Fatalf("step %d: loading re-entered", i)
		}
		if snap.Version < lastVersion {
			t.Fatalf("step %d: version went backwards", i)
		}
		lastVersion = snap.Version
		if (snap.Phase == PhaseAuthenticated) != (snap.User != nil && snap.Credentials.Access != "") {
			t.Fatalf("step %d: phase/user invariant broken: %+v", i, snap)
		}
	}
}

func checkConsistent(t *testing.T, snap Snapshot) {
	t.Helper()
	switch snap.Phase {
	case PhaseAuthenticated:
		if snap.User == nil {
			t.Errorf("authenticated snapshot without user: %+v", snap)
			return
		}
		if snap.Credentials.Access != "access-"+string(snap.User.ID) {
			t.Errorf("mixed snapshot: user %q with access %q", snap.User.ID, snap.Credentials.Access)
		}
	case PhaseAnonymous:
		if snap.User != nil || snap.Credentials.Access != "" {
			t.Errorf("anonymous snapshot carries session data: %+v", snap)
		}
	}
}

func TestKeysValidate(t *testing.T) {
	if err := DefaultKeys().Validate(); err != nil {
		t.Fatalf("default keys: %v", err)
	}
	if err := (Keys{Access: "a", Refresh: "a", User: "u"}).Validate(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	if _, err := NewStore(storage.NewMemoryStore(), Options{Keys: Keys{Access: "a"}}); err == nil {
		t.Fatal("expected error for partial keys")
	}
}

func TestRestoreWipesCorruptDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write document: %v", err)
	}
	backend, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	var outcome RestoreOutcome = 255
	var failures []string
	s := newTestStore(t, backend, Options{Hooks: Hooks{
		Restored:           func(_ context.Context, _ Snapshot, o RestoreOutcome) { outcome = o },
		PersistenceFailure: func(_ context.Context, _ Snapshot, op string, _ error) { failures = append(failures, op) },
	}})
	snap := s.Restore(ctx)
	if snap.Phase != PhaseAnonymous || !snap.Durable {
		t.Fatalf("expected durable anonymous snapshot, got %+v", snap)
	}
	if outcome != RestoreCorrupt {
		t.Fatalf("outcome = %v, want corrupt", outcome)
	}
	if len(failures) != 1 || failures[0] != "restore" {
		t.Fatalf("unexpected failure ops %v", failures)
	}

	established, err := s.Establish(ctx, testUser("1"), Credentials{Access: "A", Refresh: "R"})
	if err != nil || !established.Durable {
		t.Fatalf("establish after wipe: durable=%v err=%v", established.Durable, err)
	}

	reopened, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	restored := newTestStore(t, reopened, Options{}).Restore(ctx)
	if !restored.Authenticated() || restored.User.ID != "1" || restored.Credentials.Refresh != "R" {
		t.Fatalf("expected session to survive restart, got %+v", restored)
	}
}

// gatedRevoker blocks the first Revoke until release is closed.
type gatedRevoker struct {
	recordingRevoker
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gatedRevoker) Revoke(ctx context.Context, refresh string) error {
	_ = g.recordingRevoker.Revoke(ctx, refresh)
	first := false
	g.once.Do(func() {
		first = true
		close(g.started)
	})
	if first {
		<-g.release
	}
	return nil
}

func TestClearLeavesSessionEstablishedDuringRevoke(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	revoker := &gatedRevoker{started: make(chan struct{}), release: make(chan struct{})}
	s := newTestStore(t, backend, Options{Revoker: revoker})
	s.Restore(ctx)
	if _, err := s.Establish(ctx, testUser("1"), Credentials{Access: "A1", Refresh: "RA"}); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := s.Clear(ctx)
		done <- result{snap, err}
	}()

	<-revoker.started
	if _, err := s.Establish(ctx, testUser("2"), Credentials{Access: "A2", Refresh: "RB"}); err != nil {
		t.Fatalf("Establish during revoke: %v", err)
	}
	close(revoker.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Clear did not return")
	}
	if !errors.Is(res.err, ErrSessionChanged) {
		t.Fatalf("Clear err = %v, want ErrSessionChanged", res.err)
	}
	if !res.snap.Authenticated() || res.snap.Credentials.Refresh != "RB" {
		t.Fatalf("Clear must return the newer session, got %+v", res.snap)
	}
	if cur := s.Snapshot(); !cur.Authenticated() || cur.User.ID != "2" {
		t.Fatalf("newer session was cleared: %+v", cur)
	}
	if calls := revoker.calls(); len(calls) != 1 || calls[0] != "RA" {
		t.Fatalf("unexpected revoke calls %v", calls)
	}
	restored := newTestStore(t, backend, Options{}).Restore(ctx)
	if !restored.Authenticated() || restored.Credentials.Refresh != "RB" {
		t.Fatalf("newer session must stay persisted, got %+v", restored)
	}
}

func TestPersistenceFailureCarriesPublishedSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyStore()
	var reported []Snapshot
	s := newTestStore(t, backend, Options{Hooks: Hooks{
		PersistenceFailure: func(_ context.Context, snap Snapshot, _ string, _ error) { reported = append(reported, snap) },
	}})
	s.Restore(ctx)

	backend.failSetOn[DefaultKeys().User] = true
	established, err := s.Establish(ctx, testUser("7"), Credentials{Access: "A", Refresh: "R"})
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if len(reported) == 0 {
		t.Fatal("expected a persistence failure report")
	}
	if got := reported[0]; got.Version != established.Version || !got.Authenticated() || got.User.ID != "7" || got.Durable {
		t.Fatalf("establish failure reported %+v, want %+v", got, established)
	}

	reported = nil
	backend.mu.Lock()
	backend.failRm = true
	backend.mu.Unlock()
	cleared, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(reported) != 1 || reported[0].Phase != PhaseAnonymous || reported[0].Version != cleared.Version {
		t.Fatalf("clear failure reported %+v, want %+v", reported, cleared)
	}
}
