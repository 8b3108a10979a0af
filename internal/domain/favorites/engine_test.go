package favorites

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/verdant-market/storecore/internal/adapter/outbound/memory"
	"github.com/verdant-market/storecore/internal/domain/event"
	"github.com/verdant-market/storecore/internal/domain/session"
	"github.com/verdant-market/storecore/internal/port/outbound"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSessions serves a fixed session.
type fakeSessions struct {
	sess *session.Session
}

func (f *fakeSessions) CurrentSession() *session.Session { return f.sess }

func signedIn(userID string) *fakeSessions {
	return &fakeSessions{sess: &session.Session{
		UserID:    userID,
		Email:     userID + "@example.com",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		Valid:     true,
	}}
}

// countingStore counts fetches and can hold them open.
type countingStore struct {
	outbound.DataStore
	mu         sync.Mutex
	listCalls  int
	batchCalls int
	hold       chan struct{} // when set, ListFavorites blocks until closed
}

func (s *countingStore) ListFavorites(ctx context.Context, userID string) ([]outbound.FavoriteRecord, error) {
	s.mu.Lock()
	s.listCalls++
	hold := s.hold
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return s.DataStore.ListFavorites(ctx, userID)
}

func (s *countingStore) BatchGetProducts(ctx context.Context, ids []string) ([]outbound.ProductRecord, error) {
	s.mu.Lock()
	s.batchCalls++
	s.mu.Unlock()
	return s.DataStore.BatchGetProducts(ctx, ids)
}

func (s *countingStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls, s.batchCalls
}

func newTestEngine(sessions session.Source) (*Engine, *memory.DataStore) {
	store := memory.NewDataStore()
	store.SeedProducts([]outbound.ProductRecord{
		{ID: "p1", Title: "Linen Shirt", Price: 4500},
		{ID: "p2", Title: "Wool Scarf", Price: 2900},
	})
	return NewEngine(store, sessions, event.NewBus(testLogger()), testLogger()), store
}

func TestEngine_ToggleTwiceRestoresOriginalState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, store := newTestEngine(signedIn("u1"))

	if e.IsFavorite("p1") {
		t.Fatal("precondition: p1 already favorited")
	}

	if err := e.Toggle(ctx, "p1"); err != nil {
		t.Fatalf("first Toggle() error: %v", err)
	}
	if !e.IsFavorite("p1") {
		t.Error("IsFavorite() = false after first toggle")
	}
	if got := store.FavoriteRowCount("u1", "p1"); got != 1 {
		t.Errorf("remote rows = %d after first toggle, want 1", got)
	}

	if err := e.Toggle(ctx, "p1"); err != nil {
		t.Fatalf("second Toggle() error: %v", err)
	}
	if e.IsFavorite("p1") {
		t.Error("IsFavorite() = true after double toggle, want original state")
	}
	if got := store.FavoriteRowCount("u1", "p1"); got != 0 {
		t.Errorf("remote rows = %d after double toggle, want 0", got)
	}
}

func TestEngine_ToggleNeverDuplicatesRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, store := newTestEngine(signedIn("u1"))

	for i := 0; i < 5; i++ {
		if err := e.Toggle(ctx, "p1"); err != nil {
			t.Fatalf("Toggle() #%d error: %v", i, err)
		}
		if got := store.FavoriteRowCount("u1", "p1"); got > 1 {
			t.Fatalf("remote rows = %d, invariant is one or zero", got)
		}
	}
}

func TestEngine_LoadSingleFlight(t *testing.T) {
	t.Parallel()

	sessions := signedIn("u1")
	inner := memory.NewDataStore()
	store := &countingStore{DataStore: inner, hold: make(chan struct{})}
	e := NewEngine(store, sessions, event.NewBus(testLogger()), testLogger())

	done := make(chan error, 1)
	go func() { done <- e.Load(context.Background()) }()

	// Wait for the first load to reach the store.
	deadline := time.After(2 * time.Second)
	for {
		if calls, _ := store.counts(); calls == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first load never reached the store")
		case <-time.After(time.Millisecond):
		}
	}

	// A second load while the first is in flight is suppressed.
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("concurrent Load() error: %v", err)
	}

	close(store.hold)
	if err := <-done; err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if calls, _ := store.counts(); calls != 1 {
		t.Errorf("remote fetch sequences = %d, want exactly 1", calls)
	}
}

func TestEngine_LoadSkipsBatchFetchWhenEmpty(t *testing.T) {
	t.Parallel()

	sessions := signedIn("u1")
	store := &countingStore{DataStore: memory.NewDataStore()}
	e := NewEngine(store, sessions, event.NewBus(testLogger()), testLogger())

	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if _, batch := store.counts(); batch != 0 {
		t.Errorf("batch fetches = %d for empty id set, want 0", batch)
	}
}

func TestEngine_LoadTwoStepFetch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sessions := signedIn("u1")
	inner := memory.NewDataStore()
	inner.SeedProducts([]outbound.ProductRecord{{ID: "p1", Title: "Linen Shirt", Price: 4500}})
	if _, err := inner.UpsertFavorite(ctx, &outbound.FavoriteRecord{UserID: "u1", ProductID: "p1"}); err != nil {
		t.Fatalf("UpsertFavorite() error: %v", err)
	}

	store := &countingStore{DataStore: inner}
	e := NewEngine(store, sessions, event.NewBus(testLogger()), testLogger())

	if err := e.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	entries := e.Entries()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Product.Title != "Linen Shirt" {
		t.Errorf("display copy = %+v, want Linen Shirt", entries[0].Product)
	}
	if list, batch := store.counts(); list != 1 || batch != 1 {
		t.Errorf("fetches = (%d list, %d batch), want (1, 1)", list, batch)
	}
}

func TestEngine_LateResponseDiscardedAfterClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sessions := signedIn("u1")
	inner := memory.NewDataStore()
	if _, err := inner.UpsertFavorite(ctx, &outbound.FavoriteRecord{UserID: "u1", ProductID: "p1"}); err != nil {
		t.Fatalf("UpsertFavorite() error: %v", err)
	}
	store := &countingStore{DataStore: inner, hold: make(chan struct{})}
	e := NewEngine(store, sessions, event.NewBus(testLogger()), testLogger())

	done := make(chan error, 1)
	go func() { done <- e.Load(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for {
		if calls, _ := store.counts(); calls == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("load never reached the store")
		case <-time.After(time.Millisecond):
		}
	}

	// Engine torn down while the response is in flight.
	e.Close()
	close(store.hold)
	if err := <-done; err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := e.Count(); got != 0 {
		t.Errorf("Count() = %d after discarded late response, want 0", got)
	}
}

func TestEngine_ToggleFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sessions := signedIn("u1")
	store := &failingStore{DataStore: memory.NewDataStore()}
	e := NewEngine(store, sessions, event.NewBus(testLogger()), testLogger())

	err := e.Toggle(ctx, "p1")
	if err == nil {
		t.Fatal("Toggle() error = nil, want remote failure")
	}
	if e.IsFavorite("p1") {
		t.Error("IsFavorite() = true after rejected write, local state must be untouched")
	}
}

// failingStore rejects all favorite writes.
type failingStore struct {
	outbound.DataStore
}

func (s *failingStore) UpsertFavorite(ctx context.Context, fav *outbound.FavoriteRecord) (*outbound.FavoriteRecord, error) {
	return nil, errors.New("permission denied")
}

func TestEngine_LoadTimesOutAndKeepsPreviousState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sessions := signedIn("u1")
	store := &stallingStore{DataStore: memory.NewDataStore()}
	e := NewEngine(store, sessions, event.NewBus(testLogger()), testLogger())
	e.SetTimeout(20 * time.Millisecond)

	err := e.Load(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Load() error = %v, want DeadlineExceeded", err)
	}
	if got := e.Count(); got != 0 {
		t.Errorf("Count() = %d, want previous (empty) state", got)
	}
}

// stallingStore blocks list reads until the context gives up.
type stallingStore struct {
	outbound.DataStore
}

func (s *stallingStore) ListFavorites(ctx context.Context, userID string) ([]outbound.FavoriteRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_RequiresSession(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(&fakeSessions{})

	if err := e.Load(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Load() error = %v, want ErrNotAuthenticated", err)
	}
	if err := e.Toggle(context.Background(), "p1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Toggle() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestEngine_ChangeNotificationBroadcast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bus := event.NewBus(testLogger())
	store := memory.NewDataStore()
	e := NewEngine(store, signedIn("u1"), bus, testLogger())

	var mu sync.Mutex
	notified := 0
	unsub := bus.Subscribe(event.TopicFavorites, func(event.Topic) {
		mu.Lock()
		notified++
		mu.Unlock()
	})
	defer unsub()

	if err := e.Toggle(ctx, "p1"); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}

	mu.Lock()
	got := notified
	mu.Unlock()
	if got != 1 {
		t.Errorf("notifications = %d, want 1", got)
	}
}
