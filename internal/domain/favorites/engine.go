// Package favorites reconciles the local favorites view with the
// remote store. Membership is a pure (user, product) relation; the
// product display copy is held only in the local cache.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verdant-market/storecore/internal/domain/event"
	"github.com/verdant-market/storecore/internal/domain/inflight"
	"github.com/verdant-market/storecore/internal/domain/session"
	"github.com/verdant-market/storecore/internal/port/outbound"
)

// ErrNotAuthenticated is returned when no valid session is held.
var ErrNotAuthenticated = errors.New("not authenticated")

// DefaultTimeout bounds each remote fetch.
const DefaultTimeout = 8 * time.Second

// Entry pairs a favorite membership with its cached display copy.
type Entry struct {
	ProductID string
	Product   outbound.ProductRecord
}

// Engine is the favorites sync engine: the sole writer of the local
// favorites cache. Toggles apply locally only after the remote write
// succeeds; the (user, product) uniqueness key makes a double toggle
// land back on the starting state with at most one remote row.
type Engine struct {
	store    outbound.DataStore
	sessions session.Source
	bus      *event.Bus
	logger   *slog.Logger
	flights  *inflight.Registry
	life     *inflight.Lifetime
	timeout  time.Duration

	mu       sync.RWMutex
	rows     map[string]outbound.FavoriteRecord // keyed by product id
	products map[string]outbound.ProductRecord
}

// NewEngine creates a favorites Engine.
func NewEngine(
	store outbound.DataStore,
	sessions session.Source,
	bus *event.Bus,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		sessions: sessions,
		bus:      bus,
		logger:   logger,
		flights:  inflight.NewRegistry(),
		life:     inflight.NewLifetime(),
		timeout:  DefaultTimeout,
		rows:     make(map[string]outbound.FavoriteRecord),
		products: make(map[string]outbound.ProductRecord),
	}
}

// SetTimeout overrides the per-fetch timeout. Tests shrink it.
func (e *Engine) SetTimeout(d time.Duration) { e.timeout = d }

// Load fetches the user's favorite rows, then batch-fetches display
// copy for the resulting id set; the second fetch is skipped when the
// set is empty. Concurrent calls are suppressed to a single flight,
// and a response arriving after Close is discarded.
func (e *Engine) Load(ctx context.Context) error {
	if !e.life.Alive() {
		return nil
	}
	sess := e.sessions.CurrentSession()
	if sess == nil {
		return ErrNotAuthenticated
	}

	key := "favorites:" + sess.UserID
	if !e.flights.TryAcquire(key) {
		return nil
	}
	defer e.flights.Release(key)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	favRows, err := e.store.ListFavorites(callCtx, sess.UserID)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}

	products := make(map[string]outbound.ProductRecord, len(favRows))
	if len(favRows) > 0 {
		ids := make([]string, 0, len(favRows))
		for _, r := range favRows {
			ids = append(ids, r.ProductID)
		}
		records, err := e.store.BatchGetProducts(callCtx, ids)
		if err != nil {
			return fmt.Errorf("load favorites display copy: %w", err)
		}
		for _, p := range records {
			products[p.ID] = p
		}
	}

	if !e.life.Alive() {
		e.logger.Debug("discarding favorites load, engine closed")
		return nil
	}

	rows := make(map[string]outbound.FavoriteRecord, len(favRows))
	for _, r := range favRows {
		rows[r.ProductID] = r
	}

	e.mu.Lock()
	e.rows = rows
	e.products = products
	e.mu.Unlock()

	e.bus.Publish(event.TopicFavorites)
	return nil
}

// Toggle flips membership for the product. The remote write happens
// first; local state changes only on confirmation, so a rejected
// write leaves the view untouched.
func (e *Engine) Toggle(ctx context.Context, productID string) error {
	sess := e.sessions.CurrentSession()
	if sess == nil {
		return ErrNotAuthenticated
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.mu.RLock()
	_, member := e.rows[productID]
	e.mu.RUnlock()

	if member {
		if err := e.store.DeleteFavorite(callCtx, sess.UserID, productID); err != nil {
			return fmt.Errorf("remove favorite: %w", err)
		}
		if !e.life.Alive() {
			return nil
		}
		e.mu.Lock()
		delete(e.rows, productID)
		delete(e.products, productID)
		e.mu.Unlock()
	} else {
		saved, err := e.store.UpsertFavorite(callCtx, &outbound.FavoriteRecord{
			UserID:    sess.UserID,
			ProductID: productID,
		})
		if err != nil {
			return fmt.Errorf("add favorite: %w", err)
		}

		// Fetch display copy for the new entry so the dropdown can
		// render it without a full reload.
		var product outbound.ProductRecord
		if records, err := e.store.BatchGetProducts(callCtx, []string{productID}); err == nil && len(records) > 0 {
			product = records[0]
		}

		if !e.life.Alive() {
			return nil
		}
		e.mu.Lock()
		e.rows[productID] = *saved
		e.products[productID] = product
		e.mu.Unlock()
	}

	e.bus.Publish(event.TopicFavorites)
	return nil
}

// IsFavorite reports membership for the product in the local view.
func (e *Engine) IsFavorite(productID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.rows[productID]
	return ok
}

// Entries returns a copy of the local favorites view.
func (e *Engine) Entries() []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Entry, 0, len(e.rows))
	for productID := range e.rows {
		out = append(out, Entry{
			ProductID: productID,
			Product:   e.products[productID],
		})
	}
	return out
}

// Count returns the number of favorites, for the header badge.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rows)
}

// Clear drops the local cache without touching the store. Called on
// sign-out.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.rows = make(map[string]outbound.FavoriteRecord)
	e.products = make(map[string]outbound.ProductRecord)
	e.mu.Unlock()
	e.bus.Publish(event.TopicFavorites)
}

// Close marks the engine unmounted. In-flight responses arriving
// afterwards are discarded.
func (e *Engine) Close() { e.life.Close() }
