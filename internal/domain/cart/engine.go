package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verdant-market/storecore/internal/domain/event"
	"github.com/verdant-market/storecore/internal/domain/inflight"
	"github.com/verdant-market/storecore/internal/domain/session"
	"github.com/verdant-market/storecore/internal/port/outbound"
)

// DefaultTimeout bounds each remote fetch. On timeout the engine keeps
// its previous state and surfaces a recoverable error; it never
// retries indefinitely.
const DefaultTimeout = 8 * time.Second

// Engine is the cart sync engine: the sole writer of the local cart
// cache. Mutations apply locally only after the remote write succeeds,
// so the UI never shows a state the store rejected.
type Engine struct {
	store    outbound.DataStore
	sessions session.Source
	bus      *event.Bus
	logger   *slog.Logger
	flights  *inflight.Registry
	life     *inflight.Lifetime
	timeout  time.Duration

	mu    sync.RWMutex
	lines []Line
}

// NewEngine creates a cart Engine.
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
	}
}

// SetTimeout overrides the per-fetch timeout. Tests shrink it.
func (e *Engine) SetTimeout(d time.Duration) { e.timeout = d }

// Load fetches the user's cart rows and their product display copy.
// A call while a load is already in flight is a no-op, not queued. A
// response arriving after Close is discarded without touching state.
func (e *Engine) Load(ctx context.Context) error {
	if !e.life.Alive() {
		return nil
	}
	sess := e.sessions.CurrentSession()
	if sess == nil {
		return ErrNotAuthenticated
	}

	key := "cart:" + sess.UserID
	if !e.flights.TryAcquire(key) {
		return nil
	}
	defer e.flights.Release(key)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.store.ListCartItems(callCtx, sess.UserID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	products, err := e.fetchDisplayCopy(callCtx, productIDs(rows))
	if err != nil {
		return fmt.Errorf("load cart display copy: %w", err)
	}

	if !e.life.Alive() {
		e.logger.Debug("discarding cart load, engine closed")
		return nil
	}

	lines := make([]Line, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, Line{
			Item: Item{
				ID:            r.ID,
				ProductID:     r.ProductID,
				Quantity:      r.Quantity,
				SelectedColor: r.SelectedColor,
				SelectedSize:  r.SelectedSize,
				PriceSnapshot: r.PriceSnapshot,
			},
			Product: products[r.ProductID],
		})
	}

	e.mu.Lock()
	e.lines = lines
	e.mu.Unlock()

	e.bus.Publish(event.TopicCart)
	return nil
}

// Add upserts a cart row for the product variant, snapshotting the
// current price. The local cache updates only after the store
// confirms the write.
func (e *Engine) Add(ctx context.Context, productID string, quantity int, color, size string) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	sess := e.sessions.CurrentSession()
	if sess == nil {
		return ErrNotAuthenticated
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	products, err := e.store.BatchGetProducts(callCtx, []string{productID})
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	if len(products) == 0 {
		return ErrUnknownProduct
	}
	product := products[0]

	// Merge with an existing row for the same variant so the remote
	// uniqueness key never sees a duplicate insert.
	existingQty := 0
	e.mu.RLock()
	for _, l := range e.lines {
		if variantKey(l.Item.ProductID, l.Item.SelectedColor, l.Item.SelectedSize) == variantKey(productID, color, size) {
			existingQty = l.Item.Quantity
			break
		}
	}
	e.mu.RUnlock()

	record := &outbound.CartItemRecord{
		UserID:        sess.UserID,
		ProductID:     productID,
		Quantity:      existingQty + quantity,
		SelectedColor: color,
		SelectedSize:  size,
		PriceSnapshot: product.Price,
	}
	saved, err := e.store.UpsertCartItem(callCtx, record)
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}

	if !e.life.Alive() {
		return nil
	}

	e.mu.Lock()
	e.applyUpsert(saved, product)
	e.mu.Unlock()

	e.bus.Publish(event.TopicCart)
	return nil
}

// UpdateQuantity sets the quantity on an existing line.
func (e *Engine) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if e.sessions.CurrentSession() == nil {
		return ErrNotAuthenticated
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.store.UpdateCartItemQuantity(callCtx, itemID, quantity); err != nil {
		return fmt.Errorf("update quantity: %w", err)
	}

	if !e.life.Alive() {
		return nil
	}

	e.mu.Lock()
	for i := range e.lines {
		if e.lines[i].Item.ID == itemID {
			e.lines[i].Item.Quantity = quantity
			break
		}
	}
	e.mu.Unlock()

	e.bus.Publish(event.TopicCart)
	return nil
}

// Remove deletes a line. Removing an absent line is not an error.
func (e *Engine) Remove(ctx context.Context, itemID string) error {
	if e.sessions.CurrentSession() == nil {
		return ErrNotAuthenticated
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.store.DeleteCartItem(callCtx, itemID); err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}

	if !e.life.Alive() {
		return nil
	}

	e.mu.Lock()
	for i := range e.lines {
		if e.lines[i].Item.ID == itemID {
			e.lines = append(e.lines[:i], e.lines[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	e.bus.Publish(event.TopicCart)
	return nil
}

// Lines returns a copy of the local cart view.
func (e *Engine) Lines() []Line {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Line, len(e.lines))
	copy(out, e.lines)
	return out
}

// Count returns the total quantity across lines, for the header badge.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := 0
	for _, l := range e.lines {
		total += l.Item.Quantity
	}
	return total
}

// Clear drops the local cache without touching the store. Called on
// sign-out.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.lines = nil
	e.mu.Unlock()
	e.bus.Publish(event.TopicCart)
}

// Close marks the engine unmounted. In-flight responses arriving
// afterwards are discarded.
func (e *Engine) Close() { e.life.Close() }

// applyUpsert merges a confirmed row into the local cache. Caller
// holds e.mu.
func (e *Engine) applyUpsert(saved *outbound.CartItemRecord, product outbound.ProductRecord) {
	item := Item{
		ID:            saved.ID,
		ProductID:     saved.ProductID,
		Quantity:      saved.Quantity,
		SelectedColor: saved.SelectedColor,
		SelectedSize:  saved.SelectedSize,
		PriceSnapshot: saved.PriceSnapshot,
	}
	for i := range e.lines {
		l := &e.lines[i]
		if variantKey(l.Item.ProductID, l.Item.SelectedColor, l.Item.SelectedSize) ==
			variantKey(saved.ProductID, saved.SelectedColor, saved.SelectedSize) {
			l.Item = item
			return
		}
	}
	e.lines = append(e.lines, Line{Item: item, Product: product})
}

// fetchDisplayCopy batch-reads product records; the fetch is skipped
// entirely when the id set is empty.
func (e *Engine) fetchDisplayCopy(ctx context.Context, ids []string) (map[string]outbound.ProductRecord, error) {
	out := make(map[string]outbound.ProductRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, err := e.store.BatchGetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// productIDs returns the unique product ids in row order.
func productIDs(rows []outbound.CartItemRecord) []string {
	seen := make(map[string]bool, len(rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if !seen[r.ProductID] {
			seen[r.ProductID] = true
			ids = append(ids, r.ProductID)
		}
	}
	return ids
}
