// Package memory provides an in-memory DataStore for development and
// tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/verdant-market/storecore/internal/port/outbound"
)

// DataStore implements outbound.DataStore with in-memory maps.
// Thread-safe for concurrent access. Enforces the same uniqueness keys
// the hosted store does, so upsert semantics match production.
type DataStore struct {
	mu        sync.RWMutex
	profiles  map[string]outbound.ProfileRecord  // by user id
	cartItems map[string]outbound.CartItemRecord // by row id
	favorites map[string]outbound.FavoriteRecord // by row id
	products  map[string]outbound.ProductRecord  // by product id
	attempts  []outbound.LoginAttemptRecord
}

// NewDataStore creates an empty DataStore.
func NewDataStore() *DataStore {
	return &DataStore{
		profiles:  make(map[string]outbound.ProfileRecord),
		cartItems: make(map[string]outbound.CartItemRecord),
		favorites: make(map[string]outbound.FavoriteRecord),
		products:  make(map[string]outbound.ProductRecord),
	}
}

// SeedProducts loads product display records, replacing any existing
// entries with the same id.
func (s *DataStore) SeedProducts(products []outbound.ProductRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products[p.ID] = p
	}
}

// GetProfile performs a point read by user ID.
func (s *DataStore) GetProfile(ctx context.Context, userID string) (*outbound.ProfileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, outbound.ErrNotFound
	}
	return &p, nil
}

// CreateProfile inserts a new profile row.
func (s *DataStore) CreateProfile(ctx context.Context, profile *outbound.ProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.UserID]; ok {
		return outbound.ErrConflict
	}
	s.profiles[profile.UserID] = *profile
	return nil
}

// ListCartItems returns all cart rows for the user.
func (s *DataStore) ListCartItems(ctx context.Context, userID string) ([]outbound.CartItemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []outbound.CartItemRecord
	for _, item := range s.cartItems {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

// UpsertCartItem inserts or updates a cart row keyed by
// (UserID, ProductID, SelectedColor, SelectedSize).
func (s *DataStore) UpsertCartItem(ctx context.Context, item *outbound.CartItemRecord) (*outbound.CartItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *item
	for id, existing := range s.cartItems {
		if existing.UserID == item.UserID &&
			existing.ProductID == item.ProductID &&
			existing.SelectedColor == item.SelectedColor &&
			existing.SelectedSize == item.SelectedSize {
			saved.ID = id
			s.cartItems[id] = saved
			return &saved, nil
		}
	}
	saved.ID = uuid.New().String()
	s.cartItems[saved.ID] = saved
	return &saved, nil
}

// UpdateCartItemQuantity sets the quantity on an existing cart row.
func (s *DataStore) UpdateCartItemQuantity(ctx context.Context, id string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cartItems[id]
	if !ok {
		return outbound.ErrNotFound
	}
	item.Quantity = quantity
	s.cartItems[id] = item
	return nil
}

// DeleteCartItem removes a cart row by ID.
func (s *DataStore) DeleteCartItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cartItems, id)
	return nil
}

// ListFavorites returns all favorite rows for the user.
func (s *DataStore) ListFavorites(ctx context.Context, userID string) ([]outbound.FavoriteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []outbound.FavoriteRecord
	for _, fav := range s.favorites {
		if fav.UserID == userID {
			out = append(out, fav)
		}
	}
	return out, nil
}

// UpsertFavorite inserts a favorite row keyed by (UserID, ProductID).
// An existing pair is returned unchanged, never duplicated.
func (s *DataStore) UpsertFavorite(ctx context.Context, fav *outbound.FavoriteRecord) (*outbound.FavoriteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.favorites {
		if existing.UserID == fav.UserID && existing.ProductID == fav.ProductID {
			out := existing
			return &out, nil
		}
	}
	saved := *fav
	saved.ID = uuid.New().String()
	s.favorites[saved.ID] = saved
	return &saved, nil
}

// DeleteFavorite removes the row for (userID, productID).
func (s *DataStore) DeleteFavorite(ctx context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, fav := range s.favorites {
		if fav.UserID == userID && fav.ProductID == productID {
			delete(s.favorites, id)
			return nil
		}
	}
	return nil
}

// BatchGetProducts fetches display copy for the given product IDs.
// Unknown IDs are silently absent from the result.
func (s *DataStore) BatchGetProducts(ctx context.Context, ids []string) ([]outbound.ProductRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]outbound.ProductRecord, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// RecordLoginAttempt appends a row to the login attempts log.
func (s *DataStore) RecordLoginAttempt(ctx context.Context, attempt *outbound.LoginAttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *attempt)
	return nil
}

// LoginAttempts returns a copy of the recorded attempts. Useful for
// tests and the dev server.
func (s *DataStore) LoginAttempts() []outbound.LoginAttemptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]outbound.LoginAttemptRecord, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// FavoriteRowCount returns the number of favorite rows for the pair.
// Tests use it to assert the uniqueness invariant.
func (s *DataStore) FavoriteRowCount(userID, productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, fav := range s.favorites {
		if fav.UserID == userID && fav.ProductID == productID {
			n++
		}
	}
	return n
}

// Compile-time interface verification.
var _ outbound.DataStore = (*DataStore)(nil)
