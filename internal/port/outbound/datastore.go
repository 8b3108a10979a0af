// Package outbound defines the ports to the hosted backend collaborators.
package outbound

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for data store operations.
var (
	// ErrNotFound is returned for a point read that matched no record.
	// Callers use this to distinguish "row missing" from transient failure,
	// which matters for self-healing profile creation.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when an insert violates a uniqueness key.
	ErrConflict = errors.New("record already exists")
)

// ProfileRecord is a row in the profiles collection, 1:1 with a user.
type ProfileRecord struct {
	UserID   string
	FullName string
	Role     string
}

// CartItemRecord is a row in the cart_items collection.
// Uniqueness key: (UserID, ProductID, SelectedColor, SelectedSize).
type CartItemRecord struct {
	ID            string
	UserID        string
	ProductID     string
	Quantity      int
	SelectedColor string
	SelectedSize  string
	PriceSnapshot int64
}

// FavoriteRecord is a row in the favorites collection.
// Uniqueness key: (UserID, ProductID).
type FavoriteRecord struct {
	ID        string
	UserID    string
	ProductID string
}

// ProductRecord is the denormalized display copy fetched for cart and
// favorites rendering. The store owns the schema; we only read it.
type ProductRecord struct {
	ID       string
	Title    string
	ImageURL string
	Price    int64
}

// LoginAttemptRecord is a row in the login_attempts collection.
type LoginAttemptRecord struct {
	Email       string
	Success     bool
	AttemptTime time.Time
}

// DataStore is the port to the hosted record store. The store is the
// system of record and may be written concurrently by other clients, so
// implementations rely on per-row uniqueness keys, never client locking.
//
// Implementations: memory (tests), sqlite (dev server), rest (hosted).
type DataStore interface {
	// GetProfile performs a point read by user ID.
	// Returns ErrNotFound if no profile row exists.
	GetProfile(ctx context.Context, userID string) (*ProfileRecord, error)

	// CreateProfile inserts a new profile row.
	// Returns ErrConflict if a row for the user already exists.
	CreateProfile(ctx context.Context, profile *ProfileRecord) error

	// ListCartItems returns all cart rows for the user.
	ListCartItems(ctx context.Context, userID string) ([]CartItemRecord, error)

	// UpsertCartItem inserts or updates a cart row keyed by
	// (UserID, ProductID, SelectedColor, SelectedSize).
	// The returned record carries the store-assigned ID.
	UpsertCartItem(ctx context.Context, item *CartItemRecord) (*CartItemRecord, error)

	// UpdateCartItemQuantity sets the quantity on an existing cart row.
	// Returns ErrNotFound if the row doesn't exist.
	UpdateCartItemQuantity(ctx context.Context, id string, quantity int) error

	// DeleteCartItem removes a cart row by ID.
	// Deleting an absent row is not an error.
	DeleteCartItem(ctx context.Context, id string) error

	// ListFavorites returns all favorite rows for the user.
	ListFavorites(ctx context.Context, userID string) ([]FavoriteRecord, error)

	// UpsertFavorite inserts a favorite row keyed by (UserID, ProductID).
	// Upserting an existing pair returns the existing row unchanged, so a
	// double toggle can never produce two rows for the same pair.
	UpsertFavorite(ctx context.Context, fav *FavoriteRecord) (*FavoriteRecord, error)

	// DeleteFavorite removes the row for (userID, productID).
	// Deleting an absent pair is not an error.
	DeleteFavorite(ctx context.Context, userID, productID string) error

	// BatchGetProducts fetches display copy for the given product IDs.
	// Unknown IDs are silently absent from the result.
	BatchGetProducts(ctx context.Context, ids []string) ([]ProductRecord, error)

	// RecordLoginAttempt appends a row to the login_attempts collection.
	RecordLoginAttempt(ctx context.Context, attempt *LoginAttemptRecord) error
}
