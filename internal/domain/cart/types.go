// Package cart reconciles the local cart view with the remote store.
package cart

import (
	"errors"

	"github.com/verdant-market/storecore/internal/port/outbound"
)

// Engine errors.
var (
	// ErrNotAuthenticated is returned when no valid session is held.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidQuantity is returned for a quantity below 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrUnknownProduct is returned when the product has no store record.
	ErrUnknownProduct = errors.New("unknown product")
)

// Item is one cart row owned by the signed-in user. Uniqueness key:
// (user, product, selected color, selected size).
type Item struct {
	ID            string
	ProductID     string
	Quantity      int
	SelectedColor string
	SelectedSize  string
	PriceSnapshot int64
}

// Line pairs an item with its denormalized product display copy. The
// display copy lives only in this local cache; the store owns it.
type Line struct {
	Item    Item
	Product outbound.ProductRecord
}

// variantKey is the client-side mirror of the store's uniqueness key.
func variantKey(productID, color, size string) string {
	return productID + "\x1f" + color + "\x1f" + size
}
