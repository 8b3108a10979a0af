// Package sqlite implements the data store port on an embedded
// SQLite database. The dev server uses it as a stand-in for the
// hosted record store; the uniqueness keys mirror the hosted schema
// so engine behavior is identical.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/verdant-market/storecore/internal/port/outbound"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id   TEXT PRIMARY KEY,
	full_name TEXT NOT NULL DEFAULT '',
	role      TEXT NOT NULL DEFAULT 'user'
);
CREATE TABLE IF NOT EXISTS cart_items (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	product_id     TEXT NOT NULL,
	quantity       INTEGER NOT NULL,
	selected_color TEXT NOT NULL DEFAULT '',
	selected_size  TEXT NOT NULL DEFAULT '',
	price_snapshot INTEGER NOT NULL DEFAULT 0,
	UNIQUE (user_id, product_id, selected_color, selected_size)
);
CREATE TABLE IF NOT EXISTS favorites (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	UNIQUE (user_id, product_id)
);
CREATE TABLE IF NOT EXISTS products (
	id        TEXT PRIMARY KEY,
	title     TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	price     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS login_attempts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	email        TEXT NOT NULL,
	success      INTEGER NOT NULL,
	attempt_time TIMESTAMP NOT NULL
);
`

// DataStore is a SQLite-backed data store.
type DataStore struct {
	db *sql.DB
}

var _ outbound.DataStore = (*DataStore)(nil)

// Open opens (and creates if needed) the database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*DataStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent engine calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DataStore{db: db}, nil
}

// Close releases the database handle.
func (s *DataStore) Close() error { return s.db.Close() }

// GetProfile performs a point read by user ID.
func (s *DataStore) GetProfile(ctx context.Context, userID string) (*outbound.ProfileRecord, error) {
	var p outbound.ProfileRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, full_name, role FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.FullName, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, outbound.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// CreateProfile inserts a new profile row.
func (s *DataStore) CreateProfile(ctx context.Context, profile *outbound.ProfileRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, full_name, role) VALUES (?, ?, ?)`,
		profile.UserID, profile.FullName, profile.Role,
	)
	if isUniqueViolation(err) {
		return outbound.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// ListCartItems returns all cart rows for the user.
func (s *DataStore) ListCartItems(ctx context.Context, userID string) ([]outbound.CartItemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, product_id, quantity, selected_color, selected_size, price_snapshot
		 FROM cart_items WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var out []outbound.CartItemRecord
	for rows.Next() {
		var r outbound.CartItemRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.ProductID, &r.Quantity,
			&r.SelectedColor, &r.SelectedSize, &r.PriceSnapshot); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertCartItem inserts or updates the row for the variant key.
func (s *DataStore) UpsertCartItem(ctx context.Context, item *outbound.CartItemRecord) (*outbound.CartItemRecord, error) {
	saved := *item
	saved.ID = uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cart_items (id, user_id, product_id, quantity, selected_color, selected_size, price_snapshot)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, product_id, selected_color, selected_size)
		 DO UPDATE SET quantity = excluded.quantity, price_snapshot = excluded.price_snapshot`,
		saved.ID, saved.UserID, saved.ProductID, saved.Quantity,
		saved.SelectedColor, saved.SelectedSize, saved.PriceSnapshot,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}

	// On conflict the original row keeps its ID; read it back.
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM cart_items
		 WHERE user_id = ? AND product_id = ? AND selected_color = ? AND selected_size = ?`,
		saved.UserID, saved.ProductID, saved.SelectedColor, saved.SelectedSize,
	).Scan(&saved.ID)
	if err != nil {
		return nil, fmt.Errorf("read back cart item: %w", err)
	}
	return &saved, nil
}

// UpdateCartItemQuantity sets the quantity on an existing row.
func (s *DataStore) UpdateCartItemQuantity(ctx context.Context, id string, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = ? WHERE id = ?`, quantity, id)
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	if n == 0 {
		return outbound.ErrNotFound
	}
	return nil
}

// DeleteCartItem removes a row; deleting an absent row is not an error.
func (s *DataStore) DeleteCartItem(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

// ListFavorites returns all favorite rows for the user.
func (s *DataStore) ListFavorites(ctx context.Context, userID string) ([]outbound.FavoriteRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, product_id FROM favorites WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var out []outbound.FavoriteRecord
	for rows.Next() {
		var r outbound.FavoriteRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.ProductID); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertFavorite inserts the pair; an existing pair is returned
// unchanged so a double toggle can never produce two rows.
func (s *DataStore) UpsertFavorite(ctx context.Context, fav *outbound.FavoriteRecord) (*outbound.FavoriteRecord, error) {
	saved := *fav
	saved.ID = uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO favorites (id, user_id, product_id) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, product_id) DO NOTHING`,
		saved.ID, saved.UserID, saved.ProductID,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert favorite: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM favorites WHERE user_id = ? AND product_id = ?`,
		saved.UserID, saved.ProductID,
	).Scan(&saved.ID)
	if err != nil {
		return nil, fmt.Errorf("read back favorite: %w", err)
	}
	return &saved, nil
}

// DeleteFavorite removes the pair; an absent pair is not an error.
func (s *DataStore) DeleteFavorite(ctx context.Context, userID, productID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND product_id = ?`, userID, productID)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

// BatchGetProducts fetches display copy; unknown IDs are silently
// absent from the result.
func (s *DataStore) BatchGetProducts(ctx context.Context, ids []string) ([]outbound.ProductRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, image_url, price FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("batch get products: %w", err)
	}
	defer rows.Close()

	var out []outbound.ProductRecord
	for rows.Next() {
		var p outbound.ProductRecord
		if err := rows.Scan(&p.ID, &p.Title, &p.ImageURL, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordLoginAttempt appends an audit row.
func (s *DataStore) RecordLoginAttempt(ctx context.Context, attempt *outbound.LoginAttemptRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (email, success, attempt_time) VALUES (?, ?, ?)`,
		attempt.Email, attempt.Success, attempt.AttemptTime,
	)
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// SeedProducts replaces the product rows, for dev seeding.
func (s *DataStore) SeedProducts(ctx context.Context, products []outbound.ProductRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	defer tx.Rollback()

	for _, p := range products {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, title, image_url, price) VALUES (?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET title = excluded.title,
			 image_url = excluded.image_url, price = excluded.price`,
			p.ID, p.Title, p.ImageURL, p.Price,
		)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// isUniqueViolation reports whether the error is a uniqueness
// constraint failure. The driver exposes no typed error for it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
