// Package rest implements the data store port against the hosted
// BaaS REST API. Rows travel as JSON; uniqueness is enforced
// server-side, so the adapter asks for merge-duplicates resolution
// and reads the stored row back from the response.
package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/verdant-market/storecore/internal/port/outbound"
)

const (
	// defaultTimeout bounds every store call end to end.
	defaultTimeout = 15 * time.Second

	// maxResponseBodySize caps response reads. Prevents OOM from a
	// misbehaving endpoint sending unbounded bodies.
	maxResponseBodySize = 10 * 1024 * 1024 // 10MB
)

// DataStore is a REST-backed data store client.
type DataStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ outbound.DataStore = (*DataStore)(nil)

// Option is a functional option for configuring DataStore.
type Option func(*DataStore)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *DataStore) {
		s.httpClient = client
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *DataStore) {
		if s.httpClient != nil {
			s.httpClient.Timeout = d
		}
	}
}

// New creates a DataStore for the given REST base URL.
func New(baseURL, apiKey string, opts ...Option) *DataStore {
	s := &DataStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wire row shapes. The store owns the schema; names follow its
// column naming.
type profileRow struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type cartItemRow struct {
	ID            string `json:"id,omitempty"`
	UserID        string `json:"user_id"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	SelectedColor string `json:"selected_color"`
	SelectedSize  string `json:"selected_size"`
	PriceSnapshot int64  `json:"price_snapshot"`
}

type favoriteRow struct {
	ID        string `json:"id,omitempty"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

type productRow struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	Price    int64  `json:"price"`
}

type loginAttemptRow struct {
	Email       string    `json:"email"`
	Success     bool      `json:"success"`
	AttemptTime time.Time `json:"attempt_time"`
}

// GetProfile performs a point read by user ID.
func (s *DataStore) GetProfile(ctx context.Context, userID string) (*outbound.ProfileRecord, error) {
	var rows []profileRow
	query := url.Values{"user_id": {"eq." + userID}}
	if err := s.get(ctx, "profiles", query, &rows); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, outbound.ErrNotFound
	}
	r := rows[0]
	return &outbound.ProfileRecord{UserID: r.UserID, FullName: r.FullName, Role: r.Role}, nil
}

// CreateProfile inserts a new profile row.
func (s *DataStore) CreateProfile(ctx context.Context, profile *outbound.ProfileRecord) error {
	row := profileRow{UserID: profile.UserID, FullName: profile.FullName, Role: profile.Role}
	if err := s.post(ctx, "profiles", nil, row, nil); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// ListCartItems returns all cart rows for the user.
func (s *DataStore) ListCartItems(ctx context.Context, userID string) ([]outbound.CartItemRecord, error) {
	var rows []cartItemRow
	query := url.Values{"user_id": {"eq." + userID}}
	if err := s.get(ctx, "cart_items", query, &rows); err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	out := make([]outbound.CartItemRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, cartRecord(r))
	}
	return out, nil
}

// UpsertCartItem writes the row for the variant key and returns the
// stored row, including the server-assigned ID.
func (s *DataStore) UpsertCartItem(ctx context.Context, item *outbound.CartItemRecord) (*outbound.CartItemRecord, error) {
	row := cartItemRow{
		UserID:        item.UserID,
		ProductID:     item.ProductID,
		Quantity:      item.Quantity,
		SelectedColor: item.SelectedColor,
		SelectedSize:  item.SelectedSize,
		PriceSnapshot: item.PriceSnapshot,
	}
	query := url.Values{"on_conflict": {"user_id,product_id,selected_color,selected_size"}}
	var saved []cartItemRow
	if err := s.post(ctx, "cart_items", query, row, &saved); err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}
	if len(saved) == 0 {
		return nil, fmt.Errorf("upsert cart item: store returned no row")
	}
	rec := cartRecord(saved[0])
	return &rec, nil
}

// UpdateCartItemQuantity sets the quantity on an existing row.
func (s *DataStore) UpdateCartItemQuantity(ctx context.Context, id string, quantity int) error {
	query := url.Values{"id": {"eq." + id}}
	var updated []cartItemRow
	err := s.patch(ctx, "cart_items", query, map[string]int{"quantity": quantity}, &updated)
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	if len(updated) == 0 {
		return outbound.ErrNotFound
	}
	return nil
}

// DeleteCartItem removes a row; an absent row is not an error.
func (s *DataStore) DeleteCartItem(ctx context.Context, id string) error {
	query := url.Values{"id": {"eq." + id}}
	if err := s.delete(ctx, "cart_items", query); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

// ListFavorites returns all favorite rows for the user.
func (s *DataStore) ListFavorites(ctx context.Context, userID string) ([]outbound.FavoriteRecord, error) {
	var rows []favoriteRow
	query := url.Values{"user_id": {"eq." + userID}}
	if err := s.get(ctx, "favorites", query, &rows); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	out := make([]outbound.FavoriteRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, outbound.FavoriteRecord{ID: r.ID, UserID: r.UserID, ProductID: r.ProductID})
	}
	return out, nil
}

// UpsertFavorite writes the (user, product) pair; an existing pair is
// merged server-side, never duplicated.
func (s *DataStore) UpsertFavorite(ctx context.Context, fav *outbound.FavoriteRecord) (*outbound.FavoriteRecord, error) {
	row := favoriteRow{UserID: fav.UserID, ProductID: fav.ProductID}
	query := url.Values{"on_conflict": {"user_id,product_id"}}
	var saved []favoriteRow
	if err := s.post(ctx, "favorites", query, row, &saved); err != nil {
		return nil, fmt.Errorf("upsert favorite: %w", err)
	}
	if len(saved) == 0 {
		return nil, fmt.Errorf("upsert favorite: store returned no row")
	}
	r := saved[0]
	return &outbound.FavoriteRecord{ID: r.ID, UserID: r.UserID, ProductID: r.ProductID}, nil
}

// DeleteFavorite removes the pair; an absent pair is not an error.
func (s *DataStore) DeleteFavorite(ctx context.Context, userID, productID string) error {
	query := url.Values{
		"user_id":    {"eq." + userID},
		"product_id": {"eq." + productID},
	}
	if err := s.delete(ctx, "favorites", query); err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

// BatchGetProducts fetches display copy for the given IDs in one call.
func (s *DataStore) BatchGetProducts(ctx context.Context, ids []string) ([]outbound.ProductRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []productRow
	query := url.Values{"id": {"in.(" + strings.Join(ids, ",") + ")"}}
	if err := s.get(ctx, "products", query, &rows); err != nil {
		return nil, fmt.Errorf("batch get products: %w", err)
	}
	out := make([]outbound.ProductRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, outbound.ProductRecord{ID: r.ID, Title: r.Title, ImageURL: r.ImageURL, Price: r.Price})
	}
	return out, nil
}

// RecordLoginAttempt appends an audit row.
func (s *DataStore) RecordLoginAttempt(ctx context.Context, attempt *outbound.LoginAttemptRecord) error {
	row := loginAttemptRow{Email: attempt.Email, Success: attempt.Success, AttemptTime: attempt.AttemptTime}
	if err := s.post(ctx, "login_attempts", nil, row, nil); err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

func cartRecord(r cartItemRow) outbound.CartItemRecord {
	return outbound.CartItemRecord{
		ID:            r.ID,
		UserID:        r.UserID,
		ProductID:     r.ProductID,
		Quantity:      r.Quantity,
		SelectedColor: r.SelectedColor,
		SelectedSize:  r.SelectedSize,
		PriceSnapshot: r.PriceSnapshot,
	}
}

func (s *DataStore) get(ctx context.Context, table string, query url.Values, out any) error {
	return s.do(ctx, http.MethodGet, table, query, nil, out, "")
}

func (s *DataStore) post(ctx context.Context, table string, query url.Values, body, out any) error {
	prefer := "return=minimal"
	if out != nil {
		prefer = "resolution=merge-duplicates,return=representation"
	}
	return s.do(ctx, http.MethodPost, table, query, body, out, prefer)
}

func (s *DataStore) patch(ctx context.Context, table string, query url.Values, body, out any) error {
	return s.do(ctx, http.MethodPatch, table, query, body, out, "return=representation")
}

func (s *DataStore) delete(ctx context.Context, table string, query url.Values) error {
	return s.do(ctx, http.MethodDelete, table, query, nil, nil, "return=minimal")
}

func (s *DataStore) do(ctx context.Context, method, table string, query url.Values, body, out any, prefer string) error {
	endpoint := s.baseURL + "/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call store: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return outbound.ErrConflict
	case resp.StatusCode == http.StatusNotFound:
		return outbound.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("store returned status %d: %s", resp.StatusCode, truncateBody(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// truncateBody keeps error messages readable when the store returns a
// large error payload.
func truncateBody(data []byte) string {
	const max = 256
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
