package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/verdant-market/storecore/internal/port/outbound"
)

func TestDataStore_GetProfile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/profiles" {
			t.Errorf("path = %s, want /profiles", r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "eq.u1" {
			t.Errorf("user_id filter = %q, want eq.u1", got)
		}
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q, want test-key", got)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"user_id": "u1", "full_name": "Ada", "role": "admin"},
		})
	}))
	defer srv.Close()

	store := New(srv.URL, "test-key")
	got, err := store.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetProfile() error: %v", err)
	}
	if got.FullName != "Ada" || got.Role != "admin" {
		t.Errorf("profile = %+v, want Ada/admin", got)
	}
}

func TestDataStore_GetProfileNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	store := New(srv.URL, "")
	_, err := store.GetProfile(context.Background(), "missing")
	if !errors.Is(err, outbound.ErrNotFound) {
		t.Errorf("GetProfile() error = %v, want ErrNotFound", err)
	}
}

func TestDataStore_CreateProfileConflict(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	store := New(srv.URL, "")
	err := store.CreateProfile(context.Background(), &outbound.ProfileRecord{UserID: "u1"})
	if !errors.Is(err, outbound.ErrConflict) {
		t.Errorf("CreateProfile() error = %v, want ErrConflict", err)
	}
}

func TestDataStore_UpsertCartItemMergesDuplicates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.URL.Query().Get("on_conflict"); got != "user_id,product_id,selected_color,selected_size" {
			t.Errorf("on_conflict = %q, want the variant key", got)
		}
		prefer := r.Header.Get("Prefer")
		if prefer != "resolution=merge-duplicates,return=representation" {
			t.Errorf("Prefer = %q, want merge-duplicates with representation", prefer)
		}

		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			t.Errorf("decode request: %v", err)
		}
		row["id"] = "row-1"
		json.NewEncoder(w).Encode([]map[string]any{row})
	}))
	defer srv.Close()

	store := New(srv.URL, "")
	saved, err := store.UpsertCartItem(context.Background(), &outbound.CartItemRecord{
		UserID: "u1", ProductID: "p1", Quantity: 2, SelectedColor: "red",
	})
	if err != nil {
		t.Fatalf("UpsertCartItem() error: %v", err)
	}
	if saved.ID != "row-1" || saved.Quantity != 2 {
		t.Errorf("saved = %+v, want row-1 with quantity 2", saved)
	}
}

func TestDataStore_UpdateCartItemQuantityNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	store := New(srv.URL, "")
	err := store.UpdateCartItemQuantity(context.Background(), "missing", 3)
	if !errors.Is(err, outbound.ErrNotFound) {
		t.Errorf("UpdateCartItemQuantity() error = %v, want ErrNotFound", err)
	}
}

func TestDataStore_BatchGetProducts(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "in.(p1,p2)" {
			t.Errorf("id filter = %q, want in.(p1,p2)", got)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "p1", "title": "Linen Shirt", "price": 4500},
		})
	}))
	defer srv.Close()

	store := New(srv.URL, "")
	got, err := store.BatchGetProducts(context.Background(), []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("BatchGetProducts() error: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Linen Shirt" {
		t.Errorf("products = %+v, want the one known row", got)
	}

	// Empty id set never touches the wire.
	empty, err := store.BatchGetProducts(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("BatchGetProducts(nil) = (%v, %v), want empty with no error", empty, err)
	}
}

func TestDataStore_DeleteFavoriteFilters(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		q := r.URL.Query()
		if q.Get("user_id") != "eq.u1" || q.Get("product_id") != "eq.p1" {
			t.Errorf("filters = %v, want user and product eq filters", q)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := New(srv.URL, "")
	if err := store.DeleteFavorite(context.Background(), "u1", "p1"); err != nil {
		t.Errorf("DeleteFavorite() error: %v", err)
	}
}

func TestDataStore_ServerErrorSurfaced(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := New(srv.URL, "")
	if _, err := store.ListCartItems(context.Background(), "u1"); err == nil {
		t.Error("ListCartItems() error = nil, want status error")
	}
}

func TestDataStore_CallTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	store := New(srv.URL, "", WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := store.ListFavorites(context.Background(), "u1")
	if err == nil {
		t.Fatal("ListFavorites() error = nil, want timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("call took %v, timeout not applied", elapsed)
	}
}
