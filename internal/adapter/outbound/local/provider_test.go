package local

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/verdant-market/storecore/internal/domain/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	hash, err := argon2id.CreateHash("hunter2", argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("CreateHash() error: %v", err)
	}
	p := NewProvider(testLogger())
	p.AddIdentity(Identity{
		UserID:       "u1",
		Email:        "ada@example.com",
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
	})
	return p
}

func TestProvider_SignInEmitsEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestProvider(t)

	var events []auth.Event
	unsub := p.Subscribe(func(ev auth.Event) { events = append(events, ev) })
	defer unsub()

	err := p.SignIn(ctx, auth.Credentials{Email: "ada@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != auth.EventSignedIn || ev.UserID != "u1" || ev.Email != "ada@example.com" {
		t.Errorf("event = %+v, want SIGNED_IN for u1", ev)
	}
	if ev.LastSignInAt.IsZero() || ev.ExpiresAt.IsZero() {
		t.Errorf("event timestamps missing: %+v", ev)
	}

	remote, err := p.CurrentRemote(ctx)
	if err != nil {
		t.Fatalf("CurrentRemote() error: %v", err)
	}
	if remote == nil || remote.UserID != "u1" {
		t.Errorf("CurrentRemote() = %+v, want u1 session", remote)
	}
}

func TestProvider_SignInRejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestProvider(t)

	tests := []struct {
		name  string
		creds auth.Credentials
	}{
		{"wrong password", auth.Credentials{Email: "ada@example.com", Password: "nope"}},
		{"unknown email", auth.Credentials{Email: "ghost@example.com", Password: "hunter2"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := p.SignIn(ctx, tt.creds); !errors.Is(err, auth.ErrInvalidCredentials) {
				t.Errorf("SignIn() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestProvider_SignOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestProvider(t)

	if err := p.SignIn(ctx, auth.Credentials{Email: "ada@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	var last auth.Event
	unsub := p.Subscribe(func(ev auth.Event) { last = ev })
	defer unsub()

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error: %v", err)
	}
	if last.Kind != auth.EventSignedOut || last.UserID != "u1" {
		t.Errorf("event = %+v, want SIGNED_OUT for u1", last)
	}

	remote, err := p.CurrentRemote(ctx)
	if err != nil {
		t.Fatalf("CurrentRemote() error: %v", err)
	}
	if remote != nil {
		t.Errorf("CurrentRemote() = %+v after sign-out, want nil", remote)
	}

	// Signing out again is not an error.
	if err := p.SignOut(ctx); err != nil {
		t.Errorf("second SignOut() error = %v, want nil", err)
	}
}

func TestProvider_ExpiredSessionNotReported(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestProvider(t)
	p.SetSessionTTL(time.Minute)

	base := time.Now().UTC()
	now := base
	p.SetClock(func() time.Time { return now })

	if err := p.SignIn(ctx, auth.Credentials{Email: "ada@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	now = base.Add(2 * time.Minute)
	remote, err := p.CurrentRemote(ctx)
	if err != nil {
		t.Fatalf("CurrentRemote() error: %v", err)
	}
	if remote != nil {
		t.Errorf("CurrentRemote() = %+v for expired session, want nil", remote)
	}
}

func TestProvider_Revoke(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestProvider(t)

	if err := p.SignIn(ctx, auth.Credentials{Email: "ada@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	p.Revoke()

	remote, err := p.CurrentRemote(ctx)
	if err != nil {
		t.Fatalf("CurrentRemote() error: %v", err)
	}
	if remote != nil {
		t.Errorf("CurrentRemote() = %+v after revoke, want nil", remote)
	}
}

func TestLoadSeed(t *testing.T) {
	t.Parallel()

	hash, err := argon2id.CreateHash("hunter2", argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("CreateHash() error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `identities:
  - user_id: u1
    email: ada@example.com
    password_hash: "` + hash + `"
    role: admin
products:
  - id: p1
    title: Linen Shirt
    price: 4500
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed() error: %v", err)
	}

	p := NewProvider(testLogger())
	seed.Apply(p)
	if err := p.SignIn(context.Background(), auth.Credentials{Email: "ada@example.com", Password: "hunter2"}); err != nil {
		t.Errorf("SignIn() with seeded identity error: %v", err)
	}

	products := seed.ProductRecords()
	if len(products) != 1 || products[0].Title != "Linen Shirt" {
		t.Errorf("products = %+v, want the seeded Linen Shirt", products)
	}
}

func TestLoadSeed_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"missing hash", "identities:\n  - email: a@b.com\n"},
		{"bad role", "identities:\n  - email: a@b.com\n    password_hash: x\n    role: owner\n"},
		{"malformed yaml", "identities: ["},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "seed.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("WriteFile() error: %v", err)
			}
			if _, err := LoadSeed(path); err == nil {
				t.Error("LoadSeed() error = nil, want parse/validation failure")
			}
		})
	}

	if _, err := LoadSeed(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadSeed(absent) error = nil, want read failure")
	}
}
