package local

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/verdant-market/storecore/internal/domain/auth"
	"github.com/verdant-market/storecore/internal/port/outbound"
)

// Seed is the dev server's YAML seed file: identities for the local
// auth provider and products for the dev store.
type Seed struct {
	Identities []SeedIdentity `yaml:"identities"`
	Products   []SeedProduct  `yaml:"products"`
}

// SeedIdentity is a seeded dev identity. PasswordHash is an argon2id
// hash produced by the hash-password command.
type SeedIdentity struct {
	UserID       string `yaml:"user_id"`
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// SeedProduct is a seeded product row.
type SeedProduct struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	ImageURL string `yaml:"image_url"`
	Price    int64  `yaml:"price"`
}

// LoadSeed parses a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	for i, id := range seed.Identities {
		if id.Email == "" || id.PasswordHash == "" {
			return nil, fmt.Errorf("seed identity %d: email and password_hash are required", i)
		}
		if id.Role != "" && !auth.Role(id.Role).IsValid() {
			return nil, fmt.Errorf("seed identity %s: unknown role %q", id.Email, id.Role)
		}
	}
	return &seed, nil
}

// Apply loads the seed into the provider.
func (s *Seed) Apply(p *Provider) {
	for _, id := range s.Identities {
		role := auth.Role(id.Role)
		if role == "" {
			role = auth.RoleUser
		}
		p.AddIdentity(Identity{
			UserID:       id.UserID,
			Email:        id.Email,
			PasswordHash: id.PasswordHash,
			Role:         role,
		})
	}
}

// ProductRecords converts the seeded products to store rows.
func (s *Seed) ProductRecords() []outbound.ProductRecord {
	out := make([]outbound.ProductRecord, 0, len(s.Products))
	for _, p := range s.Products {
		out = append(out, outbound.ProductRecord{
			ID:       p.ID,
			Title:    p.Title,
			ImageURL: p.ImageURL,
			Price:    p.Price,
		})
	}
	return out
}
