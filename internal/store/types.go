package store

import (
	"context"
	"time"
)

// SecretMeta is the persisted non-secret row for a record. The encrypted
// payload lives in a separate table keyed by the same id.
type SecretMeta struct {
	ID           string            `json:"id"`
	ServiceID    string            `json:"service_id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	LastVerified *time.Time        `json:"last_verified,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Store defines the persistence contract for the local vault backend.
// All implementations must be safe for concurrent use. Writes are atomic at
// record granularity: PutSecret replaces metadata and ciphertext together.
type Store interface {
	PutSecret(ctx context.Context, meta *SecretMeta, blob []byte) error
	GetMeta(ctx context.Context, id string) (*SecretMeta, error)
	GetCiphertext(ctx context.Context, id string) ([]byte, error)
	ListMeta(ctx context.Context) ([]*SecretMeta, error)
	DeleteSecret(ctx context.Context, id string) error

	// Salt holds the single PBKDF2 salt used in passphrase mode.
	GetSalt(ctx context.Context) ([]byte, error)
	PutSalt(ctx context.Context, salt []byte) error

	Migrate(ctx context.Context) error
	Close() error
}
