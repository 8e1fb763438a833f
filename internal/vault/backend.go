package vault

import (
	"context"

	"github.com/sealbox/sealbox/internal/store"
)

// Backend persists encrypted payloads and non-secret metadata for records.
// The active backend is chosen once at initialization and never mixed
// per-record. Implementations must be safe for concurrent use.
type Backend interface {
	// PutRecord replaces metadata and encrypted payload for meta.ID together.
	PutRecord(ctx context.Context, meta *store.SecretMeta, blob []byte) error
	// GetBlob returns the encrypted payload for id, or NOT_FOUND.
	GetBlob(ctx context.Context, id string) ([]byte, error)
	// GetMeta returns the metadata for id, or NOT_FOUND.
	GetMeta(ctx context.Context, id string) (*store.SecretMeta, error)
	// ListMeta returns all metadata without touching encrypted payloads.
	ListMeta(ctx context.Context) ([]*store.SecretMeta, error)
	// DeleteRecord removes metadata and payload; absent ids are a no-op.
	DeleteRecord(ctx context.Context, id string) error
}

// LocalBackend keeps ciphertext in the application-controlled store.
// Record writes are atomic: the store replaces both rows in one transaction.
type LocalBackend struct {
	store store.Store
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend creates a Backend over the given store.
func NewLocalBackend(s store.Store) *LocalBackend {
	return &LocalBackend{store: s}
}

func (b *LocalBackend) PutRecord(ctx context.Context, meta *store.SecretMeta, blob []byte) error {
	return b.store.PutSecret(ctx, meta, blob)
}

func (b *LocalBackend) GetBlob(ctx context.Context, id string) ([]byte, error) {
	return b.store.GetCiphertext(ctx, id)
}

func (b *LocalBackend) GetMeta(ctx context.Context, id string) (*store.SecretMeta, error) {
	return b.store.GetMeta(ctx, id)
}

func (b *LocalBackend) ListMeta(ctx context.Context) ([]*store.SecretMeta, error) {
	return b.store.ListMeta(ctx)
}

func (b *LocalBackend) DeleteRecord(ctx context.Context, id string) error {
	return b.store.DeleteSecret(ctx, id)
}
