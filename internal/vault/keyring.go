package vault

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/zalando/go-keyring"

	"github.com/sealbox/sealbox/internal/crypto"
	"github.com/sealbox/sealbox/internal/store"
	"github.com/sealbox/sealbox/pkg/schema"
)

// DefaultKeyringService is the stable service identifier under which sealbox
// entries appear in the OS credential store.
const DefaultKeyringService = "sealbox"

const masterKeyAccount = "master-key"

// KeyringBackend keeps encrypted payloads in the OS credential store, so
// secret bytes never touch application-controlled disk. Metadata still lives
// in the local store for cheap listing; its ciphertext row holds a
// zero-length placeholder.
type KeyringBackend struct {
	store   store.Store
	service string
}

var _ Backend = (*KeyringBackend)(nil)

// NewKeyringBackend creates a Backend that persists payloads under the given
// keyring service name.
func NewKeyringBackend(s store.Store, service string) *KeyringBackend {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringBackend{store: s, service: service}
}

func recordAccount(id string) string { return "record:" + id }

func (b *KeyringBackend) PutRecord(ctx context.Context, meta *store.SecretMeta, blob []byte) error {
	account := recordAccount(meta.ID)
	prior, priorErr := keyring.Get(b.service, account)
	hadPrior := priorErr == nil

	encoded := base64.StdEncoding.EncodeToString(blob)
	if err := keyring.Set(b.service, account, encoded); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "keyring set %q: %s", meta.ID, err.Error()).WithCause(err)
	}
	if err := b.store.PutSecret(ctx, meta, []byte{}); err != nil {
		// Roll the payload back so keyring and metadata stay consistent.
		if hadPrior {
			_ = keyring.Set(b.service, account, prior)
		} else {
			_ = keyring.Delete(b.service, account)
		}
		return err
	}
	return nil
}

func (b *KeyringBackend) GetBlob(_ context.Context, id string) ([]byte, error) {
	encoded, err := keyring.Get(b.service, recordAccount(id))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "secret %q not found in keyring", id)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "keyring get %q: %s", id, err.Error()).WithCause(err)
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCorruptedSecret, "keyring entry %q is not valid base64", id).WithCause(err)
	}
	return blob, nil
}

func (b *KeyringBackend) GetMeta(ctx context.Context, id string) (*store.SecretMeta, error) {
	return b.store.GetMeta(ctx, id)
}

func (b *KeyringBackend) ListMeta(ctx context.Context) ([]*store.SecretMeta, error) {
	return b.store.ListMeta(ctx)
}

func (b *KeyringBackend) DeleteRecord(ctx context.Context, id string) error {
	err := keyring.Delete(b.service, recordAccount(id))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return schema.NewErrorf(schema.ErrCodeStore, "keyring delete %q: %s", id, err.Error()).WithCause(err)
	}
	return b.store.DeleteSecret(ctx, id)
}

// LoadOrCreateKeyringKey fetches the master key from the OS credential store,
// generating and storing a fresh random key on first use. The key is fetched
// once per process lifetime.
func LoadOrCreateKeyringKey(service string) (*crypto.Key, error) {
	if service == "" {
		service = DefaultKeyringService
	}
	encoded, err := keyring.Get(service, masterKeyAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		key, raw, genErr := crypto.GenerateKey()
		if genErr != nil {
			return nil, genErr
		}
		if setErr := keyring.Set(service, masterKeyAccount, base64.StdEncoding.EncodeToString(raw)); setErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "keyring set master key: %s", setErr.Error()).WithCause(setErr)
		}
		return key, nil
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "keyring get master key: %s", err.Error()).WithCause(err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeCorruptedSecret, "stored master key is not valid base64").WithCause(err)
	}
	return crypto.KeyFromBytes(raw)
}

// LoadPassphraseKey derives the master key from a passphrase and the persisted
// salt, creating and persisting a fresh salt at first vault use. The raw key
// is never persisted in this mode.
func LoadPassphraseKey(ctx context.Context, s store.Store, passphrase string) (*crypto.Key, error) {
	salt, err := s.GetSalt(ctx)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		key, newSalt, deriveErr := crypto.DeriveKey(passphrase, nil)
		if deriveErr != nil {
			return nil, deriveErr
		}
		if putErr := s.PutSalt(ctx, newSalt); putErr != nil {
			return nil, putErr
		}
		return key, nil
	}
	if err != nil {
		return nil, err
	}
	key, _, err := crypto.DeriveKey(passphrase, salt)
	return key, err
}
