// Package vault implements the secret store: encrypted persistence of
// credential records with strict separation between secret material and
// listable metadata.
package vault

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/sealbox/sealbox/internal/crypto"
	"github.com/sealbox/sealbox/internal/logging"
	"github.com/sealbox/sealbox/internal/store"
	"github.com/sealbox/sealbox/pkg/schema"
)

// secretPayload is the only part of a record that gets encrypted.
type secretPayload struct {
	Value        string `json:"value"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Vault encrypts and persists SecretRecords through a Backend under a single
// process-wide master key.
type Vault struct {
	backend Backend
	key     *crypto.Key
	logger  *slog.Logger
}

// New creates a Vault over the given backend and master key.
func New(backend Backend, key *crypto.Key, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Vault{backend: backend, key: key, logger: logger}
}

// Save validates and persists a record, overwriting any prior record with the
// same id. Value and RefreshToken are encrypted as one payload; everything
// else is stored as metadata.
func (v *Vault) Save(ctx context.Context, rec *schema.SecretRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	ctx = logging.WithRecordID(ctx, rec.ID)

	payload, err := json.Marshal(secretPayload{Value: rec.Value, RefreshToken: rec.RefreshToken})
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "serialize secret payload").WithCause(err)
	}
	blob, err := v.key.Encrypt(payload)
	if err != nil {
		return err
	}

	if err := v.backend.PutRecord(ctx, metaToRow(rec.Meta()), blob); err != nil {
		return err
	}
	v.logger.InfoContext(ctx, "secret saved", slog.String("service_id", rec.ServiceID))
	return nil
}

// Get returns the full record for id, decrypting its payload. A missing id
// yields NOT_FOUND; a payload that fails authentication yields
// CORRUPTED_SECRET rather than a raw decryption fault.
func (v *Vault) Get(ctx context.Context, id string) (*schema.SecretRecord, error) {
	if id == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "id is required")
	}
	ctx = logging.WithRecordID(ctx, id)

	meta, err := v.backend.GetMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	blob, err := v.backend.GetBlob(ctx, id)
	if err != nil {
		return nil, err
	}

	plaintext, err := v.key.Decrypt(blob)
	if err != nil {
		v.logger.WarnContext(ctx, "secret payload failed authentication")
		return nil, schema.NewErrorf(schema.ErrCodeCorruptedSecret,
			"secret %q cannot be decrypted", id).WithCause(err)
	}
	var payload secretPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCorruptedSecret,
			"secret %q payload is malformed", id).WithCause(err)
	}

	rec := rowToRecord(meta)
	rec.Value = payload.Value
	rec.RefreshToken = payload.RefreshToken
	return rec, nil
}

// List returns metadata for all records without any decryption cost.
func (v *Vault) List(ctx context.Context) ([]schema.SecretMetadata, error) {
	rows, err := v.backend.ListMeta(ctx)
	if err != nil {
		return nil, err
	}
	metas := make([]schema.SecretMetadata, 0, len(rows))
	for _, row := range rows {
		metas = append(metas, rowToRecord(row).Meta())
	}
	return metas, nil
}

// Delete removes both metadata and ciphertext. Deleting an absent id is not
// an error.
func (v *Vault) Delete(ctx context.Context, id string) error {
	if id == "" {
		return schema.NewError(schema.ErrCodeValidation, "id is required")
	}
	return v.backend.DeleteRecord(logging.WithRecordID(ctx, id), id)
}

// SecretValue returns just the decrypted value for id. It satisfies the
// expressions.SecretSource contract used by parameter interpolation.
func (v *Vault) SecretValue(ctx context.Context, id string) (string, error) {
	rec, err := v.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.Value, nil
}

func validateRecord(rec *schema.SecretRecord) error {
	switch {
	case rec == nil:
		return schema.NewError(schema.ErrCodeValidation, "record is nil")
	case rec.ID == "":
		return schema.NewError(schema.ErrCodeValidation, "id is required")
	case rec.ServiceID == "":
		return schema.NewError(schema.ErrCodeValidation, "service_id is required")
	case rec.Name == "":
		return schema.NewError(schema.ErrCodeValidation, "name is required")
	case rec.Value == "":
		return schema.NewError(schema.ErrCodeValidation, "value is required")
	}
	switch rec.Type {
	case schema.SecretTypeAPIKey, schema.SecretTypeOAuth:
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown secret type %q", rec.Type)
	}
	return nil
}

func metaToRow(m schema.SecretMetadata) *store.SecretMeta {
	return &store.SecretMeta{
		ID:           m.ID,
		ServiceID:    m.ServiceID,
		Name:         m.Name,
		Type:         string(m.Type),
		ExpiresAt:    m.ExpiresAt,
		LastVerified: m.LastVerified,
		Metadata:     m.Metadata,
	}
}

func rowToRecord(row *store.SecretMeta) *schema.SecretRecord {
	return &schema.SecretRecord{
		ID:           row.ID,
		ServiceID:    row.ServiceID,
		Name:         row.Name,
		Type:         schema.SecretType(row.Type),
		ExpiresAt:    row.ExpiresAt,
		LastVerified: row.LastVerified,
		Metadata:     row.Metadata,
	}
}
