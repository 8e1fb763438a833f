package vault

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sealbox/sealbox/internal/crypto"
	"github.com/sealbox/sealbox/pkg/schema"
)

// exportSet is the serialized form of the full decrypted credential set.
type exportSet struct {
	Records []*schema.SecretRecord `json:"records"`
}

// Export decrypts every record and re-encrypts the full set under a one-time
// key derived from password with a fresh salt. The result is self-contained
// and independent of the local master key, so it works identically for both
// backends.
func (v *Vault) Export(ctx context.Context, password string) (*schema.ExportBundle, error) {
	if password == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "export password is required")
	}

	metas, err := v.backend.ListMeta(ctx)
	if err != nil {
		return nil, err
	}
	set := exportSet{Records: make([]*schema.SecretRecord, 0, len(metas))}
	for _, meta := range metas {
		rec, err := v.Get(ctx, meta.ID)
		if err != nil {
			return nil, err
		}
		set.Records = append(set.Records, rec)
	}

	plaintext, err := json.Marshal(set)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "serialize export set").WithCause(err)
	}

	exportKey, salt, err := crypto.DeriveKey(password, nil)
	if err != nil {
		return nil, err
	}
	encrypted, err := exportKey.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	v.logger.InfoContext(ctx, "vault exported", slog.Int("records", len(set.Records)))
	return &schema.ExportBundle{
		Version:       schema.ExportVersion,
		Salt:          salt,
		EncryptedData: encrypted,
	}, nil
}

// Import decrypts a bundle with the key re-derived from its embedded salt and
// the supplied password, then replays each contained record through Save.
// A wrong password or malformed payload fails with IMPORT_ERROR before any
// existing record is touched; per-id collisions are last-write-wins.
func (v *Vault) Import(ctx context.Context, bundle *schema.ExportBundle, password string) (int, error) {
	switch {
	case bundle == nil:
		return 0, schema.NewError(schema.ErrCodeValidation, "bundle is nil")
	case password == "":
		return 0, schema.NewError(schema.ErrCodeValidation, "import password is required")
	case len(bundle.Salt) == 0 || len(bundle.EncryptedData) == 0:
		return 0, schema.NewError(schema.ErrCodeImport, "bundle is missing salt or data")
	case bundle.Version != schema.ExportVersion:
		return 0, schema.NewErrorf(schema.ErrCodeImport, "unsupported bundle version %d", bundle.Version)
	}

	importKey, _, err := crypto.DeriveKey(password, bundle.Salt)
	if err != nil {
		return 0, err
	}
	plaintext, err := importKey.Decrypt(bundle.EncryptedData)
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeImport, "wrong password or corrupted bundle").WithCause(err)
	}

	var set exportSet
	if err := json.Unmarshal(plaintext, &set); err != nil {
		return 0, schema.NewError(schema.ErrCodeImport, "bundle payload is structurally invalid").WithCause(err)
	}

	imported := 0
	for _, rec := range set.Records {
		if err := v.Save(ctx, rec); err != nil {
			return imported, schema.NewErrorf(schema.ErrCodeImport,
				"import record %q: %s", rec.ID, err.Error()).WithCause(err)
		}
		imported++
	}

	v.logger.InfoContext(ctx, "vault imported", slog.Int("records", imported))
	return imported, nil
}
