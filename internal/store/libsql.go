package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/sealbox/sealbox/pkg/schema"
)

const saltKey = "vault_salt"

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

var _ Store = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/sealbox.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// PutSecret replaces the metadata row and ciphertext row for meta.ID in one
// transaction, so readers never observe a half-written record.
func (s *LibSQLStore) PutSecret(ctx context.Context, meta *SecretMeta, blob []byte) error {
	metadata, err := marshalMetadata(meta.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin put secret", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO secret_meta (id, service_id, name, type, expires_at, last_verified, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   service_id=excluded.service_id, name=excluded.name, type=excluded.type,
		   expires_at=excluded.expires_at, last_verified=excluded.last_verified,
		   metadata=excluded.metadata, updated_at=CURRENT_TIMESTAMP`,
		meta.ID, meta.ServiceID, meta.Name, meta.Type,
		nullTime(meta.ExpiresAt), nullTime(meta.LastVerified), metadata, timeOrNow(meta.CreatedAt),
	)
	if err != nil {
		return storeErr("upsert secret_meta", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO secret_ciphertext (id, blob) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET blob=excluded.blob`,
		meta.ID, blob,
	)
	if err != nil {
		return storeErr("upsert secret_ciphertext", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit put secret", err)
	}
	return nil
}

// GetMeta returns the metadata row for id, or NOT_FOUND.
func (s *LibSQLStore) GetMeta(ctx context.Context, id string) (*SecretMeta, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, service_id, name, type, expires_at, last_verified, metadata, created_at, updated_at
		 FROM secret_meta WHERE id = ?`, id)
	meta, err := scanMeta(row.Scan)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "secret %q not found", id)
	}
	if err != nil {
		return nil, storeErr("get secret_meta", err)
	}
	return meta, nil
}

// GetCiphertext returns the encrypted blob for id, or NOT_FOUND.
func (s *LibSQLStore) GetCiphertext(ctx context.Context, id string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM secret_ciphertext WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "ciphertext for %q not found", id)
	}
	if err != nil {
		return nil, storeErr("get secret_ciphertext", err)
	}
	return blob, nil
}

// ListMeta returns all metadata rows ordered by service then name. Encrypted
// payloads are never read.
func (s *LibSQLStore) ListMeta(ctx context.Context) ([]*SecretMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, service_id, name, type, expires_at, last_verified, metadata, created_at, updated_at
		 FROM secret_meta ORDER BY service_id, name`)
	if err != nil {
		return nil, storeErr("list secret_meta", err)
	}
	defer rows.Close()

	var metas []*SecretMeta
	for rows.Next() {
		meta, err := scanMeta(rows.Scan)
		if err != nil {
			return nil, storeErr("scan secret_meta", err)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate secret_meta", err)
	}
	return metas, nil
}

// DeleteSecret removes metadata and ciphertext for id. Deleting an absent id
// is a no-op.
func (s *LibSQLStore) DeleteSecret(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin delete secret", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM secret_ciphertext WHERE id = ?`, id); err != nil {
		return storeErr("delete secret_ciphertext", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM secret_meta WHERE id = ?`, id); err != nil {
		return storeErr("delete secret_meta", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit delete secret", err)
	}
	return nil
}

// GetSalt returns the persisted PBKDF2 salt, or NOT_FOUND before first use.
func (s *LibSQLStore) GetSalt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM vault_config WHERE key = ?`, saltKey).Scan(&salt)
	if err == sql.ErrNoRows {
		return nil, schema.NewError(schema.ErrCodeNotFound, "vault salt not initialized")
	}
	if err != nil {
		return nil, storeErr("get vault salt", err)
	}
	return salt, nil
}

// PutSalt stores the PBKDF2 salt.
func (s *LibSQLStore) PutSalt(ctx context.Context, salt []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vault_config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		saltKey, salt)
	if err != nil {
		return storeErr("put vault salt", err)
	}
	return nil
}

// --- helpers ---

func scanMeta(scan func(dest ...any) error) (*SecretMeta, error) {
	meta := &SecretMeta{}
	var (
		expiresAt    sql.NullTime
		lastVerified sql.NullTime
		metadata     sql.NullString
	)
	err := scan(&meta.ID, &meta.ServiceID, &meta.Name, &meta.Type,
		&expiresAt, &lastVerified, &metadata, &meta.CreatedAt, &meta.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		meta.ExpiresAt = &expiresAt.Time
	}
	if lastVerified.Valid {
		meta.LastVerified = &lastVerified.Time
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &meta.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return meta, nil
}

func marshalMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func storeErr(op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}
