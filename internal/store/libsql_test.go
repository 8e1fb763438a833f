package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/pkg/schema"
)

func testStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := "file:" + filepath.Join(t.TempDir(), "sealbox-test.db")
	s, err := NewLibSQLStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testMeta(id string) *SecretMeta {
	return &SecretMeta{
		ID:        id,
		ServiceID: "github",
		Name:      "deploy token",
		Type:      "api_key",
		Metadata:  map[string]string{"env": "prod"},
	}
}

func TestPutGetSecret(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSecret(ctx, testMeta("a"), []byte{0xDE, 0xAD}))

	meta, err := s.GetMeta(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "github", meta.ServiceID)
	assert.Equal(t, "deploy token", meta.Name)
	assert.Equal(t, map[string]string{"env": "prod"}, meta.Metadata)
	assert.False(t, meta.CreatedAt.IsZero())

	blob, err := s.GetCiphertext(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, blob)
}

func TestPutSecret_OverwritesSameID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSecret(ctx, testMeta("a"), []byte{1}))

	updated := testMeta("a")
	updated.Name = "rotated token"
	require.NoError(t, s.PutSecret(ctx, updated, []byte{2}))

	meta, err := s.GetMeta(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "rotated token", meta.Name)

	blob, err := s.GetCiphertext(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, blob)

	metas, err := s.ListMeta(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestGetMeta_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetMeta(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	_, err = s.GetCiphertext(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestListMeta_Ordering(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		m := testMeta(id)
		m.Name = id
		require.NoError(t, s.PutSecret(ctx, m, []byte(id)))
	}

	metas, err := s.ListMeta(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, "a", metas[0].Name)
	assert.Equal(t, "b", metas[1].Name)
	assert.Equal(t, "c", metas[2].Name)
}

func TestDeleteSecret_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSecret(ctx, testMeta("a"), []byte{1}))
	require.NoError(t, s.DeleteSecret(ctx, "a"))

	_, err := s.GetMeta(ctx, "a")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	_, err = s.GetCiphertext(ctx, "a")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	// Deleting again is not an error.
	require.NoError(t, s.DeleteSecret(ctx, "a"))
	require.NoError(t, s.DeleteSecret(ctx, "never-existed"))
}

func TestSaltLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.GetSalt(ctx)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	salt := []byte("0123456789abcdef0123456789abcdef")
	require.NoError(t, s.PutSalt(ctx, salt))

	got, err := s.GetSalt(ctx)
	require.NoError(t, err)
	assert.Equal(t, salt, got)
}

func TestTimestamps(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	exp := time.Date(2027, 1, 2, 3, 4, 5, 0, time.UTC)
	m := testMeta("a")
	m.ExpiresAt = &exp
	require.NoError(t, s.PutSecret(ctx, m, []byte{1}))

	got, err := s.GetMeta(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(exp))
	assert.Nil(t, got.LastVerified)
}
