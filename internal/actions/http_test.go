package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/pkg/schema"
)

func decodeOutput(t *testing.T, out *ActionOutput) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(out.Data, &m))
	return m
}

func TestHTTPFetch_ExtractValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer setup-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"api_key": "sk-live-123"}}`))
	}))
	defer srv.Close()

	a := NewHTTPFetchAction(HTTPConfig{})
	out, err := a.Execute(context.Background(), ActionInput{Params: map[string]any{
		"url":     srv.URL,
		"extract": ".data.api_key",
		"auth":    map[string]any{"type": "bearer", "token": "setup-token"},
	}})
	require.NoError(t, err)

	m := decodeOutput(t, out)
	assert.EqualValues(t, http.StatusOK, m["status_code"])
	assert.Equal(t, "sk-live-123", m["value"])
}

func TestHTTPFetch_PostWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sealbox", body["client"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "t-1"}`))
	}))
	defer srv.Close()

	a := NewHTTPFetchAction(HTTPConfig{})
	out, err := a.Execute(context.Background(), ActionInput{Params: map[string]any{
		"url":     srv.URL,
		"method":  "POST",
		"body":    map[string]any{"client": "sealbox"},
		"extract": ".token",
	}})
	require.NoError(t, err)
	assert.Equal(t, "t-1", decodeOutput(t, out)["value"])
}

func TestHTTPFetch_ExtractMatchesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"other": 1}`))
	}))
	defer srv.Close()

	a := NewHTTPFetchAction(HTTPConfig{})
	_, err := a.Execute(context.Background(), ActionInput{Params: map[string]any{
		"url":     srv.URL,
		"extract": ".missing",
	}})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

func TestHTTPFetch_NoExtractReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain response"))
	}))
	defer srv.Close()

	a := NewHTTPFetchAction(HTTPConfig{})
	out, err := a.Execute(context.Background(), ActionInput{Params: map[string]any{"url": srv.URL}})
	require.NoError(t, err)

	m := decodeOutput(t, out)
	assert.Equal(t, "plain response", m["body"])
	assert.NotContains(t, m, "value")
}

func TestHTTPFetch_Validate(t *testing.T) {
	a := NewHTTPFetchAction(HTTPConfig{})

	err := a.Validate(map[string]any{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = a.Validate(map[string]any{"url": "ftp://host"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	assert.NoError(t, a.Validate(map[string]any{"url": "https://example.com"}))
}
