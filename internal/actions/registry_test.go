package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/pkg/schema"
)

type stubAction struct {
	name string
	out  map[string]any
	err  error
}

func (s *stubAction) Name() string                 { return s.name }
func (s *stubAction) Schema() ActionSchema         { return ActionSchema{Description: "stub " + s.name} }
func (s *stubAction) Validate(map[string]any) error { return nil }

func (s *stubAction) Execute(context.Context, ActionInput) (*ActionOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	return marshalOutput(s.out)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAction{name: "noop"}))

	a, err := r.Get("noop")
	require.NoError(t, err)
	assert.Equal(t, "noop", a.Name())

	_, err = r.Get("missing")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeActionUnavailable))
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	err := r.Register(nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = r.Register(&stubAction{name: ""})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	require.NoError(t, r.Register(&stubAction{name: "dup"}))
	err = r.Register(&stubAction{name: "dup"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestRegistry_RegisterService(t *testing.T) {
	r := NewRegistry()
	n, err := r.RegisterService("github", []Action{
		&stubAction{name: "harvest_token"},
		&stubAction{name: "revoke_token"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, err := r.Get("github.harvest_token")
	require.NoError(t, err)
	assert.Equal(t, "github.harvest_token", a.Name())
	assert.False(t, r.Has("harvest_token"))

	_, err = r.RegisterService("", []Action{&stubAction{name: "x"}})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAction{name: "http_fetch"}))
	_, err := r.RegisterService("github", []Action{&stubAction{name: "harvest_token"}})
	require.NoError(t, err)

	a, err := r.Resolve("github", "http_fetch")
	require.NoError(t, err)
	assert.Equal(t, "http_fetch", a.Name())

	a, err = r.Resolve("github", "harvest_token")
	require.NoError(t, err)
	assert.Equal(t, "github.harvest_token", a.Name())

	_, err = r.Resolve("gitlab", "harvest_token")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeActionUnavailable))
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAction{name: "b"}))
	require.NoError(t, r.Register(&stubAction{name: "a"}))

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "b", infos[1].Name)
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, HTTPConfig{}))
	assert.True(t, r.Has("http_fetch"))
	assert.True(t, r.Has("browser_navigate"))
	assert.True(t, r.Has("browser_harvest"))
	assert.Equal(t, 3, r.Count())
}
