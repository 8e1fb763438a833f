package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/pkg/schema"
)

type mapSource map[string]string

func (m mapSource) SecretValue(_ context.Context, id string) (string, error) {
	v, ok := m[id]
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeNotFound, "secret %q not found", id)
	}
	return v, nil
}

func TestInterpolator_ResolveParams(t *testing.T) {
	in := NewInterpolator(mapSource{"github-token": "ghp_abc", "other": "xyz"})
	ctx := context.Background()

	resolved, err := in.ResolveParams(ctx, map[string]any{
		"auth":  "Bearer ${{secrets.github-token}}",
		"plain": "no references here",
		"count": 3,
		"nested": map[string]any{
			"list": []any{"${{secrets.other}}", 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer ghp_abc", resolved["auth"])
	assert.Equal(t, "no references here", resolved["plain"])
	assert.Equal(t, 3, resolved["count"])
	nested := resolved["nested"].(map[string]any)
	assert.Equal(t, []any{"xyz", 1}, nested["list"])
}

func TestInterpolator_OriginalParamsUntouched(t *testing.T) {
	in := NewInterpolator(mapSource{"id": "value"})
	params := map[string]any{"k": "${{secrets.id}}"}

	_, err := in.ResolveParams(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "${{secrets.id}}", params["k"])
}

func TestInterpolator_MultipleTokensInOneString(t *testing.T) {
	in := NewInterpolator(mapSource{"a": "1", "b": "2"})
	resolved, err := in.ResolveParams(context.Background(), map[string]any{
		"pair": "${{secrets.a}}:${{secrets.b}}",
	})
	require.NoError(t, err)
	assert.Equal(t, "1:2", resolved["pair"])
}

func TestInterpolator_Errors(t *testing.T) {
	in := NewInterpolator(mapSource{"id": "value"})
	ctx := context.Background()

	cases := []struct {
		name   string
		params map[string]any
		code   string
	}{
		{"unclosed", map[string]any{"k": "${{secrets.id"}, schema.ErrCodeValidation},
		{"empty", map[string]any{"k": "${{  }}"}, schema.ErrCodeValidation},
		{"nested", map[string]any{"k": "${{ x ${{ y }} }}"}, schema.ErrCodeValidation},
		{"wrong namespace", map[string]any{"k": "${{inputs.id}}"}, schema.ErrCodeValidation},
		{"unknown secret", map[string]any{"k": "${{secrets.missing}}"}, schema.ErrCodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := in.ResolveParams(ctx, tc.params)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, tc.code))
		})
	}
}

func TestInterpolator_NilParams(t *testing.T) {
	in := NewInterpolator(mapSource{})
	resolved, err := in.ResolveParams(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}
