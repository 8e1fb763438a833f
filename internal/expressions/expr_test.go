package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/pkg/schema"
)

func TestExprEngine_Evaluate(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, "status_code == 200 && value != ''", map[string]any{
		"status_code": 200,
		"value":       "sk-123",
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(ctx, "status_code >= 400", map[string]any{"status_code": 200})
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestExprEngine_EvaluateBool(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	ok, err := e.EvaluateBool(ctx, "value != nil", map[string]any{"value": "x"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.EvaluateBool(ctx, "1 + 1", map[string]any{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestExprEngine_Errors(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, "1 +", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestExprEngine_UndefinedVariablesAllowed(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), "missing == nil", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestGoJQEngine_Evaluate(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, ".data.api_key", map[string]any{
		"data": map[string]any{"api_key": "sk-456"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-456", out)
}

func TestGoJQEngine_MultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), ".items[]", map[string]any{
		"items": []any{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)
}

func TestGoJQEngine_Errors(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, ".[", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestGoJQEngine_EnvBlocked(t *testing.T) {
	t.Setenv("SECRET_LEAK", "oops")
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), `$ENV.SECRET_LEAK`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}
