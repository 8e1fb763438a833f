package expressions

import (
	"context"
	"strings"

	"github.com/sealbox/sealbox/pkg/schema"
)

// SecretSource resolves a stored secret id to its cleartext value.
type SecretSource interface {
	SecretValue(ctx context.Context, id string) (string, error)
}

// Interpolator resolves ${{secrets.ID}} references in job params so that an
// automation job can authenticate with already-stored credentials. Resolution
// happens in memory immediately before action execution; resolved values are
// never written back to any store.
type Interpolator struct {
	source SecretSource
}

// NewInterpolator creates an Interpolator backed by the given secret source.
func NewInterpolator(source SecretSource) *Interpolator {
	return &Interpolator{source: source}
}

// ResolveParams returns a copy of params with every ${{secrets.ID}} token
// replaced by the stored secret value. Nested maps and slices are walked;
// non-string values pass through unchanged.
func (in *Interpolator) ResolveParams(ctx context.Context, params map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	resolved, err := in.resolveValue(ctx, params)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

func (in *Interpolator) resolveValue(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case string:
		return in.resolveString(ctx, val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			r, err := in.resolveValue(ctx, inner)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			r, err := in.resolveValue(ctx, inner)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (in *Interpolator) resolveString(ctx context.Context, input string) (string, error) {
	if !strings.Contains(input, "${{") {
		return input, nil
	}

	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], "${{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		result.WriteString(input[i : i+idx])
		start := i + idx + 3

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeValidation, "unclosed ${{ expression")
		}
		end += start

		ref := strings.TrimSpace(input[start:end])
		if ref == "" {
			return "", schema.NewError(schema.ErrCodeValidation, "empty secret reference: ${{  }}")
		}
		if strings.Contains(ref, "${{") {
			return "", schema.NewError(schema.ErrCodeValidation,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}
		id, ok := strings.CutPrefix(ref, "secrets.")
		if !ok || id == "" {
			return "", schema.NewErrorf(schema.ErrCodeValidation,
				"unsupported reference %q: only secrets.<id> may be interpolated", ref)
		}

		value, err := in.source.SecretValue(ctx, id)
		if err != nil {
			return "", err
		}
		result.WriteString(value)
		i = end + 2
	}

	return result.String(), nil
}
