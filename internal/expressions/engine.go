// Package expressions evaluates the small expression surfaces of automation
// jobs: success conditions over action output and jq extraction of values
// from JSON documents, plus resolution of stored-secret references in job
// params.
package expressions

import "context"

// Engine evaluates an expression against a data environment.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
