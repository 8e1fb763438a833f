// Package actions defines the executable units automation jobs run: a small
// set of builtins plus per-service extensions registered under a namespace.
package actions

import (
	"context"
	"encoding/json"

	"github.com/sealbox/sealbox/internal/browser"
)

// Action is a named, schema-described unit of work.
type Action interface {
	Name() string
	Schema() ActionSchema
	Execute(ctx context.Context, input ActionInput) (*ActionOutput, error)
	Validate(input map[string]any) error
}

// ActionSchema describes the input/output contract of an action.
type ActionSchema struct {
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// ActionInput is the data provided to an action at execution time. Profile is
// the browser context exclusively owned by the running job; nil for actions
// that do not drive a browser.
type ActionInput struct {
	Params  map[string]any
	Profile *browser.Profile
}

// ActionOutput is the result of an action execution. Data is a JSON object;
// credential-producing actions place the harvested value under "value".
type ActionOutput struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// ActionInfo is a summary of a registered action for listing.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Param helpers used by all action files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func marshalOutput(result map[string]any) (*ActionOutput, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Data: json.RawMessage(data)}, nil
}
