package actions

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"sync"

	"github.com/sealbox/sealbox/pkg/schema"
)

const browserNavigateInputSchema = `{
  "type": "object",
  "properties": {
    "url": {"type": "string"}
  },
  "required": ["url"]
}`

const browserNavigateOutputSchema = `{
  "type": "object",
  "properties": {
    "status_code": {"type": "integer"},
    "url": {"type": "string"}
  }
}`

const browserHarvestInputSchema = `{
  "type": "object",
  "properties": {
    "pattern": {"type": "string"},
    "required": {"type": "boolean", "default": true}
  },
  "required": ["pattern"]
}`

const browserHarvestOutputSchema = `{
  "type": "object",
  "properties": {
    "value": {"type": "string"},
    "url": {"type": "string"}
  }
}`

// BrowserNavigateAction implements "browser_navigate": load a page into the
// job's exclusive browser profile, carrying cookie state between steps.
type BrowserNavigateAction struct{}

// NewBrowserNavigateAction creates a new browser_navigate action.
func NewBrowserNavigateAction() *BrowserNavigateAction { return &BrowserNavigateAction{} }

func (a *BrowserNavigateAction) Name() string { return "browser_navigate" }

func (a *BrowserNavigateAction) Schema() ActionSchema {
	return ActionSchema{
		Description:  "Navigate the job's browser profile to a URL.",
		InputSchema:  json.RawMessage(browserNavigateInputSchema),
		OutputSchema: json.RawMessage(browserNavigateOutputSchema),
	}
}

func (a *BrowserNavigateAction) Validate(input map[string]any) error {
	rawURL := stringParam(input, "url", "")
	if rawURL == "" {
		return schema.NewError(schema.ErrCodeValidation, "browser_navigate: missing required param 'url'")
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewErrorf(schema.ErrCodeValidation, "browser_navigate: invalid url %q", rawURL)
	}
	return nil
}

func (a *BrowserNavigateAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	if input.Profile == nil {
		return nil, schema.NewError(schema.ErrCodeResource, "browser_navigate: no browser profile attached")
	}
	params := input.Params
	if params == nil {
		params = map[string]any{}
	}
	if err := a.Validate(params); err != nil {
		return nil, err
	}

	rawURL := stringParam(params, "url", "")
	status, err := input.Profile.Navigate(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return marshalOutput(map[string]any{
		"status_code": status,
		"url":         rawURL,
	})
}

// BrowserHarvestAction implements "browser_harvest": extract a credential
// from the profile's current page with a regular expression. The pattern's
// first capture group is the harvested value; with no group, the whole match.
type BrowserHarvestAction struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// NewBrowserHarvestAction creates a new browser_harvest action.
func NewBrowserHarvestAction() *BrowserHarvestAction {
	return &BrowserHarvestAction{cache: make(map[string]*regexp.Regexp)}
}

func (a *BrowserHarvestAction) Name() string { return "browser_harvest" }

func (a *BrowserHarvestAction) Schema() ActionSchema {
	return ActionSchema{
		Description:  "Extract a credential value from the current page of the job's browser profile.",
		InputSchema:  json.RawMessage(browserHarvestInputSchema),
		OutputSchema: json.RawMessage(browserHarvestOutputSchema),
	}
}

func (a *BrowserHarvestAction) Validate(input map[string]any) error {
	pattern := stringParam(input, "pattern", "")
	if pattern == "" {
		return schema.NewError(schema.ErrCodeValidation, "browser_harvest: missing required param 'pattern'")
	}
	if _, err := a.compile(pattern); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "browser_harvest: invalid pattern %q", pattern).WithCause(err)
	}
	return nil
}

func (a *BrowserHarvestAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	if input.Profile == nil {
		return nil, schema.NewError(schema.ErrCodeResource, "browser_harvest: no browser profile attached")
	}
	params := input.Params
	if params == nil {
		params = map[string]any{}
	}
	if err := a.Validate(params); err != nil {
		return nil, err
	}

	pageURL, page := input.Profile.Page()
	if pageURL == "" {
		return nil, schema.NewError(schema.ErrCodeExecution, "browser_harvest: no page loaded, navigate first")
	}

	re, err := a.compile(stringParam(params, "pattern", ""))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "browser_harvest: invalid pattern").WithCause(err)
	}

	match := re.FindSubmatch(page)
	if match == nil {
		if boolParam(params, "required", true) {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"browser_harvest: pattern matched nothing on %s", pageURL)
		}
		return marshalOutput(map[string]any{"value": "", "url": pageURL})
	}

	value := match[0]
	if len(match) > 1 {
		value = match[1]
	}
	return marshalOutput(map[string]any{
		"value": string(value),
		"url":   pageURL,
	})
}

func (a *BrowserHarvestAction) compile(pattern string) (*regexp.Regexp, error) {
	a.mu.RLock()
	if re, ok := a.cache[pattern]; ok {
		a.mu.RUnlock()
		return re, nil
	}
	a.mu.RUnlock()

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[pattern] = re
	a.mu.Unlock()
	return re, nil
}
