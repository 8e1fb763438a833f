package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sealbox/sealbox/internal/expressions"
	"github.com/sealbox/sealbox/pkg/schema"
)

// HTTPConfig configures the http_fetch action.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

const httpFetchInputSchema = `{
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "method": {"type": "string", "enum": ["GET","POST"], "default": "GET"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "body": {},
    "auth": {
      "type": "object",
      "properties": {
        "type": {"type": "string", "enum": ["bearer","basic","api_key"]},
        "token": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "header_name": {"type": "string"},
        "header_value": {"type": "string"}
      }
    },
    "timeout": {"type": "string"},
    "extract": {"type": "string"}
  },
  "required": ["url"]
}`

const httpFetchOutputSchema = `{
  "type": "object",
  "properties": {
    "status_code": {"type": "integer"},
    "value": {},
    "body": {},
    "duration_ms": {"type": "integer"}
  }
}`

// HTTPFetchAction implements "http_fetch": request a credential-issuing
// endpoint and optionally extract the credential value from the JSON response
// with a jq expression.
type HTTPFetchAction struct {
	config HTTPConfig
	jq     *expressions.GoJQEngine
}

// NewHTTPFetchAction creates a new http_fetch action.
func NewHTTPFetchAction(cfg HTTPConfig) *HTTPFetchAction {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &HTTPFetchAction{config: cfg, jq: expressions.NewGoJQEngine()}
}

func (a *HTTPFetchAction) Name() string { return "http_fetch" }

func (a *HTTPFetchAction) Schema() ActionSchema {
	return ActionSchema{
		Description:  "Fetch a credential from an HTTP endpoint, optionally extracting the value with a jq expression.",
		InputSchema:  json.RawMessage(httpFetchInputSchema),
		OutputSchema: json.RawMessage(httpFetchOutputSchema),
	}
}

func (a *HTTPFetchAction) Validate(input map[string]any) error {
	rawURL := stringParam(input, "url", "")
	if rawURL == "" {
		return schema.NewError(schema.ErrCodeValidation, "http_fetch: missing required param 'url'")
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewErrorf(schema.ErrCodeValidation, "http_fetch: invalid url %q", rawURL)
	}
	return nil
}

func (a *HTTPFetchAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	params := input.Params
	if params == nil {
		params = map[string]any{}
	}
	if err := a.Validate(params); err != nil {
		return nil, err
	}

	method := strings.ToUpper(stringParam(params, "method", "GET"))
	rawURL := stringParam(params, "url", "")

	timeout := a.config.DefaultTimeout
	if ts := stringParam(params, "timeout", ""); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil {
			timeout = d
		}
	}

	var bodyReader io.Reader
	if rawBody, ok := params["body"]; ok && rawBody != nil {
		b, err := json.Marshal(rawBody)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "http_fetch: failed to marshal body as JSON").WithCause(err)
		}
		bodyReader = strings.NewReader(string(b))
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "http_fetch: failed to create request").WithCause(err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if hdrs, ok := params["headers"]; ok {
		if hm, ok := hdrs.(map[string]any); ok {
			for k, v := range hm {
				req.Header.Set(k, fmt.Sprintf("%v", v))
			}
		}
	}

	if authRaw, ok := params["auth"]; ok {
		if auth, ok := authRaw.(map[string]any); ok {
			switch stringParam(auth, "type", "") {
			case "bearer":
				req.Header.Set("Authorization", "Bearer "+stringParam(auth, "token", ""))
			case "basic":
				req.SetBasicAuth(stringParam(auth, "username", ""), stringParam(auth, "password", ""))
			case "api_key":
				if name := stringParam(auth, "header_name", ""); name != "" {
					req.Header.Set(name, stringParam(auth, "header_value", ""))
				}
			}
		}
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http_fetch: request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, a.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "http_fetch: failed to read response body").WithCause(err)
	}

	var parsedBody any
	if len(bodyBytes) > 0 {
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			var jsonBody any
			if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
				parsedBody = jsonBody
			} else {
				parsedBody = string(bodyBytes)
			}
		} else {
			parsedBody = string(bodyBytes)
		}
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsedBody,
		"duration_ms": durationMs,
	}

	if extract := stringParam(params, "extract", ""); extract != "" {
		obj, ok := parsedBody.(map[string]any)
		if !ok {
			return nil, schema.NewError(schema.ErrCodeExecution,
				"http_fetch: extract requires a JSON object response").WithDetails(result)
		}
		value, err := a.jq.Evaluate(ctx, extract, obj)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"http_fetch: extract %q matched nothing", extract).WithDetails(result)
		}
		result["value"] = value
	}

	return marshalOutput(result)
}
