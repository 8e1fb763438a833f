package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sealbox/sealbox/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a structured error onto an HTTP status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	var se *schema.SealboxError
	if !errors.As(err, &se) {
		se = schema.NewError(schema.ErrCodeExecution, err.Error())
	}
	writeJSON(w, statusForCode(se.Code), map[string]any{
		"error": map[string]any{
			"code":    se.Code,
			"message": se.Message,
			"details": se.Details,
		},
	})
}

func statusForCode(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeImport:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound, schema.ErrCodeActionUnavailable:
		return http.StatusNotFound
	case schema.ErrCodeConflict:
		return http.StatusConflict
	case schema.ErrCodeExpired:
		return http.StatusGone
	case schema.ErrCodeCapacityExceeded:
		return http.StatusTooManyRequests
	case schema.ErrCodeResource:
		return http.StatusServiceUnavailable
	case schema.ErrCodeCorruptedSecret, schema.ErrCodeDecryption:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err)
	}
	return nil
}
