package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	"hrassist/internal/transport/http/api"
)

// ReadJSON decodes the request body into dst. On failure it returns 413 when the body ran
// past the BodyLimit cap and 400 otherwise.
func ReadJSON(r *http.Request, dst any) (int, error) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, err
		}
		return http.StatusBadRequest, err
	}
	return http.StatusOK, nil
}

// DecodeJSON decodes the request body into dst and answers 400 or 413 itself on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, requestID string) bool {
	status, err := ReadJSON(r, dst)
	switch {
	case err == nil:
		return true
	case status == http.StatusRequestEntityTooLarge:
		api.Fail(w, status, "payload_too_large", "request payload too large", requestID)
	default:
		api.Fail(w, status, "invalid_payload", "invalid request payload", requestID)
	}
	return false
}
