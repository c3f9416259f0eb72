package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/serisow/craftvid/orchestrator"
	"github.com/serisow/craftvid/repository"
	"github.com/serisow/craftvid/script_type"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps orchestration errors onto HTTP status codes.
func statusFor(err error) int {
	var ve *orchestrator.ValidationError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve), errors.Is(err, repository.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrNotReady), errors.Is(err, orchestrator.ErrCompileInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, err.Error(), statusFor(err))
}

func parseComponent(s string) (script_type.Component, bool) {
	for _, c := range script_type.Components {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// decodeOptional decodes a JSON body into v. An empty body leaves v as is.
func decodeOptional(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}
