package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"browsercron/internal/core"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("invalid JSON payload: %v", err))
		return false
	}
	return true
}

// writeCoreError maps core errors to HTTP statuses. Unknown errors are logged
// and reported as 500 with msg.
func (s *Server) writeCoreError(w http.ResponseWriter, err error, msg string, args ...any) {
	var (
		verr *core.ValidationError
		herr *core.HasResultsError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "invalid_input", verr.Error())
	case errors.Is(err, core.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
	case errors.Is(err, core.ErrConfigNotFound):
		writeError(w, http.StatusNotFound, "not_found", "configuration not found")
	case errors.Is(err, core.ErrResultNotFound):
		writeError(w, http.StatusNotFound, "not_found", "run result not found")
	case errors.As(err, &herr):
		writeError(w, http.StatusConflict, "has_results", herr.Error())
	case errors.Is(err, core.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "conflict", "configuration is already running")
	default:
		s.logger.Error(msg, append(args, "err", err)...)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+msg)
	}
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
