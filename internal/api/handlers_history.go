package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"browsercron/internal/core"
	"browsercron/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type resultResponse struct {
	ID                string   `json:"id"`
	ConfigID          string   `json:"configId"`
	ConfigName        string   `json:"configName"`
	ConfigDescription string   `json:"configDescription,omitempty"`
	Trigger           string   `json:"trigger"`
	Status            string   `json:"status"`
	StartTime         string   `json:"startTime"`
	EndTime           *string  `json:"endTime,omitempty"`
	DurationMs        int64    `json:"durationMs"`
	Logs              string   `json:"logs"`
	Error             *string  `json:"error,omitempty"`
	ScreenshotPaths   []string `json:"screenshotPaths"`
	ScreenshotURLs    []string `json:"screenshotUrls"`
}

func resultToResponse(result *core.RunResult) resultResponse {
	resp := resultResponse{
		ID:                result.ID,
		ConfigID:          result.ConfigID,
		ConfigName:        result.ConfigName,
		ConfigDescription: result.ConfigDescription,
		Trigger:           string(result.Trigger),
		Status:            string(result.Status),
		StartTime:         result.StartTime.UTC().Format(time.RFC3339),
		EndTime:           formatTimePtr(result.EndTime),
		DurationMs:        result.Duration().Milliseconds(),
		Logs:              result.Logs,
		Error:             result.Error,
		ScreenshotPaths:   append([]string{}, result.Screenshots...),
		ScreenshotURLs:    make([]string, 0, len(result.Screenshots)),
	}
	for i := range result.Screenshots {
		resp.ScreenshotURLs = append(resp.ScreenshotURLs, fmt.Sprintf("/api/v1/history/%s/screenshots/%d", result.ID, i))
	}
	return resp
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.ResultFilter{
		ConfigID: query.Get("configId"),
		Limit:    parseIntDefault(query.Get("limit"), defaultHistoryLimit),
		Offset:   parseIntDefault(query.Get("offset"), 0),
	}
	if filter.Limit <= 0 || filter.Limit > maxHistoryLimit {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if status := strings.ToUpper(strings.TrimSpace(query.Get("status"))); status != "" {
		switch core.RunStatus(status) {
		case core.RunStatusRunning, core.RunStatusSuccess, core.RunStatusFailed, core.RunStatusCancelled:
			filter.Status = core.RunStatus(status)
		default:
			writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("unknown status %q", status))
			return
		}
	}
	var err error
	if filter.From, err = s.parseTimeParam(query.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "from: "+err.Error())
		return
	}
	if filter.To, err = s.parseTimeParam(query.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "to: "+err.Error())
		return
	}

	results, total, err := s.store.ListResults(r.Context(), filter)
	if err != nil {
		s.writeCoreError(w, err, "list run results")
		return
	}
	items := make([]resultResponse, 0, len(results))
	for _, result := range results {
		items = append(items, resultToResponse(result))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	resultID := chi.URLParam(r, "resultID")
	result, err := s.store.GetResult(r.Context(), resultID)
	if err != nil {
		s.writeCoreError(w, err, "load run result", "result_id", resultID)
		return
	}
	writeJSON(w, http.StatusOK, resultToResponse(result))
}

func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	resultID := chi.URLParam(r, "resultID")
	if err := s.store.DeleteResult(r.Context(), resultID); err != nil {
		s.writeCoreError(w, err, "delete run result", "result_id", resultID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResultScreenshot(w http.ResponseWriter, r *http.Request) {
	resultID := chi.URLParam(r, "resultID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "screenshot index must be a non-negative integer")
		return
	}
	result, err := s.store.GetResult(r.Context(), resultID)
	if err != nil {
		s.writeCoreError(w, err, "load run result", "result_id", resultID)
		return
	}
	if index >= len(result.Screenshots) {
		writeError(w, http.StatusNotFound, "not_found", "screenshot not found")
		return
	}
	data, err := s.store.ReadScreenshot(result.Screenshots[index])
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not_found", "screenshot file missing")
			return
		}
		s.writeCoreError(w, err, "read screenshot", "result_id", resultID)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseTimeParam accepts RFC 3339 or a local date-time in the server's zone.
func (s *Server) parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := core.ParseLocalDateTime(value, s.location)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
