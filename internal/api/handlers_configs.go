package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"browsercron/internal/core"
)

type configRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Steps       []core.Step    `json:"steps"`
	Schedule    *core.Schedule `json:"schedule"`
	Active      *bool          `json:"active"`
}

func (req configRequest) toConfig() *core.Configuration {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &core.Configuration{
		Name:        req.Name,
		Description: req.Description,
		Steps:       req.Steps,
		Schedule:    req.Schedule,
		Active:      active,
	}
}

type configResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Steps         []core.Step    `json:"steps"`
	Schedule      *core.Schedule `json:"schedule,omitempty"`
	Active        bool           `json:"active"`
	IsScheduled   bool           `json:"isScheduled"`
	NextFireAt    *string        `json:"nextFireAt,omitempty"`
	ScheduleError string         `json:"scheduleError,omitempty"`
	CreatedAt     string         `json:"createdAt"`
	UpdatedAt     string         `json:"updatedAt"`
}

func (s *Server) configToResponse(r *http.Request, cfg *core.Configuration) configResponse {
	resp := configResponse{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Description: cfg.Description,
		Steps:       cfg.Steps,
		Schedule:    cfg.Schedule,
		Active:      cfg.Active,
		CreatedAt:   cfg.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   cfg.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if resp.Steps == nil {
		resp.Steps = []core.Step{}
	}
	if status, err := s.orch.Status(r.Context(), cfg.ID); err == nil {
		resp.IsScheduled = status.IsScheduled
		resp.NextFireAt = formatTimePtr(status.NextFireAt)
	}
	return resp
}

// respondSaved answers a create, update or toggle. A schedule that could not
// produce a timer does not fail the request; it is reported in scheduleError.
func (s *Server) respondSaved(w http.ResponseWriter, r *http.Request, status int, cfg *core.Configuration, err error) {
	var serr *core.InvalidScheduleError
	if err != nil && (cfg == nil || !errors.As(err, &serr)) {
		s.writeCoreError(w, err, "save configuration")
		return
	}
	resp := s.configToResponse(r, cfg)
	if serr != nil {
		resp.ScheduleError = serr.Error()
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.orch.List(r.Context())
	if err != nil {
		s.writeCoreError(w, err, "list configurations")
		return
	}
	res := make([]configResponse, 0, len(configs))
	for _, cfg := range configs {
		res = append(res, s.configToResponse(r, cfg))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := s.orch.Create(r.Context(), req.toConfig())
	s.respondSaved(w, r, http.StatusCreated, cfg, err)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configID := chi.URLParam(r, "configID")
	cfg, err := s.orch.Get(r.Context(), configID)
	if err != nil {
		s.writeCoreError(w, err, "load configuration", "config_id", configID)
		return
	}
	writeJSON(w, http.StatusOK, s.configToResponse(r, cfg))
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	configID := chi.URLParam(r, "configID")
	var req configRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := s.orch.Update(r.Context(), configID, req.toConfig())
	s.respondSaved(w, r, http.StatusOK, cfg, err)
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	configID := chi.URLParam(r, "configID")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	removed, err := s.orch.Delete(r.Context(), configID, force)
	if err != nil {
		s.writeCoreError(w, err, "delete configuration", "config_id", configID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": configID, "resultsRemoved": removed})
}

func (s *Server) handleToggleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.orch.Toggle(r.Context(), chi.URLParam(r, "configID"))
	s.respondSaved(w, r, http.StatusOK, cfg, err)
}

func (s *Server) handleConfigStatus(w http.ResponseWriter, r *http.Request) {
	configID := chi.URLParam(r, "configID")
	status, err := s.orch.Status(r.Context(), configID)
	if err != nil {
		s.writeCoreError(w, err, "load schedule status", "config_id", configID)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRunConfig(w http.ResponseWriter, r *http.Request) {
	configID := chi.URLParam(r, "configID")
	result, err := s.orch.RunNow(r.Context(), configID)
	if err != nil {
		s.writeCoreError(w, err, "run configuration", "config_id", configID)
		return
	}
	writeJSON(w, http.StatusOK, resultToResponse(result))
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}
