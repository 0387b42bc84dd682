package api

import (
	"net/http"

	"browsercron/internal/core"
)

const maxPreviewCount = 50

type previewRequest struct {
	core.Schedule
	Count int `json:"count"`
}

func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Count > maxPreviewCount {
		req.Count = maxPreviewCount
	}
	sched := req.Schedule
	writeJSON(w, http.StatusOK, s.orch.Preview(&sched, req.Count))
}
