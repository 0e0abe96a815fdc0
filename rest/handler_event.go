package rest

import (
	"encoding/json"
	"net/http"

	"github.com/formpulse/automate/logger"
	"github.com/formpulse/automate/model"
	"go.uber.org/zap"
)

type triggerEventRequest struct {
	TenantId     string         `json:"tenantId"`
	TriggerEvent string         `json:"triggerEvent"`
	TriggerData  map[string]any `json:"triggerData"`
}

type submissionRequest struct {
	TenantId   string           `json:"tenantId"`
	FormId     string           `json:"formId"`
	Submission model.Submission `json:"submission"`
}

func (s *Server) HandleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	var req triggerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()
	if req.TenantId == "" || req.TriggerEvent == "" {
		respondWithError(w, http.StatusBadRequest, "tenantId and triggerEvent are required")
		return
	}
	executionIds, err := s.engine.ExecuteTriggeredWorkflows(r.Context(), req.TriggerEvent, req.TriggerData, req.TenantId)
	if err != nil {
		logger.Error("error executing triggered workflows",
			zap.String("trigger", req.TriggerEvent), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error executing workflows")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"executionIds": executionIds})
}

func (s *Server) HandleSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()
	if req.TenantId == "" {
		respondWithError(w, http.StatusBadRequest, "tenantId is required")
		return
	}
	triggers := s.classifier.AnalyzeAndTrigger(r.Context(), &req.Submission, req.FormId, req.TenantId)
	respondWithJSON(w, http.StatusOK, map[string]any{"triggers": triggers})
}
