package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/formpulse/automate/logger"
	"github.com/formpulse/automate/model"
	"github.com/formpulse/automate/persistence"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	execution, err := s.executions.Get(r.Context(), id)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, "error loading execution")
		return
	}
	steps, err := s.steps.ListByExecution(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "error loading execution steps")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"execution": execution, "steps": steps})
}

func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowId := mux.Vars(r)["id"]
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	executions, err := s.executions.ListByWorkflow(r.Context(), workflowId, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "error listing executions")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"executions": executions})
}

// HandleRetryExecution is the administrative retry endpoint. It goes through
// the same conditional claim as the sweeper, so racing the sweep on the same
// row is safe: whoever claims first runs, the other is a no-op.
func (s *Server) HandleRetryExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	execution, err := s.executions.Get(r.Context(), id)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, "error loading execution")
		return
	}
	if execution.Status != model.EXECUTION_RETRYING {
		respondWithError(w, http.StatusConflict, "execution is not awaiting retry")
		return
	}
	if err := s.engine.RetryExecution(r.Context(), execution); err != nil {
		logger.Error("manual retry failed", zap.String("execution", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"executionId": id, "status": "retried"})
}
