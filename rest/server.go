package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/formpulse/automate/engine"
	"github.com/formpulse/automate/logger"
	"github.com/formpulse/automate/persistence"
	"github.com/formpulse/automate/trigger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port       int
	engine     *engine.Engine
	classifier *trigger.Classifier
	executions persistence.ExecutionDao
	steps      persistence.StepLogDao
}

func NewServer(httpPort int, eng *engine.Engine, classifier *trigger.Classifier,
	executions persistence.ExecutionDao, steps persistence.StepLogDao) *Server {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		Port:       httpPort,
		engine:     eng,
		classifier: classifier,
		executions: executions,
		steps:      steps,
	}

	router := mux.NewRouter()
	router.HandleFunc("/events", s.HandleTriggerEvent).Methods(http.MethodPost)
	router.HandleFunc("/submissions", s.HandleSubmission).Methods(http.MethodPost)
	router.HandleFunc("/executions/{id}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/executions/{id}/retry", s.HandleRetryExecution).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{id}/executions", s.HandleListExecutions).Methods(http.MethodGet)
	router.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	router.Use(loggingMiddleware)
	s.Handler = router
	return s
}

func (s *Server) Start() error {
	logger.Info("starting http server", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug(r.RequestURI, zap.String("method", r.Method))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
