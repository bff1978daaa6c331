package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/geofence"
	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/orchestrator"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the supervisor API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		// Drain the backlog whenever connectivity comes back while serving.
		go e.Queue.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(e),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/v1/sync/pending", func(w http.ResponseWriter, req *http.Request) {
		ops, err := e.Store.ListOperations(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":      len(ops),
			"operations": ops,
		})
	})

	r.Get("/v1/audit/{eventID}", func(w http.ResponseWriter, req *http.Request) {
		verdicts, err := e.Eval.HistoricalEvaluations(req.Context(), chi.URLParam(req, "eventID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"event_id":    chi.URLParam(req, "eventID"),
			"evaluations": verdicts,
		})
	})

	r.Get("/v1/overrides", func(w http.ResponseWriter, req *http.Request) {
		supervisor := req.URL.Query().Get("supervisor")
		if supervisor == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "supervisor query parameter is required"})
			return
		}
		reqs, err := e.Eval.PendingOverrides(req.Context(), supervisor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"overrides": reqs})
	})

	r.Post("/v1/overrides/{id}/approve", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SupervisorID string `json:"supervisor_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.SupervisorID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "supervisor_id is required"})
			return
		}
		id := chi.URLParam(req, "id")
		if _, err := e.Eval.ApproveOverride(req.Context(), id, body.SupervisorID); err != nil {
			writeError(w, err)
			return
		}
		res, err := e.Orch.ResumeApproved(req.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        res.Status,
			"event_id":      res.EventID,
			"time_entry_id": res.TimeEntryID,
		})
	})

	r.Post("/v1/overrides/{id}/deny", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SupervisorID string `json:"supervisor_id"`
			Reason       string `json:"reason"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.SupervisorID == "" || body.Reason == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "supervisor_id and reason are required"})
			return
		}
		id := chi.URLParam(req, "id")
		if err := e.Eval.DenyOverride(req.Context(), id, body.SupervisorID, body.Reason); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "denied"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, geofence.ErrOverrideNotFound):
		status = http.StatusNotFound
	case errors.Is(err, geofence.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, geofence.ErrAlreadyResolved),
		errors.Is(err, orchestrator.ErrOverrideNotApproved):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
