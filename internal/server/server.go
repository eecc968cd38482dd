package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/netaudit/internal/app"
	"github.com/raysh454/netaudit/internal/audit"
	"github.com/raysh454/netaudit/internal/logging"
	"github.com/raysh454/netaudit/internal/recordlog"
	"github.com/raysh454/netaudit/internal/store"
)

const defaultListLimit = 50

// Server is the HTTP + WebSocket API surface for netaudit.
type Server struct {
	cfg      Config
	runner   *app.Runner
	store    *store.Store
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer opens the run store under the storage root and builds a runner
// over the default audits.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = cfg.AppConfig.ServerCfg.ListenAddr
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	path, err := cfg.AppConfig.StorePath()
	if err != nil {
		return nil, fmt.Errorf("expanding storage root path: %w", err)
	}
	st, err := store.Open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}

	runner, err := app.NewRunner(cfg.AppConfig, audit.Default(), st, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating runner: %w", err)
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:    cfg,
		runner: runner,
		store:  st,
		router: r,
		logger: logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: check Origin against a configured allow-list
				return true
			},
		},
	}

	s.routes()
	return s, nil
}

// Runner returns the underlying runner for advanced use (tests, etc.).
func (s *Server) Runner() *app.Runner {
	return s.runner
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/audits", s.optionsHandler("GET"))
	r.Options("/runs", s.optionsHandler("GET, POST"))
	r.Options("/runs/{runID}", s.optionsHandler("GET"))
	r.Options("/runs/{baseID}/compare/{headID}", s.optionsHandler("GET"))
	r.Options("/ws/runs", s.optionsHandler("GET"))

	r.Get("/audits", s.handleListAudits)

	// Runs
	r.Post("/runs", s.handleCreateRun)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{runID}", s.handleGetRun)
	r.Get("/runs/{baseID}/compare/{headID}", s.handleCompareRuns)

	// WebSocket for run progress
	r.Get("/ws/runs", s.handleRunWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}
	// Bodies carry whole page-load logs; only their size is logged.
	if r.ContentLength > 0 {
		fields = append(fields, logging.Field{Key: "body_bytes", Value: r.ContentLength})
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close releases the run store.
func (s *Server) Close() {
	if s.store != nil {
		s.store.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// runRequest validates the payload and parses the log up front so malformed
// input is rejected before a run is created.
func (s *Server) runRequest(body CreateRunRequest) (app.RunRequest, error) {
	req := app.RunRequest{FinalURL: body.FinalURL, Source: "api"}

	raw := bytes.TrimSpace(body.Log)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return req, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return req, fmt.Errorf("log: %w", err)
		}
		raw = []byte(text)
	}

	name := body.Format
	if name == "" {
		name = s.cfg.AppConfig.DefaultLogFormat
	}
	format, err := recordlog.ParseFormat(name)
	if err != nil {
		return req, err
	}
	records, err := recordlog.Load(format, raw)
	if err != nil {
		return req, err
	}
	req.Source = "api:" + string(format)
	req.Records = recordlog.StaticSource{Records: records}
	return req, nil
}

// --- HTTP handlers ---

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Audits())
}

// Runs

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := s.runRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.logger.Warn("run failed", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("created run", logging.Field{Key: "run_id", Value: run.ID})
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if ls := r.URL.Query().Get("limit"); ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCompareRuns(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.store.CompareRuns(r.Context(), chi.URLParam(r, "baseID"), chi.URLParam(r, "headID"))
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// WebSockets

func (s *Server) handleRunWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	var body CreateRunRequest
	if err := conn.ReadJSON(&body); err != nil {
		_ = conn.WriteJSON(ErrorResponse{Error: "invalid JSON"})
		return
	}
	req, err := s.runRequest(body)
	if err != nil {
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Room for every event of a run so none are dropped.
	events := make(chan app.RunEvent, len(s.runner.Audits())+4)
	go func() {
		if _, err := s.runner.RunWithEvents(ctx, req, events); err != nil {
			s.logger.Warn("websocket run failed", logging.Field{Key: "error", Value: err.Error()})
		}
	}()

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel the run
			cancel()
			for range events {
			}
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
}
