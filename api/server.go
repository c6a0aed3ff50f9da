// Package api is a thin HTTP layer over the engine: it decodes requests,
// opens a workspace per request and serializes results. It performs no
// cost logic.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"landed-cost/adapters/sqlite"
	"landed-cost/adapters/workspace"
	"landed-cost/core/determinism"
	"landed-cost/core/engine"
	"landed-cost/core/types"
	"landed-cost/internal/config"
	"landed-cost/internal/errors"
	"landed-cost/internal/logging"
	"landed-cost/internal/metrics"
)

const maxBody = 1 << 20

// Server is the API server
type Server struct {
	mux     *http.ServeMux
	version string
	cfg     *config.Config
	inputs  workspace.Options
	metrics *metrics.Collector
	log     *zap.Logger

	// calculations run one at a time; they share the sqlite file and the
	// metrics collector
	mu sync.Mutex
}

// NewServer creates a server that reads its model from inputs on every
// request, so edits to the definition files are picked up without a
// restart
func NewServer(version string, cfg *config.Config, inputs workspace.Options) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		version: version,
		cfg:     cfg,
		inputs:  inputs,
		metrics: metrics.New(),
		log:     logging.Named("api"),
	}
	s.inputs.Metrics = s.metrics
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /calculate", s.handleCalculate)
	s.mux.HandleFunc("POST /whatif", s.handleWhatIf)
	s.mux.HandleFunc("GET /path", s.handlePath)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /runs/{old}/compare/{new}", s.handleCompareRuns)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /version", s.handleVersion)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
}

// handleCalculate handles POST /calculate
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()

	var req CalculateRequest
	body, err := decode(r, &req)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(r.Context(), req.Strict)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	defer ws.Close()

	res, err := ws.Engine.Calculate(r.Context())
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}

	resp := &CalculateResponse{RequestID: requestID, Result: res}
	if req.Save {
		if ws.DB == nil {
			s.writeError(w, requestID, errors.Input("save requested but the server has no database"))
			return
		}
		if _, err := ws.DB.SaveRun(r.Context(), req.Label, res); err != nil {
			s.writeError(w, requestID, err)
			return
		}
		resp.Saved = true
	}
	resp.Metadata = s.metadata(body, ws, start)

	s.log.Info("calculation served",
		zap.String("request_id", requestID),
		zap.String("run_id", res.RunID),
		zap.Int("records", len(res.Records)),
		zap.Duration("duration", time.Since(start)))
	s.writeJSON(w, resp, http.StatusOK)
}

// handleWhatIf handles POST /whatif with an engine.Scenario body
func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()

	var sc engine.Scenario
	body, err := decode(r, &sc)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	if len(sc.Costs)+len(sc.Rates) == 0 {
		s.writeError(w, requestID, errors.Input("scenario has no cost or rate overrides"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(r.Context(), false)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	defer ws.Close()

	if _, err := ws.Engine.Calculate(r.Context()); err != nil {
		s.writeError(w, requestID, err)
		return
	}
	wr, err := ws.Engine.WhatIf(r.Context(), sc)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}

	s.writeJSON(w, &WhatIfResponse{
		RequestID: requestID,
		WhatIf:    wr,
		Metadata:  s.metadata(body, ws, start),
	}, http.StatusOK)
}

// handlePath handles GET /path?product=&destination=&period=
func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	q := r.URL.Query()
	product, dest := types.ProductID(q.Get("product")), types.EntityID(q.Get("destination"))
	if product == "" || dest == "" {
		s.writeError(w, requestID, errors.Input("product and destination are required"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(r.Context(), false)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	defer ws.Close()

	if _, err := ws.Engine.Calculate(r.Context()); err != nil {
		s.writeError(w, requestID, err)
		return
	}

	period := types.Period(q.Get("period"))
	if period == "" {
		if periods := ws.Engine.Periods(); len(periods) > 0 {
			period = periods[0]
		}
	}
	if _, err := types.ParsePeriod(string(period)); err != nil {
		s.writeError(w, requestID, errors.Wrap(errors.TypeInput, "invalid period", err))
		return
	}

	sel, ok, warn := ws.Engine.SelectBestPath(product, dest, period)
	if !ok {
		msg := "no transfer path"
		if warn != nil {
			msg = warn.Message
		}
		s.writeError(w, requestID, errors.New(errors.TypeNotFound, msg))
		return
	}
	s.writeJSON(w, sel, http.StatusOK)
}

// handleListRuns handles GET /runs?label=&limit=
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	filter := sqlite.ListFilter{Label: r.URL.Query().Get("label")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, requestID, errors.Newf(errors.TypeInput, "invalid limit %q", v))
			return
		}
		filter.Limit = n
	}

	s.withDB(w, r, requestID, func(ctx context.Context, db *sqlite.DB) (any, error) {
		runs, err := db.ListRuns(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &RunsResponse{Runs: runs, Count: len(runs)}, nil
	})
}

// handleGetRun handles GET /runs/{id}, returning the stored result
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	s.withDB(w, r, requestID, func(ctx context.Context, db *sqlite.DB) (any, error) {
		run, err := db.GetRun(ctx, r.PathValue("id"))
		if err != nil {
			return nil, err
		}
		return json.RawMessage(run.Payload), nil
	})
}

// handleCompareRuns handles GET /runs/{old}/compare/{new}
func (s *Server) handleCompareRuns(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	s.withDB(w, r, requestID, func(ctx context.Context, db *sqlite.DB) (any, error) {
		return db.CompareRuns(ctx, r.PathValue("old"), r.PathValue("new"))
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":  "healthy",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"version": s.version,
		"engine":  "landed-cost",
	}, http.StatusOK)
}

func (s *Server) open(ctx context.Context, strict bool) (*workspace.Workspace, error) {
	opts := s.inputs
	opts.Strict = opts.Strict || strict
	return workspace.Open(ctx, s.cfg, opts)
}

func (s *Server) withDB(w http.ResponseWriter, r *http.Request, requestID string, fn func(context.Context, *sqlite.DB) (any, error)) {
	path := s.inputs.SQLitePath
	if path == "" {
		path = s.cfg.Data.SQLitePath
	}
	if path == "" {
		s.writeJSON(w, errorBody(requestID, "NO_DATABASE", "server has no database"), http.StatusServiceUnavailable)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := sqlite.Open(r.Context(), path)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	defer db.Close()

	out, err := fn(r.Context(), db)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	s.writeJSON(w, out, http.StatusOK)
}

func (s *Server) metadata(body []byte, ws *workspace.Workspace, start time.Time) *Metadata {
	return &Metadata{
		InputHash:     determinism.HashParts(append([]string{string(body)}, ws.Model.Sources...)...).Hex(),
		EngineVersion: s.version,
		Sources:       ws.Model.Sources,
		DurationMs:    time.Since(start).Milliseconds(),
		Timestamp:     time.Now().UTC(),
	}
}

// decode reads an optional JSON body into v and returns the raw bytes
func decode(r *http.Request, v any) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, errors.Wrap(errors.TypeInput, "failed to read request body", err)
	}
	if len(body) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, errors.Wrap(errors.TypeInput, "invalid JSON", err)
	}
	return body, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, requestID string, err error) {
	t := errors.TypeOf(err)
	status := statusOf(t)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("request_id", requestID), zap.Error(err))
	}
	s.writeJSON(w, errorBody(requestID, string(t), err.Error()), status)
}

func statusOf(t errors.Type) int {
	switch t {
	case errors.TypeInput, errors.TypeParsing:
		return http.StatusBadRequest
	case errors.TypeNotFound:
		return http.StatusNotFound
	case errors.TypeConfig, errors.TypeInvariant, errors.TypeDataGap, errors.TypeConvergence:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(requestID, code, message string) *ErrorBody {
	var b ErrorBody
	b.Error.Code = code
	b.Error.Message = message
	b.Error.RequestID = requestID
	return &b
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
