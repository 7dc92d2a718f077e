package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leowmjw/go-timeline-resample/pkg/engine"
	"github.com/leowmjw/go-timeline-resample/pkg/hcl"
	"github.com/leowmjw/go-timeline-resample/pkg/operator"
	"github.com/leowmjw/go-timeline-resample/pkg/table"
	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

// Server represents the HTTP server for the resampling service
type Server struct {
	logger   *slog.Logger
	addr     string
	driver   hcl.DriverConfig
	mem      memory.Allocator
	registry *prometheus.Registry
	metrics  *engine.Metrics

	mu        sync.RWMutex
	operators map[string]operator.Operator
}

// NewServer creates a new HTTP server serving the operators in cfg. A nil cfg
// starts the server without operators.
func NewServer(logger *slog.Logger, cfg *hcl.Config, addr string) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		logger:    logger,
		addr:      addr,
		mem:       memory.DefaultAllocator,
		registry:  registry,
		metrics:   engine.NewMetrics(registry),
		operators: make(map[string]operator.Operator),
	}
	if cfg != nil {
		s.driver = cfg.Driver
		if err := s.register(cfg.Operators); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /operators", s.handleListOperators)
	mux.HandleFunc("POST /operators", s.handleDefineOperators)
	mux.HandleFunc("GET /operators/{name}", s.handleGetOperator)
	mux.HandleFunc("DELETE /operators/{name}", s.handleDeleteOperator)
	mux.HandleFunc("POST /operators/{name}/apply", s.handleApply)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// register builds every operator before replacing any, so a bad definition
// leaves the registry untouched.
func (s *Server) register(cfgs []operator.Config) error {
	built := make([]operator.Operator, 0, len(cfgs))
	for _, cfg := range cfgs {
		op, err := operator.New(cfg)
		if err != nil {
			return err
		}
		built = append(built, op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range built {
		s.operators[op.Name()] = op
	}
	return nil
}

func (s *Server) lookup(name string) (operator.Operator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operators[name]
	return op, ok
}

func (s *Server) handleListOperators(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cfgs := make([]operator.Config, 0, len(s.operators))
	for _, op := range s.operators {
		cfgs = append(cfgs, op.Config())
	}
	s.mu.RUnlock()

	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].Name < cfgs[j].Name })
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"operators": cfgs})
}

// Operator definition endpoint. Accepts HCL or JSON; driver settings in the
// body are ignored.
func (s *Server) handleDefineOperators(w http.ResponseWriter, r *http.Request) {
	contentType, err := hcl.DetectContentType(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	cfg, err := hcl.ParseContent(contentType, body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(cfg.Operators) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one operator is required")
		return
	}
	if err := s.register(cfg.Operators); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	names := make([]string, len(cfg.Operators))
	for i, op := range cfg.Operators {
		names[i] = op.Name
	}
	s.logger.Info("Registered operators", "names", names, "content_type", contentType)
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"registered": names})
}

func (s *Server) handleGetOperator(w http.ResponseWriter, r *http.Request) {
	op, ok := s.lookup(r.PathValue("name"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "operator not found")
		return
	}
	s.respondJSON(w, http.StatusOK, op.Config())
}

func (s *Server) handleDeleteOperator(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	s.mu.Lock()
	_, ok := s.operators[name]
	delete(s.operators, name)
	s.mu.Unlock()

	if !ok {
		s.respondError(w, http.StatusNotFound, "operator not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyResponse is the result of running an operator over posted rows.
type ApplyResponse struct {
	Operator    string                  `json:"operator"`
	RowsIn      int64                   `json:"rows_in"`
	RowsOut     int64                   `json:"rows_out"`
	Rows        []table.JSONRow         `json:"rows"`
	Failures    []ApplyFailure          `json:"failures,omitempty"`
	DeadLetters []json.RawMessage       `json:"dead_letters,omitempty"`
	Aggregates  []timeline.BinAggregate `json:"aggregates,omitempty"`
}

// ApplyFailure describes a row rejected under the skip policy.
type ApplyFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Apply endpoint. The body is a JSON array of row objects; the operator's
// start and end columns are RFC 3339 timestamps. Query parameters:
// policy overrides the failure policy, batch sets the rows per batch handed
// to the driver workers, aggregate (with optional column and percentile) adds
// per-bin aggregates of the output.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	op, ok := s.lookup(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, "operator not found")
		return
	}

	query := r.URL.Query()
	policy := s.driver.Policy
	if p := query.Get("policy"); p != "" {
		policy = engine.FailurePolicy(p)
	}
	policy, err := engine.ParseFailurePolicy(string(policy))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batchSize := defaultBatchSize
	if b := query.Get("batch"); b != "" {
		if batchSize, err = strconv.Atoi(b); err != nil || batchSize < 1 {
			s.respondError(w, http.StatusBadRequest, "invalid batch size")
			return
		}
	}

	var aggType timeline.AggregationType
	var percentile float64
	if a := query.Get("aggregate"); a != "" {
		if aggType, err = timeline.ParseAggregationType(a); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if p := query.Get("percentile"); p != "" {
			if percentile, err = strconv.ParseFloat(p, 64); err != nil {
				s.respondError(w, http.StatusBadRequest, "invalid percentile")
				return
			}
		}
	}

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	var rows []table.JSONRow
	if err := decoder.Decode(&rows); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(rows) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one row is required")
		return
	}

	cfg := op.Config()
	rec, err := table.RecordFromJSON(s.mem, rows, []string{cfg.StartColumn, cfg.EndColumn})
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer rec.Release()

	var deadLetters bytes.Buffer
	driverCfg := engine.Config{
		Workers:   s.driver.Workers,
		Policy:    policy,
		Allocator: s.mem,
		Metrics:   s.metrics,
		Logger:    s.logger,
	}
	if policy == engine.PolicyDeadLetter {
		driverCfg.DeadLetter = engine.NewJSONDeadLetter(&deadLetters)
	}
	d, err := engine.NewDriver(op, driverCfg)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("Applying operator", "operator", name, "rows", len(rows), "policy", policy, "batch", batchSize, "workers", s.driver.Workers)

	outs, report, err := d.ProcessRecord(r.Context(), rec, batchSize)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	defer func() {
		for _, out := range outs {
			out.Release()
		}
	}()

	resp := ApplyResponse{
		Operator: name,
		RowsIn:   report.RowsIn,
		RowsOut:  report.RowsOut,
		Rows:     []table.JSONRow{},
	}
	for _, out := range outs {
		batchRows, err := table.RecordToJSON(out)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Rows = append(resp.Rows, batchRows...)
	}
	if policy == engine.PolicySkip {
		for _, f := range report.Failures {
			resp.Failures = append(resp.Failures, ApplyFailure{Row: f.Batch*batchSize + f.Index, Reason: f.Reason(), Error: f.Err.Error()})
		}
	}
	for _, line := range bytes.Split(bytes.TrimSpace(deadLetters.Bytes()), []byte("\n")) {
		if len(line) > 0 {
			resp.DeadLetters = append(resp.DeadLetters, json.RawMessage(line))
		}
	}

	if aggType != "" {
		column := query.Get("column")
		if column == "" {
			column = defaultMeasure(op)
		}
		if resp.Aggregates, err = engine.Summarize(outs, op.Columns().Bin, column, aggType, percentile); err != nil {
			s.respondError(w, statusFor(err), err.Error())
			return
		}
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// defaultBatchSize is the number of input rows per driver batch.
const defaultBatchSize = 1024

func defaultMeasure(op operator.Operator) string {
	if op.Kind() == operator.KindInterpolate {
		return op.Columns().SplitDelta
	}
	return op.Columns().Value
}

// statusFor maps row and schema errors to 422 and anything else to 500.
func statusFor(err error) int {
	var (
		schemaErr *table.SchemaError
		typeErr   *timeline.TypeError
		domainErr *timeline.DomainError
	)
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &typeErr), errors.As(err, &domainErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	n := len(s.operators)
	s.mu.RUnlock()

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"operators": n,
		"time":      time.Now().Format(time.RFC3339),
	})
}

// Middleware for request logging
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"duration", time.Since(start),
			"user_agent", r.UserAgent(),
		)
	})
}

// Response helpers
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.logger.Warn("HTTP error response", "status", status, "message", message)
	s.respondJSON(w, status, map[string]string{"error": message})
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
