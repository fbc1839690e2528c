// Package rest exposes the routine engine over HTTP: submit a routine
// for execution, inspect its Mermaid/ASCII visualization, register a
// routine so a later webhook can trigger it, and fire that webhook.
package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/credential"
	"github.com/smilemakc/mbflow/internal/domain"
	"github.com/smilemakc/mbflow/internal/domain/yamlimport"
	"github.com/smilemakc/mbflow/internal/infrastructure/tracing"
	"github.com/smilemakc/mbflow/internal/plugin"
	"github.com/smilemakc/mbflow/internal/sink"
	"github.com/smilemakc/mbflow/internal/trigger"
	"github.com/smilemakc/mbflow/pkg/routine"
	"github.com/smilemakc/mbflow/pkg/visualize"
)

// Server is the HTTP surface over pkg/routine.Runner.
type Server struct {
	runner      *routine.Runner
	sink        sink.Sink
	tracer      *tracing.Tracer
	mux         *http.ServeMux
	handler     http.Handler
	logger      zerolog.Logger
	manual      *trigger.ManualTrigger
	httpTrigger *trigger.HTTPTrigger
	maxConc     int
	maxRunMs    time.Duration

	mu       sync.RWMutex
	routines map[string]*domain.Routine
}

// Config tunes the scheduler parameters the Server passes into every
// Execute call, plus the HTTP middleware stack in front of it.
type Config struct {
	MaxConcurrency   int
	MaxExecutionTime time.Duration

	// APIKeys, when non-empty, requires every request (except OPTIONS)
	// to present one of them via X-API-Key or a bearer token.
	APIKeys []string

	RateLimit       int // requests per RateLimitWindow per remote address, 0 disables
	RateLimitWindow time.Duration
}

// NewServer builds a Server dispatching through registry and
// credentials, recording execution state in durableSink.
func NewServer(registry *plugin.Registry, credentials credential.Loader, durableSink sink.Sink, logger zerolog.Logger, cfg Config) *Server {
	if durableSink == nil {
		durableSink = sink.Noop{}
	}
	s := &Server{
		runner:      routine.NewRunner(registry, credentials),
		sink:        durableSink,
		tracer:      tracing.New(nil),
		mux:         http.NewServeMux(),
		logger:      logger,
		manual:      trigger.NewManual(),
		httpTrigger: trigger.NewHTTPTriggerBuilder().Method(http.MethodPost).Build(),
		maxConc:     cfg.MaxConcurrency,
		maxRunMs:    cfg.MaxExecutionTime,
		routines:    make(map[string]*domain.Routine),
	}
	s.routes()
	s.handler = s.middlewareChain(cfg)
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/v1/routines", s.handleRegister)
	s.mux.HandleFunc("POST /api/v1/routines/execute", s.handleExecute)
	s.mux.HandleFunc("POST /api/v1/routines/visualize", s.handleVisualize)
	s.mux.HandleFunc("POST /api/v1/routines/{routineID}/trigger", s.handleWebhookTrigger)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// middlewareChain wraps the mux the way the teacher layers its own REST
// server: recovery outermost, then request logging, then CORS, then an
// optional rate limiter and API key check, innermost the mux itself.
func (s *Server) middlewareChain(cfg Config) http.Handler {
	var h http.Handler = s.mux

	if len(cfg.APIKeys) > 0 {
		h = newAuthMiddleware(cfg.APIKeys).middleware(h)
	}
	if cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = newRateLimiter(cfg.RateLimit, window).middleware(h)
	}
	h = corsMiddleware(h)
	h = loggingMiddleware(s.logger, h)
	h = recoveryMiddleware(s.logger, h)
	return h
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// executeRequest is the body of POST /routines/execute and
// POST /routines: a YAML routine definition plus (for execute) the
// trigger payload to run it with.
type executeRequest struct {
	Definition  string         `json:"definition"`
	TriggerData map[string]any `json:"trigger_data"`
	Variables   map[string]any `json:"variables"`
}

func (s *Server) decodeRoutine(r *http.Request, body []byte) (*domain.Routine, executeRequest, error) {
	var req executeRequest
	contentType := r.Header.Get("Content-Type")
	if contentType == "application/x-yaml" || contentType == "text/yaml" {
		rt, err := yamlimport.Load(body)
		return rt, req, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, req, err
	}
	rt, err := yamlimport.Load([]byte(req.Definition))
	return rt, req, err
}

// handleRegister stores a routine definition so a webhook can trigger
// it later by id, without resubmitting the full definition on every
// call.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	rt, _, err := s.decodeRoutine(r, body)
	if err != nil {
		http.Error(w, "invalid routine definition: "+err.Error(), http.StatusBadRequest)
		return
	}
	if rt.ID == "" {
		http.Error(w, "routine definition must declare an id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.routines[rt.ID] = rt
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": rt.ID, "status": "registered"})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	rt, req, err := s.decodeRoutine(r, body)
	if err != nil {
		http.Error(w, "invalid routine definition: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx, payload := s.manual.Fire(r.Context(), req.TriggerData)
	runID := uuid.New().String()
	ctx, endSpan := s.tracer.StartExecution(ctx, rt.ID, runID)
	nodeSpans := s.tracer.NewNodeSpans(ctx)

	result, err := s.runner.Execute(ctx, rt, payload, &routine.Callbacks{
		OnNodeStart:    nodeSpans.Start,
		OnNodeComplete: nodeSpans.Complete,
		OnNodeError:    nodeSpans.Error,
	}, routine.Options{
		WorkflowID:       rt.ID,
		RunID:            runID,
		TriggerType:      "manual",
		Variables:        req.Variables,
		MaxConcurrency:   s.maxConc,
		MaxExecutionTime: s.maxRunMs,
		Sink:             s.sink,
		Logger:           &s.logger,
	})
	status := "completed"
	if err != nil {
		status = "failed"
	}
	endSpan(status)
	if err != nil {
		s.logger.Error().Err(err).Str("routine_id", rt.ID).Msg("routine execution failed")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	rt, err := yamlimport.Load(body)
	if err != nil {
		http.Error(w, "invalid routine definition: "+err.Error(), http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("format")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if format == "ascii" {
		_, _ = w.Write([]byte(visualize.ASCII(rt)))
		return
	}
	_, _ = w.Write([]byte(visualize.Mermaid(rt)))
}

// handleWebhookTrigger fires a previously registered routine. It
// delegates method checking and payload decoding to trigger.HTTPTrigger
// so the webhook surface is built on the same Trigger abstraction a
// plugin-declared HTTP trigger would use, rather than duplicating that
// logic here.
func (s *Server) handleWebhookTrigger(w http.ResponseWriter, r *http.Request) {
	routineID := r.PathValue("routineID")

	s.mu.RLock()
	rt, ok := s.routines[routineID]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "routine not registered: "+routineID, http.StatusNotFound)
		return
	}

	runID := uuid.New().String()

	handler := s.httpTrigger.Handler(func(ctx context.Context, payload map[string]any) (int, any) {
		ctx, endSpan := s.tracer.StartExecution(ctx, rt.ID, runID)
		nodeSpans := s.tracer.NewNodeSpans(ctx)

		result, err := s.runner.Execute(ctx, rt, payload, &routine.Callbacks{
			OnNodeStart:    nodeSpans.Start,
			OnNodeComplete: nodeSpans.Complete,
			OnNodeError:    nodeSpans.Error,
		}, routine.Options{
			WorkflowID:       rt.ID,
			RunID:            runID,
			TriggerType:      "webhook",
			MaxConcurrency:   s.maxConc,
			MaxExecutionTime: s.maxRunMs,
			Sink:             s.sink,
			Logger:           &s.logger,
		})
		status := "completed"
		if err != nil {
			status = "failed"
		}
		endSpan(status)
		if err != nil {
			s.logger.Error().Err(err).Str("routine_id", rt.ID).Msg("webhook-triggered execution failed")
			return http.StatusUnprocessableEntity, map[string]string{"error": err.Error()}
		}
		return http.StatusOK, result
	})
	handler(w, r)
}
