// Package server exposes the policy engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"licensemedic/internal/artifact"
	"licensemedic/internal/baseline"
	"licensemedic/internal/engine"
	"licensemedic/internal/metrics"
	"licensemedic/internal/rules"
	"licensemedic/internal/violation"
)

// MaxBodyBytes bounds the size of an evaluation request.
const MaxBodyBytes = 10 << 20

const requestIDHeader = "X-Request-ID"

type Server struct {
	r        *gin.Engine
	engine   *engine.Engine
	metrics  *metrics.Collector
	baseline baseline.Set
	logger   *slog.Logger
}

type Option func(*Server)

// WithMetrics serves the collector's registry on /metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithBaseline marks evaluation results whose hash is in set as suppressed.
func WithBaseline(set baseline.Set) Option {
	return func(s *Server) { s.baseline = set }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a server around eng. The engine and its RuleSet are shared by
// all requests.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine: eng,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.r = r
	s.routes()
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "rules", s.engine.RuleSet().Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.r.Group("/v1")
	{
		v1.GET("/rules", s.handleListRules)
		v1.GET("/rules/:id", s.handleGetRule)
		v1.POST("/evaluate", s.handleEvaluate)
	}
}

// requestLogger tags each request with an id and logs it once it completes.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}

// RuleResponse describes one rule of the loaded RuleSet.
type RuleResponse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Severity    violation.Severity `json:"severity"`
	Kind        rules.Kind         `json:"kind"`
	Dedup       rules.DedupMode    `json:"dedup"`
	Message     string             `json:"message"`
}

type RulesResponse struct {
	Ruleset rules.Provenance `json:"ruleset"`
	Rules   []RuleResponse   `json:"rules"`
}

func ruleResponse(r rules.Rule) RuleResponse {
	return RuleResponse{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Severity:    r.Severity,
		Kind:        r.Condition.Kind(),
		Dedup:       r.Dedup,
		Message:     r.Message,
	}
}

func (s *Server) handleListRules(c *gin.Context) {
	rs := s.engine.RuleSet()
	resp := RulesResponse{Ruleset: rs.Provenance(), Rules: make([]RuleResponse, 0, rs.Len())}
	for _, r := range rs.Rules() {
		resp.Rules = append(resp.Rules, ruleResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetRule(c *gin.Context) {
	r, ok := s.engine.RuleSet().Rule(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "RULE_NOT_FOUND", fmt.Sprintf("rule not found: %s", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, ruleResponse(r))
}

// EvaluateResponse is the result of POST /v1/evaluate. Suppressed is only
// populated when the server was started with a baseline.
type EvaluateResponse struct {
	Violations []violation.PolicyViolation `json:"violations"`
	Suppressed []violation.PolicyViolation `json:"suppressed,omitempty"`
	Warnings   []engine.EvaluationWarning  `json:"warnings"`
	Stats      engine.Stats                `json:"stats"`
}

func (s *Server) handleEvaluate(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	arts, err := artifact.Decode(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", fmt.Sprintf("request body exceeds %d bytes", MaxBodyBytes))
			return
		}
		writeError(c, http.StatusBadRequest, "INVALID_DOCUMENT", err.Error())
		return
	}

	res := s.engine.EvaluateDetailed(arts)
	resp := EvaluateResponse{
		Violations: res.Violations,
		Warnings:   res.Warnings,
		Stats:      res.Stats,
	}
	if s.baseline != nil {
		resp.Violations, resp.Suppressed = s.baseline.Split(res.Violations)
	}
	if resp.Violations == nil {
		resp.Violations = []violation.PolicyViolation{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []engine.EvaluationWarning{}
	}
	c.JSON(http.StatusOK, resp)
}
