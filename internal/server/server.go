// Package server exposes the memoized metrics table over HTTP as JSON and
// as CSV or XLSX downloads.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"golang-branch-analytics/internal/analytics"
	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/internal/reporter"
	"golang-branch-analytics/pkg/errors"
	"golang-branch-analytics/pkg/logger"
)

// MetricsService provides the current metrics result
type MetricsService interface {
	Get(ctx context.Context) (*analytics.Result, time.Time, error)
	Invalidate()
}

// Config holds the HTTP server settings
type Config struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	Locale          models.Locale `json:"locale" mapstructure:"locale"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns the default server settings
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		Locale:          models.LocaleKorean,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Validate validates the server settings
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if !c.Locale.IsValid() {
		return fmt.Errorf("invalid locale: %s", c.Locale)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// Server serves metrics downloads
type Server struct {
	service MetricsService
	config  *Config
	logger  logger.Logger
	now     func() time.Time
	mux     *http.ServeMux
}

// New creates a server backed by service
func New(service MetricsService, config *Config) (*Server, error) {
	if service == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "service", nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "serve", config.Addr, err)
	}

	s := &Server{
		service: service,
		config:  config,
		logger:  logger.GetGlobalLogger().WithComponent("server"),
		now:     time.Now,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics(reporter.FormatJSON))
	s.mux.HandleFunc("GET /metrics.json", s.handleMetrics(reporter.FormatJSON))
	s.mux.HandleFunc("GET /metrics.csv", s.handleMetrics(reporter.FormatCSV))
	s.mux.HandleFunc("GET /metrics.xlsx", s.handleMetrics(reporter.FormatXLSX))
	s.mux.HandleFunc("POST /refresh", s.handleRefresh)
	return s, nil
}

// Handler returns the root handler with request logging applied
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.config.Addr).Info("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.InternalError(errors.CodeUnexpectedError, "listen", err).
				WithSuggestion("Check that the address is free")
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "shutdown", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics renders the cached result in format. The body is rendered
// into a buffer first so a failed export never sends a partial file.
func (s *Server) handleMetrics(format reporter.OutputFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, expires, err := s.service.Get(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}

		cfg := reporter.DefaultReportConfig()
		cfg.Format = format
		cfg.Locale = s.config.Locale
		cfg.UseColors = false
		if locale := models.Locale(r.URL.Query().Get("locale")); locale != "" {
			if !locale.IsValid() {
				s.writeError(w, errors.ValidationError(errors.CodeOutOfRange, "locale", string(locale), nil).
					WithSuggestion("Use locale=ko or locale=en"))
				return
			}
			cfg.Locale = locale
		}

		generator, err := reporter.NewReportGenerator(cfg)
		if err != nil {
			s.writeError(w, err)
			return
		}

		var body bytes.Buffer
		if err := generator.GenerateReport(result, &body); err != nil {
			s.writeError(w, errors.ExportError(errors.CodeExportFailed, string(format), err))
			return
		}

		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("X-Run-ID", result.RunID)
		if !expires.IsZero() {
			w.Header().Set("Expires", expires.UTC().Format(http.TimeFormat))
		}
		if format != reporter.FormatJSON {
			w.Header().Set("Content-Disposition",
				fmt.Sprintf(`attachment; filename="%s"`, reporter.ExportFilename(format, s.now())))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := body.WriteTo(w); err != nil {
			s.logger.WithError(err).Warn("Failed to write response body")
		}
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.service.Invalidate()
	result, expires, err := s.service.Get(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.WithRunID(result.RunID).Info("Metrics refreshed")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      result.RunID,
		"computed_at": result.ComputedAt,
		"expires_at":  expires,
		"customers":   result.Stats.Customers,
	})
}

type errorBody struct {
	Error      string `json:"error"`
	Category   string `json:"category,omitempty"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// writeError maps err onto an HTTP status and a JSON body
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	if analyticsErr, ok := errors.AsAnalyticsError(err); ok {
		body.Error = analyticsErr.Message
		body.Category = string(analyticsErr.Category)
		body.Code = string(analyticsErr.Code)
		body.Suggestion = analyticsErr.Suggestion
		status = analyticsErr.HTTPStatus()
	}

	s.logger.WithError(err).WithField("status", status).Error("Request failed")
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// logRequests tags each request with an ID and logs its outcome
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.WithFields(logger.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start),
		}).Info("Request handled")
	})
}
