// Package httpapi provides the HTTP API for vaultd.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/pipeline"
)

// Server provides HTTP endpoints over the pipeline service.
type Server struct {
	echo    *echo.Echo
	service *pipeline.Service
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(service *pipeline.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("pipeline service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9273,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/classify", s.handleClassify)
	v1.POST("/process", s.handleProcess)
	v1.POST("/feedback", s.handleFeedback)
	v1.GET("/notes/:id/suggestions", s.handleNoteSuggestions)
	v1.POST("/suggestions", s.handleSuggestions)
}

// ClassifyRequest is the request body for POST /api/v1/classify and
// /api/v1/process.
type ClassifyRequest struct {
	Text           string   `json:"text"`
	Source         string   `json:"source,omitempty"`
	SessionDomains []string `json:"session_domains,omitempty"`
}

// ClassifyResponse is the response body for POST /api/v1/classify.
type ClassifyResponse struct {
	ContentType   string  `json:"content_type"`
	PrimaryDomain string  `json:"primary_domain,omitempty"`
	Title         string  `json:"title"`
	Confidence    float64 `json:"confidence"`
	Destination   string  `json:"destination"`
	Action        string  `json:"action"`
	Reason        string  `json:"reason"`
	Preview       string  `json:"preview,omitempty"`
}

// SuggestRequest is the request body for POST /api/v1/suggestions. Seed
// is a note ID or free text.
type SuggestRequest struct {
	Seed          string  `json:"note_or_text"`
	Limit         int     `json:"limit,omitempty"`
	MinSimilarity float64 `json:"min_similarity,omitempty"`
}

// FeedbackRequest is the request body for POST /api/v1/feedback.
type FeedbackRequest struct {
	NoteID         string `json:"note_id"`
	ActionType     string `json:"action_type"`
	OriginalValue  string `json:"original_value,omitempty"`
	CorrectedValue string `json:"corrected_value,omitempty"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleClassify(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid classify request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	result, decision, err := s.service.Classify(c.Request().Context(), req.Text, pipeline.Options{
		Source:         knowledge.SourceType(req.Source),
		SessionDomains: req.SessionDomains,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	return c.JSON(http.StatusOK, ClassifyResponse{
		ContentType:   string(result.ContentType),
		PrimaryDomain: result.PrimaryDomain,
		Title:         result.Title,
		Confidence:    result.Confidence,
		Destination:   result.Destination,
		Action:        string(decision.Action),
		Reason:        decision.Reason,
		Preview:       decision.Preview,
	})
}

func (s *Server) handleProcess(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid process request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	outcome, err := s.service.Process(c.Request().Context(), req.Text, pipeline.Options{
		Source:         knowledge.SourceType(req.Source),
		SessionDomains: req.SessionDomains,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.NoteID == "" || req.ActionType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "note_id and action_type fields are required")
	}

	pattern, err := s.service.Feedback(c.Request().Context(), req.NoteID, knowledge.ActionType(req.ActionType), req.OriginalValue, req.CorrectedValue)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, pattern)
}

func (s *Server) handleNoteSuggestions(c echo.Context) error {
	noteID := c.Param("id")
	if noteID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "note id is required")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	minSimilarity, _ := strconv.ParseFloat(c.QueryParam("min_similarity"), 64)

	suggestions, err := s.service.SuggestConnections(c.Request().Context(), noteID, limit, minSimilarity)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, suggestions)
}

func (s *Server) handleSuggestions(c echo.Context) error {
	var req SuggestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid suggestions request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Seed == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "note_or_text field is required")
	}

	suggestions, err := s.service.SuggestConnections(c.Request().Context(), req.Seed, req.Limit, req.MinSimilarity)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, suggestions)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
