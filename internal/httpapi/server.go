package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/translationtower/internal/batch"
	"horse.fit/translationtower/internal/globaltime"
	"horse.fit/translationtower/internal/language"
	"horse.fit/translationtower/internal/logging"
	"horse.fit/translationtower/internal/model"
	"horse.fit/translationtower/internal/translation"
)

const maxRequestBytes = 32 << 20

// Translator is the coordinator surface the API drives.
type Translator interface {
	NewRequestID() string
	CreateJobs(requestID string, inputs []translation.Input) ([]*model.Job, error)
	TranslateJobs(ctx context.Context, jobs []*model.Job) ([]*model.Job, error)
	Languages(provider string) []language.Entry
}

// RouteLister reports the batch routes that have seen traffic.
type RouteLister interface {
	Routes() []batch.RouteKey
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	translator Translator
	routes     RouteLister
	logger     zerolog.Logger
	opts       Options
}

func NewServer(translator Translator, routes RouteLister, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	// Provider retries can hold a request for minutes; match the client timeout.
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 300 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	return &Server{
		translator: translator,
		routes:     routes,
		logger:     logger.With().Str("component", "httpapi").Logger(),
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

// Handler builds the echo instance with middleware and routes.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", echo.HeaderXRequestID},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			message := "http request"
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
				message = "http request failed"
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg(message)
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/languages", s.handleLanguages)
	api.POST("/translate", s.handleTranslate)
	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.translator == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("translation server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("translation server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	routes := []string{}
	if s.routes != nil {
		for _, key := range s.routes.Routes() {
			routes = append(routes, key.String())
		}
	}
	return success(c, map[string]any{
		"service": logging.ServiceName,
		"time":    globaltime.UTC(),
		"routes":  routes,
	})
}

func (s *Server) handleLanguages(c echo.Context) error {
	name := strings.ToLower(strings.TrimSpace(c.QueryParam("translator")))
	if name != "" && !knownTranslator(name) {
		return failValidation(c, map[string]string{
			"translator": fmt.Sprintf("must be one of %s", strings.Join(model.ProviderNames, ", ")),
		})
	}
	return success(c, map[string]any{
		"translator": name,
		"languages":  s.translator.Languages(name),
	})
}

func (s *Server) handleTranslate(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRequestBytes))
	if err != nil {
		return fail(c, http.StatusBadRequest, "Failed to read request body", nil)
	}

	req, fieldErrors, err := decodeTranslateRequest(raw)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	requestID := s.translator.NewRequestID()
	logger := s.logger.With().
		Str("translation_request_id", requestID).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Logger()
	logger.Info().Int("texts", len(req.Texts)).Msg("translation request received")

	jobs, err := s.translator.CreateJobs(requestID, req.Texts)
	if err != nil {
		var verr *translation.ValidationError
		if errors.As(err, &verr) {
			return failValidation(c, map[string]string{
				fmt.Sprintf("/texts/%d/%s", verr.Index, verr.Field): verr.Err.Error(),
			})
		}
		logger.Error().Err(err).Msg("create translation jobs failed")
		return internalError(c, "Failed to create translation jobs")
	}

	jobs, err = s.translator.TranslateJobs(c.Request().Context(), jobs)
	if err != nil {
		var interrupted *translation.InterruptedError
		if errors.As(err, &interrupted) {
			if errors.Is(err, context.DeadlineExceeded) {
				return errorWithStatus(c, http.StatusGatewayTimeout, "Translation timed out")
			}
			return errorWithStatus(c, http.StatusServiceUnavailable, "Translation interrupted")
		}
		logger.Error().Err(err).Msg("translate jobs failed")
		return internalError(c, "Translation failed")
	}

	if message := translation.FirstError(jobs); message != "" {
		logger.Warn().Str("error", message).Msg("translation request finished with provider errors")
		return errorWithStatus(c, http.StatusBadGateway, message)
	}

	return success(c, translation.Response{Translations: translation.Results(jobs)})
}

func knownTranslator(name string) bool {
	for _, known := range model.ProviderNames {
		if name == known {
			return true
		}
	}
	return false
}
