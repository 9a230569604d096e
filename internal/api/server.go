// Package api exposes the LAN-local control surface for the scan
// daemon: scanner start/stop/status, one-shot analysis, recent
// detections and the species catalog. The server is unauthenticated by
// design and must only be bound to a trusted interface; the default
// listen address is loopback.
package api

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/palayguard/palayguard-go/internal/analysis/processor"
	"github.com/palayguard/palayguard-go/internal/analysis/scanner"
	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/datastore"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/logging"
)

// Package-level logger specific to the control API
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "api.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "api", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize api file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "api")
		closeLogger = func() error { return nil }
	}
}

// ScanController is the scanner surface the API drives. Satisfied by
// *scanner.Scanner.
type ScanController interface {
	Start(ctx context.Context) error
	Stop()
	Status() scanner.Status
	RunOnceFrom(ctx context.Context, source frame.Source) (*processor.DetectionEvent, error)
}

// Server is the echo-based control API.
type Server struct {
	Echo     *echo.Echo
	Settings *conf.Settings
	Scanner  ScanController
	DS       datastore.Interface
	Catalog  *catalog.Catalog
}

// New builds the control API server. DS may be nil when no persistence
// backend is enabled; the detection queries then return 503.
func New(settings *conf.Settings, scn ScanController, ds datastore.Interface, cat *catalog.Catalog) *Server {
	s := &Server{
		Echo:     echo.New(),
		Settings: settings,
		Scanner:  scn,
		DS:       ds,
		Catalog:  cat,
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(s.requestLogger())

	s.routes()
	return s
}

// routes registers every endpoint of the control surface.
func (s *Server) routes() {
	s.Echo.GET("/healthz", s.handleHealthz)

	v1 := s.Echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/scan/start", s.handleScanStart)
	v1.POST("/scan/stop", s.handleScanStop)
	v1.POST("/analyze", s.handleAnalyze)
	v1.GET("/detections", s.handleDetections)
	v1.GET("/species", s.handleSpeciesList)
	v1.GET("/species/:label", s.handleSpeciesGet)
}

// requestLogger bridges echo request logging onto the package slog
// logger.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(c.Request().Context(), level, "http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.Any("error", v.Error))
			return nil
		},
	})
}

// Start serves the API on the configured listen address in a
// background goroutine.
func (s *Server) Start() {
	listen := s.Settings.Realtime.Dashboard.Listen
	logger.Info("Control API listening", "address", listen)

	go func() {
		if err := s.Echo.Start(listen); err != nil && err != http.ErrServerClosed {
			logger.Error("Control API server stopped", "error", err)
		}
	}()
}

// Shutdown drains the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return s.Echo.Shutdown(ctx)
}
