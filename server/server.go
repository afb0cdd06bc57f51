// Package server wires the RPC handler onto its transports: an echo HTTP
// server and a newline-delimited stdio loop.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/server/internal/observability"
	"github.com/hrygo/engram/server/middleware"
	"github.com/hrygo/engram/server/router/rpc"
	"github.com/hrygo/engram/server/service/memory"
	"github.com/hrygo/engram/server/service/reorganizer"
	"github.com/hrygo/engram/store"
)

const (
	// rateLimitPerSecond and rateLimitBurst bound requests per client IP.
	rateLimitPerSecond = 20
	rateLimitBurst     = 40

	shutdownTimeout = 10 * time.Second
)

// Server hosts the RPC front end over HTTP.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	handler    *rpc.Handler
	logger     *slog.Logger
}

// NewServer creates the HTTP server and mounts the RPC endpoint, the
// health endpoint, auth and rate limiting.
func NewServer(_ context.Context, profile *profile.Profile, st *store.Store, memoryService *memory.Service, reorganizerService *reorganizer.Service, logger *slog.Logger) (*Server, error) {
	s := &Server{
		Profile: profile,
		Store:   st,
		handler: rpc.NewHandler(profile, memoryService, reorganizerService, logger),
		logger:  logger,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomw.Recover())
	echoServer.Use(echomw.CORS())
	s.echoServer = echoServer

	echoServer.GET("/healthz", s.healthzHandler)

	rpcGroup := echoServer.Group("/rpc")
	rpcGroup.Use(echomw.BodyLimit("4M"))
	rpcGroup.Use(middleware.BearerAuth(profile.AuthToken))
	rpcGroup.Use(middleware.RateLimitByIP(middleware.NewRateLimiter(rateLimitPerSecond, rateLimitBurst)))
	rpcGroup.POST("", s.rpcHandler)

	return s, nil
}

func (s *Server) rpcHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	response := s.handler.Handle(c.Request().Context(), body)
	if response == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSONBlob(http.StatusOK, response)
}

func (s *Server) healthzHandler(c echo.Context) error {
	metrics := observability.GlobalMetrics()
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.Profile.Version,
		"requestsTotal":  metrics.GetRequestTotal(),
		"requestsFailed": metrics.GetRequestFailed(),
		"methods":        metrics.Snapshot(),
	})
}

// Start begins serving in the background. Errors other than a clean close
// are logged, not returned; the caller watches ctx for lifetime.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to start echo server", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("server started", slog.String("address", address), slog.String("driver", s.Profile.Driver))
	return nil
}

// Shutdown stops the HTTP server gracefully and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	if err := s.Store.Close(); err != nil {
		s.logger.Error("failed to close store", slog.String("error", err.Error()))
	}
	s.logger.Info("engram stopped properly")
}
