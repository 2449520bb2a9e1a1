// Package httpapi implements the thin HTTP surface: routing, request
// validation, and SSE framing on top of internal/gateway, using
// net/http.ServeMux's method-pattern routing and writeJSON/auth idioms.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/escalona/flint/internal/channel"
	"github.com/escalona/flint/internal/config"
	"github.com/escalona/flint/internal/gateway"
	"golang.org/x/time/rate"
)

// Server is the HTTP Surface: a thin routing layer over the Gateway
// Engine and the channel adapter registry.
type Server struct {
	Engine      *gateway.Engine
	Channels    *channel.Registry
	Settings    *config.Settings
	BearerToken string

	limiter *rate.Limiter
	mux     *http.ServeMux
}

// New builds a Server and registers its routes.
func New(engine *gateway.Engine, channels *channel.Registry, settings *config.Settings) *Server {
	s := &Server{
		Engine:      engine,
		Channels:    channels,
		Settings:    settings,
		BearerToken: settings.BearerToken,
		limiter:     newLimiter(20, 40),
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server on settings.Port and blocks until
// ctx is canceled, then shuts down gracefully via the standard
// signal->context->http.Server.Shutdown idiom.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         portAddr(s.Settings.Port),
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE responses may run long
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func portAddr(port int) string {
	if port == 0 {
		port = 8788
	}
	return ":" + strconv.Itoa(port)
}
