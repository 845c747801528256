package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/w-h-a/docqa/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type httpServer struct {
	options server.Options
	handler http.Handler
	srv     *http.Server
	addr    net.Addr
	mtx     sync.RWMutex
}

func (s *httpServer) Options() server.Options {
	return s.options
}

func (s *httpServer) Handle(h http.Handler) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if ms, ok := MiddlewareFrom(s.options.Context); ok {
		for i := len(ms) - 1; i >= 0; i-- {
			h = ms[i](h)
		}
	}

	s.handler = otelhttp.NewHandler(h, "docqa")
}

// Start binds the listener and serves in the background.
func (s *httpServer) Start() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.handler == nil {
		return errors.New("no handler registered")
	}

	if s.srv != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.options.Address)
	if err != nil {
		return err
	}

	s.addr = ln.Addr()
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(context.Background(), "http server stopped", "error", err)
		}
	}()

	slog.InfoContext(s.options.Context, "http server listening", "address", s.addr.String())

	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.options.ShutdownTimeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	s.srv = nil

	return err
}

// Addr is the bound address once Start returned.
func (s *httpServer) Addr() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

func NewServer(opts ...server.Option) server.Server {
	options := server.NewOptions(opts...)

	return &httpServer{
		options: options,
	}
}
