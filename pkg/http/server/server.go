// Package httpserver runs an http.Server in the background with graceful shutdown.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 0 // file and archive downloads can be large
	defaultAddr              = ":8080"
	defaultShutdownTimeout   = 3 * time.Second
)

// Server wraps http.Server.
type Server struct {
	server          *http.Server
	errCh           chan error
	shutdownTimeout time.Duration
}

// Options configures the server; zero values take defaults.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// New creates the server and starts listening in the background.
func New(handler http.Handler, opt Options) *Server {
	if opt.Addr == "" {
		opt.Addr = defaultAddr
	}

	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = defaultReadTimeout
	}

	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = defaultWriteTimeout
	}

	if opt.ShutdownTimeout == 0 {
		opt.ShutdownTimeout = defaultShutdownTimeout
	}

	srv := &Server{
		server: &http.Server{
			Handler:           handler,
			Addr:              opt.Addr,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			ReadTimeout:       opt.ReadTimeout,
			WriteTimeout:      opt.WriteTimeout,
		},
		errCh:           make(chan error, 1),
		shutdownTimeout: opt.ShutdownTimeout,
	}

	go srv.start()

	return srv
}

func (s *Server) start() {
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errCh <- err
	}

	close(s.errCh)
}

// Notify returns a channel that receives a listen error, if any, and is closed when the server stops.
func (s *Server) Notify() <-chan error {
	return s.errCh
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Shutdown stops the server, waiting up to the shutdown timeout for in-flight requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}
