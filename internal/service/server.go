package service

import (
	"context"
	"errors"
	"fmt"
	"game-devserver/internal/config"
	"game-devserver/internal/logger"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrNoFreePort     = errors.New("no free port")
	ErrAlreadyStarted = errors.New("server already started")
	ErrNotStarted     = errors.New("server not started")
)

// Opener launches a browser at url
type Opener func(url string) error

// Server binds a port from the configured candidates and serves handler on it
type Server struct {
	cfg     *config.Config
	handler http.Handler
	opener  Opener
	log     logrus.FieldLogger

	listener net.Listener
	srv      *http.Server
	port     int
}

// NewServer creates a server. opener may be nil; it is only used when cfg.OpenBrowser is set.
func NewServer(cfg *config.Config, handler http.Handler, opener Opener, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		opener:  opener,
		log:     log,
	}
}

// Start binds the requested port, falling back through the candidate list
// when it is taken. It returns the port actually bound.
func (s *Server) Start() (int, error) {
	if s.listener != nil {
		return 0, ErrAlreadyStarted
	}

	candidates := s.cfg.Candidates()
	var lastErr error
	for _, port := range candidates {
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.log.WithFields(logrus.Fields{"port": port, "error": err}).Debug("port unavailable")
			lastErr = err
			continue
		}

		s.listener = ln
		s.port = ln.Addr().(*net.TCPAddr).Port
		s.srv = &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		if port != s.cfg.Port {
			s.log.WithFields(logrus.Fields{"requested": s.cfg.Port, "port": s.port}).Warn("requested port busy, using fallback")
		}

		s.postBind()
		return s.port, nil
	}

	return 0, fmt.Errorf("%w: tried %v: %w", ErrNoFreePort, candidates, lastErr)
}

// postBind opens the browser without holding up the caller
func (s *Server) postBind() {
	if !s.cfg.OpenBrowser || s.opener == nil {
		return
	}

	url := s.URL()
	go func() {
		if err := s.opener(url); err != nil {
			s.log.WithFields(logrus.Fields{"url": url, "error": err}).Debug("failed to open browser")
		}
	}()
}

// Port returns the bound port, 0 before Start succeeds
func (s *Server) Port() int {
	return s.port
}

// URL is the base address announced to the operator
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

// Serve blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve() error {
	if s.srv == nil {
		return ErrNotStarted
	}

	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown closes the listener and waits for in-flight requests, bounded by
// the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	err := s.srv.Shutdown(ctx)
	// Serve may never have run; the listener is only tracked by it once it does.
	s.listener.Close()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
