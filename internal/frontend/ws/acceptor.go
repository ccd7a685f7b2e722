// Package ws accepts websocket clients and hands each connection to a
// SessionHandler.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/observability"
)

// SessionHandler processes one connected client until it disconnects.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// shutdownTimeout bounds how long Stop waits for the HTTP server to drain.
const shutdownTimeout = 5 * time.Second

// Acceptor serves websocket upgrades on the configured path plus a health
// endpoint and any extra handlers registered with Handle.
type Acceptor struct {
	cfg      config.ServerConfig
	handler  SessionHandler
	logger   *zap.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	running  bool
	stopped  bool
	conns    map[*Conn]struct{}
	wg       sync.WaitGroup
	quit     chan struct{}
}

// NewAcceptor creates a websocket acceptor.
//
// Precondition: cfg.Path must be non-empty; handler and logger must be non-nil. metrics may be nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, handler SessionHandler, logger *zap.Logger, metrics *observability.Metrics) *Acceptor {
	a := &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		metrics: metrics,
		mux:     http.NewServeMux(),
		conns:   make(map[*Conn]struct{}),
		quit:    make(chan struct{}),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     a.checkOrigin,
	}
	a.mux.Handle(cfg.Path, http.HandlerFunc(a.serveWS))
	a.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return a
}

// Handle registers an additional HTTP handler, such as a metrics endpoint.
//
// Precondition: must be called before ListenAndServe.
func (a *Acceptor) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// ServeHTTP dispatches to the acceptor's routes.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// checkOrigin allows requests without an Origin header and, when no origins
// are configured, every origin.
func (a *Acceptor) checkOrigin(r *http.Request) bool {
	if len(a.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range a.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ListenAndServe starts the HTTP listener and serves until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	server := &http.Server{
		Handler:           a.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		listener.Close()
		return nil
	}
	a.listener = listener
	a.server = server
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// serveWS upgrades the request and runs the session handler on the result.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	raw, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	conn := NewConn(raw, a.cfg)
	a.track(conn)
	defer a.untrack(conn)
	defer conn.Close()

	start := time.Now()
	a.logger.Info("client connected",
		zap.String("remote_addr", conn.RemoteAddr()),
		zap.String("conn", conn.ID()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel context when quit signal received
	go func() {
		select {
		case <-a.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.handler.HandleSession(ctx, conn); err != nil {
		a.logger.Debug("session ended",
			zap.String("conn", conn.ID()),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	} else {
		a.logger.Info("session ended cleanly",
			zap.String("conn", conn.ID()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// track records c for Stop. A connection that arrives after Stop has taken its
// snapshot is closed immediately.
func (a *Acceptor) track(c *Conn) {
	a.mu.Lock()
	a.conns[c] = struct{}{}
	stopped := a.stopped
	a.mu.Unlock()
	a.metrics.ConnOpened()
	if stopped {
		_ = c.Close()
	}
}

func (a *Acceptor) untrack(c *Conn) {
	a.mu.Lock()
	delete(a.conns, c)
	a.mu.Unlock()
	a.metrics.ConnClosed()
}

// Stop closes the listener and every open connection, then waits for all
// session handlers to return.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.running = false
	close(a.quit)
	server := a.server
	conns := make([]*Conn, 0, len(a.conns))
	for c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown", zap.Error(err))
		}
		cancel()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
