// Package server assembles the room hub, the upload store and the HTTP surface
// into one Server with a coordinated shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/minichat/internal/room"
	"github.com/Tyrowin/minichat/internal/upload"
)

// Server owns the chat room and everything that feeds it.
type Server struct {
	cfg      Config
	hub      *room.Hub
	store    *upload.Store
	bridge   *upload.Bridge
	origins  originPolicy
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	closing bool

	// pumps tracks every read and write pump.
	pumps sync.WaitGroup
}

// New builds a Server from cfg. The upload directory is created if missing.
func New(cfg *Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)

	store, err := upload.NewStore(upload.Config{
		Dir:      sanitized.UploadDir,
		MaxBytes: sanitized.MaxUploadBytes,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create upload store: %w", err)
	}

	opts := room.DefaultOptions()
	opts.HistoryLimit = sanitized.HistoryLimit
	opts.ReplayLimit = sanitized.ReplayLimit
	opts.SendQueueSize = sanitized.SendQueueSize
	hub := room.NewHub(opts, logger)

	s := &Server{
		cfg:     sanitized,
		hub:     hub,
		store:   store,
		bridge:  upload.NewBridge(hub, logger),
		origins: newOriginPolicy(sanitized.AllowedOrigins, logger),
		logger:  logger.Named("server"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Hub returns the room hub.
func (s *Server) Hub() *room.Hub {
	return s.hub
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Close shuts the hub down and waits for every pump to exit or ctx to end.
// Stop the HTTP listener first so no new sockets are upgraded.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.hub.Shutdown()

	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all client connections closed")
		return nil
	case <-ctx.Done():
		s.logger.Warn("client connections still open at shutdown deadline", zap.Int("connections", s.hub.ConnectionCount()))
		return fmt.Errorf("wait for client connections: %w", ctx.Err())
	}
}

// startPumps runs both pumps for c unless the server is closing.
func (s *Server) startPumps(c *Client, joinName *string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}

	s.pumps.Add(2)
	go func() {
		defer s.pumps.Done()
		c.writePump()
	}()
	go func() {
		defer s.pumps.Done()
		c.readPump(joinName)
	}()
	return true
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.SetupRoutes()
}
