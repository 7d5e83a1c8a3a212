// Package server exposes case submission, job and run status over HTTP, and
// streams job progress to WebSocket clients.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/pulse/async"
	"github.com/teranos/dealflow/status"
)

// Config wires a DealServer.
type Config struct {
	Queue  *async.Queue
	Status *status.Recorder
	// Daemon is started and stopped with the server when set.
	Daemon         *async.WorkerPool
	SpoolDir       string
	MaxUploadBytes int64
	AllowedOrigins []string
	Logger         *zap.SugaredLogger
}

// DealServer serves the deal-flow API.
type DealServer struct {
	queue          *async.Queue
	status         *status.Recorder
	daemon         *async.WorkerPool
	spoolDir       string
	maxUploadBytes int64
	allowedOrigins []string
	logger         *zap.SugaredLogger

	mux        *http.ServeMux
	httpServer *http.Server

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	started        atomic.Bool
	broadcastDrops atomic.Int64
	state          atomic.Int32
}

// New creates a server. Routes are ready for Handler immediately; the
// WebSocket hub and job broadcaster run once Start or StartBackground is
// called.
func New(cfg Config) (*DealServer, error) {
	if cfg.Queue == nil || cfg.Status == nil {
		return nil, errors.New("server needs a job queue and a status recorder")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &DealServer{
		queue:          cfg.Queue,
		status:         cfg.Status,
		daemon:         cfg.Daemon,
		spoolDir:       cfg.SpoolDir,
		maxUploadBytes: cfg.MaxUploadBytes,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         cfg.Logger.Named("server"),
		mux:            http.NewServeMux(),
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		ctx:            ctx,
		cancel:         cancel,
	}
	s.setupHTTPRoutes()
	return s, nil
}

// Handler returns the server's routes.
func (s *DealServer) Handler() http.Handler { return s.mux }

// ClientCount returns the number of connected WebSocket clients.
func (s *DealServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// run is the hub loop: it owns client registration.
func (s *DealServer) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

func (s *DealServer) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected", "client_id", client.id, "total_clients", total)
}

func (s *DealServer) handleClientUnregister(client *Client) {
	s.mu.Lock()
	_, ok := s.clients[client]
	delete(s.clients, client)
	total := len(s.clients)
	s.mu.Unlock()

	if ok {
		client.close()
		s.logger.Infow("Client disconnected", "client_id", client.id, "total_clients", total)
	}
}
