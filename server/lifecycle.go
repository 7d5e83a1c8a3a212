package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/dealflow/errors"
)

func (s *DealServer) getState() ServerState {
	return ServerState(s.state.Load())
}

func (s *DealServer) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StartBackground starts the WebSocket hub, the job broadcaster and the
// worker pool, if one was configured. Start calls it; tests call it directly
// with Handler.
func (s *DealServer) StartBackground() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	s.startJobUpdateBroadcaster()
	if s.daemon != nil {
		s.daemon.Start()
		s.logger.Infow("Daemon started", "workers", s.daemon.Workers())
	}
	s.setState(ServerStateRunning)
}

// Start serves on port until Stop. It returns http.ErrServerClosed after a
// clean shutdown.
func (s *DealServer) Start(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", port)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener until Stop.
func (s *DealServer) Serve(listener net.Listener) error {
	s.StartBackground()
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	s.logger.Infow("HTTP server listening", "address", listener.Addr().String())
	return s.httpServer.Serve(listener)
}

// Stop drains workers, closes client connections and shuts the HTTP server
// down.
func (s *DealServer) Stop() error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	// Stop the daemon first so running jobs requeue before the server goes away
	if s.daemon != nil {
		s.logger.Infow("Stopping daemon workers")
		s.daemon.Stop()
	}

	var shutdownErr error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		shutdownErr = s.httpServer.Shutdown(ctx)
		cancel()
	}

	s.mu.Lock()
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()
	for _, client := range clientsToClose {
		client.conn.Close()
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit", "timeout", ShutdownTimeout)
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete", "broadcast_drops", s.broadcastDrops.Load())
	return shutdownErr
}
