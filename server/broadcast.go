package server

import (
	"encoding/json"
	"time"

	"github.com/teranos/dealflow/pulse/async"
)

// startJobUpdateBroadcaster forwards queue updates to every WebSocket client.
func (s *DealServer) startJobUpdateBroadcaster() {
	jobChan := s.queue.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			// Unsubscribe before close so the queue never sends on a closed channel
			s.queue.Unsubscribe(jobChan)
			close(jobChan)
		}()

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Debugw("Job update broadcaster stopping due to context cancellation")
				return
			case job := <-jobChan:
				s.broadcastJobUpdate(job)
			}
		}
	}()

	s.logger.Infow("Job update broadcaster started")
}

// broadcastJobUpdate sends a job update to all connected clients. Slow
// clients drop the message rather than stall the broadcaster.
func (s *DealServer) broadcastJobUpdate(job *async.Job) {
	data, err := json.Marshal(JobUpdateMessage{
		Type:      "job_update",
		Job:       job,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		s.logger.Errorw("Failed to encode job update", "job_id", shortID(job.ID), "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if !client.trySend(data) {
			s.broadcastDrops.Add(1)
			s.logger.Debugw("Client queue full, dropping job update",
				"client_id", client.id,
				"job_id", shortID(job.ID))
		}
	}
}
