package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottthesecond/syncframe/pkg/linkindex"
)

// ServiceStatus mirrors the teacher's replicator.ServiceStatus enum,
// narrowed to what a job runner host needs to report.
type ServiceStatus string

const (
	StatusStopped  ServiceStatus = "stopped"
	StatusStarting ServiceStatus = "starting"
	StatusRunning  ServiceStatus = "running"
	StatusStopping ServiceStatus = "stopping"
	StatusError    ServiceStatus = "error"
)

// Service schedules one job's Engine on a fixed interval until stopped.
// It is the "job runner" spec §6 calls out as a host collaborator: the
// core only defines Run(); invoking it on a schedule is this thin
// wrapper's job, modeled on the teacher's replicator.Service Start/Stop
// lifecycle.
type Service struct {
	engine   *Engine
	interval time.Duration

	mu        sync.RWMutex
	status    ServiceStatus
	lastErr   error
	startedAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wraps engine with a scheduler that calls Run every interval.
func NewService(eng *Engine, interval time.Duration) *Service {
	return &Service{engine: eng, interval: interval, status: StatusStopped}
}

// Start runs the scheduling loop in the background until Stop is called
// or ctx is cancelled. Start returns immediately; it is an error to call
// Start twice without an intervening Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusStarting {
		s.mu.Unlock()
		return fmt.Errorf("engine: service already running")
	}
	s.status = StatusStarting
	s.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(loopCtx)

	log.Info().Str("job_id", s.engine.cfg.JobID).Dur("interval", s.interval).Msg("sync service started")
	return nil
}

// Stop cancels the scheduling loop and waits for the in-flight cycle, if
// any, to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusStopping
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.status = StatusStopped
	s.mu.Unlock()
	return nil
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	summary, err := s.engine.Run(ctx)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("job_id", s.engine.cfg.JobID).Msg("cycle errored outside the run summary")
		return
	}
	log.Info().Str("job_id", s.engine.cfg.JobID).Str("run_id", summary.RunID).
		Str("status", string(summary.Status)).Msg("cycle finished")
}

// GetStatus reports the service's current lifecycle state and the error
// (if any) from its most recent Run call.
func (s *Service) GetStatus() (ServiceStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.lastErr
}

// RunNow triggers an out-of-band cycle immediately, independent of the
// scheduling interval — the "on demand" invocation spec §1 describes.
func (s *Service) RunNow(ctx context.Context) (linkindex.RunSummary, error) {
	return s.engine.Run(ctx)
}
