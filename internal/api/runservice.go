package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"recal/internal/learner"
	"recal/internal/logger"
)

// ErrRunInProgress rejects a trigger while a learning run is active.
// Runs are single-flight: the store-level promotion guard would catch a
// race anyway, but two concurrent runs would just waste the CPU.
var ErrRunInProgress = errors.New("a learning run is already in progress")

// RunService serializes learning run triggers and tracks the last
// completed run for the status endpoint.
type RunService struct {
	learner *learner.Learner

	mu      sync.Mutex
	running bool
	lastRun *learner.RunRecord
}

func NewRunService(l *learner.Learner) *RunService {
	return &RunService{learner: l}
}

// Trigger starts a learning run in the background and returns
// immediately. The run outlives the triggering request, so it runs on
// a detached context.
func (s *RunService) Trigger() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		rec, err := s.learner.Run(ctx)
		if err != nil {
			logger.Errorf("triggered learning run failed: %v", err)
		}
		s.mu.Lock()
		s.running = false
		s.lastRun = &rec
		s.mu.Unlock()
	}()
	return nil
}

// RunNow executes a learning run synchronously. Scheduled invocations
// use this path so cadence errors propagate to the scheduler.
func (s *RunService) RunNow(ctx context.Context) (learner.RunRecord, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return learner.RunRecord{}, ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	rec, err := s.learner.Run(ctx)

	s.mu.Lock()
	s.running = false
	s.lastRun = &rec
	s.mu.Unlock()
	return rec, err
}

// Status reports whether a run is active and the last finished run.
func (s *RunService) Status() (running bool, last *learner.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.lastRun
}
