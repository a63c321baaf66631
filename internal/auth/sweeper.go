// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/pkg/errutil"
)

// DefaultSweepInterval is how often expired records are removed.
const DefaultSweepInterval = 10 * time.Minute

// ExpiredSessionDeleter is the part of WebSessionRepository the sweeper needs.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically deletes expired sessions and reset requests.
type Sweeper struct {
	sessions ExpiredSessionDeleter // nil with self-contained sessions
	resets   *PasswordResetService
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewSweeper creates a Sweeper. sessions may be nil.
func NewSweeper(sessions ExpiredSessionDeleter, resets *PasswordResetService, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if resets == nil {
		return nil, oops.Code("SWEEPER_INVALID").Errorf("reset service is required")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		sessions: sessions,
		resets:   resets,
		interval: interval,
		logger:   logger,
	}, nil
}

// SweepResult reports how many records one pass removed.
type SweepResult struct {
	Sessions int64
	Resets   int64
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	if s.sessions != nil {
		n, err := s.sessions.DeleteExpired(ctx)
		if err != nil {
			return result, oops.Code("SWEEP_SESSIONS_FAILED").
				With("operation", "delete expired sessions").
				Wrap(err)
		}
		result.Sessions = n
	}

	n, err := s.resets.Sweep(ctx)
	if err != nil {
		return result, err
	}
	result.Resets = n

	return result, nil
}

// Start runs sweeps in the background until Stop is called or ctx ends.
// Calling Start on a running Sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})

	go s.loop(ctx, s.stopped)
}

// Stop halts the background loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (s *Sweeper) loop(ctx context.Context, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.RunOnce(ctx)
			if err != nil {
				errutil.LogError(ctx, s.logger, "sweep failed", err)
				continue
			}
			if result.Sessions > 0 || result.Resets > 0 {
				s.logger.InfoContext(ctx, "swept expired records",
					"sessions", result.Sessions,
					"resets", result.Resets)
			}
		}
	}
}
