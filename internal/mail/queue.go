// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/auth"
	"github.com/linkhoard/linkhoard/pkg/errutil"
)

// Queue defaults.
const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = time.Minute
)

// QueueConfig configures Queue. Zero values use the defaults.
type QueueConfig struct {
	Size        int
	SendTimeout time.Duration
}

type resetMail struct {
	ctx          context.Context
	to           string
	rawToken     string
	resetURLBase string
}

// Queue hands reset mail to a background worker so a request for a known
// address returns as quickly as one for an unknown address. Delivery
// failures are logged.
type Queue struct {
	next    auth.Mailer
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan resetMail
	done   chan struct{}
}

// NewQueue starts a Queue delivering through next. A nil logger uses
// slog.Default().
func NewQueue(next auth.Mailer, cfg QueueConfig, logger *slog.Logger) (*Queue, error) {
	if next == nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("mailer is required")
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		next:    next,
		timeout: cfg.SendTimeout,
		logger:  logger,
		jobs:    make(chan resetMail, cfg.Size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q, nil
}

// SendPasswordResetEmail enqueues the e-mail. It fails only when the queue
// is full or closed.
func (q *Queue) SendPasswordResetEmail(ctx context.Context, to, rawToken, resetURLBase string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return oops.Code("MAIL_QUEUE_CLOSED").Errorf("mail queue is closed")
	}
	select {
	case q.jobs <- resetMail{ctx: context.WithoutCancel(ctx), to: to, rawToken: rawToken, resetURLBase: resetURLBase}:
		return nil
	default:
		return oops.Code("MAIL_QUEUE_FULL").With("size", cap(q.jobs)).Errorf("mail queue is full")
	}
}

// Close stops accepting mail and waits for queued mail to be delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(job.ctx, q.timeout)
		if err := q.next.SendPasswordResetEmail(ctx, job.to, job.rawToken, job.resetURLBase); err != nil {
			errutil.LogError(ctx, q.logger, "password reset email failed", err)
		}
		cancel()
	}
}

var _ auth.Mailer = (*Queue)(nil)
