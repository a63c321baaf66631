// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import (
	"time"
)

// Password reset defaults.
const (
	// DefaultResetTokenTTL is how long a reset link stays usable.
	DefaultResetTokenTTL = 30 * time.Minute

	// DefaultResetWindow is the trailing window over which requests are counted.
	DefaultResetWindow = 30 * time.Minute

	// DefaultResetMaxRequests is the number of requests allowed per window.
	DefaultResetMaxRequests = 3
)

// ResetPolicy configures password reset expiry and rate limiting.
type ResetPolicy struct {
	TokenTTL    time.Duration
	Window      time.Duration
	MaxRequests int
}

// DefaultResetPolicy returns the default policy.
func DefaultResetPolicy() ResetPolicy {
	return ResetPolicy{
		TokenTTL:    DefaultResetTokenTTL,
		Window:      DefaultResetWindow,
		MaxRequests: DefaultResetMaxRequests,
	}
}

// withDefaults fills zero fields from DefaultResetPolicy.
func (p ResetPolicy) withDefaults() ResetPolicy {
	def := DefaultResetPolicy()
	if p.TokenTTL <= 0 {
		p.TokenTTL = def.TokenTTL
	}
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.MaxRequests <= 0 {
		p.MaxRequests = def.MaxRequests
	}
	return p
}

// RetentionCutoff is the point before which an expired request no longer
// matters for rate limiting and may be swept.
func (p ResetPolicy) RetentionCutoff(now time.Time) time.Time {
	p = p.withDefaults()
	return now.Add(-p.Window)
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	// Issued is the number of requests inside the window.
	Issued int

	// Limited indicates the request must be rejected.
	Limited bool

	// RetryAfter is the time until the oldest counted request leaves the window.
	RetryAfter time.Duration
}

// CheckResetRequests evaluates the rate limit for a user given their stored
// requests. The count includes invalidated requests.
func CheckResetRequests(policy ResetPolicy, resets []*PasswordReset, now time.Time) RateLimitResult {
	policy = policy.withDefaults()
	windowStart := now.Add(-policy.Window)

	result := RateLimitResult{}
	var oldest time.Time
	for _, r := range resets {
		if !r.CreatedAt.After(windowStart) {
			continue
		}
		result.Issued++
		if oldest.IsZero() || r.CreatedAt.Before(oldest) {
			oldest = r.CreatedAt
		}
	}

	if result.Issued >= policy.MaxRequests {
		result.Limited = true
		result.RetryAfter = oldest.Add(policy.Window).Sub(now)
	}
	return result
}
