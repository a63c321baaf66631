// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package observability

import "github.com/prometheus/client_golang/prometheus"

// Label values for the auth metrics.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
	ResultError    = "error"

	StageRequest = "request"
	StageConsume = "consume"

	SessionCreated   = "created"
	SessionDestroyed = "destroyed"
	SessionExtended  = "extended"
	SessionRejected  = "rejected"
)

// Metrics contains the Linkhoard authentication metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LoginsTotal         *prometheus.CounterVec
	RegistrationsTotal  *prometheus.CounterVec
	PasswordResetsTotal *prometheus.CounterVec
	SessionsTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers the auth metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkhoard_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkhoard_registrations_total",
				Help: "Total number of registration attempts by result",
			},
			[]string{"result"},
		),
		PasswordResetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkhoard_password_resets_total",
				Help: "Total number of password reset operations by stage and result",
			},
			[]string{"stage", "result"},
		),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkhoard_sessions_total",
				Help: "Total number of session lifecycle events",
			},
			[]string{"event"},
		),
	}

	reg.MustRegister(m.LoginsTotal, m.RegistrationsTotal, m.PasswordResetsTotal, m.SessionsTotal)
	return m
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// RecordRegistration counts a registration attempt.
func (m *Metrics) RecordRegistration(result string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

// RecordPasswordReset counts a reset request or consumption.
func (m *Metrics) RecordPasswordReset(stage, result string) {
	if m == nil {
		return
	}
	m.PasswordResetsTotal.WithLabelValues(stage, result).Inc()
}

// RecordSession counts a session lifecycle event.
func (m *Metrics) RecordSession(event string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(event).Inc()
}
