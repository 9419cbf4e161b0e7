// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors of the authorization server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "oauthz"

// Metrics holds the server's collectors. A nil *Metrics records nothing.
type Metrics struct {
	tokensIssued   *prometheus.CounterVec
	requestsFailed *prometheus.CounterVec
	tokensRevoked  prometheus.Counter
	tokensCleaned  prometheus.Counter
	codesIssued    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Access tokens issued, by grant type.",
		}, []string{"grant_type"}),
		requestsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Rejected requests, by endpoint and OAuth error code.",
		}, []string{"endpoint", "error"}),
		tokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_revoked_total",
			Help:      "Access tokens revoked.",
		}),
		tokensCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_cleaned_total",
			Help:      "Expired token records removed by the cleanup job.",
		}),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_codes_issued_total",
			Help:      "Authorization codes issued by the authorize endpoint.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.tokensIssued, m.requestsFailed, m.tokensRevoked, m.tokensCleaned, m.codesIssued,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TokenIssued counts an issued token.
func (m *Metrics) TokenIssued(grantType string) {
	if m != nil {
		m.tokensIssued.WithLabelValues(grantType).Inc()
	}
}

// RequestFailed counts a rejected request.
func (m *Metrics) RequestFailed(endpoint, errorCode string) {
	if m != nil {
		m.requestsFailed.WithLabelValues(endpoint, errorCode).Inc()
	}
}

// TokenRevoked counts a revocation.
func (m *Metrics) TokenRevoked() {
	if m != nil {
		m.tokensRevoked.Inc()
	}
}

// TokensCleaned counts records removed by cleanup.
func (m *Metrics) TokensCleaned(n int) {
	if m != nil && n > 0 {
		m.tokensCleaned.Add(float64(n))
	}
}

// CodeIssued counts an authorization code.
func (m *Metrics) CodeIssued() {
	if m != nil {
		m.codesIssued.Inc()
	}
}
