// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-gateway.
//
// go-webauthn-gateway is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for the gateway.
// It exposes ceremony outcome counters, access-gate decision counters, and
// HTTP request metrics.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all gateway metrics
	Namespace = "gateway"

	// Label names
	LabelStatus     = "status"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// RegistrationsTotal tracks WebAuthn registration ceremony outcomes.
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "webauthn_registrations_total",
			Help:      "Total number of WebAuthn registration ceremonies by outcome",
		},
		[]string{LabelStatus},
	)

	// AuthenticationsTotal tracks WebAuthn authentication ceremony outcomes.
	AuthenticationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "webauthn_authentications_total",
			Help:      "Total number of WebAuthn authentication ceremonies by outcome",
		},
		[]string{LabelStatus},
	)

	// AuthorizedRequests counts requests the access gate admitted.
	AuthorizedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "authorized_requests_total",
			Help:      "Total number of requests admitted by the access gate",
		},
	)

	// UnauthorizedRequests counts requests the access gate rejected.
	UnauthorizedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unauthorized_requests_total",
			Help:      "Total number of requests rejected by the access gate",
		},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)
)

// enabled tracks whether metrics collection is enabled
var enabled atomic.Bool

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// SetEnabled enables or disables metrics collection.
func SetEnabled(on bool) {
	enabled.Store(on)
}

// IsEnabled returns whether metrics collection is enabled.
func IsEnabled() bool {
	return enabled.Load()
}

// RecordRegistration records a registration ceremony outcome.
func RecordRegistration(success bool) {
	if !enabled.Load() {
		return
	}
	RegistrationsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordAuthentication records an authentication ceremony outcome.
func RecordAuthentication(success bool) {
	if !enabled.Load() {
		return
	}
	AuthenticationsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordAccess records an access-gate decision.
func RecordAccess(authorized bool) {
	if !enabled.Load() {
		return
	}
	if authorized {
		AuthorizedRequests.Inc()
	} else {
		UnauthorizedRequests.Inc()
	}
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

func statusLabel(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusFailure
}
