// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jobsync

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/autobrr/torboxd/internal/models"
)

// Metrics counts poller activity. A nil *Metrics is valid and records
// nothing, so tests and callers without a registry skip the wiring.
type Metrics struct {
	fetchesAdmitted   *prometheus.CounterVec
	fetchesRejected   *prometheus.CounterVec
	staleDiscarded    *prometheus.CounterVec
	autoStartAttempts prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchesAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torboxd_fetches_admitted_total",
			Help: "List fetches admitted by the rate limiter",
		}, []string{"asset_kind"}),
		fetchesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torboxd_fetches_rejected_total",
			Help: "List fetches rejected by the rate limiter",
		}, []string{"asset_kind"}),
		staleDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torboxd_stale_fetches_discarded_total",
			Help: "Fetch responses discarded because a newer fetch superseded them",
		}, []string{"asset_kind"}),
		autoStartAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "torboxd_auto_start_attempts_total",
			Help: "Queued torrents the auto-start check tried to start",
		}),
	}

	reg.MustRegister(m.fetchesAdmitted, m.fetchesRejected, m.staleDiscarded, m.autoStartAttempts)
	return m
}

func (m *Metrics) FetchAdmitted(kind models.AssetKind) {
	if m == nil {
		return
	}
	m.fetchesAdmitted.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) FetchRejected(kind models.AssetKind) {
	if m == nil {
		return
	}
	m.fetchesRejected.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) StaleDiscarded(kind models.AssetKind) {
	if m == nil {
		return
	}
	m.staleDiscarded.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) AutoStartAttempt() {
	if m == nil {
		return
	}
	m.autoStartAttempts.Inc()
}
