// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jobsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/models"
)

// APIClient is the slice of the remote API the poller needs.
type APIClient interface {
	ListJobs(ctx context.Context, kind models.AssetKind, bypassCache bool) ([]models.Job, error)
	ControlQueued(ctx context.Context, kind models.AssetKind, queuedID int, operation string) error
}

type ruleLister interface {
	List(ctx context.Context) ([]*models.AutomationRule, error)
}

type autoStartSource interface {
	GetAutoStart(ctx context.Context) (*models.AutoStartSettings, error)
}

// Config controls the polling cadences.
type Config struct {
	// ActiveInterval applies while a dashboard client is attached.
	ActiveInterval time.Duration
	// AutomationInterval applies in the background when enabled rules exist.
	AutomationInterval time.Duration
	// AutoStartInterval applies in the background when auto-start is on and
	// queued torrents are waiting.
	AutoStartInterval time.Duration
	// AutoStartCheckInterval throttles the auto-start side effect after
	// successful torrent fetches.
	AutoStartCheckInterval time.Duration
	// ForegroundRefreshGap is the minimum background duration that triggers
	// an immediate fetch when a client re-attaches.
	ForegroundRefreshGap time.Duration
}

func DefaultConfig() Config {
	return Config{
		ActiveInterval:         10 * time.Second,
		AutomationInterval:     5 * time.Minute,
		AutoStartInterval:      time.Minute,
		AutoStartCheckInterval: 30 * time.Second,
		ForegroundRefreshGap:   10 * time.Second,
	}
}

// Poller keeps the snapshot fresh under the rate limiter, switching cadence
// with client visibility and automation state. With no clients attached, no
// enabled rules, and nothing to auto-start, polling suspends entirely.
type Poller struct {
	cfg      Config
	client   APIClient
	snapshot *Snapshot
	limiter  *RateLimiter
	rules    ruleLister
	settings autoStartSource
	metrics  *Metrics

	mu                 sync.Mutex
	latestFetchID      map[models.AssetKind]uint64
	lastAutoStartCheck time.Time
	attemptedQueueIDs  map[int]struct{}
	hasEnabledRules    bool
	visible            bool
	hiddenSince        time.Time

	wake chan struct{}
	now  func() time.Time
}

func NewPoller(cfg Config, client APIClient, snapshot *Snapshot, rules ruleLister, settings autoStartSource, metrics *Metrics) *Poller {
	def := DefaultConfig()
	if cfg.ActiveInterval <= 0 {
		cfg.ActiveInterval = def.ActiveInterval
	}
	if cfg.AutomationInterval <= 0 {
		cfg.AutomationInterval = def.AutomationInterval
	}
	if cfg.AutoStartInterval <= 0 {
		cfg.AutoStartInterval = def.AutoStartInterval
	}
	if cfg.AutoStartCheckInterval <= 0 {
		cfg.AutoStartCheckInterval = def.AutoStartCheckInterval
	}
	if cfg.ForegroundRefreshGap <= 0 {
		cfg.ForegroundRefreshGap = def.ForegroundRefreshGap
	}

	return &Poller{
		cfg:               cfg,
		client:            client,
		snapshot:          snapshot,
		limiter:           NewRateLimiter(),
		rules:             rules,
		settings:          settings,
		metrics:           metrics,
		latestFetchID:     make(map[models.AssetKind]uint64),
		attemptedQueueIDs: make(map[int]struct{}),
		wake:              make(chan struct{}, 1),
		now:               time.Now,
	}
}

// Start fetches every asset kind once, then runs the cadence loop until ctx
// is done.
func (p *Poller) Start(ctx context.Context) {
	p.RefreshRuleState(ctx)

	go func() {
		for _, kind := range models.AssetKinds {
			if _, err := p.TryFetch(ctx, kind, true); err != nil {
				log.Warn().Err(err).Str("assetKind", string(kind)).Msg("initial fetch failed")
			}
		}
		p.loop(ctx)
	}()
}

func (p *Poller) loop(ctx context.Context) {
	for {
		interval, active := p.cadence(ctx)
		if !active {
			log.Debug().Msg("polling suspended")
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
			continue
		case <-timer.C:
			p.pollAll(ctx)
		}
	}
}

// cadence picks the current polling interval. The bool is false when polling
// should be suspended.
func (p *Poller) cadence(ctx context.Context) (time.Duration, bool) {
	p.mu.Lock()
	visible := p.visible
	hasRules := p.hasEnabledRules
	p.mu.Unlock()

	if visible {
		return p.cfg.ActiveInterval, true
	}
	if hasRules {
		return p.cfg.AutomationInterval, true
	}
	if p.autoStartWantsPolling(ctx) {
		return p.cfg.AutoStartInterval, true
	}
	return 0, false
}

func (p *Poller) autoStartWantsPolling(ctx context.Context) bool {
	settings, err := p.settings.GetAutoStart(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load auto-start settings")
		return false
	}
	return settings.AutoStart && p.snapshot.HasQueued(models.AssetKindTorrent)
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, kind := range models.AssetKinds {
		if _, err := p.TryFetch(ctx, kind, true); err != nil {
			log.Warn().Err(err).Str("assetKind", string(kind)).Msg("poll failed")
		}
	}
}

// TryFetch issues one rate-limited list fetch. Rejected calls are silent
// no-ops returning an empty list. A response that lost the race against a
// newer fetch for the same kind is discarded rather than published.
func (p *Poller) TryFetch(ctx context.Context, kind models.AssetKind, bypassCache bool) ([]models.Job, error) {
	if !p.limiter.Admit(kind) {
		log.Debug().Str("assetKind", string(kind)).Msg("rate limit reached, skipping fetch")
		p.metrics.FetchRejected(kind)
		return nil, nil
	}
	p.metrics.FetchAdmitted(kind)

	p.mu.Lock()
	p.latestFetchID[kind]++
	fetchID := p.latestFetchID[kind]
	p.mu.Unlock()

	jobs, err := p.client.ListJobs(ctx, kind, bypassCache)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	stale := fetchID != p.latestFetchID[kind]
	p.mu.Unlock()
	if stale {
		log.Debug().Str("assetKind", string(kind)).Uint64("fetchID", fetchID).Msg("discarding stale fetch result")
		p.metrics.StaleDiscarded(kind)
		return nil, nil
	}

	p.snapshot.Replace(kind, jobs)

	if kind == models.AssetKindTorrent {
		p.maybeAutoStart(ctx)
	}

	return p.snapshot.Jobs(kind), nil
}

// SetVisible tracks dashboard attachment. Returning to the foreground after
// more than ForegroundRefreshGap forces an immediate fetch, still subject to
// the rate limiter.
func (p *Poller) SetVisible(ctx context.Context, visible bool) {
	p.mu.Lock()
	wasVisible := p.visible
	p.visible = visible
	var hiddenFor time.Duration
	if visible && !wasVisible && !p.hiddenSince.IsZero() {
		hiddenFor = p.now().Sub(p.hiddenSince)
		p.hiddenSince = time.Time{}
	}
	if !visible && wasVisible {
		p.hiddenSince = p.now()
	}
	p.mu.Unlock()

	if visible && !wasVisible && hiddenFor > p.cfg.ForegroundRefreshGap {
		go p.pollAll(ctx)
	}

	p.signalWake()
}

// RefreshRuleState re-reads whether any enabled automation rule exists. The
// rule store calls this on every mutation so the cadence reacts immediately.
func (p *Poller) RefreshRuleState(ctx context.Context) {
	rules, err := p.rules.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list automation rules for cadence")
		return
	}

	hasEnabled := false
	for _, rule := range rules {
		if rule.Enabled {
			hasEnabled = true
			break
		}
	}

	p.mu.Lock()
	p.hasEnabledRules = hasEnabled
	p.mu.Unlock()

	p.signalWake()
}

func (p *Poller) signalWake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// maybeAutoStart runs the queued-torrent auto-start check at most once per
// AutoStartCheckInterval: when auto-start is enabled and there is room under
// the active limit, start the oldest queued job that has not been attempted
// during this process lifetime.
func (p *Poller) maybeAutoStart(ctx context.Context) {
	now := p.now()

	p.mu.Lock()
	if now.Sub(p.lastAutoStartCheck) < p.cfg.AutoStartCheckInterval {
		p.mu.Unlock()
		return
	}
	p.lastAutoStartCheck = now
	p.mu.Unlock()

	settings, err := p.settings.GetAutoStart(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("auto-start check: failed to load settings")
		return
	}
	if !settings.AutoStart {
		return
	}

	jobs := p.snapshot.Jobs(models.AssetKindTorrent)
	activeCount := 0
	var oldestQueued *models.Job
	for i := range jobs {
		if jobs[i].Active {
			activeCount++
			continue
		}
		if !jobs[i].IsQueued() {
			continue
		}
		if oldestQueued == nil || jobs[i].Added.Before(oldestQueued.Added) {
			oldestQueued = &jobs[i]
		}
	}

	if activeCount >= settings.AutoStartLimit || oldestQueued == nil {
		return
	}

	p.mu.Lock()
	if _, attempted := p.attemptedQueueIDs[oldestQueued.ID]; attempted {
		p.mu.Unlock()
		return
	}
	// Mark before calling so a slow or failed call is never retried in a
	// tight poll loop.
	p.attemptedQueueIDs[oldestQueued.ID] = struct{}{}
	p.mu.Unlock()

	p.metrics.AutoStartAttempt()
	if err := p.client.ControlQueued(ctx, models.AssetKindTorrent, oldestQueued.ID, "start"); err != nil {
		log.Error().Err(err).Int("jobID", oldestQueued.ID).Msg("auto-start failed")
		return
	}

	log.Info().Int("jobID", oldestQueued.ID).Str("name", oldestQueued.Name).Msg("auto-started queued torrent")
}
