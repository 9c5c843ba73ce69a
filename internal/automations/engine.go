// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package automations

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/models"
)

type jobController interface {
	ControlJob(ctx context.Context, kind models.AssetKind, jobID int, operation string) error
	DeleteJob(ctx context.Context, kind models.AssetKind, jobID int) error
}

type jobSource interface {
	Jobs(kind models.AssetKind) []models.Job
}

type ruleStore interface {
	List(ctx context.Context) ([]*models.AutomationRule, error)
	Get(ctx context.Context, id int) (*models.AutomationRule, error)
	RecordTriggered(ctx context.Context, id int, at time.Time) error
	RecordExecuted(ctx context.Context, id int, at time.Time) error
	OnChange(fn func())
}

type archiveStore interface {
	Add(ctx context.Context, entry *models.ArchivedDownload) error
}

// ruleTimer is one scheduled rule. Stopping closes done; the goroutine owns
// the timer and exits on its own.
type ruleTimer struct {
	ruleID   int
	interval time.Duration
	done     chan struct{}
}

// Engine owns one timer per enabled rule. The first firing is drift
// corrected: a rule that last triggered 7 minutes ago on a 10 minute
// interval fires in 3, not 10, so restarts do not push schedules back.
type Engine struct {
	rules    ruleStore
	jobs     jobSource
	client   jobController
	archive  archiveStore
	interval func(rule *models.AutomationRule) time.Duration

	mu     sync.Mutex
	timers map[int]*ruleTimer

	now func() time.Time
}

func NewEngine(rules ruleStore, jobs jobSource, client jobController, archive archiveStore) *Engine {
	return &Engine{
		rules:   rules,
		jobs:    jobs,
		client:  client,
		archive: archive,
		interval: func(rule *models.AutomationRule) time.Duration {
			return time.Duration(rule.Trigger.Minutes) * time.Minute
		},
		timers: make(map[int]*ruleTimer),
		now:    time.Now,
	}
}

// Start schedules every enabled rule and re-syncs whenever the store changes.
// A failed initial load schedules nothing; the engine recovers on the next
// store mutation.
func (e *Engine) Start(ctx context.Context) {
	e.rules.OnChange(func() { e.resync(ctx) })
	e.resync(ctx)

	go func() {
		<-ctx.Done()
		e.StopAll()
	}()
}

// resync diffs scheduled timers against the store: disabled or deleted rules
// stop, interval changes reschedule, new enabled rules start.
func (e *Engine) resync(ctx context.Context) {
	rules, err := e.rules.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load automation rules, scheduling nothing")
		rules = nil
	}

	enabled := make(map[int]*models.AutomationRule, len(rules))
	for _, rule := range rules {
		if rule.Enabled {
			enabled[rule.ID] = rule
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, timer := range e.timers {
		rule, keep := enabled[id]
		if keep && timer.interval == e.interval(rule) {
			delete(enabled, id)
			continue
		}
		close(timer.done)
		delete(e.timers, id)
	}

	for _, rule := range enabled {
		e.scheduleLocked(ctx, rule)
	}
}

// scheduleLocked starts the timer goroutine for one rule. Caller holds e.mu.
func (e *Engine) scheduleLocked(ctx context.Context, rule *models.AutomationRule) {
	interval := e.interval(rule)
	timer := &ruleTimer{
		ruleID:   rule.ID,
		interval: interval,
		done:     make(chan struct{}),
	}
	e.timers[rule.ID] = timer

	delay := e.initialDelay(rule, interval)
	log.Debug().Int("ruleID", rule.ID).Str("name", rule.Name).
		Dur("initialDelay", delay).Dur("interval", interval).Msg("scheduling automation rule")

	go func() {
		first := time.NewTimer(delay)
		defer first.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.done:
			return
		case <-first.C:
			e.runRule(ctx, timer.ruleID)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.done:
				return
			case <-ticker.C:
				e.runRule(ctx, timer.ruleID)
			}
		}
	}()
}

// initialDelay positions the first firing relative to the last trigger (or
// enable time when the rule has never triggered), clamped at zero so overdue
// rules fire immediately.
func (e *Engine) initialDelay(rule *models.AutomationRule, interval time.Duration) time.Duration {
	anchor := rule.Metadata.LastTriggeredAt
	if anchor == nil {
		anchor = rule.Metadata.LastEnabledAt
	}
	if anchor == nil {
		return interval
	}

	delay := interval - e.now().Sub(*anchor)
	if delay < 0 {
		return 0
	}
	return delay
}

// runRule evaluates one rule against the current snapshot and applies its
// action to every matching job. The rule is re-read from the store first so
// an edit between firings takes effect without waiting for a reschedule.
func (e *Engine) runRule(ctx context.Context, ruleID int) {
	rule, err := e.rules.Get(ctx, ruleID)
	if err != nil {
		log.Error().Err(err).Int("ruleID", ruleID).Msg("failed to load rule for evaluation")
		return
	}
	if !rule.Enabled {
		return
	}

	now := e.now()
	matched := matchJobs(rule, e.jobs.Jobs(models.AssetKindTorrent), now)
	if len(matched) == 0 {
		return
	}

	// One trigger per evaluation cycle, no matter how many jobs matched.
	if err := e.rules.RecordTriggered(ctx, rule.ID, now); err != nil {
		log.Error().Err(err).Int("ruleID", rule.ID).Msg("failed to record rule trigger")
	}

	log.Info().Int("ruleID", rule.ID).Str("name", rule.Name).
		Int("matched", len(matched)).Str("action", string(rule.Action.Kind)).Msg("automation rule matched")

	for i := range matched {
		if err := e.applyAction(ctx, rule, &matched[i]); err != nil {
			log.Error().Err(err).Int("ruleID", rule.ID).Int("jobID", matched[i].ID).
				Str("action", string(rule.Action.Kind)).Msg("automation action failed")
			continue
		}
		if err := e.rules.RecordExecuted(ctx, rule.ID, e.now()); err != nil {
			log.Error().Err(err).Int("ruleID", rule.ID).Msg("failed to record rule execution")
		}
	}
}

func (e *Engine) applyAction(ctx context.Context, rule *models.AutomationRule, job *models.Job) error {
	switch rule.Action.Kind {
	case models.ActionStopSeeding:
		return e.client.ControlJob(ctx, job.AssetKind, job.ID, "stop_seeding")

	case models.ActionForceStart:
		return e.client.ControlJob(ctx, job.AssetKind, job.ID, "force_start")

	case models.ActionDelete:
		return e.client.DeleteJob(ctx, job.AssetKind, job.ID)

	case models.ActionArchive:
		// Record first so the download can be restored even if the remote
		// delete fails and has to be retried by a later firing.
		if err := e.archive.Add(ctx, &models.ArchivedDownload{
			JobID:      job.ID,
			Name:       job.Name,
			Hash:       job.Hash,
			AssetKind:  job.AssetKind,
			ArchivedAt: e.now(),
		}); err != nil {
			log.Error().Err(err).Int("jobID", job.ID).Msg("failed to archive download record")
		}
		return e.client.DeleteJob(ctx, job.AssetKind, job.ID)
	}

	return nil
}

// StopAll cancels every scheduled rule.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, timer := range e.timers {
		close(timer.done)
		delete(e.timers, id)
	}
}

// ScheduledRuleIDs reports which rules currently hold a timer, for the status
// endpoint and tests.
func (e *Engine) ScheduledRuleIDs() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]int, 0, len(e.timers))
	for id := range e.timers {
		ids = append(ids, id)
	}
	return ids
}
