// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jobsync keeps the local view of remote jobs fresh: a shared
// snapshot written only by the poller, a per-asset-kind rate limiter, and the
// visibility-aware polling loop.
package jobsync

import (
	"sync"

	"github.com/autobrr/torboxd/internal/models"
)

// Snapshot is the single shared job collection. The poller's successful-fetch
// handler is the only writer; everything else reads copies.
type Snapshot struct {
	mu   sync.RWMutex
	jobs map[models.AssetKind][]models.Job

	subsMu sync.Mutex
	subs   map[chan models.AssetKind]struct{}
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		jobs: make(map[models.AssetKind][]models.Job),
		subs: make(map[chan models.AssetKind]struct{}),
	}
}

// Replace publishes a fresh job list for one asset kind. Status is classified
// and ordering applied here, once per refresh, so readers never re-derive it.
func (s *Snapshot) Replace(kind models.AssetKind, jobs []models.Job) {
	for i := range jobs {
		jobs[i].AssetKind = kind
		jobs[i].Status = models.ClassifyStatus(&jobs[i])
	}
	models.SortJobs(jobs)

	s.mu.Lock()
	s.jobs[kind] = jobs
	s.mu.Unlock()

	s.broadcast(kind)
}

// Jobs returns a copy of the current list for one asset kind.
func (s *Snapshot) Jobs(kind models.AssetKind) []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Job, len(s.jobs[kind]))
	copy(out, s.jobs[kind])
	return out
}

// Job looks up a single job by id.
func (s *Snapshot) Job(kind models.AssetKind, id int) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs[kind] {
		if job.ID == id {
			return job, true
		}
	}
	return models.Job{}, false
}

// Remove drops jobs by id after confirmed deletes, without waiting for the
// next poll to notice their absence.
func (s *Snapshot) Remove(kind models.AssetKind, ids []int) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	kept := s.jobs[kind][:0]
	for _, job := range s.jobs[kind] {
		if _, gone := drop[job.ID]; !gone {
			kept = append(kept, job)
		}
	}
	s.jobs[kind] = kept
	s.mu.Unlock()

	s.broadcast(kind)
}

// HasQueued reports whether any job of the kind is in the derived queued
// state.
func (s *Snapshot) HasQueued(kind models.AssetKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.jobs[kind] {
		if s.jobs[kind][i].IsQueued() {
			return true
		}
	}
	return false
}

// ActiveCount returns how many jobs of the kind are currently active.
func (s *Snapshot) ActiveCount(kind models.AssetKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for i := range s.jobs[kind] {
		if s.jobs[kind][i].Active {
			count++
		}
	}
	return count
}

// Subscribe returns a channel that receives the asset kind on every publish.
// Slow subscribers miss updates rather than block the poller.
func (s *Snapshot) Subscribe() chan models.AssetKind {
	ch := make(chan models.AssetKind, 8)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch
}

func (s *Snapshot) Unsubscribe(ch chan models.AssetKind) {
	s.subsMu.Lock()
	delete(s.subs, ch)
	s.subsMu.Unlock()
}

func (s *Snapshot) broadcast(kind models.AssetKind) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- kind:
		default:
		}
	}
}
