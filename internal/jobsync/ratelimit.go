// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jobsync

import (
	"sync"
	"time"

	"github.com/autobrr/torboxd/internal/models"
)

const (
	// maxCallsPerWindow and rateWindow bound how many list fetches one asset
	// kind may issue in any trailing window.
	maxCallsPerWindow = 5
	rateWindow        = 10 * time.Second

	// minFetchInterval is the per-kind floor between admitted calls.
	minFetchInterval = 2 * time.Second
)

type rateState struct {
	callTimestamps []time.Time
	lastFetchTime  time.Time
}

// RateLimiter admits or rejects fetches per asset kind using a sliding
// window plus a minimum spacing between calls.
type RateLimiter struct {
	mu    sync.Mutex
	kinds map[models.AssetKind]*rateState
	now   func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		kinds: make(map[models.AssetKind]*rateState),
		now:   time.Now,
	}
}

func (rl *RateLimiter) state(kind models.AssetKind) *rateState {
	st, ok := rl.kinds[kind]
	if !ok {
		st = &rateState{}
		rl.kinds[kind] = st
	}
	return st
}

// prune discards timestamps older than the window and keeps at most the
// window capacity, so the slice never grows unbounded.
func (st *rateState) prune(now time.Time) {
	kept := st.callTimestamps[:0]
	for _, ts := range st.callTimestamps {
		if now.Sub(ts) < rateWindow {
			kept = append(kept, ts)
		}
	}
	if len(kept) > maxCallsPerWindow {
		kept = kept[len(kept)-maxCallsPerWindow:]
	}
	st.callTimestamps = kept
}

// Allowed reports whether a fetch would currently be admitted, without
// recording it.
func (rl *RateLimiter) Allowed(kind models.AssetKind) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st := rl.state(kind)
	now := rl.now()
	if !st.lastFetchTime.IsZero() && now.Sub(st.lastFetchTime) < minFetchInterval {
		return false
	}
	st.prune(now)
	return len(st.callTimestamps) < maxCallsPerWindow
}

// Admit records a fetch if the limiter allows it. Returns false (and records
// nothing) when the call must be skipped.
func (rl *RateLimiter) Admit(kind models.AssetKind) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st := rl.state(kind)
	now := rl.now()
	if !st.lastFetchTime.IsZero() && now.Sub(st.lastFetchTime) < minFetchInterval {
		return false
	}
	st.prune(now)
	if len(st.callTimestamps) >= maxCallsPerWindow {
		return false
	}

	st.lastFetchTime = now
	st.callTimestamps = append(st.callTimestamps, now)
	return true
}
