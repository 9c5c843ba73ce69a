// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jobsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/torboxd/internal/models"
)

type fakeAPIClient struct {
	mu sync.Mutex

	jobs    map[models.AssetKind][]models.Job
	listErr error
	// blockList, when set, makes ListJobs wait until released.
	blockList chan struct{}

	controlled []int
	controlErr error
}

func (c *fakeAPIClient) ListJobs(ctx context.Context, kind models.AssetKind, bypassCache bool) ([]models.Job, error) {
	c.mu.Lock()
	block := c.blockList
	c.blockList = nil
	c.mu.Unlock()

	if block != nil {
		<-block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]models.Job, len(c.jobs[kind]))
	copy(out, c.jobs[kind])
	return out, nil
}

func (c *fakeAPIClient) ControlQueued(ctx context.Context, kind models.AssetKind, queuedID int, operation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controlErr != nil {
		return c.controlErr
	}
	c.controlled = append(c.controlled, queuedID)
	return nil
}

func (c *fakeAPIClient) controlledIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.controlled))
	copy(out, c.controlled)
	return out
}

type fakeRules struct {
	rules []*models.AutomationRule
}

func (f *fakeRules) List(ctx context.Context) ([]*models.AutomationRule, error) {
	return f.rules, nil
}

type fakeSettings struct {
	settings models.AutoStartSettings
}

func (f *fakeSettings) GetAutoStart(ctx context.Context) (*models.AutoStartSettings, error) {
	s := f.settings
	return &s, nil
}

func newTestPoller(client *fakeAPIClient, settings *fakeSettings, clock *fakeClock) *Poller {
	p := NewPoller(DefaultConfig(), client, NewSnapshot(), &fakeRules{}, settings, nil)
	p.now = clock.Now
	p.limiter.now = clock.Now
	return p
}

func TestTryFetchPublishesSnapshot(t *testing.T) {
	t.Parallel()

	client := &fakeAPIClient{jobs: map[models.AssetKind][]models.Job{
		models.AssetKindTorrent: {{ID: 1, Name: "iso", Active: true}},
	}}
	p := newTestPoller(client, &fakeSettings{}, newFakeClock())

	jobs, err := p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	stored := p.snapshot.Jobs(models.AssetKindTorrent)
	require.Len(t, stored, 1)
	assert.Equal(t, models.StatusDownloading, stored[0].Status)
}

func TestTryFetchRejectedByLimiterIsNoop(t *testing.T) {
	t.Parallel()

	client := &fakeAPIClient{jobs: map[models.AssetKind][]models.Job{
		models.AssetKindTorrent: {{ID: 1, Name: "iso"}},
	}}
	p := newTestPoller(client, &fakeSettings{}, newFakeClock())

	_, err := p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)

	// Inside the 2s floor: no call, no error, snapshot untouched.
	client.mu.Lock()
	client.jobs[models.AssetKindTorrent] = nil
	client.mu.Unlock()

	jobs, err := p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)
	assert.Nil(t, jobs)
	assert.Len(t, p.snapshot.Jobs(models.AssetKindTorrent), 1)
}

func TestTryFetchDiscardsStaleResponse(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := &fakeAPIClient{jobs: map[models.AssetKind][]models.Job{
		models.AssetKindTorrent: {{ID: 1, Name: "stale view"}},
	}}
	p := newTestPoller(client, &fakeSettings{}, clock)

	release := make(chan struct{})
	client.blockList = release

	firstDone := make(chan []models.Job, 1)
	go func() {
		jobs, _ := p.TryFetch(context.Background(), models.AssetKindTorrent, true)
		firstDone <- jobs
	}()

	// Wait for the first fetch to be in flight (it consumed blockList).
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.blockList == nil
	}, time.Second, time.Millisecond)

	// Second fetch starts later and completes first with newer data.
	clock.Advance(minFetchInterval)
	client.mu.Lock()
	client.jobs[models.AssetKindTorrent] = []models.Job{{ID: 2, Name: "fresh view"}}
	client.mu.Unlock()

	jobs, err := p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].ID)

	// Now the slow first fetch lands; its result must be discarded.
	close(release)
	first := <-firstDone
	assert.Nil(t, first)

	stored := p.snapshot.Jobs(models.AssetKindTorrent)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].ID, "older fetch must not overwrite newer data")
}

func TestAutoStartPicksOldestQueuedJob(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	client := &fakeAPIClient{jobs: map[models.AssetKind][]models.Job{
		models.AssetKindTorrent: {
			{ID: 10, Name: "newer queued", Added: base.Add(2 * time.Hour)},
			{ID: 11, Name: "older queued", Added: base},
			{ID: 12, Name: "running", Active: true, DownloadState: "downloading", Added: base.Add(time.Hour)},
		},
	}}
	settings := &fakeSettings{settings: models.AutoStartSettings{AutoStart: true, AutoStartLimit: 3}}
	p := newTestPoller(client, settings, newFakeClock())

	_, err := p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)

	assert.Equal(t, []int{11}, client.controlledIDs())
}

func TestAutoStartRespectsActiveLimit(t *testing.T) {
	t.Parallel()

	client := &fakeAPIClient{jobs: map[models.AssetKind][]models.Job{
		models.AssetKindTorrent: {
			{ID: 1, Active: true, DownloadState: "downloading"},
			{ID: 2, Active: true, DownloadState: "downloading"},
			{ID: 3},
		},
	}}
	settings := &fakeSettings{settings: models.AutoStartSettings{AutoStart: true, AutoStartLimit: 2}}
	p := newTestPoller(client, settings, newFakeClock())

	_, err := p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)

	assert.Empty(t, client.controlledIDs())
}

func TestAutoStartNeverRetriesSameJob(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := &fakeAPIClient{jobs: map[models.AssetKind][]models.Job{
		models.AssetKindTorrent: {{ID: 7, Name: "stuck in queue"}},
	}}
	settings := &fakeSettings{settings: models.AutoStartSettings{AutoStart: true, AutoStartLimit: 3}}
	p := newTestPoller(client, settings, clock)

	_, err := p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, client.controlledIDs())

	// Well past the 30s throttle, same job still queued: no second attempt.
	clock.Advance(time.Minute)
	_, err = p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, client.controlledIDs())
}

func TestAutoStartThrottled(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := &fakeAPIClient{jobs: map[models.AssetKind][]models.Job{
		models.AssetKindTorrent: {{ID: 7, Name: "queued"}},
	}}
	settings := &fakeSettings{settings: models.AutoStartSettings{AutoStart: true, AutoStartLimit: 3}}
	p := newTestPoller(client, settings, clock)

	_, err := p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)
	require.Len(t, client.controlledIDs(), 1)

	// Second queued job appears, but the check ran 2s ago: throttled.
	clock.Advance(minFetchInterval)
	client.mu.Lock()
	client.jobs[models.AssetKindTorrent] = append(client.jobs[models.AssetKindTorrent], models.Job{ID: 8, Name: "also queued"})
	client.mu.Unlock()

	_, err = p.TryFetch(context.Background(), models.AssetKindTorrent, true)
	require.NoError(t, err)
	assert.Len(t, client.controlledIDs(), 1)
}

func TestSetVisibleWakesCadence(t *testing.T) {
	t.Parallel()

	client := &fakeAPIClient{}
	p := newTestPoller(client, &fakeSettings{}, newFakeClock())

	p.SetVisible(context.Background(), true)

	interval, active := p.cadence(context.Background())
	assert.True(t, active)
	assert.Equal(t, p.cfg.ActiveInterval, interval)

	p.SetVisible(context.Background(), false)
	_, active = p.cadence(context.Background())
	assert.False(t, active, "no clients, no rules, no auto-start: polling suspends")
}

func TestCadenceWithEnabledRules(t *testing.T) {
	t.Parallel()

	client := &fakeAPIClient{}
	rules := &fakeRules{rules: []*models.AutomationRule{{ID: 1, Enabled: true}}}
	p := NewPoller(DefaultConfig(), client, NewSnapshot(), rules, &fakeSettings{}, nil)

	p.RefreshRuleState(context.Background())

	interval, active := p.cadence(context.Background())
	assert.True(t, active)
	assert.Equal(t, p.cfg.AutomationInterval, interval)
}
