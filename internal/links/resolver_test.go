// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package links

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/torboxd/internal/models"
)

type fakeRequester struct {
	calls int
	url   string
	err   error
}

func (f *fakeRequester) RequestDownloadLink(ctx context.Context, kind models.AssetKind, jobID int, fileID *int) (string, error) {
	f.calls++
	return f.url, f.err
}

type memoryHistory struct {
	entries []*models.DownloadHistoryEntry
}

func (m *memoryHistory) FindFresh(ctx context.Context, jobID int, fileID *int, kind models.AssetKind, cutoff time.Time) (*models.DownloadHistoryEntry, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.JobID != jobID || e.AssetKind != kind {
			continue
		}
		if (e.FileID == nil) != (fileID == nil) {
			continue
		}
		if e.FileID != nil && *e.FileID != *fileID {
			continue
		}
		if e.GeneratedAt.After(cutoff) {
			return e, nil
		}
	}
	return nil, nil
}

func (m *memoryHistory) Add(ctx context.Context, entry *models.DownloadHistoryEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func TestResolveRequestsAndRecordsNewLink(t *testing.T) {
	t.Parallel()

	requester := &fakeRequester{url: "https://cdn.example/file.mkv"}
	history := &memoryHistory{}
	r := NewResolver(requester, history)

	url, cached, err := r.Resolve(context.Background(), models.AssetKindTorrent, 42, nil, "file.mkv")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "https://cdn.example/file.mkv", url)
	require.Len(t, history.entries, 1)
	assert.Equal(t, 42, history.entries[0].JobID)
}

func TestResolveReusesFreshLinkWithoutRemoteCall(t *testing.T) {
	t.Parallel()

	requester := &fakeRequester{url: "https://cdn.example/file.mkv"}
	history := &memoryHistory{}
	r := NewResolver(requester, history)

	_, _, err := r.Resolve(context.Background(), models.AssetKindTorrent, 42, nil, "file.mkv")
	require.NoError(t, err)

	url, cached, err := r.Resolve(context.Background(), models.AssetKindTorrent, 42, nil, "file.mkv")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "https://cdn.example/file.mkv", url)
	assert.Equal(t, 1, requester.calls, "fresh link must be served from history")
}

func TestResolveRequestsAgainAfterExpiry(t *testing.T) {
	t.Parallel()

	requester := &fakeRequester{url: "https://cdn.example/file.mkv"}
	history := &memoryHistory{}
	r := NewResolver(requester, history)

	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	now := start
	r.now = func() time.Time { return now }

	_, _, err := r.Resolve(context.Background(), models.AssetKindTorrent, 42, nil, "file.mkv")
	require.NoError(t, err)

	now = start.Add(FreshnessWindow + time.Minute)
	_, cached, err := r.Resolve(context.Background(), models.AssetKindTorrent, 42, nil, "file.mkv")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, requester.calls)
}

func TestResolveKeysZipSeparatelyFromFiles(t *testing.T) {
	t.Parallel()

	requester := &fakeRequester{url: "https://cdn.example/dl"}
	history := &memoryHistory{}
	r := NewResolver(requester, history)

	fileID := 7
	_, _, err := r.Resolve(context.Background(), models.AssetKindTorrent, 42, &fileID, "file.mkv")
	require.NoError(t, err)

	// Whole-job zip for the same job is a distinct cache key.
	_, cached, err := r.Resolve(context.Background(), models.AssetKindTorrent, 42, nil, "job.zip")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, requester.calls)
}

func TestResolvePropagatesRequestErrors(t *testing.T) {
	t.Parallel()

	requester := &fakeRequester{err: assert.AnError}
	r := NewResolver(requester, &memoryHistory{})

	_, _, err := r.Resolve(context.Background(), models.AssetKindUsenet, 1, nil, "x")
	require.Error(t, err)
}
