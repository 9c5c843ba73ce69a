// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package batch

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/torboxd/internal/models"
)

type fakeResolver struct {
	mu      sync.Mutex
	calls   int
	failIDs map[int]struct{}
}

func (f *fakeResolver) Resolve(ctx context.Context, kind models.AssetKind, jobID int, fileID *int, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, fail := f.failIDs[jobID]; fail {
		return "", false, errors.New("link generation failed")
	}
	return "https://cdn.example/job", false, nil
}

type fakeDeleter struct {
	mu      sync.Mutex
	deleted []int
	failIDs map[int]struct{}
}

func (f *fakeDeleter) DeleteJob(ctx context.Context, kind models.AssetKind, jobID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, fail := f.failIDs[jobID]; fail {
		return errors.New("remote delete failed")
	}
	f.deleted = append(f.deleted, jobID)
	return nil
}

type fakeSnapshot struct {
	mu      sync.Mutex
	removed map[models.AssetKind][]int
}

func (f *fakeSnapshot) Remove(kind models.AssetKind, ids []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removed == nil {
		f.removed = make(map[models.AssetKind][]int)
	}
	f.removed[kind] = append(f.removed[kind], ids...)
}

func targets(ids ...int) []Target {
	out := make([]Target, 0, len(ids))
	for _, id := range ids {
		out = append(out, Target{Kind: models.AssetKindTorrent, JobID: id})
	}
	return out
}

func TestResolveLinksAllSucceed(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	p := NewProcessor(resolver, &fakeDeleter{}, &fakeSnapshot{})

	links, err := p.ResolveLinks(context.Background(), targets(1, 2, 3, 4, 5))
	require.NoError(t, err)
	assert.Len(t, links, 5)
	assert.Equal(t, 5, resolver.calls)
}

func TestResolveLinksAbortsRemainingChunksOnFailure(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{failIDs: map[int]struct{}{2: {}}}
	p := NewProcessor(resolver, &fakeDeleter{}, &fakeSnapshot{})

	// Failure in the first chunk of three: jobs 4 and 5 are never attempted.
	links, err := p.ResolveLinks(context.Background(), targets(1, 2, 3, 4, 5))
	require.Error(t, err)
	assert.LessOrEqual(t, resolver.calls, 3)
	assert.LessOrEqual(t, len(links), 2)
}

func TestDeleteJobsContinuesPastFailures(t *testing.T) {
	t.Parallel()

	deleter := &fakeDeleter{failIDs: map[int]struct{}{3: {}}}
	snapshot := &fakeSnapshot{}
	p := NewProcessor(&fakeResolver{}, deleter, snapshot)

	result := p.DeleteJobs(context.Background(), targets(1, 2, 3, 4, 5))

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 4, result.Succeeded)
	assert.Len(t, result.SucceededIDs, 4)
	assert.NotContains(t, result.SucceededIDs, 3)

	assert.ElementsMatch(t, []int{1, 2, 4, 5}, snapshot.removed[models.AssetKindTorrent],
		"only confirmed deletes leave the snapshot")
}

func TestDeleteJobsAllSucceed(t *testing.T) {
	t.Parallel()

	deleter := &fakeDeleter{}
	p := NewProcessor(&fakeResolver{}, deleter, &fakeSnapshot{})

	result := p.DeleteJobs(context.Background(), targets(1, 2, 3, 4))
	assert.Equal(t, 4, result.Succeeded)
	assert.Equal(t, 4, result.Total)
}

func TestExpandFileTargets(t *testing.T) {
	t.Parallel()

	seven := 7
	eight := 8
	in := []Target{
		{Kind: models.AssetKindTorrent, JobID: 1, FileID: &seven},
		{Kind: models.AssetKindTorrent, JobID: 1, FileID: &eight},
		{Kind: models.AssetKindTorrent, JobID: 2},
		{Kind: models.AssetKindUsenet, JobID: 1},
	}

	out := ExpandFileTargets(in)
	require.Len(t, out, 3)
	for _, target := range out {
		assert.Nil(t, target.FileID)
	}
	assert.Equal(t, 1, out[0].JobID)
	assert.Equal(t, 2, out[1].JobID)
	assert.Equal(t, models.AssetKindUsenet, out[2].Kind)
}
