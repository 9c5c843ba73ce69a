// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package batch runs bulk operations over many jobs in small concurrent
// chunks, so one user action never floods the remote API.
package batch

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/torboxd/internal/models"
)

// chunkSize bounds how many jobs are in flight at once during a bulk
// operation.
const chunkSize = 3

// Target identifies one job (or one file of a job) in a bulk request.
type Target struct {
	Kind   models.AssetKind `json:"assetKind"`
	JobID  int              `json:"jobId"`
	FileID *int             `json:"fileId,omitempty"`
	Name   string           `json:"name"`
}

type linkResolver interface {
	Resolve(ctx context.Context, kind models.AssetKind, jobID int, fileID *int, name string) (string, bool, error)
}

type jobDeleter interface {
	DeleteJob(ctx context.Context, kind models.AssetKind, jobID int) error
}

type snapshotRemover interface {
	Remove(kind models.AssetKind, ids []int)
}

// Processor executes bulk downloads and deletes chunk by chunk.
type Processor struct {
	resolver linkResolver
	deleter  jobDeleter
	snapshot snapshotRemover
}

func NewProcessor(resolver linkResolver, deleter jobDeleter, snapshot snapshotRemover) *Processor {
	return &Processor{
		resolver: resolver,
		deleter:  deleter,
		snapshot: snapshot,
	}
}

// ResolvedLink pairs a target with its download URL.
type ResolvedLink struct {
	Target Target `json:"target"`
	URL    string `json:"url"`
	Cached bool   `json:"cached"`
}

// ResolveLinks resolves download URLs for every target, chunkSize at a time.
// Any failure inside a chunk aborts the remaining chunks: the links gathered
// so far are returned alongside the error so callers can still use them.
func (p *Processor) ResolveLinks(ctx context.Context, targets []Target) ([]ResolvedLink, error) {
	links := make([]ResolvedLink, 0, len(targets))
	var mu sync.Mutex

	for start := 0; start < len(targets); start += chunkSize {
		end := min(start+chunkSize, len(targets))

		g, gctx := errgroup.WithContext(ctx)
		for _, target := range targets[start:end] {
			g.Go(func() error {
				url, cached, err := p.resolver.Resolve(gctx, target.Kind, target.JobID, target.FileID, target.Name)
				if err != nil {
					return errors.Wrapf(err, "resolve link for job %d", target.JobID)
				}
				mu.Lock()
				links = append(links, ResolvedLink{Target: target, URL: url, Cached: cached})
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			log.Error().Err(err).Int("resolved", len(links)).Int("total", len(targets)).Msg("bulk link resolution aborted")
			return links, err
		}
	}

	return links, nil
}

// DeleteResult reports the outcome of a bulk delete.
type DeleteResult struct {
	Succeeded    int   `json:"succeeded"`
	Total        int   `json:"total"`
	SucceededIDs []int `json:"succeededIds"`
}

// DeleteJobs deletes every target, chunkSize at a time. Unlike link
// resolution, a failed delete does not stop the rest: each job gets its
// attempt and the result carries the partial counts. Confirmed deletes are
// dropped from the snapshot immediately.
func (p *Processor) DeleteJobs(ctx context.Context, targets []Target) DeleteResult {
	result := DeleteResult{Total: len(targets)}
	succeededByKind := make(map[models.AssetKind][]int)
	var mu sync.Mutex

	for start := 0; start < len(targets); start += chunkSize {
		end := min(start+chunkSize, len(targets))

		var wg sync.WaitGroup
		for _, target := range targets[start:end] {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := p.deleter.DeleteJob(ctx, target.Kind, target.JobID); err != nil {
					log.Error().Err(err).Int("jobID", target.JobID).Str("assetKind", string(target.Kind)).Msg("bulk delete: job failed")
					return
				}
				mu.Lock()
				result.Succeeded++
				result.SucceededIDs = append(result.SucceededIDs, target.JobID)
				succeededByKind[target.Kind] = append(succeededByKind[target.Kind], target.JobID)
				mu.Unlock()
			}()
		}
		wg.Wait()
	}

	for kind, ids := range succeededByKind {
		p.snapshot.Remove(kind, ids)
	}

	if result.Succeeded < result.Total {
		log.Warn().Int("succeeded", result.Succeeded).Int("total", result.Total).Msg("bulk delete completed with failures")
	}

	return result
}

// ExpandFileTargets collapses file-level selections to their parent jobs for
// operations that only make sense at job granularity (delete). Duplicate
// parents are removed while preserving first-seen order.
func ExpandFileTargets(targets []Target) []Target {
	seen := make(map[string]struct{}, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		t.FileID = nil
		key := string(t.Kind) + ":" + strconv.Itoa(t.JobID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
