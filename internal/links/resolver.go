// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package links resolves download URLs for jobs and files, deduplicating
// against recent history so repeated requests inside the freshness window
// never hit the remote API.
package links

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/models"
)

// FreshnessWindow is how long a generated link is reused before a new one is
// requested.
const FreshnessWindow = 3 * time.Hour

type linkRequester interface {
	RequestDownloadLink(ctx context.Context, kind models.AssetKind, jobID int, fileID *int) (string, error)
}

type historyStore interface {
	FindFresh(ctx context.Context, jobID int, fileID *int, kind models.AssetKind, cutoff time.Time) (*models.DownloadHistoryEntry, error)
	Add(ctx context.Context, entry *models.DownloadHistoryEntry) error
}

// Resolver answers "give me a download URL for this job/file", serving from
// history when a fresh link exists. A nil fileID means the whole-job zip
// link, which is keyed separately from any single file.
type Resolver struct {
	client  linkRequester
	history historyStore
	now     func() time.Time
}

func NewResolver(client linkRequester, history historyStore) *Resolver {
	return &Resolver{
		client:  client,
		history: history,
		now:     time.Now,
	}
}

// Resolve returns a usable download URL and whether it came from history.
// History write failures are logged but never fail the resolution; the caller
// already has a working link.
func (r *Resolver) Resolve(ctx context.Context, kind models.AssetKind, jobID int, fileID *int, name string) (string, bool, error) {
	cutoff := r.now().Add(-FreshnessWindow)

	entry, err := r.history.FindFresh(ctx, jobID, fileID, kind, cutoff)
	if err != nil {
		log.Warn().Err(err).Int("jobID", jobID).Msg("history lookup failed, requesting fresh link")
	} else if entry != nil {
		log.Debug().Int("jobID", jobID).Str("assetKind", string(kind)).Msg("reusing fresh download link")
		return entry.URL, true, nil
	}

	url, err := r.client.RequestDownloadLink(ctx, kind, jobID, fileID)
	if err != nil {
		return "", false, err
	}

	if err := r.history.Add(ctx, &models.DownloadHistoryEntry{
		JobID:       jobID,
		FileID:      fileID,
		AssetKind:   kind,
		URL:         url,
		Name:        name,
		GeneratedAt: r.now(),
	}); err != nil {
		log.Warn().Err(err).Int("jobID", jobID).Msg("failed to record download link")
	}

	return url, false, nil
}
