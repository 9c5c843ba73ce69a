// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"sort"
	"strings"
	"time"
)

// AssetKind identifies which remote download subsystem a job belongs to.
type AssetKind string

const (
	AssetKindTorrent AssetKind = "torrents"
	AssetKindUsenet  AssetKind = "usenet"
	AssetKindWebDL   AssetKind = "webdl"
)

// AssetKinds lists every kind the poller tracks.
var AssetKinds = []AssetKind{AssetKindTorrent, AssetKindUsenet, AssetKindWebDL}

// JobStatus is the derived lifecycle status of a job. The remote API never
// sends it directly; it is computed once per snapshot refresh from the raw
// fields below.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusDownloading JobStatus = "downloading"
	StatusUploading   JobStatus = "uploading"
	StatusSeeding     JobStatus = "seeding"
	StatusCompleted   JobStatus = "completed"
	StatusStalled     JobStatus = "stalled"
	StatusFailed      JobStatus = "failed"
	StatusInactive    JobStatus = "inactive"
)

// JobFile is one file inside a job.
type JobFile struct {
	ID   int    `json:"id"`
	Size int64  `json:"size"`
	Name string `json:"name"`
}

// Job mirrors one remote asset. The engine never creates or destroys jobs,
// only reflects what the last successful poll returned.
type Job struct {
	ID               int       `json:"id"`
	Hash             string    `json:"hash,omitempty"`
	Name             string    `json:"name"`
	AssetKind        AssetKind `json:"assetKind"`
	Active           bool      `json:"active"`
	DownloadState    string    `json:"download_state"`
	DownloadFinished bool      `json:"download_finished"`
	DownloadPresent  bool      `json:"download_present"`
	Progress         float64   `json:"progress"`
	Ratio            float64   `json:"ratio,omitempty"`
	Size             int64     `json:"size"`
	Added            time.Time `json:"added"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	CachedAt         time.Time `json:"cached_at"`
	Files            []JobFile `json:"files,omitempty"`
	Status           JobStatus `json:"status"`
}

var stalledStates = map[string]struct{}{
	"stalled":            {},
	"stalleddl":          {},
	"stalled (no seeds)": {},
}

// IsStalledState reports whether a raw download state counts as stalled.
// Matching is case-insensitive, same as the dashboard's status filters.
func IsStalledState(state string) bool {
	_, ok := stalledStates[strings.ToLower(state)]
	return ok
}

// IsQueued reports the derived queued state: no download state yet, not
// finished, not active.
func (j *Job) IsQueued() bool {
	return j.DownloadState == "" && !j.DownloadFinished && !j.Active
}

// ClassifyStatus computes the closed status enum for a job. Pure function,
// evaluated once per snapshot publish.
func ClassifyStatus(j *Job) JobStatus {
	switch {
	case j.IsQueued():
		return StatusQueued
	case IsStalledState(j.DownloadState):
		return StatusStalled
	case strings.EqualFold(j.DownloadState, "failed") || strings.EqualFold(j.DownloadState, "error"):
		return StatusFailed
	case j.DownloadFinished && !j.Active:
		return StatusCompleted
	case j.DownloadFinished && j.Active && j.AssetKind == AssetKindTorrent:
		return StatusSeeding
	case strings.EqualFold(j.DownloadState, "uploading"):
		return StatusUploading
	case j.Active && !j.DownloadFinished:
		return StatusDownloading
	default:
		return StatusInactive
	}
}

// SortJobs orders jobs newest-first by added time, matching the dashboard's
// default ordering.
func SortJobs(jobs []Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].Added.After(jobs[k].Added)
	})
}
