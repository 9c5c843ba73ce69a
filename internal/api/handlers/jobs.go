// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/batch"
	"github.com/autobrr/torboxd/internal/models"
)

type jobSnapshot interface {
	Jobs(kind models.AssetKind) []models.Job
	Job(kind models.AssetKind, id int) (models.Job, bool)
}

type jobPoller interface {
	TryFetch(ctx context.Context, kind models.AssetKind, bypassCache bool) ([]models.Job, error)
}

type bulkProcessor interface {
	ResolveLinks(ctx context.Context, targets []batch.Target) ([]batch.ResolvedLink, error)
	DeleteJobs(ctx context.Context, targets []batch.Target) batch.DeleteResult
}

type jobClient interface {
	ControlJob(ctx context.Context, kind models.AssetKind, jobID int, operation string) error
}

type JobsHandler struct {
	snapshot  jobSnapshot
	poller    jobPoller
	processor bulkProcessor
	client    jobClient
}

func NewJobsHandler(snapshot jobSnapshot, poller jobPoller, processor bulkProcessor, client jobClient) *JobsHandler {
	return &JobsHandler{
		snapshot:  snapshot,
		poller:    poller,
		processor: processor,
		client:    client,
	}
}

func (h *JobsHandler) Routes(r chi.Router) {
	r.Get("/", h.ListAll)
	r.Post("/refresh", h.Refresh)
	r.Post("/bulk/download", h.BulkDownload)
	r.Post("/bulk/delete", h.BulkDelete)
	r.Route("/{assetKind}", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{jobID}", h.Get)
		r.Post("/{jobID}/control", h.Control)
	})
}

// ListAll returns the current snapshot for every asset kind.
func (h *JobsHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	out := make(map[models.AssetKind][]models.Job, len(models.AssetKinds))
	for _, kind := range models.AssetKinds {
		out[kind] = h.snapshot.Jobs(kind)
	}
	RespondJSON(w, http.StatusOK, out)
}

func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseAssetKind(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, h.snapshot.Jobs(kind))
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseAssetKind(w, r)
	if !ok {
		return
	}
	jobID, ok := ParseJobID(w, r)
	if !ok {
		return
	}

	job, found := h.snapshot.Job(kind, jobID)
	if !found {
		RespondError(w, http.StatusNotFound, "Job not found")
		return
	}
	RespondJSON(w, http.StatusOK, job)
}

// Refresh forces a fetch for every asset kind, still subject to the rate
// limiter. Kinds the limiter rejects simply keep their current snapshot.
func (h *JobsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	for _, kind := range models.AssetKinds {
		if _, err := h.poller.TryFetch(r.Context(), kind, true); err != nil {
			log.Warn().Err(err).Str("assetKind", string(kind)).Msg("manual refresh failed")
		}
	}
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// Control proxies a single control operation (stop_seeding, force_start,
// pause, resume) to the remote API.
func (h *JobsHandler) Control(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseAssetKind(w, r)
	if !ok {
		return
	}
	jobID, ok := ParseJobID(w, r)
	if !ok {
		return
	}

	var req struct {
		Operation string `json:"operation"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Operation == "" {
		RespondError(w, http.StatusBadRequest, "Operation is required")
		return
	}

	if err := h.client.ControlJob(r.Context(), kind, jobID, req.Operation); err != nil {
		log.Error().Err(err).Int("jobID", jobID).Str("operation", req.Operation).Msg("Control operation failed")
		RespondError(w, http.StatusBadGateway, "Control operation failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type bulkRequest struct {
	Targets []batch.Target `json:"targets"`
}

// BulkDownload resolves download links for the selected jobs and files.
// Partial results are returned with a 502 when resolution aborts part way.
func (h *JobsHandler) BulkDownload(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Targets) == 0 {
		RespondError(w, http.StatusBadRequest, "No targets selected")
		return
	}

	links, err := h.processor.ResolveLinks(r.Context(), req.Targets)
	if err != nil {
		RespondJSON(w, http.StatusBadGateway, map[string]any{
			"links": links,
			"error": "Some links could not be resolved",
		})
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"links": links})
}

// BulkDelete deletes the parent jobs of every selected target. File-level
// selections collapse to their job before deletion.
func (h *JobsHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Targets) == 0 {
		RespondError(w, http.StatusBadRequest, "No targets selected")
		return
	}

	result := h.processor.DeleteJobs(r.Context(), batch.ExpandFileTargets(req.Targets))

	status := http.StatusOK
	if result.Succeeded < result.Total {
		status = http.StatusMultiStatus
	}
	RespondJSON(w, status, result)
}
