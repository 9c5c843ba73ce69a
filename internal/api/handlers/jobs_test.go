// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/torboxd/internal/batch"
	"github.com/autobrr/torboxd/internal/models"
)

type stubSnapshot struct {
	jobs map[models.AssetKind][]models.Job
}

func (s *stubSnapshot) Jobs(kind models.AssetKind) []models.Job {
	return s.jobs[kind]
}

func (s *stubSnapshot) Job(kind models.AssetKind, id int) (models.Job, bool) {
	for _, job := range s.jobs[kind] {
		if job.ID == id {
			return job, true
		}
	}
	return models.Job{}, false
}

type stubPoller struct {
	fetches int
}

func (s *stubPoller) TryFetch(ctx context.Context, kind models.AssetKind, bypassCache bool) ([]models.Job, error) {
	s.fetches++
	return nil, nil
}

type stubProcessor struct {
	deleteResult  batch.DeleteResult
	resolveErr    error
	resolvedLinks []batch.ResolvedLink
	gotTargets    []batch.Target
}

func (s *stubProcessor) ResolveLinks(ctx context.Context, targets []batch.Target) ([]batch.ResolvedLink, error) {
	s.gotTargets = targets
	return s.resolvedLinks, s.resolveErr
}

func (s *stubProcessor) DeleteJobs(ctx context.Context, targets []batch.Target) batch.DeleteResult {
	s.gotTargets = targets
	return s.deleteResult
}

type stubClient struct {
	controlErr error
	operations []string
}

func (s *stubClient) ControlJob(ctx context.Context, kind models.AssetKind, jobID int, operation string) error {
	if s.controlErr != nil {
		return s.controlErr
	}
	s.operations = append(s.operations, operation)
	return nil
}

func newJobsRouter(h *JobsHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/jobs", h.Routes)
	return r
}

func TestListJobsByKind(t *testing.T) {
	t.Parallel()

	snapshot := &stubSnapshot{jobs: map[models.AssetKind][]models.Job{
		models.AssetKindTorrent: {{ID: 1, Name: "iso"}},
	}}
	h := NewJobsHandler(snapshot, &stubPoller{}, &stubProcessor{}, &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/torrents/", nil)
	rec := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "iso", jobs[0].Name)
}

func TestListJobsRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	h := NewJobsHandler(&stubSnapshot{}, &stubPoller{}, &stubProcessor{}, &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/floppies/", nil)
	rec := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	h := NewJobsHandler(&stubSnapshot{}, &stubPoller{}, &stubProcessor{}, &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/torrents/99", nil)
	rec := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlJob(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	h := NewJobsHandler(&stubSnapshot{}, &stubPoller{}, &stubProcessor{}, client)

	body := bytes.NewBufferString(`{"operation":"stop_seeding"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/torrents/5/control", body)
	rec := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"stop_seeding"}, client.operations)
}

func TestControlJobMissingOperation(t *testing.T) {
	t.Parallel()

	h := NewJobsHandler(&stubSnapshot{}, &stubPoller{}, &stubProcessor{}, &stubClient{})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/torrents/5/control", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkDeletePartialFailureReturns207(t *testing.T) {
	t.Parallel()

	processor := &stubProcessor{deleteResult: batch.DeleteResult{
		Succeeded:    4,
		Total:        5,
		SucceededIDs: []int{1, 2, 4, 5},
	}}
	h := NewJobsHandler(&stubSnapshot{}, &stubPoller{}, processor, &stubClient{})

	fileID := 3
	payload, err := json.Marshal(map[string]any{"targets": []batch.Target{
		{Kind: models.AssetKindTorrent, JobID: 1},
		{Kind: models.AssetKindTorrent, JobID: 1, FileID: &fileID},
		{Kind: models.AssetKindTorrent, JobID: 2},
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/bulk/delete", bytes.NewBuffer(payload))
	rec := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusMultiStatus, rec.Code)

	var result batch.DeleteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 4, result.Succeeded)
	assert.Equal(t, 5, result.Total)

	// File selections collapsed to their parent job before deletion.
	require.Len(t, processor.gotTargets, 2)
	for _, target := range processor.gotTargets {
		assert.Nil(t, target.FileID)
	}
}

func TestBulkDownloadAbortReturnsPartialLinks(t *testing.T) {
	t.Parallel()

	processor := &stubProcessor{
		resolvedLinks: []batch.ResolvedLink{{URL: "https://cdn.example/1"}},
		resolveErr:    errors.New("chunk failed"),
	}
	h := NewJobsHandler(&stubSnapshot{}, &stubPoller{}, processor, &stubClient{})

	payload := `{"targets":[{"assetKind":"torrents","jobId":1},{"assetKind":"torrents","jobId":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/bulk/download", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Links []batch.ResolvedLink `json:"links"`
		Error string               `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Links, 1)
	assert.NotEmpty(t, body.Error)
}

func TestBulkDownloadEmptyTargets(t *testing.T) {
	t.Parallel()

	h := NewJobsHandler(&stubSnapshot{}, &stubPoller{}, &stubProcessor{}, &stubClient{})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/bulk/download", bytes.NewBufferString(`{"targets":[]}`))
	rec := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshFetchesEveryKind(t *testing.T) {
	t.Parallel()

	poller := &stubPoller{}
	h := NewJobsHandler(&stubSnapshot{}, poller, &stubProcessor{}, &stubClient{})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/refresh", nil)
	rec := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, len(models.AssetKinds), poller.fetches)
}
