// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package torbox is the client for the remote download-management API. All
// calls go through the retrying executor; callers never see raw transport
// errors for transient failures below the retry ceiling.
package torbox

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/models"
)

const (
	// DefaultEndpoint is the hosted API. Self-hosters override it in config.
	DefaultEndpoint = "https://api.torbox.app"

	apiBase = "/v1/api"
)

type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	clientVersion string
	opts          ExecuteOptions
}

func NewClient(endpoint, apiKey, clientVersion string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       endpoint,
		apiKey:        apiKey,
		clientVersion: clientVersion,
		opts:          DefaultExecuteOptions(),
	}
}

// listPath/controlPath/downloadPath map an asset kind to its endpoint family.
func listPath(kind models.AssetKind) string {
	switch kind {
	case models.AssetKindUsenet:
		return apiBase + "/usenet/mylist"
	case models.AssetKindWebDL:
		return apiBase + "/webdl/mylist"
	default:
		return apiBase + "/torrents/mylist"
	}
}

func controlPath(kind models.AssetKind) string {
	switch kind {
	case models.AssetKindUsenet:
		return apiBase + "/usenet/controlusenetdownload"
	case models.AssetKindWebDL:
		return apiBase + "/webdl/controlwebdownload"
	default:
		return apiBase + "/torrents/controltorrent"
	}
}

func downloadPath(kind models.AssetKind) string {
	switch kind {
	case models.AssetKindUsenet:
		return apiBase + "/usenet/requestdl"
	case models.AssetKindWebDL:
		return apiBase + "/webdl/requestdl"
	default:
		return apiBase + "/torrents/requestdl"
	}
}

func idField(kind models.AssetKind) string {
	switch kind {
	case models.AssetKindUsenet:
		return "usenet_id"
	case models.AssetKindWebDL:
		return "web_id"
	default:
		return "torrent_id"
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, bypassCache bool) (*APIResponse, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var buf *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(raw)
	} else {
		buf = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Client-Version", c.clientVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bypassCache {
		req.Header.Set("Bypass-Cache", "true")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s %s failed", method, path)
	}
	defer res.Body.Close()

	var payload APIResponse
	decodeErr := json.NewDecoder(res.Body).Decode(&payload)

	// Non-2xx with a decodable envelope still goes through the permanent
	// checkers; an undecodable body is a transport-level (transient) failure.
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		if decodeErr != nil {
			return nil, errors.Errorf("unexpected status %d from %s", res.StatusCode, path)
		}
		payload.Success = false
		return &payload, nil
	}
	if decodeErr != nil {
		return nil, errors.Wrapf(decodeErr, "invalid response from %s", path)
	}

	return &payload, nil
}

// ListJobs fetches the current job list for one asset kind. bypassCache asks
// the API for fresh (uncached) data.
func (c *Client) ListJobs(ctx context.Context, kind models.AssetKind, bypassCache bool) ([]models.Job, error) {
	resp, err := Execute(ctx, func(ctx context.Context) (*APIResponse, error) {
		return c.do(ctx, http.MethodGet, listPath(kind), nil, nil, bypassCache)
	}, c.opts)
	if err != nil {
		return nil, err
	}

	var jobs []models.Job
	if err := json.Unmarshal(resp.Data, &jobs); err != nil {
		return nil, errors.Wrap(err, "invalid job list payload")
	}
	for i := range jobs {
		jobs[i].AssetKind = kind
	}
	return jobs, nil
}

// ControlJob issues a control operation (stop_seeding, reannounce, delete)
// against one job.
func (c *Client) ControlJob(ctx context.Context, kind models.AssetKind, jobID int, operation string) error {
	body := map[string]any{
		idField(kind): jobID,
		"operation":   operation,
	}
	_, err := Execute(ctx, func(ctx context.Context) (*APIResponse, error) {
		return c.do(ctx, http.MethodPost, controlPath(kind), nil, body, false)
	}, c.opts)
	return err
}

// DeleteJob removes one job from the remote service.
func (c *Client) DeleteJob(ctx context.Context, kind models.AssetKind, jobID int) error {
	return c.ControlJob(ctx, kind, jobID, "delete")
}

// ControlQueued operates on a not-yet-started queued download (start,
// force_start).
func (c *Client) ControlQueued(ctx context.Context, kind models.AssetKind, queuedID int, operation string) error {
	body := map[string]any{
		"queued_id": queuedID,
		"operation": operation,
		"type":      string(kind),
	}
	_, err := Execute(ctx, func(ctx context.Context) (*APIResponse, error) {
		return c.do(ctx, http.MethodPost, apiBase+"/queued/controlqueueddownload", nil, body, false)
	}, c.opts)
	return err
}

// RequestDownloadLink resolves a downloadable URL for a job. A nil fileID
// requests the whole job as a zip.
func (c *Client) RequestDownloadLink(ctx context.Context, kind models.AssetKind, jobID int, fileID *int) (string, error) {
	query := url.Values{}
	query.Set(idField(kind), strconv.Itoa(jobID))
	if fileID != nil {
		query.Set("file_id", strconv.Itoa(*fileID))
	} else {
		query.Set("zip_link", "true")
	}

	resp, err := Execute(ctx, func(ctx context.Context) (*APIResponse, error) {
		return c.do(ctx, http.MethodGet, downloadPath(kind), query, nil, false)
	}, c.opts)
	if err != nil {
		return "", err
	}

	link := extractDownloadURL(resp)
	if link == "" {
		return "", errors.New("response contained no download link")
	}
	return link, nil
}

// CreateTorrent re-adds a torrent from a magnet link. Used when restoring
// archived downloads.
func (c *Client) CreateTorrent(ctx context.Context, magnet, name string) error {
	body := map[string]any{
		"magnet":    magnet,
		"name":      name,
		"seed":      3,
		"allow_zip": true,
	}
	_, err := Execute(ctx, func(ctx context.Context) (*APIResponse, error) {
		return c.do(ctx, http.MethodPost, apiBase+"/torrents/createtorrent", nil, body, false)
	}, c.opts)
	if err != nil {
		log.Debug().Err(err).Str("name", name).Msg("createtorrent failed")
	}
	return err
}

// extractDownloadURL handles the two shapes link endpoints use: torrents and
// webdl return the URL in data, usenet in download_url.
func extractDownloadURL(resp *APIResponse) string {
	if resp.DownloadURL != "" {
		return resp.DownloadURL
	}
	var link string
	if err := json.Unmarshal(resp.Data, &link); err == nil {
		return link
	}
	return ""
}
