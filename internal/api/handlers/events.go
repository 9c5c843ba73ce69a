// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/models"
)

const (
	eventConnected  = "connected"
	eventJobsUpdate = "jobs_update"
	eventHeartbeat  = "heartbeat"

	heartbeatInterval = 15 * time.Second
)

type eventSnapshot interface {
	Jobs(kind models.AssetKind) []models.Job
	Subscribe() chan models.AssetKind
	Unsubscribe(ch chan models.AssetKind)
}

type visibilitySink interface {
	SetVisible(ctx context.Context, visible bool)
}

// EventsHandler streams job snapshot updates over SSE. Attached clients are
// what makes the daemon "visible": the first connection switches the poller
// to its active cadence, the last disconnect drops it back to background
// mode.
type EventsHandler struct {
	snapshot eventSnapshot
	poller   visibilitySink

	mu      sync.Mutex
	clients int
}

type sseEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type jobsUpdatePayload struct {
	AssetKind models.AssetKind `json:"assetKind"`
	Jobs      []models.Job     `json:"jobs"`
	Timestamp int64            `json:"timestamp"`
}

func NewEventsHandler(snapshot eventSnapshot, poller visibilitySink) *EventsHandler {
	return &EventsHandler{
		snapshot: snapshot,
		poller:   poller,
	}
}

// HandleSSE holds the connection open and pushes a jobs_update event whenever
// the snapshot changes for any asset kind.
func (h *EventsHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	updates := h.snapshot.Subscribe()
	defer h.snapshot.Unsubscribe(updates)

	h.attach()
	defer h.detach()

	if err := h.sendEvent(w, flusher, sseEvent{
		Type: eventConnected,
		Data: map[string]any{"timestamp": time.Now().Unix()},
	}); err != nil {
		return
	}

	// Initial full state so the client does not wait for the next poll.
	for _, kind := range models.AssetKinds {
		if err := h.sendUpdate(w, flusher, kind); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case kind := <-updates:
			if err := h.sendUpdate(w, flusher, kind); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := h.sendEvent(w, flusher, sseEvent{
				Type: eventHeartbeat,
				Data: map[string]any{"timestamp": time.Now().Unix()},
			}); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) sendUpdate(w http.ResponseWriter, flusher http.Flusher, kind models.AssetKind) error {
	return h.sendEvent(w, flusher, sseEvent{
		Type: eventJobsUpdate,
		Data: jobsUpdatePayload{
			AssetKind: kind,
			Jobs:      h.snapshot.Jobs(kind),
			Timestamp: time.Now().Unix(),
		},
	})
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) error {
	var buf bytes.Buffer
	buf.WriteString("event: " + event.Type + "\n")
	buf.WriteString("data: ")
	if err := json.NewEncoder(&buf).Encode(event.Data); err != nil {
		return err
	}
	buf.WriteString("\n")

	if _, err := fmt.Fprint(w, buf.String()); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (h *EventsHandler) attach() {
	h.mu.Lock()
	h.clients++
	first := h.clients == 1
	count := h.clients
	h.mu.Unlock()

	log.Debug().Int("clients", count).Msg("SSE client connected")
	if first {
		// Visibility outlives any single request context.
		h.poller.SetVisible(context.Background(), true)
	}
}

func (h *EventsHandler) detach() {
	h.mu.Lock()
	h.clients--
	last := h.clients == 0
	count := h.clients
	h.mu.Unlock()

	log.Debug().Int("clients", count).Msg("SSE client disconnected")
	if last {
		h.poller.SetVisible(context.Background(), false)
	}
}
