// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/models"
)

type torrentCreator interface {
	CreateTorrent(ctx context.Context, magnet, name string) error
}

type ArchiveHandler struct {
	store  *models.ArchiveStore
	client torrentCreator
}

func NewArchiveHandler(store *models.ArchiveStore, client torrentCreator) *ArchiveHandler {
	return &ArchiveHandler{
		store:  store,
		client: client,
	}
}

func (h *ArchiveHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/{jobID}/restore", h.Restore)
	r.Delete("/{jobID}", h.Remove)
}

func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list archived downloads")
		RespondError(w, http.StatusInternalServerError, "Failed to list archive")
		return
	}
	if entries == nil {
		entries = []*models.ArchivedDownload{}
	}
	RespondJSON(w, http.StatusOK, entries)
}

// Restore re-adds an archived torrent from its info hash via a magnet link,
// then drops the archive entry. Only torrents carry a hash, so only torrents
// can be restored.
func (h *ArchiveHandler) Restore(w http.ResponseWriter, r *http.Request) {
	jobID, ok := ParseJobID(w, r)
	if !ok {
		return
	}

	entries, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load archive for restore")
		RespondError(w, http.StatusInternalServerError, "Failed to load archive")
		return
	}

	var entry *models.ArchivedDownload
	for _, e := range entries {
		if e.JobID == jobID {
			entry = e
			break
		}
	}
	if entry == nil {
		RespondError(w, http.StatusNotFound, "Archived download not found")
		return
	}
	if entry.AssetKind != models.AssetKindTorrent || entry.Hash == "" {
		RespondError(w, http.StatusUnprocessableEntity, "Only torrents with a hash can be restored")
		return
	}

	magnet := "magnet:?xt=urn:btih:" + entry.Hash + "&dn=" + url.QueryEscape(entry.Name)
	if err := h.client.CreateTorrent(r.Context(), magnet, entry.Name); err != nil {
		log.Error().Err(err).Int("jobID", jobID).Msg("Failed to restore archived download")
		RespondError(w, http.StatusBadGateway, "Failed to restore download")
		return
	}

	if err := h.store.Remove(r.Context(), jobID); err != nil {
		log.Warn().Err(err).Int("jobID", jobID).Msg("Restored download but failed to remove archive entry")
	}

	log.Info().Int("jobID", jobID).Str("name", entry.Name).Msg("Archived download restored")
	RespondJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (h *ArchiveHandler) Remove(w http.ResponseWriter, r *http.Request) {
	jobID, ok := ParseJobID(w, r)
	if !ok {
		return
	}

	if err := h.store.Remove(r.Context(), jobID); err != nil {
		RespondDBError(w, err, "Archived download not found", "Failed to remove archive entry")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
