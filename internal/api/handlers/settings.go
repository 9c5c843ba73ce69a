// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/models"
)

type SettingsHandler struct {
	store *models.SettingsStore
}

func NewSettingsHandler(store *models.SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/auto-start", h.GetAutoStart)
	r.Put("/auto-start", h.SetAutoStart)
}

func (h *SettingsHandler) GetAutoStart(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetAutoStart(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load auto-start settings")
		RespondError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	RespondJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) SetAutoStart(w http.ResponseWriter, r *http.Request) {
	var settings models.AutoStartSettings
	if !DecodeJSON(w, r, &settings) {
		return
	}
	if settings.AutoStartLimit <= 0 {
		RespondError(w, http.StatusBadRequest, "Auto-start limit must be positive")
		return
	}

	if err := h.store.SetAutoStart(r.Context(), &settings); err != nil {
		log.Error().Err(err).Msg("Failed to save auto-start settings")
		RespondError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	log.Info().Bool("autoStart", settings.AutoStart).Int("limit", settings.AutoStartLimit).Msg("Auto-start settings updated")
	RespondJSON(w, http.StatusOK, settings)
}
