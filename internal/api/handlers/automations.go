// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/models"
)

type ruleScheduler interface {
	ScheduledRuleIDs() []int
}

type AutomationsHandler struct {
	store  *models.AutomationRuleStore
	engine ruleScheduler
}

func NewAutomationsHandler(store *models.AutomationRuleStore, engine ruleScheduler) *AutomationsHandler {
	return &AutomationsHandler{
		store:  store,
		engine: engine,
	}
}

func (h *AutomationsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/scheduled", h.Scheduled)
	r.Route("/{ruleID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
}

func (h *AutomationsHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list automation rules")
		RespondError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	if rules == nil {
		rules = []*models.AutomationRule{}
	}
	RespondJSON(w, http.StatusOK, rules)
}

func (h *AutomationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ParseRuleID(w, r)
	if !ok {
		return
	}

	rule, err := h.store.Get(r.Context(), ruleID)
	if err != nil {
		RespondDBError(w, err, "Rule not found", "Failed to load rule")
		return
	}
	RespondJSON(w, http.StatusOK, rule)
}

func (h *AutomationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var rule models.AutomationRule
	if !DecodeJSON(w, r, &rule) {
		return
	}

	created, err := h.store.Create(r.Context(), &rule)
	if err != nil {
		if validationErr := rule.Validate(); validationErr != nil {
			RespondError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		log.Error().Err(err).Msg("Failed to create automation rule")
		RespondError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}

	log.Info().Int("ruleID", created.ID).Str("name", created.Name).Msg("Automation rule created")
	RespondJSON(w, http.StatusCreated, created)
}

func (h *AutomationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ParseRuleID(w, r)
	if !ok {
		return
	}

	var rule models.AutomationRule
	if !DecodeJSON(w, r, &rule) {
		return
	}
	rule.ID = ruleID

	updated, err := h.store.Update(r.Context(), &rule)
	if err != nil {
		if validationErr := rule.Validate(); validationErr != nil {
			RespondError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		RespondDBError(w, err, "Rule not found", "Failed to update rule")
		return
	}

	RespondJSON(w, http.StatusOK, updated)
}

func (h *AutomationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ParseRuleID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), ruleID); err != nil {
		RespondDBError(w, err, "Rule not found", "Failed to delete rule")
		return
	}

	log.Info().Int("ruleID", ruleID).Msg("Automation rule deleted")
	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Scheduled reports which rules currently hold an active timer.
func (h *AutomationsHandler) Scheduled(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]any{
		"ruleIds": h.engine.ScheduledRuleIDs(),
	})
}
