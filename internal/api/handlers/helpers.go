// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/models"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
	})
}

// DecodeJSON decodes the request body into the provided struct.
// Returns false if decoding fails (error already sent to client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// ParseStringParam extracts and validates a generic string URL parameter.
// Returns the trimmed value and true on success, or empty string and false if
// missing (error already sent).
func ParseStringParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, paramName))
	if value == "" {
		RespondError(w, http.StatusBadRequest, displayName+" is required")
		return "", false
	}
	return value, true
}

// ParseIntParam extracts and validates an integer URL parameter.
// Returns the value and true on success, or 0 and false if invalid (error
// already sent).
func ParseIntParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (int, bool) {
	str, ok := ParseStringParam(w, r, paramName, displayName)
	if !ok {
		return 0, false
	}
	value, err := strconv.Atoi(str)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid "+displayName)
		return 0, false
	}
	return value, true
}

// ParseJobID extracts and validates the job ID from URL parameters.
func ParseJobID(w http.ResponseWriter, r *http.Request) (int, bool) {
	return ParseIntParam(w, r, "jobID", "job ID")
}

// ParseRuleID extracts and validates the rule ID from URL parameters.
func ParseRuleID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := ParseIntParam(w, r, "ruleID", "rule ID")
	if !ok {
		return 0, false
	}
	if id <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid rule ID")
		return 0, false
	}
	return id, true
}

// ParseAssetKind extracts and validates the asset kind from URL parameters.
func ParseAssetKind(w http.ResponseWriter, r *http.Request) (models.AssetKind, bool) {
	str, ok := ParseStringParam(w, r, "assetKind", "asset kind")
	if !ok {
		return "", false
	}
	kind := models.AssetKind(str)
	switch kind {
	case models.AssetKindTorrent, models.AssetKindUsenet, models.AssetKindWebDL:
		return kind, true
	}
	RespondError(w, http.StatusBadRequest, "Invalid asset kind")
	return "", false
}

// RespondDBError handles database errors with common patterns:
// - sql.ErrNoRows -> 404 with notFoundMessage
// - other errors -> 500 with fallbackMessage
func RespondDBError(w http.ResponseWriter, err error, notFoundMessage, fallbackMessage string) {
	if errors.Is(err, sql.ErrNoRows) {
		RespondError(w, http.StatusNotFound, notFoundMessage)
		return
	}
	RespondError(w, http.StatusInternalServerError, fallbackMessage)
}
