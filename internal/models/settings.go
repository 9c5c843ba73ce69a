// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/autobrr/torboxd/internal/dbinterface"
)

const autoStartSettingsKey = "autoStart"

// AutoStartSettings controls the poller's queued-torrent auto-start side
// effect.
type AutoStartSettings struct {
	AutoStart      bool `json:"autoStart"`
	AutoStartLimit int  `json:"autoStartLimit"`
}

type SettingsStore struct {
	db dbinterface.Querier
}

func NewSettingsStore(db dbinterface.Querier) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetAutoStart returns the stored preference, or the disabled default when
// nothing has been saved yet.
func (s *SettingsStore) GetAutoStart(ctx context.Context) (*AutoStartSettings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, autoStartSettingsKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return &AutoStartSettings{AutoStart: false, AutoStartLimit: 3}, nil
	}
	if err != nil {
		return nil, err
	}

	var settings AutoStartSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *SettingsStore) SetAutoStart(ctx context.Context, settings *AutoStartSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, autoStartSettingsKey, string(raw), time.Now())
	return err
}
