// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/autobrr/torboxd/internal/dbinterface"
)

// DownloadHistoryCap bounds the number of retained history entries. Newer
// entries push the oldest out.
const DownloadHistoryCap = 200

// DownloadHistoryEntry is one resolved download link. FileID is nil for the
// whole-job ("zipped") resolution path, which dedups separately from any
// specific file.
type DownloadHistoryEntry struct {
	ID          int       `json:"id"`
	JobID       int       `json:"jobId"`
	FileID      *int      `json:"fileId,omitempty"`
	AssetKind   AssetKind `json:"assetKind"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type DownloadHistoryStore struct {
	db dbinterface.Querier
}

func NewDownloadHistoryStore(db dbinterface.Querier) *DownloadHistoryStore {
	return &DownloadHistoryStore{db: db}
}

// FindFresh returns the newest entry for (jobID, fileID, kind) generated at
// or after cutoff, or nil when none exists. Older entries are superseded, not
// deleted, so the newest-first ordering matters.
func (s *DownloadHistoryStore) FindFresh(ctx context.Context, jobID int, fileID *int, kind AssetKind, cutoff time.Time) (*DownloadHistoryEntry, error) {
	query := `
		SELECT id, job_id, file_id, asset_kind, url, name, generated_at
		FROM download_history
		WHERE job_id = ? AND asset_kind = ? AND generated_at >= ? AND file_id IS NULL
		ORDER BY generated_at DESC
		LIMIT 1`
	args := []any{jobID, kind, cutoff}
	if fileID != nil {
		query = `
			SELECT id, job_id, file_id, asset_kind, url, name, generated_at
			FROM download_history
			WHERE job_id = ? AND asset_kind = ? AND generated_at >= ? AND file_id = ?
			ORDER BY generated_at DESC
			LIMIT 1`
		args = append(args, *fileID)
	}

	entry, err := scanHistoryRow(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

// Add persists a new entry and trims everything beyond the retention cap.
func (s *DownloadHistoryStore) Add(ctx context.Context, entry *DownloadHistoryEntry) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO download_history (job_id, file_id, asset_kind, url, name, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.JobID, nullInt(entry.FileID), entry.AssetKind, entry.URL, entry.Name, entry.GeneratedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = int(id)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM download_history
		WHERE id NOT IN (
			SELECT id FROM download_history ORDER BY generated_at DESC, id DESC LIMIT ?
		)
	`, DownloadHistoryCap)
	return err
}

// List returns entries newest-first.
func (s *DownloadHistoryStore) List(ctx context.Context, limit int) ([]*DownloadHistoryEntry, error) {
	if limit <= 0 || limit > DownloadHistoryCap {
		limit = DownloadHistoryCap
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, file_id, asset_kind, url, name, generated_at
		FROM download_history
		ORDER BY generated_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*DownloadHistoryEntry
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanHistoryRow(row interface{ Scan(...any) error }) (*DownloadHistoryEntry, error) {
	var entry DownloadHistoryEntry
	var fileID sql.NullInt64
	if err := row.Scan(&entry.ID, &entry.JobID, &fileID, &entry.AssetKind, &entry.URL, &entry.Name, &entry.GeneratedAt); err != nil {
		return nil, err
	}
	if fileID.Valid {
		v := int(fileID.Int64)
		entry.FileID = &v
	}
	return &entry, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
