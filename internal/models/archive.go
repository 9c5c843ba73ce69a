// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/autobrr/torboxd/internal/dbinterface"
)

// ArchivedDownload is a locally kept record of a job that was archived before
// deletion from the remote service. The hash allows re-adding torrents later.
type ArchivedDownload struct {
	JobID      int       `json:"jobId"`
	Name       string    `json:"name"`
	Hash       string    `json:"hash,omitempty"`
	AssetKind  AssetKind `json:"assetKind"`
	ArchivedAt time.Time `json:"archivedAt"`
}

type ArchiveStore struct {
	db dbinterface.Querier
}

func NewArchiveStore(db dbinterface.Querier) *ArchiveStore {
	return &ArchiveStore{db: db}
}

// Add upserts an archive record; archiving the same job twice keeps the most
// recent timestamp.
func (s *ArchiveStore) Add(ctx context.Context, a *ArchivedDownload) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_downloads (job_id, name, hash, asset_kind, archived_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET name = excluded.name, hash = excluded.hash, archived_at = excluded.archived_at
	`, a.JobID, a.Name, a.Hash, a.AssetKind, a.ArchivedAt)
	return err
}

func (s *ArchiveStore) List(ctx context.Context) ([]*ArchivedDownload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, name, hash, asset_kind, archived_at
		FROM archived_downloads
		ORDER BY archived_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var archived []*ArchivedDownload
	for rows.Next() {
		var a ArchivedDownload
		if err := rows.Scan(&a.JobID, &a.Name, &a.Hash, &a.AssetKind, &a.ArchivedAt); err != nil {
			return nil, err
		}
		archived = append(archived, &a)
	}
	return archived, rows.Err()
}

func (s *ArchiveStore) Remove(ctx context.Context, jobID int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM archived_downloads WHERE job_id = ?`, jobID)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
