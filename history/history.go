/*
	remote-flasher
	Copyright (c) 2026 OpenBlock Community.  All right reserved.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package history keeps a log of the flash sessions in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/session"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Schema creates the sessions table.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	started     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	firmware    TEXT NOT NULL,
	checksum    TEXT NOT NULL DEFAULT '',
	server      TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sessions_started ON sessions (started);
`

// Store is a session.Recorder backed by SQLite.
type Store struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// Open opens, and creates when missing, the database at dbPath.
func Open(dbPath *paths.Path, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("db", dbPath)
	if err := dbPath.Parent().MkdirAll(); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath.String())
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	logger.Debug("History database ready")
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a finished session.
func (s *Store) Record(ctx context.Context, r *session.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started, duration_ms, firmware, checksum, server, success, kind, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Started.UnixMilli(), r.Duration.Milliseconds(), r.Firmware, r.Checksum,
		r.Server, r.Success, r.Kind, r.Message)
	if err != nil {
		return fmt.Errorf("recording session %s: %w", r.ID, err)
	}
	s.logger.WithField("session", r.ID).Debug("Session recorded")
	return nil
}

// List returns the most recent sessions first. A limit of zero or less
// returns them all.
func (s *Store) List(ctx context.Context, limit int) ([]*session.Report, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started, duration_ms, firmware, checksum, server, success, kind, message
		FROM sessions ORDER BY started DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var res []*session.Report
	for rows.Next() {
		var r session.Report
		var started, duration int64
		if err := rows.Scan(&r.ID, &started, &duration, &r.Firmware, &r.Checksum,
			&r.Server, &r.Success, &r.Kind, &r.Message); err != nil {
			return nil, fmt.Errorf("reading session: %w", err)
		}
		r.Started = time.UnixMilli(started)
		r.Duration = time.Duration(duration) * time.Millisecond
		res = append(res, &r)
	}
	return res, rows.Err()
}
