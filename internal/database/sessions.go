package database

import (
	"context"
	"fmt"
	"time"
)

// RecordSession stores a playback session. StartedAt defaults to now.
func (d *Database) RecordSession(ctx context.Context, s PlaybackSession) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	_, err := d.db.ExecContext(ctx, d.q(`
		INSERT INTO playback_sessions (user_id, media_id, fingerprint_identity, ip, user_agent, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), s.UserID, s.MediaID, s.Identity, s.IP, s.UserAgent, s.StartedAt.Unix())
	recordQuery("record_session", start, err)
	if err != nil {
		return fmt.Errorf("failed to record playback session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions for a media item.
func (d *Database) ListSessions(ctx context.Context, mediaID int64, limit int) ([]PlaybackSession, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, d.q(`
		SELECT id, user_id, media_id, fingerprint_identity, ip, user_agent, started_at
		FROM playback_sessions
		WHERE media_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`), mediaID, limit)
	if err != nil {
		recordQuery("list_sessions", start, err)
		return nil, fmt.Errorf("failed to list playback sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []PlaybackSession
	for rows.Next() {
		var s PlaybackSession
		var started int64
		if err := rows.Scan(&s.ID, &s.UserID, &s.MediaID, &s.Identity, &s.IP, &s.UserAgent, &started); err != nil {
			recordQuery("list_sessions", start, err)
			return nil, err
		}
		s.StartedAt = time.Unix(started, 0)
		sessions = append(sessions, s)
	}
	err = rows.Err()
	recordQuery("list_sessions", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback sessions: %w", err)
	}
	return sessions, nil
}

// PurgeSessions deletes sessions started before cutoff.
func (d *Database) PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	res, err := d.db.ExecContext(ctx, d.q(`DELETE FROM playback_sessions WHERE started_at < ?`), cutoff.Unix())
	recordQuery("purge_sessions", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to purge playback sessions: %w", err)
	}
	return res.RowsAffected()
}
