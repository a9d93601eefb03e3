package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-forensics/internal/metrics"
)

// AssignFingerprint records that identity was issued to (user, media).
// Repeat calls refresh last_seen_at and last_ip; created_at is kept.
func (d *Database) AssignFingerprint(ctx context.Context, a Assignment) error {
	if a.UserID <= 0 || a.MediaID <= 0 {
		return fmt.Errorf("invalid assignment user=%d media=%d", a.UserID, a.MediaID)
	}
	if a.Identity == "" {
		return errors.New("fingerprint identity is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	now := start.Unix()
	_, err := d.db.ExecContext(ctx, d.q(`
		INSERT INTO fingerprints (user_id, media_id, fingerprint_identity, created_at, last_seen_at, last_ip)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, media_id) DO UPDATE SET
			fingerprint_identity = excluded.fingerprint_identity,
			last_seen_at = excluded.last_seen_at,
			last_ip = excluded.last_ip
	`), a.UserID, a.MediaID, a.Identity, now, now, a.IP)
	recordQuery("assign_fingerprint", start, err)
	if err != nil {
		return fmt.Errorf("failed to assign fingerprint: %w", err)
	}

	metrics.FingerprintAssignmentsTotal.Inc()
	return nil
}

// ListFingerprints returns every assignment for a media item ordered by user.
func (d *Database) ListFingerprints(ctx context.Context, mediaID int64) ([]FingerprintRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, d.q(`
		SELECT id, user_id, media_id, fingerprint_identity, created_at, last_seen_at, last_ip
		FROM fingerprints
		WHERE media_id = ?
		ORDER BY user_id
	`), mediaID)
	if err != nil {
		recordQuery("list_fingerprints", start, err)
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []FingerprintRecord
	for rows.Next() {
		rec, err := scanFingerprint(rows)
		if err != nil {
			recordQuery("list_fingerprints", start, err)
			return nil, err
		}
		records = append(records, *rec)
	}
	err = rows.Err()
	recordQuery("list_fingerprints", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	return records, nil
}

// GetFingerprint returns the assignment for (user, media) or ErrNotFound.
func (d *Database) GetFingerprint(ctx context.Context, userID, mediaID int64) (*FingerprintRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	row := d.db.QueryRowContext(ctx, d.q(`
		SELECT id, user_id, media_id, fingerprint_identity, created_at, last_seen_at, last_ip
		FROM fingerprints
		WHERE user_id = ? AND media_id = ?
	`), userID, mediaID)

	rec, err := scanFingerprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		recordQuery("get_fingerprint", start, nil)
		return nil, ErrNotFound
	}
	recordQuery("get_fingerprint", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}
	return rec, nil
}

// CountFingerprints returns the total number of assignments.
func (d *Database) CountFingerprints(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&n)
	recordQuery("count_fingerprints", start, err)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFingerprint(s scanner) (*FingerprintRecord, error) {
	var rec FingerprintRecord
	var created, lastSeen int64
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.MediaID, &rec.Identity, &created, &lastSeen, &rec.LastIP); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(created, 0)
	rec.LastSeenAt = time.Unix(lastSeen, 0)
	return &rec, nil
}
