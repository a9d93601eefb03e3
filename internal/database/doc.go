// Package database stores fingerprint assignments and playback sessions.
//
// SQLite (WAL mode) is the default backend. When a postgres:// URL is
// configured the same queries run against PostgreSQL; placeholders are
// written in SQLite style and rebound per dialect.
//
// The fingerprints table is the authoritative list of candidate identities
// the matcher scores a leaked copy against: one row per (user, media) pair.
package database
