package database

import "time"

// FingerprintRecord is one issued (user, media) → identity binding.
type FingerprintRecord struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	MediaID    int64     `json:"mediaId"`
	Identity   string    `json:"fingerprintIdentity"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	LastIP     string    `json:"lastIp,omitempty"`
}

// Assignment is the input to AssignFingerprint.
type Assignment struct {
	UserID   int64
	MediaID  int64
	Identity string
	IP       string
}

// PlaybackSession records a personalized playlist being issued to a viewer.
type PlaybackSession struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	MediaID   int64     `json:"mediaId"`
	Identity  string    `json:"fingerprintIdentity"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}
