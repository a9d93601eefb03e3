package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"media-forensics/internal/attribution"
	"media-forensics/internal/database"
	"media-forensics/internal/fingerprint"
	"media-forensics/internal/packager"

	"github.com/gorilla/mux"
)

// UserHeader carries the authenticated viewer ID from the upstream proxy.
const UserHeader = "X-User-ID"

var (
	errMissingUser  = errors.New("missing or invalid user")
	errInvalidMedia = errors.New("invalid media id")
)

type Handlers struct {
	db          *database.Database
	library     *packager.Library
	oracle      *fingerprint.Oracle
	attribution *attribution.Service
	startTime   time.Time
}

// New creates the handlers. oracle is nil when forensic mode is disabled;
// attribution may be nil when analysis is unavailable.
func New(db *database.Database, library *packager.Library, oracle *fingerprint.Oracle, attr *attribution.Service) *Handlers {
	return &Handlers{
		db:          db,
		library:     library,
		oracle:      oracle,
		attribution: attr,
		startTime:   time.Now(),
	}
}

func mediaIDFrom(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidMedia
	}
	return id, nil
}

func userIDFrom(r *http.Request) (int64, error) {
	raw := r.Header.Get(UserHeader)
	if raw == "" {
		raw = r.URL.Query().Get("user")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errMissingUser, raw)
	}
	return id, nil
}
