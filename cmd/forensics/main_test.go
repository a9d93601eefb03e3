package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-forensics/internal/analyzer"
	"media-forensics/internal/analyzer/analyzertest"
	"media-forensics/internal/attribution"
	"media-forensics/internal/database"
	"media-forensics/internal/fingerprint"
	"media-forensics/internal/geometry"
	"media-forensics/internal/matcher"
	"media-forensics/internal/packager"
	"media-forensics/internal/startup"
	"media-forensics/internal/transcoder"
)

const (
	testSecret   = "cli-test-secret"
	testSegments = 12
)

// =============================================================================
// Unit Tests
// =============================================================================

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)

	for _, cmd := range []string{"package", "analyze", "identity", "status"} {
		if !strings.Contains(buf.String(), cmd) {
			t.Errorf("usage does not mention %q", cmd)
		}
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"status", "status"},
		{"re-run_2", "re-run_2"},
		{"a;rm -rf /", "a_rm_-rf__"},
		{"\x1b[31m", "__31m"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sanitizeCommand(tt.in); got != tt.want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{"9007199254740993", 9007199254740993, false},
		{"0", 0, true},
		{"-4", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseID("media-id", tt.raw)
		if tt.wantErr {
			if !errors.Is(err, errUsage) {
				t.Errorf("parseID(%q) error = %v, want errUsage", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("parseID(%q) = %d, %v; want %d", tt.raw, got, err, tt.want)
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), &startup.Config{}, "bogus!", nil, &bytes.Buffer{})
	if !errors.Is(err, errUsage) {
		t.Fatalf("run() error = %v, want errUsage", err)
	}
	if !strings.Contains(err.Error(), "bogus_") {
		t.Errorf("error %q should contain the sanitized command", err)
	}
}

func TestRunIdentityRequiresForensicMode(t *testing.T) {
	config := &startup.Config{Forensic: startup.ForensicSettings{Enabled: false, Secret: testSecret}}
	err := run(context.Background(), config, "identity", []string{"1", "2"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("identity should fail when forensic mode is disabled")
	}
}

func TestRunIdentity(t *testing.T) {
	oracle, err := fingerprint.NewOracle(testSecret)
	if err != nil {
		t.Fatalf("NewOracle() error = %v", err)
	}

	var buf bytes.Buffer
	if err := runIdentity(&buf, oracle, []string{"3", "8"}); err != nil {
		t.Fatalf("runIdentity() error = %v", err)
	}

	id, _ := oracle.IdentityFor(3, 8)
	seq, _ := oracle.Sequence(id, 8, 0, sequencePreview)
	var want strings.Builder
	for _, v := range seq {
		want.WriteString(v.String())
	}

	out := buf.String()
	if !strings.Contains(out, "Identity: "+string(id)) {
		t.Errorf("output missing identity:\n%s", out)
	}
	if !strings.Contains(out, want.String()) {
		t.Errorf("output missing expected sequence %s:\n%s", want.String(), out)
	}

	for _, args := range [][]string{nil, {"3"}, {"3", "x"}, {"0", "8"}} {
		if err := runIdentity(&buf, oracle, args); !errors.Is(err, errUsage) {
			t.Errorf("runIdentity(%v) error = %v, want errUsage", args, err)
		}
	}
}

// =============================================================================
// Integration Tests
// =============================================================================

// stubEncoder writes a playlist with testSegments empty segments.
type stubEncoder struct{}

func (stubEncoder) Probe(context.Context, string) (*transcoder.VideoInfo, error) {
	return &transcoder.VideoInfo{Duration: testSegments * 6, Width: 640, Height: 360, Codec: "h264"}, nil
}

func (stubEncoder) Compose(_ context.Context, p transcoder.ComposeParams) error {
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:6\n")
	for i := 0; i < testSegments; i++ {
		name := fmt.Sprintf(transcoder.SegmentPattern, i)
		if err := os.WriteFile(filepath.Join(p.OutputDir, name), nil, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(&b, "#EXTINF:6.0,\n%s\n", name)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return os.WriteFile(filepath.Join(p.OutputDir, transcoder.PlaylistName), []byte(b.String()), 0o644)
}

type cliEnv struct {
	dir     string
	db      *database.Database
	geom    *geometry.Generator
	oracle  *fingerprint.Oracle
	library *packager.Library
	pkg     *packager.Packager
	source  string
}

func setupEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.New(context.Background(), database.Config{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close database: %v", err)
		}
	})

	geom, err := geometry.NewGenerator(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	oracle, err := fingerprint.NewOracle(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	library := packager.NewLibrary(filepath.Join(dir, "renditions"), time.Hour)
	pkg, err := packager.New(stubEncoder{}, geom, library, nil, packager.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	source := filepath.Join(dir, "source.mp4")
	if err := os.WriteFile(source, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	return &cliEnv{dir: dir, db: db, geom: geom, oracle: oracle, library: library, pkg: pkg, source: source}
}

func TestRunPackageAndStatus(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	var buf bytes.Buffer
	if err := runStatus(ctx, &buf, env.library, env.db, []string{"5"}); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}
	if !strings.Contains(buf.String(), "not packaged") {
		t.Errorf("status before packaging = %q", buf.String())
	}

	buf.Reset()
	if err := runPackage(ctx, &buf, env.pkg, []string{"5", env.source, "v1"}); err != nil {
		t.Fatalf("runPackage() error = %v", err)
	}
	if !strings.Contains(buf.String(), fmt.Sprintf("Published %d segments for media 5", testSegments)) {
		t.Errorf("package output = %q", buf.String())
	}

	buf.Reset()
	if err := runStatus(ctx, &buf, env.library, env.db, []string{"5"}); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"forensic (layout v1)", fmt.Sprintf("%d x 6s", testSegments), "a, b", "Identities issued: 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestRunPackageErrors(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	if err := runPackage(ctx, &bytes.Buffer{}, env.pkg, []string{"5"}); !errors.Is(err, errUsage) {
		t.Errorf("missing source: error = %v, want errUsage", err)
	}
	if err := runPackage(ctx, &bytes.Buffer{}, env.pkg, []string{"5", env.source, "v7"}); !errors.Is(err, geometry.ErrUnknownLayout) {
		t.Errorf("bad layout: error = %v, want ErrUnknownLayout", err)
	}
	missing := filepath.Join(env.dir, "missing.mp4")
	if err := runPackage(ctx, &bytes.Buffer{}, env.pkg, []string{"5", missing}); !errors.Is(err, packager.ErrSourceMissing) {
		t.Errorf("missing file: error = %v, want ErrSourceMissing", err)
	}
}

func TestRunAnalyze(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	if _, err := env.pkg.Package(ctx, 5, env.source, geometry.LayoutV2); err != nil {
		t.Fatalf("Package() error = %v", err)
	}
	for u := int64(1); u <= 4; u++ {
		id, _ := env.oracle.IdentityFor(u, 5)
		if err := env.db.AssignFingerprint(ctx, database.Assignment{UserID: u, MediaID: 5, Identity: string(id)}); err != nil {
			t.Fatalf("AssignFingerprint() error = %v", err)
		}
	}

	leaker, _ := env.oracle.IdentityFor(2, 5)
	seq, _ := env.oracle.Sequence(leaker, 5, 0, testSegments)
	regions, err := env.geom.RegionsFor(5, geometry.LayoutV2)
	if err != nil {
		t.Fatal(err)
	}
	src := &analyzertest.Source{
		Width:          640,
		Height:         360,
		Duration:       testSegments * 6,
		SegmentSeconds: 6,
		Regions:        regions,
		Variants:       seq,
		Strength:       20,
		Background:     120,
	}
	a, err := analyzer.New(src, env.library, env.geom, analyzer.Options{DefaultLayout: geometry.LayoutV2, SegmentSeconds: 6, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	svc := attribution.New(a, matcher.New(env.oracle), env.db, attribution.DefaultOptions())

	var buf bytes.Buffer
	if err := runAnalyze(ctx, &buf, svc, []string{"-offset", "0", "5", filepath.Join(env.dir, "leak.mp4")}); err != nil {
		t.Fatalf("runAnalyze() error = %v", err)
	}

	var report attribution.Report
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("output is not a report: %v\n%s", err, buf.String())
	}
	top, ok := report.Top()
	if !ok {
		t.Fatal("report has no candidates")
	}
	if top.UserID != 2 || top.MatchRatio != 1 {
		t.Errorf("top candidate = user %d ratio %v, want user 2 ratio 1", top.UserID, top.MatchRatio)
	}
	if report.Meta.MaxOffset != 0 {
		t.Errorf("MaxOffset = %d, want 0", report.Meta.MaxOffset)
	}

	for _, args := range [][]string{
		{"5"},
		{"-samples", "-1", "5", "x.mp4"},
		{"-nope", "5", "x.mp4"},
	} {
		if err := runAnalyze(ctx, &bytes.Buffer{}, svc, args); !errors.Is(err, errUsage) {
			t.Errorf("runAnalyze(%v) error = %v, want errUsage", args, err)
		}
	}
	if err := runAnalyze(ctx, &bytes.Buffer{}, svc, []string{"-layout", "v9", "5", "x.mp4"}); !errors.Is(err, geometry.ErrUnknownLayout) {
		t.Errorf("bad layout error = %v, want ErrUnknownLayout", err)
	}
}
