package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"media-forensics/internal/analyzer"
	"media-forensics/internal/attribution"
	"media-forensics/internal/database"
	"media-forensics/internal/fingerprint"
	"media-forensics/internal/geometry"
	"media-forensics/internal/matcher"
	"media-forensics/internal/packager"
	"media-forensics/internal/startup"
	"media-forensics/internal/transcoder"
	"media-forensics/internal/workers"
)

const (
	// Default timeout for database operations
	defaultTimeout = 30 * time.Second
	// Number of expected variants printed by the identity command
	sequencePreview = 32
)

var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	config, err := startup.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, config, command, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		os.Exit(1)
	}
}

// run dispatches one command. Dependencies are opened only for the
// commands that need them.
func run(ctx context.Context, config *startup.Config, command string, args []string, out io.Writer) error {
	switch command {
	case "identity":
		oracle, err := newOracle(config)
		if err != nil {
			return err
		}
		return runIdentity(out, oracle, args)

	case "status":
		db, err := openDatabase(ctx, config)
		if err != nil {
			return err
		}
		defer closeDatabase(db)
		return runStatus(ctx, out, packager.NewLibrary(config.RenditionDir, config.RenditionRetention), db, args)

	case "package":
		pkg, cleanup, err := newPackager(config)
		if err != nil {
			return err
		}
		defer cleanup()
		return runPackage(ctx, out, pkg, args)

	case "analyze":
		db, err := openDatabase(ctx, config)
		if err != nil {
			return err
		}
		defer closeDatabase(db)
		svc, err := newAttribution(config, db)
		if err != nil {
			return err
		}
		return runAnalyze(ctx, out, svc, args)

	default:
		return fmt.Errorf("%w: unknown command %s", errUsage, sanitizeCommand(command))
	}
}

// sanitizeCommand returns a safe representation of a command string for display.
// It uses an allowlist approach, replacing any character that is not alphanumeric,
// a hyphen, or an underscore with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Media Forensics")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: forensics <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  package  <media-id> <source> [layout]   - Build and publish the rendition set")
	fmt.Fprintln(w, "  analyze  [flags] <media-id> <file>      - Attribute a leaked copy to viewers")
	fmt.Fprintln(w, "  identity <user-id> <media-id>           - Print a viewer's identity and expected variants")
	fmt.Fprintln(w, "  status   <media-id>                     - Show the published rendition set")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Analyze flags:")
	fmt.Fprintln(w, "  -layout v1|v2     layout override when no manifest exists")
	fmt.Fprintln(w, "  -samples N        samples to take (default ANALYZE_MAX_SAMPLES)")
	fmt.Fprintln(w, "  -offset N         offset window in segments (default ANALYZE_MAX_OFFSET)")
	fmt.Fprintln(w, "  -auto-extend      retry once with more samples on a weak signal")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment: same variables as the server (FORENSIC_SECRET, RENDITION_DIR, DATABASE_DIR, ...)")
}

func newOracle(config *startup.Config) (*fingerprint.Oracle, error) {
	if !config.Forensic.Enabled {
		return nil, errors.New("forensic mode is disabled (FORENSIC_ENABLED=false)")
	}
	return fingerprint.NewOracle(config.Forensic.Secret)
}

func openDatabase(ctx context.Context, config *startup.Config) (*database.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	db, err := database.New(ctx, database.Config{Path: config.DatabasePath, URL: config.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (DATABASE_DIR=%s): %w", config.DatabaseDir, err)
	}
	return db, nil
}

func closeDatabase(db *database.Database) {
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

func newTranscoder(config *startup.Config) *transcoder.Transcoder {
	return transcoder.New(transcoder.Options{
		FFmpegPath:     config.FFmpegPath,
		FFprobePath:    config.FFprobePath,
		ProbeTimeout:   config.ProbeTimeout,
		ExtractTimeout: config.ProbeTimeout,
		ComposeTimeout: config.PackageTimeout,
	})
}

func newPackager(config *startup.Config) (*packager.Packager, func(), error) {
	var geom *geometry.Generator
	if config.Forensic.Enabled {
		var err error
		if geom, err = geometry.NewGenerator(config.Forensic.Secret); err != nil {
			return nil, nil, err
		}
	}

	trans := newTranscoder(config)
	opts := packager.DefaultOptions()
	opts.Enabled = config.Forensic.Enabled
	opts.Layout = config.Forensic.Layout
	opts.Opacity = config.Forensic.Opacity
	opts.SegmentSeconds = config.Forensic.SegmentSeconds

	library := packager.NewLibrary(config.RenditionDir, config.RenditionRetention)
	library.SetBuildTimeout(2 * config.PackageTimeout)
	pkg, err := packager.New(trans, geom, library, workers.NewSemaphore(config.TranscodeSlots), opts)
	if err != nil {
		return nil, nil, err
	}
	return pkg, trans.Cleanup, nil
}

func newAttribution(config *startup.Config, db *database.Database) (*attribution.Service, error) {
	oracle, err := newOracle(config)
	if err != nil {
		return nil, err
	}
	geom, err := geometry.NewGenerator(config.Forensic.Secret)
	if err != nil {
		return nil, err
	}
	library := packager.NewLibrary(config.RenditionDir, config.RenditionRetention)
	a, err := analyzer.New(newTranscoder(config), library, geom, analyzer.Options{
		DefaultLayout:  config.Forensic.Layout,
		SegmentSeconds: config.Forensic.SegmentSeconds,
		Workers:        config.Analysis.Workers,
	})
	if err != nil {
		return nil, err
	}
	return attribution.New(a, matcher.New(oracle), db, attribution.Options{
		MaxSamples: config.Analysis.MaxSamples,
		SampleCap:  config.Analysis.SampleCap,
		MaxOffset:  config.Analysis.MaxOffset,
		OffsetCap:  config.Analysis.OffsetCap,
	}), nil
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", errUsage, name, raw)
	}
	return id, nil
}

func runIdentity(out io.Writer, oracle *fingerprint.Oracle, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: identity <user-id> <media-id>", errUsage)
	}
	userID, err := parseID("user-id", args[0])
	if err != nil {
		return err
	}
	mediaID, err := parseID("media-id", args[1])
	if err != nil {
		return err
	}

	id, err := oracle.IdentityFor(userID, mediaID)
	if err != nil {
		return err
	}
	seq, err := oracle.Sequence(id, mediaID, 0, sequencePreview)
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, v := range seq {
		b.WriteString(v.String())
	}
	fmt.Fprintf(out, "Identity: %s\n", id)
	fmt.Fprintf(out, "Expected variants (segments 0-%d): %s\n", sequencePreview-1, b.String())
	return nil
}

func runStatus(ctx context.Context, out io.Writer, library *packager.Library, db *database.Database, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: status <media-id>", errUsage)
	}
	mediaID, err := parseID("media-id", args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	records, err := db.ListFingerprints(ctx, mediaID)
	if err != nil {
		return err
	}

	m, err := library.LoadManifest(mediaID)
	if errors.Is(err, packager.ErrNotPackaged) {
		fmt.Fprintf(out, "Media %d: not packaged\n", mediaID)
		fmt.Fprintf(out, "Identities issued: %d\n", len(records))
		return nil
	}
	if err != nil {
		return err
	}

	mode := "legacy"
	if m.Fingerprinting {
		mode = "forensic (layout " + string(m.Layout) + ")"
	}
	fmt.Fprintf(out, "Media %d: %s\n", mediaID, mode)
	fmt.Fprintf(out, "  Run:       %s\n", m.RunID)
	fmt.Fprintf(out, "  Created:   %s\n", m.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Segments:  %d x %ds\n", m.Segments, m.SegmentSeconds)
	fmt.Fprintf(out, "  Size:      %dx%d, %.1fs\n", m.Width, m.Height, m.DurationSeconds)
	fmt.Fprintf(out, "  Variants:  %s\n", strings.Join(m.Variants, ", "))
	fmt.Fprintf(out, "Identities issued: %d\n", len(records))
	return nil
}

func runPackage(ctx context.Context, out io.Writer, pkg *packager.Packager, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: package <media-id> <source> [layout]", errUsage)
	}
	mediaID, err := parseID("media-id", args[0])
	if err != nil {
		return err
	}

	var layout geometry.Layout
	if len(args) == 3 {
		if layout, err = geometry.ParseLayout(args[2]); err != nil {
			return err
		}
	}

	set, err := pkg.Package(ctx, mediaID, args[1], layout)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Published %d segments for media %d to %s (run %s)\n",
		set.Manifest.Segments, mediaID, set.Dir, set.Manifest.RunID)
	return nil
}

func runAnalyze(ctx context.Context, out io.Writer, svc *attribution.Service, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	layout := fs.String("layout", "", "layout override")
	samples := fs.Int("samples", 0, "samples to take")
	offset := fs.Int("offset", -1, "offset window")
	autoExtend := fs.Bool("auto-extend", false, "retry on weak signal")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *samples < 0 {
		return fmt.Errorf("%w: -samples must not be negative", errUsage)
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: analyze [flags] <media-id> <file>", errUsage)
	}
	mediaID, err := parseID("media-id", fs.Arg(0))
	if err != nil {
		return err
	}

	req := attribution.Request{
		MediaID:    mediaID,
		Path:       fs.Arg(1),
		MaxSamples: *samples,
		AutoExtend: *autoExtend,
	}
	if *layout != "" {
		if req.Layout, err = geometry.ParseLayout(*layout); err != nil {
			return err
		}
	}
	if *offset >= 0 {
		req.MaxOffset = offset
	}

	report, err := svc.Attribute(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
