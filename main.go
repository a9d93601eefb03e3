package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"media-forensics/internal/analyzer"
	"media-forensics/internal/attribution"
	"media-forensics/internal/database"
	"media-forensics/internal/filesystem"
	"media-forensics/internal/fingerprint"
	"media-forensics/internal/geometry"
	"media-forensics/internal/handlers"
	"media-forensics/internal/logging"
	"media-forensics/internal/matcher"
	"media-forensics/internal/memory"
	"media-forensics/internal/metrics"
	"media-forensics/internal/middleware"
	"media-forensics/internal/packager"
	"media-forensics/internal/startup"
	"media-forensics/internal/telemetry"
	"media-forensics/internal/transcoder"

	"github.com/gorilla/mux"
)

const (
	maintenanceInterval = 1 * time.Hour
	statsInterval       = 1 * time.Minute
	shutdownTimeout     = 30 * time.Second
)

func main() {
	startTime := time.Now()

	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, runtime.Version())
	filesystem.SetDefaultVolumeResolver(volumeResolver(config))
	if err := telemetry.Init(config.SentryDSN, startup.Version); err != nil {
		logging.Warn("Error reporting disabled: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), database.Config{
		Path: config.DatabasePath,
		URL:  config.DatabaseURL,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Initialize transcoder
	if err := startup.LogTranscoderInit(context.Background(), config); err != nil {
		startup.LogFatal("Video tooling unavailable: %v", err)
	}
	trans := newTranscoder(config)

	library := packager.NewLibrary(config.RenditionDir, config.RenditionRetention)
	library.SetBuildTimeout(2 * config.PackageTimeout)
	if restored, err := library.Recover(); err != nil {
		logging.Warn("Rendition recovery incomplete: %v", err)
	} else if restored > 0 {
		logging.Info("Restored %d rendition set(s) left by an interrupted publish", restored)
	}

	var (
		oracle *fingerprint.Oracle
		attr   *attribution.Service
	)
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	if config.Forensic.Enabled {
		oracle, err = fingerprint.NewOracle(config.Forensic.Secret)
		if err != nil {
			startup.LogFatal("Failed to initialize fingerprint oracle: %v", err)
		}
		attr, err = newAttribution(config, trans, library, oracle, db, monitor)
		if err != nil {
			startup.LogFatal("Failed to initialize analysis: %v", err)
		}
	}

	collector := metrics.NewCollector(statsProvider(library, db), statsInterval)
	collector.Start()

	stopMaintenance := make(chan struct{})
	go runMaintenance(library, db, config.SessionRetention, stopMaintenance)

	h := handlers.New(db, library, oracle, attr)

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(
			middleware.Metrics(middleware.DefaultMetricsConfig())(
				telemetry.Recovery()(router),
			),
		),
	)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(config.MetricsPort, h)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, trans, collector, monitor, stopMaintenance)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
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

func newAttribution(config *startup.Config, trans *transcoder.Transcoder, library *packager.Library,
	oracle *fingerprint.Oracle, db *database.Database, gate analyzer.Gate) (*attribution.Service, error) {
	geom, err := geometry.NewGenerator(config.Forensic.Secret)
	if err != nil {
		return nil, err
	}
	a, err := analyzer.New(trans, library, geom, analyzer.Options{
		DefaultLayout:  config.Forensic.Layout,
		SegmentSeconds: config.Forensic.SegmentSeconds,
		Workers:        config.Analysis.Workers,
		Gate:           gate,
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

// volumeResolver labels filesystem retry metrics by the volume they hit.
func volumeResolver(config *startup.Config) *filesystem.VolumeResolver {
	volumes := map[string]string{"renditions": config.RenditionDir}
	if config.DatabaseURL == "" {
		volumes["database"] = config.DatabaseDir
	}
	return filesystem.NewVolumeResolver(volumes)
}

// statsProvider reports rendition storage and identity counts to the collector.
func statsProvider(library *packager.Library, db *database.Database) metrics.StatsProvider {
	return metrics.StatsProviderFunc(func() metrics.Stats {
		sets, bytes := library.Stats()
		stats := metrics.Stats{RenditionSets: sets, StorageBytes: bytes}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if n, err := db.CountFingerprints(ctx); err == nil {
			stats.Fingerprints = n
		} else {
			logging.Warn("Failed to count fingerprints: %v", err)
		}
		return stats
	})
}

// runMaintenance purges expired rendition sets and playback sessions.
func runMaintenance(library *packager.Library, db *database.Database, sessionRetention time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			// Packaging runs in the CLI; only build directories older than retention are removed.
			if removed, err := library.CollectGarbage(now, nil); err != nil {
				logging.Warn("Rendition garbage collection failed: %v", err)
			} else if removed > 0 {
				logging.Info("Rendition GC removed %d directories", removed)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			purged, err := db.PurgeSessions(ctx, now.Add(-sessionRetention))
			cancel()
			if err != nil {
				logging.Warn("Session purge failed: %v", err)
			} else if purged > 0 {
				logging.Info("Purged %d playback sessions older than %v", purged, sessionRetention)
			}
		case <-stop:
			return
		}
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Viewer playback
	media := r.PathPrefix("/api/media").Subrouter()
	media.HandleFunc("/{id:[0-9]+}/playlist.m3u8", h.Playlist).Methods("GET")
	media.HandleFunc("/{id:[0-9]+}/segments/{index:[0-9]+}.ts", h.Segment).Methods("GET")

	// Forensic administration
	forensics := r.PathPrefix("/api/forensics").Subrouter()
	forensics.HandleFunc("/{id:[0-9]+}/analyze", h.Analyze).Methods("POST")
	forensics.HandleFunc("/{id:[0-9]+}/identities", h.ListIdentities).Methods("GET")
	forensics.HandleFunc("/{id:[0-9]+}/sessions", h.ListSessions).Methods("GET")

	return r
}

func newMetricsServer(port string, h *handlers.Handlers) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", h.MetricsHandler())
	metricsMux.HandleFunc("/health", h.LivenessCheck)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

func handleShutdown(srv, metricsSrv *http.Server, trans *transcoder.Transcoder, collector *metrics.Collector,
	monitor *memory.Monitor, stopMaintenance chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Stopping background workers")
	collector.Stop()
	close(stopMaintenance)
	monitor.Stop()
	startup.LogShutdownStepComplete("Background workers stopped")

	startup.LogShutdownStep("Cleaning up transcoder")
	trans.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	telemetry.Flush()
	startup.LogShutdownComplete()
}
