package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-forensics/internal/geometry"
	"media-forensics/internal/logging"
	"media-forensics/internal/matcher"
	"media-forensics/internal/memory"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

var (
	ErrMissingSecret = errors.New("forensic mode requires FORENSIC_SECRET or APP_SECRET")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Bounds for the forensic settings.
const (
	MaxOpacity        = 0.05
	MinSegmentSeconds = 2
	MaxSegmentSeconds = 10
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// ForensicSettings is the watermarking configuration handed to the
// packager, analyzer and identity components.
type ForensicSettings struct {
	Enabled        bool
	Secret         string
	Layout         geometry.Layout
	Opacity        float64
	SegmentSeconds int
}

// Validate checks the settings. A missing secret is only an error when
// forensic mode is enabled.
func (f ForensicSettings) Validate() error {
	if f.Enabled && f.Secret == "" {
		return ErrMissingSecret
	}
	if _, err := geometry.ParseLayout(string(f.Layout)); err != nil {
		return fmt.Errorf("%w: WATERMARK_LAYOUT: %w", ErrInvalidConfig, err)
	}
	if f.Opacity <= 0 || f.Opacity > MaxOpacity {
		return fmt.Errorf("%w: WATERMARK_OPACITY %v must be in (0, %v]", ErrInvalidConfig, f.Opacity, MaxOpacity)
	}
	if f.SegmentSeconds < MinSegmentSeconds || f.SegmentSeconds > MaxSegmentSeconds {
		return fmt.Errorf("%w: SEGMENT_SECONDS %d must be in [%d, %d]",
			ErrInvalidConfig, f.SegmentSeconds, MinSegmentSeconds, MaxSegmentSeconds)
	}
	return nil
}

// AnalysisSettings are the attribution defaults and bounds.
type AnalysisSettings struct {
	MaxSamples int
	SampleCap  int
	MaxOffset  int
	OffsetCap  int
	// Workers is the per-request extraction pool size; 0 sizes it from CPUs.
	Workers int
}

// Validate checks the analysis bounds.
func (a AnalysisSettings) Validate() error {
	switch {
	case a.MaxSamples <= 0:
		return fmt.Errorf("%w: ANALYZE_MAX_SAMPLES must be positive", ErrInvalidConfig)
	case a.SampleCap < a.MaxSamples:
		return fmt.Errorf("%w: ANALYZE_SAMPLE_CAP %d is below ANALYZE_MAX_SAMPLES %d",
			ErrInvalidConfig, a.SampleCap, a.MaxSamples)
	case a.MaxOffset < 0:
		return fmt.Errorf("%w: ANALYZE_MAX_OFFSET must not be negative", ErrInvalidConfig)
	case a.OffsetCap < a.MaxOffset || a.OffsetCap > matcher.MaxOffsetCap:
		return fmt.Errorf("%w: ANALYZE_OFFSET_CAP %d must be in [%d, %d]",
			ErrInvalidConfig, a.OffsetCap, a.MaxOffset, matcher.MaxOffsetCap)
	case a.Workers < 0:
		return fmt.Errorf("%w: ANALYZE_WORKERS must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Config holds all application configuration
type Config struct {
	RenditionDir    string
	DatabaseDir     string
	DatabaseURL     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool
	SentryDSN       string

	FFmpegPath         string
	FFprobePath        string
	ProbeTimeout       time.Duration
	PackageTimeout     time.Duration
	TranscodeSlots     int
	RenditionRetention time.Duration
	SessionRetention   time.Duration

	Forensic ForensicSettings
	Analysis AnalysisSettings

	// Derived paths
	DatabasePath string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config, err := configFromEnv()
	if err != nil {
		return nil, err
	}
	logConfig(config)

	if err := config.Forensic.Validate(); err != nil {
		return nil, err
	}
	if err := config.Analysis.Validate(); err != nil {
		return nil, err
	}
	if config.TranscodeSlots < 1 {
		return nil, fmt.Errorf("%w: TRANSCODE_SLOTS must be at least 1", ErrInvalidConfig)
	}

	if err := setupDirectories(config); err != nil {
		return nil, err
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:     %s", config.databaseKind())
	logging.Info("    Fingerprints: %s", enabledString(config.Forensic.Enabled))
	logging.Info("    Metrics:      %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// ConfigFromEnv reads and validates configuration without the banner or
// directory checks. Command-line tools use it.
func ConfigFromEnv() (*Config, error) {
	config, err := configFromEnv()
	if err != nil {
		return nil, err
	}
	if err := config.Forensic.Validate(); err != nil {
		return nil, err
	}
	if err := config.Analysis.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// configFromEnv reads every variable and resolves the secret. It performs
// no filesystem access.
func configFromEnv() (*Config, error) {
	secret := os.Getenv("FORENSIC_SECRET")
	if secret == "" {
		if appSecret := os.Getenv("APP_SECRET"); appSecret != "" {
			logging.Warn("  FORENSIC_SECRET not set, falling back to APP_SECRET")
			secret = appSecret
		}
	}

	databaseDir := getEnv("DATABASE_DIR", "/database")

	config := &Config{
		RenditionDir:    getEnv("RENDITION_DIR", "/cache/renditions"),
		DatabaseDir:     databaseDir,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
		SentryDSN:       os.Getenv("SENTRY_DSN"),

		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		ProbeTimeout:       getEnvDuration("PROBE_TIMEOUT", 30*time.Second),
		PackageTimeout:     getEnvDuration("PACKAGE_TIMEOUT", 2*time.Hour),
		TranscodeSlots:     getEnvInt("TRANSCODE_SLOTS", 1),
		RenditionRetention: getEnvDuration("RENDITION_RETENTION", 15*time.Minute),
		SessionRetention:   getEnvDuration("SESSION_RETENTION", 90*24*time.Hour),

		Forensic: ForensicSettings{
			Enabled:        getEnvBool("FORENSIC_ENABLED", true),
			Secret:         secret,
			Layout:         geometry.Layout(strings.ToLower(getEnv("WATERMARK_LAYOUT", string(geometry.LayoutV2)))),
			Opacity:        getEnvFloat("WATERMARK_OPACITY", 0.006),
			SegmentSeconds: getEnvInt("SEGMENT_SECONDS", 6),
		},
		Analysis: AnalysisSettings{
			MaxSamples: getEnvInt("ANALYZE_MAX_SAMPLES", 60),
			SampleCap:  getEnvInt("ANALYZE_SAMPLE_CAP", 200),
			MaxOffset:  getEnvInt("ANALYZE_MAX_OFFSET", 30),
			OffsetCap:  getEnvInt("ANALYZE_OFFSET_CAP", 300),
			Workers:    getEnvInt("ANALYZE_WORKERS", 0),
		},
	}

	var err error
	if config.RenditionDir, err = filepath.Abs(config.RenditionDir); err != nil {
		return nil, fmt.Errorf("failed to resolve rendition directory path: %w", err)
	}
	if config.DatabaseDir, err = filepath.Abs(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	config.DatabasePath = filepath.Join(config.DatabaseDir, "forensics.db")

	return config, nil
}

func (c *Config) databaseKind() string {
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "sqlite (" + c.DatabasePath + ")"
}

func logConfig(c *Config) {
	secretState := "(not set)"
	if c.Forensic.Secret != "" {
		secretState = "(set)"
	}
	databaseURL := "(not set)"
	if c.DatabaseURL != "" {
		databaseURL = "(set)"
	}
	sentryState := "(not set)"
	if c.SentryDSN != "" {
		sentryState = "(set)"
	}
	workersState := "auto"
	if c.Analysis.Workers > 0 {
		workersState = strconv.Itoa(c.Analysis.Workers)
	}

	logging.Info("  FORENSIC_ENABLED:    %v", c.Forensic.Enabled)
	logging.Info("  FORENSIC_SECRET:     %s", secretState)
	logging.Info("  WATERMARK_LAYOUT:    %s", c.Forensic.Layout)
	logging.Info("  WATERMARK_OPACITY:   %v", c.Forensic.Opacity)
	logging.Info("  SEGMENT_SECONDS:     %d", c.Forensic.SegmentSeconds)
	logging.Info("  RENDITION_DIR:       %s", c.RenditionDir)
	logging.Info("  DATABASE_DIR:        %s", c.DatabaseDir)
	logging.Info("  DATABASE_URL:        %s", databaseURL)
	logging.Info("  ANALYZE_MAX_SAMPLES: %d", c.Analysis.MaxSamples)
	logging.Info("  ANALYZE_SAMPLE_CAP:  %d", c.Analysis.SampleCap)
	logging.Info("  ANALYZE_MAX_OFFSET:  %d", c.Analysis.MaxOffset)
	logging.Info("  ANALYZE_OFFSET_CAP:  %d", c.Analysis.OffsetCap)
	logging.Info("  ANALYZE_WORKERS:     %s", workersState)
	logging.Info("  TRANSCODE_SLOTS:     %d", c.TranscodeSlots)
	logging.Info("  PROBE_TIMEOUT:       %v", c.ProbeTimeout)
	logging.Info("  PACKAGE_TIMEOUT:     %v", c.PackageTimeout)
	logging.Info("  RENDITION_RETENTION: %v", c.RenditionRetention)
	logging.Info("  SESSION_RETENTION:   %v", c.SessionRetention)
	logging.Info("  PORT:                %s", c.Port)
	logging.Info("  METRICS_PORT:        %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", c.MetricsEnabled)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", c.LogHealthChecks)
	logging.Info("  SENTRY_DSN:          %s", sentryState)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
}

func setupDirectories(c *Config) error {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(c.RenditionDir, "rendition"); err != nil {
		return fmt.Errorf("rendition directory error: %w", err)
	}
	if err := testWriteAccess(c.RenditionDir); err != nil {
		return fmt.Errorf("rendition directory is not writable: %w", err)
	}
	logging.Info("  [OK] Rendition directory is writable: %s", c.RenditionDir)

	if c.DatabaseURL != "" {
		logging.Info("  Database directory skipped (using DATABASE_URL)")
		return nil
	}

	if err := ensureDirectory(c.DatabaseDir, "database"); err != nil {
		return fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(c.DatabaseDir); err != nil {
		return fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable: %s", c.DatabaseDir)
	return nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	switch {
	case !result.Configured:
		logging.Info("  GOMEMLIMIT not configured (set MEMORY_LIMIT to enable)")
	case result.Source == "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", formatBytes(result.ContainerLimit))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", formatBytes(result.GoMemLimit), result.Ratio*100)
	default:
		logging.Info("  GOMEMLIMIT:      %s (from environment)", formatBytes(result.GoMemLimit))
	}
	logging.Info("")
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// CheckTools verifies that ffmpeg and ffprobe can be executed.
func CheckTools(ctx context.Context, ffmpegPath, ffprobePath string) error {
	var errs []error
	for _, bin := range []string{ffmpegPath, ffprobePath} {
		if err := checkTool(ctx, bin); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogTranscoderInit logs tool availability. Missing tools are fatal only
// for callers that treat the returned error as such.
func LogTranscoderInit(ctx context.Context, c *Config) error {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if err := CheckTools(ctx, c.FFmpegPath, c.FFprobePath); err != nil {
		logging.Error("  Video tool check failed: %v", err)
		return err
	}
	logging.Info("  [OK] ffmpeg and ffprobe are available")
	logging.Info("  Packaging slots: %d", c.TranscodeSlots)
	if c.Forensic.Enabled {
		logging.Info("  Renditions: A/B layout %s, opacity %v, %ds segments",
			c.Forensic.Layout, c.Forensic.Opacity, c.Forensic.SegmentSeconds)
	} else {
		logging.Warn("  Forensic mode disabled, packaging a single unwatermarked rendition")
	}
	return nil
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___          ______                         _
   /  |/  /__  ____/ (_)___ _   / ____/___  ________  ____  ___(_)_________
  / /|_/ / _ \/ __  / / __ '/  / /_  / __ \/ ___/ _ \/ __ \/ ___/ / ___/ ___/
 / /  / /  __/ /_/ / / /_/ /  / __/ / /_/ / /  /  __/ / / (__  ) / /__(__  )
/_/  /_/\___/\__,_/_/\__,_/  /_/    \____/_/   \___/_/ /_/____/_/\___/____/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkTool(ctx context.Context, bin string) error {
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", bin)
	}
	logging.Debug("  %s path: %s", bin, path)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", bin, err)
	}

	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  %s version: %s", bin, strings.TrimSpace(line))
	}
	return nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
