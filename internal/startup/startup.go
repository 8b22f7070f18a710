package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
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

// RenditionSize is a named variant of an asset that may be converted
// independently. MaxWidth of 0 means the original dimensions.
type RenditionSize struct {
	Name     string
	MaxWidth int
}

// ConversionMode selects how converted artifacts are produced.
type ConversionMode string

const (
	// ModeNative produces only the preferred supported format per asset.
	ModeNative ConversionMode = "native"
	// ModeHybrid produces every end-to-end supported format; the serving
	// layer picks between them later.
	ModeHybrid ConversionMode = "hybrid"
)

// Config holds all application configuration
type Config struct {
	MediaDir    string
	CacheDir    string
	DatabaseDir string
	Port        string
	MetricsPort string

	LogHealthChecks bool
	MetricsEnabled  bool

	// Conversion settings
	ImageFormats   []mediatypes.Format
	VideoFormats   []mediatypes.Format
	ImageQuality   int
	VideoCRF       int
	VideoSpeed     int
	Mode           ConversionMode
	RenditionSizes []RenditionSize

	// External processing service
	ExternalEnabled bool
	ExternalBaseURL string
	AccountID       string
	WebhookURL      string

	// Quota
	ImageQuotaLimit int
	VideoQuotaLimit int
	QuotaWindow     time.Duration

	// Derived paths
	DatabasePath string
	ConvertDir   string

	// Feature flags based on directory availability
	ConversionEnabled bool
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	mediaDir := getEnv("MEDIA_DIR", "/media")
	cacheDir := getEnv("CACHE_DIR", "/cache")
	databaseDir := getEnv("DATABASE_DIR", "/database")
	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)

	imageFormats := parseFormats(getEnv("IMAGE_FORMATS", "avif,webp"), mediatypes.KindImage)
	videoFormats := parseFormats(getEnv("VIDEO_FORMATS", "av1"), mediatypes.KindVideo)
	imageQuality := getEnvInt("IMAGE_QUALITY", 82)
	videoCRF := getEnvInt("VIDEO_CRF", 32)
	videoSpeed := getEnvInt("VIDEO_SPEED", 4)
	mode := parseMode(getEnv("CONVERSION_MODE", string(ModeHybrid)))
	sizes := parseRenditionSizes(getEnv("RENDITION_SIZES", "full:0,large:1024,thumbnail:320"))

	externalEnabled := getEnvBool("EXTERNAL_ENABLED", false)
	externalBaseURL := getEnv("EXTERNAL_URL", "")
	accountID := getEnv("EXTERNAL_ACCOUNT_ID", "")
	webhookURL := getEnv("WEBHOOK_URL", "")

	imageQuota := getEnvInt("IMAGE_QUOTA", 1000)
	videoQuota := getEnvInt("VIDEO_QUOTA", 20)
	quotaWindowStr := getEnv("QUOTA_WINDOW", "720h")

	logging.Info("  MEDIA_DIR:           %s", mediaDir)
	logging.Info("  CACHE_DIR:           %s", cacheDir)
	logging.Info("  DATABASE_DIR:        %s", databaseDir)
	logging.Info("  PORT:                %s", port)
	logging.Info("  METRICS_PORT:        %s", metricsPort)
	logging.Info("  METRICS_ENABLED:     %v", metricsEnabled)
	logging.Info("  IMAGE_FORMATS:       %s", formatList(imageFormats))
	logging.Info("  VIDEO_FORMATS:       %s", formatList(videoFormats))
	logging.Info("  IMAGE_QUALITY:       %d", imageQuality)
	logging.Info("  VIDEO_CRF:           %d", videoCRF)
	logging.Info("  VIDEO_SPEED:         %d", videoSpeed)
	logging.Info("  CONVERSION_MODE:     %s", mode)
	logging.Info("  RENDITION_SIZES:     %s", sizeList(sizes))
	logging.Info("  EXTERNAL_ENABLED:    %v", externalEnabled)
	if externalEnabled {
		logging.Info("  EXTERNAL_URL:        %s", externalBaseURL)
		logging.Info("  WEBHOOK_URL:         %s", webhookURL)
	}
	logging.Info("  IMAGE_QUOTA:         %d", imageQuota)
	logging.Info("  VIDEO_QUOTA:         %d", videoQuota)
	logging.Info("  QUOTA_WINDOW:        %s", quotaWindowStr)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	quotaWindow, err := time.ParseDuration(quotaWindowStr)
	if err != nil {
		logging.Warn("  Invalid QUOTA_WINDOW, using default: 720h")
		quotaWindow = 720 * time.Hour
	}

	if externalEnabled && externalBaseURL == "" {
		logging.Warn("  EXTERNAL_ENABLED set without EXTERNAL_URL; external mode disabled")
		externalEnabled = false
	}

	// Resolve paths
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	mediaDir, err = filepath.Abs(mediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	logging.Info("  Media directory (absolute): %s", mediaDir)

	cacheDir, err = filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	logging.Info("  Cache directory (absolute): %s", cacheDir)

	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", databaseDir)

	// Check/create media directory (warning only)
	if err := ensureDirectory(mediaDir, "media"); err != nil {
		logging.Warn("  Media directory issue: %v", err)
	}

	config := &Config{
		MediaDir:        mediaDir,
		CacheDir:        cacheDir,
		DatabaseDir:     databaseDir,
		Port:            port,
		MetricsPort:     metricsPort,
		LogHealthChecks: logHealthChecks,
		MetricsEnabled:  metricsEnabled,
		ImageFormats:    imageFormats,
		VideoFormats:    videoFormats,
		ImageQuality:    imageQuality,
		VideoCRF:        videoCRF,
		VideoSpeed:      videoSpeed,
		Mode:            mode,
		RenditionSizes:  sizes,
		ExternalEnabled: externalEnabled,
		ExternalBaseURL: externalBaseURL,
		AccountID:       accountID,
		WebhookURL:      webhookURL,
		ImageQuotaLimit: imageQuota,
		VideoQuotaLimit: videoQuota,
		QuotaWindow:     quotaWindow,
		DatabasePath:    filepath.Join(databaseDir, "optimizer.db"),
		ConvertDir:      filepath.Join(cacheDir, "converted"),
	}

	// Ensure base database directory exists (required for database)
	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	// Test write access for database (required)
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	// Setup conversion output directory (optional)
	config.ConversionEnabled = setupOptionalDir(config.ConvertDir, "conversion output")

	// Summary
	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:          ENABLED (required)")
	logging.Info("    Local conversion:  %s", enabledString(config.ConversionEnabled))
	logging.Info("    External service:  %s", enabledString(config.ExternalEnabled))
	logging.Info("    Metrics:           %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// FormatsFor returns the enabled target formats for an asset kind.
func (c *Config) FormatsFor(kind mediatypes.Kind) []mediatypes.Format {
	switch kind {
	case mediatypes.KindImage:
		return c.ImageFormats
	case mediatypes.KindVideo:
		return c.VideoFormats
	default:
		return nil
	}
}

func parseFormats(value string, kind mediatypes.Kind) []mediatypes.Format {
	var formats []mediatypes.Format
	for _, part := range strings.Split(value, ",") {
		format, ok := mediatypes.ParseFormat(part)
		if !ok {
			if strings.TrimSpace(part) != "" {
				logging.Warn("  Unknown format %q ignored", strings.TrimSpace(part))
			}
			continue
		}
		if format.Kind() != kind {
			logging.Warn("  Format %q is not a %s format, ignored", format, kind)
			continue
		}
		formats = append(formats, format)
	}
	return formats
}

func parseMode(value string) ConversionMode {
	switch ConversionMode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeNative:
		return ModeNative
	case ModeHybrid:
		return ModeHybrid
	default:
		logging.Warn("  Invalid CONVERSION_MODE %q, using default: %s", value, ModeHybrid)
		return ModeHybrid
	}
}

// parseRenditionSizes parses "name:maxwidth" pairs separated by commas.
func parseRenditionSizes(value string) []RenditionSize {
	var sizes []RenditionSize
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, widthStr, found := strings.Cut(part, ":")
		if !found {
			logging.Warn("  Invalid rendition size %q ignored (want name:maxwidth)", part)
			continue
		}
		width, err := strconv.Atoi(widthStr)
		if err != nil || width < 0 {
			logging.Warn("  Invalid rendition size width in %q, ignored", part)
			continue
		}
		sizes = append(sizes, RenditionSize{Name: strings.TrimSpace(name), MaxWidth: width})
	}
	if len(sizes) == 0 {
		sizes = []RenditionSize{{Name: "full", MaxWidth: 0}}
	}
	return sizes
}

func formatList(formats []mediatypes.Format) string {
	if len(formats) == 0 {
		return "(none)"
	}
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

func sizeList(sizes []RenditionSize) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		if s.MaxWidth == 0 {
			parts[i] = s.Name
		} else {
			parts[i] = fmt.Sprintf("%s (%dpx)", s.Name, s.MaxWidth)
		}
	}
	return strings.Join(parts, ", ")
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	testFile := filepath.Join(path, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("    failed to remove test file %s: %v", testFile, err)
		// Still return true since write succeeded
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
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
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
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
		logging.Debug("")

		// Group routes by prefix for cleaner output
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
			groupRoutes := groups[group]
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groupRoutes {
				methodPadded := fmt.Sprintf("%-6s", route.Method)
				logging.Debug("    %s %s", methodPadded, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	// Special handling for API routes
	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}
