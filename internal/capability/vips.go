package capability

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"sync"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips initializes the libvips library.
// This should be called once at startup.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Configure vips logging BEFORE Startup() so it respects the
	// LOG_LEVEL environment variable.
	var vipsLogLevel vips.LogLevel
	var logHandler func(string, vips.LogLevel, string)

	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLogLevel = vips.LogLevelInfo
		logHandler = func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	case logging.LevelInfo:
		vipsLogLevel = vips.LogLevelWarning
		logHandler = func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}
	default:
		vipsLogLevel = vips.LogLevelError
		logHandler = func(domain string, level vips.LogLevel, msg string) {
			if level >= vips.LogLevelError {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	}

	vips.LoggingSettings(logHandler, vipsLogLevel)

	// Conservative memory settings: encodes run one at a time per
	// worker, and the scheduler already bounds worker count.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// VipsAvailable reports whether libvips has been initialized.
func VipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// VipsProbe probes the libvips backend by attempting tiny in-memory
// encodes per target format. Support is never inferred from version
// strings: a format is supported iff a real encode succeeds.
type VipsProbe struct{}

// Name implements Probe.
func (p *VipsProbe) Name() string { return BackendVips }

// Probe implements Probe.
func (p *VipsProbe) Probe(_ context.Context) Capability {
	row := Capability{
		Backend: BackendVips,
		Kind:    mediatypes.KindImage,
		Formats: make(map[mediatypes.Format]bool),
	}

	if err := InitVips(); err != nil || !VipsAvailable() {
		logging.Debug("vips probe: libvips unavailable: %v", err)
		return row
	}

	row.Available = true
	row.Version = vips.Version

	row.Formats[mediatypes.FormatWebP] = p.probeEncode(mediatypes.FormatWebP)
	row.Formats[mediatypes.FormatAVIF] = p.probeEncode(mediatypes.FormatAVIF)

	// Animation preservation is probed independently: a libvips build
	// can support the webp format yet be unable to carry multiple
	// frames through a conversion.
	if row.Formats[mediatypes.FormatWebP] {
		row.AnimatedSource = p.probeAnimated()
	}

	return row
}

// probeEncode attempts a 1x1 encode to the target format.
func (p *VipsProbe) probeEncode(format mediatypes.Format) bool {
	ref, err := vips.Black(1, 1)
	if err != nil {
		logging.Debug("vips probe: failed to create probe image: %v", err)
		return false
	}
	defer ref.Close()

	switch format {
	case mediatypes.FormatWebP:
		_, _, err = ref.ExportWebp(vips.NewWebpExportParams())
	case mediatypes.FormatAVIF:
		_, _, err = ref.ExportAvif(vips.NewAvifExportParams())
	default:
		return false
	}

	if err != nil {
		logging.Debug("vips probe: %s encode failed: %v", format, err)
		return false
	}
	return true
}

// probeAnimated loads a generated two-frame GIF with all pages and
// verifies libvips sees more than one page and can re-encode it.
func (p *VipsProbe) probeAnimated() bool {
	fixture, err := animatedFixture()
	if err != nil {
		logging.Debug("vips probe: failed to build animated fixture: %v", err)
		return false
	}

	params := vips.NewImportParams()
	params.NumPages.Set(-1)

	ref, err := vips.LoadImageFromBuffer(fixture, params)
	if err != nil {
		logging.Debug("vips probe: animated load failed: %v", err)
		return false
	}
	defer ref.Close()

	if ref.Pages() < 2 {
		return false
	}

	if _, _, err := ref.ExportWebp(vips.NewWebpExportParams()); err != nil {
		logging.Debug("vips probe: animated re-encode failed: %v", err)
		return false
	}
	return true
}

// animatedFixture encodes a minimal two-frame GIF in memory.
func animatedFixture() ([]byte, error) {
	palette := color.Palette{color.Black, color.White}
	frames := make([]*image.Paletted, 2)
	for i := range frames {
		frame := image.NewPaletted(image.Rect(0, 0, 2, 2), palette)
		frame.SetColorIndex(i, i, uint8(i))
		frames[i] = frame
	}

	var buf bytes.Buffer
	err := gif.EncodeAll(&buf, &gif.GIF{
		Image: frames,
		Delay: []int{10, 10},
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
