package capability

import (
	"bytes"
	"context"
	"image"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"

	"github.com/chai2010/webp"
)

// NativeProbe probes the pure-Go fallback backend (disintegration/imaging
// for decode/resize, chai2010/webp for encode). It carries no native
// dependencies, so availability is determined by a real encode attempt
// like every other backend, not assumed.
type NativeProbe struct{}

// Name implements Probe.
func (p *NativeProbe) Name() string { return BackendNative }

// Probe implements Probe.
func (p *NativeProbe) Probe(_ context.Context) Capability {
	row := Capability{
		Backend: BackendNative,
		Kind:    mediatypes.KindImage,
		Version: "builtin",
		Formats: make(map[mediatypes.Format]bool),
	}

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	if err := webp.Encode(&buf, img, &webp.Options{Quality: 75}); err != nil {
		logging.Debug("native probe: webp encode failed: %v", err)
		return row
	}

	row.Available = true
	row.Formats[mediatypes.FormatWebP] = true
	// No AVIF encoder and no multi-frame handling in the fallback path.
	row.Formats[mediatypes.FormatAVIF] = false
	row.AnimatedSource = false

	return row
}
