package convert

import (
	"media-optimizer/internal/mediatypes"
)

// Quality and rate-control bounds. Out-of-range option values are
// clamped rather than rejected so a cosmetic input error cannot fail a
// whole batch.
const (
	minQuality = 0
	maxQuality = 100
	minCRF     = 0
	maxCRF     = 63
	minSpeed   = 0
	maxSpeed   = 8
)

// Options carries the per-conversion encoding settings.
type Options struct {
	// Quality is the image quality, 0-100.
	Quality int
	// CRF is the video constant-rate factor, 0-63 (lower is better).
	CRF int
	// Speed is the video encoder speed/cpu-used preset, 0-8.
	Speed int
}

// clamp bounds a value to [low, high].
func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func (o Options) quality() int {
	return clamp(o.Quality, minQuality, maxQuality)
}

func (o Options) crf() int {
	return clamp(o.CRF, minCRF, maxCRF)
}

func (o Options) speed() int {
	return clamp(o.Speed, minSpeed, maxSpeed)
}

// Request describes one source→destination transform. It is an
// immutable value: the With* methods return modified copies, so
// configuring a request has no side effects until Convert runs it.
type Request struct {
	AssetID         int64
	SourcePath      string
	DestinationPath string
	MimeType        string
	Format          mediatypes.Format
	// MaxWidth bounds the output width; 0 keeps original dimensions.
	MaxWidth int
	Options  Options
}

// NewRequest starts a request from a source asset.
func NewRequest(assetID int64, sourcePath, mimeType string) Request {
	return Request{
		AssetID:    assetID,
		SourcePath: sourcePath,
		MimeType:   mimeType,
	}
}

// To sets the target format and destination path.
func (r Request) To(format mediatypes.Format, destinationPath string) Request {
	r.Format = format
	r.DestinationPath = destinationPath
	return r
}

// WithMaxWidth bounds the output width.
func (r Request) WithMaxWidth(maxWidth int) Request {
	r.MaxWidth = maxWidth
	return r
}

// WithOptions sets the encoding options.
func (r Request) WithOptions(options Options) Request {
	r.Options = options
	return r
}

// Result is the outcome of a successful conversion.
type Result struct {
	DestinationPath string
	OriginalBytes   int64
	ConvertedBytes  int64
	// AnimationLost is set when the source carried multiple frames but
	// the selected backend could only encode a still output. Callers
	// decide whether to keep or discard such artifacts; producing one
	// silently would be a defect.
	AnimationLost bool
	// Backend names the backend that performed the conversion.
	Backend string
}
