package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind represents the broad class of a convertible asset.
type Kind string

const (
	// KindImage represents a still or animated image asset.
	KindImage Kind = "image"
	// KindVideo represents a video asset.
	KindVideo Kind = "video"
	// KindOther represents an asset the optimizer does not convert.
	KindOther Kind = "other"
)

// Format is a conversion target format.
type Format string

const (
	// FormatWebP is the WebP image format.
	FormatWebP Format = "webp"
	// FormatAVIF is the AVIF image format.
	FormatAVIF Format = "avif"
	// FormatAV1 is AV1 video delivered in a WebM container.
	FormatAV1 Format = "av1"
	// FormatVP9 is VP9 video delivered in a WebM container.
	FormatVP9 Format = "vp9"
)

// ImageFormats lists the image conversion targets in serving-preference order.
var ImageFormats = []Format{FormatAVIF, FormatWebP}

// VideoFormats lists the video conversion targets in serving-preference order.
var VideoFormats = []Format{FormatAV1, FormatVP9}

// Kind returns the asset kind a format applies to.
func (f Format) Kind() Kind {
	switch f {
	case FormatWebP, FormatAVIF:
		return KindImage
	case FormatAV1, FormatVP9:
		return KindVideo
	default:
		return KindOther
	}
}

// Extension returns the file extension for a converted artifact,
// including the leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatWebP:
		return ".webp"
	case FormatAVIF:
		return ".avif"
	case FormatAV1, FormatVP9:
		return ".webm"
	default:
		return ""
	}
}

// MimeType returns the MIME type of a converted artifact.
func (f Format) MimeType() string {
	switch f {
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	case FormatAV1, FormatVP9:
		return "video/webm"
	default:
		return ""
	}
}

// ParseFormat parses a format name as it appears in configuration and
// webhook payloads. The boolean is false for unknown names.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatWebP:
		return FormatWebP, true
	case FormatAVIF:
		return FormatAVIF, true
	case FormatAV1:
		return FormatAV1, true
	case FormatVP9:
		return FormatVP9, true
	default:
		return "", false
	}
}

// convertibleImageMimes are the source image MIME types the pipeline accepts.
var convertibleImageMimes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// convertibleVideoMimes are the source video MIME types the pipeline accepts.
var convertibleVideoMimes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/x-msvideo":  true,
	"video/x-matroska": true,
	"video/webm":       true,
	"video/mpeg":       true,
}

// animatableMimes are source MIME types that may carry multiple frames.
var animatableMimes = map[string]bool{
	"image/gif":  true,
	"image/webp": true,
}

// KindForMime classifies a source MIME type.
func KindForMime(mime string) Kind {
	mime = strings.ToLower(mime)
	switch {
	case convertibleImageMimes[mime]:
		return KindImage
	case convertibleVideoMimes[mime]:
		return KindVideo
	default:
		return KindOther
	}
}

// MaybeAnimated reports whether a source MIME type can carry animation.
// A true result means the frame count must be probed before assuming a
// still image.
func MaybeAnimated(mime string) bool {
	return animatableMimes[strings.ToLower(mime)]
}

// MimeForPath guesses a source MIME type from a file extension. Returns
// the empty string for extensions the optimizer does not handle.
func MimeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".mpg", ".mpeg":
		return "video/mpeg"
	default:
		return ""
	}
}
