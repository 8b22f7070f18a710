package capability

import (
	"sort"

	"media-optimizer/internal/mediatypes"
)

// Backend names, in image/video precedence order.
const (
	// BackendVips is the libvips image backend.
	BackendVips = "vips"
	// BackendNative is the pure-Go fallback image backend.
	BackendNative = "native"
	// BackendFFmpeg is the ffmpeg video backend.
	BackendFFmpeg = "ffmpeg"
)

// imagePrecedence ranks image backends, richest first.
var imagePrecedence = []string{BackendVips, BackendNative}

// videoPrecedence ranks video backends.
var videoPrecedence = []string{BackendFFmpeg}

// Capability describes what a single codec backend can do.
type Capability struct {
	Backend        string                     `json:"backend"`
	Kind           mediatypes.Kind            `json:"kind"`
	Available      bool                       `json:"available"`
	Version        string                     `json:"version"`
	Formats        map[mediatypes.Format]bool `json:"formats"`
	AnimatedSource bool                       `json:"animatedSource"`

	// Encoders names the concrete encoder serving each format, for
	// backends (ffmpeg) where several may be installed.
	Encoders map[mediatypes.Format]string `json:"encoders,omitempty"`
}

// SupportsFormat reports whether this backend can encode the format.
func (c Capability) SupportsFormat(f mediatypes.Format) bool {
	return c.Available && c.Formats[f]
}

// Matrix is the format-support matrix across all probed backends.
// It is immutable once built; the Detector replaces it wholesale on
// refresh.
type Matrix struct {
	rows map[string]Capability
}

// NewMatrix builds a matrix from backend capability rows.
func NewMatrix(rows ...Capability) *Matrix {
	m := &Matrix{rows: make(map[string]Capability, len(rows))}
	for _, row := range rows {
		m.rows[row.Backend] = row
	}
	return m
}

// Backend returns the capability row for a backend name.
func (m *Matrix) Backend(name string) (Capability, bool) {
	row, ok := m.rows[name]
	return row, ok
}

// Supports reports whether any backend can encode the format.
func (m *Matrix) Supports(f mediatypes.Format) bool {
	for _, row := range m.rows {
		if row.SupportsFormat(f) {
			return true
		}
	}
	return false
}

// Select picks the backend for a format deterministically, or "" when no
// backend supports it. When the source is animated, a backend that can
// preserve animation in the target format outranks the general
// precedence; if none can, the best general backend is returned and the
// pipeline flags the animation loss.
func (m *Matrix) Select(f mediatypes.Format, animated bool) string {
	var precedence []string
	switch f.Kind() {
	case mediatypes.KindImage:
		precedence = imagePrecedence
	case mediatypes.KindVideo:
		precedence = videoPrecedence
	default:
		return ""
	}

	if animated {
		for _, name := range precedence {
			if row, ok := m.rows[name]; ok && row.SupportsFormat(f) && row.AnimatedSource {
				return name
			}
		}
	}

	for _, name := range precedence {
		if row, ok := m.rows[name]; ok && row.SupportsFormat(f) {
			return name
		}
	}
	return ""
}

// Snapshot returns the capability rows sorted by backend name, for the
// read-only status surface.
func (m *Matrix) Snapshot() []Capability {
	rows := make([]Capability, 0, len(m.rows))
	for _, row := range m.rows {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Backend < rows[j].Backend
	})
	return rows
}

// SupportedFormats returns every format at least one backend can encode,
// sorted for deterministic output.
func (m *Matrix) SupportedFormats() []mediatypes.Format {
	seen := make(map[mediatypes.Format]bool)
	for _, row := range m.rows {
		if !row.Available {
			continue
		}
		for f, ok := range row.Formats {
			if ok {
				seen[f] = true
			}
		}
	}

	formats := make([]mediatypes.Format, 0, len(seen))
	for f := range seen {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
