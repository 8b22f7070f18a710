// Package capability probes the installed codec backends and builds the
// format-support matrix used to route conversions.
//
// Three backends are probed: libvips (via govips) for images, a pure-Go
// fallback (imaging + chai2010/webp) for WebP when libvips is absent,
// and ffmpeg for video. Probing is best-effort and total: a backend that
// is missing or fails its probe is reported as unavailable, never as an
// error. Support is always determined by attempting a real encode or
// querying the backend's own capability listing, not by matching version
// numbers.
//
// The matrix is built once per process lifetime and cached; call
// Detector.Invalidate to force a re-probe (e.g., after installing a
// codec library).
package capability
