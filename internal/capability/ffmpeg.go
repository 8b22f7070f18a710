package capability

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"
)

// videoEncoders maps target formats to the ffmpeg encoder names that can
// produce them, in preference order.
var videoEncoders = map[mediatypes.Format][]string{
	mediatypes.FormatAV1: {"libsvtav1", "libaom-av1"},
	mediatypes.FormatVP9: {"libvpx-vp9"},
}

// FFmpegProbe probes the ffmpeg video backend by running the binary and
// querying its encoder list.
type FFmpegProbe struct{}

// Name implements Probe.
func (p *FFmpegProbe) Name() string { return BackendFFmpeg }

// Probe implements Probe.
func (p *FFmpegProbe) Probe(ctx context.Context) Capability {
	row := Capability{
		Backend: BackendFFmpeg,
		Kind:    mediatypes.KindVideo,
		Formats: make(map[mediatypes.Format]bool),
	}

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		logging.Debug("ffmpeg probe: binary not found in PATH")
		return row
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	version, err := ffmpegVersion(probeCtx)
	if err != nil {
		logging.Debug("ffmpeg probe: version query failed: %v", err)
		return row
	}

	encoders, err := ffmpegEncoders(probeCtx)
	if err != nil {
		logging.Debug("ffmpeg probe: encoder query failed: %v", err)
		return row
	}

	row.Available = true
	row.Version = version
	row.Encoders = make(map[mediatypes.Format]string)
	for format := range videoEncoders {
		if name := EncoderFor(encoders, format); name != "" {
			row.Formats[format] = true
			row.Encoders[format] = name
		} else {
			row.Formats[format] = false
		}
	}
	// Video conversion is frame-based throughout; "animation" is not a
	// separate capability for this backend.
	row.AnimatedSource = true

	return row
}

// EncoderFor returns the first available ffmpeg encoder name for a
// format, or "" when none is present.
func EncoderFor(encoders map[string]bool, format mediatypes.Format) string {
	for _, name := range videoEncoders[format] {
		if encoders[name] {
			return name
		}
	}
	return ""
}

func ffmpegVersion(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	// First line looks like "ffmpeg version 6.1.1 Copyright ...".
	line, _, _ := strings.Cut(string(output), "\n")
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[0] == "ffmpeg" && fields[1] == "version" {
		return fields[2], nil
	}
	return strings.TrimSpace(line), nil
}

// ffmpegEncoders returns the set of encoder names ffmpeg reports.
func ffmpegEncoders(ctx context.Context) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return parseEncoderList(string(output)), nil
}

// parseEncoderList extracts encoder names from `ffmpeg -encoders` output.
// Lines look like:
//
//	V....D libaom-av1           libaom AV1 (codec av1)
func parseEncoderList(output string) map[string]bool {
	encoders := make(map[string]bool)
	inList := false

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inList {
			// The header section ends with a "------" separator.
			if strings.HasPrefix(trimmed, "---") {
				inList = true
			}
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

