package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"media-optimizer/internal/capability"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"
)

// encodeFFmpeg converts a video by shelling out to ffmpeg. The encoder
// name comes from the capability row so the choice made at probe time
// (libsvtav1 over libaom-av1, for instance) is the one that runs.
func (p *Pipeline) encodeFFmpeg(ctx context.Context, req Request, row capability.Capability, tmpPath string, _ bool) error {
	encoderName := row.Encoders[req.Format]
	if encoderName == "" {
		return fmt.Errorf("ffmpeg backend: %s: %w", req.Format, ErrUnsupportedFormat)
	}

	// Inspect the source first: duration bounds the encode deadline and
	// a silent source encodes without audio args. A failed probe is not
	// fatal, ffmpeg gives the authoritative error on unreadable input.
	hasAudio := true
	var duration float64
	if info, probeErr := probeVideo(ctx, req.SourcePath); probeErr != nil {
		logging.Warn("ffprobe failed for %s, proceeding without source info: %v", req.SourcePath, probeErr)
	} else {
		logging.Debug("Source %s: codec=%s %dx%d duration=%.1fs audio=%v",
			req.SourcePath, info.Codec, info.Width, info.Height, info.Duration, info.HasAudio)
		hasAudio = info.HasAudio
		duration = info.Duration
	}

	encodeCtx, cancel := context.WithTimeout(ctx, encodeTimeout(duration))
	defer cancel()

	args := ffmpegArgs(req, encoderName, hasAudio, tmpPath)

	cmd := exec.CommandContext(encodeCtx, "ffmpeg", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := encodeCtx.Err(); ctxErr != nil {
			// Killed by deadline or shutdown, not a bad source.
			return transientError(row.Backend, req.Format, fmt.Errorf("ffmpeg interrupted: %w", ctxErr))
		}
		return classifyFFmpegError(row.Backend, req.Format, err, stderr.String())
	}
	return nil
}

// ffmpegArgs builds the ffmpeg invocation for one conversion. The
// output container is forced explicitly because the temp file name
// does not carry the destination extension ffmpeg would sniff.
func ffmpegArgs(req Request, encoderName string, hasAudio bool, tmpPath string) []string {
	args := []string{
		"-hide_banner",
		"-y",
		"-i", req.SourcePath,
		"-c:v", encoderName,
		"-crf", strconv.Itoa(req.Options.crf()),
		"-b:v", "0",
	}

	switch encoderName {
	case "libsvtav1":
		args = append(args, "-preset", strconv.Itoa(req.Options.speed()))
	case "libaom-av1", "libvpx-vp9":
		args = append(args, "-cpu-used", strconv.Itoa(req.Options.speed()), "-row-mt", "1")
	}

	if req.MaxWidth > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale='min(%d,iw)':-2", req.MaxWidth))
	}

	switch req.Format {
	case mediatypes.FormatAV1, mediatypes.FormatVP9:
		if hasAudio {
			args = append(args, "-c:a", "libopus", "-b:a", "128k")
		} else {
			args = append(args, "-an")
		}
		args = append(args, "-f", "webm")
	}

	args = append(args, tmpPath)
	return args
}

// classifyFFmpegError splits ffmpeg failures into retryable and
// permanent. A nonzero exit with stderr output means ffmpeg rejected
// the input or settings and retrying cannot help; anything else (the
// binary disappearing, a signal) may be transient.
func classifyFFmpegError(backend string, format mediatypes.Format, err error, stderrOutput string) error {
	detail := tail(stderrOutput, 512)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return permanentError(backend, format, fmt.Errorf("ffmpeg exited with %d: %s", exitErr.ExitCode(), detail))
	}
	return transientError(backend, format, fmt.Errorf("ffmpeg error: %w - %s", err, detail))
}

// tail returns the last n bytes of s, for bounded error messages.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
