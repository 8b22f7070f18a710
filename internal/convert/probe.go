package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// videoInfo is what ffprobe reports about a source before encoding.
type videoInfo struct {
	Duration float64
	Codec    string
	Width    int
	Height   int
	HasAudio bool
}

// ffprobe JSON wire types; only the fields the pipeline consults.
type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

// probeVideo inspects a source with ffprobe. Errors mean the container
// could not be read at all; the caller decides whether to proceed.
func probeVideo(ctx context.Context, path string) (*videoInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, tail(stderr.String(), 256))
	}

	return parseProbeOutput(stdout.Bytes())
}

// parseProbeOutput extracts the fields the pipeline consults from
// ffprobe's JSON. The first video stream wins; any audio stream sets
// HasAudio.
func parseProbeOutput(data []byte) (*videoInfo, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	info := &videoInfo{}
	if parsed.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(parsed.Format.Duration, 64)
	}
	for _, stream := range parsed.Streams {
		switch stream.CodecType {
		case "video":
			if info.Codec == "" {
				info.Codec = stream.CodecName
				info.Width = stream.Width
				info.Height = stream.Height
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

const (
	// minEncodeTimeout covers short clips plus encoder startup.
	minEncodeTimeout = 5 * time.Minute

	// maxEncodeTimeout caps runaway encodes regardless of duration.
	maxEncodeTimeout = 4 * time.Hour

	// encodeTimeFactor scales source duration into an encode budget.
	// AV1 software encoding runs far below realtime on large inputs.
	encodeTimeFactor = 20
)

// encodeTimeout derives an encode deadline from source duration.
// Unknown durations get the maximum so long sources are not cut short.
func encodeTimeout(durationSeconds float64) time.Duration {
	if durationSeconds <= 0 {
		return maxEncodeTimeout
	}
	timeout := time.Duration(durationSeconds*encodeTimeFactor) * time.Second
	if timeout < minEncodeTimeout {
		return minEncodeTimeout
	}
	if timeout > maxEncodeTimeout {
		return maxEncodeTimeout
	}
	return timeout
}
