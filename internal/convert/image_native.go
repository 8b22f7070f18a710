package convert

import (
	"context"
	"fmt"
	"os"

	"media-optimizer/internal/capability"
	"media-optimizer/internal/mediatypes"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	// Source decoders beyond what imaging registers itself.
	_ "golang.org/x/image/webp"
)

// encodeNative converts an image with the pure-Go fallback backend.
// It decodes the first frame only and encodes still WebP, so it is the
// path of last resort when libvips is not installed.
func (p *Pipeline) encodeNative(ctx context.Context, req Request, row capability.Capability, tmpPath string, _ bool) error {
	if err := ctx.Err(); err != nil {
		return transientError(row.Backend, req.Format, err)
	}

	if req.Format != mediatypes.FormatWebP {
		return fmt.Errorf("native backend: %s: %w", req.Format, ErrUnsupportedFormat)
	}

	img, err := imaging.Open(req.SourcePath, imaging.AutoOrientation(true))
	if err != nil {
		return permanentError(row.Backend, req.Format, fmt.Errorf("loading source: %w", err))
	}

	if req.MaxWidth > 0 && img.Bounds().Dx() > req.MaxWidth {
		img = imaging.Resize(img, req.MaxWidth, 0, imaging.Lanczos)
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return transientError(row.Backend, req.Format, fmt.Errorf("opening output: %w", err))
	}

	err = webp.Encode(out, img, &webp.Options{Quality: float32(req.Options.quality())})
	if err != nil {
		out.Close()
		return permanentError(row.Backend, req.Format, fmt.Errorf("encoding: %w", err))
	}
	if err := out.Close(); err != nil {
		return transientError(row.Backend, req.Format, fmt.Errorf("flushing output: %w", err))
	}
	return nil
}
