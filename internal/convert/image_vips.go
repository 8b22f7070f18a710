package convert

import (
	"context"
	"fmt"
	"os"

	"media-optimizer/internal/capability"
	"media-optimizer/internal/mediatypes"

	"github.com/davidbyttow/govips/v2/vips"
)

// encodeVips converts an image with libvips. Animated sources are
// loaded with all pages when the backend can preserve them; otherwise
// only the first frame is read and the pipeline flags the loss.
func (p *Pipeline) encodeVips(ctx context.Context, req Request, row capability.Capability, tmpPath string, animated bool) error {
	if err := ctx.Err(); err != nil {
		return transientError(row.Backend, req.Format, err)
	}

	params := vips.NewImportParams()
	if animated && row.AnimatedSource {
		params.NumPages.Set(-1)
	}

	ref, err := vips.LoadImageFromFile(req.SourcePath, params)
	if err != nil {
		return permanentError(row.Backend, req.Format, fmt.Errorf("loading source: %w", err))
	}
	defer ref.Close()

	// Resizing a multi-page image flattens it, so width bounds only
	// apply to still outputs.
	if req.MaxWidth > 0 && ref.Pages() <= 1 && ref.Width() > req.MaxWidth {
		scale := float64(req.MaxWidth) / float64(ref.Width())
		if err := ref.Resize(scale, vips.KernelLanczos3); err != nil {
			return permanentError(row.Backend, req.Format, fmt.Errorf("resizing: %w", err))
		}
	}

	var encoded []byte
	switch req.Format {
	case mediatypes.FormatWebP:
		exportParams := vips.NewWebpExportParams()
		exportParams.Quality = req.Options.quality()
		encoded, _, err = ref.ExportWebp(exportParams)
	case mediatypes.FormatAVIF:
		exportParams := vips.NewAvifExportParams()
		exportParams.Quality = req.Options.quality()
		encoded, _, err = ref.ExportAvif(exportParams)
	default:
		return fmt.Errorf("vips backend: %s: %w", req.Format, ErrUnsupportedFormat)
	}
	if err != nil {
		return permanentError(row.Backend, req.Format, fmt.Errorf("encoding: %w", err))
	}

	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return transientError(row.Backend, req.Format, fmt.Errorf("writing output: %w", err))
	}
	return nil
}
