package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"fileconvert/models"
)

// ProgressFunc receives coarse progress while a conversion runs.
type ProgressFunc func(percent int)

// Result is a converted payload ready to be stored.
type Result struct {
	Bytes    []byte
	MimeType string
	Format   string
}

// Converter transforms image payloads entirely in memory. The host's
// filesystem is not trustworthy, so nothing ever touches disk.
type Converter struct {
	logger *zap.Logger
}

func NewConverter(logger *zap.Logger) *Converter {
	return &Converter{logger: logger}
}

func (c *Converter) Convert(ctx context.Context, src *models.FileRecord, opts models.ConversionOptions, progress ProgressFunc) (*Result, error) {
	c.logger.Info("Starting conversion",
		zap.String("file_id", src.ID),
		zap.String("format", opts.OutputFormat),
		zap.Int64("size_bytes", src.SizeBytes),
	)

	img, err := imaging.Decode(bytes.NewReader(src.Bytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	report(progress, 25)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var processed *image.NRGBA
	if opts.TargetWidth != nil || opts.TargetHeight != nil {
		width := opts.TargetWidth
		height := opts.TargetHeight

		if width == nil {
			w := img.Bounds().Dx()
			width = &w
		}
		if height == nil {
			h := img.Bounds().Dy()
			height = &h
		}

		if opts.Crop {
			processed = imaging.Fill(img, *width, *height, imaging.Center, imaging.Lanczos)
		} else {
			processed = imaging.Resize(img, *width, *height, imaging.Lanczos)
		}
	} else {
		processed = imaging.Clone(img)
	}
	report(progress, 70)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, mimeType, encodeOpts, err := encoding(opts.OutputFormat)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, processed, format, encodeOpts...); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", opts.OutputFormat, err)
	}
	report(progress, 95)

	c.logger.Info("Conversion completed",
		zap.String("file_id", src.ID),
		zap.Int("output_bytes", buf.Len()),
	)

	return &Result{
		Bytes:    buf.Bytes(),
		MimeType: mimeType,
		Format:   opts.OutputFormat,
	}, nil
}

func encoding(outputFormat string) (imaging.Format, string, []imaging.EncodeOption, error) {
	switch outputFormat {
	case "jpg", "jpeg":
		return imaging.JPEG, "image/jpeg", []imaging.EncodeOption{imaging.JPEGQuality(85)}, nil
	case "png":
		return imaging.PNG, "image/png", nil, nil
	case "gif":
		return imaging.GIF, "image/gif", nil, nil
	default:
		return 0, "", nil, fmt.Errorf("unsupported format: %s", outputFormat)
	}
}

func report(progress ProgressFunc, percent int) {
	if progress != nil {
		progress(percent)
	}
}
