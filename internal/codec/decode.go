// Package codec holds the in-process image capabilities used by the
// optimizer: decoding, WebP/AVIF derivation and JPEG recompression.
package codec

import (
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"go.uber.org/zap"

	"imgpress/pkg/imgutil"
)

// Decoder loads PNG and JPEG files. JPEGs come back upright: their EXIF
// orientation is applied to the pixels.
type Decoder struct {
	Log *zap.Logger
}

func (d Decoder) Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	kind, err := imgutil.SniffReader(f)
	if err != nil {
		return nil, fmt.Errorf("sniff %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch kind {
	case imgutil.KindPNG:
		return png.Decode(bufio.NewReader(f))
	case imgutil.KindJPEG:
		img, err := jpeg.Decode(bufio.NewReader(f))
		if err != nil {
			return nil, err
		}
		orientation, err := readOrientation(f)
		if err != nil {
			d.logger().Debug("exif orientation unreadable", zap.String("path", path), zap.Error(err))
			return img, nil
		}
		return applyOrientation(img, orientation), nil
	default:
		return nil, fmt.Errorf("unsupported image type %s: %s", kind, path)
	}
}

func (d Decoder) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
