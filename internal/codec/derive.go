package codec

import (
	"image"
	"io"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
)

// Derived-format settings.
const (
	WebPQuality      = 75
	AVIFQuality      = 65
	AVIFAlphaQuality = 70
	AVIFSpeed        = 4
)

// WebPEncoder writes lossy WebP.
type WebPEncoder struct {
	Quality int
}

func NewWebPEncoder() WebPEncoder {
	return WebPEncoder{Quality: WebPQuality}
}

func (e WebPEncoder) Encode(w io.Writer, img image.Image) error {
	return webp.Encode(w, img, webp.Options{Quality: e.Quality})
}

// AVIFEncoder writes AVIF with a separately tuned alpha plane.
type AVIFEncoder struct {
	Quality      int
	AlphaQuality int
	Speed        int
}

func NewAVIFEncoder() AVIFEncoder {
	return AVIFEncoder{Quality: AVIFQuality, AlphaQuality: AVIFAlphaQuality, Speed: AVIFSpeed}
}

func (e AVIFEncoder) Encode(w io.Writer, img image.Image) error {
	return avif.Encode(w, img, avif.Options{
		Quality:      e.Quality,
		QualityAlpha: e.AlphaQuality,
		Speed:        e.Speed,
	})
}
