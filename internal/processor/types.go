package processor

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"
)

// RawTask is one caller-supplied input. Root is the path the user originally
// picked (a file or a directory) and drives output-path resolution.
type RawTask struct {
	Path string `json:"path"`
	Root string `json:"root"`
}

// Task is a resolved unit of work.
type Task struct {
	Source      string
	Destination string
}

// RunConfig describes one optimization run. The JSON names match the run
// request accepted by the control surface.
type RunConfig struct {
	Tasks       []RawTask `json:"tasks"`
	JPEGQuality int       `json:"jpg_q"`
	PNGMin      int       `json:"png_min"`
	PNGMax      int       `json:"png_max"`
	WebP        bool      `json:"webp"`
	AVIF        bool      `json:"avif"`
	Recompress  bool      `json:"optimize_original"`
	Replace     bool      `json:"replace"`
	OutputDir   string    `json:"output_dir,omitempty"`
}

// DefaultRunConfig returns the defaults applied before a request is decoded.
// Recompress stays on for callers that predate the toggle.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		JPEGQuality: 80,
		PNGMin:      65,
		PNGMax:      80,
		Recompress:  true,
	}
}

// Validate checks quality ranges.
func (c RunConfig) Validate() error {
	for _, q := range []struct {
		name  string
		value int
	}{
		{"jpg_q", c.JPEGQuality},
		{"png_min", c.PNGMin},
		{"png_max", c.PNGMax},
	} {
		if q.value < 0 || q.value > 100 {
			return fmt.Errorf("%w: %s must be within 0-100, got %d", ErrInvalidConfig, q.name, q.value)
		}
	}
	if c.PNGMin > c.PNGMax {
		return fmt.Errorf("%w: png_min (%d) exceeds png_max (%d)", ErrInvalidConfig, c.PNGMin, c.PNGMax)
	}
	return nil
}

// FileStats is the measured outcome of one task.
type FileStats struct {
	OriginalSize  int64
	OptimizedSize int64
	WebPSize      int64
	AVIFSize      int64
	BytesSaved    int64

	OptimizeDuration time.Duration
	WebPDuration     time.Duration
	AVIFDuration     time.Duration
}

// PhaseTotal is the sum of the three measured phases.
func (s FileStats) PhaseTotal() time.Duration {
	return s.OptimizeDuration + s.WebPDuration + s.AVIFDuration
}

// FinalResult is the run-level aggregate.
type FinalResult struct {
	TotalFiles     uint64
	ProcessedFiles uint64
	Canceled       bool

	TotalSaved     int64
	TotalOriginal  int64
	TotalOptimized int64
	TotalWebP      int64
	TotalAVIF      int64

	Duration         time.Duration
	OptimizeDuration time.Duration
	WebPDuration     time.Duration
	AVIFDuration     time.Duration
}

// Report is the run response as it goes over the wire: sizes in bytes,
// durations in seconds.
type Report struct {
	TotalFiles         uint64  `json:"total_files"`
	ProcessedFiles     uint64  `json:"processed_files"`
	IsCanceled         bool    `json:"is_canceled"`
	TotalSizeSaved     int64   `json:"total_size_saved"`
	DurationTotal      float64 `json:"duration_total"`
	DurationOpt        float64 `json:"duration_opt"`
	DurationWebP       float64 `json:"duration_webp"`
	DurationAVIF       float64 `json:"duration_avif"`
	TotalSizeOriginal  int64   `json:"total_size_original"`
	TotalSizeOptimized int64   `json:"total_size_optimized"`
	TotalSizeWebP      int64   `json:"total_size_webp"`
	TotalSizeAVIF      int64   `json:"total_size_avif"`
}

func (r FinalResult) Report() Report {
	return Report{
		TotalFiles:         r.TotalFiles,
		ProcessedFiles:     r.ProcessedFiles,
		IsCanceled:         r.Canceled,
		TotalSizeSaved:     r.TotalSaved,
		DurationTotal:      r.Duration.Seconds(),
		DurationOpt:        r.OptimizeDuration.Seconds(),
		DurationWebP:       r.WebPDuration.Seconds(),
		DurationAVIF:       r.AVIFDuration.Seconds(),
		TotalSizeOriginal:  r.TotalOriginal,
		TotalSizeOptimized: r.TotalOptimized,
		TotalSizeWebP:      r.TotalWebP,
		TotalSizeAVIF:      r.TotalAVIF,
	}
}

// Compressor shrinks the file at path in place and reports the size it ends
// up with. Implementations should return a usable size even when they also
// return an error.
type Compressor interface {
	Compress(ctx context.Context, path string, cfg RunConfig) (int64, error)
}

// CompressorFunc adapts a function to Compressor.
type CompressorFunc func(ctx context.Context, path string, cfg RunConfig) (int64, error)

func (f CompressorFunc) Compress(ctx context.Context, path string, cfg RunConfig) (int64, error) {
	return f(ctx, path, cfg)
}

// Decoder loads a source image for derived-format generation.
type Decoder interface {
	Decode(path string) (image.Image, error)
}

// Encoder writes a derived format.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
}

// ToolPreparer readies the external PNG passes once per run.
type ToolPreparer interface {
	Prepare(ctx context.Context) (Compressor, error)
}

// Codecs groups the in-process codec capabilities used by the pipeline.
type Codecs struct {
	Decoder Decoder
	WebP    Encoder
	AVIF    Encoder
	JPEG    Compressor
}
