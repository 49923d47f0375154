package processor

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"imgpress/internal/events"
	"imgpress/pkg/imgutil"
)

// process runs one task: copy, derive WebP/AVIF, recompress. Cancellation is
// checked before each of those phases; a phase that has started always runs
// to completion.
func (p *pipeline) process(ctx context.Context, task Task) FileStats {
	started := time.Now()
	name := filepath.Base(task.Source)
	p.sink.Emit(events.FileStarted(name))

	if p.cancel.Canceled() {
		return FileStats{}
	}

	if task.Source != task.Destination && (p.cfg.Recompress || p.cfg.WebP || p.cfg.AVIF) {
		if err := os.MkdirAll(filepath.Dir(task.Destination), 0o755); err != nil {
			p.log.Warn("create destination directory", zap.String("destination", task.Destination), zap.Error(err))
		}
		if p.cfg.Recompress {
			if err := copyFile(task.Source, task.Destination); err != nil {
				p.log.Warn("copy failed", zap.String("source", task.Source), zap.Error(err))
				return FileStats{}
			}
		}
	}

	stats := FileStats{OriginalSize: fileSize(task.Source)}

	if p.cfg.WebP || p.cfg.AVIF {
		p.derive(task, &stats)
	}

	if p.cancel.Canceled() {
		stats.OptimizedSize = stats.OriginalSize
		return stats
	}

	optStarted := time.Now()
	if p.cfg.Recompress {
		stats.OptimizedSize = p.recompress(ctx, task, stats.OriginalSize)
		stats.BytesSaved = savedBytes(stats.OriginalSize, stats.OptimizedSize)
	}
	stats.OptimizeDuration = time.Since(optStarted)

	done := p.done.Add(1)
	p.sink.Emit(events.ProgressOf(p.total, done, name))

	if !p.cfg.Recompress {
		stats.OptimizeDuration = 0
		return stats
	}
	if overhead := time.Since(started) - stats.PhaseTotal(); overhead > 0 {
		stats.OptimizeDuration += overhead
	}
	return stats
}

// derive decodes the source once and writes the requested sibling formats
// next to the destination. A decode failure skips both silently.
func (p *pipeline) derive(task Task, stats *FileStats) {
	if p.codecs.Decoder == nil {
		return
	}
	img, err := p.codecs.Decoder.Decode(task.Source)
	if err != nil {
		p.log.Debug("decode failed, skipping derived formats", zap.String("source", task.Source), zap.Error(err))
		return
	}

	if p.cfg.WebP && !p.cancel.Canceled() {
		t := time.Now()
		stats.WebPSize = p.writeDerived(p.codecs.WebP, img, siblingPath(task.Destination, ".webp"))
		stats.WebPDuration = time.Since(t)
	}

	if p.cfg.AVIF && !p.cancel.Canceled() {
		t := time.Now()
		stats.AVIFSize = p.writeDerived(p.codecs.AVIF, img, siblingPath(task.Destination, ".avif"))
		stats.AVIFDuration = time.Since(t)
	}
}

func (p *pipeline) writeDerived(enc Encoder, img image.Image, path string) int64 {
	if enc == nil {
		return 0
	}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		p.log.Warn("encode failed", zap.String("path", path), zap.Error(err))
		return 0
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		p.log.Warn("write failed", zap.String("path", path), zap.Error(err))
		return 0
	}
	return int64(buf.Len())
}

// recompress shrinks the destination in place and returns its new size.
// Anything that cannot be recompressed reports the original size. That
// includes a destination that vanished before this phase: it counts as
// optimized = original (nothing saved) rather than as a zero-byte result.
//
// The pass runs on a context detached from cancellation: once admitted by
// the last checkpoint it finishes, and external tools are never killed
// while rewriting the destination.
func (p *pipeline) recompress(ctx context.Context, task Task, original int64) int64 {
	var c Compressor
	switch imgutil.KindFromPath(task.Destination) {
	case imgutil.KindPNG:
		c = p.png
	case imgutil.KindJPEG:
		c = p.codecs.JPEG
	}
	if c == nil || !exists(task.Destination) {
		return original
	}

	size, err := c.Compress(context.WithoutCancel(ctx), task.Destination, p.cfg)
	if err != nil {
		p.log.Debug("recompress reported a failure", zap.String("destination", task.Destination), zap.Error(err))
		if size <= 0 {
			size = fileSize(task.Destination)
		}
	}
	return size
}
