package codec

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/gen2brain/jpegli"

	"imgpress/internal/processor"
)

// JPEGProgressiveLevel is the jpegli scan script used for recompression;
// 0 would be sequential.
const JPEGProgressiveLevel = 2

// JPEGRecompressor re-encodes a JPEG in place as a progressive JPEG with
// optimized Huffman tables at the run's JPEG quality. When any stage fails
// the file is left alone and its current size is returned with the error.
type JPEGRecompressor struct {
	Decoder Decoder
}

func (r JPEGRecompressor) Compress(_ context.Context, path string, cfg processor.RunConfig) (int64, error) {
	img, err := r.Decoder.Decode(path)
	if err != nil {
		return sizeOnDisk(path), err
	}

	var buf bytes.Buffer
	opts := &jpegli.EncodingOptions{
		Quality:          cfg.JPEGQuality,
		ProgressiveLevel: JPEGProgressiveLevel,
		OptimizeCoding:   true,
	}
	if err := jpegli.Encode(&buf, img, opts); err != nil {
		return sizeOnDisk(path), err
	}

	if err := writeReplace(path, buf.Bytes()); err != nil {
		return sizeOnDisk(path), err
	}
	return int64(buf.Len()), nil
}

// writeReplace swaps data in for path through a temp file in the same
// directory, keeping the original permissions.
func writeReplace(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".imgpress-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return replaceFile(tmp.Name(), path)
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

func sizeOnDisk(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
