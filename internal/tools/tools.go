package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"imgpress/internal/processor"
)

// Default executable names looked up on PATH.
const (
	DefaultPngquant = "pngquant"
	DefaultOxipng   = "oxipng"
)

// ErrToolNotFound is returned by Prepare when an executable cannot be resolved.
var ErrToolNotFound = errors.New("tool not found")

// ExecError reports a non-zero exit from an external pass.
type ExecError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, msg)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Gateway resolves the PNG tools. Empty fields fall back to the default
// names on PATH; explicit paths are used as given.
type Gateway struct {
	Pngquant string
	Oxipng   string
	Log      *zap.Logger
}

// Prepare resolves both executables and returns the sequenced PNG pass.
func (g Gateway) Prepare(ctx context.Context) (processor.Compressor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pq, err := resolve(orDefault(g.Pngquant, DefaultPngquant))
	if err != nil {
		return nil, err
	}
	oxi, err := resolve(orDefault(g.Oxipng, DefaultOxipng))
	if err != nil {
		return nil, err
	}

	log := g.logger()
	log.Debug("png tools resolved", zap.String("pngquant", pq), zap.String("oxipng", oxi))
	return Chain{
		Quantizer{Path: pq, Log: log},
		StructuralOptimizer{Path: oxi, Log: log},
	}, nil
}

func (g Gateway) logger() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}

// Versions reports the first line of `<tool> --version` for both tools.
// Tools that cannot be resolved or run map to an error string.
func (g Gateway) Versions(ctx context.Context) map[string]string {
	out := make(map[string]string, 2)
	for _, name := range []string{orDefault(g.Pngquant, DefaultPngquant), orDefault(g.Oxipng, DefaultOxipng)} {
		path, err := resolve(name)
		if err != nil {
			out[name] = err.Error()
			continue
		}
		raw, err := exec.CommandContext(ctx, path, "--version").Output()
		if err != nil {
			out[name] = fmt.Sprintf("%s: --version failed: %v", path, err)
			continue
		}
		line := strings.TrimSpace(string(raw))
		if idx := strings.Index(line, "\n"); idx > 0 {
			line = line[:idx]
		}
		out[name] = fmt.Sprintf("%s (%s)", line, path)
	}
	return out
}

// Quantizer is the lossy pngquant pass, bounded by the run's PNG quality range.
type Quantizer struct {
	Path string
	Log  *zap.Logger
}

func (q Quantizer) Args(path string, cfg processor.RunConfig) []string {
	return []string{
		fmt.Sprintf("--quality=%d-%d", cfg.PNGMin, cfg.PNGMax),
		"--speed=3",
		"--force",
		"--ext=.png",
		path,
	}
}

func (q Quantizer) Compress(ctx context.Context, path string, cfg processor.RunConfig) (int64, error) {
	err := run(ctx, q.Path, q.Args(path, cfg)...)
	if err != nil && q.Log != nil {
		q.Log.Debug("pngquant pass failed", zap.String("path", path), zap.Error(err))
	}
	return sizeOf(path), err
}

// StructuralOptimizer is the lossless oxipng pass; it also strips metadata.
type StructuralOptimizer struct {
	Path string
	Log  *zap.Logger
}

func (s StructuralOptimizer) Args(path string) []string {
	return []string{"-o", "4", "--strip", "all", "-t", "1", path}
}

func (s StructuralOptimizer) Compress(ctx context.Context, path string, _ processor.RunConfig) (int64, error) {
	err := run(ctx, s.Path, s.Args(path)...)
	if err != nil && s.Log != nil {
		s.Log.Debug("oxipng pass failed", zap.String("path", path), zap.Error(err))
	}
	return sizeOf(path), err
}

// Chain runs its stages in order on the same file. A failing stage does not
// stop later ones; the size reported is whatever is on disk at the end.
type Chain []processor.Compressor

func (c Chain) Compress(ctx context.Context, path string, cfg processor.RunConfig) (int64, error) {
	var errs []error
	size := sizeOf(path)
	for _, stage := range c {
		n, err := stage.Compress(ctx, path, cfg)
		if err != nil {
			errs = append(errs, err)
		}
		size = n
	}
	return size, errors.Join(errs...)
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &ExecError{Tool: name, Stderr: stderr.String(), Err: err}
	}
	return nil
}

func resolve(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, name, err)
	}
	return path, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func sizeOf(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
