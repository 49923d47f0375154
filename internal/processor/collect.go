package processor

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"imgpress/pkg/imgutil"
)

// OptimizedMarker tags files written next to their source. Inputs carrying
// it are never picked up again.
const OptimizedMarker = "__optimized"

// CollectTasks expands cfg.Tasks into the sorted, deduplicated task list.
// It only reads the filesystem.
func CollectTasks(cfg RunConfig) ([]Task, error) {
	var outputAbs string
	if cfg.OutputDir != "" {
		if abs, err := filepath.Abs(cfg.OutputDir); err == nil {
			outputAbs = filepath.Clean(abs)
		}
	}

	var tasks []Task
	for _, raw := range cfg.Tasks {
		path := stripQuotes(raw.Path)
		if path == "" || strings.Contains(path, OptimizedMarker) {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		root := stripQuotes(raw.Root)
		if root == "" {
			root = path
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootIsDir := isDir(absRoot)

		if !info.IsDir() {
			if info.Mode().IsRegular() && isSupported(absPath) {
				tasks = append(tasks, Task{
					Source:      absPath,
					Destination: ResolveDestination(absPath, absRoot, rootIsDir, cfg),
				})
			}
			continue
		}

		for _, src := range walkImages(absPath, outputAbs) {
			tasks = append(tasks, Task{
				Source:      src,
				Destination: ResolveDestination(src, absRoot, rootIsDir, cfg),
			})
		}
	}

	if len(tasks) == 0 {
		return nil, ErrEmptyInput
	}

	slices.SortStableFunc(tasks, func(a, b Task) int {
		return strings.Compare(a.Source, b.Source)
	})
	tasks = slices.CompactFunc(tasks, func(a, b Task) bool {
		return a.Source == b.Source
	})

	return tasks, nil
}

// ResolveDestination applies the output policy to one source file.
func ResolveDestination(src, root string, rootIsDir bool, cfg RunConfig) string {
	if cfg.OutputDir != "" {
		if !rootIsDir {
			return filepath.Join(cfg.OutputDir, filepath.Base(src))
		}
		rel, err := filepath.Rel(root, src)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			rel = src
		}
		return filepath.Join(cfg.OutputDir, filepath.Base(root), rel)
	}

	if cfg.Replace {
		return src
	}

	ext := filepath.Ext(src)
	stem := strings.TrimSuffix(filepath.Base(src), ext)
	return filepath.Join(filepath.Dir(src), stem+OptimizedMarker+ext)
}

// walkImages lists supported files under dir. Unreadable entries are skipped,
// as are previous outputs and an output directory nested inside dir.
func walkImages(dir, outputAbs string) []string {
	var found []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if outputAbs != "" && path != dir && isWithin(path, outputAbs) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.Contains(d.Name(), OptimizedMarker) || !isSupported(path) {
			return nil
		}
		found = append(found, path)
		return nil
	})
	return found
}

func isSupported(path string) bool {
	return imgutil.KindFromPath(path) != imgutil.KindUnknown
}

func stripQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isWithin(path string, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}
