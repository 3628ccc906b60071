package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
)

// File is one purchase-order PDF found on disk.
type File struct {
	Path string
	Hash string
	Size int64
	// DuplicateOf is the path of the first file with the same content, empty for unique files.
	DuplicateOf string
}

type DirStats struct {
	Scanned    uint32
	Matched    uint32
	Unique     uint32
	Duplicates uint32
	Failed     uint32
}

// ScanDirectory walks root and returns every allowed file with its content hash.
// Files whose content was already seen earlier in the walk are returned with DuplicateOf set.
// Per-file errors are counted and logged; only a failure of the walk itself is returned.
func ScanDirectory(ctx context.Context, root string, skipHidden bool, logger *slog.Logger) ([]File, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var (
		files []File
		stats DirStats
		seen  = map[string]string{}
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			logger.Warn("ingest.walk.error", "path", path, "err", walkErr)
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		info, err := d.Info()
		if err != nil {
			logger.Warn("ingest.stat.error", "path", path, "err", err)
			stats.Failed++
			return nil
		}
		sum, err := HashFile(path)
		if err != nil {
			logger.Warn("ingest.hash.error", "path", path, "err", err)
			stats.Failed++
			return nil
		}

		f := File{Path: path, Hash: sum, Size: info.Size()}
		if first, ok := seen[sum]; ok {
			f.DuplicateOf = first
			stats.Duplicates++
			logger.Debug("ingest.duplicate", "path", path, "first", first)
		} else {
			seen[sum] = path
			stats.Unique++
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return files, stats, fmt.Errorf("walk: %w", err)
	}

	logger.Info("ingest.scan.done", "root", root,
		"matched", stats.Matched, "unique", stats.Unique, "duplicates", stats.Duplicates, "failed", stats.Failed)
	return files, stats, nil
}
