package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Drop is a PDF that appeared in a customer folder of the inbox.
type Drop struct {
	Customer string
	Path     string
}

type WatchConfig struct {
	// Root holds one folder per customer code: Root/<CUSTOMER>/order.pdf
	Root        string
	InitialScan bool          // emit files already present at start
	Debounce    time.Duration // coalesce write bursts of a file being copied in
}

// CustomerFor returns the customer folder name of path relative to root.
// Files placed directly in root, or outside it, have no customer.
func CustomerFor(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || parts[0] == "" || IsHidden(parts[0]) {
		return "", false
	}
	return strings.ToUpper(parts[0]), true
}

// Watch emits a Drop for every allowed file created or written under a customer folder of cfg.Root.
// Both channels are closed when ctx is cancelled.
func Watch(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan Drop, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, nil, errors.New("inbox root is required")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("ingest.watch.create_failed", "err", err)
		return nil, nil, err
	}

	dropCh := make(chan Drop, 256)
	errCh := make(chan error, 1)
	var initial []string

	err = filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != cfg.Root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if cfg.InitialScan && AllowedExt(filepath.Ext(path)) {
			initial = append(initial, path)
		}
		return nil
	})
	if err != nil {
		logger.Error("ingest.watch.add_failed", "root", cfg.Root, "err", err)
		_ = w.Close()
		return nil, nil, err
	}

	emit := func(path string) {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		customer, ok := CustomerFor(cfg.Root, path)
		if !ok {
			logger.Warn("ingest.watch.no_customer", "path", path)
			return
		}
		select {
		case dropCh <- Drop{Customer: customer, Path: path}:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(errCh)
		defer close(dropCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("ingest.watch.close_failed", "err", err)
			}
		}()

		for _, p := range initial {
			emit(p)
		}

		pending := map[string]time.Time{}
		tick := time.NewTicker(tickInterval(cfg.Debounce))
		defer tick.Stop()

		flush := func(now time.Time, force bool) {
			for p, last := range pending {
				if force || now.Sub(last) >= cfg.Debounce {
					delete(pending, p)
					emit(p)
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) && !IsHidden(e.Name) {
					// a new customer folder; Add fails harmlessly for plain files
					_ = w.Add(e.Name)
				}
				if AllowedExt(filepath.Ext(e.Name)) && (e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Rename)) {
					pending[e.Name] = time.Now()
					if cfg.Debounce <= 0 {
						flush(time.Now(), true)
					}
				}
			case now := <-tick.C:
				flush(now, false)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.error", "err", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	logger.Info("ingest.watch.started", "root", cfg.Root, "debounce", cfg.Debounce)
	return dropCh, errCh, nil
}

func tickInterval(debounce time.Duration) time.Duration {
	if debounce <= 0 {
		return time.Second
	}
	if d := debounce / 4; d > 10*time.Millisecond {
		return d
	}
	return 10 * time.Millisecond
}
