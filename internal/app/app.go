// Package app wires configuration, the backup store, and the watcher into
// the high-level operations the CLI exposes.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"snapstore/internal/codec"
	"snapstore/internal/config"
	"snapstore/internal/store"
	"snapstore/internal/watch"
)

// App is the application layer between the CLI and the backup store. It
// constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and serializes all backup work: every
// create-or-refresh runs to completion before the next begins, so two
// backups of the same source can never race to the same destination file.
type App struct {
	cfg     *config.Config
	cdc     codec.Codec
	store   *store.Store
	logger  store.Logger
	logFile *os.File
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "Backup", "Watch"). The caller must call
// Close when done.
func New(cfg *config.Config, operation string, clock Clock) (*App, error) {
	cdc, err := codec.Parse(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("reading codec from config: %w", err)
	}

	if err := cfg.InitAppStructure(); err != nil {
		return nil, fmt.Errorf("initializing app directories: %w", err)
	}

	opID := fmt.Sprintf("%s-%s", operation, clock.Now().UTC().Format("20060102T150405Z"))
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapted := &slogAdapter{l: logger}

	st, err := store.Open(cfg.StoreDir, cdc, adapted)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening backup store: %w", err)
	}

	return &App{
		cfg:     cfg,
		cdc:     cdc,
		store:   st,
		logger:  adapted,
		logFile: logFile,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}

// StoreFileName derives the store file name for a source path: the hex
// SHA-256 of the absolute path plus a ".bak" suffix. Stable for the same
// source and collision-free across distinct sources.
func StoreFileName(sourcePath string) string {
	sum := sha256.Sum256([]byte(sourcePath))
	return hex.EncodeToString(sum[:]) + ".bak"
}

// Track adds a path to the tracking list and takes its initial backup. If
// the path is already tracked, the backup still runs (refreshing the
// existing container).
func (a *App) Track(rawPath string) (store.Entry, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return store.Entry{}, fmt.Errorf("resolving path: %w", err)
	}

	if err := a.cfg.AddTrackedFile(abs); err != nil {
		return store.Entry{}, err
	}
	a.logger.Info("file tracked", "path", abs)

	return a.backupPath(abs)
}

// Tracked returns the paths currently in the tracking list.
func (a *App) Tracked() ([]string, error) {
	return a.cfg.ReadTrackedFiles()
}

// Backup takes a backup of the given path: the first backup creates a
// version-1 container, subsequent backups refresh the existing container
// and bump its version. Returns the resulting index entry.
func (a *App) Backup(rawPath string) (store.Entry, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return store.Entry{}, fmt.Errorf("resolving path: %w", err)
	}
	return a.backupPath(abs)
}

// backupPath runs the create-or-refresh flow for an absolute source path
// and updates the index entry for the written container.
func (a *App) backupPath(abs string) (store.Entry, error) {
	name := StoreFileName(abs)
	dest := filepath.Join(a.cfg.StoreDir, name)

	var container *store.Container
	if _, err := os.Stat(dest); err == nil {
		compressed, err := store.ReadCompressed(dest, a.cdc)
		if err != nil {
			return store.Entry{}, err
		}
		container, err = compressed.Decompress()
		if err != nil {
			return store.Entry{}, fmt.Errorf("reading previous backup of %s: %w", abs, err)
		}
		if err := container.Refresh(); err != nil {
			return store.Entry{}, err
		}
	} else if os.IsNotExist(err) {
		container, err = store.CreateNew(abs)
		if err != nil {
			return store.Entry{}, err
		}
	} else {
		return store.Entry{}, fmt.Errorf("checking for previous backup: %w", err)
	}

	compressed, err := container.Compress(a.cdc)
	if err != nil {
		return store.Entry{}, err
	}
	if err := compressed.WriteTo(dest); err != nil {
		return store.Entry{}, err
	}

	if err := a.store.Reindex(name); err != nil {
		return store.Entry{}, fmt.Errorf("indexing written backup: %w", err)
	}

	entry, _ := a.store.Entry(name)
	a.logger.Info("file backed up",
		"path", abs,
		"version", entry.Meta.Version().Value(),
		"size", entry.Header.FileSize,
	)
	return entry, nil
}

// List returns the store index entries, cheapest-possible browsing of
// backup history.
func (a *App) List() []store.Entry {
	return a.store.Entries()
}

// Restore locates the backup for the given source path, decompresses it,
// and writes the payload to destPath. An empty destPath restores to the
// original source location.
func (a *App) Restore(rawPath, destPath string) (string, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	entry, ok := a.store.FindBySource(abs)
	if !ok {
		return "", fmt.Errorf("no backup found for %s", abs)
	}

	compressed, err := store.ReadCompressed(entry.Path, a.cdc)
	if err != nil {
		return "", err
	}
	container, err := compressed.Decompress()
	if err != nil {
		return "", err
	}

	if destPath == "" {
		destPath = abs
	}
	if err := writeFileAtomic(destPath, container.Payload()); err != nil {
		return "", fmt.Errorf("restoring %s: %w", abs, err)
	}

	a.logger.Info("file restored",
		"path", abs,
		"dest", destPath,
		"version", container.Meta().Version().Value(),
	)
	return destPath, nil
}

// Watch runs the change-driven backup loop until ctx is done. Change events
// are consumed one at a time, so backup operations are naturally serialized
// per path (and across paths).
func (a *App) Watch(ctx context.Context) error {
	files, err := a.cfg.ReadTrackedFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		a.logger.Warn("tracking list is empty; nothing to watch")
	}

	w := watch.New(a.cfg.Delay(), a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx, files)
	}()

	for {
		select {
		case <-ctx.Done():
			return <-errCh
		case err := <-errCh:
			return err
		case ev := <-w.Events():
			if _, err := a.backupPath(ev.Path); err != nil {
				// A failed attempt leaves the prior on-disk backup
				// untouched; keep watching.
				a.logger.Error("backup failed", "path", ev.Path, "error", err)
			}
		}
	}
}

// writeFileAtomic writes data to path via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
