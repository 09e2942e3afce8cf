package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"flat-todo/internal/model"
)

// CategoryRepository enumerates and removes category files.
type CategoryRepository struct {
	store *FileStore
}

func NewCategoryRepository(store *FileStore) *CategoryRepository {
	return &CategoryRepository{store: store}
}

// ScanResult is one pass over the data directory.
type ScanResult struct {
	Categories []model.Category
	Pruned     []string
}

// Scan lists the current categories sorted by name, deleting every backup
// older than the retention window along the way.
func (r *CategoryRepository) Scan(ctx context.Context) (ScanResult, error) {
	s := r.store
	dir, err := os.Open(s.dir)
	if err != nil {
		return ScanResult{}, fmt.Errorf("%w: %v", ErrDataDirUnavailable, err)
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return ScanResult{}, fmt.Errorf("%w: %v", ErrDataDirUnavailable, err)
	}

	limit := s.backupLimit()
	sizes := make(map[string]int64)
	var pruned []string

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return ScanResult{}, err
		}
		name := entry.Name()
		// temp files, probes and the lock directory
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return ScanResult{}, fmt.Errorf("stat %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		parts := strings.Split(name, ".")
		if len(parts) == 3 {
			stamp := parts[2]
			if isBackupStamp(stamp) && stamp < limit {
				if r.removeBackup(name) {
					pruned = append(pruned, name)
				}
			}
			continue
		}

		category := s.codec.FromStorage(parts[0])
		sizes[category] = info.Size()
	}

	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]model.Category, 0, len(names))
	for _, name := range names {
		categories = append(categories, model.Category{Name: name, Size: sizes[name]})
	}
	return ScanResult{Categories: categories, Pruned: pruned}, nil
}

// ListCategories is Scan without the pruning report.
func (r *CategoryRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	res, err := r.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return res.Categories, nil
}

func (r *CategoryRepository) removeBackup(name string) bool {
	path := filepath.Join(r.store.dir, name)
	err := os.Remove(path)
	switch {
	case err == nil:
		r.store.logger.Info("expired backup removed", "file", name)
		return true
	case errors.Is(err, fs.ErrNotExist):
		r.store.logger.Debug("backup vanished before removal", "file", name)
	default:
		r.store.logger.Warn("remove expired backup", "file", name, "err", err)
	}
	return false
}

func isBackupStamp(s string) bool {
	if len(s) != len(BackupLayout) {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Exists reports whether the category has a current file.
func (r *CategoryRepository) Exists(ctx context.Context, category string) (bool, error) {
	path, err := r.store.Path(category)
	if err != nil {
		return false, err
	}
	return isRegularFile(path), nil
}

// Delete removes the category file, but only when it exists and is empty.
func (r *CategoryRepository) Delete(ctx context.Context, category string) (model.DeleteOutcome, error) {
	if !r.store.rule.Valid(category) {
		return model.Blocked(model.BlockedInvalid), nil
	}
	path, err := r.store.Path(category)
	if err != nil {
		return model.Blocked(model.BlockedInvalid), nil
	}

	if !isRegularFile(path) {
		return model.Blocked(model.BlockedMissing), nil
	}
	release, err := r.store.locks.acquire(path)
	if err != nil {
		return model.Blocked(model.BlockedMissing), err
	}
	defer release()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return model.Blocked(model.BlockedMissing), nil
	}
	if info.Size() > 0 {
		return model.Blocked(model.BlockedNotEmpty), nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Blocked(model.BlockedMissing), nil
		}
		return model.Blocked(model.BlockedMissing), fmt.Errorf("delete category %q: %w", category, err)
	}
	r.store.logger.Info("category deleted", "category", category)
	return model.Deleted(), nil
}

// Available fails with ErrDataDirUnavailable when the data directory is gone.
func (r *CategoryRepository) Available() error {
	return checkDataDir(r.store.dir)
}
