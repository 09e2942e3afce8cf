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
	"time"

	"flat-todo/internal/model"
)

// maxBackupAttempts bounds the search for a free backup timestamp.
const maxBackupAttempts = 60

// TaskRepository reads and writes the task list of a category.
type TaskRepository struct {
	store *FileStore
}

func NewTaskRepository(store *FileStore) *TaskRepository {
	return &TaskRepository{store: store}
}

// Valid reports whether category can be read and written.
func (r *TaskRepository) Valid(category string) bool {
	return r.store.Valid(category)
}

// SameCategory compares two names under the store's case policy.
func (r *TaskRepository) SameCategory(a, b string) bool {
	return r.store.SameCategory(a, b)
}

// Load returns the tasks of category ordered by their stored line,
// descending. A category without a file yields a single placeholder.
func (r *TaskRepository) Load(ctx context.Context, category string) ([]model.Task, error) {
	path, err := r.store.Path(category)
	if err != nil {
		return nil, err
	}

	// writers replace the file by rename, so a read sees either the old or
	// the new body and needs no lock
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Task{model.Placeholder()}, nil
		}
		return nil, fmt.Errorf("read category %q: %w", category, err)
	}

	lines := splitLines(r.store.codec.Clean(string(data)))
	if len(lines) == 0 {
		return []model.Task{model.Placeholder()}, nil
	}
	// The line starts with the single digit priority, so a plain descending
	// string sort groups by priority and breaks ties on the remaining fields.
	sort.Sort(sort.Reverse(sort.StringSlice(lines)))

	tasks := make([]model.Task, 0, len(lines))
	for _, line := range lines {
		tasks = append(tasks, model.ParseTask(line))
	}
	return tasks, nil
}

func splitLines(body string) []string {
	if body == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// Save writes tasks as the new list of newCategory. The previous file of
// oldCategory, when there is one, is first renamed to a timestamped backup.
// When the name changes and newCategory already has a file nothing is
// touched and ErrCategoryCollision is returned. Tasks with an empty
// description are not written.
func (r *TaskRepository) Save(ctx context.Context, oldCategory, newCategory string, tasks []model.Task) error {
	s := r.store
	if !s.rule.Valid(newCategory) {
		return fmt.Errorf("%q: %w", newCategory, ErrInvalidCategory)
	}
	newPath, err := s.Path(newCategory)
	if err != nil {
		return err
	}

	var oldPath string
	if s.rule.Valid(oldCategory) {
		if p, err := s.Path(oldCategory); err == nil {
			oldPath = p
		}
	}

	release, err := s.locks.acquire(oldPath, newPath)
	if err != nil {
		return err
	}
	defer release()

	if !s.SameCategory(oldCategory, newCategory) && isRegularFile(newPath) {
		return fmt.Errorf("rename %q to %q: %w", oldCategory, newCategory, ErrCategoryCollision)
	}

	if oldPath != "" && isRegularFile(oldPath) {
		backup, err := r.rotate(oldPath)
		if err != nil {
			return err
		}
		s.logger.Info("backup rotated", "category", oldCategory, "backup", filepath.Base(backup))
	}

	if err := writeFileAtomic(newPath, encodeTasks(tasks)); err != nil {
		return fmt.Errorf("write category %q: %w", newCategory, err)
	}
	return nil
}

// rotate renames path to path.<timestamp>. A timestamp already taken within
// the same second is advanced until a free one is found.
func (r *TaskRepository) rotate(path string) (string, error) {
	stamp := r.store.now()
	for i := 0; i < maxBackupAttempts; i++ {
		backup := path + "." + stamp.Format(BackupLayout)
		if _, err := os.Lstat(backup); errors.Is(err, fs.ErrNotExist) {
			if err := os.Rename(path, backup); err != nil {
				return "", fmt.Errorf("rotate backup: %w", err)
			}
			return backup, nil
		}
		stamp = stamp.Add(time.Second)
	}
	return "", fmt.Errorf("rotate backup: no free timestamp for %s", filepath.Base(path))
}

func encodeTasks(tasks []model.Task) []byte {
	var b strings.Builder
	for _, t := range tasks {
		if t.IsPlaceholder() {
			continue
		}
		b.WriteString(t.Line())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// writeFileAtomic writes through a dot-prefixed temp file in the same
// directory so the target is never seen half written.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".write-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
