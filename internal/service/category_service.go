package service

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"flat-todo/internal/model"
	"flat-todo/internal/repository"
)

// CategoryService covers the category lifecycle: listing with pruning,
// rename-or-update and guarded deletion.
type CategoryService struct {
	categories *repository.CategoryRepository
	tasks      *repository.TaskRepository
	logger     *log.Logger
}

func NewCategoryService(categories *repository.CategoryRepository, tasks *repository.TaskRepository, logger *log.Logger) *CategoryService {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &CategoryService{categories: categories, tasks: tasks, logger: logger}
}

// Valid reports whether name can be used as a category.
func (s *CategoryService) Valid(name string) bool {
	return s.tasks.Valid(name)
}

// Available checks that the data directory can still be read.
func (s *CategoryService) Available() error {
	return s.categories.Available()
}

// List returns every current category sorted by name. Expired backups are
// removed as a side effect.
func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	return s.categories.ListCategories(ctx)
}

// Prune runs a scan and returns the backup files it removed.
func (s *CategoryService) Prune(ctx context.Context) ([]string, error) {
	res, err := s.categories.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Pruned) > 0 {
		s.logger.Info("prune finished", "removed", len(res.Pruned))
	}
	return res.Pruned, nil
}

// RenameOrUpdate stores tasks under newName, backing up the file of oldName.
// A rename onto an existing category fails with repository.ErrCategoryCollision
// and leaves both lists untouched.
func (s *CategoryService) RenameOrUpdate(ctx context.Context, oldName, newName string, tasks []model.Task) error {
	if err := s.tasks.Save(ctx, oldName, newName, tasks); err != nil {
		s.logger.Warn("save rejected", "old", oldName, "new", newName, "err", err)
		return err
	}
	if !s.tasks.SameCategory(oldName, newName) && s.Valid(oldName) {
		s.logger.Info("category renamed", "old", oldName, "new", newName)
	}
	return nil
}

// Delete removes an empty category. Blocked deletions are not errors.
func (s *CategoryService) Delete(ctx context.Context, name string) (model.DeleteOutcome, error) {
	out, err := s.categories.Delete(ctx, name)
	if err != nil {
		return out, err
	}
	if !out.Deleted {
		s.logger.Debug("delete blocked", "category", name, "reason", out.Reason)
	}
	return out, nil
}
