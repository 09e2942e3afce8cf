package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"flat-todo/internal/codec"
	"flat-todo/internal/model"
	"flat-todo/internal/repository"
)

// DefaultMaxPriority is the highest selectable priority.
const DefaultMaxPriority = 5

// ErrNoSuchTask is returned when a task number does not match a visible task.
var ErrNoSuchTask = errors.New("no such task")

// TaskConfig carries the text settings shared by every request.
type TaskConfig struct {
	Codec       *codec.Codec
	Labels      model.StatusLabels
	MaxPriority int
}

// Request is one submission: a category to show, optionally deleted or
// updated first.
type Request struct {
	Category    string
	Delete      bool
	Update      bool
	OldCategory string
	Rows        []model.Task
}

// Response is what a front end renders after a request.
type Response struct {
	// Category is empty after a successful delete.
	Category   string
	Valid      bool
	Tasks      []model.Task
	Categories []model.Category

	// DeleteOutcome is set when the request asked for a delete.
	DeleteOutcome *model.DeleteOutcome
	UpdateErr     error
}

// TaskService drives reads and writes of task lists. Add, Complete and
// Rename load, modify and save under one mutex so concurrent callers in the
// same process never drop each other's rows.
type TaskService struct {
	mu          sync.Mutex
	tasks       *repository.TaskRepository
	categories  *CategoryService
	codec       *codec.Codec
	labels      model.StatusLabels
	maxPriority int
	logger      *log.Logger
}

func NewTaskService(tasks *repository.TaskRepository, categories *CategoryService, cfg TaskConfig, logger *log.Logger) *TaskService {
	if cfg.Codec == nil {
		cfg.Codec = codec.MustNew(codec.Canonical, codec.Canonical)
	}
	if cfg.Labels == (model.StatusLabels{}) {
		cfg.Labels = model.DefaultStatusLabels()
	}
	if cfg.MaxPriority <= 0 || cfg.MaxPriority > 9 {
		cfg.MaxPriority = DefaultMaxPriority
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &TaskService{
		tasks:       tasks,
		categories:  categories,
		codec:       cfg.Codec,
		labels:      cfg.Labels,
		maxPriority: cfg.MaxPriority,
		logger:      logger,
	}
}

// Labels returns the configured status labels.
func (s *TaskService) Labels() model.StatusLabels {
	return s.labels
}

// MaxPriority returns the highest accepted priority.
func (s *TaskService) MaxPriority() int {
	return s.maxPriority
}

// Process runs a request to completion: validate, delete, update, load and
// finally list the categories. An invalid category is not an error; the
// response then carries only the category list. The returned error is
// reserved for storage failures, repository.ErrDataDirUnavailable among them.
func (s *TaskService) Process(ctx context.Context, req Request) (Response, error) {
	if err := s.categories.Available(); err != nil {
		return Response{}, err
	}

	category := s.normalizeName(req.Category)
	resp := Response{Category: category, Valid: s.categories.Valid(category)}

	if resp.Valid {
		deleted := false
		if req.Delete {
			out, err := s.categories.Delete(ctx, category)
			if err != nil {
				return Response{}, err
			}
			resp.DeleteOutcome = &out
			deleted = out.Deleted
		}

		if deleted {
			resp.Category = ""
			resp.Valid = false
		} else {
			if req.Update {
				old := s.normalizeName(req.OldCategory)
				resp.UpdateErr = s.categories.RenameOrUpdate(ctx, old, category, s.normalizeRows(req.Rows))
				if resp.UpdateErr != nil && !isRejection(resp.UpdateErr) {
					return Response{}, resp.UpdateErr
				}
			}
			tasks, err := s.tasks.Load(ctx, category)
			if err != nil {
				return Response{}, err
			}
			resp.Tasks = tasks
		}
	}

	categories, err := s.categories.List(ctx)
	if err != nil {
		return Response{}, err
	}
	resp.Categories = categories
	return resp, nil
}

// isRejection reports whether a save failed without touching storage.
func isRejection(err error) bool {
	return errors.Is(err, repository.ErrCategoryCollision) ||
		errors.Is(err, repository.ErrInvalidCategory) ||
		errors.Is(err, repository.ErrUnrepresentableName)
}

// Load returns all stored tasks of a category, done ones included.
func (s *TaskService) Load(ctx context.Context, category string) ([]model.Task, error) {
	category = s.normalizeName(category)
	if !s.categories.Valid(category) {
		return nil, fmt.Errorf("%q: %w", category, repository.ErrInvalidCategory)
	}
	return s.tasks.Load(ctx, category)
}

// Visible loads a category and keeps only the tasks a list view shows.
func (s *TaskService) Visible(ctx context.Context, category string) ([]model.Task, error) {
	tasks, err := s.Load(ctx, category)
	if err != nil {
		return nil, err
	}
	return VisibleTasks(tasks, s.labels), nil
}

// Add appends a task to the visible list of category and saves it. Done
// tasks are dropped by the save, just like a submitted list view.
func (s *TaskService) Add(ctx context.Context, category string, task model.Task) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	category = s.normalizeName(category)
	visible, err := s.Visible(ctx, category)
	if err != nil {
		return nil, err
	}
	rows := append(visible, task)
	if err := s.categories.RenameOrUpdate(ctx, category, category, s.normalizeRows(rows)); err != nil {
		return nil, err
	}
	s.logger.Info("task added", "category", category)
	return s.Visible(ctx, category)
}

// Complete marks the n-th visible task (1-based) of category as done.
func (s *TaskService) Complete(ctx context.Context, category string, n int) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	category = s.normalizeName(category)
	visible, err := s.Visible(ctx, category)
	if err != nil {
		return model.Task{}, err
	}
	if n < 1 || n > len(visible) {
		return model.Task{}, fmt.Errorf("task %d of %q: %w", n, category, ErrNoSuchTask)
	}
	visible[n-1].Status = s.labels.Done
	if err := s.categories.RenameOrUpdate(ctx, category, category, s.normalizeRows(visible)); err != nil {
		return model.Task{}, err
	}
	s.logger.Info("task completed", "category", category, "task", n)
	return visible[n-1], nil
}

// Replace stores rows as the whole list of category.
func (s *TaskService) Replace(ctx context.Context, category string, rows []model.Task) error {
	category = s.normalizeName(category)
	return s.categories.RenameOrUpdate(ctx, category, category, s.normalizeRows(rows))
}

// Rename moves the visible tasks of oldName to newName.
func (s *TaskService) Rename(ctx context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldName = s.normalizeName(oldName)
	newName = s.normalizeName(newName)
	visible, err := s.Visible(ctx, oldName)
	if err != nil {
		return err
	}
	return s.categories.RenameOrUpdate(ctx, oldName, newName, s.normalizeRows(visible))
}

// normalizeName decodes name. Surrounding spaces are part of the name.
func (s *TaskService) normalizeName(name string) string {
	return s.codec.Normalize(name)
}

// normalizeRows decodes every field and clamps the priority. Field values
// are otherwise kept as given; tabs and line breaks are flattened when the
// row is written.
func (s *TaskService) normalizeRows(rows []model.Task) []model.Task {
	out := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		t := model.Task{
			Priority:    clampPriority(row.Priority, s.maxPriority),
			Description: s.codec.Normalize(row.Description),
			StartDate:   s.codec.Normalize(row.StartDate),
			DueDate:     s.codec.Normalize(row.DueDate),
			Status:      s.codec.Normalize(row.Status),
		}
		out = append(out, t)
	}
	return out
}

func clampPriority(p, max int) int {
	switch {
	case p < 1:
		return 1
	case p > max:
		return max
	default:
		return p
	}
}

// VisibleTasks drops done tasks and the empty placeholder row.
func VisibleTasks(tasks []model.Task, labels model.StatusLabels) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.IsPlaceholder() || labels.IsDone(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
