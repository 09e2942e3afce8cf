package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"flat-todo/internal/model"
)

// dueLayouts are the date spellings recognised in the due date field.
var dueLayouts = []string{"2006/1/2", "2006-01-02", "2006.1.2"}

// ReminderService builds human-readable summaries of open tasks.
type ReminderService struct {
	tasks      *TaskService
	categories *CategoryService
}

func NewReminderService(tasks *TaskService, categories *CategoryService) *ReminderService {
	return &ReminderService{tasks: tasks, categories: categories}
}

// Summary lists the open tasks of every category as Telegram HTML.
func (s *ReminderService) Summary(ctx context.Context, now time.Time) (string, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Open tasks</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n", now.Format("2006-01-02")))

	open := 0
	for _, cat := range categories {
		if cat.Size == 0 {
			continue
		}
		// stray files are listed under their first name segment, which may
		// not be a usable category
		if !s.categories.Valid(cat.Name) {
			s.categories.logger.Debug("summary skips category", "category", cat.Name)
			continue
		}
		tasks, err := s.tasks.Visible(ctx, cat.Name)
		if err != nil {
			return "", fmt.Errorf("summary of %q: %w", cat.Name, err)
		}
		if len(tasks) == 0 {
			continue
		}
		builder.WriteString(fmt.Sprintf("\n📂 <b>%s</b>\n", html.EscapeString(cat.Name)))
		for _, task := range tasks {
			builder.WriteString(formatTask(task, now))
		}
		open += len(tasks)
	}

	if open == 0 {
		builder.WriteString("\nNo open tasks.\n")
	}
	return strings.TrimSpace(builder.String()), nil
}

func formatTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	due, hasDue := ParseDue(task.DueDate, now.Location())
	sb.WriteString(fmt.Sprintf("%s [%d] %s", DueIcon(task, now), task.Priority, html.EscapeString(task.Description)))
	if task.Status != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(task.Status)))
	}

	switch {
	case hasDue && !now.Before(due):
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s, <b>overdue</b>", html.EscapeString(task.DueDate)))
	case hasDue:
		daysLeft := int(due.Sub(now).Hours() / 24)
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s, %d days left", html.EscapeString(task.DueDate), daysLeft))
	case task.DueDate != "":
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s", html.EscapeString(task.DueDate)))
	}

	sb.WriteByte('\n')
	return sb.String()
}

// DueIcon marks a task as overdue, due within two days, or neither.
func DueIcon(task model.Task, now time.Time) string {
	due, ok := ParseDue(task.DueDate, now.Location())
	switch {
	case !ok:
		return "🟢"
	case !now.Before(due):
		return "⚠️"
	case due.Sub(now) <= 48*time.Hour:
		return "⏳"
	default:
		return "🟢"
	}
}

// ParseDue reads a due date and returns the end of that day, the moment the
// task becomes overdue.
func ParseDue(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dueLayouts {
		if d, err := time.ParseInLocation(layout, s, loc); err == nil {
			return d.AddDate(0, 0, 1), true
		}
	}
	return time.Time{}, false
}
