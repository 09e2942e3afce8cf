package model

import (
	"strconv"
	"strings"
)

// FieldCount is the number of tab-separated fields in a stored line.
const FieldCount = 5

// Task is one line of a category file: priority, description, start date,
// due date and status, joined by tabs.
type Task struct {
	Priority    int
	Description string
	StartDate   string
	DueDate     string
	Status      string
}

// Placeholder is the empty row returned for a category that has no file yet.
func Placeholder() Task {
	return Task{}
}

// IsPlaceholder reports whether the row would be dropped on save.
func (t Task) IsPlaceholder() bool {
	return t.Description == ""
}

// ParseTask splits a stored line. Missing trailing fields stay empty and an
// unparsable priority becomes 0.
func ParseTask(line string) Task {
	fields := strings.SplitN(line, "\t", FieldCount)
	for len(fields) < FieldCount {
		fields = append(fields, "")
	}
	priority, err := strconv.Atoi(fields[0])
	if err != nil {
		priority = 0
	}
	return Task{
		Priority:    priority,
		Description: fields[1],
		StartDate:   fields[2],
		DueDate:     fields[3],
		Status:      fields[4],
	}
}

// Line renders the task as a stored line without the trailing newline.
// Field values never carry tabs or line breaks into the file.
func (t Task) Line() string {
	priority := ""
	if t.Priority > 0 {
		priority = strconv.Itoa(t.Priority)
	}
	return strings.Join([]string{
		priority,
		flatten(t.Description),
		flatten(t.StartDate),
		flatten(t.DueDate),
		flatten(t.Status),
	}, "\t")
}

var fieldBreaks = strings.NewReplacer("\t", " ", "\r\n", " ", "\r", " ", "\n", " ")

func flatten(s string) string {
	return fieldBreaks.Replace(s)
}

// StatusLabels are the display strings stored in the status field. The
// "none" status is always the empty string.
type StatusLabels struct {
	Pending string
	Done    string
}

// DefaultStatusLabels returns the labels used when none are configured.
func DefaultStatusLabels() StatusLabels {
	return StatusLabels{Pending: "pending", Done: "done"}
}

// All returns the selectable statuses in display order.
func (l StatusLabels) All() []string {
	return []string{"", l.Pending, l.Done}
}

// IsDone reports whether the task carries the done label.
func (l StatusLabels) IsDone(t Task) bool {
	return l.Done != "" && t.Status == l.Done
}
