package model

import (
	"fmt"
	"regexp"
)

// DefaultCategoryPattern accepts 1 to 20 characters, none of them a path
// separator, a dot, a shell wildcard, a quote, a redirection or pipe
// character, or a control character.
const DefaultCategoryPattern = `^[^\\./:*?"<>|\x00-\x1f]{1,20}$`

// Category is a current list file found in the data directory.
type Category struct {
	Name string
	Size int64
}

// Deletable reports whether the category holds no tasks.
func (c Category) Deletable() bool {
	return c.Size == 0
}

// NameRule validates category names. Matching is case-insensitive and runs
// over the whole name.
type NameRule struct {
	re *regexp.Regexp
}

// NewNameRule compiles pattern into a rule.
func NewNameRule(pattern string) (*NameRule, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile category pattern: %w", err)
	}
	return &NameRule{re: re}, nil
}

// DefaultNameRule returns the rule for DefaultCategoryPattern.
func DefaultNameRule() *NameRule {
	return &NameRule{re: regexp.MustCompile("(?i)" + DefaultCategoryPattern)}
}

// Valid reports whether name is an acceptable category name.
func (r *NameRule) Valid(name string) bool {
	return r.re.MatchString(name)
}

// BlockReason explains why a category was not deleted.
type BlockReason string

const (
	BlockedInvalid  BlockReason = "invalid category"
	BlockedMissing  BlockReason = "category does not exist"
	BlockedNotEmpty BlockReason = "category still has tasks"
)

// DeleteOutcome is either Deleted or Blocked with a reason.
type DeleteOutcome struct {
	Deleted bool
	Reason  BlockReason
}

// Deleted is the outcome of a successful removal.
func Deleted() DeleteOutcome {
	return DeleteOutcome{Deleted: true}
}

// Blocked is the outcome of a refused removal.
func Blocked(reason BlockReason) DeleteOutcome {
	return DeleteOutcome{Reason: reason}
}

func (o DeleteOutcome) String() string {
	if o.Deleted {
		return "deleted"
	}
	return "blocked: " + string(o.Reason)
}
