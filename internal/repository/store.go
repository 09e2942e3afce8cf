package repository

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"flat-todo/internal/codec"
	"flat-todo/internal/model"
)

const (
	listExt = ".txt"

	// BackupLayout is the timestamp appended to rotated list files.
	BackupLayout = "20060102150405"

	// DefaultRetention is how long backups are kept.
	DefaultRetention = 7 * 24 * time.Hour

	lockDirName = ".locks"
)

// CasePolicy decides whether two category names that differ only in case
// are the same category.
type CasePolicy string

const (
	CaseAuto        CasePolicy = "auto"
	CaseSensitive   CasePolicy = "sensitive"
	CaseInsensitive CasePolicy = "insensitive"
)

// ParseCasePolicy accepts auto, sensitive or insensitive.
func ParseCasePolicy(s string) (CasePolicy, error) {
	switch p := CasePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", CaseAuto:
		return CaseAuto, nil
	case CaseSensitive, CaseInsensitive:
		return p, nil
	default:
		return "", fmt.Errorf("unknown case policy %q", s)
	}
}

// Options configures a FileStore. Zero values pick the defaults.
type Options struct {
	Codec      *codec.Codec
	Rule       *model.NameRule
	Retention  time.Duration
	CasePolicy CasePolicy
	Now        func() time.Time
	Logger     *log.Logger
}

// FileStore is a data directory holding one text file per category plus
// timestamped backups.
type FileStore struct {
	dir             string
	codec           *codec.Codec
	rule            *model.NameRule
	retention       time.Duration
	caseInsensitive bool
	now             func() time.Time
	logger          *log.Logger
	locks           *lockTable
}

// NewFileStore opens an existing data directory. A missing or unreadable
// directory yields ErrDataDirUnavailable; the store never creates it.
func NewFileStore(dir string, opts Options) (*FileStore, error) {
	if err := checkDataDir(dir); err != nil {
		return nil, err
	}

	s := &FileStore{
		dir:       dir,
		codec:     opts.Codec,
		rule:      opts.Rule,
		retention: opts.Retention,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if s.codec == nil {
		s.codec = codec.MustNew(codec.Canonical, codec.Canonical)
	}
	if s.rule == nil {
		s.rule = model.DefaultNameRule()
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}

	switch opts.CasePolicy {
	case CaseInsensitive:
		s.caseInsensitive = true
	case CaseSensitive:
		s.caseInsensitive = false
	default:
		s.caseInsensitive = probeCaseInsensitive(dir)
	}
	s.locks = newLockTable(filepath.Join(dir, lockDirName), s.caseInsensitive)

	s.logger.Debug("file store opened", "dir", dir, "encoding", s.codec.StorageEncoding(), "case_insensitive", s.caseInsensitive)
	return s, nil
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir %q: %w", dir, err)
	}
	return nil
}

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDataDirUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDataDirUnavailable, dir)
	}
	return nil
}

// probeCaseInsensitive creates a lowercase file and checks whether its
// uppercase spelling resolves to it.
func probeCaseInsensitive(dir string) bool {
	f, err := os.CreateTemp(dir, ".caseprobe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	upper := filepath.Join(dir, strings.ToUpper(filepath.Base(name)))
	a, err := os.Stat(name)
	if err != nil {
		return false
	}
	b, err := os.Stat(upper)
	if err != nil {
		return false
	}
	return os.SameFile(a, b)
}

// Dir returns the data directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// CaseInsensitive reports whether category names are compared ignoring case.
func (s *FileStore) CaseInsensitive() bool {
	return s.caseInsensitive
}

// Path maps a category name to its list file. The caller validates the name
// first; Path only fails when the name cannot be encoded for storage.
func (s *FileStore) Path(category string) (string, error) {
	segment, err := s.codec.ToStorage(category)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, segment+listExt), nil
}

// Valid reports whether category passes the name rule and can be stored.
func (s *FileStore) Valid(category string) bool {
	if !s.rule.Valid(category) {
		return false
	}
	_, err := s.Path(category)
	return err == nil
}

// SameCategory compares two names under the store's case policy.
func (s *FileStore) SameCategory(a, b string) bool {
	if s.caseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func (s *FileStore) backupLimit() string {
	return s.now().Add(-s.retention).Format(BackupLayout)
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
