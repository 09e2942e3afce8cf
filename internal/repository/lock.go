package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// lockTable serializes work on list files, inside the process with a mutex
// per file and across processes with an advisory lock file per list.
type lockTable struct {
	dir       string
	foldCase  bool
	mu        sync.Mutex
	inProcess map[string]*sync.Mutex
}

func newLockTable(dir string, foldCase bool) *lockTable {
	return &lockTable{
		dir:       dir,
		foldCase:  foldCase,
		inProcess: make(map[string]*sync.Mutex),
	}
}

func (t *lockTable) key(path string) string {
	name := filepath.Base(path)
	if t.foldCase {
		name = strings.ToLower(name)
	}
	return name
}

func (t *lockTable) mutex(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.inProcess[key]
	if !ok {
		m = &sync.Mutex{}
		t.inProcess[key] = m
	}
	return m
}

// acquire locks every path in sorted key order and returns the release
// function. Empty paths are skipped.
func (t *lockTable) acquire(paths ...string) (func(), error) {
	seen := make(map[string]bool, len(paths))
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		k := t.key(p)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	var held []func()
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, k := range keys {
		m := t.mutex(k)
		m.Lock()
		fl := flock.New(filepath.Join(t.dir, k+".lock"))
		if err := fl.Lock(); err != nil {
			m.Unlock()
			release()
			return nil, fmt.Errorf("lock %s: %w", k, err)
		}
		held = append(held, func() {
			_ = fl.Unlock()
			m.Unlock()
		})
	}
	return release, nil
}
