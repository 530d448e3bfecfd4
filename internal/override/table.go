// Package override holds the manual override table: exact raw names mapped
// to a chosen catalog entry. Rows already present always win.
package override

import (
	"errors"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wine-resolver/internal/csvio"
	"github.com/sells-group/wine-resolver/internal/model"
)

// Table is an in-memory override table. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	rows  map[string]model.OverrideRecord
	dirty bool
}

// New builds a table from rows. Rows with an empty match_name are dropped;
// for duplicate names the first row wins.
func New(rows []model.OverrideRecord) *Table {
	t := &Table{rows: make(map[string]model.OverrideRecord, len(rows))}
	for _, r := range rows {
		key := r.Key()
		if key == "" {
			continue
		}
		if _, ok := t.rows[key]; ok {
			continue
		}
		r.MatchName = key
		t.rows[key] = r
	}
	return t
}

// Load reads the table from a CSV file. A missing file is an empty table.
func Load(path string) (*Table, error) {
	rows, err := csvio.ReadFile[model.OverrideRecord](path, csvio.ReadOptions{})
	if errors.Is(err, os.ErrNotExist) {
		return New(nil), nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "override: load")
	}
	return New(rows), nil
}

// Get returns the row for rawName.
func (t *Table) Get(rawName string) (model.OverrideRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[strings.TrimSpace(rawName)]
	return r, ok
}

// Has reports whether rawName has a row.
func (t *Table) Has(rawName string) bool {
	_, ok := t.Get(rawName)
	return ok
}

// Apply inserts r unless a row with the same key exists. It returns false
// on conflict and leaves the existing row untouched.
func (t *Table) Apply(r model.OverrideRecord) (bool, error) {
	key := r.Key()
	if key == "" {
		return false, eris.New("override: empty match_name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[key]; ok {
		return false, nil
	}
	r.MatchName = key
	t.rows[key] = r
	t.dirty = true
	return true, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Dirty reports whether Apply added rows since the table was loaded or saved.
func (t *Table) Dirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty
}

// Rows returns every row sorted by match_name.
func (t *Table) Rows() []model.OverrideRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.OverrideRecord, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchName < out[j].MatchName })
	return out
}

// Save atomically writes the table to path and clears the dirty flag.
func (t *Table) Save(path string) error {
	if err := csvio.WriteFile(path, t.Rows()); err != nil {
		return eris.Wrap(err, "override: save")
	}
	t.mu.Lock()
	t.dirty = false
	t.mu.Unlock()
	return nil
}
