// Package memory is an in-process implementation of store.Store. Data
// does not survive process restarts; it exists for local development
// and for the shared storetest property suite.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rakunlabs/flowbot/internal/errs"
	"github.com/rakunlabs/flowbot/internal/store"
)

type Memory struct {
	mu sync.RWMutex

	kv map[string]store.StoredValue

	tables map[string]*table
}

type table struct {
	def  store.TableDef
	rows []map[string]any
}

func New() *Memory {
	slog.Info("using in-memory store (data will not persist across restarts)")

	return &Memory{
		kv:     make(map[string]store.StoredValue),
		tables: make(map[string]*table),
	}
}

func (m *Memory) Close() {}

// ─── KV ───

func (m *Memory) Get(_ context.Context, key string) (*store.StoredValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.kv[key]
	if !ok {
		return nil, nil
	}
	if v.Expired(time.Now()) {
		delete(m.kv, key)
		return nil, nil
	}
	return &v, nil
}

func (m *Memory) Set(_ context.Context, key string, value store.StoredValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if value.CreatedAt.IsZero() {
		if existing, ok := m.kv[key]; ok && !existing.Expired(now) {
			value.CreatedAt = existing.CreatedAt
		} else {
			value.CreatedAt = now
		}
	}
	value.UpdatedAt = now
	m.kv[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.kv[key]
	if !ok || v.Expired(time.Now()) {
		delete(m.kv, key)
		return false, nil
	}
	delete(m.kv, key)
	return true, nil
}

func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.kv[key]
	if !ok {
		return false, nil
	}
	if v.Expired(time.Now()) {
		delete(m.kv, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Keys(_ context.Context, glob string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []string
	for k, v := range m.kv {
		if v.Expired(now) {
			delete(m.kv, k)
			continue
		}
		if glob == "" || store.MatchGlob(glob, k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.kv = make(map[string]store.StoredValue)
	return nil
}

// ─── Tables ───

func (m *Memory) CreateTable(_ context.Context, def store.TableDef) error {
	if !store.ValidIdentifier(def.Name) {
		return fmt.Errorf("%w: invalid table name %q", errs.ErrConstraint, def.Name)
	}
	for _, c := range def.Columns {
		if !store.ValidIdentifier(c.Name) {
			return fmt.Errorf("%w: invalid column name %q", errs.ErrConstraint, c.Name)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[def.Name]; ok {
		return nil // idempotent
	}
	m.tables[def.Name] = &table{def: def}
	return nil
}

func (m *Memory) Insert(_ context.Context, name string, row map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[name]
	if !ok {
		return fmt.Errorf("%w: table %q not declared", errs.ErrConstraint, name)
	}

	row = store.FillPrimaryKey(t.def, row)

	for _, col := range t.def.Columns {
		if !col.Primary && !col.Unique {
			continue
		}
		v, has := row[col.Name]
		if !has {
			continue
		}
		for _, existing := range t.rows {
			if valuesEqual(existing[col.Name], v) {
				return fmt.Errorf("%w: column %q value already exists", errs.ErrConstraint, col.Name)
			}
		}
	}

	t.rows = append(t.rows, row)
	return nil
}

func (m *Memory) Update(_ context.Context, name string, where map[string]any, patch map[string]any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[name]
	if !ok {
		return 0, fmt.Errorf("%w: table %q not declared", errs.ErrConstraint, name)
	}

	count := 0
	for _, row := range t.rows {
		if !rowMatches(row, where) {
			continue
		}
		for k, v := range patch {
			row[k] = v
		}
		count++
	}
	return count, nil
}

func (m *Memory) DeleteRows(_ context.Context, name string, where map[string]any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[name]
	if !ok {
		return 0, fmt.Errorf("%w: table %q not declared", errs.ErrConstraint, name)
	}

	kept := t.rows[:0:0]
	count := 0
	for _, row := range t.rows {
		if rowMatches(row, where) {
			count++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return count, nil
}

func (m *Memory) Query(_ context.Context, name string, q store.Query) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %q not declared", errs.ErrConstraint, name)
	}

	var matched []map[string]any
	for _, row := range t.rows {
		if rowMatches(row, q.Where) {
			matched = append(matched, row)
		}
	}

	if q.OrderBy != "" {
		col, desc := store.ParseOrderBy(q.OrderBy)
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareAny(matched[i][col], matched[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]map[string]any, len(matched))
	for i, row := range matched {
		out[i] = projectColumns(row, q.Select)
	}
	return out, nil
}

func projectColumns(row map[string]any, sel []string) map[string]any {
	if len(sel) == 0 {
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(sel))
	for _, c := range sel {
		out[c] = row[c]
	}
	return out
}

func rowMatches(row map[string]any, where map[string]any) bool {
	for k, v := range where {
		if !valuesEqual(row[k], v) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	return fmt.Sprintf("%v|%T", a, a) == fmt.Sprintf("%v|%T", b, b)
}

func compareAny(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

