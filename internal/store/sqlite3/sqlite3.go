// Package sqlite3 implements store.Store over an embedded SQLite
// database via modernc.org/sqlite and the goqu query builder.
package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "modernc.org/sqlite"

	"github.com/rakunlabs/flowbot/internal/errs"
	"github.com/rakunlabs/flowbot/internal/store"
)

var DefaultTablePrefix = "flowbot_"

type SQLite struct {
	db   *sql.DB
	goqu *goqu.Database

	tablePrefix string

	mu     sync.RWMutex
	tables map[string]store.TableDef
}

// New opens (creating if needed) a SQLite database at datasource and
// prepares the fixed kv table.
func New(ctx context.Context, datasource, tablePrefix string) (*SQLite, error) {
	if datasource == "" {
		return nil, errors.New("sqlite datasource is required")
	}
	if tablePrefix == "" {
		tablePrefix = DefaultTablePrefix
	}

	db, err := sql.Open("sqlite", datasource)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite is single-writer; limit connections accordingly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{
		db:          db,
		goqu:        goqu.New("sqlite3", db),
		tablePrefix: tablePrefix,
		tables:      make(map[string]store.TableDef),
	}

	if err := s.ensureKV(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("connected to sqlite store", "datasource", datasource)
	return s, nil
}

func (s *SQLite) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("close sqlite store connection", "error", err)
		}
	}
}

func (s *SQLite) kvTable() string { return s.tablePrefix + "kv" }

func (s *SQLite) ensureKV(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		key TEXT PRIMARY KEY,
		value TEXT,
		type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		expires_at TEXT
	)`, s.kvTable())
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// ─── KV ───

func (s *SQLite) Get(ctx context.Context, key string) (*store.StoredValue, error) {
	query, _, err := s.goqu.From(s.kvTable()).
		Select("value", "type", "created_at", "updated_at", "expires_at").
		Where(goqu.I("key").Eq(key)).
		ToSQL()
	if err != nil {
		return nil, err
	}

	var value, typ, createdAt, updatedAt sql.NullString
	var expiresAt sql.NullString
	err = s.db.QueryRowContext(ctx, query).Scan(&value, &typ, &createdAt, &updatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get key %q: %w", key, err)
	}

	sv, err := decodeStoredValue(value, typ, createdAt, updatedAt, expiresAt)
	if err != nil {
		return nil, err
	}
	if sv.Expired(time.Now()) {
		_, _ = s.Delete(ctx, key)
		return nil, nil
	}
	return sv, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value store.StoredValue) error {
	now := time.Now().UTC()
	if value.CreatedAt.IsZero() {
		if existing, err := s.Get(ctx, key); err == nil && existing != nil {
			value.CreatedAt = existing.CreatedAt
		} else {
			value.CreatedAt = now
		}
	}
	value.UpdatedAt = now

	payload, err := json.Marshal(value.Value)
	if err != nil {
		return fmt.Errorf("marshal value for key %q: %w", key, err)
	}

	record := goqu.Record{
		"key":        key,
		"value":      string(payload),
		"type":       string(value.Type),
		"created_at": value.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": value.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at": nil,
	}
	if value.ExpiresAt != nil {
		record["expires_at"] = value.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}

	query, _, err := s.goqu.Insert(s.kvTable()).
		Rows(record).
		OnConflict(goqu.DoUpdate("key", record)).
		ToSQL()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("set key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) (bool, error) {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	query, _, err := s.goqu.Delete(s.kvTable()).Where(goqu.I("key").Eq(key)).ToSQL()
	if err != nil {
		return false, err
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return false, fmt.Errorf("delete key %q: %w", key, err)
	}
	return existing != nil, nil
}

func (s *SQLite) Has(ctx context.Context, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	return v != nil, err
}

func (s *SQLite) Keys(ctx context.Context, glob string) ([]string, error) {
	query, _, err := s.goqu.From(s.kvTable()).Select("key", "expires_at").ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var expired []string
	var out []string
	for rows.Next() {
		var key string
		var expiresAt sql.NullString
		if err := rows.Scan(&key, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		if expiresAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, expiresAt.String)
			if err == nil && !t.After(now) {
				expired = append(expired, key)
				continue
			}
		}
		if glob == "" || store.MatchGlob(glob, key) {
			out = append(out, key)
		}
	}
	for _, k := range expired {
		_, _ = s.Delete(ctx, k)
	}
	return out, rows.Err()
}

func (s *SQLite) Clear(ctx context.Context) error {
	query, _, err := s.goqu.Delete(s.kvTable()).ToSQL()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query)
	return err
}

func decodeStoredValue(value, typ, createdAt, updatedAt, expiresAt sql.NullString) (*store.StoredValue, error) {
	var v any
	if value.Valid && value.String != "" {
		if err := json.Unmarshal([]byte(value.String), &v); err != nil {
			return nil, fmt.Errorf("decode stored value: %w", err)
		}
	}
	sv := &store.StoredValue{Value: v, Type: store.ValueType(typ.String)}
	if t, err := time.Parse(time.RFC3339Nano, createdAt.String); err == nil {
		sv.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt.String); err == nil {
		sv.UpdatedAt = t
	}
	if expiresAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, expiresAt.String); err == nil {
			sv.ExpiresAt = &t
		}
	}
	return sv, nil
}

// ─── Tables ───

func (s *SQLite) physicalName(name string) string {
	return s.tablePrefix + "tbl_" + name
}

func (s *SQLite) CreateTable(ctx context.Context, def store.TableDef) error {
	if !store.ValidIdentifier(def.Name) {
		return fmt.Errorf("%w: invalid table name %q", errs.ErrConstraint, def.Name)
	}
	for _, c := range def.Columns {
		if !store.ValidIdentifier(c.Name) {
			return fmt.Errorf("%w: invalid column name %q", errs.ErrConstraint, c.Name)
		}
	}

	var colDefs []string
	var tableUniques []string
	for _, c := range def.Columns {
		sqlType := sqliteColumnType(c.Type)
		frag := fmt.Sprintf("%q %s", c.Name, sqlType)
		if c.Primary {
			frag += " PRIMARY KEY"
		}
		colDefs = append(colDefs, frag)
		if c.Unique && !c.Primary {
			tableUniques = append(tableUniques, fmt.Sprintf("UNIQUE(%q)", c.Name))
		}
	}
	allDefs := append(colDefs, tableUniques...)
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", s.physicalName(def.Name), strings.Join(allDefs, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %q: %w", def.Name, err)
	}

	for _, c := range def.Columns {
		if !c.Index {
			continue
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (%q)",
			s.tablePrefix+"idx_"+def.Name+"_"+c.Name, s.physicalName(def.Name), c.Name)
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %q.%q: %w", def.Name, c.Name, err)
		}
	}
	for i, cols := range def.CompositeIndexes {
		quoted := make([]string, len(cols))
		for j, c := range cols {
			if !store.ValidIdentifier(c) {
				return fmt.Errorf("%w: invalid composite index column %q", errs.ErrConstraint, c)
			}
			quoted[j] = fmt.Sprintf("%q", c)
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (%s)",
			fmt.Sprintf("%sidx_%s_c%d", s.tablePrefix, def.Name, i), s.physicalName(def.Name), strings.Join(quoted, ", "))
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create composite index on %q: %w", def.Name, err)
		}
	}

	s.mu.Lock()
	s.tables[def.Name] = def
	s.mu.Unlock()
	return nil
}

func (s *SQLite) lookupTable(name string) (store.TableDef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.tables[name]
	return def, ok
}

func (s *SQLite) Insert(ctx context.Context, name string, row map[string]any) error {
	def, ok := s.lookupTable(name)
	if !ok {
		return fmt.Errorf("%w: table %q not declared", errs.ErrConstraint, name)
	}
	row = store.FillPrimaryKey(def, row)
	record := goqu.Record{}
	for _, col := range def.Columns {
		v, has := row[col.Name]
		if !has {
			continue
		}
		enc, err := store.EncodeColumn(col.Type, v)
		if err != nil {
			return err
		}
		record[col.Name] = enc
	}
	query, _, err := s.goqu.Insert(s.physicalName(name)).Rows(record).ToSQL()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %v", errs.ErrConstraint, err)
		}
		return fmt.Errorf("insert into %q: %w", name, err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, name string, where, patch map[string]any) (int, error) {
	def, ok := s.lookupTable(name)
	if !ok {
		return 0, fmt.Errorf("%w: table %q not declared", errs.ErrConstraint, name)
	}
	record := goqu.Record{}
	for k, v := range patch {
		ct := columnType(def, k)
		enc, err := store.EncodeColumn(ct, v)
		if err != nil {
			return 0, err
		}
		record[k] = enc
	}
	exprs, err := buildWhereExprs(def, where)
	if err != nil {
		return 0, err
	}
	query, _, err := s.goqu.Update(s.physicalName(name)).Set(record).Where(exprs...).ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("%w: %v", errs.ErrConstraint, err)
		}
		return 0, fmt.Errorf("update %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLite) DeleteRows(ctx context.Context, name string, where map[string]any) (int, error) {
	def, ok := s.lookupTable(name)
	if !ok {
		return 0, fmt.Errorf("%w: table %q not declared", errs.ErrConstraint, name)
	}
	exprs, err := buildWhereExprs(def, where)
	if err != nil {
		return 0, err
	}
	query, _, err := s.goqu.Delete(s.physicalName(name)).Where(exprs...).ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete from %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLite) Query(ctx context.Context, name string, q store.Query) ([]map[string]any, error) {
	def, ok := s.lookupTable(name)
	if !ok {
		return nil, fmt.Errorf("%w: table %q not declared", errs.ErrConstraint, name)
	}
	cols := q.Select
	if len(cols) == 0 {
		for _, c := range def.Columns {
			cols = append(cols, c.Name)
		}
	}
	selectArgs := make([]any, len(cols))
	for i, c := range cols {
		selectArgs[i] = c
	}

	ds := s.goqu.From(s.physicalName(name)).Select(selectArgs...)
	exprs, err := buildWhereExprs(def, q.Where)
	if err != nil {
		return nil, err
	}
	ds = ds.Where(exprs...)
	if q.OrderBy != "" {
		col, desc := store.ParseOrderBy(q.OrderBy)
		if desc {
			ds = ds.Order(goqu.I(col).Desc())
		} else {
			ds = ds.Order(goqu.I(col).Asc())
		}
	}
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}
	if q.Offset > 0 {
		ds = ds.Offset(uint(q.Offset))
	}

	query, _, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", name, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row from %q: %w", name, err)
		}
		rowMap := make(map[string]any, len(cols))
		for i, c := range cols {
			dv, err := store.DecodeColumn(columnType(def, c), vals[i])
			if err != nil {
				return nil, err
			}
			rowMap[c] = dv
		}
		out = append(out, rowMap)
	}
	return out, rows.Err()
}

func sqliteColumnType(ct store.ColumnType) string {
	switch ct {
	case store.ColNumber:
		return "REAL"
	case store.ColBoolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func columnType(def store.TableDef, name string) store.ColumnType {
	for _, c := range def.Columns {
		if c.Name == name {
			return c.Type
		}
	}
	return store.ColString
}

func buildWhereExprs(def store.TableDef, where map[string]any) ([]goqu.Expression, error) {
	exprs := make([]goqu.Expression, 0, len(where))
	for k, v := range where {
		enc, err := store.EncodeColumn(columnType(def, k), v)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, goqu.I(k).Eq(enc))
	}
	return exprs, nil
}

func isConstraintViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
