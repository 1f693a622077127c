// Package postgres implements store.Store against a networked Postgres
// database via jackc/pgx/v5 and the goqu query builder.
package postgres

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

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/rakunlabs/flowbot/internal/errs"
	"github.com/rakunlabs/flowbot/internal/store"
)

var (
	ConnMaxLifetime = 15 * time.Minute
	MaxIdleConns    = 3
	MaxOpenConns    = 3

	DefaultTablePrefix = "flowbot_"
)

type Postgres struct {
	db   *sql.DB
	goqu *goqu.Database

	schema      string
	tablePrefix string

	mu     sync.RWMutex
	tables map[string]store.TableDef
}

type Config struct {
	Datasource      string
	Schema          string
	TablePrefix     string
	ConnMaxLifetime *time.Duration
	MaxIdleConns    *int
	MaxOpenConns    *int
}

func New(ctx context.Context, cfg Config) (*Postgres, error) {
	if cfg.Datasource == "" {
		return nil, errors.New("postgres datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != "" {
		tablePrefix = cfg.TablePrefix
	}

	db, err := sql.Open("pgx", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if cfg.Schema != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", cfg.Schema)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set search_path: %w", err)
		}
	}

	connMaxLifetime := ConnMaxLifetime
	if cfg.ConnMaxLifetime != nil {
		connMaxLifetime = *cfg.ConnMaxLifetime
	}
	maxIdleConns := MaxIdleConns
	if cfg.MaxIdleConns != nil {
		maxIdleConns = *cfg.MaxIdleConns
	}
	maxOpenConns := MaxOpenConns
	if cfg.MaxOpenConns != nil {
		maxOpenConns = *cfg.MaxOpenConns
	}

	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetMaxOpenConns(maxOpenConns)

	p := &Postgres{
		db:          db,
		goqu:        goqu.New("postgres", db),
		schema:      cfg.Schema,
		tablePrefix: tablePrefix,
		tables:      make(map[string]store.TableDef),
	}

	if err := p.ensureKV(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("connected to postgres store")
	return p, nil
}

func (p *Postgres) Close() {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			slog.Error("close postgres store connection", "error", err)
		}
	}
}

func (p *Postgres) kvTable() string { return p.tablePrefix + "kv" }

func (p *Postgres) ensureKV(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		key TEXT PRIMARY KEY,
		value TEXT,
		type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ
	)`, p.kvTable())
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// ─── KV ───

func (p *Postgres) Get(ctx context.Context, key string) (*store.StoredValue, error) {
	query, _, err := p.goqu.From(p.kvTable()).
		Select("value", "type", "created_at", "updated_at", "expires_at").
		Where(goqu.I("key").Eq(key)).
		ToSQL()
	if err != nil {
		return nil, err
	}

	var value sql.NullString
	var typ string
	var createdAt, updatedAt time.Time
	var expiresAt sql.NullTime
	err = p.db.QueryRowContext(ctx, query).Scan(&value, &typ, &createdAt, &updatedAt, &expiresAt)
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
		_, _ = p.Delete(ctx, key)
		return nil, nil
	}
	return sv, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value store.StoredValue) error {
	now := time.Now().UTC()
	if value.CreatedAt.IsZero() {
		if existing, err := p.Get(ctx, key); err == nil && existing != nil {
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
		"created_at": value.CreatedAt.UTC(),
		"updated_at": value.UpdatedAt.UTC(),
		"expires_at": nil,
	}
	if value.ExpiresAt != nil {
		record["expires_at"] = value.ExpiresAt.UTC()
	}

	insertDS := p.goqu.Insert(p.kvTable()).Rows(record)
	query, _, err := insertDS.OnConflict(goqu.DoUpdate("key", record)).ToSQL()
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("set key %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) (bool, error) {
	existing, err := p.Get(ctx, key)
	if err != nil {
		return false, err
	}
	query, _, err := p.goqu.Delete(p.kvTable()).Where(goqu.I("key").Eq(key)).ToSQL()
	if err != nil {
		return false, err
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return false, fmt.Errorf("delete key %q: %w", key, err)
	}
	return existing != nil, nil
}

func (p *Postgres) Has(ctx context.Context, key string) (bool, error) {
	v, err := p.Get(ctx, key)
	return v != nil, err
}

func (p *Postgres) Keys(ctx context.Context, glob string) ([]string, error) {
	query, _, err := p.goqu.From(p.kvTable()).Select("key", "expires_at").ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var expired []string
	var out []string
	for rows.Next() {
		var key string
		var expiresAt sql.NullTime
		if err := rows.Scan(&key, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		if expiresAt.Valid && !expiresAt.Time.After(now) {
			expired = append(expired, key)
			continue
		}
		if glob == "" || store.MatchGlob(glob, key) {
			out = append(out, key)
		}
	}
	for _, k := range expired {
		_, _ = p.Delete(ctx, k)
	}
	return out, rows.Err()
}

func (p *Postgres) Clear(ctx context.Context) error {
	query, _, err := p.goqu.Delete(p.kvTable()).ToSQL()
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, query)
	return err
}

func decodeStoredValue(value sql.NullString, typ string, createdAt, updatedAt time.Time, expiresAt sql.NullTime) (*store.StoredValue, error) {
	var v any
	if value.Valid && value.String != "" {
		if err := json.Unmarshal([]byte(value.String), &v); err != nil {
			return nil, fmt.Errorf("decode stored value: %w", err)
		}
	}
	sv := &store.StoredValue{
		Value:     v,
		Type:      store.ValueType(typ),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		sv.ExpiresAt = &t
	}
	return sv, nil
}

// ─── Tables ───

func (p *Postgres) physicalName(name string) string {
	return p.tablePrefix + "tbl_" + name
}

func (p *Postgres) CreateTable(ctx context.Context, def store.TableDef) error {
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
		sqlType := postgresColumnType(c.Type)
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
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", p.physicalName(def.Name), strings.Join(allDefs, ", "))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %q: %w", def.Name, err)
	}

	for _, c := range def.Columns {
		if !c.Index {
			continue
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (%q)",
			p.tablePrefix+"idx_"+def.Name+"_"+c.Name, p.physicalName(def.Name), c.Name)
		if _, err := p.db.ExecContext(ctx, idx); err != nil {
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
			fmt.Sprintf("%sidx_%s_c%d", p.tablePrefix, def.Name, i), p.physicalName(def.Name), strings.Join(quoted, ", "))
		if _, err := p.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create composite index on %q: %w", def.Name, err)
		}
	}

	p.mu.Lock()
	p.tables[def.Name] = def
	p.mu.Unlock()
	return nil
}

func (p *Postgres) lookupTable(name string) (store.TableDef, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	def, ok := p.tables[name]
	return def, ok
}

func (p *Postgres) Insert(ctx context.Context, name string, row map[string]any) error {
	def, ok := p.lookupTable(name)
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
	query, _, err := p.goqu.Insert(p.physicalName(name)).Rows(record).ToSQL()
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %v", errs.ErrConstraint, err)
		}
		return fmt.Errorf("insert into %q: %w", name, err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, name string, where, patch map[string]any) (int, error) {
	def, ok := p.lookupTable(name)
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
	query, _, err := p.goqu.Update(p.physicalName(name)).Set(record).Where(exprs...).ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := p.db.ExecContext(ctx, query)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("%w: %v", errs.ErrConstraint, err)
		}
		return 0, fmt.Errorf("update %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *Postgres) DeleteRows(ctx context.Context, name string, where map[string]any) (int, error) {
	def, ok := p.lookupTable(name)
	if !ok {
		return 0, fmt.Errorf("%w: table %q not declared", errs.ErrConstraint, name)
	}
	exprs, err := buildWhereExprs(def, where)
	if err != nil {
		return 0, err
	}
	query, _, err := p.goqu.Delete(p.physicalName(name)).Where(exprs...).ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := p.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete from %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *Postgres) Query(ctx context.Context, name string, q store.Query) ([]map[string]any, error) {
	def, ok := p.lookupTable(name)
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

	ds := p.goqu.From(p.physicalName(name)).Select(selectArgs...)
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
	rows, err := p.db.QueryContext(ctx, query)
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

func postgresColumnType(ct store.ColumnType) string {
	switch ct {
	case store.ColNumber:
		return "DOUBLE PRECISION"
	case store.ColBoolean:
		return "BOOLEAN"
	case store.ColTimestamp:
		return "TEXT"
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
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
