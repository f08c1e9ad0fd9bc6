// Package sqlstore adapts a SQLite database to the orm boundary: it reads
// model metadata from the schema, loads rows as *orm.Record values, looks
// instances up by primary or natural key, and saves reverted objects.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/hengadev/serializers/internal/retry"
	"github.com/hengadev/serializers/orm"
)

// Store is an orm.Manager and orm.Saver over one database. Tables are named
// after model labels with the dot replaced by an underscore ("blog_post").
type Store struct {
	db       *sql.DB
	registry *orm.Registry
	retry    retry.Config

	mu sync.RWMutex
	// junctions holds the intermediate table of each many-to-many field,
	// keyed by "label.field".
	junctions map[string]junction
}

type junction struct {
	table  string
	source string
	target string
}

// Open opens the SQLite database at path, ":memory:" included, and checks
// the connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if path == ":memory:" {
		// every connection of an in-memory database is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return db, nil
}

// New returns a store for db registering models into registry. Saves that
// find the database locked are retried with backoff.
func New(db *sql.DB, registry *orm.Registry) *Store {
	cfg := retry.DefaultConfig()
	cfg.Retryable = isBusy
	return &Store{
		db:        db,
		registry:  registry,
		retry:     cfg,
		junctions: make(map[string]junction),
	}
}

// Registry returns the registry models are registered in.
func (s *Store) Registry() *orm.Registry {
	return s.registry
}

// TableName returns the table of model m.
func TableName(m *orm.Model) string {
	return strings.ReplaceAll(m.Label(), ".", "_")
}

// All loads every instance of m ordered by primary key.
func (s *Store) All(ctx context.Context, m *orm.Model) (orm.QuerySet, error) {
	records, err := s.query(ctx, m, "", nil)
	if err != nil {
		return orm.QuerySet{}, err
	}
	return orm.QuerySet{Model: m, Items: records}, nil
}

// Objects loads the instances of the models with the given labels, or of
// every registered model when none is given, in label order.
func (s *Store) Objects(ctx context.Context, labels ...string) ([]any, error) {
	var models []*orm.Model
	if len(labels) == 0 {
		models = s.registry.Models()
	}
	for _, label := range labels {
		m, err := s.registry.Get(label)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	var out []any
	for _, m := range models {
		qs, err := s.All(ctx, m)
		if err != nil {
			return nil, err
		}
		out = append(out, qs.Items...)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, m *orm.Model, pk any) (any, error) {
	return s.one(ctx, m, fmt.Sprintf("pk=%v", pk), []string{m.PK.ColumnName()}, []any{pk})
}

func (s *Store) GetByNaturalKey(ctx context.Context, m *orm.Model, key []any) (any, error) {
	if len(m.NaturalKey) == 0 {
		return nil, fmt.Errorf("%w: %s", orm.ErrNoNaturalKey, m.Label())
	}
	if len(key) != len(m.NaturalKey) {
		return nil, fmt.Errorf("%w: %s natural key has %d parts, got %d", orm.ErrNotFound, m.Label(), len(m.NaturalKey), len(key))
	}
	columns := make([]string, len(m.NaturalKey))
	for i, name := range m.NaturalKey {
		f, ok := m.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no field %q", orm.ErrInvalidModel, m.Label(), name)
		}
		columns[i] = f.ColumnName()
	}
	args := make([]any, len(key))
	for i, part := range key {
		args[i] = sqlValue(part)
	}
	return s.one(ctx, m, fmt.Sprintf("natural key %v", key), columns, args)
}

func (s *Store) one(ctx context.Context, m *orm.Model, desc string, columns []string, args []any) (any, error) {
	conds := make([]string, len(columns))
	for i, c := range columns {
		conds[i] = quote(c) + " = ?"
	}
	records, err := s.query(ctx, m, strings.Join(conds, " AND "), args)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, fmt.Errorf("%w: %s %s", orm.ErrNotFound, m.Label(), desc)
	case 1:
		return records[0], nil
	}
	return nil, fmt.Errorf("%w: %s %s", orm.ErrMultipleResults, m.Label(), desc)
}

// query loads the records of m matching where.
func (s *Store) query(ctx context.Context, m *orm.Model, where string, args []any) ([]any, error) {
	fields := append([]orm.Field{m.PK}, m.Fields...)
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = quote(f.ColumnName())
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), quote(TableName(m)))
	if where != "" {
		stmt += " WHERE " + where
	}
	stmt += " ORDER BY " + quote(m.PK.ColumnName())

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", m.Label(), err)
	}
	defer rows.Close()

	var records []any
	for rows.Next() {
		values := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", m.Label(), err)
		}
		rec := orm.NewRecord(m)
		for i, f := range fields {
			value, err := s.fromColumn(f, values[i])
			if err != nil {
				return nil, err
			}
			rec.Values[f.Name] = value
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.Label(), err)
	}

	for _, f := range m.ManyToMany {
		for _, r := range records {
			rec := r.(*orm.Record)
			members, err := s.members(ctx, m, f, rec.Values[m.PK.Name])
			if err != nil {
				return nil, err
			}
			rec.Values[f.Name] = members
		}
	}
	return records, nil
}

// fromColumn converts a scanned column to the value stored on a record:
// foreign keys become references and text columns strings.
func (s *Store) fromColumn(f orm.Field, value any) (any, error) {
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	if value == nil || !f.IsRelation() {
		return value, nil
	}
	target, err := s.registry.Target(f)
	if err != nil {
		return nil, err
	}
	return orm.Ref{Model: target, PK: value}, nil
}

func (s *Store) members(ctx context.Context, m *orm.Model, f orm.Field, pk any) ([]any, error) {
	j, ok := s.junction(m, f)
	if !ok {
		return nil, fmt.Errorf("%w: no intermediate table for %s.%s", orm.ErrInvalidModel, m.Label(), f.Name)
	}
	target, err := s.registry.Target(f)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s",
		quote(j.target), quote(j.table), quote(j.source), quote(j.target))
	rows, err := s.db.QueryContext(ctx, stmt, pk)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", j.table, err)
	}
	defer rows.Close()

	members := []any{}
	for rows.Next() {
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", j.table, err)
		}
		members = append(members, orm.Ref{Model: target, PK: id})
	}
	return members, rows.Err()
}

func (s *Store) junction(m *orm.Model, f orm.Field) (junction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.junctions[m.Label()+"."+f.Name]
	return j, ok
}

// SetJunction declares the intermediate table of a many-to-many field whose
// table Introspect could not recognise.
func (s *Store) SetJunction(m *orm.Model, field, table, sourceColumn, targetColumn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.junctions[m.Label()+"."+field] = junction{table: table, source: sourceColumn, target: targetColumn}
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
