package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hengadev/serializers/internal/access"
	"github.com/hengadev/serializers/internal/retry"
	"github.com/hengadev/serializers/orm"
	"github.com/mattn/go-sqlite3"
)

// Save upserts a reverted object by primary key and replaces the members of
// every many-to-many field it carries. Objects without a primary key are
// inserted and receive the generated one.
func (s *Store) Save(ctx context.Context, d *orm.DeserializedObject) error {
	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.save(ctx, d)
	})
}

func (s *Store) save(ctx context.Context, d *orm.DeserializedObject) error {
	m := d.Model
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pk, err := s.upsert(ctx, tx, d)
	if err != nil {
		return err
	}
	for name, items := range d.ManyToMany {
		f, ok := m.FieldByName(name)
		if !ok {
			return fmt.Errorf("%w: %s has no field %q", orm.ErrInvalidModel, m.Label(), name)
		}
		if err := s.replaceMembers(ctx, tx, m, f, pk, items); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to save %s: %w", d, err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, tx *sql.Tx, d *orm.DeserializedObject) (any, error) {
	m := d.Model
	var columns []string
	var args []any

	pk := sqlValue(d.PK())
	if pk != nil {
		columns = append(columns, quote(m.PK.ColumnName()))
		args = append(args, pk)
	}
	for _, f := range m.Fields {
		value, ok, err := attribute(d, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		columns = append(columns, quote(f.ColumnName()))
		args = append(args, sqlValue(value))
	}

	table := quote(TableName(m))
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	var stmt string
	switch {
	case len(columns) == 0:
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table)
	case pk == nil:
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
	default:
		updates := make([]string, 0, len(columns)-1)
		for _, c := range columns[1:] {
			updates = append(updates, c+" = excluded."+c)
		}
		conflict := "DO NOTHING"
		if len(updates) > 0 {
			conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
		}
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) %s",
			table, strings.Join(columns, ", "), placeholders, columns[0], conflict)
	}

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", d, err)
	}
	if pk != nil {
		return pk, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read generated key of %s: %w", m.Label(), err)
	}
	if err := access.Set(d.Object, m.PK.Name, id); err != nil {
		return nil, fmt.Errorf("failed to set generated key of %s: %w", m.Label(), err)
	}
	return id, nil
}

// attribute returns the value of f on a reverted object. Attributes absent
// from a record are reported missing so a partial fixture keeps the stored
// columns.
func attribute(d *orm.DeserializedObject, f orm.Field) (any, bool, error) {
	if f.IsRelation() {
		if v, ok := d.Relations[f.Name]; ok {
			return v, true, nil
		}
	}
	if rec, ok := d.Object.(*orm.Record); ok {
		v, ok := rec.Values[f.Name]
		return v, ok, nil
	}
	if f.IsRelation() {
		return nil, false, nil
	}
	v, err := access.Get(d.Object, f.Name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s.%s: %w", d.Model.Label(), f.Name, err)
	}
	return v, true, nil
}

func (s *Store) replaceMembers(ctx context.Context, tx *sql.Tx, m *orm.Model, f orm.Field, pk any, items []any) error {
	j, ok := s.junction(m, f)
	if !ok {
		return fmt.Errorf("%w: no intermediate table for %s.%s", orm.ErrInvalidModel, m.Label(), f.Name)
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(j.table), quote(j.source))
	if _, err := tx.ExecContext(ctx, del, pk); err != nil {
		return fmt.Errorf("failed to clear %s.%s: %w", m.Label(), f.Name, err)
	}
	ins := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", quote(j.table), quote(j.source), quote(j.target))
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, ins, pk, sqlValue(item)); err != nil {
			return fmt.Errorf("failed to add %v to %s.%s: %w", item, m.Label(), f.Name, err)
		}
	}
	return nil
}

// isBusy reports whether err comes from another connection holding a lock.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// sqlValue reduces references and records to their primary key.
func sqlValue(v any) any {
	switch x := v.(type) {
	case orm.Ref:
		return x.PK
	case *orm.Record:
		if x.Model != nil {
			return x.Values[x.Model.PK.Name]
		}
	}
	return v
}
