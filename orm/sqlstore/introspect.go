package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hengadev/serializers/orm"
)

type column struct {
	name    string
	decl    string
	notNull bool
	pk      bool
}

type foreignKey struct {
	from  string
	table string
}

type table struct {
	name    string
	columns []column
	fks     []foreignKey
	unique  [][]string
}

// Introspect reads the tables prefixed with app+"_" and registers one model
// per table, with the store as its manager. A table holding only an id and
// two foreign keys, named after a model table plus a field name, becomes the
// many-to-many field of that model. The first unique constraint outside the
// primary key becomes the natural key.
func (s *Store) Introspect(ctx context.Context, app string) ([]*orm.Model, error) {
	names, err := s.tables(ctx, app+"_")
	if err != nil {
		return nil, err
	}
	tables := make(map[string]*table, len(names))
	for _, name := range names {
		t, err := s.describe(ctx, name)
		if err != nil {
			return nil, err
		}
		tables[name] = t
	}

	var junctions []*table
	models := make(map[string]*orm.Model)
	var order []string
	for _, name := range names {
		t := tables[name]
		if isJunction(t) {
			junctions = append(junctions, t)
			continue
		}
		models[name] = s.model(app, t)
		order = append(order, name)
	}

	for _, j := range junctions {
		source, target, field, ok := junctionOf(j, models)
		if !ok {
			return nil, fmt.Errorf("%w: %s looks like an intermediate table but names no model", orm.ErrInvalidModel, j.name)
		}
		m := models[source.table]
		m.ManyToMany = append(m.ManyToMany, orm.Field{
			Name:   field,
			Kind:   orm.ManyToManyField,
			Target: models[target.table].Label(),
		})
		s.SetJunction(m, field, j.name, source.from, target.from)
	}

	out := make([]*orm.Model, 0, len(order))
	for _, name := range order {
		out = append(out, models[name])
	}
	if err := s.registry.Register(out...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) tables(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

func (s *Store) describe(ctx context.Context, name string) (*table, error) {
	t := &table{name: name}

	rows, err := s.db.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", name, err)
	}
	for rows.Next() {
		var c column
		var pk int
		if err := rows.Scan(&c.name, &c.decl, &c.notNull, &pk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to describe %s: %w", name, err)
		}
		c.pk = pk > 0
		t.columns = append(t.columns, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT "from", "table" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", name, err)
	}
	for rows.Next() {
		var fk foreignKey
		if err := rows.Scan(&fk.from, &fk.table); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read foreign keys of %s: %w", name, err)
		}
		t.fks = append(t.fks, fk)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unique, err := s.uniqueColumns(ctx, name)
	if err != nil {
		return nil, err
	}
	t.unique = unique
	return t, nil
}

// uniqueColumns lists the column sets of the unique indexes of a table other
// than its primary key, sorted by index name.
func (s *Store) uniqueColumns(ctx context.Context, name string) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_index_list(?) WHERE "unique" = 1 AND origin != 'pk' ORDER BY name`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", name, err)
	}
	var indexes []string
	for rows.Next() {
		var index string
		if err := rows.Scan(&index); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read indexes of %s: %w", name, err)
		}
		indexes = append(indexes, index)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out [][]string
	for _, index := range indexes {
		cols, err := s.indexColumns(ctx, index)
		if err != nil {
			return nil, err
		}
		out = append(out, cols)
	}
	return out, nil
}

func (s *Store) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", index, err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to read index %s: %w", index, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (s *Store) model(app string, t *table) *orm.Model {
	m := &orm.Model{
		App:     app,
		Name:    strings.TrimPrefix(t.name, app+"_"),
		Manager: s,
	}
	fks := make(map[string]string, len(t.fks))
	for _, fk := range t.fks {
		fks[fk.from] = fk.table
	}
	fieldNames := make(map[string]string, len(t.columns))
	for _, c := range t.columns {
		if c.pk {
			kind := kindOf(c.decl)
			if kind == orm.IntegerField {
				kind = orm.AutoField
			}
			m.PK = orm.Field{Name: c.name, Kind: kind}
			fieldNames[c.name] = c.name
			continue
		}
		f := orm.Field{Name: c.name, Kind: kindOf(c.decl), Null: !c.notNull}
		if target, ok := fks[c.name]; ok {
			f.Kind = orm.ForeignKey
			f.Target = app + "." + strings.TrimPrefix(target, app+"_")
			f.Name = strings.TrimSuffix(c.name, "_id")
			f.Column = c.name
		}
		fieldNames[c.name] = f.Name
		m.Fields = append(m.Fields, f)
	}
	if len(t.unique) > 0 {
		for _, c := range t.unique[0] {
			m.NaturalKey = append(m.NaturalKey, fieldNames[c])
		}
	}
	return m
}

// kindOf maps a declared column type to a field kind following SQLite's
// affinity rules, with the date, boolean and uuid names recognised first.
func kindOf(decl string) orm.Kind {
	d := strings.ToUpper(decl)
	switch {
	case strings.Contains(d, "DATETIME"), strings.Contains(d, "TIMESTAMP"):
		return orm.DateTimeField
	case strings.Contains(d, "DATE"):
		return orm.DateField
	case strings.Contains(d, "BOOL"):
		return orm.BooleanField
	case strings.Contains(d, "UUID"):
		return orm.UUIDField
	case strings.Contains(d, "INT"):
		return orm.IntegerField
	case strings.Contains(d, "CHAR"):
		return orm.CharField
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return orm.FloatField
	}
	return orm.TextField
}

func isJunction(t *table) bool {
	if len(t.fks) != 2 {
		return false
	}
	for _, c := range t.columns {
		if !c.pk && c.name != t.fks[0].from && c.name != t.fks[1].from {
			return false
		}
	}
	return true
}

// junctionOf finds which foreign key of an intermediate table points at the
// owning model: the one whose table prefixes the intermediate table name.
// The rest of the name is the field name.
func junctionOf(j *table, models map[string]*orm.Model) (source, target foreignKey, field string, ok bool) {
	candidates := []foreignKey{j.fks[0], j.fks[1]}
	// longest table name first so blog_post wins over blog for blog_post_tags
	sort.SliceStable(candidates, func(a, b int) bool { return len(candidates[a].table) > len(candidates[b].table) })
	for i, fk := range candidates {
		if _, known := models[fk.table]; !known {
			continue
		}
		if !strings.HasPrefix(j.name, fk.table+"_") {
			continue
		}
		other := candidates[1-i]
		if _, known := models[other.table]; !known {
			return foreignKey{}, foreignKey{}, "", false
		}
		return fk, other, strings.TrimPrefix(j.name, fk.table+"_"), true
	}
	return foreignKey{}, foreignKey{}, "", false
}
