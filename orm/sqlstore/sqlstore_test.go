package sqlstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/hengadev/serializers/orm"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogSchema = `
CREATE TABLE blog_author (id INTEGER PRIMARY KEY, name VARCHAR(100) NOT NULL UNIQUE);
CREATE TABLE blog_tag (id INTEGER PRIMARY KEY, label TEXT NOT NULL);
CREATE TABLE blog_post (
	id INTEGER PRIMARY KEY,
	title VARCHAR(200) NOT NULL,
	published BOOLEAN NOT NULL DEFAULT 0,
	author_id INTEGER REFERENCES blog_author(id)
);
CREATE TABLE blog_post_tags (
	id INTEGER PRIMARY KEY,
	post_id INTEGER NOT NULL REFERENCES blog_post(id),
	tag_id INTEGER NOT NULL REFERENCES blog_tag(id)
);
CREATE TABLE other_thing (id INTEGER PRIMARY KEY);
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(ctx, blogSchema)
	require.NoError(t, err)

	s := New(db, orm.NewRegistry())
	_, err = s.Introspect(ctx, "blog")
	require.NoError(t, err)
	return s
}

func model(t *testing.T, s *Store, label string) *orm.Model {
	t.Helper()
	m, err := s.Registry().Get(label)
	require.NoError(t, err)
	return m
}

func save(t *testing.T, s *Store, m *orm.Model, attrs map[string]any) {
	t.Helper()
	d, err := m.Build(attrs)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), d))
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	author := model(t, s, "blog.author")
	tag := model(t, s, "blog.tag")
	post := model(t, s, "blog.post")

	save(t, s, author, map[string]any{"id": int64(1), "name": "ada"})
	save(t, s, tag, map[string]any{"id": int64(1), "label": "go"})
	save(t, s, tag, map[string]any{"id": int64(2), "label": "sql"})
	save(t, s, post, map[string]any{
		"id":        int64(1),
		"title":     "Hello",
		"published": true,
		"author":    orm.Ref{Model: author, PK: int64(1)},
		"tags":      []any{orm.Ref{Model: tag, PK: int64(2)}, orm.Ref{Model: tag, PK: int64(1)}},
	})
}

func TestIntrospect(t *testing.T) {
	s := newTestStore(t)

	labels := []string{}
	for _, m := range s.Registry().Models() {
		labels = append(labels, m.Label())
	}
	assert.Equal(t, []string{"blog.author", "blog.post", "blog.tag"}, labels)

	author := model(t, s, "blog.author")
	assert.Equal(t, orm.AutoField, author.PK.Kind)
	assert.Equal(t, []string{"name"}, author.NaturalKey)
	assert.Same(t, s, author.Manager)

	post := model(t, s, "blog.post")
	require.Len(t, post.Fields, 3)
	assert.Equal(t, orm.CharField, post.Fields[0].Kind)
	assert.Equal(t, orm.BooleanField, post.Fields[1].Kind)
	fk := post.Fields[2]
	assert.Equal(t, "author", fk.Name)
	assert.Equal(t, "author_id", fk.ColumnName())
	assert.Equal(t, orm.ForeignKey, fk.Kind)
	assert.Equal(t, "blog.author", fk.Target)
	assert.True(t, fk.Null)

	require.Len(t, post.ManyToMany, 1)
	assert.Equal(t, "tags", post.ManyToMany[0].Name)
	assert.Equal(t, "blog.tag", post.ManyToMany[0].Target)
	assert.Empty(t, post.NaturalKey)
}

func TestKindOf(t *testing.T) {
	tests := map[string]orm.Kind{
		"INTEGER":     orm.IntegerField,
		"varchar(20)": orm.CharField,
		"TEXT":        orm.TextField,
		"REAL":        orm.FloatField,
		"double":      orm.FloatField,
		"BOOLEAN":     orm.BooleanField,
		"DATETIME":    orm.DateTimeField,
		"timestamp":   orm.DateTimeField,
		"DATE":        orm.DateField,
		"UUID":        orm.UUIDField,
		"":            orm.TextField,
	}
	for decl, want := range tests {
		t.Run(decl, func(t *testing.T) {
			assert.Equal(t, want, kindOf(decl))
		})
	}
}

func TestSaveAndAll(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	post := model(t, s, "blog.post")
	qs, err := s.All(ctx, post)
	require.NoError(t, err)
	require.Len(t, qs.Items, 1)

	rec := qs.Items[0].(*orm.Record)
	assert.Equal(t, int64(1), rec.Values["id"])
	assert.Equal(t, "Hello", rec.Values["title"])
	assert.Equal(t, true, rec.Values["published"])

	author := model(t, s, "blog.author")
	tag := model(t, s, "blog.tag")
	assert.Equal(t, orm.Ref{Model: author, PK: int64(1)}, rec.Values["author"])
	assert.Equal(t, []any{
		orm.Ref{Model: tag, PK: int64(1)},
		orm.Ref{Model: tag, PK: int64(2)},
	}, rec.Values["tags"])
}

func TestSaveUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()
	post := model(t, s, "blog.post")
	tag := model(t, s, "blog.tag")

	// title only: the stored author survives, tags are replaced
	save(t, s, post, map[string]any{
		"id":    int64(1),
		"title": "Hello again",
		"tags":  []any{orm.Ref{Model: tag, PK: int64(1)}},
	})

	got, err := s.Get(ctx, post, int64(1))
	require.NoError(t, err)
	rec := got.(*orm.Record)
	assert.Equal(t, "Hello again", rec.Values["title"])
	assert.Equal(t, orm.Ref{Model: model(t, s, "blog.author"), PK: int64(1)}, rec.Values["author"])
	assert.Equal(t, []any{orm.Ref{Model: tag, PK: int64(1)}}, rec.Values["tags"])

	qs, err := s.All(ctx, post)
	require.NoError(t, err)
	assert.Len(t, qs.Items, 1)
}

func TestSaveGeneratesPrimaryKey(t *testing.T) {
	s := newTestStore(t)
	tag := model(t, s, "blog.tag")

	d, err := tag.Build(map[string]any{"label": "new"})
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), d))

	assert.Equal(t, int64(1), d.PK())
}

func TestGet(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()
	author := model(t, s, "blog.author")

	t.Run("by primary key", func(t *testing.T) {
		got, err := s.Get(ctx, author, int64(1))
		require.NoError(t, err)
		assert.Equal(t, "ada", got.(*orm.Record).Values["name"])
	})

	t.Run("by natural key", func(t *testing.T) {
		got, err := s.GetByNaturalKey(ctx, author, []any{"ada"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.(*orm.Record).Values["id"])
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.Get(ctx, author, int64(42))
		assert.ErrorIs(t, err, orm.ErrNotFound)

		_, err = s.GetByNaturalKey(ctx, author, []any{"grace"})
		assert.ErrorIs(t, err, orm.ErrNotFound)
	})

	t.Run("model without natural key", func(t *testing.T) {
		_, err := s.GetByNaturalKey(ctx, model(t, s, "blog.tag"), []any{"go"})
		assert.ErrorIs(t, err, orm.ErrNoNaturalKey)
	})
}

func TestObjects(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	all, err := s.Objects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	tags, err := s.Objects(ctx, "blog.tag")
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	_, err = s.Objects(ctx, "blog.missing")
	assert.ErrorIs(t, err, orm.ErrUnknownModel)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, isBusy(fmt.Errorf("save: %w", sqlite3.Error{Code: sqlite3.ErrLocked})))
	assert.False(t, isBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, isBusy(orm.ErrNotFound))
}
