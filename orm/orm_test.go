package orm

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type author struct {
	ID   int64
	Name string
}

func (a *author) NaturalKey() []any { return []any{a.Name} }

func newAuthorModel() *Model {
	return &Model{
		App:  "blog",
		Name: "Author",
		Type: reflect.TypeOf(author{}),
		Fields: []Field{
			{Name: "name", Kind: CharField},
		},
	}
}

func TestModelValidate(t *testing.T) {
	t.Run("defaults the primary key", func(t *testing.T) {
		m := newAuthorModel()
		require.NoError(t, m.Validate())
		assert.Equal(t, "id", m.PK.Name)
		assert.Equal(t, AutoField, m.PK.Kind)
		assert.Equal(t, "blog.author", m.Label())
	})
	t.Run("relation without target", func(t *testing.T) {
		m := &Model{App: "blog", Name: "Post", Fields: []Field{{Name: "author", Kind: ForeignKey}}}
		assert.ErrorIs(t, m.Validate(), ErrInvalidModel)
	})
	t.Run("natural key must name a field", func(t *testing.T) {
		m := &Model{App: "blog", Name: "Tag", NaturalKey: []string{"slug"}}
		assert.ErrorIs(t, m.Validate(), ErrInvalidModel)
	})
	t.Run("duplicate field", func(t *testing.T) {
		m := &Model{App: "blog", Name: "Tag", Fields: []Field{{Name: "x", Kind: CharField}, {Name: "x", Kind: CharField}}}
		assert.ErrorIs(t, m.Validate(), ErrInvalidModel)
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	authors := newAuthorModel()
	posts := &Model{App: "blog", Name: "Post", Fields: []Field{{Name: "author", Kind: ForeignKey, Target: "blog.author"}}}
	require.NoError(t, reg.Register(authors, posts))

	t.Run("get is case insensitive", func(t *testing.T) {
		m, err := reg.Get("Blog.Author")
		require.NoError(t, err)
		assert.Same(t, authors, m)
	})
	t.Run("unknown label", func(t *testing.T) {
		_, err := reg.Get("blog.missing")
		assert.ErrorIs(t, err, ErrUnknownModel)
	})
	t.Run("model of struct and record instances", func(t *testing.T) {
		m, ok := reg.ModelOf(&author{ID: 1})
		require.True(t, ok)
		assert.Same(t, authors, m)

		m, ok = reg.ModelOf(NewRecord(posts))
		require.True(t, ok)
		assert.Same(t, posts, m)
	})
	t.Run("target", func(t *testing.T) {
		f, ok := posts.FieldByName("author")
		require.True(t, ok)
		target, err := reg.Target(f)
		require.NoError(t, err)
		assert.Same(t, authors, target)
		assert.Equal(t, "author_id", f.ColumnName())
		assert.Equal(t, "ManyToOneRel", f.Rel())
	})
	t.Run("register twice", func(t *testing.T) {
		assert.ErrorIs(t, reg.Register(&Model{App: "blog", Name: "post"}), ErrInvalidModel)
	})
	assert.Len(t, reg.Models(), 2)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := newAuthorModel()
	require.NoError(t, m.Validate())
	store := NewMemoryStore()
	joe := &author{ID: 1, Name: "joe"}
	store.Add(m, joe, &author{ID: 2, Name: "ann"})

	t.Run("becomes the manager", func(t *testing.T) {
		assert.Same(t, store, m.Manager)
		assert.True(t, m.HasNaturalKey())
	})
	t.Run("get by pk accepts text keys", func(t *testing.T) {
		got, err := store.Get(ctx, m, "1")
		require.NoError(t, err)
		assert.Same(t, joe, got)
	})
	t.Run("get by natural key", func(t *testing.T) {
		got, err := store.GetByNaturalKey(ctx, m, []any{"joe"})
		require.NoError(t, err)
		assert.Same(t, joe, got)
	})
	t.Run("missing", func(t *testing.T) {
		_, err := store.GetByNaturalKey(ctx, m, []any{"zed"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("save replaces by pk", func(t *testing.T) {
		d, err := m.Build(map[string]any{"id": int64(2), "name": "anne"})
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, d))

		items, err := store.All(m).All(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "anne", items[1].(*author).Name)
	})
}

func TestBuildRecord(t *testing.T) {
	tags := &Model{App: "blog", Name: "Tag", Fields: []Field{{Name: "slug", Kind: CharField}}}
	posts := &Model{
		App:  "blog",
		Name: "Post",
		Fields: []Field{
			{Name: "title", Kind: CharField},
			{Name: "author", Kind: ForeignKey, Target: "blog.author"},
		},
		ManyToMany: []Field{{Name: "tags", Kind: ManyToManyField, Target: "blog.tag"}},
	}
	require.NoError(t, NewRegistry().Register(tags, posts))

	ref := Ref{Model: tags, PK: int64(3)}
	d, err := posts.Build(map[string]any{
		"id":     int64(9),
		"title":  "hello",
		"author": Ref{PK: int64(1)},
		"tags":   []any{ref},
	})
	require.NoError(t, err)

	rec, ok := d.Object.(*Record)
	require.True(t, ok)
	assert.Equal(t, "hello", rec.Values["title"])
	assert.Equal(t, int64(9), d.PK())
	assert.Equal(t, Ref{PK: int64(1)}, d.Relations["author"])
	assert.Equal(t, []any{ref}, d.ManyToMany["tags"])
	assert.Equal(t, []string{"id", "title", "author", "tags"}, rec.AttrNames())

	_, err = posts.Build(map[string]any{"nope": 1})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestInstances(t *testing.T) {
	ctx := context.Background()
	items, err := Instances(ctx, []*author{{ID: 1}, {ID: 2}})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = Instances(ctx, QuerySet{Items: []any{1}})
	require.NoError(t, err)
	assert.Equal(t, []any{1}, items)

	items, err = Instances(ctx, &author{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
