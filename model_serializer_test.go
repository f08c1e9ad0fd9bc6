package serializers

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/hengadev/serializers/internal/monitoring"
	"github.com/hengadev/serializers/orm"
	"github.com/hengadev/serializers/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blog struct {
	registry *orm.Registry
	store    *orm.MemoryStore
	author   *orm.Model
	tag      *orm.Model
	post     *orm.Model

	ada     *orm.Record
	goTag   *orm.Record
	newsTag *orm.Record
	hello   *orm.Record
}

// newBlogModels registers blog.author, blog.tag and blog.post with nothing
// stored.
func newBlogModels(t *testing.T) *blog {
	t.Helper()
	b := &blog{
		registry: orm.NewRegistry(),
		store:    orm.NewMemoryStore(),
		author: &orm.Model{
			App:        "blog",
			Name:       "Author",
			Fields:     []orm.Field{{Name: "name", Kind: orm.CharField}},
			NaturalKey: []string{"name"},
		},
		tag: &orm.Model{
			App:    "blog",
			Name:   "Tag",
			Fields: []orm.Field{{Name: "label", Kind: orm.CharField}},
		},
		post: &orm.Model{
			App:  "blog",
			Name: "Post",
			Fields: []orm.Field{
				{Name: "title", Kind: orm.CharField},
				{Name: "published", Kind: orm.DateTimeField, Null: true},
				{Name: "author", Kind: orm.ForeignKey, Target: "blog.author", Null: true},
			},
			ManyToMany: []orm.Field{{Name: "tags", Kind: orm.ManyToManyField, Target: "blog.tag"}},
		},
	}
	require.NoError(t, b.registry.Register(b.author, b.tag, b.post))
	return b
}

// newBlog is newBlogModels storing one post by ada tagged go and news.
func newBlog(t *testing.T) *blog {
	t.Helper()
	b := newBlogModels(t)
	b.ada = &orm.Record{Model: b.author, Values: map[string]any{"id": int64(1), "name": "ada"}}
	b.goTag = &orm.Record{Model: b.tag, Values: map[string]any{"id": int64(1), "label": "go"}}
	b.newsTag = &orm.Record{Model: b.tag, Values: map[string]any{"id": int64(2), "label": "news"}}
	b.hello = &orm.Record{Model: b.post, Values: map[string]any{
		"id":        int64(10),
		"title":     "hello",
		"published": t0,
		"author":    b.ada,
		"tags":      []any{b.goTag, b.newsTag},
	}}
	b.store.Add(b.author, b.ada)
	b.store.Add(b.tag, b.goTag, b.newsTag)
	b.store.Add(b.post, b.hello)
	return b
}

func TestModelSerializer_Convert(t *testing.T) {
	b := newBlog(t)
	s, err := NewModelSerializer(b.post, b.registry)
	require.NoError(t, err)

	out, err := s.Convert(context.Background(), b.hello)
	require.NoError(t, err)

	m := asMap(t, out)
	assert.Equal(t, []string{"id", "title", "published", "author", "tags"}, m.Keys())
	assert.Equal(t, map[string]any{
		"id":        int64(10),
		"title":     "hello",
		"published": "2012-01-01T12:00:00Z",
		"author":    int64(1),
		"tags":      []any{int64(1), int64(2)},
	}, primitive.ToGo(m))
	assert.Equal(t, map[string]string{"type": "CharField"}, m.Attrs("title"))
	assert.Equal(t, map[string]string{"rel": "ManyToOneRel", "to": "blog.author"}, m.Attrs("author"))
}

func TestModelSerializer_Depth(t *testing.T) {
	b := newBlog(t)
	s, err := NewModelSerializer(b.post, b.registry)
	require.NoError(t, err)

	out, err := s.Convert(context.Background(), b.hello, Depth(1))
	require.NoError(t, err)

	m := asMap(t, out)
	author, _ := m.Get("author")
	assert.Equal(t, map[string]any{"id": int64(1), "name": "ada"}, primitive.ToGo(author))
	tags, _ := m.Get("tags")
	assert.Equal(t, []any{
		map[string]any{"id": int64(1), "label": "go"},
		map[string]any{"id": int64(2), "label": "news"},
	}, primitive.ToGo(tags))
}

func TestModelSerializer_DepthLoadsReferences(t *testing.T) {
	b := newBlog(t)
	b.hello.Values["author"] = orm.Ref{Model: b.author, PK: int64(1)}

	s, err := NewModelSerializer(b.post, b.registry, WithDepth(1))
	require.NoError(t, err)

	out, err := s.Convert(context.Background(), b.hello)
	require.NoError(t, err)
	author, _ := asMap(t, out).Get("author")
	assert.Equal(t, map[string]any{"id": int64(1), "name": "ada"}, primitive.ToGo(author))

	b.hello.Values["author"] = orm.Ref{Model: b.author, PK: int64(404)}
	_, err = s.Convert(context.Background(), b.hello)
	assert.True(t, IsLookupError(err))
	assert.ErrorIs(t, err, orm.ErrNotFound)
}

func TestModelSerializer_Revert(t *testing.T) {
	b := newBlog(t)
	s, err := NewModelSerializer(b.post, b.registry)
	require.NoError(t, err)

	data := primitive.NewMap()
	data.Set("id", "11")
	data.Set("title", "second")
	data.Set("published", "2012-01-01 12:00")
	data.Set("author", int64(1))
	data.Set("tags", []any{int64(2)})

	out, err := s.Revert(context.Background(), data)
	require.NoError(t, err)

	d, ok := out.(*orm.DeserializedObject)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, b.post, d.Model)
	assert.Equal(t, int64(11), d.PK())
	assert.Equal(t, orm.Ref{Model: b.author, PK: int64(1)}, d.Relations["author"])
	assert.Equal(t, []any{orm.Ref{Model: b.tag, PK: int64(2)}}, d.ManyToMany["tags"])

	rec := d.Object.(*orm.Record)
	assert.Equal(t, "second", rec.Values["title"])
	published, ok := rec.Values["published"].(time.Time)
	require.True(t, ok)
	assert.True(t, t0.Equal(published))
	assert.Equal(t, orm.Ref{Model: b.author, PK: int64(1)}, rec.Values["author"])
}

func TestModelSerializer_Invalid(t *testing.T) {
	b := newBlog(t)

	_, err := NewModelSerializer(nil, b.registry)
	assert.True(t, IsConfigurationError(err))

	_, err = NewModelSerializer(&orm.Model{Name: "NoApp"}, b.registry)
	assert.True(t, IsConfigurationError(err))

	s, err := NewModelSerializer(b.post, nil)
	require.NoError(t, err)
	_, err = s.Convert(context.Background(), b.hello)
	assert.True(t, IsConfigurationError(err), "relations need a registry")

	s, err = NewModelSerializer(b.post, b.registry)
	require.NoError(t, err)
	_, err = s.Convert(context.Background(), struct{ Title string }{"plain"})
	assert.True(t, IsConfigurationError(err))
}

func TestModelSerializer_Kinds(t *testing.T) {
	b := newBlog(t)
	s, err := NewModelSerializerWith(nil, b.post, &ModelFields{
		Registry: b.registry,
		Kinds:    ModelLocalFields,
	})
	require.NoError(t, err)

	out, err := s.Convert(context.Background(), b.hello)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "published", "author"}, asMap(t, out).Keys())

	_, err = NewModelSerializerWith(nil, b.post, nil)
	assert.True(t, IsConfigurationError(err))
}

func TestModelSerializer_Hooks(t *testing.T) {
	b := newBlog(t)
	s, err := NewModelSerializerWith(nil, b.post, &ModelFields{
		Registry: b.registry,
		Hooks: FieldHooks{
			Related: func(_ *orm.Model, f orm.Field, target *orm.Model) (Field, error) {
				return NewNaturalKeyRelatedField(f, target), nil
			},
		},
	}, WithExclude("tags"))
	require.NoError(t, err)

	out, err := s.Convert(context.Background(), b.hello)
	require.NoError(t, err)
	author, _ := asMap(t, out).Get("author")
	assert.Equal(t, []any{"ada"}, author)
}

func TestModelSerializer_StructModels(t *testing.T) {
	type city struct {
		ID   int64  `serializer:"id"`
		Name string `serializer:"name"`
	}
	registry := orm.NewRegistry()
	model := &orm.Model{
		App:    "geo",
		Name:   "City",
		Type:   reflect.TypeOf(city{}),
		Fields: []orm.Field{{Name: "name", Kind: orm.CharField}},
	}
	require.NoError(t, registry.Register(model))

	s, err := NewModelSerializer(model, registry)
	require.NoError(t, err)

	out, err := s.Convert(context.Background(), []*city{{ID: 1, Name: "Paris"}, {ID: 2, Name: "Lyon"}})
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"id": int64(1), "name": "Paris"},
		map[string]any{"id": int64(2), "name": "Lyon"},
	}, primitive.ToGo(out))

	data := primitive.NewMap()
	data.Set("id", int64(3))
	data.Set("name", "Nice")
	reverted, err := s.Revert(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, &city{ID: 3, Name: "Nice"}, reverted.(*orm.DeserializedObject).Object)
}

func TestModelSerializer_CyclesTerminate(t *testing.T) {
	registry := orm.NewRegistry()
	store := orm.NewMemoryStore()
	person := &orm.Model{
		App:  "people",
		Name: "Person",
		Fields: []orm.Field{
			{Name: "name", Kind: orm.CharField},
			{Name: "friend", Kind: orm.ForeignKey, Target: "people.person", Null: true},
		},
	}
	require.NoError(t, registry.Register(person))

	a := &orm.Record{Model: person, Values: map[string]any{
		"id": int64(1), "name": "a", "friend": orm.Ref{Model: person, PK: int64(2)},
	}}
	b := &orm.Record{Model: person, Values: map[string]any{
		"id": int64(2), "name": "b", "friend": orm.Ref{Model: person, PK: int64(1)},
	}}
	store.Add(person, a, b)

	metrics := NewInMemoryMetricsCollector()
	s, err := NewModelSerializer(person, registry, WithMetricsCollector(metrics))
	require.NoError(t, err)

	// the second friend is loaded from a Ref, so the repeat is matched by
	// model and primary key
	out, err := s.Convert(context.Background(), a, UnboundedDepth())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":   int64(1),
		"name": "a",
		"friend": map[string]any{
			"id":     int64(2),
			"name":   "b",
			"friend": int64(1),
		},
	}, primitive.ToGo(out))
	assert.Equal(t, int64(1), metrics.GetCounter(monitoring.MetricFlattened, map[string]string{"reason": "recursion"}))

	copyOfA := &orm.Record{Model: person, Values: map[string]any{
		"id": int64(1), "name": "a", "friend": orm.Ref{Model: person, PK: int64(2)},
	}}
	out, err = s.Convert(context.Background(), copyOfA, UnboundedDepth())
	require.NoError(t, err)
	friend, _ := asMap(t, out).Get("friend")
	back, _ := asMap(t, friend).Get("friend")
	assert.Equal(t, int64(1), back, "a separately loaded copy of a row is the same object")
}
