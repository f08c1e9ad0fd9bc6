package serializers

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hengadev/serializers/orm"
	"github.com/hengadev/serializers/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtureSerializer_Convert(t *testing.T) {
	b := newBlog(t)
	s, err := NewFixtureSerializer(b.registry)
	require.NoError(t, err)

	out, err := s.Convert(context.Background(), b.hello)
	require.NoError(t, err)

	m := asMap(t, out)
	assert.Equal(t, []string{"pk", "model", "fields"}, m.Keys())
	assert.Equal(t, map[string]any{
		"pk":    int64(10),
		"model": "blog.post",
		"fields": map[string]any{
			"title":     "hello",
			"published": "2012-01-01T12:00:00Z",
			"author":    int64(1),
			"tags":      []any{int64(1), int64(2)},
		},
	}, primitive.ToGo(m))

	fields, _ := m.Get("fields")
	assert.Equal(t, []string{"title", "published", "author", "tags"}, asMap(t, fields).Keys())
}

func TestFixtureSerializer_NaturalKeys(t *testing.T) {
	b := newBlog(t)
	s, err := NewFixtureSerializer(b.registry)
	require.NoError(t, err)

	out, err := s.Convert(context.Background(), b.hello, NaturalKeys(true))
	require.NoError(t, err)

	fields, _ := asMap(t, out).Get("fields")
	f := asMap(t, fields)
	author, _ := f.Get("author")
	assert.Equal(t, []any{"ada"}, author)
	tags, _ := f.Get("tags")
	assert.Equal(t, []any{int64(1), int64(2)}, tags, "tags have no natural key")
	assert.Equal(t, "true", f.Attrs("author")["natural"])
}

func TestFixtureSerializer_CallOptionsSelectFields(t *testing.T) {
	b := newBlog(t)
	s, err := NewFixtureSerializer(b.registry)
	require.NoError(t, err)

	out, err := s.Convert(context.Background(), b.hello, Fields("title"))
	require.NoError(t, err)
	m := asMap(t, out)
	assert.Equal(t, []string{"pk", "model", "fields"}, m.Keys())
	fields, _ := m.Get("fields")
	assert.Equal(t, []string{"title"}, asMap(t, fields).Keys())

	out, err = s.Convert(context.Background(), b.hello, Exclude("tags", "published"))
	require.NoError(t, err)
	fields, _ = asMap(t, out).Get("fields")
	assert.Equal(t, []string{"title", "author"}, asMap(t, fields).Keys())
}

func TestFixtureSerializer_NeedsRegistry(t *testing.T) {
	_, err := NewFixtureSerializer(nil)
	assert.True(t, IsConfigurationError(err))
}

func TestFixtureSerializer_Revert(t *testing.T) {
	b := newBlog(t)
	s, err := NewFixtureSerializer(b.registry)
	require.NoError(t, err)

	input := `[
		{"pk": "11", "model": "blog.post", "fields": {
			"title": "second",
			"published": null,
			"author": ["ada"],
			"tags": [2]
		}}
	]`
	out, err := s.Deserialize(context.Background(), strings.NewReader(input), FormatJSON)
	require.NoError(t, err)

	items := out.([]any)
	require.Len(t, items, 1)
	d := items[0].(*orm.DeserializedObject)
	assert.Equal(t, b.post, d.Model)
	assert.Equal(t, int64(11), d.PK())
	assert.Equal(t, orm.Ref{Model: b.author, PK: int64(1)}, d.Relations["author"])
	assert.Equal(t, []any{orm.Ref{Model: b.tag, PK: int64(2)}}, d.ManyToMany["tags"])
	assert.Nil(t, d.Object.(*orm.Record).Values["published"])
}

func TestFixtureSerializer_RevertErrors(t *testing.T) {
	b := newBlog(t)
	s, err := NewFixtureSerializer(b.registry)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("unknown natural key names the relation", func(t *testing.T) {
		input := `{"pk": 12, "model": "blog.post", "fields": {"title": "x", "author": ["bob"]}}`
		_, err := s.Deserialize(ctx, strings.NewReader(input), FormatJSON)
		require.Error(t, err)
		assert.True(t, IsLookupError(err))

		var lerr *LookupError
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, "author", lerr.Relation)
		assert.Equal(t, "blog.author", lerr.Model)
		assert.ErrorIs(t, err, orm.ErrNotFound)
	})

	t.Run("unknown model", func(t *testing.T) {
		input := `{"pk": 1, "model": "blog.comment", "fields": {}}`
		_, err := s.Deserialize(ctx, strings.NewReader(input), FormatJSON)
		assert.True(t, IsLookupError(err))
		assert.ErrorIs(t, err, orm.ErrUnknownModel)
	})

	t.Run("missing model", func(t *testing.T) {
		input := `{"pk": 1, "fields": {}}`
		_, err := s.Deserialize(ctx, strings.NewReader(input), FormatJSON)
		assert.True(t, IsConversionError(err))
	})

	t.Run("bad primary key", func(t *testing.T) {
		input := `{"pk": "ten", "model": "blog.post", "fields": {}}`
		_, err := s.Deserialize(ctx, strings.NewReader(input), FormatJSON)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"pk"}, verr.Fields())
	})

	t.Run("bad field value", func(t *testing.T) {
		input := `{"pk": 1, "model": "blog.post", "fields": {"published": "someday", "author": "x"}}`
		_, err := s.Deserialize(ctx, strings.NewReader(input), FormatJSON)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		msgs := verr.Messages()
		assert.Contains(t, msgs, "fields.published")
		assert.Contains(t, msgs, "fields.author")
	})
}

func TestDumpData(t *testing.T) {
	b := newBlog(t)
	var buf bytes.Buffer
	err := DumpData(context.Background(), &buf, b.registry, b.store.All(b.post), FormatJSON, Indent(2))
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"pk": 10, "model": "blog.post", "fields": {
			"title": "hello",
			"published": "2012-01-01T12:00:00Z",
			"author": 1,
			"tags": [1, 2]
		}}
	]`, buf.String())
	assert.Contains(t, buf.String(), "\n  {")
}

func TestDumpLoadRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML, FormatXML, FormatCBOR} {
		t.Run(format.String(), func(t *testing.T) {
			ctx := context.Background()
			src := newBlog(t)
			objs := []any{src.ada, src.goTag, src.newsTag, src.hello}

			var buf bytes.Buffer
			require.NoError(t, DumpData(ctx, &buf, src.registry, objs, format, NaturalKeys(true)))

			dst := newBlogModels(t)
			loaded, err := LoadData(ctx, &buf, dst.registry, format, dst.store)
			require.NoError(t, err)
			require.Len(t, loaded, 4)

			got, err := dst.store.Get(ctx, dst.post, int64(10))
			require.NoError(t, err)
			rec := got.(*orm.Record)
			assert.Equal(t, "hello", rec.Values["title"])
			published, ok := rec.Values["published"].(time.Time)
			require.True(t, ok, "published is %T", rec.Values["published"])
			assert.True(t, t0.Equal(published))
			assert.Equal(t, orm.Ref{Model: dst.author, PK: int64(1)}, rec.Values["author"])
			assert.Equal(t, []any{
				orm.Ref{Model: dst.tag, PK: int64(1)},
				orm.Ref{Model: dst.tag, PK: int64(2)},
			}, rec.Values["tags"])

			author, err := dst.store.GetByNaturalKey(ctx, dst.author, []any{"ada"})
			require.NoError(t, err)
			assert.Equal(t, int64(1), author.(*orm.Record).Values["id"])
		})
	}
}

func TestLoadData_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	b := newBlogModels(t)
	input := `[
		{"pk": 1, "model": "blog.author", "fields": {"name": "ada"}},
		{"pk": 2, "model": "blog.post", "fields": {"title": "x", "author": ["bob"]}},
		{"pk": 2, "model": "blog.author", "fields": {"name": "bob"}}
	]`

	_, err := LoadData(ctx, strings.NewReader(input), b.registry, FormatJSON, b.store)
	require.Error(t, err)
	assert.True(t, IsLookupError(err))
	assert.Contains(t, err.Error(), "entry 1")

	_, err = b.store.Get(ctx, b.author, int64(1))
	assert.NoError(t, err, "entries before the failure are saved")
	_, err = b.store.Get(ctx, b.author, int64(2))
	assert.ErrorIs(t, err, orm.ErrNotFound)
}

func TestLoadData_WithoutSaver(t *testing.T) {
	b := newBlog(t)
	input := `{"pk": 3, "model": "blog.tag", "fields": {"label": "misc"}}`

	objs, err := LoadData(context.Background(), strings.NewReader(input), b.registry, FormatJSON, nil)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, int64(3), objs[0].PK())

	_, err = b.store.Get(context.Background(), b.tag, int64(3))
	assert.ErrorIs(t, err, orm.ErrNotFound)
}

func TestLoadData_UnsupportedFormat(t *testing.T) {
	b := newBlogModels(t)
	_, err := LoadData(context.Background(), strings.NewReader(""), b.registry, FormatHTML, nil)
	assert.True(t, IsFormatError(err))
}
