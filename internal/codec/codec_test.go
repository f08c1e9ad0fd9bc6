package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hengadev/serializers/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func comment() *primitive.Map {
	m := primitive.NewMap()
	m.Set("title", "blah")
	m.Set("content", "foo bar baz")
	m.Set("created time", time.Date(2012, 4, 30, 9, 0, 0, 0, time.UTC))
	m.Set("votes", int64(3))
	m.Set("score", 4.5)
	m.Set("public", true)
	m.Set("editor", nil)
	return m
}

func render(t *testing.T, r Renderer, data any, opts Options) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, data, opts))
	return buf.String()
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "json", want: JSON},
		{input: " YAML ", want: YAML},
		{input: "yml", want: YAML},
		{input: "fixture-xml", want: FixtureXML},
		{input: "toml", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("dump/users.yaml.zst")
	require.NoError(t, err)
	assert.Equal(t, YAML, f)

	_, err = FormatFromPath("README")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRegistry(t *testing.T) {
	r := Default()

	_, err := r.Parser(HTML)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = r.Renderer("toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	renderer, err := r.Renderer(XML)
	require.NoError(t, err)
	assert.IsType(t, XMLRenderer{}, renderer)

	fixture, err := FixtureRegistry().Renderer(XML)
	require.NoError(t, err)
	assert.IsType(t, FixtureXMLRenderer{}, fixture)

	assert.Contains(t, r.Formats(), Debug)
}

func TestJSON(t *testing.T) {
	t.Run("keeps key order", func(t *testing.T) {
		out := render(t, JSONRenderer{}, comment(), Options{})
		assert.Equal(t, `{"title":"blah","content":"foo bar baz","created time":"2012-04-30T09:00:00Z","votes":3,"score":4.5,"public":true,"editor":null}`+"\n", out)
	})

	t.Run("sort keys and indent", func(t *testing.T) {
		m := primitive.NewMap()
		m.Set("b", []any{int64(1)})
		m.Set("a", "x")
		out := render(t, JSONRenderer{}, m, Options{Indent: 2, Extra: map[string]any{"sort_keys": true}})
		assert.Equal(t, "{\n  \"a\": \"x\",\n  \"b\": [\n    1\n  ]\n}\n", out)
	})

	t.Run("parse", func(t *testing.T) {
		input := `{
			// comment
			"title": "blah",
			"votes": 3,
			"score": 4.5,
			"tags": ["a", null, true,],
		}`
		v, err := JSONParser{}.Parse(strings.NewReader(input))
		require.NoError(t, err)
		m, ok := v.(*primitive.Map)
		require.True(t, ok)
		assert.Equal(t, []string{"title", "votes", "score", "tags"}, m.Keys())
		votes, _ := m.Get("votes")
		assert.Equal(t, int64(3), votes)
		score, _ := m.Get("score")
		assert.Equal(t, 4.5, score)
		tags, _ := m.Get("tags")
		assert.Equal(t, []any{"a", nil, true}, tags)
	})

	t.Run("rejects non primitive", func(t *testing.T) {
		err := JSONRenderer{}.Render(&bytes.Buffer{}, struct{}{}, Options{})
		assert.Error(t, err)
	})
}

func TestYAML(t *testing.T) {
	out := render(t, YAMLRenderer{}, comment(), Options{})
	assert.Equal(t, `title: blah
content: foo bar baz
created time: 2012-04-30T09:00:00Z
votes: 3
score: 4.5
public: true
editor: null
`, out)

	v, err := YAMLParser{}.Parse(strings.NewReader(out))
	require.NoError(t, err)
	m := v.(*primitive.Map)
	assert.Equal(t, comment().Keys(), m.Keys())
	votes, _ := m.Get("votes")
	assert.Equal(t, int64(3), votes)
	editor, ok := m.Get("editor")
	assert.True(t, ok)
	assert.Nil(t, editor)

	t.Run("quotes ambiguous text", func(t *testing.T) {
		m := primitive.NewMap()
		m.Set("flag", "true")
		out := render(t, YAMLRenderer{}, m, Options{})
		parsed, err := YAMLParser{}.Parse(strings.NewReader(out))
		require.NoError(t, err)
		flag, _ := parsed.(*primitive.Map).Get("flag")
		assert.Equal(t, "true", flag)
	})
}

func TestXML(t *testing.T) {
	m := primitive.NewMap()
	m.Set("title", "a < b")
	m.Set("tags", []any{"x", "y"})
	m.Set("none", nil)

	out := render(t, XMLRenderer{}, m, Options{})
	assert.Equal(t, xmlHeader+"<object><title>a &lt; b</title><tags><list><item>x</item><item>y</item></list></tags><none></none></object>\n", out)

	v, err := XMLParser{}.Parse(strings.NewReader(out))
	require.NoError(t, err)
	parsed := v.(*primitive.Map)
	assert.Equal(t, []string{"title", "tags", "none"}, parsed.Keys())
	title, _ := parsed.Get("title")
	assert.Equal(t, "a < b", title)
	tags, _ := parsed.Get("tags")
	assert.Equal(t, []any{"x", "y"}, tags)
	none, _ := parsed.Get("none")
	assert.Equal(t, "", none)
}

func fixtureRecord() *primitive.Map {
	fields := primitive.NewMap()
	fields.SetWithAttrs("title", "Hello", map[string]string{"type": "CharField"})
	fields.SetWithAttrs("author", []any{"jane"}, map[string]string{"rel": "ManyToOneRel", "to": "blog.author", "natural": "true"})
	fields.SetWithAttrs("tags", []any{int64(1), int64(2)}, map[string]string{"rel": RelManyToMany, "to": "blog.tag"})
	fields.SetWithAttrs("editor", nil, map[string]string{"rel": "ManyToOneRel", "to": "blog.author"})

	record := primitive.NewMap()
	record.Set("pk", int64(7))
	record.Set("model", "blog.post")
	record.Set("fields", fields)
	return record
}

func TestFixtureXML(t *testing.T) {
	out := render(t, FixtureXMLRenderer{}, []any{fixtureRecord()}, Options{})
	want := xmlHeader +
		`<django-objects version="1.0">` +
		`<object pk="7" model="blog.post">` +
		`<field name="title" type="CharField">Hello</field>` +
		`<field name="author" rel="ManyToOneRel" to="blog.author"><natural>jane</natural></field>` +
		`<field name="tags" rel="ManyToManyRel" to="blog.tag"><object pk="1"></object><object pk="2"></object></field>` +
		`<field name="editor" rel="ManyToOneRel" to="blog.author"><None></None></field>` +
		`</object></django-objects>` + "\n"
	assert.Equal(t, want, out)

	v, err := FixtureXMLParser{}.Parse(strings.NewReader(out))
	require.NoError(t, err)
	records := v.([]any)
	require.Len(t, records, 1)
	record := records[0].(*primitive.Map)
	pk, _ := record.Get("pk")
	assert.Equal(t, "7", pk)
	model, _ := record.Get("model")
	assert.Equal(t, "blog.post", model)

	fields, _ := record.Get("fields")
	fm := fields.(*primitive.Map)
	assert.Equal(t, []string{"title", "author", "tags", "editor"}, fm.Keys())
	author, _ := fm.Get("author")
	assert.Equal(t, []any{"jane"}, author)
	assert.Equal(t, "true", fm.Attrs("author")[AttrNatural])
	tags, _ := fm.Get("tags")
	assert.Equal(t, []any{"1", "2"}, tags)
	editor, ok := fm.Get("editor")
	assert.True(t, ok)
	assert.Nil(t, editor)
	assert.Equal(t, "CharField", fm.Attrs("title")[AttrType])
}

func TestCSV(t *testing.T) {
	first := primitive.NewMap()
	first.Set("name", "ada")
	first.Set("langs", []any{"en", "fr"})
	second := primitive.NewMap()
	second.Set("name", "grace, hopper")
	second.Set("langs", nil)

	out := render(t, CSVRenderer{}, []any{first, second}, Options{})
	assert.Equal(t, "name,langs\nada,\"[\"\"en\"\",\"\"fr\"\"]\"\n\"grace, hopper\",\n", out)

	v, err := CSVParser{}.Parse(strings.NewReader(out))
	require.NoError(t, err)
	rows := v.([]any)
	require.Len(t, rows, 2)
	name, _ := rows[1].(*primitive.Map).Get("name")
	assert.Equal(t, "grace, hopper", name)
}

func TestHTML(t *testing.T) {
	m := primitive.NewMap()
	m.Set("site", "https://example.com")
	m.Set("tags", []any{"<b>"})

	out := render(t, HTMLRenderer{}, m, Options{})
	assert.Equal(t, "<table>\n"+
		`<tr><td>site</td><td><a href="https://example.com">https://example.com</a></td></tr>`+"\n"+
		"<tr><td>tags</td><td><ul>\n<li>&lt;b&gt;</li></ul>\n</td></tr>\n"+
		"</table>\n", out)
}

func TestCBOR(t *testing.T) {
	m := primitive.NewMap()
	m.Set("b", int64(-2))
	m.Set("a", []any{"x", 1.5, true, nil})

	var buf bytes.Buffer
	require.NoError(t, CBORRenderer{}.Render(&buf, m, Options{}))

	v, err := CBORParser{}.Parse(&buf)
	require.NoError(t, err)
	parsed := v.(*primitive.Map)
	assert.Equal(t, []string{"a", "b"}, parsed.Keys())
	b, _ := parsed.Get("b")
	assert.Equal(t, int64(-2), b)
	a, _ := parsed.Get("a")
	assert.Equal(t, []any{"x", 1.5, true, nil}, a)
}

func TestDebug(t *testing.T) {
	m := primitive.NewMap()
	m.Set("title", "blah")
	out := render(t, DebugRenderer{}, m, Options{})
	assert.Contains(t, out, `"title": (string) (len=4) "blah"`)
}
