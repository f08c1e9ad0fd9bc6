package primitive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type level string

func TestNormalize(t *testing.T) {
	ts := time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want any
		ok   bool
	}{
		{"nil", nil, nil, true},
		{"int", 42, int64(42), true},
		{"uint8", uint8(7), int64(7), true},
		{"float32", float32(1.5), float64(1.5), true},
		{"named string", level("debug"), "debug", true},
		{"time", ts, ts, true},
		{"time pointer", &ts, ts, true},
		{"struct", struct{ A int }{1}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapKeepsInsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set("title", "blah")
	m.Set("content", "foo")
	m.Set("created", int64(1))
	m.Set("title", "again")

	assert.Equal(t, []string{"title", "content", "created"}, m.Keys())
	v, ok := m.Get("title")
	require.True(t, ok)
	assert.Equal(t, "again", v)

	m.Delete("content")
	assert.Equal(t, []string{"title", "created"}, m.Keys())
	assert.False(t, m.Has("content"))
}

func TestMapAttrs(t *testing.T) {
	m := NewMap()
	hints := map[string]string{"type": "CharField"}
	m.SetWithAttrs("name", "joe", hints)
	hints["type"] = "mutated"

	assert.Equal(t, "CharField", m.Attrs("name")["type"])
	assert.Nil(t, m.Attrs("missing"))
}

func TestValidate(t *testing.T) {
	inner := NewMap()
	inner.Set("ok", []any{int64(1), "two", nil})
	outer := NewMap()
	outer.Set("inner", inner)
	require.NoError(t, Validate(outer))

	inner.Set("bad", struct{}{})
	err := Validate(outer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.inner.bad")
}

func TestFromGoSortsKeys(t *testing.T) {
	v, err := FromGo(map[string]any{"b": 1, "a": []any{map[string]any{"z": true}}})
	require.NoError(t, err)

	m, ok := v.(*Map)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	b, _ := m.Get("b")
	assert.Equal(t, int64(1), b)
}

func TestEqual(t *testing.T) {
	a := NewMap()
	a.Set("x", int64(1))
	a.Set("y", "z")
	b := NewMap()
	b.Set("x", int64(1))
	b.Set("y", "z")
	c := NewMap()
	c.Set("y", "z")
	c.Set("x", int64(1))

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c), "order matters")
	assert.True(t, Equal(
		time.Date(2020, 1, 1, 1, 0, 0, 0, time.FixedZone("x", 3600)),
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	))
}

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(nil))
	assert.Equal(t, "true", Text(true))
	assert.Equal(t, "6014", Text(int64(6014)))
	assert.Equal(t, "1.25", Text(1.25))
	assert.Equal(t, "2012-04-30T09:00:00Z", Text(time.Date(2012, 4, 30, 9, 0, 0, 0, time.UTC)))
}
