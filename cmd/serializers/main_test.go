package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/serializers"
	"github.com/hengadev/serializers/orm/sqlstore"
)

const schema = `
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
`

const rows = `
INSERT INTO blog_author (id, name) VALUES (1, 'ada');
INSERT INTO blog_tag (id, label) VALUES (1, 'go'), (2, 'sql');
INSERT INTO blog_post (id, title, published, author_id) VALUES (1, 'Hello', 1, 1);
INSERT INTO blog_post_tags (post_id, tag_id) VALUES (1, 2), (1, 1);
`

func newDatabase(t *testing.T, seed bool) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blog.db")
	db, err := sqlstore.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, schema)
	require.NoError(t, err)
	if seed {
		_, err = db.ExecContext(ctx, rows)
		require.NoError(t, err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, bytes.NewReader(nil), &stdout, &stderr)
	return stdout.String(), err
}

func TestDumpdata(t *testing.T) {
	database := newDatabase(t, true)

	out, err := runCommand(t, "dumpdata", "--database", database, "--app", "blog")
	require.NoError(t, err)

	var fixture []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &fixture))
	require.Len(t, fixture, 4)

	assert.Equal(t, "blog.author", fixture[0]["model"])
	assert.Equal(t, float64(1), fixture[0]["pk"])
	assert.Equal(t, map[string]any{"name": "ada"}, fixture[0]["fields"])

	assert.Equal(t, "blog.post", fixture[1]["model"])
	assert.Equal(t, map[string]any{
		"title":     "Hello",
		"published": true,
		"author":    float64(1),
		"tags":      []any{float64(1), float64(2)},
	}, fixture[1]["fields"])
}

func TestDumpdataSelectedModels(t *testing.T) {
	database := newDatabase(t, true)

	out, err := runCommand(t, "dumpdata", "--database", database, "blog.tag")
	require.NoError(t, err)

	var fixture []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &fixture))
	require.Len(t, fixture, 2)
	assert.Equal(t, "blog.tag", fixture[1]["model"])
	assert.Equal(t, map[string]any{"label": "sql"}, fixture[1]["fields"])
}

func TestDumpdataNaturalKeys(t *testing.T) {
	database := newDatabase(t, true)

	out, err := runCommand(t, "dumpdata", "--database", database, "--natural-keys", "blog.post")
	require.NoError(t, err)

	var fixture []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &fixture))
	require.Len(t, fixture, 1)
	fields := fixture[0]["fields"].(map[string]any)
	assert.Equal(t, []any{"ada"}, fields["author"])
	// tags have no unique constraint besides the key
	assert.Equal(t, []any{float64(1), float64(2)}, fields["tags"])
}

func TestLoaddataRoundTrip(t *testing.T) {
	source := newDatabase(t, true)
	target := newDatabase(t, false)
	for _, name := range []string{"dump.json", "dump.yaml", "dump.xml", "dump.cbor.zst"} {
		t.Run(name, func(t *testing.T) {
			fixture := filepath.Join(t.TempDir(), name)

			_, err := runCommand(t, "dumpdata", "--database", source, "--app", "blog", "-o", fixture)
			require.NoError(t, err)

			out, err := runCommand(t, "loaddata", "--database", target, "--app", "blog", fixture)
			require.NoError(t, err)
			assert.Equal(t, "Installed 4 object(s) from 1 fixture(s)\n", out)

			want, err := runCommand(t, "dumpdata", "--database", source, "--app", "blog")
			require.NoError(t, err)
			got, err := runCommand(t, "dumpdata", "--database", target, "--app", "blog")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoaddataUnknownModel(t *testing.T) {
	target := newDatabase(t, false)
	fixture := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(fixture, []byte(`[{"pk": 1, "model": "blog.missing", "fields": {}}]`), 0o644))

	_, err := runCommand(t, "loaddata", "--database", target, "--app", "blog", fixture)
	require.Error(t, err)
	assert.True(t, serializers.IsLookupError(err))
}

func TestTranscode(t *testing.T) {
	input := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(input, []byte(`[{"a": 1, /* kept */ "b": [true, null],}]`), 0o644))

	out, err := runCommand(t, "transcode", "-f", "yaml", input)
	require.NoError(t, err)
	assert.Contains(t, out, "a: 1")
	assert.Contains(t, out, "b:")

	output := filepath.Join(t.TempDir(), "data.cbor")
	_, err = runCommand(t, "transcode", "-o", output, input)
	require.NoError(t, err)

	back, err := runCommand(t, "transcode", "-f", "json", output)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(back), &decoded))
	assert.Equal(t, []map[string]any{{"a": float64(1), "b": []any{true, nil}}}, decoded)
}

func TestUsageErrors(t *testing.T) {
	_, err := runCommand(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCommand(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCommand(t, "dumpdata")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCommand(t, "loaddata", "--app", "blog")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCommand(t, "transcode", "--format", "pdf", "-")
	assert.True(t, serializers.IsFormatError(err))
}

func TestVersion(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, serializers.Version)
}
