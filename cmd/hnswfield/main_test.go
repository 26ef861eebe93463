package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswfield/api"
	"github.com/hupe1980/hnswfield/metadata"
	"github.com/hupe1980/hnswfield/testutil"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`storage:
  backend: local
  path: %s
  docs:
    backend: bolt
logging:
  level: error
registry:
  fields:
    description_vector:
      m: 32
      ef_construction: 150
`, filepath.Join(dir, "data"))
	path := filepath.Join(dir, "hnswfield.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func booksJSONL(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, b := range testutil.Books() {
		require.NoError(t, enc.Encode(document{
			Vector: b.Vector,
			Fields: map[string]string{"name": b.Name},
			Attributes: metadata.Document{
				"author": metadata.String(b.Author),
				"year":   metadata.Int(int64(b.Year)),
			},
		}))
	}
	return buf.String()
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIndexAndQuery(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, booksJSONL(t), "index", "-c", cfg, "-f", "description_vector")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Indexed 13 documents into description_vector (13 total, manifest 1)")

	out, err = run(t, "", "query", "-c", cfg, "-f", "description_vector",
		"--vector", "1,0.6,0.2,0,0,0,0,0.2", "-k", "3", "--json")
	require.NoError(t, err, out)
	var resp api.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Hits, 3)
	assert.Equal(t, "The Hitchhiker's Guide to the Galaxy", resp.Hits[0].Fields["name"])
	assert.Equal(t, "ok", resp.Status)

	out, err = run(t, "", "query", "-c", cfg, "-f", "description_vector",
		"--vector", "1,0.6,0.2,0,0,0,0,0.2", "-k", "3", "--where", "year>=2000")
	require.NoError(t, err, out)
	assert.Contains(t, out, "The Three-Body Problem")
	assert.Contains(t, out, "The Hunger Games")
	assert.Contains(t, out, "status=filter_exhausted")

	out, err = run(t, "", "stats", "-c", cfg)
	require.NoError(t, err, out)
	assert.Contains(t, out, "description_vector")
	assert.Contains(t, out, "euclidean")

	out, err = run(t, "", "query", "-c", cfg, "-f", "description_vector", "--text", "aliens")
	require.Error(t, err, out)
}

func TestIndex_InvalidInput(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, `{"fields":{"name":"x"}}`, "index", "-c", cfg, "-f", "v")
	assert.ErrorContains(t, err, "line 1")

	_, err = run(t, `{"vector":[1,2]}`+"\n"+`{"vector":[1]}`, "index", "-c", cfg, "-f", "v")
	assert.ErrorContains(t, err, "insert")
}

func TestParseWhere(t *testing.T) {
	tests := []struct {
		in      string
		want    metadata.Filter
		wantErr bool
	}{
		{in: "year>=2000", want: metadata.Gte("year", 2000)},
		{in: "year <= 1950", want: metadata.Lte("year", 1950)},
		{in: "year>1.5", want: metadata.Gt("year", 1.5)},
		{in: "year<10", want: metadata.Lt("year", 10)},
		{in: "author=H.G. Wells", want: metadata.Eq("author", "H.G. Wells")},
		{in: `year="2000"`, want: metadata.Eq("year", "2000")},
		{in: "author!=Frank Herbert", want: metadata.Ne("author", "Frank Herbert")},
		{in: "done=true", want: metadata.Eq("done", true)},
		{in: "=1", wantErr: true},
		{in: "year", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseWhere(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseVector(t *testing.T) {
	vec, err := parseVector("1, 0.5,-2")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.5, -2}, vec)

	_, err = parseVector("1,x")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "hnswfield version "+version+"\n", out)
}
