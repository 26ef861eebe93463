package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswfield"
	"github.com/hupe1980/hnswfield/config"
	"github.com/hupe1980/hnswfield/metadata"
	promcollector "github.com/hupe1980/hnswfield/metrics/prometheus"
	"github.com/hupe1980/hnswfield/registry"
	"github.com/hupe1980/hnswfield/testutil"
)

const field = "description_vector"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	reg, err := registry.Load(filepath.Join("..", "registry", "testdata", "books.yaml"))
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	collector := promcollector.NewCollector(promReg, "test")

	db, err := hnswfield.Open(context.Background(),
		hnswfield.WithRegistry(reg),
		hnswfield.WithMetricsCollector(collector),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewServer(db, config.Default().Server, WithMetrics(collector, promReg))
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func loadBooks(t *testing.T, s *Server) {
	t.Helper()
	for i, b := range testutil.Books() {
		rec := do(t, s, http.MethodPost, "/fields/"+field+"/vectors", InsertRequest{
			Vector: b.Vector,
			Fields: map[string]string{"name": b.Name},
			Attributes: metadata.Document{
				"author": metadata.String(b.Author),
				"year":   metadata.Int(int64(b.Year)),
			},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp InsertResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.EqualValues(t, i, resp.ID)
	}
}

func names(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Fields["name"]
	}
	return out
}

func TestHandlers_Health(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Empty(t, resp.Fields)
}

func TestHandlers_Search(t *testing.T) {
	s := newTestServer(t)
	loadBooks(t, s)

	tests := []struct {
		name   string
		req    SearchRequest
		want   []string
		status string
		path   string
	}{
		{
			name:   "top three",
			req:    SearchRequest{Vector: testutil.AlienInvasion, K: 3},
			want:   []string{"The Hitchhiker's Guide to the Galaxy", "The Three-Body Problem", "The Andromeda Strain"},
			status: "ok",
		},
		{
			name:   "year filter",
			req:    SearchRequest{Vector: testutil.AlienInvasion, K: 3, Filters: []metadata.Filter{metadata.Gte("year", 2000)}},
			want:   []string{"The Three-Body Problem", "The Hunger Games"},
			status: "filter_exhausted",
		},
		{
			name:   "exact author filter",
			req:    SearchRequest{Vector: testutil.AlienInvasion, K: 5, Mode: "exact", Filters: []metadata.Filter{metadata.Eq("author", "H.G. Wells")}},
			want:   []string{"The War of the Worlds", "The Time Machine"},
			status: "filter_exhausted",
			path:   "exact",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/fields/"+field+"/search", tt.req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp SearchResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, names(resp.Hits))
			assert.Equal(t, tt.status, resp.Status)
			if tt.path != "" {
				assert.Equal(t, tt.path, resp.Path)
			}
			for i := 1; i < len(resp.Hits); i++ {
				assert.LessOrEqual(t, resp.Hits[i-1].Distance, resp.Hits[i].Distance)
			}
		})
	}
}

func TestHandlers_SearchRawFilterJSON(t *testing.T) {
	s := newTestServer(t)
	loadBooks(t, s)

	vec, err := json.Marshal(testutil.AlienInvasion)
	require.NoError(t, err)
	body := fmt.Sprintf(`{"vector":%s,"k":3,"filters":[{"key":"year","op":"gte","value":2000}],"without_records":true}`, vec)

	rec := do(t, s, http.MethodPost, "/fields/"+field+"/search", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 2)
	assert.EqualValues(t, 12, resp.Hits[0].ID)
	assert.Nil(t, resp.Hits[0].Fields)
}

func TestHandlers_GetVector(t *testing.T) {
	s := newTestServer(t)
	loadBooks(t, s)

	rec := do(t, s, http.MethodGet, "/fields/"+field+"/vectors/3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp VectorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 3, resp.ID)
	assert.Equal(t, testutil.Books()[3].Vector, resp.Vector)
	assert.Equal(t, "The Hitchhiker's Guide to the Galaxy", resp.Fields["name"])
	assert.Equal(t, metadata.Int(1979), resp.Attributes["year"])
}

func TestHandlers_Fields(t *testing.T) {
	s := newTestServer(t)
	loadBooks(t, s)

	rec := do(t, s, http.MethodGet, "/fields", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []FieldResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, field, resp[0].Name)
	assert.Equal(t, 8, resp[0].Dimension)
	assert.Equal(t, 13, resp[0].Vectors)
	assert.Equal(t, 32, resp[0].Config.M)
	assert.Equal(t, 2, resp[0].Attributes)
}

func TestHandlers_Save(t *testing.T) {
	s := newTestServer(t)
	loadBooks(t, s)

	rec := do(t, s, http.MethodPost, "/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Manifest)
	assert.Equal(t, 1, resp.Fields)
}

func TestHandlers_Errors(t *testing.T) {
	s := newTestServer(t)
	loadBooks(t, s)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"unknown field search", http.MethodPost, "/fields/missing/search", SearchRequest{Vector: testutil.AlienInvasion, K: 1}, http.StatusNotFound},
		{"unknown field vector", http.MethodGet, "/fields/missing/vectors/0", nil, http.StatusNotFound},
		{"missing id", http.MethodGet, "/fields/" + field + "/vectors/99", nil, http.StatusNotFound},
		{"dimension mismatch", http.MethodPost, "/fields/" + field + "/vectors", InsertRequest{Vector: []float32{1, 2}}, http.StatusBadRequest},
		{"no vector", http.MethodPost, "/fields/" + field + "/vectors", InsertRequest{}, http.StatusBadRequest},
		{"no embedder", http.MethodPost, "/fields/" + field + "/search", SearchRequest{Text: "aliens", K: 1}, http.StatusBadRequest},
		{"bad k", http.MethodPost, "/fields/" + field + "/search", SearchRequest{Vector: testutil.AlienInvasion, K: -1}, http.StatusBadRequest},
		{"bad mode", http.MethodPost, "/fields/" + field + "/search", SearchRequest{Vector: testutil.AlienInvasion, K: 1, Mode: "fuzzy"}, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/fields/" + field + "/search", "{", http.StatusBadRequest},
		{"unknown json key", http.MethodPost, "/fields/" + field + "/search", `{"vector":[1],"bogus":1}`, http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/save", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusMethodNotAllowed {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Error)
				assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
			}
		})
	}
}

func TestHandlers_RequestIDAndMetrics(t *testing.T) {
	s := newTestServer(t)

	const id = "7f1c4a1e-5a57-4d5f-9b0e-2a0b9d8f6c11"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	rec = do(t, s, http.MethodGet, "/health", nil)
	assert.NotEqual(t, id, rec.Header().Get(RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_http_requests_total{method="GET",path="/health",status="200"} 2`), body)
}
