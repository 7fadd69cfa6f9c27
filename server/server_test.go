package main

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/chirpsounder/export"
	"github.com/hb9tf/chirpsounder/ionogram"
	"github.com/hb9tf/chirpsounder/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	server    *CatalogServer
	router    *gin.Engine
	summaries chan ionogram.Summary
	stored    chan error
}

func newFixture(t *testing.T, outputDir string) *fixture {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	m, err := metrics.NewServer(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &fixture{
		summaries: make(chan ionogram.Summary, 10),
		stored:    make(chan error, 1),
	}
	catalog := &export.SQL{DB: db}
	go func() {
		f.stored <- catalog.Write(context.Background(), f.summaries)
	}()
	f.server = &CatalogServer{
		catalog:   catalog,
		summaries: f.summaries,
		outputDir: outputDir,
		metrics:   m,
	}
	f.router = f.server.router()
	return f
}

// drain waits until everything collected so far is stored.
func (f *fixture) drain(t *testing.T) {
	close(f.summaries)
	require.NoError(t, <-f.stored)
}

func (f *fixture) do(method, target string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, target, bytes.NewReader(body)))
	return rec
}

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func summaries() []ionogram.Summary {
	return []ionogram.Summary{
		{Identifier: "w0", SounderID: 1, Channel: "ch0", Start: start, ChirpRate: 100e3, Path: "a"},
		{Identifier: "w1", Rank: 1, SounderID: 2, Channel: "ch0", Start: start.Add(time.Minute), ChirpRate: 50e3, Path: "b"},
		{Identifier: "w0", SounderID: 1, Channel: "ch0", Start: start.Add(5 * time.Minute), ChirpRate: 100e3, Path: "c"},
	}
}

func TestCollectAndList(t *testing.T) {
	f := newFixture(t, "")
	body, err := json.Marshal(summaries())
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/"+export.CollectEndpoint, body)
	require.Equal(t, http.StatusOK, rec.Code)
	var cr export.CollectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	assert.Equal(t, export.CollectResponse{Status: "ok", SummaryCount: 3}, cr)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.server.metrics.SummariesCollected))
	f.drain(t)

	tt := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"a", "b", "c"}},
		{"sounder", "?id=1", []string{"a", "c"}},
		{"from", "?from=2024-05-01T12:01:00Z", []string{"b", "c"}},
		{"to", "?to=2024-05-01T12:01:00Z", []string{"a"}},
		{"limit", "?limit=2", []string{"a", "b"}},
		{"empty", "?id=9", []string{}},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, ionogramsEndpoint+tc.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			var got []ionogram.Summary
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			paths := []string{}
			for _, s := range got {
				paths = append(paths, s.Path)
			}
			assert.Equal(t, tc.want, paths)
		})
	}
}

func TestListRejectsBadQuery(t *testing.T) {
	f := newFixture(t, "")
	defer f.drain(t)
	for _, q := range []string{"?id=x", "?from=yesterday", "?limit=-1"} {
		rec := f.do(http.MethodGet, ionogramsEndpoint+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestCollectRejectsBadBody(t *testing.T) {
	f := newFixture(t, "")
	defer f.drain(t)
	rec := f.do(http.MethodPost, "/"+export.CollectEndpoint, []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.server.metrics.CollectErrors))
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2024-05-01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024-05-01", "x.json.zst"), []byte("zst"), 0o644))
	f := newFixture(t, dir)
	defer f.drain(t)

	rec := f.do(http.MethodGet, filesEndpoint+"/2024-05-01/x.json.zst", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "zst", rec.Body.String())

	rec = f.do(http.MethodGet, filesEndpoint+"/2024-05-01/missing.json.zst", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")
	defer f.drain(t)
	f.server.metrics.SummariesCollected.Add(2)

	rec := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chirpsounder_summaries_collected_total 2")
}
