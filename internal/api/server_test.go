// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapsheets/mapsheets/internal/config"
	"github.com/mapsheets/mapsheets/internal/fetch"
	"github.com/mapsheets/mapsheets/internal/jobs"
	"github.com/mapsheets/mapsheets/internal/registry"
	"github.com/mapsheets/mapsheets/internal/sheets"
)

func tilePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func feature(id int, name, title string, minLon, minLat, maxLon, maxLat float64) string {
	ring := fmt.Sprintf("[[%[1]f,%[2]f],[%[3]f,%[2]f],[%[3]f,%[4]f],[%[1]f,%[4]f],[%[1]f,%[2]f]]",
		minLon, minLat, maxLon, maxLat)
	return fmt.Sprintf(`{
		"type": "Feature",
		"id": "series.%d",
		"properties": {
			"IMAGE": %q,
			"IMAGEURL": "https://maps.example.com/%s",
			"WFS_TITLE": %q
		},
		"geometry": {"type": "Polygon", "coordinates": [%s]}
	}`, id, name, name, title, ring)
}

func writeMetadata(t *testing.T) string {
	t.Helper()
	doc := fmt.Sprintf(`{"type":"FeatureCollection","features":[%s,%s,%s]}`,
		feature(101, "sheet_a", "OS One Inch, Published 1896", -120, 20, -100, 40),
		feature(102, "sheet_b", "OS One Inch, Published 1902", -100, 20, -80, 40),
		feature(103, "sheet_c", "OS Six Inch", -80, 20, -60, 40),
	)
	path := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o640))
	return path
}

// newTestServer builds a full server backed by a stub tile server.
func newTestServer(t *testing.T) (*httptest.Server, config.AppConfig) {
	t.Helper()

	data := tilePNG(t)
	tileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	t.Cleanup(tileSrv.Close)

	holder, err := sheets.NewHolder(writeMetadata(t))
	require.NoError(t, err)

	dl, err := fetch.New([]string{tileSrv.URL + "/{z}/{x}/{y}.png"}, fetch.Options{Concurrency: 2})
	require.NoError(t, err)

	reg, err := registry.Open(filepath.Join(t.TempDir(), "sheets.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = reg.Close()
	})

	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Zoom = 1
	cfg.Version = "test"

	srv := New(cfg, holder, jobs.NewManager(jobs.NewRunner(dl, reg)), reg)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, cfg
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url) // #nosec G107
	require.NoError(t, err)
	defer func() {
		_ = res.Body.Close()
	}()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body)) // #nosec G107
	require.NoError(t, err)
	defer func() {
		_ = res.Body.Close()
	}()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestHealthAndReadiness(t *testing.T) {
	ts, _ := newTestServer(t)

	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test", health["version"])

	var ready map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/readyz", &ready))
	assert.Equal(t, float64(3), ready["sheets"])
}

func TestRequestIDEchoed(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-123")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = res.Body.Close()
	}()
	assert.Equal(t, "req-123", res.Header.Get(HeaderRequestID))

	// Generated when absent.
	res2, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() {
		_ = res2.Body.Close()
	}()
	assert.NotEmpty(t, res2.Header.Get(HeaderRequestID))
}

func TestListSheets(t *testing.T) {
	ts, _ := newTestServer(t)

	var out struct {
		Count  int            `json:"count"`
		Sheets []sheetSummary `json:"sheets"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sheets", &out))
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, "sheet_a", out.Sheets[0].Name)
	assert.Equal(t, 1896, out.Sheets[0].PublishedDate)
}

func TestQueryEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var out struct {
		Count  int            `json:"count"`
		Sheets []sheetSummary `json:"sheets"`
	}

	code := postJSON(t, ts.URL+"/api/query", `{"kind":"wfs_ids","wfs_ids":[101,103]}`, &out)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, out.Count)

	code = postJSON(t, ts.URL+"/api/query", `{"kind":"point","point":{"lat":30,"lon":-110}}`, &out)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "sheet_a", out.Sheets[0].Name)

	code = postJSON(t, ts.URL+"/api/query",
		`{"kind":"polygon","mode":"intersects","bounds":{"min_lat":20,"min_lon":-110,"max_lat":40,"max_lon":-90}}`, &out)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, out.Count)

	code = postJSON(t, ts.URL+"/api/query", `{"kind":"string","pattern":"six inch"}`, &out)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "sheet_c", out.Sheets[0].Name)
}

func TestQueryErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound,
		postJSON(t, ts.URL+"/api/query", `{"kind":"wfs_ids","wfs_ids":[999]}`, nil))
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, ts.URL+"/api/query", `{"kind":"teleport"}`, nil))
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, ts.URL+"/api/query", `{"kind":"polygon"}`, nil))
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, ts.URL+"/api/query", `not json`, nil))
}

func TestDownloadLifecycle(t *testing.T) {
	ts, cfg := newTestServer(t)

	var started struct {
		ID     string `json:"id"`
		Sheets int    `json:"sheets"`
	}
	code := postJSON(t, ts.URL+"/api/downloads", `{"kind":"wfs_ids","wfs_ids":[101]}`, &started)
	require.Equal(t, http.StatusAccepted, code)
	require.NotEmpty(t, started.ID)
	assert.Equal(t, 1, started.Sheets)

	var job jobs.Job
	require.Eventually(t, func() bool {
		code := getJSON(t, ts.URL+"/api/downloads/"+started.ID, &job)
		return code == http.StatusOK && job.Status.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.Progress.Done)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "map_sheet_a.png"))

	var list struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/downloads", &list))
	require.Len(t, list.Jobs, 1)

	var maps struct {
		Maps []struct {
			Name string `json:"name"`
			Zoom int    `json:"zoom"`
		} `json:"maps"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/maps", &maps))
	require.Len(t, maps.Maps, 1)
	assert.Equal(t, "map_sheet_a", maps.Maps[0].Name)
	assert.Equal(t, 1, maps.Maps[0].Zoom)
}

func TestDownloadNoMatch(t *testing.T) {
	ts, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound,
		postJSON(t, ts.URL+"/api/downloads", `{"kind":"wfs_ids","wfs_ids":[999]}`, nil))
}

func TestCancelUnknownJob(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/downloads/nope", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = res.Body.Close()
	}()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() {
		_ = res.Body.Close()
	}()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
