package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/pipeline"
	"github.com/sells-group/sheriff-sales/internal/reconcile"
	"github.com/sells-group/sheriff-sales/internal/render"
	"github.com/sells-group/sheriff-sales/internal/store"
)

type fakeMaps struct {
	path  string
	err   error
	calls int
}

func (f *fakeMaps) RenderCurrent(context.Context) (*render.Output, time.Time, error) {
	f.calls++
	if f.err != nil {
		return nil, time.Time{}, f.err
	}
	if err := os.WriteFile(f.path, []byte("<kml>fresh</kml>"), 0o644); err != nil {
		return nil, time.Time{}, err
	}
	return &render.Output{}, time.Now(), nil
}

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	last    *model.Run
	ran     chan struct{}
}

func (f *fakeRunner) TryRun(context.Context) (*pipeline.RunResult, error) {
	defer close(f.ran)
	return &pipeline.RunResult{AuctionID: "072020"}, nil
}

func (f *fakeRunner) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRunner) Last() *model.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeRunner) set(running bool, last *model.Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running, f.last = running, last
}

type testEnv struct {
	st      *store.SQLiteStore
	maps    *fakeMaps
	runner  *fakeRunner
	kmlPath string
	srv     *httptest.Server
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLite(filepath.Join(dir, "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	env := &testEnv{
		st:      st,
		kmlPath: filepath.Join(dir, "map.kml"),
		runner:  &fakeRunner{ran: make(chan struct{})},
	}
	env.maps = &fakeMaps{path: env.kmlPath}
	s := New(Config{
		Store:      st,
		Reconciler: reconcile.New(st, 2),
		Maps:       env.maps,
		Runner:     env.runner,
		KMLPath:    env.kmlPath,
	})
	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) seed(t *testing.T, listings ...model.Listing) {
	t.Helper()
	for i := range listings {
		require.NoError(t, e.st.UpsertListing(context.Background(), &listings[i]))
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestListHouses(t *testing.T) {
	env := newEnv(t)
	env.seed(t,
		model.Listing{AuctionNumber: "1", AuctionID: "072020", Address: []string{"1 MAIN"}},
		model.Listing{AuctionNumber: "2", AuctionID: "082020", Address: []string{"2 MAIN"}},
	)
	require.NoError(t, env.st.SetConfig(context.Background(), model.ConfigCurrentAuctionID, "082020"))

	all := decode[[]model.Listing](t, env.do(t, http.MethodGet, "/api/v1/houses", ""))
	assert.Len(t, all, 2)

	byID := decode[[]model.Listing](t, env.do(t, http.MethodGet, "/api/v1/houses?auctionID=072020", ""))
	require.Len(t, byID, 1)
	assert.Equal(t, "1", byID[0].AuctionNumber)

	current := decode[[]model.Listing](t, env.do(t, http.MethodGet, "/api/v1/houses?current=true", ""))
	require.Len(t, current, 1)
	assert.Equal(t, "2", current[0].AuctionNumber)
}

func TestListHouses_Empty(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/houses?current=true", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]model.Listing](t, resp))
}

func TestGetPatchDeleteHouse(t *testing.T) {
	env := newEnv(t)
	env.seed(t, model.Listing{AuctionNumber: "1", AuctionID: "072020", AttorneyName: "KML", Address: []string{"1 MAIN"}})

	resp := env.do(t, http.MethodGet, "/api/v1/houses/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "KML", decode[model.Listing](t, resp).AttorneyName)

	resp = env.do(t, http.MethodPatch, "/api/v1/houses/1", `{"firmName":"KML Law Group","auctionNumber":"999"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/api/v1/houses/1", resp.Header.Get("Location"))
	patched := decode[model.Listing](t, resp)
	assert.Equal(t, "1", patched.AuctionNumber)
	assert.Equal(t, "KML Law Group", patched.FirmName)
	assert.Equal(t, "KML", patched.AttorneyName)

	resp = env.do(t, http.MethodPatch, "/api/v1/houses/1", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/v1/houses/1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/houses/1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/v1/houses/1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodPatch, "/api/v1/houses/1", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSaveHouses(t *testing.T) {
	env := newEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/houses",
		`{"houses":[{"auctionNumber":"1","auctionID":"072020","address":["1 MAIN"]},{"auctionNumber":"2","auctionID":"072020","address":["2 MAIN"]}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[reconcile.Result](t, resp)
	assert.Equal(t, "072020", res.AuctionID)
	assert.Equal(t, 2, res.Count)

	current, err := env.st.GetConfig(context.Background(), model.ConfigCurrentAuctionID)
	require.NoError(t, err)
	assert.Equal(t, "072020", current)

	resp = env.do(t, http.MethodPost, "/api/v1/houses", `{"houses":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefresh(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/houses/refresh", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-env.runner.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle was not started")
	}
}

func TestRefresh_Busy(t *testing.T) {
	env := newEnv(t)
	env.runner.set(true, nil)
	resp := env.do(t, http.MethodPost, "/api/v1/houses/refresh", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLastRun(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/runs/last", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.runner.set(false, &model.Run{ID: "abc", Status: model.RunStatusComplete})
	resp = env.do(t, http.MethodGet, "/api/v1/runs/last", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc", decode[model.Run](t, resp).ID)
}

func TestDownloadMap(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/houses/map", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.maps.calls)

	assert.Equal(t, "application/vnd.google-earth.kml+xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Content-Disposition", resp.Header.Get("Access-Control-Expose-Headers"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "map.kml")
	assert.Equal(t, "16", resp.Header.Get("Content-Length"))
}

func TestDownloadMap_RenderFailsServesPrevious(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, os.WriteFile(env.kmlPath, []byte("<kml>old</kml>"), 0o644))
	env.maps.err = errors.New("no current auction")

	resp := env.do(t, http.MethodGet, "/api/v1/houses/map", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<kml>old</kml>", string(body))
}

func TestDownloadMap_NeverRendered(t *testing.T) {
	env := newEnv(t)
	env.maps.err = errors.New("no current auction")
	resp := env.do(t, http.MethodGet, "/api/v1/houses/map", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t)
	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/v1/houses", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://maps.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
