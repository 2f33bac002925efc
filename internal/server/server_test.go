package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rayview/internal/core/registry"
	"rayview/internal/core/store"
	"rayview/internal/hub"
	"rayview/internal/ingest"
)

type testEnv struct {
	server *Server
	store  *store.Store
	http   *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	st := store.New(registry.New())
	hb := hub.New()
	pipeline := ingest.NewPipeline(st, hb, 64)
	t.Cleanup(pipeline.Close)

	srv := New(cfg, pipeline, st)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: srv, store: st, http: ts}
}

func postJSON(t *testing.T, env *testEnv, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(env.http.URL+"/", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(raw, &out))
	return out
}

func TestAvailabilityProbe(t *testing.T) {
	env := newTestEnv(t, Config{Version: "1.2.3"})

	for _, path := range []string{"/", "/_availability_check"} {
		resp, err := http.Get(env.http.URL + path)
		require.NoError(t, err)
		body := decodeBody(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "1.2.3", body["version"])
	}
}

func TestIngestLogThenCountMerges(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, body := postJSON(t, env,
		`{"uuid":"a","payloads":[{"type":"log","content":{"values":["hello"],"meta":[]}}],"meta":{"hostname":"h","project_name":"p"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["recorded"])
	assert.Equal(t, "a", body["uuid"])

	resp, _ = postJSON(t, env,
		`{"uuid":"b","payloads":[{"type":"count","content":{"value":2}}],"meta":{"hostname":"h","project_name":"p"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Acceptance is an acknowledgement, not the processed result; the
	// commit lands asynchronously.
	require.Eventually(t, func() bool {
		visible := 0
		for _, e := range env.store.Snapshot() {
			if e.Visible() {
				visible++
			}
		}
		return env.store.Len() == 2 && visible == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIngestMalformedBodyRejected(t *testing.T) {
	env := newTestEnv(t, Config{})

	for _, body := range []string{"", "not json", `["array"]`, `{"payloads": "nope"}`} {
		resp, decoded := postJSON(t, env, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
		assert.NotEmpty(t, decoded["error"])
	}

	// Rejected traffic leaves no trace in the timeline.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, env.store.Len())
}

func TestLockLifecycle(t *testing.T) {
	env := newTestEnv(t, Config{})
	client := env.http.Client()

	status := func() map[string]interface{} {
		resp, err := client.Get(env.http.URL + "/locks/pause")
		require.NoError(t, err)
		return decodeBody(t, resp)
	}

	assert.Equal(t, false, status()["active"])
	assert.Equal(t, false, status()["stop_execution"])

	req, _ := http.NewRequest(http.MethodPost, env.http.URL+"/locks/pause?hostname=dev&project_name=shop", nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, true, decodeBody(t, resp)["locked"])

	lock, ok := env.store.Registry().Lock("pause")
	require.True(t, ok)
	assert.Equal(t, "shop@dev", lock.Holder)

	// Second acquire is a normal negative result.
	req, _ = http.NewRequest(http.MethodPost, env.http.URL+"/locks/pause", nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decodeBody(t, resp)["locked"])

	assert.Equal(t, true, status()["active"])

	req, _ = http.NewRequest(http.MethodDelete, env.http.URL+"/locks/pause", nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, true, decodeBody(t, resp)["released"])
	assert.Equal(t, false, status()["active"])
}

func TestDumpTapCapturesRawBodies(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "dump.jsonl")
	env := newTestEnv(t, Config{DumpFile: dumpPath})

	first := `{"uuid":"a","payloads":[],"meta":{}}`
	second := `this is not even json`
	postJSON(t, env, first)
	postJSON(t, env, second)

	require.NoError(t, env.server.Shutdown(t.Context()))

	raw, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, first, string(lines[0]))
	assert.Equal(t, second, string(lines[1]), "tap captures traffic before validation")
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp, err := http.Get(env.http.URL + "/definitely/not/a/route")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
