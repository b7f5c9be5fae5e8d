package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishdosapati/solutionbuilder-core/pkg/events"
	"github.com/satishdosapati/solutionbuilder-core/pkg/orchestrator"
	"github.com/satishdosapati/solutionbuilder-core/pkg/pool"
	"github.com/satishdosapati/solutionbuilder-core/pkg/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedRunner emits a fixed event sequence.
type scriptedRunner struct {
	emit func(req orchestrator.Request, enc *events.StreamEncoder) error
}

func (r *scriptedRunner) Run(_ context.Context, req orchestrator.Request, enc *events.StreamEncoder) error {
	return r.emit(req, enc)
}

func newTestServer(runner Runner) (*Server, *session.Store, *pool.Manager) {
	sessions := session.NewStore(time.Hour, time.Minute, 32_000)
	pools := pool.NewManager(pool.Options{Size: 1, SizeSet: true})
	return NewServer(runner, sessions, pools), sessions, pools
}

func decodeNDJSON(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		out = append(out, obj)
	}
	return out
}

func TestSolutionStreamHappyPath(t *testing.T) {
	runner := &scriptedRunner{emit: func(req orchestrator.Request, enc *events.StreamEncoder) error {
		require.NoError(t, enc.Emit(events.Thinking("researching", "working")))
		require.NoError(t, enc.Emit(events.PartialText("partial")))
		return enc.Emit(events.Complete(req.Mode, "sess-1", map[string]any{"answer": "done"}))
	}}
	server, _, _ := newTestServer(runner)

	body := `{"mode":"brainstorm","input":"How does S3 versioning work?"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/solutions/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := decodeNDJSON(t, rec.Body.Bytes())
	require.Len(t, lines, 3)
	assert.Equal(t, events.TypeThinking, lines[0]["type"])
	assert.Equal(t, events.TypePartialText, lines[1]["type"])
	assert.Equal(t, events.TypeComplete, lines[2]["type"])
}

func TestSolutionStreamRejectsBadMode(t *testing.T) {
	server, _, _ := newTestServer(&scriptedRunner{emit: func(orchestrator.Request, *events.StreamEncoder) error {
		t.Fatal("runner must not be called")
		return nil
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/solutions/stream",
		strings.NewReader(`{"mode":"drop-tables","input":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSolutionStreamRejectsMalformedBody(t *testing.T) {
	server, _, _ := newTestServer(&scriptedRunner{emit: func(orchestrator.Request, *events.StreamEncoder) error {
		return nil
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/solutions/stream", strings.NewReader(`{broken`))
	req.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSolutionStreamSurfacesFailureLine(t *testing.T) {
	runner := &scriptedRunner{emit: func(_ orchestrator.Request, enc *events.StreamEncoder) error {
		return enc.Emit(events.Failed(events.FailPoolExhausted, "no client available"))
	}}
	server, _, _ := newTestServer(runner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/solutions/stream",
		strings.NewReader(`{"mode":"generate","input":"make a vpc"}`))
	req.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "failures arrive in-stream, not as HTTP errors")
	lines := decodeNDJSON(t, rec.Body.Bytes())
	require.Len(t, lines, 1)
	assert.Equal(t, events.TypeFailed, lines[0]["type"])
	assert.Equal(t, events.FailPoolExhausted, lines[0]["kind"])
}

func TestSessionEndpoints(t *testing.T) {
	server, sessions, _ := newTestServer(&scriptedRunner{emit: func(orchestrator.Request, *events.StreamEncoder) error {
		return nil
	}})
	sess := sessions.GetOrCreate("known")
	sess.Lock()
	sess.Touch("analyze", time.Now())
	sess.Unlock()

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/known", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "known", info.ID)
	assert.Equal(t, "analyze", info.LastMode)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/known", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, sessions.Get("known"))

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/known", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthReportsPoolStats(t *testing.T) {
	server, sessions, _ := newTestServer(&scriptedRunner{emit: func(orchestrator.Request, *events.StreamEncoder) error {
		return nil
	}})
	sessions.GetOrCreate("one")

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["sessions"])
	assert.Contains(t, body, "pools")
	assert.Contains(t, body, "total")
}
