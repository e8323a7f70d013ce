package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-scribe/backend/internal/auth"
	"github.com/voice-scribe/backend/internal/config"
	"github.com/voice-scribe/backend/internal/db"
	"github.com/voice-scribe/backend/internal/db/models"
	"github.com/voice-scribe/backend/internal/gpu"
	"github.com/voice-scribe/backend/internal/job"
	"github.com/voice-scribe/backend/internal/memwatch"
	"github.com/voice-scribe/backend/internal/recovery"
	"github.com/voice-scribe/backend/internal/resource"
)

type nopLoader struct{}

func (nopLoader) Load(params map[string]string) (any, error) { return "handle", nil }
func (nopLoader) Unload(handle any) error                    { return nil }

type testEnv struct {
	server *httptest.Server
	token  string
	db     *db.Database
	queue  *job.JobQueue
	jwt    *auth.JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.EnsureAdmin("admin", "secret123"))

	monitor := memwatch.NewWithSampler(
		memwatch.Thresholds{Warning: 0.75, Critical: 0.90},
		func() (memwatch.Snapshot, error) {
			return memwatch.Snapshot{Total: 16 << 30, Used: 4 << 30, Available: 12 << 30, PercentUsed: 0.25}, nil
		},
	)
	sentinel := resource.NewSentinel(monitor, &gpu.Capability{Mode: gpu.ModeCPU}, map[resource.Kind]resource.Loader{
		resource.KindSpeechEngine:    nopLoader{},
		resource.KindCorrectionModel: nopLoader{},
	}, resource.SentinelOptions{SettleDelay: time.Millisecond})

	broker := job.NewBroker()
	queue := job.NewJobQueue(database.DB(), broker)
	t.Cleanup(queue.Stop)

	cfg := config.Default()
	jwtService := auth.NewJWTService("test-secret")

	router := NewRouter(Deps{
		Config:   cfg,
		Database: database,
		JWT:      jwtService,
		Queue:    queue,
		Broker:   broker,
		Sentinel: sentinel,
		Recovery: recovery.NewManager(),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	env := &testEnv{server: server, db: database, queue: queue, jwt: jwtService}
	env.token = env.login(t, "admin", "secret123")
	return env
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(e.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	return e.doAs(t, e.token, method, path, body)
}

func (e *testEnv) doAs(t *testing.T, token, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, err := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestModelLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	// Load
	resp := env.do(t, http.MethodPost, "/api/models/speech_engine/load", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Status reflects the load
	resp = env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[map[string]json.RawMessage](t, resp)
	var sentinelStatus resource.Status
	require.NoError(t, json.Unmarshal(status["sentinel"], &sentinelStatus))
	assert.Equal(t, []resource.Kind{resource.KindSpeechEngine}, sentinelStatus.ActiveKinds)

	// Swap
	resp = env.do(t, http.MethodPost, "/api/models/swap", map[string]any{
		"from": "speech_engine", "to": "correction_model",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Unload
	resp = env.do(t, http.MethodPost, "/api/models/correction_model/unload", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, true, out["released"])

	// Metrics counted one load, one swap
	resp = env.do(t, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	metrics := decode[resource.Metrics](t, resp)
	assert.Equal(t, uint64(1), metrics.SwapsPerformed)
	assert.GreaterOrEqual(t, metrics.Loads, uint64(2))
}

func TestModelEndpointsRejectUnknownKind(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/models/bogus/load", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTranscriptCorrectionFlow(t *testing.T) {
	env := newTestEnv(t)

	// The queue handler is faked so the flow stays inside the API layer.
	env.queue.RegisterHandler(job.JobCorrect, func(ctx context.Context, j *job.Job, progress job.ProgressFunc) error {
		return nil
	})

	resp := env.do(t, http.MethodPost, "/api/transcripts", map[string]string{
		"name": "standup", "text": "hello world.",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Transcript](t, resp)
	require.NotEmpty(t, created.ID)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/transcripts/%s/correct", created.ID), nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	enqueued := decode[job.Job](t, resp)
	assert.Equal(t, job.JobCorrect, enqueued.Type)

	resp = env.do(t, http.MethodGet, "/api/jobs/"+enqueued.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCorrectUnknownTranscript(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/transcripts/nope/correct", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/settings", map[string]string{
		"speech_model":     "/models/ggml-base.bin",
		"correction_model": "qwen2.5.gguf",
		"unknown_key":      "ignored",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, "/models/ggml-base.bin", env.db.GetSetting("speech_model", ""))
	assert.Equal(t, "qwen2.5.gguf", env.db.GetSetting("correction_model", ""))
	assert.Equal(t, "", env.db.GetSetting("unknown_key", ""))
}

func TestSettingsMaskedValueDoesNotOverwriteSecret(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/settings", map[string]string{
		"hf_token": "hf_abcdef123456",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// Round-tripping the masked display value must leave the stored
	// secret intact.
	resp = env.do(t, http.MethodPut, "/api/settings", map[string]string{
		"hf_token": "••••••••3456",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "hf_abcdef123456", env.db.GetSetting("hf_token", ""))

	// Empty string is an explicit clear.
	resp = env.do(t, http.MethodPut, "/api/settings", map[string]string{
		"hf_token": "",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "", env.db.GetSetting("hf_token", "unset"))
}

func TestAdminOnlyRoutesRejectViewer(t *testing.T) {
	env := newTestEnv(t)

	viewerToken, err := env.jwt.GenerateToken(42, "viewer", "viewer")
	require.NoError(t, err)

	resp := env.doAs(t, viewerToken, http.MethodPut, "/api/settings", map[string]string{
		"speech_model": "/models/ggml-base.bin",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "", env.db.GetSetting("speech_model", ""))

	resp = env.doAs(t, viewerToken, http.MethodPost, "/api/models/speech_engine/load", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Read-only surfaces stay open to any authenticated user.
	resp = env.doAs(t, viewerToken, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
