package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/annel0/skyplots/internal/auth"
	"github.com/annel0/skyplots/internal/eventbus"
	"github.com/annel0/skyplots/internal/plot"
	"github.com/annel0/skyplots/internal/service"
	"github.com/annel0/skyplots/internal/template"
	"github.com/annel0/skyplots/internal/world"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "hook-secret"

type testServer struct {
	rs     *RestServer
	bus    eventbus.EventBus
	admin  string
	viewer string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	library, err := template.NewLibrary(template.Options{Lobby: "lobby.yaml"})
	require.NoError(t, err)
	w := world.New("overworld", library.Catalog(), nil)
	registry := plot.NewRegistry(plot.Options{Catalog: library.Catalog()})
	bus := eventbus.NewMemoryBus(64)
	t.Cleanup(func() { bus.Close() })
	svc := service.NewPlotService(registry, library, w, bus)

	repo := auth.NewMemoryOperatorRepo()
	hash, err := auth.HashPassword("pass")
	require.NoError(t, err)
	_, err = repo.AddOperator("root", hash, true)
	require.NoError(t, err)
	_, err = repo.AddOperator("viewer", hash, false)
	require.NoError(t, err)
	issuer, err := auth.NewTokenIssuer("", time.Hour)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	rs, err := NewRestServer(Config{
		Service:    svc,
		Operators:  repo,
		Issuer:     issuer,
		World:      w,
		Webhook:    WebhookConfig{SecretKey: testSecret},
		Registerer: reg,
		Gatherer:   reg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { rs.Shutdown(context.Background()) })

	ts := &testServer{rs: rs, bus: bus}
	ts.admin = ts.login(t, "root", "pass")
	ts.viewer = ts.login(t, "viewer", "pass")
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(rec, req)

	var resp GenericResponse
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	data, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "вход оператора %s", username)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeData(t *testing.T, resp GenericResponse, v interface{}) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestRestServer_Health(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func TestRestServer_LoginRejected(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "root", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestServer_RequiresToken(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/api/plots", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/plots", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/plots/"+uuid.NewString(), ts.viewer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "изменения только для админов")
}

func TestRestServer_RegenerateWithoutPlot(t *testing.T) {
	ts := newTestServer(t)
	owner := uuid.New()
	path := "/api/plots/" + owner.String()

	rec, resp := ts.do(t, http.MethodPost, path+"/regen", ts.admin, PlotRequest{Name: "bob"})
	require.Equal(t, http.StatusOK, rec.Code, "перестройка без участка создаёт участок")
	var regen PlotResponse
	decodeData(t, resp, &regen)
	assert.Equal(t, "bob", regen.Name)

	rec, _ = ts.do(t, http.MethodGet, path, ts.viewer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRestServer_PlotLifecycle(t *testing.T) {
	ts := newTestServer(t)
	owner := uuid.New()
	path := "/api/plots/" + owner.String()

	rec, _ := ts.do(t, http.MethodGet, path, ts.viewer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp := ts.do(t, http.MethodPost, path, ts.admin, PlotRequest{Name: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created PlotResponse
	decodeData(t, resp, &created)
	assert.Equal(t, "alice", created.Name)
	assert.True(t, created.Created)
	assert.Equal(t, 83, created.SpawnY)

	rec, resp = ts.do(t, http.MethodPost, path, ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var again PlotResponse
	decodeData(t, resp, &again)
	assert.False(t, again.Created)
	assert.Equal(t, created.SpawnX, again.SpawnX)

	rec, resp = ts.do(t, http.MethodPost, path+"/regen", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var regen PlotResponse
	decodeData(t, resp, &regen)
	assert.Equal(t, "alice", regen.Name)
	assert.NotEqual(t, created.SpawnX, regen.SpawnX)

	rec, resp = ts.do(t, http.MethodGet, "/api/plots", ts.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Plots []PlotResponse `json:"plots"`
		Total int            `json:"total"`
	}
	decodeData(t, resp, &list)
	assert.Equal(t, 1, list.Total)

	rec, _ = ts.do(t, http.MethodGet, "/api/plots/not-a-uuid", ts.viewer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, "/api/plots/"+uuid.NewString()+"/regen", ts.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestServer_TeamAndLobby(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPost, "/api/teams/red/plot", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var team PlotResponse
	decodeData(t, resp, &team)
	assert.Equal(t, plot.TeamID("red").String(), team.Owner)

	rec, resp = ts.do(t, http.MethodGet, "/api/lobby", ts.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lobby PlotResponse
	decodeData(t, resp, &lobby)
	assert.True(t, lobby.Lobby)
	assert.Equal(t, plot.LobbyName, lobby.Name)
}

func TestRestServer_Templates(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodGet, "/api/templates", ts.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Templates []template.Info `json:"templates"`
		Default   string          `json:"default"`
		Lobby     string          `json:"lobby"`
	}
	decodeData(t, resp, &data)
	assert.Equal(t, "default.yaml", data.Default)
	assert.Equal(t, "lobby.yaml", data.Lobby)
	assert.Len(t, data.Templates, 2)

	rec, _ = ts.do(t, http.MethodPost, "/api/templates/reload", ts.admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRestServer_ServerInfoAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodGet, "/api/server", ts.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]interface{}
	decodeData(t, resp, &info)
	assert.Equal(t, "skyplots", info["name"])
	assert.Equal(t, "overworld", info["world"])

	rec, _ = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rest_api_http_request_duration_seconds")
}

func signedHook(t *testing.T, ts *testServer, event WebhookEvent, secret string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(body, secret))
	rec := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRestServer_InboundWebhook(t *testing.T) {
	ts := newTestServer(t)
	player := uuid.New()

	rec := signedHook(t, ts, WebhookEvent{EventType: HookPlayerJoined, Data: map[string]string{"player": player.String()}}, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = signedHook(t, ts, WebhookEvent{EventType: HookPlayerJoined, Data: map[string]string{"player": player.String()}}, testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	lobby, ok := ts.rs.service.Registry().Lobby()
	require.True(t, ok, "вход игрока создаёт лобби")
	assert.Equal(t, 81, lobby.Spawn.Y)

	rec = signedHook(t, ts, WebhookEvent{EventType: HookPlayerPlot, Data: map[string]string{"player": player.String(), "name": "bob"}}, testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	p, ok := ts.rs.service.Registry().Get(player)
	require.True(t, ok)
	assert.Equal(t, "bob", p.Name)

	rec = signedHook(t, ts, WebhookEvent{EventType: HookPlayerPlot, Data: map[string]string{"player": "nope"}}, testSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = signedHook(t, ts, WebhookEvent{EventType: "server.status"}, testSecret)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_event")
}

func TestOutboundWebhooks_ForwardEvents(t *testing.T) {
	ts := newTestServer(t)

	var mu sync.Mutex
	var received []OutboundWebhookEvent
	var signatures []string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev OutboundWebhookEvent
		if json.Unmarshal(body, &ev) == nil {
			mu.Lock()
			received = append(received, ev)
			signatures = append(signatures, r.Header.Get("X-Webhook-Signature")+"|"+Sign(body, "s"))
			mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	require.NoError(t, ts.rs.outboundWebhooks.Attach(context.Background(), ts.bus))

	rec, resp := ts.do(t, http.MethodPost, "/api/webhooks", ts.admin, OutboundWebhook{
		Name:   "audit",
		URL:    target.URL,
		Secret: "s",
		Events: []string{eventbus.TypePlotCreated},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var hook OutboundWebhook
	decodeData(t, resp, &hook)
	assert.Empty(t, hook.Secret, "секрет не возвращается")

	rec, _ = ts.do(t, http.MethodPost, "/api/plots/"+uuid.NewString(), ts.admin, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, eventbus.TypePlotCreated, received[0].EventType)
	assert.Equal(t, "overworld", received[0].World)
	parts := bytes.Split([]byte(signatures[0]), []byte("|"))
	assert.Equal(t, string(parts[1]), string(parts[0]), "подпись тела")
	mu.Unlock()

	rec, _ = ts.do(t, http.MethodDelete, "/api/webhooks/1", ts.admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodDelete, "/api/webhooks/1", ts.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOutboundWebhooks_Retry(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	owm := NewOutboundWebhookManager("overworld")
	owm.retryDelay = 10 * time.Millisecond
	defer owm.Close()
	owm.AddWebhook(OutboundWebhook{Name: "flaky", URL: target.URL, Events: []string{"*"}, RetryCount: 2})

	env, err := eventbus.NewEnvelope(eventbus.TypeTemplatesReloaded, "test", 5, eventbus.TemplatesReloadedEvent{})
	require.NoError(t, err)
	owm.SendEvent(env)

	require.Eventually(t, func() bool {
		hooks := owm.GetWebhooks()
		return len(hooks) == 1 && hooks[0].LastUsed != nil
	}, 3*time.Second, 20*time.Millisecond)

	hooks := owm.GetWebhooks()
	assert.Equal(t, 0, hooks[0].FailureCount, "вторая попытка успешна")
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(service.ErrNoPlot))
	assert.Equal(t, http.StatusBadRequest, statusFor(service.ErrInvalidTeam))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&template.ConfigError{Template: "x", Err: template.ErrNotFound}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(plot.ErrUnbound))
	assert.Equal(t, http.StatusBadGateway, statusFor(&plot.PlacementError{Err: plot.ErrNoContainer}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.EOF))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5с", formatUptime(5*time.Second))
	assert.Equal(t, "2м 3с", formatUptime(2*time.Minute+3*time.Second))
	assert.Equal(t, "1д 1ч 0м 0с", formatUptime(25*time.Hour))
}
