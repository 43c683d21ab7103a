package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rsi-sentry/internal/aggregator"
	"rsi-sentry/internal/analyzer"
	"rsi-sentry/internal/annotation"
	"rsi-sentry/internal/database"
	"rsi-sentry/internal/fetcher"
	"rsi-sentry/internal/indicators"
	"rsi-sentry/internal/notifier"
	"rsi-sentry/internal/scheduler"
	"rsi-sentry/internal/storage"
	"rsi-sentry/pkg/types"
)

type testEnv struct {
	ts      *httptest.Server
	mock    *fetcher.MockFetcher
	queue   *notifier.Queue
	hub     *Hub
	sched   *scheduler.Scheduler
	journal *database.MemoryJournal
}

func series(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mock := fetcher.NewMockFetcher()
	mock.SetCloses("BTCUSDT", series(30, 100, 1)...)
	mock.SetCloses("ETHUSDT", series(30, 100, -1)...)

	store := storage.NewMemoryStore()
	settings := storage.NewSettingsStore(store)
	journal := database.NewMemoryJournal(100)
	queue := notifier.NewQueue(time.Minute)

	agg := aggregator.New(aggregator.Config{
		Fetcher:    mock,
		Calculator: indicators.NewRSICalculator(14),
		Limit:      100,
		Reporter:   journal,
		Symbols:    []string{"ETHUSDT", "BTCUSDT"},
		Timeframe:  types.OneHour,
	})
	engine := analyzer.NewAnalysisEngine(analyzer.Config{Enabled: true, Publisher: queue, Recorder: journal})

	hub := NewHub(engine.Statuses(), func() []Event {
		return []Event{{Type: EventSnapshot, Data: NewSnapshotView(agg.Snapshot(), engine.Statuses())}}
	})
	queue.AddSink(hub)

	sched := scheduler.NewScheduler(scheduler.Config{
		Aggregator:  agg,
		Analyzer:    engine,
		Settings:    settings,
		Broadcaster: hub,
		Interval:    time.Hour,
	})
	srv := New(":0", Deps{
		Aggregator: agg,
		Analyzer:   engine,
		Scheduler:  sched,
		Queue:      queue,
		Layer:      annotation.NewLayer(annotation.Options{Store: store}),
		Journal:    journal,
		Settings:   settings,
		Hub:        hub,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		queue.Close()
	})
	return &testEnv{ts: ts, mock: mock, queue: queue, hub: hub, sched: sched, journal: journal}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSnapshotEndpoint(t *testing.T) {
	env := newTestEnv(t)

	empty := decode[SnapshotView](t, env.do(t, http.MethodGet, "/api/snapshot", nil))
	assert.Empty(t, empty.Symbols)

	require.True(t, env.sched.RunCycle(context.Background()))
	resp := env.do(t, http.MethodGet, "/api/snapshot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decode[SnapshotView](t, resp)
	require.Len(t, view.Symbols, 2)
	assert.Equal(t, "BTCUSDT", view.Symbols[0].Symbol)
	assert.Equal(t, types.StatusOverbought, view.Symbols[0].Zone)
	assert.Equal(t, types.StatusOverbought, view.Symbols[0].Status)
	require.NotNil(t, view.Symbols[0].LatestRSI)
	assert.InDelta(t, 100, *view.Symbols[0].LatestRSI, 1e-9)
	assert.Equal(t, types.StatusOversold, view.Symbols[1].Zone)
}

func TestToastEndpoints(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.sched.RunCycle(context.Background()))

	toasts := decode[[]types.Toast](t, env.do(t, http.MethodGet, "/api/toasts", nil))
	require.Len(t, toasts, 2)

	resp := env.do(t, http.MethodDelete, "/api/toasts/"+toasts[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	// 重复删除不报错
	resp = env.do(t, http.MethodDelete, "/api/toasts/"+toasts[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	left := decode[[]types.Toast](t, env.do(t, http.MethodGet, "/api/toasts", nil))
	require.Len(t, left, 1)
	assert.Equal(t, toasts[1].ID, left[0].ID)

	alerts := decode[[]database.AlertEvent](t, env.do(t, http.MethodGet, "/api/alerts?symbol=btcusdt", nil))
	require.Len(t, alerts, 1)
	assert.Equal(t, "overbought", alerts[0].Kind)

	resp = env.do(t, http.MethodGet, "/api/alerts?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/settings/timeframe", map[string]string{"timeframe": "2w"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/settings/timeframe", map[string]string{"timeframe": "4h"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.FourHour, decode[scheduler.State](t, resp).Timeframe)

	resp = env.do(t, http.MethodPut, "/api/settings/symbols", map[string][]string{"symbols": {}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/settings/symbols", map[string][]string{"symbols": {"solusdt"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"SOLUSDT"}, decode[scheduler.State](t, resp).Symbols)

	resp = env.do(t, http.MethodPut, "/api/settings/alerts", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/settings/alerts", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[scheduler.State](t, resp).AlertsEnabled)

	resp = env.do(t, http.MethodPut, "/api/settings/favorites", map[string][]string{"favorites": {"btcusdt", "BTCUSDT"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[settingsResponse](t, env.do(t, http.MethodGet, "/api/settings", nil))
	assert.Equal(t, []string{"BTCUSDT"}, got.Favorites)
	assert.Equal(t, []string{"SOLUSDT"}, got.Symbols)
	assert.Equal(t, types.FourHour, got.Timeframe)

	resp = env.do(t, http.MethodPut, "/api/settings/timeframe", map[string]string{"period": "4h"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnnotationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	vp := annotation.Viewport{Width: 800, Height: 400}
	path := "/api/annotations/btcusdt/events"

	resp := env.do(t, http.MethodPost, path, pointerEvent{Type: "down", X: 80, Y: 40, Viewport: vp, Color: "#00ff00"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	down := decode[pointerResponse](t, resp)
	assert.Equal(t, "drawing", down.State)
	assert.Equal(t, "BTCUSDT", down.Symbol)

	resp = env.do(t, http.MethodPost, path, pointerEvent{Type: "move", X: 400, Y: 200, Viewport: vp})
	moved := decode[pointerResponse](t, resp)
	require.NotNil(t, moved.Preview)
	assert.Len(t, moved.Preview.Points, 2)

	resp = env.do(t, http.MethodPost, path, pointerEvent{Type: "up", X: 400, Y: 200, Viewport: vp})
	up := decode[pointerResponse](t, resp)
	assert.Equal(t, "idle", up.State)
	require.NotNil(t, up.Committed)
	assert.Equal(t, annotation.KindStroke, up.Committed.Kind)
	assert.Equal(t, "#00ff00", up.Committed.Color)
	assert.Equal(t, annotation.Point{X: 0.1, Y: 0.1}, up.Committed.Points[0])
	assert.Nil(t, up.Preview)

	got := decode[annotationsResponse](t, env.do(t, http.MethodGet, "/api/annotations/BTCUSDT?width=1600&height=800", nil))
	require.Len(t, got.Annotations, 1)
	require.Len(t, got.Rendered, 1)
	assert.Equal(t, annotation.PixelPoint{X: 160, Y: 80}, got.Rendered[0].Pixels[0])

	other := decode[annotationsResponse](t, env.do(t, http.MethodGet, "/api/annotations/ETHUSDT", nil))
	assert.Empty(t, other.Annotations)

	resp = env.do(t, http.MethodGet, "/api/annotations/BTCUSDT?width=0&height=10", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path, pointerEvent{Type: "wiggle"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = env.do(t, http.MethodPost, path, pointerEvent{Tool: "eraser"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/annotations/BTCUSDT", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	cleared := decode[annotationsResponse](t, env.do(t, http.MethodGet, "/api/annotations/BTCUSDT", nil))
	assert.Empty(t, cleared.Annotations)
}

func readEvent(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == want {
			return ev.Data
		}
	}
}

func TestWebSocketEvents(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	greeting := readEvent(t, conn, EventSnapshot)
	assert.Contains(t, string(greeting), `"symbols":[]`)
	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, env.sched.RunCycle(context.Background()))

	// 预警先于快照推送
	var toast types.Toast
	require.NoError(t, json.Unmarshal(readEvent(t, conn, EventToast), &toast))
	assert.Equal(t, "BTCUSDT", toast.Symbol)
	assert.NotEmpty(t, toast.ID)

	var snap SnapshotView
	require.NoError(t, json.Unmarshal(readEvent(t, conn, EventSnapshot), &snap))
	assert.Len(t, snap.Symbols, 2)

	env.queue.Dismiss(toast.ID)
	var removed ToastRemovedData
	require.NoError(t, json.Unmarshal(readEvent(t, conn, EventToastRemoved), &removed))
	assert.Equal(t, toast.ID, removed.ID)
	assert.Equal(t, notifier.ReasonDismissed, removed.Reason)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "memory", body["journal"])
}

func TestHubDeliversBroadcastDuringGreeting(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	hub := NewHub(nil, func() []Event {
		once.Do(func() { close(entered) })
		time.Sleep(50 * time.Millisecond)
		return []Event{{Type: EventSnapshot, Data: SnapshotView{}}}
	})
	ts := httptest.NewServer(hub)
	defer ts.Close()
	defer hub.Close()

	go func() {
		<-entered
		hub.ToastPushed(types.Toast{ID: "01HZX", Symbol: "BTCUSDT"})
	}()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent(t, conn, EventSnapshot)
	var toast types.Toast
	require.NoError(t, json.Unmarshal(readEvent(t, conn, EventToast), &toast))
	assert.Equal(t, "01HZX", toast.ID)
}
