package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/everforgeworks/moai-clicker/internal/game"
	"github.com/everforgeworks/moai-clicker/internal/platform/logger"
	"github.com/everforgeworks/moai-clicker/internal/platform/metrics"
	"github.com/everforgeworks/moai-clicker/internal/session"
)

type fixture struct {
	server  *Server
	session *session.Session
	hub     *Hub
	metrics *metrics.Collector
	limiter *Limiter
	cancel  context.CancelFunc
}

const testMaxClick = 100

func newFixture(t *testing.T, perSecond float64, burst int) *fixture {
	t.Helper()
	cat := game.MustCatalog([]game.GeneratorKind{
		{ID: "A", Name: "Alpha", BaseCost: 10, Rate: 0.1},
		{ID: "B", Name: "Beta", BaseCost: 100, Rate: 2},
	})
	m := metrics.New()
	log := logger.Discard()
	sess := session.New(cat, session.RealClock{}, log, m)
	hub := NewHub(log, m)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	limiter := NewLimiter(perSecond, burst)
	srv := NewServer(sess, hub, limiter, m, log, Options{AllowedOrigin: "*", MaxClickAmount: testMaxClick})
	return &fixture{server: srv, session: sess, hub: hub, metrics: m, limiter: limiter, cancel: cancel}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClickAndBuyOverREST(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	h := f.server.Routes()

	for i := 0; i < 10; i++ {
		if rec := do(t, h, http.MethodPost, "/api/click", ""); rec.Code != http.StatusOK {
			t.Fatalf("click %d: status %d body %s", i, rec.Code, rec.Body)
		}
	}

	rec := do(t, h, http.MethodPost, "/api/generators/buy", `{"kind_id":"A"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("buy: status %d body %s", rec.Code, rec.Body)
	}
	var resp ActionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Event.Type != game.EventPurchased || resp.Event.KindID != "A" {
		t.Fatalf("unexpected event %+v", resp.Event)
	}
	a, _ := resp.State.Generator("A")
	if a.Owned != 1 || resp.State.ProductionRate != 0.1 || resp.State.Clicks != 10 {
		t.Fatalf("unexpected state %+v", resp.State)
	}
}

func TestErrorStatusCodes(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	h := f.server.Routes()

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/generators/buy", `{"kind_id":"B"}`, http.StatusPaymentRequired},
		{http.MethodPost, "/api/generators/buy", `{"kind_id":"Z"}`, http.StatusNotFound},
		{http.MethodPost, "/api/generators/buy", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/api/click", `{"amount":0}`, http.StatusBadRequest},
		{http.MethodPost, "/api/click", `{"amount":-3}`, http.StatusBadRequest},
		{http.MethodGet, "/api/click", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		rec := do(t, h, tc.method, tc.path, tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s %s %s: expected %d got %d", tc.method, tc.path, tc.body, tc.want, rec.Code)
		}
	}
	if snap := f.session.Snapshot(); snap.Balance != 0 || snap.Clicks != 0 {
		t.Fatalf("rejected requests changed state: %+v", snap)
	}
}

func TestClickAmount(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	rec := do(t, f.server.Routes(), http.MethodPost, "/api/click", `{"amount":2.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := f.session.Snapshot().Balance; got != 2.5 {
		t.Fatalf("expected balance 2.5 got %v", got)
	}
}

func TestClickAmountOverLimitRejected(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	h := f.server.Routes()

	for _, body := range []string{`{"amount":1.7e308}`, `{"amount":100.5}`} {
		if rec := do(t, h, http.MethodPost, "/api/click", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodPost, "/api/click", `{"amount":100}`); rec.Code != http.StatusOK {
		t.Fatalf("click at the limit: status %d", rec.Code)
	}
	snap := f.session.Snapshot()
	if math.IsInf(snap.Balance, 0) || snap.Balance != 100 || snap.Clicks != 1 {
		t.Fatalf("unexpected state %+v", snap)
	}
	if got := f.metrics.RejectedInput.Load(); got != 2 {
		t.Fatalf("expected 2 rejected inputs got %d", got)
	}
}

func TestDefaultClickLimitIsOneAction(t *testing.T) {
	cat := game.MustCatalog([]game.GeneratorKind{{ID: "A", Name: "Alpha", BaseCost: 10, Rate: 0.1}})
	m := metrics.New()
	log := logger.Discard()
	sess := session.New(cat, session.RealClock{}, log, m)
	srv := NewServer(sess, NewHub(log, m), NewLimiter(1000, 1000), m, log, Options{AllowedOrigin: "*"})
	h := srv.Routes()

	if rec := do(t, h, http.MethodPost, "/api/click", `{"amount":2}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/click", ""); rec.Code != http.StatusOK {
		t.Fatalf("default click: status %d", rec.Code)
	}
}

func TestClickRateLimited(t *testing.T) {
	f := newFixture(t, 0.001, 2)
	h := f.server.Routes()

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, h, http.MethodPost, "/api/click", "").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
	if f.metrics.RateLimited.Load() != 1 {
		t.Fatalf("expected 1 rate limited got %d", f.metrics.RateLimited.Load())
	}
}

func TestGetStateAndGenerators(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	h := f.server.Routes()

	rec := do(t, h, http.MethodGet, "/api/generators", "")
	var kinds []game.GeneratorKind
	if err := json.NewDecoder(rec.Body).Decode(&kinds); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(kinds) != 2 || kinds[0].ID != "A" || kinds[1].BaseCost != 100 {
		t.Fatalf("unexpected catalog %+v", kinds)
	}

	rec = do(t, h, http.MethodGet, "/api/state", "")
	var snap game.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, ok := snap.Generator("B")
	if !ok || b.Price != 100 || b.Owned != 0 || b.Affordable {
		t.Fatalf("unexpected state %+v", snap)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestOptionsPreflight(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	rec := do(t, f.server.Routes(), http.MethodOptions, "/api/click", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if f.session.Snapshot().Clicks != 0 {
		t.Fatalf("preflight triggered a click")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	h := f.server.Routes()
	do(t, h, http.MethodPost, "/api/click", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	econ := body["economy"].(map[string]interface{})
	if econ["manual_actions"].(float64) != 1 {
		t.Fatalf("unexpected metrics %v", econ)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Sender  string          `json:"sender"`
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg received
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func TestWebSocketClickBroadcasts(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	ts := httptest.NewServer(f.server.Routes())
	defer ts.Close()

	actor := dial(t, ts)
	watcher := dial(t, ts)

	// Registration is asynchronous; wait until both are in the hub.
	deadline := time.Now().Add(3 * time.Second)
	for f.metrics.WSConnections.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("clients never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := actor.WriteJSON(map[string]interface{}{"type": "click", "payload": map[string]float64{"amount": 10}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readUntil(t, watcher, TypeStatePulse)
	var snap game.Snapshot
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		t.Fatalf("decode pulse: %v", err)
	}
	if snap.Balance != 10 || snap.Clicks != 1 {
		t.Fatalf("unexpected pulse %+v", snap)
	}
	if msg.ID == "" || msg.Sender == "" {
		t.Fatalf("envelope missing id or sender: %+v", msg)
	}
}

func TestWebSocketPurchaseRejected(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	ts := httptest.NewServer(f.server.Routes())
	defer ts.Close()
	conn := dial(t, ts)

	if err := conn.WriteJSON(map[string]interface{}{"type": "buy", "payload": map[string]string{"kind_id": "B"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, TypePurchaseRejected)
	var p errorPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Reason != "insufficient_funds" || p.KindID != "B" {
		t.Fatalf("unexpected rejection %+v", p)
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readUntil(t, conn, TypeError)
	if !strings.Contains(string(msg.Payload), "unknown message type") {
		t.Fatalf("unexpected error payload %s", msg.Payload)
	}
}

func TestHubPublishStateWithoutClients(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	for i := 0; i < clientSendBuffer*2; i++ {
		f.hub.PublishState(f.session.Snapshot())
	}
}

func TestWebSocketClickOverLimitRejected(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	ts := httptest.NewServer(f.server.Routes())
	defer ts.Close()
	conn := dial(t, ts)

	if err := conn.WriteJSON(map[string]interface{}{"type": "click", "payload": map[string]float64{"amount": 1.7e308}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, TypeError)
	var p errorPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Reason != "invalid_input" {
		t.Fatalf("unexpected rejection %+v", p)
	}
	if snap := f.session.Snapshot(); snap.Balance != 0 || snap.Clicks != 0 {
		t.Fatalf("rejected click changed state: %+v", snap)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubShutdownReleasesClients(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	ts := httptest.NewServer(f.server.Routes())
	defer ts.Close()

	conns := []*websocket.Conn{dial(t, ts), dial(t, ts)}
	waitFor(t, "clients to register", func() bool { return f.metrics.WSConnections.Load() == 2 })

	f.cancel()

	waitFor(t, "client pumps to exit", func() bool { return f.hub.pumps.Load() == 0 })
	if got := f.metrics.WSConnections.Load(); got != 0 {
		t.Fatalf("expected 0 connections after shutdown got %d", got)
	}
	for _, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}

	// A client arriving after shutdown is turned away instead of blocking.
	late := dial(t, ts)
	late.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatal("expected late connection to be closed")
	}
	if got := f.hub.pumps.Load(); got != 0 {
		t.Fatalf("late client started %d pumps", got)
	}
}

func TestHubShutdownForgetsRateLimits(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	ts := httptest.NewServer(f.server.Routes())
	defer ts.Close()

	conn := dial(t, ts)
	if err := conn.WriteJSON(map[string]interface{}{"type": "click"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, TypeStatePulse)
	if f.limiter.Len() != 1 {
		t.Fatalf("expected 1 bucket got %d", f.limiter.Len())
	}

	f.cancel()
	waitFor(t, "bucket to be forgotten", func() bool { return f.limiter.Len() == 0 })
}

func TestHubDropsStalledClient(t *testing.T) {
	m := metrics.New()
	hub := NewHub(logger.Discard(), m)
	var left []string
	hub.onLeave = func(id string) { left = append(left, id) }

	// Driven directly, without Run, so no writer drains the buffer.
	client := &Client{ID: "stalled", hub: hub, send: make(chan []byte, 1)}
	hub.clients[client] = true
	m.WSConnections.Add(1)

	hub.deliver(client, []byte("one"))
	hub.deliver(client, []byte("two"))

	if _, ok := hub.clients[client]; ok {
		t.Fatal("stalled client still registered")
	}
	if len(left) != 1 || left[0] != "stalled" {
		t.Fatalf("expected onLeave for stalled client got %v", left)
	}
	if m.WSDroppedSends.Load() != 1 || m.WSConnections.Load() != 0 {
		t.Fatalf("unexpected metrics dropped=%d conns=%d", m.WSDroppedSends.Load(), m.WSConnections.Load())
	}
}
