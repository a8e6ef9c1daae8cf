package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/home-gateway/internal/coap"
	"github.com/nerrad567/home-gateway/internal/discovery"
	"github.com/nerrad567/home-gateway/internal/infrastructure/config"
	"github.com/nerrad567/home-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/home-gateway/internal/web"
)

var (
	t0       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	addrLL   = netip.MustParseAddrPort("192.0.2.5:5683")
	addrK    = netip.MustParseAddrPort("192.0.2.6:5683")
	addrMisc = netip.MustParseAddrPort("192.0.2.7:5683")
)

// setCall is one recorded CoAP PUT.
type setCall struct {
	Addr    netip.AddrPort
	ID      string
	Payload []byte
}

// fakeDevices is a scripted DeviceClient.
type fakeDevices struct {
	mu       sync.Mutex
	payloads map[string][]byte
	getErr   error
	setErr   error
	gets     []string
	sets     []setCall
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{payloads: make(map[string][]byte)}
}

func (f *fakeDevices) Get(_ context.Context, _ netip.AddrPort, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.payloads[id]
	if !ok {
		return nil, fmt.Errorf("%w: no response", coap.ErrTransport)
	}
	return p, nil
}

func (f *fakeDevices) Set(_ context.Context, addr netip.AddrPort, id string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets = append(f.sets, setCall{Addr: addr, ID: id, Payload: payload})
	return nil
}

func (f *fakeDevices) lastSet(t *testing.T) setCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sets) == 0 {
		t.Fatal("no CoAP SET was issued")
	}
	return f.sets[len(f.sets)-1]
}

// fakeRecorder captures readings.
type fakeRecorder struct {
	mu       sync.Mutex
	readings []string
}

func (r *fakeRecorder) WriteReading(deviceID, deviceType, source string, _ map[string]any) {
	r.mu.Lock()
	r.readings = append(r.readings, deviceID+"/"+deviceType+"/"+source)
	r.mu.Unlock()
}

type testEnv struct {
	srv      *Server
	dir      *discovery.Directory
	devices  *fakeDevices
	recorder *fakeRecorder
	http     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	env := &testEnv{
		dir:      discovery.NewDirectory(),
		devices:  newFakeDevices(),
		recorder: &fakeRecorder{},
	}

	hub := NewHub(config.WebSocketConfig{}, log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	env.dir.Subscribe(hub)

	env.srv, err = New(Deps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:        config.WebSocketConfig{Path: "/api/v1/ws"},
		Logger:    log,
		Directory: env.dir,
		Devices:   env.devices,
		Renderer:  renderer,
		Recorder:  env.recorder,
		Hub:       hub,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	env.http = httptest.NewServer(env.srv.buildRouter())
	t.Cleanup(func() {
		env.http.Close()
		cancel()
	})
	return env
}

func (e *testEnv) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (int, string) {
	t.Helper()
	resp, err := http.PostForm(e.http.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func mustCBOR(t *testing.T, v any) []byte {
	t.Helper()
	b, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("cbor.Marshal: %v", err)
	}
	return b
}

func decodeCBOR(t *testing.T, b []byte) map[string]int {
	t.Helper()
	var m map[string]int
	if err := cbor.Unmarshal(b, &m); err != nil {
		t.Fatalf("cbor.Unmarshal: %v", err)
	}
	return m
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) error = nil")
	}
}

func TestColdStartServicesEmpty(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.get(t, "/services")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.Contains(body, "No devices discovered yet.") {
		t.Errorf("body does not show an empty list:\n%s", body)
	}
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.get(t, "/")
	if status != http.StatusOK || !strings.Contains(body, `href="/services"`) {
		t.Errorf("GET / = %d\n%s", status, body)
	}
}

func TestServicesOrdering(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("sw", "", addrMisc, t0)  // untyped: last
	env.dir.Upsert("lr", "shcnt", addrK, t0) // Living room shades
	env.dir.Upsert("k", "shcnt", addrK, t0)  // Kitchen shades
	env.dir.Upsert("ll", "rgbw", addrLL, t0) // Living room lights

	status, body := env.get(t, "/services")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	order := []string{`/service/ll"`, `/service/k"`, `/service/lr"`, `/service/sw"`}
	last := -1
	for _, s := range order {
		i := strings.Index(body, s)
		if i < 0 {
			t.Fatalf("%s not listed", s)
		}
		if i < last {
			t.Errorf("%s listed out of order", s)
		}
		last = i
	}
}

func TestGetRGBW(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("ll", "rgbw", addrLL, t0)
	env.devices.payloads["ll"] = mustCBOR(t, map[string]int{"r": 10, "g": 20, "b": 30, "w": 40, "x": 99})

	status, body := env.get(t, "/service/ll")
	if status != http.StatusOK {
		t.Fatalf("status = %d\n%s", status, body)
	}
	if !strings.Contains(body, "0a141e") {
		t.Errorf("body missing rgb 0a141e:\n%s", body)
	}
	if !strings.Contains(body, `value="40"`) {
		t.Errorf("body missing w=40:\n%s", body)
	}
	if !strings.Contains(body, "Living room lights") {
		t.Error("body missing label")
	}
}

func TestPostRGBW(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("ll", "rgbw", addrLL, t0)

	status, body := env.post(t, "/service/ll", url.Values{"rgb": {"#ff0000"}, "w": {"0"}})
	if status != http.StatusOK {
		t.Fatalf("status = %d\n%s", status, body)
	}

	call := env.devices.lastSet(t)
	if call.Addr != addrLL || call.ID != "ll" {
		t.Errorf("SET to %v/%s, want %v/ll", call.Addr, call.ID, addrLL)
	}
	got := decodeCBOR(t, call.Payload)
	want := map[string]int{"r": 255, "g": 0, "b": 0, "w": 0, "d": 3000}
	if len(got) != len(want) {
		t.Fatalf("payload = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%q] = %d, want %d", k, got[k], v)
		}
	}

	if !strings.Contains(body, "ff0000") || !strings.Contains(body, `value="0"`) {
		t.Errorf("response does not echo submitted values:\n%s", body)
	}
}

func TestPostShade(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("k", "shcnt", addrK, t0)

	status, body := env.post(t, "/service/k", url.Values{"pos": {"50"}})
	if status != http.StatusOK {
		t.Fatalf("status = %d\n%s", status, body)
	}

	call := env.devices.lastSet(t)
	got := decodeCBOR(t, call.Payload)
	if len(got) != 1 || got["val"] != 50 {
		t.Errorf("payload = %v, want {val:50}", got)
	}
	if !strings.Contains(body, `value="50"`) {
		t.Errorf("response does not echo pos:\n%s", body)
	}
}

func TestGetShadeReadsR(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("k", "shcnt", addrK, t0)
	env.devices.payloads["k"] = mustCBOR(t, map[string]int{"r": 77})

	status, body := env.get(t, "/service/k")
	if status != http.StatusOK || !strings.Contains(body, `value="77"`) {
		t.Errorf("GET /service/k = %d\n%s", status, body)
	}
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*testEnv)
		method     string
		form       url.Values
		wantStatus int
		wantText   string
	}{
		{
			name:       "not discovered",
			setup:      func(*testEnv) {},
			wantStatus: http.StatusNotFound,
			wantText:   "Could not discover device unknown",
		},
		{
			name:       "untyped",
			setup:      func(e *testEnv) { e.dir.Upsert("unknown", "", addrMisc, t0) },
			wantStatus: http.StatusNotImplemented,
			wantText:   "without a type",
		},
		{
			name:       "unsupported type",
			setup:      func(e *testEnv) { e.dir.Upsert("unknown", "thermo", addrMisc, t0) },
			wantStatus: http.StatusNotImplemented,
			wantText:   "unsupported type",
		},
		{
			name:       "transport failure",
			setup:      func(e *testEnv) { e.dir.Upsert("unknown", "rgbw", addrMisc, t0) },
			wantStatus: http.StatusBadGateway,
			wantText:   "transport failure",
		},
		{
			name: "unexpected content type",
			setup: func(e *testEnv) {
				e.dir.Upsert("unknown", "rgbw", addrMisc, t0)
				e.devices.getErr = fmt.Errorf("GET: %w", coap.ErrUnexpectedContentType)
			},
			wantStatus: http.StatusBadGateway,
			wantText:   "unexpected content type",
		},
		{
			name: "missing channel",
			setup: func(e *testEnv) {
				e.dir.Upsert("unknown", "rgbw", addrMisc, t0)
				e.devices.payloads["unknown"] = []byte{0xa1, 0x61, 0x72, 0x01} // {"r": 1}
			},
			wantStatus: http.StatusBadGateway,
			wantText:   "Error talking to device unknown",
		},
		{
			name:       "invalid rgb form",
			setup:      func(e *testEnv) { e.dir.Upsert("unknown", "rgbw", addrMisc, t0) },
			method:     http.MethodPost,
			form:       url.Values{"rgb": {"zzzzzz"}, "w": {"1"}},
			wantStatus: http.StatusBadRequest,
			wantText:   "Invalid setpoint",
		},
		{
			name:       "pos out of range",
			setup:      func(e *testEnv) { e.dir.Upsert("unknown", "shcnt", addrMisc, t0) },
			method:     http.MethodPost,
			form:       url.Values{"pos": {"256"}},
			wantStatus: http.StatusBadRequest,
			wantText:   "Invalid setpoint",
		},
		{
			name: "set transport failure",
			setup: func(e *testEnv) {
				e.dir.Upsert("unknown", "shcnt", addrMisc, t0)
				e.devices.setErr = fmt.Errorf("%w: timeout", coap.ErrTransport)
			},
			method:     http.MethodPost,
			form:       url.Values{"pos": {"5"}},
			wantStatus: http.StatusBadGateway,
			wantText:   "Error talking to device unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env)
			before := env.dir.Snapshot()

			var (
				status int
				body   string
			)
			if tt.method == http.MethodPost {
				status, body = env.post(t, "/service/unknown", tt.form)
			} else {
				status, body = env.get(t, "/service/unknown")
			}

			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if !strings.Contains(body, tt.wantText) {
				t.Errorf("body does not contain %q:\n%s", tt.wantText, body)
			}
			if after := env.dir.Snapshot(); len(after) != len(before) {
				t.Error("handler modified the directory")
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(errors.New("other")); got != http.StatusInternalServerError {
		t.Errorf("statusFor(other) = %d, want 500", got)
	}
	if got := statusFor(coap.ErrMissingContentType); got != http.StatusBadGateway {
		t.Errorf("statusFor(missing content type) = %d, want 502", got)
	}
}

func TestReadingsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("k", "shcnt", addrK, t0)
	env.devices.payloads["k"] = mustCBOR(t, map[string]int{"r": 1})

	env.get(t, "/service/k")
	env.post(t, "/service/k", url.Values{"pos": {"2"}})

	env.recorder.mu.Lock()
	defer env.recorder.mu.Unlock()
	want := []string{"k/shcnt/get", "k/shcnt/set"}
	if strings.Join(env.recorder.readings, ",") != strings.Join(want, ",") {
		t.Errorf("readings = %v, want %v", env.recorder.readings, want)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("ll", "rgbw", addrLL, t0)

	status, body := env.get(t, "/api/v1/health")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["status"] != "ok" || got["version"] != "test" || got["devices"] != float64(1) {
		t.Errorf("health = %v", got)
	}
}

func TestListDevicesJSON(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("sw", "", addrMisc, t0)
	env.dir.Upsert("ll", "rgbw", addrLL, t0)

	status, body := env.get(t, "/api/v1/devices")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var got struct {
		Devices []DeviceView `json:"devices"`
		Count   int          `json:"count"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Count != 2 || got.Devices[0].ID != "ll" || got.Devices[1].ID != "sw" {
		t.Errorf("devices = %+v", got)
	}
	if got.Devices[0].Address != "192.0.2.5:5683" || got.Devices[0].Label != "Living room lights" {
		t.Errorf("devices[0] = %+v", got.Devices[0])
	}
}

func TestGetDeviceJSON(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("ll", "rgbw", addrLL, t0)

	if status, _ := env.get(t, "/api/v1/devices/ll"); status != http.StatusOK {
		t.Errorf("GET /api/v1/devices/ll = %d", status)
	}
	if status, _ := env.get(t, "/api/v1/devices/nope"); status != http.StatusNotFound {
		t.Errorf("GET /api/v1/devices/nope = %d, want 404", status)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Upsert("ll", "rgbw", addrLL, t0)
	env.dir.Upsert("sw", "", addrMisc, t0)

	_, body := env.get(t, "/api/v1/metrics")
	var got SystemMetrics
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Devices.Total != 2 || got.Devices.ByType["rgbw"] != 1 || got.Devices.ByType[untypedKey] != 1 {
		t.Errorf("devices = %+v", got.Devices)
	}
	if got.MQTT != nil {
		t.Error("mqtt metrics present without a broker")
	}

	env.srv.mqtt = fakeBroker{connected: true, subscriptions: 1}
	_, body = env.get(t, "/api/v1/metrics")
	got = SystemMetrics{}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.MQTT == nil || !got.MQTT.Connected || got.MQTT.Subscriptions != 1 {
		t.Errorf("mqtt = %+v, want connected with 1 subscription", got.MQTT)
	}
}

type fakeBroker struct {
	connected     bool
	subscriptions int
}

func (b fakeBroker) IsConnected() bool      { return b.connected }
func (b fakeBroker) SubscriptionCount() int { return b.subscriptions }

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.http.URL+"/", nil)
	req.Header.Set("X-Request-ID", "abc")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") != "abc" {
		t.Errorf("X-Request-ID = %q, want echo", resp.Header.Get("X-Request-ID"))
	}

	resp, err = http.Get(env.http.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(resp.Header.Get("X-Request-ID")) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", resp.Header.Get("X-Request-ID"))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	s := &Server{logger: logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)}
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStaticStylesheet(t *testing.T) {
	env := newTestEnv(t)

	if status, _ := env.get(t, "/static/style.css"); status != http.StatusOK {
		t.Errorf("GET /static/style.css = %d", status)
	}
}

func TestWebSocketDirectoryEvents(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws?channels=" + ChannelDeviceDiscovered + "," + ChannelDeviceExpired
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// Registration happens in the handler; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.dir.Upsert("ll", "rgbw", addrLL, t0)
	env.dir.Expire(time.Hour, t0.Add(time.Hour))

	for _, want := range []string{ChannelDeviceDiscovered, ChannelDeviceExpired} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg struct {
			Type      string     `json:"type"`
			EventType string     `json:"event_type"`
			Payload   DeviceView `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != want || msg.Payload.ID != "ll" {
			t.Errorf("message = %+v, want %s for ll", msg, want)
		}
	}
}

func TestWebSocketRequests(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	tests := []struct {
		name     string
		request  string
		wantType string
		wantBody string
	}{
		{"ping", `{"type":"ping","id":"1"}`, WSTypePong, ""},
		{"subscribe", `{"type":"subscribe","id":"2","payload":{"channels":["device.expired"]}}`, WSTypeResponse, `"subscribed":["device.expired"]`},
		{"unsubscribe", `{"type":"unsubscribe","id":"3","payload":{"channels":["device.expired"]}}`, WSTypeResponse, `"unsubscribed":["device.expired"]`},
		{"missing payload", `{"type":"subscribe","id":"4"}`, WSTypeError, "invalid subscribe payload"},
		{"unknown type", `{"type":"bogus","id":"5"}`, WSTypeError, "unknown message type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.request)); err != nil {
				t.Fatalf("WriteMessage() error = %v", err)
			}
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("ReadJSON() error = %v", err)
			}
			if msg.Type != tt.wantType {
				t.Errorf("type = %q, want %q", msg.Type, tt.wantType)
			}
			if !strings.Contains(string(msg.Payload), tt.wantBody) {
				t.Errorf("payload = %s, want it to contain %s", msg.Payload, tt.wantBody)
			}
		})
	}
}

func TestServerStartClose(t *testing.T) {
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(Deps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		Logger:    log,
		Directory: discovery.NewDirectory(),
		Devices:   newFakeDevices(),
		Renderer:  renderer,
		Version:   "test",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if srv.Hub() == nil {
		t.Error("Start() did not create a hub")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
