package heimdall

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ikaru5/heimdall-controller/pkg/controller"
	"github.com/ikaru5/heimdall-controller/pkg/envelope"
	"github.com/ikaru5/heimdall-controller/pkg/events"
	"github.com/ikaru5/heimdall-controller/pkg/metrics"
	"github.com/ikaru5/heimdall-controller/pkg/registry"
	"github.com/ikaru5/heimdall-controller/pkg/semver"
	"github.com/ikaru5/heimdall-controller/pkg/transport"
)

type request struct {
	method string
	csrf   string
	body   map[string]any
}

// backend is a fake server that answers every request through reply.
type backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []request
}

func newBackend(t *testing.T, reply func(req request) string) *backend {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := request{method: r.Method, csrf: r.Header.Get(transport.HeaderCSRF)}
		raw := r.URL.Query().Get(transport.ParamJSON)
		if r.Method == http.MethodPost {
			data, _ := io.ReadAll(r.Body)
			raw = string(data)
		}
		if err := json.Unmarshal([]byte(raw), &req.body); err != nil {
			t.Errorf("heimdall:router_test - backend got invalid body %q: %v", raw, err)
		}

		b.mu.Lock()
		b.requests = append(b.requests, req)
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, reply(req))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) received() []request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]request(nil), b.requests...)
}

func newRouter(t *testing.T, cfg Config) *Router {
	t.Helper()
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("heimdall:router_test - New failed: %v", err)
	}
	return r
}

func TestRouter_CSRFHandshake(t *testing.T) {
	b := newBackend(t, func(req request) string {
		if req.body["receiver"] == CSRFReceiver {
			return `{"receiver":"Heimdall.csrf","csrf":"tok-1","payload":{}}`
		}
		return ``
	})

	afterCSRF := 0
	r := newRouter(t, Config{Origin: b.srv.URL, HandleCSRF: true, AfterCSRF: func() { afterCSRF++ }})
	r.Init(context.Background())

	if got := r.CSRFToken(); got != "tok-1" {
		t.Fatalf("heimdall:router_test - CSRFToken = %q, want tok-1", got)
	}
	if afterCSRF != 1 {
		t.Errorf("heimdall:router_test - AfterCSRF calls = %d, want 1", afterCSRF)
	}

	if !r.Dispatch(context.Background(), map[string]any{"q": 1}, envelope.Options{Receiver: "Users.list"}) {
		t.Fatal("heimdall:router_test - Dispatch returned false")
	}

	reqs := b.received()
	if len(reqs) != 2 {
		t.Fatalf("heimdall:router_test - backend got %d requests, want 2", len(reqs))
	}
	if reqs[0].method != http.MethodGet {
		t.Errorf("heimdall:router_test - handshake method = %s, want GET", reqs[0].method)
	}
	if reqs[1].method != http.MethodPost || reqs[1].csrf != "tok-1" {
		t.Errorf("heimdall:router_test - request = %s with token %q", reqs[1].method, reqs[1].csrf)
	}
	if reqs[1].body["csrfToken"] != "tok-1" {
		t.Errorf("heimdall:router_test - body csrfToken = %v, want tok-1", reqs[1].body["csrfToken"])
	}
}

func TestRouter_InitWithoutCSRFSendsNothing(t *testing.T) {
	b := newBackend(t, func(request) string { return `` })
	r := newRouter(t, Config{Origin: b.srv.URL})
	r.Init(context.Background())

	if n := len(b.received()); n != 0 {
		t.Errorf("heimdall:router_test - backend got %d requests, want 0", n)
	}
}

func TestRouter_CSRFTokenFromPayload(t *testing.T) {
	r := newRouter(t, Config{HandleCSRF: true})
	r.Receive(context.Background(), map[string]any{
		"receiver": "Heimdall.csrf",
		"payload":  map[string]any{"csrfToken": "from-payload"},
	}, transport.ProtocolHTTP)

	if got := r.CSRFToken(); got != "from-payload" {
		t.Errorf("heimdall:router_test - CSRFToken = %q, want from-payload", got)
	}
}

func TestRouter_ResponseIsRoutedByPriority(t *testing.T) {
	b := newBackend(t, func(request) string {
		return `[
			{"receiver":"Users.list","payload":[1,2]},
			{"receiver":"Users.show","payload":{"id":7},"priority":3}
		]`
	})

	var order []string
	users := controller.New("UsersController", registry.Names("show", "list"), map[string]registry.HandlerFunc{
		"show": func(data *registry.ActionData) {
			order = append(order, "show")
			if data.Priority != 3 || data.Package.Protocol() != transport.ProtocolHTTP {
				t.Errorf("heimdall:router_test - show got priority %v over %s", data.Priority, data.Package.Protocol())
			}
		},
	})
	users.ListenToAction("list", func(*registry.ActionData) { order = append(order, "list") })

	r := newRouter(t, Config{Origin: b.srv.URL})
	users.Register(r.Registry())

	r.Dispatch(context.Background(), nil, envelope.Options{Receiver: "Users.index"})

	if !reflect.DeepEqual(order, []string{"show", "list"}) {
		t.Errorf("heimdall:router_test - order = %v, want [show list]", order)
	}
	if reqs := b.received(); len(reqs) != 1 || reqs[0].body["receiver"] != "Users.index" {
		t.Errorf("heimdall:router_test - backend requests = %+v", reqs)
	}
}

func TestRouter_DecorateReceiver(t *testing.T) {
	b := newBackend(t, func(request) string { return `` })
	r := newRouter(t, Config{
		Origin:           b.srv.URL,
		DecorateReceiver: func(s string) string { return "v2." + s },
	})

	r.Dispatch(context.Background(), nil, envelope.Options{Receiver: "Users.show", Decorate: true})
	r.Dispatch(context.Background(), nil, envelope.Options{Receiver: "Users.show"})

	reqs := b.received()
	if len(reqs) != 2 {
		t.Fatalf("heimdall:router_test - backend got %d requests, want 2", len(reqs))
	}
	if reqs[0].body["receiver"] != "v2.Users.show" || reqs[1].body["receiver"] != "Users.show" {
		t.Errorf("heimdall:router_test - receivers = %v, %v", reqs[0].body["receiver"], reqs[1].body["receiver"])
	}
}

func TestRouter_UnknownProtocolReachesFailureCallback(t *testing.T) {
	m := metrics.NewCollector(prometheus.NewRegistry())
	var got error
	r := newRouter(t, Config{Metrics: m, ConnectionFailure: func(err error) { got = err }})

	if !r.Dispatch(context.Background(), nil, envelope.Options{Receiver: "A.b", Protocol: "SMOKE"}) {
		t.Fatal("heimdall:router_test - Dispatch returned false")
	}
	if !errors.Is(got, transport.ErrUnknownProtocol) {
		t.Errorf("heimdall:router_test - failure = %v, want ErrUnknownProtocol", got)
	}
	if v := testutil.ToFloat64(m.FailureCounter()); v != 1 {
		t.Errorf("heimdall:router_test - failures = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.DispatchedCounter("SMOKE")); v != 1 {
		t.Errorf("heimdall:router_test - dispatched = %v, want 1", v)
	}
}

func TestRouter_SetConnectionFailureCallback(t *testing.T) {
	first, second := 0, 0
	r := newRouter(t, Config{ConnectionFailure: func(error) { first++ }})
	r.SetConnectionFailureCallback(func(error) { second++ })

	r.Dispatch(context.Background(), nil, envelope.Options{Protocol: "SMOKE"})
	if first != 0 || second != 1 {
		t.Errorf("heimdall:router_test - first = %d, second = %d", first, second)
	}
}

func TestRouter_ReceiveBytesInvalidJSON(t *testing.T) {
	var got error
	r := newRouter(t, Config{ConnectionFailure: func(err error) { got = err }})
	r.ReceiveBytes(context.Background(), []byte(`{nope`), transport.ProtocolCustom)
	if got == nil {
		t.Error("heimdall:router_test - expected failure for invalid JSON")
	}
}

func TestRouter_VersionCheck(t *testing.T) {
	tests := []struct {
		name     string
		accepted string
		version  string
		wantErr  bool
	}{
		{"compatible range", "^1.2.0", "1.4.0", false},
		{"major only", "2", "2.9.1", false},
		{"no range configured", "", "9.0.0", false},
		{"incompatible", "^1.0.0", "2.1.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got error
			r := newRouter(t, Config{BackendVersion: tt.accepted, ConnectionFailure: func(err error) { got = err }})
			r.Receive(context.Background(), map[string]any{
				"receiver": "Heimdall.version",
				"payload":  map[string]any{"version": tt.version},
			}, transport.ProtocolHTTP)

			if tt.wantErr && !errors.Is(got, semver.ErrIncompatible) {
				t.Errorf("heimdall:router_test - failure = %v, want ErrIncompatible", got)
			}
			if !tt.wantErr && got != nil {
				t.Errorf("heimdall:router_test - unexpected failure: %v", got)
			}
		})
	}
}

func TestRouter_SystemActionsAreRouted(t *testing.T) {
	var routed []*events.RoutedEvent
	pub := events.NewCallbackPublisher(func(_ context.Context, e *events.RoutedEvent) error {
		routed = append(routed, e)
		return nil
	})
	r := newRouter(t, Config{Publisher: pub})

	var seen bool
	r.System().ListenToAction("error", func(*registry.ActionData) { seen = true })
	r.Receive(context.Background(), map[string]any{"receiver": "Heimdall.error", "payload": "boom"}, transport.ProtocolHTTP)

	if seen {
		t.Error("heimdall:router_test - listener ran although error has a method")
	}
	if len(routed) != 1 || routed[0].Kind != events.KindDelivered || routed[0].Controller != SystemController {
		t.Errorf("heimdall:router_test - events = %+v", routed)
	}
	if got := r.Registry().Controllers(); !reflect.DeepEqual(got, []string{SystemController}) {
		t.Errorf("heimdall:router_test - controllers = %v", got)
	}
}

func TestRouter_RegisterAction(t *testing.T) {
	r := newRouter(t, Config{})
	var got any
	r.RegisterAction("ChatController", registry.Action{Name: "message", Callback: func(data *registry.ActionData) {
		got = data.Package.Payload()
	}})
	r.Receive(context.Background(), map[string]any{"receiver": "Chat.message", "payload": "hi"}, transport.ProtocolCustom)

	if got != "hi" {
		t.Errorf("heimdall:router_test - payload = %v, want hi", got)
	}
}

// fakeConnector hands out in-memory connections and keeps their callbacks.
type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeConn
	cbs   []transport.Callbacks
}

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *fakeConn) Send(_ context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, body)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (f *fakeConnector) Connect(_ context.Context, _ transport.Params, cb transport.Callbacks) (transport.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{}
	f.conns = append(f.conns, c)
	f.cbs = append(f.cbs, cb)
	if cb.OnConnected != nil {
		cb.OnConnected()
	}
	return c, nil
}

func TestRouter_CustomConnection(t *testing.T) {
	fc := &fakeConnector{}
	var failures []error
	r := newRouter(t, Config{
		UseCustomConnection: true,
		Connector:           fc,
		ConnectionFailure:   func(err error) { failures = append(failures, err) },
	})

	var got []string
	r.RegisterAction("ChatController", registry.Action{Name: "message", Callback: func(data *registry.ActionData) {
		got = append(got, data.Package.Protocol())
	}})

	params := transport.Params{"room": "lobby"}
	if _, err := r.Connect(context.Background(), params); err != nil {
		t.Fatalf("heimdall:router_test - Connect failed: %v", err)
	}
	if _, err := r.Connect(context.Background(), transport.Params{"room": "other"}); err != nil {
		t.Fatalf("heimdall:router_test - Connect failed: %v", err)
	}

	r.Dispatch(context.Background(), map[string]any{"text": "hi"}, envelope.Options{Receiver: "Chat.message"})
	for i, c := range fc.conns {
		if len(c.sent) != 1 {
			t.Errorf("heimdall:router_test - connection %d sent %d messages, want 1", i, len(c.sent))
		}
	}

	fc.cbs[0].OnReceive([]byte(`{"receiver":"Chat.message","payload":{"text":"yo"}}`))
	if !reflect.DeepEqual(got, []string{transport.ProtocolCustom}) {
		t.Errorf("heimdall:router_test - routed protocols = %v", got)
	}

	fc.cbs[1].OnDisconnected(errors.New("socket reset"))
	if len(failures) != 1 {
		t.Errorf("heimdall:router_test - failures = %v, want one", failures)
	}

	if n := r.Disconnect(params); n != 1 {
		t.Errorf("heimdall:router_test - Disconnect removed %d, want 1", n)
	}
	if !fc.conns[0].closed || fc.conns[1].closed {
		t.Error("heimdall:router_test - Disconnect closed the wrong connection")
	}
	r.DisconnectAll()
	if r.Connections() != 0 {
		t.Errorf("heimdall:router_test - Connections = %d, want 0", r.Connections())
	}

	failures = nil
	r.Dispatch(context.Background(), nil, envelope.Options{Receiver: "Chat.message"})
	if len(failures) != 1 || !errors.Is(failures[0], transport.ErrNoConnection) {
		t.Errorf("heimdall:router_test - failures = %v, want ErrNoConnection", failures)
	}
}

func TestRouter_ConnectDisabled(t *testing.T) {
	r := newRouter(t, Config{})
	if _, err := r.Connect(context.Background(), nil); !errors.Is(err, transport.ErrNoConnection) {
		t.Errorf("heimdall:router_test - Connect err = %v, want ErrNoConnection", err)
	}
	if n := r.Disconnect(nil); n != 0 {
		t.Errorf("heimdall:router_test - Disconnect = %d, want 0", n)
	}
	r.DisconnectAll()
}
