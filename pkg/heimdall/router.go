// Package heimdall is the client-side router: it builds outbound packages, hands them
// to a transport and routes inbound messages to registered controllers.
package heimdall

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ikaru5/heimdall-controller/pkg/commsutil"
	"github.com/ikaru5/heimdall-controller/pkg/controller"
	"github.com/ikaru5/heimdall-controller/pkg/dispatcher"
	"github.com/ikaru5/heimdall-controller/pkg/envelope"
	"github.com/ikaru5/heimdall-controller/pkg/registry"
	"github.com/ikaru5/heimdall-controller/pkg/transport"
)

const logPrefix = "heimdall:router"

// CSRFReceiver is the receiver of the CSRF handshake request sent by Init.
const CSRFReceiver = "Heimdall.CSRF"

// Router routes packages between the application's controllers and the backend.
//
// Controllers and actions must be registered before Init and before any inbound
// traffic. Dispatch and Receive are safe for concurrent use after that.
type Router struct {
	cfg        Config
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	selector   *transport.Selector
	pool       *transport.Pool
	system     *controller.Base

	mu        sync.RWMutex
	csrfToken string
	failure   func(error)
}

// New creates a Router and registers the built-in HeimdallController.
func New(cfg Config) (*Router, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	r := &Router{
		cfg:      cfg,
		registry: registry.NewRegistry(),
		failure:  cfg.ConnectionFailure,
	}
	r.dispatcher = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry:  r.registry,
		Publisher: cfg.Publisher,
		Metrics:   cfg.Metrics,
	})

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	r.selector = &transport.Selector{
		HTTP:      &transport.HTTP{Client: client, CSRF: r.csrf},
		OnFailure: r.reportFailure,
		OnReceive: r.Receive,
	}
	if cfg.UseCustomConnection {
		r.pool = transport.NewPool(cfg.Connector)
		r.selector.Pool = r.pool
	}

	r.system = newSystemController(r)
	r.system.Register(r.registry)

	slog.Debug(fmt.Sprintf("%s - router ready for %s (protocol %s)", logPrefix, transport.Target{Host: cfg.Host, Path: cfg.Path, Port: cfg.Port}.URL(), cfg.Protocol))
	return r, nil
}

// Init starts the CSRF handshake when CSRF handling is enabled.
func (r *Router) Init(ctx context.Context) {
	if !r.cfg.HandleCSRF {
		return
	}
	r.SetCSRFToken("")
	r.Dispatch(ctx, map[string]any{}, envelope.Options{Receiver: CSRFReceiver, Protocol: transport.ProtocolGET})
}

// Config returns the configuration with defaults applied.
func (r *Router) Config() Config { return r.cfg }

// Registry returns the router's registry.
func (r *Router) Registry() *registry.Registry { return r.registry }

// System returns the built-in HeimdallController.
func (r *Router) System() *controller.Base { return r.system }

// RegisterController binds a controller instance and its actions.
func (r *Router) RegisterController(instance registry.Handler, name string, actions ...registry.Action) {
	r.registry.RegisterController(instance, name, actions...)
}

// RegisterAction adds a single action, typically an inline callback, to a controller.
func (r *Router) RegisterAction(controllerName string, action registry.Action) {
	r.registry.RegisterAction(controllerName, action)
}

// SetConnectionFailureCallback replaces the transport failure handler.
func (r *Router) SetConnectionFailureCallback(cb func(err error)) {
	r.mu.Lock()
	r.failure = cb
	r.mu.Unlock()
}

// CSRFToken returns the stored CSRF token.
func (r *Router) CSRFToken() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.csrfToken
}

// SetCSRFToken stores the CSRF token attached to outbound requests.
func (r *Router) SetCSRFToken(token string) {
	r.mu.Lock()
	r.csrfToken = token
	r.mu.Unlock()
}

// BuildSend creates an outbound package bound to this router.
func (r *Router) BuildSend(payload any, opts envelope.Options) *envelope.Package {
	return envelope.BuildSend(payload, opts, r)
}

// Dispatch builds a package and sends it. Transport failures go to the failure
// callback; the result only reports whether the package was handed to a transport.
func (r *Router) Dispatch(ctx context.Context, payload any, opts envelope.Options) bool {
	return r.BuildSend(payload, opts).SendOut(ctx)
}

// Defaults implements envelope.Environment.
func (r *Router) Defaults() envelope.Defaults {
	return envelope.Defaults{
		Path:             r.cfg.Path,
		Host:             r.cfg.Host,
		Port:             r.cfg.Port,
		Protocol:         r.cfg.Protocol,
		CSRFToken:        r.CSRFToken(),
		HandleCSRF:       r.cfg.HandleCSRF,
		DecorateReceiver: r.cfg.DecorateReceiver,
	}
}

// Transmit implements envelope.Environment.
func (r *Router) Transmit(ctx context.Context, body []byte, target transport.Target) {
	r.cfg.Metrics.Dispatched(target.Protocol)
	r.selector.Send(ctx, body, target)
}

// Receive routes a decoded inbound message or batch.
func (r *Router) Receive(ctx context.Context, raw any, protocol string) {
	r.dispatcher.Dispatch(ctx, raw, protocol)
}

// ReceiveBytes decodes raw JSON and routes it. Undecodable input is reported as a failure.
func (r *Router) ReceiveBytes(ctx context.Context, data []byte, protocol string) {
	raw, err := commsutil.DecodeMessage(data)
	if err != nil {
		r.reportFailure(fmt.Errorf("%s - Got invalid JSON over %s: %w", logPrefix, protocol, err))
		return
	}
	r.Receive(ctx, raw, protocol)
}

// Connect opens a custom connection. Messages it delivers are routed with protocol CUSTOM.
func (r *Router) Connect(ctx context.Context, params transport.Params) (*transport.Handle, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("%s - custom connections are disabled: %w", logPrefix, transport.ErrNoConnection)
	}
	return r.pool.Connect(ctx, params, transport.Callbacks{
		OnConnected: func() {
			slog.Info(fmt.Sprintf("%s - custom connection established", logPrefix))
		},
		OnDisconnected: func(err error) {
			if err != nil {
				r.reportFailure(fmt.Errorf("%s - custom connection lost: %w", logPrefix, err))
			}
		},
		OnReceive: func(data []byte) {
			r.ReceiveBytes(context.Background(), data, transport.ProtocolCustom)
		},
	})
}

// Disconnect closes the custom connections opened with params equal to params.
func (r *Router) Disconnect(params transport.Params) int {
	if r.pool == nil {
		return 0
	}
	return r.pool.Disconnect(params)
}

// DisconnectAll closes every custom connection.
func (r *Router) DisconnectAll() {
	if r.pool != nil {
		r.pool.DisconnectAll()
	}
}

// Connections returns the number of active custom connections.
func (r *Router) Connections() int {
	if r.pool == nil {
		return 0
	}
	return r.pool.Len()
}

func (r *Router) csrf() (string, bool) {
	return r.CSRFToken(), r.cfg.HandleCSRF
}

func (r *Router) reportFailure(err error) {
	r.cfg.Metrics.Failure()

	r.mu.RLock()
	cb := r.failure
	r.mu.RUnlock()

	if cb != nil {
		cb(err)
		return
	}
	slog.Error(fmt.Sprintf("%s - Network Error: %v", logPrefix, err))
}
