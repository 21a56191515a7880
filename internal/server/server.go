// Package server orchestrates the router runtime: logging, NATS client, routing
// events, the custom connection and the HTTP health/metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ikaru5/heimdall-controller/internal/config"
	"github.com/ikaru5/heimdall-controller/pkg/commsutil"
	"github.com/ikaru5/heimdall-controller/pkg/envelope"
	"github.com/ikaru5/heimdall-controller/pkg/events"
	"github.com/ikaru5/heimdall-controller/pkg/heimdall"
	"github.com/ikaru5/heimdall-controller/pkg/metrics"
	"github.com/ikaru5/heimdall-controller/pkg/transport"
	"github.com/ikaru5/heimdall-controller/pkg/transport/natsconn"
)

const logPrefix = "server:server"

// SetupFunc registers the application's controllers on a fresh router.
type SetupFunc func(r *heimdall.Router)

// Server holds the wired runtime of one router.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	router     *heimdall.Router
	promReg    *prometheus.Registry
	httpServer *http.Server
}

// Params are the optional collaborators of New.
type Params struct {
	// NC enables the NATS custom connection and event publishing. Nil keeps the router on HTTP.
	NC *comms.Conn
	// Publisher overrides the routing event publisher.
	Publisher events.EventPublisher
	// ConnectionFailure overrides the failure callback.
	ConnectionFailure func(err error)
}

// SetupLogging installs the default slog text handler for level (debug, info, warn, error).
func SetupLogging(level string, w io.Writer) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// New wires a router from cfg.
func New(cfg *config.Config, p Params) (*Server, error) {
	s := &Server{cfg: cfg, nc: p.NC, promReg: prometheus.NewRegistry()}

	rc := cfg.RouterConfig()
	rc.Metrics = metrics.NewCollector(s.promReg)
	rc.ConnectionFailure = p.ConnectionFailure
	rc.Publisher = p.Publisher
	if rc.Publisher == nil && p.NC != nil {
		rc.Publisher = events.NewCommsPublisher(p.NC, &events.CommsPublisherOpts{GlobalSubject: cfg.EventsSubject})
	}
	if p.NC != nil {
		rc.UseCustomConnection = true
		rc.Connector = &natsconn.Connector{
			URL:    cfg.COMMSURL,
			Name:   cfg.COMMSName,
			Inbox:  cfg.InboxSubject,
			Outbox: cfg.OutboxSubject,
		}
	}

	router, err := heimdall.New(rc)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create router: %w", logPrefix, err)
	}
	s.router = router
	return s, nil
}

// Router returns the wired router.
func (s *Server) Router() *heimdall.Router { return s.router }

// Handler serves /health, /ready and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	return mux
}

// HealthOutput is the body of /health.
type HealthOutput struct {
	Status      string `json:"status"`
	COMMS       bool   `json:"comms"`
	Connections int    `json:"connections"`
	Timestamp   string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := HealthOutput{
		Status:      "healthy",
		COMMS:       s.nc != nil && s.nc.IsConnected(),
		Connections: s.router.Connections(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if s.nc != nil && (!h.COMMS || h.Connections == 0) {
		h.Status = "unhealthy"
	}

	w.Header().Set("Content-Type", "application/json")
	if h.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

// Listen opens the custom connection, runs the CSRF handshake and serves the
// health endpoint when configured. It returns once the connection is up.
func (s *Server) Listen(ctx context.Context) error {
	if _, err := s.router.Connect(ctx, transport.Params{
		natsconn.ParamInbox:  s.cfg.InboxSubject,
		natsconn.ParamOutbox: s.cfg.OutboxSubject,
	}); err != nil {
		return fmt.Errorf("%s - failed to open custom connection: %w", logPrefix, err)
	}
	s.router.Init(ctx)

	if s.cfg.HTTPAddr != "" {
		s.httpServer = &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.Handler()}
		go func() {
			slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, s.cfg.HTTPAddr))
			if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
				slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
			}
		}()
	}
	return nil
}

// Shutdown closes the custom connections and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) {
	s.router.DisconnectAll()
	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}
}

// Run starts listen mode, blocks until a shutdown signal, then cleans up.
func Run(setup SetupFunc) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel, os.Stdout)
	if err := cfg.ValidateForListen(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting heimdall listener", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	defer nc.Drain()

	s, err := New(cfg, Params{NC: nc})
	if err != nil {
		return err
	}
	if setup != nil {
		setup(s.router)
	}
	if err := s.Listen(ctx); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Listening on %s, sending to %s", logPrefix, cfg.InboxSubject, cfg.OutboxSubject))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	s.Shutdown(ctx)
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// Send dispatches one package to receiver and writes every routed answer to out
// as a JSON line. The first transport failure is returned.
func Send(receiver, payloadJSON string, out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel, os.Stderr)
	if err := cfg.Validate(); err != nil {
		return err
	}
	return send(context.Background(), cfg, receiver, payloadJSON, out)
}

func send(ctx context.Context, cfg *config.Config, receiver, payloadJSON string, out io.Writer) error {
	var payload any
	if payloadJSON != "" {
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return fmt.Errorf("%s - payload is not valid JSON: %w", logPrefix, err)
		}
	}

	var (
		mu      sync.Mutex
		failure error
	)
	enc := json.NewEncoder(out)
	s, err := New(cfg, Params{
		Publisher: events.NewCallbackPublisher(func(_ context.Context, e *events.RoutedEvent) error {
			mu.Lock()
			defer mu.Unlock()
			return enc.Encode(e)
		}),
		ConnectionFailure: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			failure = errors.Join(failure, err)
		},
	})
	if err != nil {
		return err
	}

	s.router.Init(ctx)
	s.router.Dispatch(ctx, payload, envelope.Options{Receiver: receiver})

	mu.Lock()
	defer mu.Unlock()
	return failure
}
