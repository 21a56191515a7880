// Package config provides router configuration loaded from environment variables.
package config

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ikaru5/heimdall-controller/pkg/heimdall"
	"github.com/ikaru5/heimdall-controller/pkg/transport"
)

const logPrefix = "config:LoadConfig"

// Config holds heimdall configuration.
type Config struct {
	// Backend addressing. Empty values fall back to the router defaults.
	Path     string `envconfig:"HEIMDALL_PATH" default:"/api"`
	Host     string `envconfig:"HEIMDALL_HOST"`
	Port     int    `envconfig:"HEIMDALL_PORT"`
	Origin   string `envconfig:"HEIMDALL_ORIGIN"`
	Protocol string `envconfig:"HEIMDALL_PROTOCOL"`

	HandleCSRF     bool          `envconfig:"HEIMDALL_HANDLE_CSRF" default:"false"`
	RequestTimeout time.Duration `envconfig:"HEIMDALL_REQUEST_TIMEOUT" default:"25s"`
	BackendVersion string        `envconfig:"HEIMDALL_BACKEND_VERSION"`

	// COMMS: custom connection and routing events over NATS at COMMSURL.
	COMMSURL      string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName     string `envconfig:"SERVICE_NAME" default:"heimdall"`
	InboxSubject  string `envconfig:"HEIMDALL_INBOX_SUBJECT" default:"heimdall.inbox"`
	OutboxSubject string `envconfig:"HEIMDALL_OUTBOX_SUBJECT" default:"heimdall.outbox"`
	EventsSubject string `envconfig:"HEIMDALL_EVENTS_SUBJECT" default:"heimdall.routed"`

	// HTTPAddr serves /health and /metrics in listen mode (e.g. "0.0.0.0:9100"). Empty disables it.
	HTTPAddr string `envconfig:"HEIMDALL_HTTP_ADDR"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the values every command relies on.
func (c *Config) Validate() error {
	switch c.Protocol {
	case "", transport.ProtocolHTTP, transport.ProtocolPOST, transport.ProtocolGET, transport.ProtocolCustom:
	default:
		return fmt.Errorf("%s - HEIMDALL_PROTOCOL %q is not one of HTTP, POST, GET, CUSTOM", logPrefix, c.Protocol)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%s - HEIMDALL_PORT must be between 0 and 65535", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - HEIMDALL_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForListen checks required config when listening on COMMS.
func (c *Config) ValidateForListen() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for listen", logPrefix)
	}
	if c.InboxSubject == "" || c.OutboxSubject == "" {
		return fmt.Errorf("%s - HEIMDALL_INBOX_SUBJECT and HEIMDALL_OUTBOX_SUBJECT are required for listen", logPrefix)
	}
	return nil
}

// RouterConfig maps the environment onto a router configuration. Callbacks,
// connectors and publishers are left for the caller to wire.
func (c *Config) RouterConfig() heimdall.Config {
	return heimdall.Config{
		Path:           c.Path,
		Host:           c.Host,
		Port:           c.Port,
		Origin:         c.Origin,
		Protocol:       c.Protocol,
		HandleCSRF:     c.HandleCSRF,
		HTTPClient:     &http.Client{Timeout: c.RequestTimeout},
		BackendVersion: c.BackendVersion,
	}
}
