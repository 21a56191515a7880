package heimdall

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ikaru5/heimdall-controller/pkg/events"
	"github.com/ikaru5/heimdall-controller/pkg/metrics"
	"github.com/ikaru5/heimdall-controller/pkg/transport"
)

// Defaults applied by New.
const (
	DefaultPath = "/api"
	DefaultHost = "http://localhost"
	DefaultPort = 80
)

// Config configures a Router. Every field is optional.
type Config struct {
	Path string
	Host string
	Port int
	// Origin is the URL the client runs at. Host and Port are inferred from it when unset.
	Origin   string
	Protocol string

	HandleCSRF bool
	// AfterCSRF runs each time the backend hands out a CSRF token.
	AfterCSRF func()
	// DecorateReceiver rewrites receivers of packages dispatched with Options.Decorate.
	DecorateReceiver func(receiver string) string

	// UseCustomConnection enables the CUSTOM protocol and makes it the default one.
	UseCustomConnection bool
	Connector           transport.Connector

	// ConnectionFailure receives transport failures. Defaults to an error log.
	ConnectionFailure func(err error)
	HTTPClient        *http.Client
	Publisher         events.EventPublisher
	Metrics           *metrics.Collector

	// BackendVersion is the version range accepted from the backend's version announcement.
	BackendVersion string
}

// withDefaults fills the unset addressing fields.
func (c Config) withDefaults() (Config, error) {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Protocol == "" {
		c.Protocol = transport.ProtocolHTTP
		if c.UseCustomConnection {
			c.Protocol = transport.ProtocolCustom
		}
	}

	if c.Origin != "" {
		host, port, err := splitOrigin(c.Origin)
		if err != nil {
			return c, err
		}
		if c.Host == "" {
			c.Host = host
			if c.Port == 0 {
				c.Port = port
			}
		}
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}

	if c.UseCustomConnection && c.Connector == nil {
		return c, fmt.Errorf("%s - UseCustomConnection requires a Connector", logPrefix)
	}
	return c, nil
}

// splitOrigin returns the origin without its port, and the port (0 when absent).
func splitOrigin(origin string) (string, int, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", 0, fmt.Errorf("%s - invalid origin %q", logPrefix, origin)
	}
	host := u.Scheme + "://" + u.Host
	p := u.Port()
	if p == "" {
		return host, 0, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("%s - invalid origin port %q: %w", logPrefix, p, err)
	}
	return strings.TrimSuffix(host, ":"+p), port, nil
}
