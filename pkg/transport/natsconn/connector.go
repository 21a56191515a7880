// Package natsconn provides a custom transport over COMMS (NATS).
//
// Each connection subscribes to an inbox subject and publishes outbound
// packages to an outbox subject.
package natsconn

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/ikaru5/heimdall-controller/pkg/commsutil"
	"github.com/ikaru5/heimdall-controller/pkg/transport"
)

const logPrefix = "natsconn:connector"

// Connection parameter keys.
const (
	ParamURL    = "url"
	ParamName   = "name"
	ParamInbox  = "inbox"
	ParamOutbox = "outbox"
)

// Connector opens COMMS connections. Its fields are used when the
// connection params leave a key unset.
type Connector struct {
	URL    string
	Name   string
	Inbox  string
	Outbox string
}

// NewConnector creates a Connector with the default subjects.
func NewConnector(url, name string) *Connector {
	return &Connector{
		URL:    url,
		Name:   name,
		Inbox:  commsutil.SubjectInbox,
		Outbox: commsutil.SubjectOutbox,
	}
}

// Connect implements transport.Connector.
func (c *Connector) Connect(_ context.Context, params transport.Params, cb transport.Callbacks) (transport.Connection, error) {
	url := param(params, ParamURL, c.URL)
	if url == "" {
		url = comms.DefaultURL
	}
	name := param(params, ParamName, c.Name)
	inbox := param(params, ParamInbox, c.Inbox)
	outbox := param(params, ParamOutbox, c.Outbox)
	if inbox == "" || outbox == "" {
		return nil, fmt.Errorf("%s - inbox and outbox subjects are required", logPrefix)
	}

	opts := []comms.Option{
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - disconnected from %s: %v", logPrefix, url, err))
			if cb.OnDisconnected != nil {
				cb.OnDisconnected(err)
			}
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - reconnected to %s", logPrefix, nc.ConnectedUrl()))
			if cb.OnConnected != nil {
				cb.OnConnected()
			}
		}),
	}

	nc, err := commsutil.Connect(url, name, opts...)
	if err != nil {
		return nil, err
	}

	sub, err := nc.Subscribe(inbox, func(msg *comms.Msg) {
		if cb.OnReceive != nil {
			cb.OnReceive(msg.Data)
		}
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, inbox, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("%s - failed to flush subscription: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - listening on %s, publishing to %s", logPrefix, inbox, outbox))
	if cb.OnConnected != nil {
		cb.OnConnected()
	}
	return &Conn{nc: nc, sub: sub, outbox: outbox}, nil
}

// Conn is one open COMMS connection.
type Conn struct {
	nc     *comms.Conn
	sub    *comms.Subscription
	outbox string
}

// Send publishes body to the outbox subject.
func (c *Conn) Send(_ context.Context, body []byte) error {
	if err := c.nc.Publish(c.outbox, body); err != nil {
		return fmt.Errorf("%s - publish to %s failed: %w", logPrefix, c.outbox, err)
	}
	return nil
}

// Close unsubscribes and closes the underlying connection.
func (c *Conn) Close() error {
	var err error
	if c.sub != nil && c.nc.IsConnected() {
		err = c.sub.Unsubscribe()
	}
	c.nc.Close()
	return err
}

// Outbox returns the subject outbound packages are published to.
func (c *Conn) Outbox() string { return c.outbox }

func param(params transport.Params, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
