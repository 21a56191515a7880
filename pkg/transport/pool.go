package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

const poolLogPrefix = "transport:pool"

// Params configure one custom connection. Disconnect matches entries by structural equality.
type Params map[string]any

// Callbacks are handed to a Connector so the connection can report back to the router.
type Callbacks struct {
	OnConnected    func()
	OnDisconnected func(err error)
	// OnReceive gets the raw bytes of one inbound message or batch.
	OnReceive func(data []byte)
}

// Connection is an open custom transport.
type Connection interface {
	Send(ctx context.Context, body []byte) error
	Close() error
}

// Connector opens custom connections (sockets, message buses, ...).
type Connector interface {
	Connect(ctx context.Context, params Params, cb Callbacks) (Connection, error)
}

// Handle is one active entry of the pool.
type Handle struct {
	ID     string
	Params Params
	Conn   Connection
}

// Pool is the single collection of active custom connections.
type Pool struct {
	connector Connector

	mu      sync.Mutex
	handles []*Handle
}

// NewPool creates an empty pool opening connections through c.
func NewPool(c Connector) *Pool {
	return &Pool{connector: c}
}

// Connect opens a connection and adds it to the pool.
func (p *Pool) Connect(ctx context.Context, params Params, cb Callbacks) (*Handle, error) {
	if p.connector == nil {
		return nil, fmt.Errorf("%s - no connector configured", poolLogPrefix)
	}
	conn, err := p.connector.Connect(ctx, params, cb)
	if err != nil {
		return nil, fmt.Errorf("%s - connect failed: %w", poolLogPrefix, err)
	}

	h := &Handle{ID: uuid.NewString(), Params: params, Conn: conn}
	p.mu.Lock()
	p.handles = append(p.handles, h)
	p.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - connection %s added", poolLogPrefix, h.ID))
	return h, nil
}

// Disconnect closes and removes every connection whose params equal params.
// It returns the number of removed connections.
func (p *Pool) Disconnect(params Params) int {
	p.mu.Lock()
	var removed []*Handle
	kept := p.handles[:0]
	for _, h := range p.handles {
		if reflect.DeepEqual(h.Params, params) {
			removed = append(removed, h)
			continue
		}
		kept = append(kept, h)
	}
	p.handles = kept
	p.mu.Unlock()

	closeAll(removed)
	return len(removed)
}

// DisconnectAll closes and removes every connection.
func (p *Pool) DisconnectAll() {
	p.mu.Lock()
	removed := p.handles
	p.handles = nil
	p.mu.Unlock()

	closeAll(removed)
}

// Len returns the number of active connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Broadcast writes body to every active connection.
func (p *Pool) Broadcast(ctx context.Context, body []byte) error {
	p.mu.Lock()
	handles := append([]*Handle(nil), p.handles...)
	p.mu.Unlock()

	if len(handles) == 0 {
		return fmt.Errorf("%s - %w", poolLogPrefix, ErrNoConnection)
	}

	var errs []error
	for _, h := range handles {
		if err := h.Conn.Send(ctx, body); err != nil {
			errs = append(errs, fmt.Errorf("connection %s: %w", h.ID, err))
		}
	}
	return errors.Join(errs...)
}

func closeAll(handles []*Handle) {
	for _, h := range handles {
		if err := h.Conn.Close(); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to close connection %s: %v", poolLogPrefix, h.ID, err))
		}
	}
}
