package transport

import (
	"context"
	"fmt"
	"log/slog"
)

const selectorLogPrefix = "transport:selector"

// ReceiveFunc takes a decoded inbound message (or batch) and the protocol it came from.
type ReceiveFunc func(ctx context.Context, raw any, protocol string)

// Selector picks the transport for an outbound package by protocol.
type Selector struct {
	HTTP *HTTP
	// Pool serves the CUSTOM protocol. Nil when custom connections are disabled.
	Pool *Pool
	// OnFailure receives every transport error. Errors never reach the caller.
	OnFailure func(err error)
	// OnReceive gets decoded HTTP responses.
	OnReceive ReceiveFunc
}

// Send delivers body to t. Failures are reported through OnFailure.
func (s *Selector) Send(ctx context.Context, body []byte, t Target) {
	var (
		data any
		err  error
	)

	switch t.Protocol {
	case ProtocolHTTP, ProtocolPOST:
		data, err = s.HTTP.Post(ctx, body, t)
	case ProtocolGET:
		if len(t.Files) > 0 {
			slog.Warn(fmt.Sprintf("%s - %d file(s) cannot be sent with GET and are dropped", selectorLogPrefix, len(t.Files)))
			t.Files = nil
		}
		data, err = s.HTTP.Get(ctx, body, t)
	case ProtocolCustom:
		if s.Pool == nil {
			err = fmt.Errorf("%s - custom connections are disabled: %w", selectorLogPrefix, ErrNoConnection)
		} else {
			err = s.Pool.Broadcast(ctx, body)
		}
	default:
		slog.Error(fmt.Sprintf("%s - Unknown protocol: %s", selectorLogPrefix, t.Protocol))
		err = fmt.Errorf("%w: %s", ErrUnknownProtocol, t.Protocol)
	}

	if err != nil {
		s.fail(err)
		return
	}
	if data != nil && s.OnReceive != nil {
		s.OnReceive(ctx, data, ProtocolHTTP)
	}
}

func (s *Selector) fail(err error) {
	if s.OnFailure != nil {
		s.OnFailure(err)
		return
	}
	slog.Error(fmt.Sprintf("%s - Network Error: %v", selectorLogPrefix, err))
}
