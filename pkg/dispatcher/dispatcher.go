// Package dispatcher routes inbound messages to the actions of a registry.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ikaru5/heimdall-controller/pkg/envelope"
	"github.com/ikaru5/heimdall-controller/pkg/events"
	"github.com/ikaru5/heimdall-controller/pkg/metrics"
	"github.com/ikaru5/heimdall-controller/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher processes inbound messages one batch at a time.
type Dispatcher struct {
	registry  *registry.Registry
	publisher events.EventPublisher
	metrics   *metrics.Collector

	mu       sync.Mutex
	queue    []batch
	draining bool
}

type batch struct {
	ctx      context.Context
	raw      any
	protocol string
}

// NewDispatcherParams holds the dependencies of a Dispatcher.
type NewDispatcherParams struct {
	Registry  *registry.Registry
	Publisher events.EventPublisher
	Metrics   *metrics.Collector
}

// NewDispatcher creates a new Dispatcher. A nil Publisher publishes nothing.
func NewDispatcher(p NewDispatcherParams) *Dispatcher {
	pub := p.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Dispatcher{registry: p.Registry, publisher: pub, metrics: p.Metrics}
}

// Dispatch routes one decoded message or a sequence of messages.
//
// Batches are processed strictly one after another. A batch arriving while another
// is processed, including one dispatched from inside a handler, is queued and
// handled by the goroutine already draining the queue before it returns.
func (d *Dispatcher) Dispatch(ctx context.Context, raw any, protocol string) {
	d.mu.Lock()
	d.queue = append(d.queue, batch{ctx: ctx, raw: raw, protocol: protocol})
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	for len(d.queue) > 0 {
		b := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		d.process(b)
		d.mu.Lock()
	}
	d.draining = false
	d.mu.Unlock()
}

func (d *Dispatcher) process(b batch) {
	msgs, ok := b.raw.([]any)
	if !ok {
		d.route(b.ctx, b.raw, b.protocol)
		return
	}

	msgs = append([]any(nil), msgs...)
	SortByPriority(msgs)
	for _, m := range msgs {
		d.route(b.ctx, m, b.protocol)
	}
}

// SortByPriority orders messages by descending priority. Messages without a
// priority go last; ties keep their arrival order.
func SortByPriority(msgs []any) {
	sort.SliceStable(msgs, func(i, j int) bool {
		pi, okI := envelope.PriorityOf(msgs[i])
		if !okI {
			return false
		}
		pj, okJ := envelope.PriorityOf(msgs[j])
		if !okJ {
			return true
		}
		return pi > pj
	})
}

func (d *Dispatcher) route(ctx context.Context, raw any, protocol string) {
	d.metrics.Received(protocol)

	pkg := envelope.BuildReceive(raw, protocol)
	priority, _ := pkg.Priority()

	event := &events.RoutedEvent{
		Receiver: pkg.Receiver(),
		Protocol: protocol,
		Priority: priority,
	}

	route, err := d.registry.Resolve(pkg.Receiver())
	if err != nil {
		if re, ok := err.(*registry.RouteError); ok {
			event.Controller, event.Action = re.Controller, re.Action
		}
		slog.Error(fmt.Sprintf("%s - %v", logPrefix, err))
		event.Errors = []string{err.Error()}
		event.Payload = pkg.Payload()
		d.emit(ctx, events.KindDropped, event)
		return
	}
	event.Controller, event.Action = route.Controller, route.Action

	data := &registry.ActionData{Package: pkg, Priority: priority}
	if route.Decl.Contract != nil {
		data.Contract = route.Decl.Contract()
		data.Contract.Assign(pkg.Payload())
	}

	if data.Contract != nil && !route.Decl.NoValidate && !data.Contract.IsValid(route.Decl.Context) {
		errs := data.Contract.Errors()
		if !route.Decl.Silent {
			slog.Error(fmt.Sprintf("%s - Validation failed for %s: %s", logPrefix, pkg.Receiver(), strings.Join(errs, "; ")))
		}
		if route.Decl.OnInvalid != nil {
			d.invoke(pkg.Receiver(), func() { route.Decl.OnInvalid(data) })
		}
		event.Errors = errs
		event.Payload = pkg.Payload()
		d.emit(ctx, events.KindInvalid, event)
		return
	}

	if err := d.invoke(pkg.Receiver(), func() { route.Invoke(data) }); err != nil {
		event.Errors = []string{err.Error()}
		d.emit(ctx, events.KindFailed, event)
		return
	}
	d.emit(ctx, events.KindDelivered, event)
}

// invoke runs fn and turns a panic into an error so one handler cannot abort a batch.
func (d *Dispatcher) invoke(receiver string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s - handler for %s panicked: %v", logPrefix, receiver, r)
			slog.Error(err.Error())
		}
	}()
	fn()
	return nil
}

func (d *Dispatcher) emit(ctx context.Context, kind string, event *events.RoutedEvent) {
	event.Kind = kind
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	d.metrics.Routed(kind)
	if err := d.publisher.PublishRouted(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event for %s: %v", logPrefix, kind, event.Receiver, err))
	}
}
