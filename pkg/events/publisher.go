package events

import "context"

// EventPublisher is the interface for publishing routing events.
type EventPublisher interface {
	PublishRouted(ctx context.Context, event *RoutedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

// PublishRouted is a no-op.
func (p *NoOpPublisher) PublishRouted(_ context.Context, _ *RoutedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *RoutedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *RoutedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishRouted calls the callback.
func (p *CallbackPublisher) PublishRouted(ctx context.Context, event *RoutedEvent) error {
	return p.callback(ctx, event)
}
