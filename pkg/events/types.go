// Package events defines routing events and publisher interfaces for them.
package events

// Routing event kinds.
const (
	KindDelivered = "delivered"
	KindDropped   = "dropped"
	KindInvalid   = "invalid"
	KindFailed    = "failed"
)

// RoutedEvent is emitted for every inbound message the router processed.
type RoutedEvent struct {
	Kind       string   `json:"kind"`
	Receiver   string   `json:"receiver"`
	Controller string   `json:"controller"`
	Action     string   `json:"action"`
	Protocol   string   `json:"protocol"`
	Priority   float64  `json:"priority"`
	Errors     []string `json:"errors,omitempty"`
	Payload    any      `json:"payload,omitempty"`
	Timestamp  string   `json:"timestamp"`
}
