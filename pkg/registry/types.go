// Package registry maps controller names to their bound handlers and declared
// actions, and resolves inbound receiver addresses to an action.
package registry

import (
	"github.com/ikaru5/heimdall-controller/pkg/contract"
	"github.com/ikaru5/heimdall-controller/pkg/envelope"
)

// ControllerSuffix is appended to a receiver's namespace to form the controller key.
const ControllerSuffix = "Controller"

// Error codes carried by RouteError.
const (
	CodeNotFound = "NOT_FOUND"
	CodeInert    = "INERT_ACTION"
)

// ActionData is handed to the handler of a received package.
type ActionData struct {
	Package *envelope.Package
	// Contract is populated from the payload when the action declares one.
	Contract contract.Contract
	// Priority is the message priority, 0 when absent.
	Priority float64
}

// HandlerFunc handles one received package.
type HandlerFunc func(data *ActionData)

// Handler is a controller instance bound to a registry entry.
type Handler interface {
	CallAction(action string, data *ActionData)
}

// Action declares one named operation of a controller.
type Action struct {
	Name string
	// Controller registers the action under another controller key.
	Controller string
	Contract   contract.Factory
	// Callback handles the action without a bound controller instance.
	Callback  HandlerFunc
	OnInvalid HandlerFunc
	// NoValidate skips contract validation. Validation is on by default.
	NoValidate bool
	// Silent suppresses the validation failure diagnostic.
	Silent bool
	// Context is passed to the contract's IsValid.
	Context any
}

// Named is the shorthand for an action declared by name only.
func Named(name string) Action {
	return Action{Name: name}
}

// Names declares several actions by name.
func Names(names ...string) []Action {
	actions := make([]Action, 0, len(names))
	for _, n := range names {
		actions = append(actions, Named(n))
	}
	return actions
}

// Entry is the registry bucket of one controller.
type Entry struct {
	Instance Handler
	Actions  []Action
}

// Route is a resolved receiver.
type Route struct {
	Controller string
	Action     string
	Handler    Handler
	Decl       Action
}

// Invoke runs the inline callback when declared, otherwise the bound handler.
func (r *Route) Invoke(data *ActionData) {
	if r.Decl.Callback != nil {
		r.Decl.Callback(data)
		return
	}
	r.Handler.CallAction(r.Action, data)
}

// RouteError is a structured resolution failure.
type RouteError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Controller string `json:"controller"`
	Action     string `json:"action"`
}

func (e *RouteError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRouteError creates a new RouteError.
func NewRouteError(code, message, controller, action string) *RouteError {
	return &RouteError{Code: code, Message: message, Controller: controller, Action: action}
}
