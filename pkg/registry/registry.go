package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const logPrefix = "registry:registry"

// Registry holds the controller entries of one router.
//
// Registration is expected to finish before messages are routed. The registry
// is not safe for registration concurrent with Resolve.
type Registry struct {
	controllers map[string]*Entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]*Entry)}
}

// RegisterController binds instance to name and registers its actions. An action
// naming another controller is registered there instead.
func (r *Registry) RegisterController(instance Handler, name string, actions ...Action) {
	r.entry(name).Instance = instance
	for _, a := range actions {
		target := name
		if a.Controller != "" {
			target = a.Controller
		}
		r.RegisterAction(target, a)
	}
	slog.Debug(fmt.Sprintf("%s - registered controller %s with %d action(s)", logPrefix, name, len(actions)))
}

// RegisterAction appends an action to a controller, creating the entry on first use.
// Duplicate names are kept; resolution returns the first one registered.
func (r *Registry) RegisterAction(controller string, action Action) {
	e := r.entry(controller)
	e.Actions = append(e.Actions, action)
}

// Resolve finds the action addressed by receiver. The error is a *RouteError
// naming the controller key and action that were looked up.
func (r *Registry) Resolve(receiver string) (*Route, error) {
	controller, action := ParseReceiver(receiver)

	e, ok := r.controllers[controller]
	if !ok {
		return nil, NewRouteError(CodeNotFound, fmt.Sprintf("Path for %s, which was interpreted as %s and %s not found.", receiver, controller, action), controller, action)
	}

	for _, decl := range e.Actions {
		if decl.Name != action {
			continue
		}
		if (e.Instance != nil && decl.Name != "") || decl.Callback != nil {
			return &Route{Controller: controller, Action: action, Handler: e.Instance, Decl: decl}, nil
		}
		return nil, NewRouteError(CodeInert, fmt.Sprintf("Action %s of %s has neither a bound controller nor a callback.", action, controller), controller, action)
	}
	return nil, NewRouteError(CodeNotFound, fmt.Sprintf("Path for %s, which was interpreted as %s and %s not found.", receiver, controller, action), controller, action)
}

// Entry returns the entry of a controller key.
func (r *Registry) Entry(controller string) (*Entry, bool) {
	e, ok := r.controllers[controller]
	return e, ok
}

// Controllers returns the registered controller keys, sorted.
func (r *Registry) Controllers() []string {
	names := make([]string, 0, len(r.controllers))
	for name := range r.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) entry(controller string) *Entry {
	e, ok := r.controllers[controller]
	if !ok {
		e = &Entry{}
		r.controllers[controller] = e
	}
	return e
}

// ParseReceiver splits "A.B.C" into the controller key "A.BController" and action "C".
func ParseReceiver(receiver string) (controller, action string) {
	segments := strings.Split(receiver, ".")
	action = segments[len(segments)-1]
	controller = strings.Join(segments[:len(segments)-1], ".") + ControllerSuffix
	return controller, action
}
