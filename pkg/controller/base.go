// Package controller provides Base, the handler-side adapter that gives every
// controller a uniform CallAction entry point and per-action listener fan-out.
package controller

import (
	"fmt"
	"log/slog"

	"github.com/ikaru5/heimdall-controller/pkg/registry"
)

const logPrefix = "controller:base"

// Base routes actions to a dispatch table or, for actions without a method, to listeners.
//
// Listeners are expected to be attached during setup, before messages flow.
type Base struct {
	name      string
	actions   []registry.Action
	declared  map[string]struct{}
	methods   map[string]registry.HandlerFunc
	listeners map[string][]registry.HandlerFunc
}

// New creates a controller. actions is the static allow-list; methods maps action
// names to the functions that handle them exclusively.
func New(name string, actions []registry.Action, methods map[string]registry.HandlerFunc) *Base {
	b := &Base{
		name:      name,
		actions:   actions,
		declared:  make(map[string]struct{}, len(actions)),
		methods:   make(map[string]registry.HandlerFunc, len(methods)),
		listeners: make(map[string][]registry.HandlerFunc),
	}
	for _, a := range actions {
		b.declared[a.Name] = struct{}{}
	}
	for action, fn := range methods {
		b.methods[action] = fn
	}
	return b
}

// Name returns the controller key.
func (b *Base) Name() string { return b.name }

// Actions returns the declared actions.
func (b *Base) Actions() []registry.Action { return b.actions }

// Register binds the controller and its actions in reg.
func (b *Base) Register(reg *registry.Registry) {
	reg.RegisterController(b, b.name, b.actions...)
}

// CallAction runs the method registered for action, or the action's listeners.
func (b *Base) CallAction(action string, data *registry.ActionData) {
	if fn, ok := b.methods[action]; ok {
		fn(data)
		return
	}
	b.CallListeners(action, data)
}

// ListenToAction adds an observer for a declared action. Undeclared actions are
// rejected and false is returned.
func (b *Base) ListenToAction(action string, cb registry.HandlerFunc) bool {
	if _, ok := b.declared[action]; !ok {
		slog.Error(fmt.Sprintf("%s - No action %s for controller %s.", logPrefix, action, b.name))
		return false
	}
	b.listeners[action] = append(b.listeners[action], cb)
	return true
}

// CallListeners invokes the observers of action in registration order.
func (b *Base) CallListeners(action string, data *registry.ActionData) {
	for _, cb := range b.listeners[action] {
		cb(data)
	}
}
