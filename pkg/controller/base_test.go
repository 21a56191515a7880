package controller

import (
	"testing"

	"github.com/ikaru5/heimdall-controller/pkg/envelope"
	"github.com/ikaru5/heimdall-controller/pkg/registry"
)

const baseTestPrefix = "controller:base_test"

func received(receiver string) *registry.ActionData {
	return &registry.ActionData{Package: envelope.BuildReceive(map[string]any{"receiver": receiver}, "HTTP")}
}

func TestCallAction_MethodIsSoleReceiver(t *testing.T) {
	var got []string
	b := New("UsersController", registry.Names("create"), map[string]registry.HandlerFunc{
		"create": func(*registry.ActionData) { got = append(got, "method") },
	})
	b.ListenToAction("create", func(*registry.ActionData) { got = append(got, "listener") })

	b.CallAction("create", received("Users.create"))

	if len(got) != 1 || got[0] != "method" {
		t.Errorf("%s - calls = %v, want [method]", baseTestPrefix, got)
	}
}

func TestCallAction_FallsBackToListeners(t *testing.T) {
	var got []string
	b := New("UsersController", registry.Names("updated"), nil)
	b.ListenToAction("updated", func(*registry.ActionData) { got = append(got, "first") })
	b.ListenToAction("updated", func(*registry.ActionData) { got = append(got, "second") })

	b.CallAction("updated", received("Users.updated"))

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("%s - calls = %v, want [first second]", baseTestPrefix, got)
	}
}

func TestListenToAction_UnknownActionRejected(t *testing.T) {
	called := false
	b := New("UsersController", registry.Names("create"), nil)

	if b.ListenToAction("UnknownAction", func(*registry.ActionData) { called = true }) {
		t.Fatalf("%s - ListenToAction must return false for undeclared actions", baseTestPrefix)
	}
	b.CallListeners("UnknownAction", received("Users.UnknownAction"))
	if called {
		t.Errorf("%s - rejected listener must not be registered", baseTestPrefix)
	}
}

func TestCallListeners_NoListeners(t *testing.T) {
	b := New("UsersController", registry.Names("create"), nil)
	b.CallListeners("create", received("Users.create"))
}

func TestRegister_RoutesThroughRegistry(t *testing.T) {
	reg := registry.NewRegistry()
	var got *registry.ActionData
	b := New("UsersController", registry.Names("create"), map[string]registry.HandlerFunc{
		"create": func(d *registry.ActionData) { got = d },
	})
	b.Register(reg)

	route, err := reg.Resolve("Users.create")
	if err != nil {
		t.Fatalf("%s - Resolve: %v", baseTestPrefix, err)
	}
	data := received("Users.create")
	route.Invoke(data)
	if got != data {
		t.Errorf("%s - method did not receive the action data", baseTestPrefix)
	}
}

func TestNew_MethodsAreCopied(t *testing.T) {
	methods := map[string]registry.HandlerFunc{"a": func(*registry.ActionData) {}}
	b := New("XController", registry.Names("a", "b"), methods)
	methods["b"] = func(*registry.ActionData) { t.Errorf("%s - late method must not be used", baseTestPrefix) }

	b.CallAction("b", received("X.b"))
	if b.Name() != "XController" || len(b.Actions()) != 2 {
		t.Errorf("%s - Name/Actions = %s/%d", baseTestPrefix, b.Name(), len(b.Actions()))
	}
}
