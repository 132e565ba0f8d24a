package trap

import "testing"

func TestFirstRunHookIsInvoked(t *testing.T) {
	prev := firstRunHook
	defer func() { firstRunHook = prev }()

	called := false
	SetFirstRunHook(func() { called = true })

	firstRunHookCall()

	if !called {
		t.Fatal("expected the registered first-run hook to be invoked")
	}
}

func TestFirstRunHookCallToleratesNilHook(t *testing.T) {
	prev := firstRunHook
	defer func() { firstRunHook = prev }()
	firstRunHook = nil

	firstRunHookCall() // must not panic
}
