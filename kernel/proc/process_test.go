package proc

import "testing"

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUnused:   "unused",
		StateEmbryo:   "embryo",
		StateRunnable: "runnable",
		StateRunning:  "running",
		StateZombie:   "zombie",
		StateSleeping: "sleeping",
		State(99):     "invalid",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestIsChildOfComparesGenerationedRefs(t *testing.T) {
	defer withFakeKernelStacks(t)()

	var tbl Table
	tbl.Init()
	parent := mustAlloc(t, &tbl)
	child := mustAlloc(t, &tbl)

	if child.IsChildOf(parent) {
		t.Fatal("expected an unrelated process not to be a child")
	}

	child.Parent = parent.Ref()
	if !child.IsChildOf(parent) {
		t.Fatal("expected the process to be recognized as a child once Parent is set")
	}

	tbl.free(parent)
	reused := mustAlloc(t, &tbl) // reuses parent's slot with a bumped generation
	if reused.Ref().Index == child.Parent.Index && child.IsChildOf(reused) {
		t.Fatal("expected a stale Parent ref to not match a slot's new tenant")
	}
}
