package proc

import "testing"

func TestTableAllocAssignsIncreasingPIDs(t *testing.T) {
	defer withFakeKernelStacks(t)()

	var tbl Table
	tbl.Init()

	first := mustAlloc(t, &tbl)
	second := mustAlloc(t, &tbl)

	if first.State != StateEmbryo {
		t.Fatalf("expected a freshly allocated slot to be Embryo, got %v", first.State)
	}
	if second.PID <= first.PID {
		t.Fatalf("expected strictly increasing PIDs, got %d then %d", first.PID, second.PID)
	}
	if first.Parent != NoParent {
		t.Fatalf("expected a fresh process to have no parent, got %+v", first.Parent)
	}
	if first.CWD != "/" {
		t.Fatalf("expected a fresh process's CWD to be \"/\", got %q", first.CWD)
	}
}

func TestTableAllocFailsWhenFull(t *testing.T) {
	defer withFakeKernelStacks(t)()

	var tbl Table
	tbl.Init()

	for i := 0; i < MaxProcesses; i++ {
		mustAlloc(t, &tbl)
	}

	if _, err := tbl.Alloc(); err == nil {
		t.Fatal("expected Alloc to fail once the table is full")
	}
}

func TestTableFreeReturnsSlotToUnused(t *testing.T) {
	defer withFakeKernelStacks(t)()

	var tbl Table
	tbl.Init()
	p := mustAlloc(t, &tbl)

	tbl.free(p)

	if p.State != StateUnused {
		t.Fatalf("expected free to reset state to Unused, got %v", p.State)
	}

	// The slot must be reusable: with the only allocated slot freed, filling
	// the table should now succeed for exactly MaxProcesses further
	// allocations.
	for i := 0; i < MaxProcesses; i++ {
		mustAlloc(t, &tbl)
	}
	if _, err := tbl.Alloc(); err == nil {
		t.Fatal("expected the table to be full again")
	}
}

func TestTableLookupRejectsStaleGeneration(t *testing.T) {
	defer withFakeKernelStacks(t)()

	var tbl Table
	tbl.Init()
	p := mustAlloc(t, &tbl)
	stale := p.Ref()

	tbl.free(p)
	mustAlloc(t, &tbl) // reuses the freed slot with a bumped generation

	tbl.Lock.Acquire()
	defer tbl.Lock.Release()
	if got := tbl.Lookup(stale); got != nil {
		t.Fatal("expected Lookup of a stale generation to return nil")
	}
}

func TestTableEachVisitsOnlyInUseSlots(t *testing.T) {
	defer withFakeKernelStacks(t)()

	var tbl Table
	tbl.Init()
	a := mustAlloc(t, &tbl)
	b := mustAlloc(t, &tbl)
	tbl.free(a)

	tbl.Lock.Acquire()
	defer tbl.Lock.Release()

	seen := map[int32]bool{}
	tbl.Each(func(p *Process) { seen[p.PID] = true })

	if seen[a.PID] {
		t.Fatal("expected Each to skip a freed slot")
	}
	if !seen[b.PID] {
		t.Fatal("expected Each to visit an in-use slot")
	}
}
