package capture

import "testing"

func TestRingBufferDropsOldestOnOverflow(t *testing.T) {
	r := NewRingBuffer[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4)

	got := r.Snapshot()
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", got, want)
		}
	}
}

func TestRingBufferLast(t *testing.T) {
	r := NewRingBuffer[string](2)
	if _, ok := r.Last(); ok {
		t.Fatal("Last on empty buffer should return ok=false")
	}
	r.Push("a")
	r.Push("b")
	last, ok := r.Last()
	if !ok || last != "b" {
		t.Fatalf("Last = %q, %v, want \"b\", true", last, ok)
	}
}

func TestRingBufferDrainAllEmptiesBuffer(t *testing.T) {
	r := NewRingBuffer[int](4)
	r.Push(1)
	r.Push(2)

	drained := r.DrainAll()
	if len(drained) != 2 || drained[0] != 1 || drained[1] != 2 {
		t.Fatalf("drained = %v", drained)
	}
	if r.Len() != 0 {
		t.Fatalf("Len after drain = %d, want 0", r.Len())
	}
	if got := r.DrainAll(); got != nil {
		t.Fatalf("second drain = %v, want nil", got)
	}
}

func TestRingBufferUpdateByIDOnlyTouchesLiveEntries(t *testing.T) {
	type item struct {
		ID     string
		Marked bool
	}
	r := NewRingBuffer[item](2)
	r.Push(item{ID: "a"})
	r.Push(item{ID: "b"})
	r.Push(item{ID: "c"}) // evicts "a"

	if r.UpdateByID(func(i item) bool { return i.ID == "a" }, func(i *item) { i.Marked = true }) {
		t.Fatal("UpdateByID found an evicted entry")
	}
	if !r.UpdateByID(func(i item) bool { return i.ID == "c" }, func(i *item) { i.Marked = true }) {
		t.Fatal("UpdateByID did not find a live entry")
	}

	snap := r.Snapshot()
	for _, it := range snap {
		if it.ID == "c" && !it.Marked {
			t.Fatalf("expected %q to be marked, snapshot = %+v", it.ID, snap)
		}
	}
}

func TestRingBufferCapacityFloor(t *testing.T) {
	r := NewRingBuffer[int](0)
	r.Push(1)
	r.Push(2)
	if got := r.Snapshot(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("snapshot = %v, want [2] (capacity floor of 1)", got)
	}
}
