package pool

import "testing"

func TestPoolNewSlotsZeroedAndContiguous(t *testing.T) {
	p, err := Open(64 * 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	a := p.NewSlots(4)
	if len(a) != 4 {
		t.Fatalf("want 4 slots, got %d", len(a))
	}
	for i, v := range a {
		if v != 0 {
			t.Fatalf("slot %d: want zeroed, got %d", i, v)
		}
	}
	a[0] = 7
	a[3] = 9

	b := p.NewSlots(2)
	b[0] = 42

	// a and b must not alias: writing into b must not disturb a's
	// previously-written values.
	if a[0] != 7 || a[3] != 9 {
		t.Fatalf("writing to b corrupted a: %v", a)
	}
	if p.Used() != 6 {
		t.Fatalf("want 6 slots used, got %d", p.Used())
	}
}

func TestPoolNewSlotsZeroIsNoop(t *testing.T) {
	p, err := Open(16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if got := p.NewSlots(0); got != nil {
		t.Fatalf("want nil for a zero-length request, got %v", got)
	}
	if p.Used() != 0 {
		t.Fatalf("want 0 slots used, got %d", p.Used())
	}
}

func TestPoolExhaustionPanics(t *testing.T) {
	p, err := Open(4 * 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	p.NewSlots(4)

	defer func() {
		if recover() == nil {
			t.Fatalf("want a panic carving slots past the arena's capacity")
		}
	}()
	p.NewSlots(1)
}

func TestPoolCapReflectsByteSize(t *testing.T) {
	p, err := Open(40)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if p.Cap() != 10 {
		t.Fatalf("want 10 int32 slots for a 40-byte arena, got %d", p.Cap())
	}
}
