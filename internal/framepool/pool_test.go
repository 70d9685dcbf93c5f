package framepool

import (
	"errors"
	"math/rand"
	"testing"
)

// checkRoles verifies that every handle appears in exactly one role.
func checkRoles(t *testing.T, p *Pool) {
	t.Helper()
	r := p.Snapshot()
	seen := make([]int, p.Len())
	mark := func(h int) {
		if h < 0 || h >= len(seen) {
			t.Fatalf("Expected handle in [0,%d), got %d", len(seen), h)
		}
		seen[h]++
	}
	if r.Fill == none {
		t.Fatal("Expected a Fill target, got none")
	}
	mark(r.Fill)
	if r.Read != none {
		mark(r.Read)
	}
	for _, h := range r.Empty {
		mark(h)
	}
	for _, h := range r.Full {
		mark(h)
	}
	for h, n := range seen {
		if n != 1 {
			t.Fatalf("Expected handle %d in exactly one role, found in %d (roles %+v)", h, n, r)
		}
	}
}

// publishTagged writes tag into the Fill frame and publishes it.
func publishTagged(t *testing.T, p *Pool, tag byte) bool {
	t.Helper()
	f := p.Fill()
	f.Data[0] = tag
	f.Filled = 1
	displaced, err := p.Publish()
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	return displaced
}

func TestNewRejectsTinyPool(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		if _, err := New(n, 16); !errors.Is(err, ErrPoolTooSmall) {
			t.Errorf("Expected ErrPoolTooSmall for %d buffers, got %v", n, err)
		}
	}
	if _, err := New(3, 0); err == nil {
		t.Error("Expected error for zero capacity, got nil")
	}
}

func TestResetInstallsFirstFill(t *testing.T) {
	p, err := New(DefaultCount, 16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	r := p.Snapshot()
	if r.Fill != 0 || r.Read != none {
		t.Errorf("Expected Fill=0 Read=none, got Fill=%d Read=%d", r.Fill, r.Read)
	}
	if len(r.Empty) != 2 || len(r.Full) != 0 {
		t.Errorf("Expected 2 empty and 0 full, got %v and %v", r.Empty, r.Full)
	}

	publishTagged(t, p, 1)
	p.Fill().Errors = 5
	p.Reset()
	if p.HasFull() {
		t.Error("Expected no full frames after reset")
	}
	if f := p.Fill(); f.Filled != 0 || f.Errors != 0 {
		t.Errorf("Expected clean fill after reset, got filled=%d errors=%d", f.Filled, f.Errors)
	}
	checkRoles(t, p)
}

func TestFIFOFreshness(t *testing.T) {
	// Three buffers: Fill plus two queued frames before the oldest is dumped.
	p, err := New(3, 16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	dumped := 0
	for tag := byte(1); tag <= 3; tag++ {
		if publishTagged(t, p, tag) {
			dumped++
		}
	}
	if dumped != 1 {
		t.Errorf("Expected 1 dumped frame, got %d", dumped)
	}

	for _, want := range []byte{2, 3} {
		f, ok := p.TryAcquireRead()
		if !ok {
			t.Fatalf("Expected frame %d to be ready", want)
		}
		if f.Data[0] != want {
			t.Errorf("Expected frame %d, got %d", want, f.Data[0])
		}
		if err := p.ReleaseRead(f); err != nil {
			t.Fatalf("ReleaseRead failed: %v", err)
		}
	}
	if _, ok := p.TryAcquireRead(); ok {
		t.Error("Expected no further frames")
	}
	checkRoles(t, p)
}

func TestTwoBufferPoolKeepsNewest(t *testing.T) {
	p, err := New(2, 16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	dumped := 0
	for tag := byte(1); tag <= 3; tag++ {
		if publishTagged(t, p, tag) {
			dumped++
		}
	}
	if dumped != 2 {
		t.Errorf("Expected 2 dumped frames, got %d", dumped)
	}

	f, ok := p.TryAcquireRead()
	if !ok || f.Data[0] != 3 {
		t.Fatalf("Expected newest frame 3, got ok=%v", ok)
	}
	checkRoles(t, p)
}

func TestPublishResetsNewFill(t *testing.T) {
	p, err := New(2, 16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	f := p.Fill()
	f.Filled = 16
	f.Errors = 2
	f.Odd = true
	if _, err := p.Publish(); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	// Second publish recycles the only full frame as the new Fill.
	if _, err := p.Publish(); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	next := p.Fill()
	if next.Filled != 0 || next.Errors != 0 || next.Odd {
		t.Errorf("Expected clean fill target, got %+v", *next)
	}
}

func TestReadSlotIsExclusive(t *testing.T) {
	p, err := New(3, 16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	publishTagged(t, p, 1)
	publishTagged(t, p, 2)

	f, ok := p.TryAcquireRead()
	if !ok {
		t.Fatal("Expected a frame")
	}
	if _, ok := p.TryAcquireRead(); ok {
		t.Error("Expected second acquire to fail while a frame is held")
	}

	other := p.Fill()
	if err := p.ReleaseRead(other); !errors.Is(err, ErrNotReading) {
		t.Errorf("Expected ErrNotReading for the fill frame, got %v", err)
	}
	if err := p.ReleaseRead(nil); !errors.Is(err, ErrNotReading) {
		t.Errorf("Expected ErrNotReading for nil, got %v", err)
	}
	if err := p.ReleaseRead(f); err != nil {
		t.Fatalf("ReleaseRead failed: %v", err)
	}
	if err := p.ReleaseRead(f); !errors.Is(err, ErrNotReading) {
		t.Errorf("Expected ErrNotReading on double release, got %v", err)
	}
	checkRoles(t, p)
}

func TestRoleInvariantUnderRandomOperations(t *testing.T) {
	for _, count := range []int{2, 3, 5} {
		p, err := New(count, 8)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		rng := rand.New(rand.NewSource(int64(count)))
		var held *Frame

		for i := 0; i < 5000; i++ {
			switch rng.Intn(4) {
			case 0, 1:
				if _, err := p.Publish(); err != nil {
					t.Fatalf("Publish failed at step %d: %v", i, err)
				}
			case 2:
				if held == nil {
					if f, ok := p.TryAcquireRead(); ok {
						held = f
					}
				}
			case 3:
				if held != nil {
					if err := p.ReleaseRead(held); err != nil {
						t.Fatalf("ReleaseRead failed at step %d: %v", i, err)
					}
					held = nil
				}
			}
			checkRoles(t, p)
		}
	}
}
