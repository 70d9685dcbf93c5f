package capture

import (
	"fmt"
	"sync"

	"github.com/smazurov/stkcam/internal/bayer"
)

// DefaultSlots is the number of output images a stream rotates through.
const DefaultSlots = 2

// maxBytesPerPixel sizes every slot for the widest output format.
const maxBytesPerPixel = 4

// slotRing carves N output images out of one region. A consumer may claim a
// slot to keep automatic pulls from overwriting it.
type slotRing struct {
	mu      sync.Mutex
	region  []byte
	size    int
	claimed []bool
	next    int
}

func newSlotRing(count int) *slotRing {
	return &slotRing{claimed: make([]bool, count)}
}

// resize makes every slot hold a view-sized image in any format.
// Claims survive, the rotation restarts at slot 0.
func (r *slotRing) resize(view bayer.Size) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.size = view.Pixels() * maxBytesPerPixel
	if need := r.size * len(r.claimed); cap(r.region) < need {
		r.region = make([]byte, need)
	} else {
		r.region = r.region[:need]
	}
	r.next = 0
}

func (r *slotRing) checkLocked(i int) error {
	if i < 0 || i >= len(r.claimed) {
		return newError(ErrCodeInvalidSlot, fmt.Sprintf("slot %d out of range [0,%d)", i, len(r.claimed)), ErrInvalidSlot)
	}
	return nil
}

func (r *slotRing) bytes(i int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(i); err != nil {
		return nil, err
	}
	if r.size == 0 {
		return nil, newError(ErrCodeNotStreaming, "output slots not allocated", ErrNotStreaming)
	}
	return r.region[i*r.size : (i+1)*r.size], nil
}

func (r *slotRing) claim(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(i); err != nil {
		return err
	}
	if r.claimed[i] {
		return newError(ErrCodeInvalidSlot, fmt.Sprintf("slot %d already claimed", i), ErrInvalidSlot)
	}
	r.claimed[i] = true
	return nil
}

func (r *slotRing) release(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(i); err != nil {
		return err
	}
	if !r.claimed[i] {
		return newError(ErrCodeInvalidSlot, fmt.Sprintf("slot %d is not claimed", i), ErrInvalidSlot)
	}
	r.claimed[i] = false
	return nil
}

// peek returns the slot the next automatic pull would use.
func (r *slotRing) peek() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peekLocked()
}

func (r *slotRing) peekLocked() (int, error) {
	n := len(r.claimed)
	for k := 0; k < n; k++ {
		i := (r.next + k) % n
		if !r.claimed[i] {
			return i, nil
		}
	}
	return -1, newError(ErrCodeInvalidSlot, "all output slots are claimed", ErrInvalidSlot)
}

// advance moves the rotation past slot i.
func (r *slotRing) advance(i int) {
	r.mu.Lock()
	r.next = (i + 1) % len(r.claimed)
	r.mu.Unlock()
}
