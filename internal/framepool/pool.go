// Package framepool implements the fixed set of raw capture buffers shared
// by the USB producer and the frame consumer.
//
// Every frame is always in exactly one role: the producer's Fill target, the
// consumer's Read frame, the Empty queue or the Full queue. All role changes
// happen under one mutex and only move integer handles, never payload bytes.
package framepool

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCount is the number of buffers a capture stream allocates.
const DefaultCount = 3

const none = -1

var (
	// ErrPoolTooSmall is returned by New for pools that cannot rotate buffers.
	ErrPoolTooSmall = errors.New("frame pool needs at least 2 buffers")
	// ErrPoolExhausted means publish found no buffer to install as the next
	// Fill target. It indicates a broken pool, not backpressure.
	ErrPoolExhausted = errors.New("frame pool exhausted")
	// ErrNotReading is returned when releasing a frame that is not the Read frame.
	ErrNotReading = errors.New("frame is not held for reading")
)

// Roles is a point-in-time copy of the pool's role assignment.
type Roles struct {
	Fill  int   `json:"fill"`
	Read  int   `json:"read"`
	Empty []int `json:"empty"`
	Full  []int `json:"full"`
}

// Pool is a fixed arena of frames rotated between producer and consumer.
type Pool struct {
	mu     sync.Mutex
	frames []Frame
	empty  queue
	full   queue
	fill   int
	read   int
}

// New allocates count frames of capacity bytes each and resets the roles.
func New(count, capacity int) (*Pool, error) {
	if count < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrPoolTooSmall, count)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid frame capacity %d", capacity)
	}

	p := &Pool{
		frames: make([]Frame, count),
		empty:  newQueue(count),
		full:   newQueue(count),
	}
	for i := range p.frames {
		p.frames[i] = Frame{Data: make([]byte, capacity), handle: i}
	}
	p.Reset()
	return p, nil
}

// Len returns the number of frames in the pool.
func (p *Pool) Len() int {
	return len(p.frames)
}

// Capacity returns the byte capacity of each frame.
func (p *Pool) Capacity() int {
	return len(p.frames[0].Data)
}

// Reset returns every frame to Empty and installs the first one as Fill.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.empty.clear()
	p.full.clear()
	for i := range p.frames {
		p.frames[i].reset()
		p.empty.push(i)
	}
	p.read = none
	p.fill, _ = p.empty.pop()
}

// Fill returns the frame the producer is currently writing into.
// Only the producer may touch the returned frame's fields.
func (p *Pool) Fill() *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fill == none {
		return nil
	}
	return &p.frames[p.fill]
}

// Publish moves the Fill frame to the tail of Full and installs a new Fill
// target: the head of Empty if there is one, otherwise the oldest Full frame.
// displaced reports that an unread frame was discarded to make room.
func (p *Pool) Publish() (displaced bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fill == none {
		return false, ErrPoolExhausted
	}
	if !p.full.push(p.fill) {
		return false, fmt.Errorf("%w: full queue overflow", ErrPoolExhausted)
	}
	p.fill = none

	if h, ok := p.empty.pop(); ok {
		p.install(h)
		return false, nil
	}
	if h, ok := p.full.pop(); ok {
		p.install(h)
		return true, nil
	}
	return false, ErrPoolExhausted
}

func (p *Pool) install(h int) {
	p.frames[h].reset()
	p.fill = h
}

// TryAcquireRead moves the oldest Full frame into the Read slot. It returns
// false if a frame is already being read or nothing is ready.
func (p *Pool) TryAcquireRead() (*Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.read != none {
		return nil, false
	}
	h, ok := p.full.pop()
	if !ok {
		return nil, false
	}
	p.read = h
	return &p.frames[h], true
}

// ReleaseRead returns the Read frame to the tail of Empty.
func (p *Pool) ReleaseRead(f *Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f == nil || p.read == none || f.handle != p.read {
		return ErrNotReading
	}
	p.empty.push(p.read)
	p.read = none
	return nil
}

// HasFull reports whether at least one completed frame is waiting.
func (p *Pool) HasFull() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.full.len() > 0
}

// Snapshot copies the current role assignment.
func (p *Pool) Snapshot() Roles {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Roles{
		Fill:  p.fill,
		Read:  p.read,
		Empty: p.empty.snapshot(),
		Full:  p.full.snapshot(),
	}
}
