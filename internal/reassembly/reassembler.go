// Package reassembly rebuilds raw sensor frames from isochronous transfer
// completions.
//
// Every packet carries a 4 or 8 byte header. Payload bytes are appended to the
// pool's Fill frame; a header-only 4 byte packet closes the frame. Complete
// frames are published, short or overflowing ones are dropped. The
// reassembler never blocks and never allocates: it is safe to call from the
// transport's completion path.
package reassembly

import (
	"github.com/smazurov/stkcam/internal/framepool"
)

// Pool is the part of the frame pool the producer uses.
type Pool interface {
	Fill() *framepool.Frame
	Publish() (displaced bool, err error)
}

// Observer receives the events a blocked consumer must see.
type Observer interface {
	// FrameBoundary is called once per transfer that closed at least one frame.
	FrameBoundary()
	// TransferFailed is called for every failed transfer.
	TransferFailed(status int)
	// TransferRecovered is called for every successful transfer.
	TransferRecovered()
	// PoolFailed is called when the pool can no longer supply a Fill target.
	PoolFailed(err error)
}

// Reassembler is the producer entry point of a capture stream.
type Reassembler struct {
	pool      Pool
	frameSize int
	counters  *Counters
	observer  Observer
}

// New creates a reassembler that expects frames of frameSize bytes.
func New(pool Pool, frameSize int, counters *Counters, observer Observer) *Reassembler {
	return &Reassembler{
		pool:      pool,
		frameSize: frameSize,
		counters:  counters,
		observer:  observer,
	}
}

// FrameSize returns the number of payload bytes a complete frame carries.
func (r *Reassembler) FrameSize() int {
	return r.frameSize
}

// OnTransferComplete consumes one completed transfer.
func (r *Reassembler) OnTransferComplete(t Transfer) {
	if isUnlinked(t.Status) {
		return
	}
	r.counters.transfers.Add(1)

	if t.Status != StatusOK {
		r.counters.isocErrors.Add(1)
		r.observer.TransferFailed(t.Status)
		return
	}

	fb := r.pool.Fill()
	if fb == nil {
		r.observer.PoolFailed(framepool.ErrPoolExhausted)
		return
	}
	r.observer.TransferRecovered()

	awake := false
	for _, p := range t.Packets {
		r.counters.bytesIn.Add(uint64(len(p.Data)))
		if p.Status != StatusOK {
			r.counters.isocErrors.Add(1)
			continue
		}

		n := len(p.Data)
		if n > HeaderShort {
			r.appendPayload(fb, p.Data)
			continue
		}
		if n != HeaderShort || fb.Filled == 0 {
			continue
		}

		next, ok := r.closeFrame(fb)
		if !ok {
			return
		}
		fb = next
		awake = true
	}

	if awake {
		r.observer.FrameBoundary()
	}
}

func (r *Reassembler) appendPayload(fb *framepool.Frame, data []byte) {
	skip := HeaderShort
	if data[0]&flagLongHeader != 0 {
		skip = HeaderLong
	}
	if len(data) == HeaderLong {
		fb.Odd = data[0]&flagOdd != 0
	}
	if len(data) <= skip {
		return
	}

	payload := data[skip:]
	if fb.Filled+len(payload) > r.frameSize {
		fb.Errors++
	} else {
		copy(fb.Data[fb.Filled:], payload)
	}
	// The offset advances even for skipped payload so that the frame
	// boundary sees an overlong frame.
	fb.Filled += len(payload)
}

// closeFrame ends the current frame and returns the next Fill target.
func (r *Reassembler) closeFrame(fb *framepool.Frame) (*framepool.Frame, bool) {
	if fb.Filled < r.frameSize {
		fb.Errors++
	}

	if fb.Errors == 0 {
		displaced, err := r.pool.Publish()
		if err != nil {
			r.observer.PoolFailed(err)
			return nil, false
		}
		r.counters.framesOK.Add(1)
		if displaced {
			r.counters.dumpedFrames.Add(1)
		}
	} else {
		r.counters.droppedFrames.Add(1)
	}

	next := r.pool.Fill()
	if next == nil {
		r.observer.PoolFailed(framepool.ErrPoolExhausted)
		return nil, false
	}
	next.Filled = 0
	next.Errors = 0
	return next, true
}
