package reassembly

import "sync/atomic"

// Counters accumulates stream anomalies. The producer updates them without
// locks; readers take a Snapshot.
type Counters struct {
	isocErrors    atomic.Uint64
	droppedFrames atomic.Uint64
	dumpedFrames  atomic.Uint64
	framesOK      atomic.Uint64
	bytesIn       atomic.Uint64
	transfers     atomic.Uint64
}

// CounterSnapshot is a consistent-enough copy of Counters for reporting.
type CounterSnapshot struct {
	IsocErrors      uint64 `json:"isoc_errors" doc:"Failed transfers and failed packets"`
	DroppedFrames   uint64 `json:"dropped_frames" doc:"Frames discarded because they were short or overflowed"`
	DumpedFrames    uint64 `json:"dumped_frames" doc:"Unread frames discarded to make room for new capture"`
	PublishedFrames uint64 `json:"published_frames" doc:"Frames handed to the consumer side"`
	Transfers       uint64 `json:"transfers" doc:"Transfer completions seen"`
	Bytes           uint64 `json:"bytes" doc:"Bytes received, headers included"`
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.isocErrors.Store(0)
	c.droppedFrames.Store(0)
	c.dumpedFrames.Store(0)
	c.framesOK.Store(0)
	c.bytesIn.Store(0)
	c.transfers.Store(0)
}

// Snapshot copies the counters.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		IsocErrors:      c.isocErrors.Load(),
		DroppedFrames:   c.droppedFrames.Load(),
		DumpedFrames:    c.dumpedFrames.Load(),
		PublishedFrames: c.framesOK.Load(),
		Transfers:       c.transfers.Load(),
		Bytes:           c.bytesIn.Load(),
	}
}
