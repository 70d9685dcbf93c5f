// Package source provides transfer sources that stand in for the USB
// isochronous endpoint: a synthetic sensor and a trace replayer. Both drive
// a reassembly.Sink from their own goroutine and never wait on the consumer.
package source

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/reassembly"
)

// Defaults follow the camera's isochronous setup: 3 KiB packets, ten
// packets per transfer.
const (
	DefaultPacketSize         = 3 * 1024
	DefaultPacketsPerTransfer = 10
	DefaultFPS                = 15
)

// SyntheticOptions tune the synthetic sensor.
type SyntheticOptions struct {
	FPS                int // 0 runs unpaced
	Frames             int // 0 runs until cancelled
	PacketSize         int // bytes per packet, header included
	PacketsPerTransfer int
	PacketErrorRate    float64 // probability a packet completes with an error
	TransferErrorRate  float64 // probability a whole transfer fails
	Seed               uint64
}

// Synthetic renders a moving colour-bar mosaic and packetises it the way
// the camera does: an 8 byte header-only packet carrying the parity bit,
// 4 byte headers on data packets, and a 4 byte end marker.
type Synthetic struct {
	opts SyntheticOptions
}

// NewSynthetic creates a synthetic sensor, filling in defaults.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	if opts.PacketSize <= reassembly.HeaderLong {
		opts.PacketSize = DefaultPacketSize
	}
	if opts.PacketsPerTransfer <= 0 {
		opts.PacketsPerTransfer = DefaultPacketsPerTransfer
	}
	return &Synthetic{opts: opts}
}

// Run implements capture.Source.
func (s *Synthetic) Run(ctx context.Context, sensor bayer.Size, sink reassembly.Sink) error {
	rng := rand.New(rand.NewPCG(s.opts.Seed, s.opts.Seed^0x5bd1e995))
	raw := make([]byte, sensor.Pixels())

	var tick <-chan time.Time
	if s.opts.FPS > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(s.opts.FPS))
		defer ticker.Stop()
		tick = ticker.C
	}

	p := &packetizer{
		sink:     sink,
		rng:      rng,
		opts:     &s.opts,
		transfer: make([]reassembly.Packet, 0, s.opts.PacketsPerTransfer),
	}
	for frame := 0; s.opts.Frames == 0 || frame < s.opts.Frames; frame++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		RenderBars(raw, sensor, frame)
		p.frame(raw, frame%2 == 1)

		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
	}
	p.flush()
	return nil
}

type packetizer struct {
	sink     reassembly.Sink
	rng      *rand.Rand
	opts     *SyntheticOptions
	transfer []reassembly.Packet
	seq      byte
}

func (p *packetizer) frame(raw []byte, odd bool) {
	start := []byte{0x80, p.seq, 0, 0, 0, 0, 0, 0}
	if odd {
		start[0] |= 0x40
	}
	p.add(start)

	chunk := p.opts.PacketSize - reassembly.HeaderShort
	for off := 0; off < len(raw); off += chunk {
		end := min(off+chunk, len(raw))
		data := make([]byte, reassembly.HeaderShort+end-off)
		data[1] = p.seq
		copy(data[reassembly.HeaderShort:], raw[off:end])
		p.add(data)
	}
	p.add([]byte{0, p.seq, 0, 0})
	p.flush()
}

func (p *packetizer) add(data []byte) {
	p.seq = (p.seq + 1) & 0x3f
	pkt := reassembly.Packet{Data: data}
	if p.opts.PacketErrorRate > 0 && p.rng.Float64() < p.opts.PacketErrorRate {
		pkt.Status = reassembly.StatusCRC
	}
	p.transfer = append(p.transfer, pkt)
	if len(p.transfer) == p.opts.PacketsPerTransfer {
		p.flush()
	}
}

func (p *packetizer) flush() {
	if len(p.transfer) == 0 {
		return
	}
	t := reassembly.Transfer{Packets: p.transfer}
	if p.opts.TransferErrorRate > 0 && p.rng.Float64() < p.opts.TransferErrorRate {
		t.Status = reassembly.StatusOverflow
	}
	p.sink.OnTransferComplete(t)
	p.transfer = make([]reassembly.Packet, 0, p.opts.PacketsPerTransfer)
}
