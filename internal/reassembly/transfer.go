package reassembly

import "fmt"

// Completion status codes, errno style. Zero means success.
const (
	StatusOK            = 0
	StatusUnlinked      = -2   // cancelled during teardown
	StatusBufferOverrun = -63  // host controller ran out of buffer space
	StatusProtocol      = -71  // bit-stuff error
	StatusOverflow      = -75  // babble
	StatusCRC           = -84  // CRC or timeout, could be anything
	StatusReset         = -104 // unlinked asynchronously
	StatusTimeout       = -110 // device did not answer
	StatusStall         = -32  // endpoint stalled
)

// Packet headers.
const (
	HeaderShort = 4
	HeaderLong  = 8

	flagLongHeader = 0x80
	flagOdd        = 0x40
)

// Packet is one isochronous packet of a completed transfer. Data holds the
// bytes actually received, header included.
type Packet struct {
	Status int    `cbor:"1,keyasint" json:"status"`
	Data   []byte `cbor:"2,keyasint" json:"data"`
}

// Transfer is one completed transfer as delivered by the transport.
type Transfer struct {
	Status  int      `cbor:"1,keyasint" json:"status"`
	Packets []Packet `cbor:"2,keyasint" json:"packets"`
}

// Bytes returns the total number of bytes received across all packets.
func (t Transfer) Bytes() int {
	n := 0
	for _, p := range t.Packets {
		n += len(p.Data)
	}
	return n
}

// IsEndMarker reports whether the packet is the header-only marker that
// closes a frame.
func (p Packet) IsEndMarker() bool {
	return p.Status == StatusOK && len(p.Data) == HeaderShort
}

// StatusText describes a completion status.
func StatusText(status int) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusUnlinked, StatusReset:
		return "unlinked"
	case StatusBufferOverrun:
		return "buffer error (overrun)"
	case StatusStall:
		return "stalled (device not responding)"
	case StatusOverflow:
		return "babble (bad cable?)"
	case StatusProtocol:
		return "bit-stuff error (bad cable?)"
	case StatusCRC:
		return "CRC/timeout (could be anything)"
	case StatusTimeout:
		return "NAK (device does not respond)"
	default:
		return fmt.Sprintf("unknown status %d", status)
	}
}

func isUnlinked(status int) bool {
	return status == StatusUnlinked || status == StatusReset
}

// Sink consumes transfer completions. Reassembler is the production sink;
// recorders wrap it.
type Sink interface {
	OnTransferComplete(t Transfer)
}
