package framepool

// Frame is one raw capture buffer. Data always has the pool's full capacity;
// Filled counts the payload bytes written into it, which may exceed the
// expected frame size when overflowing packets were skipped.
type Frame struct {
	Data   []byte
	Filled int
	Errors int
	// Odd records the parity bit carried by 8-byte packet headers.
	Odd bool

	handle int
}

// Handle returns the frame's index in the pool arena.
func (f *Frame) Handle() int {
	return f.handle
}

// Payload returns the bytes written so far, bounded by the buffer capacity.
func (f *Frame) Payload() []byte {
	return f.Data[:min(f.Filled, len(f.Data))]
}

func (f *Frame) reset() {
	f.Filled = 0
	f.Errors = 0
	f.Odd = false
}
