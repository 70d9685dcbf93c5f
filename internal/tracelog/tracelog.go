// Package tracelog records transfer completions to a file and plays them
// back. A trace starts with an 8 byte magic followed by length-prefixed
// records: 8 bytes little-endian unix nanoseconds, 4 bytes little-endian
// payload size, then the CBOR payload. The first record is the Header.
package tracelog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/reassembly"
)

// Magic identifies trace files.
const Magic = "STKTRC01"

// Version is the current header version.
const Version = 1

const maxRecordSize = 64 << 20

// ErrBadMagic is returned when a file is not a trace.
var ErrBadMagic = errors.New("not a transfer trace")

// Header describes the capture a trace was recorded from.
type Header struct {
	Version   int        `cbor:"1,keyasint" json:"version"`
	Sensor    bayer.Size `cbor:"2,keyasint" json:"sensor"`
	SessionID string     `cbor:"3,keyasint,omitempty" json:"session_id,omitempty"`
	Source    string     `cbor:"4,keyasint,omitempty" json:"source,omitempty"`
	Created   int64      `cbor:"5,keyasint" json:"created"`
}

// Record is one recorded transfer completion.
type Record struct {
	Time     time.Time
	Transfer reassembly.Transfer
}

// Writer appends records to a trace.
type Writer struct {
	mu     sync.Mutex
	closer io.Closer
	w      *bufio.Writer
	count  int
}

// Create creates a trace file at path.
func Create(path string, hdr Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, hdr)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes the magic and header to w.
func NewWriter(w io.Writer, hdr Header) (*Writer, error) {
	if hdr.Version == 0 {
		hdr.Version = Version
	}
	if hdr.Created == 0 {
		hdr.Created = time.Now().Unix()
	}

	tw := &Writer{w: bufio.NewWriterSize(w, 1024*1024)}
	if _, err := tw.w.WriteString(Magic); err != nil {
		return nil, err
	}
	payload, err := cbor.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("encode trace header: %w", err)
	}
	if err := tw.writeRecord(time.Now(), payload); err != nil {
		return nil, err
	}
	if err := tw.w.Flush(); err != nil {
		return nil, err
	}
	return tw, nil
}

// Record appends one transfer.
func (w *Writer) Record(t reassembly.Transfer) error {
	payload, err := cbor.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return fmt.Errorf("trace writer is closed")
	}
	if err := w.writeRecord(time.Now(), payload); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of transfers recorded.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *Writer) writeRecord(ts time.Time, payload []byte) error {
	var meta [12]byte
	binary.LittleEndian.PutUint64(meta[:8], uint64(ts.UnixNano()))
	binary.LittleEndian.PutUint32(meta[8:12], uint32(len(payload)))
	if _, err := w.w.Write(meta[:]); err != nil {
		return err
	}
	_, err := w.w.Write(payload)
	return err
}

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	return w.w.Flush()
}

// Close flushes the trace and closes the file if the writer owns one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	err := w.w.Flush()
	w.w = nil
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader reads records from a trace.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	header Header
}

// Open opens the trace at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader checks the magic and decodes the header.
func NewReader(r io.Reader) (*Reader, error) {
	tr := &Reader{r: bufio.NewReaderSize(r, 1024*1024)}

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(tr.r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, string(magic))
	}

	_, payload, err := tr.readRecord()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := cbor.Unmarshal(payload, &tr.header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if tr.header.Version != Version {
		return nil, fmt.Errorf("unsupported trace version %d", tr.header.Version)
	}
	return tr, nil
}

// Header returns the trace header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	ts, payload, err := r.readRecord()
	if err != nil {
		return Record{}, err
	}
	var t reassembly.Transfer
	if err := cbor.Unmarshal(payload, &t); err != nil {
		return Record{}, fmt.Errorf("decode transfer: %w", err)
	}
	return Record{Time: time.Unix(0, ts), Transfer: t}, nil
}

func (r *Reader) readRecord() (int64, []byte, error) {
	var meta [12]byte
	if _, err := io.ReadFull(r.r, meta[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, fmt.Errorf("truncated record header: %w", err)
		}
		return 0, nil, err
	}
	ts := int64(binary.LittleEndian.Uint64(meta[:8]))
	size := binary.LittleEndian.Uint32(meta[8:12])
	if size > maxRecordSize {
		return 0, nil, fmt.Errorf("record of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return 0, nil, fmt.Errorf("read payload: %w", err)
	}
	return ts, payload, nil
}

// Close closes the file if the reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
