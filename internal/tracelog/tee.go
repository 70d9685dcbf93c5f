package tracelog

import (
	"log/slog"
	"sync/atomic"

	"github.com/smazurov/stkcam/internal/reassembly"
)

// Tee records every transfer before forwarding it to next. Recording errors
// are logged once and never reach the producer.
type Tee struct {
	next   reassembly.Sink
	w      *Writer
	logger *slog.Logger
	failed atomic.Bool
}

// NewTee wraps next with a recorder. A nil logger uses slog.Default.
func NewTee(next reassembly.Sink, w *Writer, logger *slog.Logger) *Tee {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tee{next: next, w: w, logger: logger}
}

// OnTransferComplete implements reassembly.Sink.
func (t *Tee) OnTransferComplete(tr reassembly.Transfer) {
	if !t.failed.Load() {
		if err := t.w.Record(tr); err != nil && t.failed.CompareAndSwap(false, true) {
			t.logger.Error("Trace recording stopped", "error", err)
		}
	}
	t.next.OnTransferComplete(tr)
}
