package capture

import (
	"context"
	"time"

	"github.com/smazurov/stkcam/internal/events"
)

// statsLoop logs counter deltas and publishes snapshots. The producer never
// logs, so this is where stream anomalies become visible.
func (o *Orchestrator) statsLoop(ctx context.Context, run *session) {
	defer run.wg.Done()

	ticker := time.NewTicker(o.opts.StatsInterval)
	defer ticker.Stop()

	var last CountersSnapshot
	var lastErrSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur := o.counters.Snapshot()
		o.reportDeltas(run, last, cur)
		last = cur

		if seq := run.state.errSeq.Load(); seq != lastErrSeq {
			lastErrSeq = seq
			o.reportError(run)
		}

		o.opts.Events.Publish(events.CountersEvent{
			SessionID:       run.id,
			IsocErrors:      cur.IsocErrors,
			DroppedFrames:   cur.DroppedFrames,
			DumpedFrames:    cur.DumpedFrames,
			PublishedFrames: cur.PublishedFrames,
			Transfers:       cur.Transfers,
			Bytes:           cur.Bytes,
			FullFrames:      len(run.pool.Snapshot().Full),
			Timestamp:       time.Now().Format(time.RFC3339),
		})
	}
}

func (o *Orchestrator) reportDeltas(run *session, last, cur CountersSnapshot) {
	isoc := cur.IsocErrors - last.IsocErrors
	dropped := cur.DroppedFrames - last.DroppedFrames
	dumped := cur.DumpedFrames - last.DumpedFrames

	if isoc > 0 || dropped > 0 {
		o.logger.Warn("Stream defects",
			"session", run.id,
			"isoc_errors", isoc,
			"dropped_frames", dropped)
	}
	if dumped > 0 {
		// Expected under backpressure, so only visible at debug level.
		o.logger.Debug("Unread frames dumped", "session", run.id, "dumped_frames", dumped)
	}
}

func (o *Orchestrator) reportError(run *session) {
	err := run.state.Err()
	if err == nil {
		run.state.mu.Lock()
		err = run.state.sourceErr
		run.state.mu.Unlock()
	}
	if err == nil {
		return
	}

	o.logger.Warn("Stream error", "session", run.id, "error", err)
	o.opts.Events.Publish(events.StreamErrorEvent{
		SessionID: run.id,
		Code:      Code(err),
		Message:   err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
