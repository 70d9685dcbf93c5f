package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/smazurov/stkcam/internal/framepool"
	"github.com/smazurov/stkcam/internal/reassembly"
)

// StreamState is the per-stream condition the consumer waits on. The
// reassembler reports into it through the reassembly.Observer methods.
//
// Lock order: StreamState.mu before the pool mutex. The producer never holds
// the pool mutex while calling into StreamState.
type StreamState struct {
	mu   sync.Mutex
	cond *sync.Cond

	transportErr error // cleared by the next good transfer
	fatalErr     error // kept until restart
	sourceErr    error // source stopped delivering
	closed       bool

	failing atomic.Bool
	errSeq  atomic.Uint64
}

var _ reassembly.Observer = (*StreamState)(nil)

func newStreamState() *StreamState {
	s := &StreamState{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// FrameBoundary implements reassembly.Observer.
func (s *StreamState) FrameBoundary() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// TransferFailed implements reassembly.Observer.
func (s *StreamState) TransferFailed(status int) {
	s.mu.Lock()
	s.transportErr = newError(ErrCodeTransport, reassembly.StatusText(status), ErrTransport)
	s.failing.Store(true)
	s.errSeq.Add(1)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// TransferRecovered implements reassembly.Observer.
func (s *StreamState) TransferRecovered() {
	if !s.failing.Load() {
		return
	}
	s.mu.Lock()
	s.transportErr = nil
	s.failing.Store(false)
	s.mu.Unlock()
}

// PoolFailed implements reassembly.Observer.
func (s *StreamState) PoolFailed(err error) {
	s.mu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = newError(ErrCodeInternal, "frame pool invariant violated", fmt.Errorf("%w: %w", ErrInternal, err))
		s.errSeq.Add(1)
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *StreamState) sourceEnded(err error) {
	s.mu.Lock()
	if s.sourceErr == nil {
		s.sourceErr = err
		s.errSeq.Add(1)
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *StreamState) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *StreamState) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Err returns the error a consumer would currently observe, if any.
func (s *StreamState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errLocked()
}

func (s *StreamState) errLocked() error {
	switch {
	case s.closed:
		return newError(ErrCodeClosed, "stream closed", ErrStreamClosed)
	case s.fatalErr != nil:
		return s.fatalErr
	case s.transportErr != nil:
		return s.transportErr
	}
	return nil
}

// ready reports whether a wait would return immediately.
func (s *StreamState) ready(pool *framepool.Pool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errLocked() != nil || s.sourceErr != nil || pool.HasFull()
}

// waitFrame blocks until a Full frame can be taken into Read or an error is
// recorded. Errors win over waiting frames, except a finished source, which
// only surfaces once the queued frames are drained.
func (s *StreamState) waitFrame(ctx context.Context, pool *framepool.Pool) (*framepool.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if err := s.errLocked(); err != nil {
			return nil, err
		}
		if f, ok := pool.TryAcquireRead(); ok {
			return f, nil
		}
		if s.sourceErr != nil {
			return nil, s.sourceErr
		}
		if err := ctx.Err(); err != nil {
			return nil, newError(ErrCodeInterrupted, "wait for frame interrupted", fmt.Errorf("%w: %w", ErrInterrupted, err))
		}
		s.cond.Wait()
	}
}
