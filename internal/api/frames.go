package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/smazurov/stkcam/internal/api/models"
	"github.com/smazurov/stkcam/internal/capture"
)

const (
	defaultPullTimeout = time.Second
	pullBackoff        = 200 * time.Millisecond
	subscriberBuffer   = 2
)

// Frame is one converted image copied out of an output slot.
type Frame struct {
	Seq       uint64
	SessionID string
	Width     int
	Height    int
	Format    string
	Data      []byte
	Time      time.Time
}

// FrameHub is the single consumer of the capture stream. It pulls while at
// least one subscriber exists and fans copies out to every subscriber, so
// HTTP and websocket readers never contend for the pull lock.
type FrameHub struct {
	source      Capture
	pullTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	subs   map[string]chan Frame
	cancel context.CancelFunc
	seq    uint64
	closed bool
}

// NewFrameHub creates an idle hub over source.
func NewFrameHub(source Capture, pullTimeout time.Duration, logger *slog.Logger) *FrameHub {
	if pullTimeout <= 0 {
		pullTimeout = defaultPullTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameHub{
		source:      source,
		pullTimeout: pullTimeout,
		logger:      logger,
		subs:        make(map[string]chan Frame),
	}
}

// Subscribe registers a receiver and starts pulling if it is the first.
// Slow receivers miss frames rather than stall the pump.
func (h *FrameHub) Subscribe() (string, <-chan Frame) {
	id := uuid.NewString()
	ch := make(chan Frame, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subs[id] = ch
	if h.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		go h.pump(ctx)
	}
	return id, ch
}

// Unsubscribe removes a receiver. The pump stops with the last one.
func (h *FrameHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; !ok {
		return
	}
	delete(h.subs, id)
	if len(h.subs) == 0 && h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// Subscribers returns the number of registered receivers.
func (h *FrameHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops the pump and closes every subscriber channel.
func (h *FrameHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *FrameHub) pump(ctx context.Context) {
	h.logger.Debug("Frame pump started")
	defer h.logger.Debug("Frame pump stopped")

	for ctx.Err() == nil {
		pullCtx, cancel := context.WithTimeout(ctx, h.pullTimeout)
		slot, n, err := h.source.PullNext(pullCtx)
		cancel()
		if err != nil {
			if errors.Is(err, capture.ErrInterrupted) {
				continue
			}
			h.logger.Debug("Frame pull failed", "code", capture.Code(err), "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(pullBackoff):
			}
			continue
		}

		data, err := h.source.Slot(slot)
		if err != nil || n > len(data) {
			h.logger.Warn("Frame slot unavailable", "slot", slot, "error", err)
			continue
		}
		st := h.source.Status()
		h.broadcast(Frame{
			SessionID: st.SessionID,
			Width:     st.Params.View.W,
			Height:    st.Params.View.H,
			Format:    st.Params.Format.String(),
			Data:      append([]byte(nil), data[:n]...),
			Time:      time.Now(),
		})
	}
}

func (h *FrameHub) broadcast(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	f.Seq = h.seq
	for _, ch := range h.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

// registerFrameRoutes registers the single-frame endpoint.
func (s *Server) registerFrameRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-frame",
		Method:      http.MethodGet,
		Path:        "/api/stream/frame",
		Summary:     "Get Frame",
		Description: "Wait for the next converted frame and return its raw bytes",
		Tags:        []string{"stream"},
		Errors:      []int{401, 409, 502, 503, 504},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.FrameRequest) (*models.FrameResponse, error) {
		if !s.capture.Status().Running {
			return nil, huma.Error409Conflict("stream not running")
		}

		id, frames := s.frames.Subscribe()
		defer s.frames.Unsubscribe(id)

		timer := time.NewTimer(time.Duration(input.TimeoutMs) * time.Millisecond)
		defer timer.Stop()

		select {
		case f, ok := <-frames:
			if !ok {
				return nil, huma.Error503ServiceUnavailable("server shutting down")
			}
			return &models.FrameResponse{
				ContentType: "application/octet-stream",
				Seq:         strconv.FormatUint(f.Seq, 10),
				Width:       strconv.Itoa(f.Width),
				Height:      strconv.Itoa(f.Height),
				Format:      f.Format,
				Body:        f.Data,
			}, nil
		case <-timer.C:
			if err := s.capture.Status().Err; err != nil {
				return nil, s.mapCaptureError(err)
			}
			return nil, huma.NewError(http.StatusGatewayTimeout, "no frame within timeout")
		case <-ctx.Done():
			return nil, huma.NewError(http.StatusGatewayTimeout, "request cancelled")
		}
	})
}
