package api

import (
	"context"
	"maps"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/stkcam/internal/events"
	"github.com/smazurov/stkcam/internal/metrics/exporters"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream state, configuration, counter and error events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"stream-state-changed": events.StreamStateChangedEvent{},
			"stream-configured":    events.StreamConfiguredEvent{},
			"counters":             events.CountersEvent{},
			"stream-error":         events.StreamErrorEvent{},
			"params-reloaded":      events.ParamsReloadedEvent{},
		}

		maps.Copy(eventTypes, exporters.GetEventTypes())

		return eventTypes
	}(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StreamStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamConfiguredEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CountersEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ParamsReloadedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamRatesEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// The current state doubles as the connection confirmation.
		st := s.capture.Status()
		if err := send.Data(events.StreamStateChangedEvent{
			SessionID:  st.SessionID,
			Running:    st.Running,
			Resolution: st.Params.Resolution.String(),
			Format:     st.Params.Format.String(),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
