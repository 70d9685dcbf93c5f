package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/stkcam/internal/api/models"
	"github.com/smazurov/stkcam/internal/capture"
	"github.com/smazurov/stkcam/internal/config"
)

// registerStreamRoutes registers the stream control endpoints
func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/stream",
		Summary:     "Stream Status",
		Description: "Get the stream state, parameters and counters",
		Tags:        []string{"stream"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.StreamStatusResponse, error) {
		st := s.capture.Status()
		data := models.StreamStatusData{
			Running:   st.Running,
			SessionID: st.SessionID,
			Sensor:    s.options.Sensor.String(),
			Params:    paramsToAPI(st.Params),
			Counters:  countersToAPI(st.Counters),
			Ready:     s.capture.PollReady(),
		}
		if st.Err != nil {
			data.Error = st.Err.Error()
		}
		return &models.StreamStatusResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "configure-stream",
		Method:      http.MethodPut,
		Path:        "/api/stream/config",
		Summary:     "Configure Stream",
		Description: "Change resolution, view, format, flips or brightness. Fails while streaming.",
		Tags:        []string{"stream"},
		Errors:      []int{400, 401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.StreamConfigRequest) (*models.StreamParamsResponse, error) {
		p, err := mergeParams(s.capture.Status().Params, input.Body, s.options)
		if err != nil {
			return nil, s.mapCaptureError(err)
		}
		if err := s.capture.Configure(p); err != nil {
			return nil, s.mapCaptureError(err)
		}
		if input.Body.Persist {
			if s.options.StreamFile == "" {
				return nil, huma.Error400BadRequest("No stream file configured to persist to")
			}
			if err := config.SaveStreamFile(s.options.StreamFile, p); err != nil {
				s.logger.Error("Failed to persist stream config", "path", s.options.StreamFile, "error", err)
				return nil, huma.Error500InternalServerError("Failed to persist stream config", err)
			}
		}
		return &models.StreamParamsResponse{Body: paramsToAPI(s.capture.Status().Params)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reload-stream",
		Method:      http.MethodPost,
		Path:        "/api/stream/reload",
		Summary:     "Reload Stream File",
		Description: "Re-read the stream parameters file and apply it, restarting a running stream",
		Tags:        []string{"stream"},
		Errors:      []int{400, 401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.StreamParamsResponse, error) {
		if s.options.ReloadStream == nil {
			return nil, huma.Error400BadRequest("No stream file configured to reload from")
		}
		if err := s.options.ReloadStream(); err != nil {
			return nil, s.mapCaptureError(err)
		}
		return &models.StreamParamsResponse{Body: paramsToAPI(s.capture.Status().Params)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-stream",
		Method:      http.MethodPost,
		Path:        "/api/stream/start",
		Summary:     "Start Stream",
		Description: "Start capturing with the configured parameters",
		Tags:        []string{"stream"},
		Errors:      []int{400, 401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.StreamStatusResponse, error) {
		if err := s.capture.Start(ctx, s.capture.Status().Params); err != nil {
			return nil, s.mapCaptureError(err)
		}
		st := s.capture.Status()
		return &models.StreamStatusResponse{Body: models.StreamStatusData{
			Running:   st.Running,
			SessionID: st.SessionID,
			Sensor:    s.options.Sensor.String(),
			Params:    paramsToAPI(st.Params),
			Counters:  countersToAPI(st.Counters),
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-stream",
		Method:      http.MethodPost,
		Path:        "/api/stream/stop",
		Summary:     "Stop Stream",
		Description: "Stop capturing and wake waiting consumers",
		Tags:        []string{"stream"},
		Errors:      []int{401, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.CountersResponse, error) {
		if err := s.capture.Stop(); err != nil {
			return nil, s.mapCaptureError(err)
		}
		return &models.CountersResponse{Body: countersToAPI(s.capture.Status().Counters)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stream-ready",
		Method:      http.MethodGet,
		Path:        "/api/stream/ready",
		Summary:     "Poll Ready",
		Description: "Report whether a frame pull would return without blocking",
		Tags:        []string{"stream"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.ReadyResponse, error) {
		return &models.ReadyResponse{Body: models.ReadyData{Ready: s.capture.PollReady()}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stream-counters",
		Method:      http.MethodGet,
		Path:        "/api/stream/counters",
		Summary:     "Counters",
		Description: "Get the stream counters",
		Tags:        []string{"stream"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.CountersResponse, error) {
		return &models.CountersResponse{Body: countersToAPI(s.capture.Status().Counters)}, nil
	})
}

// mergeParams applies a partial update on top of the current parameters.
func mergeParams(cur capture.Params, in models.StreamConfigData, opts *Options) (capture.Params, error) {
	section := config.StreamSectionFor(cur)
	switch {
	case in.Resolution != "":
		section.Resolution = in.Resolution
		section.View = ""
	case in.Width > 0 || in.Height > 0:
		section.Resolution = ""
		section.View = ""
		section.Width = in.Width
		section.Height = in.Height
	}
	if in.View != "" {
		section.View = in.View
	}
	if in.Format != "" {
		section.Format = in.Format
	}
	if in.HFlip != nil {
		section.HFlip = *in.HFlip
	}
	if in.VFlip != nil {
		section.VFlip = *in.VFlip
	}
	if in.Brightness != nil {
		b := int(*in.Brightness)
		section.Brightness = &b
	}
	return section.Params(opts.Sensor)
}

// mapCaptureError converts capture errors to HTTP errors
func (s *Server) mapCaptureError(err error) error {
	code := capture.Code(err)
	if code == "" && errors.Is(err, capture.ErrInvalidParams) {
		code = capture.ErrCodeInvalidParams
	}

	switch code {
	case capture.ErrCodeInvalidParams, capture.ErrCodeInvalidSlot:
		return huma.Error400BadRequest(err.Error())
	case capture.ErrCodeStreaming, capture.ErrCodeNotStreaming, capture.ErrCodeBusy:
		return huma.Error409Conflict(err.Error())
	case capture.ErrCodeInterrupted:
		return huma.NewError(http.StatusGatewayTimeout, err.Error())
	case capture.ErrCodeClosed, capture.ErrCodeSourceEnded:
		return huma.Error503ServiceUnavailable(err.Error())
	case capture.ErrCodeTransport:
		return huma.NewError(http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("Unexpected capture error", "error", err)
		return huma.Error500InternalServerError("Internal capture error", err)
	}
}

func paramsToAPI(p capture.Params) models.StreamParamsData {
	return models.StreamParamsData{
		Resolution: p.Resolution.String(),
		View:       p.View.String(),
		Format:     p.Format.String(),
		HFlip:      p.HFlip,
		VFlip:      p.VFlip,
		Brightness: p.Brightness,
		ImageBytes: p.ImageSize(),
	}
}

func countersToAPI(c capture.CountersSnapshot) models.CountersData {
	return models.CountersData{
		IsocErrors:      c.IsocErrors,
		DroppedFrames:   c.DroppedFrames,
		DumpedFrames:    c.DumpedFrames,
		PublishedFrames: c.PublishedFrames,
		Transfers:       c.Transfers,
		Bytes:           c.Bytes,
	}
}
