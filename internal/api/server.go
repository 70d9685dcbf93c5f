package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/stkcam/internal/api/models"
	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/capture"
	"github.com/smazurov/stkcam/internal/events"
	"github.com/smazurov/stkcam/internal/logging"
	"github.com/smazurov/stkcam/internal/version"
)

const authRealm = `Basic realm="stkcam API"`

var (
	errAuthRequired = errors.New("authentication required")
	errAuthType     = errors.New("invalid authentication type")
	errAuthFormat   = errors.New("invalid credentials format")
	errAuthInvalid  = errors.New("invalid credentials")
)

// Capture is the part of the capture orchestrator the API drives.
type Capture interface {
	Start(ctx context.Context, p capture.Params) error
	Stop() error
	Configure(p capture.Params) error
	Status() capture.Status
	PollReady() bool
	PullNext(ctx context.Context) (slot, n int, err error)
	Slot(i int) ([]byte, error)
}

// Server represents the Huma v2 API server
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	capture    Capture
	eventBus   *events.Bus
	frames     *FrameHub
	ws         *wsHub
	options    *Options
	logger     *slog.Logger
}

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Capture           Capture
	Sensor            bayer.Sensor
	EventBus          *events.Bus
	StreamFile        string        // where persisted stream configs are written; empty disables persist
	ReloadStream      func() error  // re-reads StreamFile and applies it; nil disables reload
	FramePullTimeout  time.Duration // per-pull wait of the frame hub
	PrometheusHandler http.Handler  // Optional Prometheus metrics handler
}

// checkCredentials validates a Basic Authorization header, or the base64
// "auth" query value used by SSE and websocket clients.
func checkCredentials(authHeader, queryAuth, username, password string) error {
	var encoded string
	switch {
	case authHeader != "":
		const prefix = "Basic "
		if !strings.HasPrefix(authHeader, prefix) {
			return errAuthType
		}
		encoded = authHeader[len(prefix):]
	case queryAuth != "":
		encoded = queryAuth
	default:
		return errAuthRequired
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errAuthFormat
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return errAuthFormat
	}
	if user != username || pass != password {
		return errAuthInvalid
	}
	return nil
}

// basicAuthMiddleware creates middleware for HTTP basic authentication
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Skip auth for operations without security requirements
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		if err := checkCredentials(ctx.Header("Authorization"), ctx.Query("auth"), username, password); err != nil {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Unauthorized", err)
			return
		}

		next(ctx)
	}
}

func (s *Server) authEnabled() bool {
	return s.options.AuthUsername != "" && s.options.AuthPassword != ""
}

// NewServer creates a new API server with Huma v2 using Go 1.22+ native routing
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	// Configure CORS
	corsConfig := DefaultCORSConfig()

	// Add CORS preflight handler for all OPTIONS requests
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("stkcam API", "1.0.0")
	config.Info.Description = "Control and frame delivery for stk11xx bayer webcams"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}

	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	logger := logging.GetLogger("api")
	server := &Server{
		api:      api,
		mux:      mux,
		capture:  opts.Capture,
		eventBus: opts.EventBus,
		options:  opts,
		logger:   logger,
	}
	server.frames = NewFrameHub(opts.Capture, opts.FramePullTimeout, logger)
	server.ws = newWSHub(server.frames, opts.Capture, logger)

	// Apply CORS middleware first (before auth)
	api.UseMiddleware(NewCORSMiddleware(corsConfig))

	// Apply HTTP logging middleware after CORS but before auth
	api.UseMiddleware(HTTPLoggingMiddleware)

	if server.authEnabled() {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// No auth on metrics, same as health.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	mux.HandleFunc("GET /ws/frames", server.handleFramesWS)

	server.registerRoutes()

	return server
}

// Start starts the HTTP server on the specified address
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting stkcam API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Stop closes websocket clients, the frame pump and the listener.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	s.ws.closeAll()
	s.frames.Close()

	// Force immediate shutdown - don't wait for connections
	if s.httpServer != nil {
		return s.httpServer.Close()
	}

	return nil
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	// Health check endpoint - no auth required
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	// Version endpoint - no auth required
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Name:      info.Name,
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerStreamRoutes()
	s.registerFrameRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
