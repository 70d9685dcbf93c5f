// Package logging provides slog loggers with per-module levels.
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"reassembly": "debug"},
//	})
//	logger := logging.GetLogger("capture")
//
// Records go to stdout (text or json) when it is connected, to the systemd
// journal when its socket is reachable, and always to an in-memory ring
// buffer that backs the /api/logs endpoints. Module levels can be changed at
// runtime with SetModuleLevel.
//
// Journal entries carry SYSLOG_IDENTIFIER=stkcam and one upper-case field
// per attribute, so they can be filtered directly:
//
//	journalctl -t stkcam MODULE=capture
//	journalctl -t stkcam -p warning SESSION_ID=3f0c6a9e
//
// In the service config file module levels sit beside the global ones:
//
//	[logging]
//	level = "info"
//	capture = "debug"
//	http = "warn"
package logging
