package led

import "log/slog"

// noop stands in when no LED is configured.
type noop struct {
	logger *slog.Logger
}

func newNoop(logger *slog.Logger) *noop {
	return &noop{logger: logger}
}

func (n *noop) Set(pattern string) error {
	n.logger.Debug("LED control not available (no-op)", "pattern", pattern)
	return nil
}

func (n *noop) Name() string { return "" }
