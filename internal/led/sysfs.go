package led

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SysfsRoot is where the kernel exposes LED class devices.
const SysfsRoot = "/sys/class/leds"

// sysfs implements Controller using the Linux LED class interface.
type sysfs struct {
	dir  string
	name string
}

// New returns a controller for the named LED under root, or a no-op
// controller when name is empty or the LED does not exist.
func New(root, name string, logger *slog.Logger) Controller {
	if name == "" {
		return newNoop(logger)
	}
	dir := filepath.Join(root, name)
	if _, err := os.Stat(dir); err != nil {
		logger.Warn("LED not found, using no-op controller", "led", name, "path", dir)
		return newNoop(logger)
	}
	logger.Info("Using sysfs LED", "led", name, "path", dir)
	return &sysfs{dir: dir, name: name}
}

func (s *sysfs) Name() string { return s.name }

// Set maps a pattern onto the trigger and brightness attributes.
func (s *sysfs) Set(pattern string) error {
	var trigger, brightness string
	switch pattern {
	case PatternSolid:
		trigger, brightness = "none", "1"
	case PatternBlink:
		trigger, brightness = "heartbeat", "1"
	case PatternOff:
		trigger, brightness = "none", "0"
	default:
		return fmt.Errorf("unknown LED pattern %q", pattern)
	}

	if err := os.WriteFile(filepath.Join(s.dir, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("failed to set LED trigger: %w", err)
	}
	// The heartbeat trigger owns brightness.
	if pattern == PatternBlink {
		return nil
	}
	if err := os.WriteFile(filepath.Join(s.dir, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}
