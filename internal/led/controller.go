// Package led drives a status LED that mirrors the capture state: solid
// while streaming, heartbeat after a stream error, off when idle.
package led

// Patterns understood by Controller.Set.
const (
	PatternOff   = "off"
	PatternSolid = "solid"
	PatternBlink = "blink"
)

// Controller sets the indicator LED.
type Controller interface {
	Set(pattern string) error
	Name() string
}
