package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/stkcam/internal/events"
)

// Indicator subscribes to stream events and keeps the LED in step.
type Indicator struct {
	controller Controller
	eventBus   *events.Bus
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	failed  bool
	pattern string
	unsubs  []func()
}

// NewIndicator creates an indicator; call Start to begin listening.
func NewIndicator(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Indicator {
	return &Indicator{controller: controller, eventBus: eventBus, logger: logger}
}

// Start switches the LED off and subscribes to state and error events.
func (i *Indicator) Start() {
	i.mu.Lock()
	i.apply()
	i.unsubs = append(i.unsubs,
		i.eventBus.Subscribe(i.onState),
		i.eventBus.Subscribe(i.onError),
	)
	i.mu.Unlock()
	i.logger.Info("LED indicator started", "led", i.controller.Name())
}

// Stop unsubscribes and turns the LED off.
func (i *Indicator) Stop() {
	i.mu.Lock()
	unsubs := i.unsubs
	i.unsubs = nil
	i.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.running, i.failed = false, false
	i.apply()
}

// Pattern returns the pattern last written to the LED.
func (i *Indicator) Pattern() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pattern
}

func (i *Indicator) onState(e events.StreamStateChangedEvent) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.running = e.IsRunning()
	// A new session starts clean.
	i.failed = false
	i.apply()
}

func (i *Indicator) onError(e events.StreamErrorEvent) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return
	}
	i.failed = true
	i.apply()
}

// apply must be called with mu held.
func (i *Indicator) apply() {
	pattern := PatternOff
	switch {
	case i.running && i.failed:
		pattern = PatternBlink
	case i.running:
		pattern = PatternSolid
	}
	if pattern == i.pattern {
		return
	}
	if err := i.controller.Set(pattern); err != nil {
		i.logger.Warn("Failed to set LED", "pattern", pattern, "error", err)
		return
	}
	i.pattern = pattern
}
