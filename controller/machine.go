package controller

import "time"

// Mode is the controller's limit mode.
type Mode string

const (
	ModeNormal  Mode = "normal"
	ModeLimited Mode = "limited"
)

// Timing holds the hysteresis thresholds. Every Step advances a timer by Poll.
type Timing struct {
	Poll     time.Duration
	OnDelay  time.Duration
	OffDelay time.Duration
}

// Machine is the hysteresis state machine. Entering Limited needs OnDelay of
// sustained activity; leaving it needs OffDelay of sustained silence.
type Machine struct {
	Mode     Mode
	OnTimer  time.Duration
	OffTimer time.Duration
}

// NewMachine returns a machine in Normal mode with both timers at zero.
func NewMachine() Machine {
	return Machine{Mode: ModeNormal}
}

// Step evaluates one poll cycle and reports whether the mode changed.
func (m *Machine) Step(metric float64, t Timing) bool {
	active := metric > 0

	switch {
	case m.Mode != ModeLimited && active:
		m.OnTimer += t.Poll
		m.OffTimer = 0
		if m.OnTimer >= t.OnDelay {
			m.Mode = ModeLimited
			m.OnTimer = 0
			return true
		}

	case m.Mode != ModeLimited:
		m.OnTimer = 0

	case active:
		m.OffTimer = 0

	default:
		m.OffTimer += t.Poll
		m.OnTimer = 0
		if m.OffTimer >= t.OffDelay {
			m.Mode = ModeNormal
			m.OffTimer = 0
			return true
		}
	}
	return false
}

// Reset returns the machine to Normal with both timers cleared.
func (m *Machine) Reset() {
	*m = NewMachine()
}
