// Package inactivity signs a session out after a period without user
// interaction, with a warning countdown the user can dismiss.
package inactivity

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is the monitor state.
type Phase int

const (
	Dormant Phase = iota
	Idle
	Warning
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Warning:
		return "warning"
	default:
		return "dormant"
	}
}

// State is a snapshot of the monitor. Remaining is the countdown in seconds
// and is only meaningful in Warning.
type State struct {
	Phase     Phase
	Remaining int
}

const tick = time.Second

// Config wires a Monitor.
type Config struct {
	Total   time.Duration
	Warning time.Duration
	Clock   Clock
	Logger  *zap.Logger

	// OnExpire is called once when the countdown reaches zero.
	OnExpire func()
	// OnChange is called after every phase or countdown change.
	OnChange func(State)
}

// Monitor is the inactivity state machine. At most one timer is armed at a time;
// a fire from a replaced timer is ignored.
type Monitor struct {
	idleWindow time.Duration
	warnSecs   int
	clock      Clock
	logger     *zap.Logger
	onExpire   func()
	onChange   func(State)

	mu           sync.Mutex
	phase        Phase
	remaining    int
	lastActivity time.Time
	timer        Timer
	generation   uint64
}

// New builds a dormant monitor.
func New(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	warnSecs := int(cfg.Warning / tick)
	if warnSecs < 1 {
		warnSecs = 1
	}
	idle := cfg.Total - time.Duration(warnSecs)*tick
	if idle <= 0 {
		idle = tick
	}
	return &Monitor{
		idleWindow: idle,
		warnSecs:   warnSecs,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		onExpire:   cfg.OnExpire,
		onChange:   cfg.OnChange,
	}
}

// State returns the current snapshot.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// Start arms the idle timer. It is a no-op unless the monitor is dormant.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.phase != Dormant {
		m.mu.Unlock()
		return
	}
	m.phase = Idle
	m.lastActivity = m.clock.Now()
	m.arm(m.idleWindow, m.onIdleTimeout)
	st := m.snapshot()
	m.mu.Unlock()

	m.logger.Debug("inactivity.started", zap.Duration("idle_window", m.idleWindow))
	m.changed(st)
}

// Touch records a qualifying interaction. Interactions outside Idle are ignored.
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == Idle {
		m.lastActivity = m.clock.Now()
	}
}

// StayLoggedIn dismisses the warning and rearms the full idle timer.
// It reports false when no warning was showing.
func (m *Monitor) StayLoggedIn() bool {
	m.mu.Lock()
	if m.phase != Warning {
		m.mu.Unlock()
		return false
	}
	m.phase = Idle
	m.remaining = 0
	m.lastActivity = m.clock.Now()
	m.arm(m.idleWindow, m.onIdleTimeout)
	st := m.snapshot()
	m.mu.Unlock()

	m.logger.Debug("inactivity.warning_dismissed")
	m.changed(st)
	return true
}

// Stop clears every timer and returns the monitor to Dormant.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.phase == Dormant {
		m.mu.Unlock()
		return
	}
	m.disarm()
	m.phase = Dormant
	m.remaining = 0
	st := m.snapshot()
	m.mu.Unlock()

	m.changed(st)
}

// Restart discards any idle timer or countdown and arms a fresh idle timer.
// A new session always begins in Idle, whatever the previous session left behind.
func (m *Monitor) Restart() {
	m.mu.Lock()
	m.phase = Idle
	m.remaining = 0
	m.lastActivity = m.clock.Now()
	m.arm(m.idleWindow, m.onIdleTimeout)
	st := m.snapshot()
	m.mu.Unlock()

	m.logger.Debug("inactivity.restarted", zap.Duration("idle_window", m.idleWindow))
	m.changed(st)
}

func (m *Monitor) onIdleTimeout(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.phase != Idle {
		m.mu.Unlock()
		return
	}
	if quiet := m.clock.Now().Sub(m.lastActivity); quiet < m.idleWindow {
		m.arm(m.idleWindow-quiet, m.onIdleTimeout)
		m.mu.Unlock()
		return
	}
	m.phase = Warning
	m.remaining = m.warnSecs
	m.arm(tick, m.onTick)
	st := m.snapshot()
	m.mu.Unlock()

	m.logger.Info("inactivity.warning", zap.Int("remaining_seconds", st.Remaining))
	m.changed(st)
}

func (m *Monitor) onTick(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.phase != Warning {
		m.mu.Unlock()
		return
	}
	m.remaining--
	if m.remaining > 0 {
		m.arm(tick, m.onTick)
		st := m.snapshot()
		m.mu.Unlock()
		m.changed(st)
		return
	}
	m.disarm()
	m.phase = Dormant
	st := m.snapshot()
	m.mu.Unlock()

	m.logger.Info("inactivity.expired")
	m.changed(st)
	if m.onExpire != nil {
		m.onExpire()
	}
}

// arm replaces the live timer. Callers hold m.mu.
func (m *Monitor) arm(d time.Duration, fire func(uint64)) {
	m.disarm()
	gen := m.generation
	m.timer = m.clock.AfterFunc(d, func() { fire(gen) })
}

// disarm stops the live timer and invalidates its pending fire. Callers hold m.mu.
func (m *Monitor) disarm() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) snapshot() State {
	if m.phase != Warning {
		return State{Phase: m.phase}
	}
	return State{Phase: m.phase, Remaining: m.remaining}
}

func (m *Monitor) changed(st State) {
	if m.onChange != nil {
		m.onChange(st)
	}
}
