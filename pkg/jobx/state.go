package jobx

import (
	"sync"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/logx"
)

// ConnState is the broker connection state.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateReady        ConnState = "ready"
	StateReconnecting ConnState = "reconnecting"
	StateDisconnected ConnState = "disconnected"
	// StateErrored means the connection gave up retrying. Only a probe
	// restarts the cycle.
	StateErrored ConnState = "errored"
)

// StateChange describes one transition.
type StateChange struct {
	From ConnState
	To   ConnState
	Err  error
	// Fatal marks errors that retrying cannot fix, such as bad credentials.
	Fatal bool
	At    time.Time
}

// StateListener is called synchronously on every transition. It must not
// block.
type StateListener func(StateChange)

// Health reports the current broker state.
type Health interface {
	State() ConnState
}

// StateSource is a Health that can notify about transitions.
type StateSource interface {
	Health
	Subscribe(fn StateListener) (unsubscribe func())
}

// StateTracker holds a ConnState and emits exactly one log line and one
// notification per actual transition. Setting the current state again is
// a no-op, so a broker that stays down for minutes logs once.
type StateTracker struct {
	name string

	mu        sync.Mutex
	state     ConnState
	lastErr   error
	listeners map[int]StateListener
	nextID    int
	now       func() time.Time
}

// NewStateTracker creates a tracker in the initial state.
func NewStateTracker(name string, initial ConnState) *StateTracker {
	return &StateTracker{
		name:      name,
		state:     initial,
		listeners: make(map[int]StateListener),
		now:       time.Now,
	}
}

// State returns the current state.
func (t *StateTracker) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that caused the last transition, if any.
func (t *StateTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Set moves to state to. It returns false when the tracker was already in
// that state.
func (t *StateTracker) Set(to ConnState, cause error) bool {
	return t.set(to, cause, false)
}

// SetFatal moves to errored and marks the change as unrecoverable.
func (t *StateTracker) SetFatal(cause error) bool {
	return t.set(StateErrored, cause, true)
}

func (t *StateTracker) set(to ConnState, cause error, fatal bool) bool {
	t.mu.Lock()
	from := t.state
	if from == to {
		t.mu.Unlock()
		return false
	}
	t.state = to
	t.lastErr = cause
	change := StateChange{From: from, To: to, Err: cause, Fatal: fatal, At: t.now()}
	listeners := make([]StateListener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.mu.Unlock()

	t.logChange(change)
	for _, l := range listeners {
		l(change)
	}
	return true
}

// Subscribe registers fn for future transitions.
func (t *StateTracker) Subscribe(fn StateListener) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *StateTracker) logChange(c StateChange) {
	entry := logx.Component(t.name).WithFields(logx.Fields{
		"from": string(c.From),
		"to":   string(c.To),
	})
	if c.Err != nil {
		entry = entry.WithError(c.Err)
	}

	switch c.To {
	case StateReady:
		if c.From != StateConnecting {
			entry.Info("broker connection restored")
			return
		}
		entry.Info("broker connection ready")
	case StateReconnecting, StateDisconnected:
		entry.Warn("broker connection lost, jobs will run inline until it recovers")
	case StateErrored:
		if c.Fatal {
			entry.WithField("fatal", true).Error("broker connection failed unrecoverably")
			return
		}
		entry.Error("broker connection gave up")
	default:
		entry.Debug("broker connection state changed")
	}
}
