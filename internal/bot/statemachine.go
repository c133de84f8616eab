package bot

import "sync"

// Status is the bot lifecycle state.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusPaused  Status = "PAUSED"
	StatusStopped Status = "STOPPED"
	StatusError   Status = "ERROR"
)

// StateMachine holds the current status and the reason for the last
// transition. It is deliberately a container, not a validating automaton:
// any caller may set any status and the last write wins. Transition legality
// is the run loop's concern.
type StateMachine struct {
	mu     sync.RWMutex
	status Status
	reason string
}

// NewStateMachine returns a machine in the STOPPED state.
func NewStateMachine() *StateMachine {
	return &StateMachine{status: StatusStopped}
}

// Set records a status with its reason.
func (m *StateMachine) Set(status Status, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.reason = reason
}

// Status returns the current status.
func (m *StateMachine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Reason returns the reason recorded with the latest transition.
func (m *StateMachine) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}
