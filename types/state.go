package types

// Raw machine state codes as reported by the control connection.
// These mirror the hypervisor's own numbering and are normalized into
// LifecycleState before anything downstream sees them.
const (
	RawStateNoState      = 0
	RawStateRunning      = 1
	RawStateBlocked      = 2
	RawStatePaused       = 3
	RawStateShuttingDown = 4
	RawStateShutOff      = 5
	RawStateCrashed      = 6
)

// LifecycleState is the normalized machine state.
type LifecycleState string

const (
	StateRunning      LifecycleState = "running"
	StatePaused       LifecycleState = "paused"
	StateShuttingDown LifecycleState = "shutting-down"
	StateShutOff      LifecycleState = "shut-off"
	StateCrashed      LifecycleState = "crashed"
)

// NormalizeRawState maps a raw state code to a LifecycleState.
// "no-state" and "blocked" are transient codes the hypervisor reports for
// machines that are, for all practical purposes, running; they fold into
// StateRunning. Unknown codes fold into StateRunning for the same reason.
func NormalizeRawState(code int) LifecycleState {
	switch code {
	case RawStatePaused:
		return StatePaused
	case RawStateShuttingDown:
		return StateShuttingDown
	case RawStateShutOff:
		return StateShutOff
	case RawStateCrashed:
		return StateCrashed
	default:
		return StateRunning
	}
}

// IsStopped reports whether s is one of the not-running states. A machine
// leaving a stopped state may have had its persistent definition rewritten
// by external tooling, so cached inactive documents must be dropped on that
// transition.
func (s LifecycleState) IsStopped() bool {
	return s == StateShuttingDown || s == StateShutOff || s == StateCrashed
}

// String implements fmt.Stringer.
func (s LifecycleState) String() string { return string(s) }

// Pretty returns the display form of the state.
func (s LifecycleState) Pretty() string {
	switch s {
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateShuttingDown:
		return "Shutting Down"
	case StateShutOff:
		return "Shutoff"
	case StateCrashed:
		return "Crashed"
	}
	return "Unknown"
}
