package guest

import (
	"github.com/projecteru2/virtmon/notify"
	"github.com/projecteru2/virtmon/types"
)

// Lifecycle status. Raw hypervisor codes are normalized before comparison;
// transitions fire a status-changed notification, and a transition out of a
// stopped state drops the cached inactive document because the persistent
// definition may have been rewritten while the machine was down.

// Status returns the last observed normalized state.
func (g *Guest) Status() types.LifecycleState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastStatus
}

func (g *Guest) updateStatusLocked(raw int) {
	status := types.NormalizeRawState(raw)
	if g.statusKnown && status == g.lastStatus {
		return
	}
	if g.statusKnown && g.lastStatus.IsStopped() {
		// Machine just started; the persistent definition observed while
		// it was stopped can no longer be trusted.
		g.dropInactiveLocked()
	}
	g.lastStatus = status
	g.statusKnown = true
	g.hub.Publish(notify.StatusChanged{Name: g.conn.Name(), State: status})
}

// IsStoppable reports whether the machine can be asked to shut down.
func (g *Guest) IsStoppable() bool {
	s := g.Status()
	return s == types.StateRunning || s == types.StatePaused
}

// IsDestroyable reports whether the machine can be force-stopped.
func (g *Guest) IsDestroyable() bool {
	return g.IsStoppable() || g.Status() == types.StateCrashed
}

// IsRunnable reports whether the machine can be started.
func (g *Guest) IsRunnable() bool {
	s := g.Status()
	return s == types.StateShutOff || s == types.StateCrashed
}

// IsPauseable reports whether the machine can be paused.
func (g *Guest) IsPauseable() bool { return g.Status() == types.StateRunning }

// IsPaused reports whether the machine is paused.
func (g *Guest) IsPaused() bool { return g.Status() == types.StatePaused }
