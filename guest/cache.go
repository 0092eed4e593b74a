package guest

import (
	"context"
	"fmt"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/virtmon/controlplane"
	"github.com/projecteru2/virtmon/notify"
)

// Configuration cache. The handle keeps at most one active and one inactive
// document; both are value snapshots replaced wholesale on refresh, never
// edited in place.
//
// Read policy: the active document is refetched when it has never been
// fetched, or when the caller asks for a refresh and the cache is marked
// invalid. The inactive document is fetched lazily once and dropped
// explicitly (after a redefinition, or on a lifecycle transition out of a
// stopped state).

// ActiveConfig returns the active configuration document. With force set,
// an invalidated cache is refreshed first; without it a stale-but-present
// document is returned as-is, which is what the sampler wants in the middle
// of a tick.
func (g *Guest) ActiveConfig(ctx context.Context, force bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeConfigLocked(ctx, force)
}

// InactiveConfig returns the persistent definition, fetching it on first
// use.
func (g *Guest) InactiveConfig(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inactiveConfigLocked(ctx)
}

// InvalidateConfig marks the active document invalid and drops the cached
// inactive document. The next reads refetch both.
func (g *Guest) InvalidateConfig() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invalidateLocked()
}

func (g *Guest) activeConfigLocked(ctx context.Context, force bool) (string, error) {
	if !g.hasActive || (force && !g.activeValid) {
		if err := g.refreshActiveLocked(ctx); err != nil {
			return "", err
		}
	}
	return g.activeXML, nil
}

func (g *Guest) inactiveConfigLocked(ctx context.Context) (string, error) {
	if !g.hasInactive {
		if err := g.refreshInactiveLocked(ctx); err != nil {
			return "", err
		}
	}
	return g.inactiveXML, nil
}

func (g *Guest) invalidateLocked() {
	g.activeValid = false
	g.dropInactiveLocked()
}

func (g *Guest) dropInactiveLocked() {
	g.hasInactive = false
	g.inactiveXML = ""
}

// refreshActiveLocked fetches the active document at the richest supported
// detail. When the fetched document differs from the cached one a
// config-changed notification fires and a fresh tick runs so downstream
// consumers re-derive device lists and stats promptly.
func (g *Guest) refreshActiveLocked(ctx context.Context) error {
	var flags controlplane.DetailFlag
	if g.conn.SupportedDetailFlags()&controlplane.DetailSecure != 0 {
		flags = controlplane.DetailSecure
	}

	xml, err := g.conn.FetchConfig(ctx, flags)
	if err != nil {
		return fmt.Errorf("refresh active config: %w", err)
	}

	changed := g.hasActive && g.activeXML != xml
	g.activeXML = xml
	g.hasActive = true
	g.activeValid = true

	if changed {
		if err := g.tickLocked(ctx, time.Now()); err != nil {
			log.WithFunc("guest.refreshActive").Warnf(ctx,
				"forced tick after config change for %s: %v", g.conn.Name(), err)
		}
		g.hub.Publish(notify.ConfigChanged{Name: g.conn.Name()})
	}
	return nil
}

// refreshInactiveLocked fetches the persistent definition, degrading from
// inactive+secure to plain inactive when the connection lacks the secure
// capability.
func (g *Guest) refreshInactiveLocked(ctx context.Context) error {
	flags := controlplane.DetailInactive | controlplane.DetailSecure
	if g.conn.SupportedDetailFlags()&flags != flags {
		flags = controlplane.DetailInactive
	}

	xml, err := g.conn.FetchConfig(ctx, flags)
	if err != nil {
		return fmt.Errorf("refresh inactive config: %w", err)
	}
	g.inactiveXML = xml
	g.hasInactive = true
	return nil
}

// configToDefineLocked selects the base document for a redefinition: the
// persistent definition while the machine is active, otherwise a freshly
// refetched active document — a stopped machine has no live/persistent
// split, so both read paths must agree.
func (g *Guest) configToDefineLocked(ctx context.Context) (string, error) {
	if g.isActiveLocked() {
		return g.inactiveConfigLocked(ctx)
	}
	g.invalidateLocked()
	return g.activeConfigLocked(ctx, true)
}
