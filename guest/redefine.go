package guest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/virtmon/domconf"
	"github.com/projecteru2/virtmon/lock"
	"github.com/projecteru2/virtmon/types"
)

// Transform alters a configuration document in place. The engine hands it a
// freshly parsed copy of the base document, so the transform owns its tree
// and the cached base is never touched.
type Transform func(*domconf.Document) error

// Redefine applies transform to the machine's definable document and, if
// anything actually changed, submits the result as the new persistent
// definition.
//
// The base is normalized through a parse-then-serialize pass before
// comparison so that formatting differences never register as changes; an
// identity transform is therefore a guaranteed no-op with no submission.
// Redefinition is all-or-nothing: on submission failure the cache is left
// untouched so a retry can reuse the validated state.
func (g *Guest) Redefine(ctx context.Context, transform Transform) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.redefineLocked(ctx, transform)
}

func (g *Guest) redefineLocked(ctx context.Context, transform Transform) error {
	logger := log.WithFunc("guest.Redefine")

	base, err := g.configToDefineLocked(ctx)
	if err != nil {
		return err
	}
	norm, err := domconf.Normalize(base)
	if err != nil {
		return err
	}

	doc, err := domconf.Parse(norm)
	if err != nil {
		return err
	}
	if err := transform(doc); err != nil {
		return err
	}
	candidate, err := doc.Serialize()
	if err != nil {
		return err
	}

	if candidate == norm {
		logger.Debugf(ctx, "redefinition of %s requested, but new config was not different", g.conn.Name())
		return nil
	}

	// Best-effort audit: the diff must never block or fail the
	// redefinition itself.
	g.auditDiffLocked(ctx, norm, candidate)

	if err := g.conn.SubmitPersistentConfig(ctx, candidate); err != nil {
		return err
	}

	g.activeValid = false
	g.dropInactiveLocked()
	return nil
}

// auditDiffLocked logs a unified diff of the redefinition and appends it to
// the flock-guarded audit file shared with other processes managing the
// same machine.
func (g *Guest) auditDiffLocked(ctx context.Context, orig, updated string) {
	logger := log.WithFunc("guest.auditDiff")

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(orig),
		B:        difflib.SplitLines(updated),
		FromFile: "Original config",
		ToFile:   "New config",
		Context:  3,
	})
	if err != nil {
		logger.Warnf(ctx, "compute config diff for %s: %v", g.conn.Name(), err)
		return
	}
	logger.Debugf(ctx, "redefining %s with config diff:\n%s", g.conn.Name(), diff)

	if g.auditPath == "" {
		return
	}
	err = lock.WithLock(ctx, g.auditLock, func() error {
		f, err := os.OpenFile(g.auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck
		_, err = f.WriteString(diff + "\n")
		return err
	})
	if err != nil {
		logger.Warnf(ctx, "append audit log %s: %v", g.auditPath, err)
	}
}

// devicePresentLocked implements the converged-state presence check used
// before every device-scoped edit of the inactive document. It returns true
// when the device is present in the inactive document, false-with-nil-error
// when it is absent there but present in the active one (a concurrent or
// prior operation already achieved the desired state), and the original
// lookup failure when it is absent from both.
func (g *Guest) devicePresentLocked(ctx context.Context, id types.DeviceID) (bool, error) {
	inactive, err := g.parseInactiveLocked(ctx)
	if err != nil {
		return false, err
	}
	_, lookupErr := domconf.Locate(inactive, id)
	if lookupErr == nil {
		return true, nil
	}
	if !errors.Is(lookupErr, domconf.ErrDeviceNotFound) {
		return false, lookupErr
	}

	active, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return false, err
	}
	if _, err := domconf.Locate(active, id); err == nil {
		return false, nil
	}
	return false, lookupErr
}

// AddDevice redefines the machine with the device fragment appended to the
// persistent definition.
func (g *Guest) AddDevice(ctx context.Context, fragment string) error {
	return g.Redefine(ctx, func(doc *domconf.Document) error {
		return doc.AppendDeviceFragment(fragment)
	})
}

// RemoveDevice removes the identified device from the persistent
// definition. A device absent from the inactive document but present in
// the active one counts as already converged and succeeds without a
// submission. Removing a serial device also removes the console entry
// paired with it on the same target port, otherwise the resulting document
// would carry a dangling console reference.
func (g *Guest) RemoveDevice(ctx context.Context, id types.DeviceID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	present, err := g.devicePresentLocked(ctx, id)
	if err != nil {
		return err
	}
	if !present {
		log.WithFunc("guest.RemoveDevice").Debugf(ctx,
			"%s %q already absent from persistent config of %s, nothing to do",
			id.Kind(), id.Label(), g.conn.Name())
		return nil
	}

	return g.redefineLocked(ctx, func(doc *domconf.Document) error {
		nodes, err := domconf.Locate(doc, id)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			if parent := node.Parent(); parent != nil {
				parent.RemoveChild(node)
			}
		}
		return nil
	})
}

// AttachDevice hot-attaches a device fragment to the live instance,
// bypassing the redefine pipeline. The persistent definition is not
// touched; callers wanting durability across restarts must redefine
// separately.
func (g *Guest) AttachDevice(ctx context.Context, fragment string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.isActiveLocked() {
		return fmt.Errorf("attach device to %s: %w", g.conn.Name(), ErrNotRunning)
	}
	return g.conn.AttachDeviceFragment(ctx, fragment)
}

// DetachDevice hot-detaches the identified device from the live instance.
func (g *Guest) DetachDevice(ctx context.Context, id types.DeviceID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.isActiveLocked() {
		return fmt.Errorf("detach device from %s: %w", g.conn.Name(), ErrNotRunning)
	}
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return err
	}
	fragment, err := domconf.DeviceElement(doc, id)
	if err != nil {
		return err
	}
	return g.conn.DetachDeviceFragment(ctx, fragment)
}
