// Package guest implements the per-machine management handle: the
// configuration cache, the mutate-redefine engine, the lifecycle status
// machine and the statistics sampler. One Guest owns all cached state for
// one machine; its internal mutex serializes operations on the handle while
// different machines are driven independently in parallel.
package guest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	units "github.com/docker/go-units"

	"github.com/projecteru2/virtmon/config"
	"github.com/projecteru2/virtmon/controlplane"
	"github.com/projecteru2/virtmon/domconf"
	"github.com/projecteru2/virtmon/lock"
	"github.com/projecteru2/virtmon/lock/flock"
	"github.com/projecteru2/virtmon/notify"
	"github.com/projecteru2/virtmon/types"
)

// ErrNotRunning is returned by hot attach/detach when the machine has no
// live instance to apply the fragment to.
var ErrNotRunning = errors.New("machine not running")

// ConfigFn returns the current process-wide configuration snapshot. It is
// re-read at the start of every tick so concurrent config changes take
// effect on the next tick.
type ConfigFn func() *config.Config

// Guest is the management handle for one machine.
type Guest struct {
	conn controlplane.Connection
	hub  *notify.Hub
	conf ConfigFn

	mu sync.Mutex

	// Configuration cache.
	activeXML   string
	hasActive   bool
	activeValid bool
	inactiveXML string
	hasInactive bool

	// Lifecycle.
	lastStatus  types.LifecycleState
	statusKnown bool
	lastID      int

	// Sampling.
	record        []types.Sample // newest first
	maxima        types.RateMaxima
	netSupported  bool
	diskSupported bool
	netPolled     bool
	diskPolled    bool

	// Redefinition audit trail.
	auditPath string
	auditLock lock.Locker
}

// New builds a handle over an established control connection and reads the
// machine's initial state. auditDir receives the flock-guarded redefinition
// diff log; empty disables the audit trail.
func New(ctx context.Context, conn controlplane.Connection, hub *notify.Hub, conf ConfigFn, auditDir string) (*Guest, error) {
	g := &Guest{
		conn:          conn,
		hub:           hub,
		conf:          conf,
		lastID:        -1,
		maxima:        types.NewRateMaxima(),
		netSupported:  true,
		diskSupported: true,
	}
	if auditDir != "" {
		g.auditPath = filepath.Join(auditDir, conn.UUID()+".redefine.log")
		g.auditLock = flock.New(filepath.Join(auditDir, conn.UUID()+".redefine.lock"))
	}

	info, err := conn.MachineInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial state read for %s: %w", conn.Name(), err)
	}
	g.mu.Lock()
	g.lastID = info.ID
	g.updateStatusLocked(info.RawState)
	g.mu.Unlock()
	return g, nil
}

// Name returns the machine name.
func (g *Guest) Name() string { return g.conn.Name() }

// UUID returns the machine handle identity.
func (g *Guest) UUID() string { return g.conn.UUID() }

// ID returns the machine's runtime id from the most recent state read
// (-1 when not running).
func (g *Guest) ID() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastID
}

// IsActive reports whether the machine had a live instance at the most
// recent state read.
func (g *Guest) IsActive() bool { return g.ID() != -1 }

// IsManagementDomain reports whether this is the hypervisor's privileged
// instance.
func (g *Guest) IsManagementDomain() bool { return g.ID() == 0 }

func (g *Guest) isActiveLocked() bool { return g.lastID != -1 }

// latest returns the newest sample, or a zero sample if none exists yet.
func (g *Guest) latest() types.Sample {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.record) == 0 {
		return types.Sample{}
	}
	return g.record[0]
}

// Latest returns the newest sample.
func (g *Guest) Latest() types.Sample { return g.latest() }

// Memory returns current memory in KiB.
func (g *Guest) Memory() uint64 { return g.latest().CurrMemKB }

// MemoryPercent returns current memory as a percentage of host memory.
func (g *Guest) MemoryPercent() float64 { return g.latest().CurrMemPercent }

// MaxMemory returns maximum memory in KiB.
func (g *Guest) MaxMemory() uint64 { return g.latest().MaxMemKB }

// MaxMemoryPercent returns maximum memory as a percentage of host memory.
func (g *Guest) MaxMemoryPercent() float64 { return g.latest().MaxMemPercent }

// CPUPercent returns the newest instantaneous CPU utilization.
func (g *Guest) CPUPercent() float64 { return g.latest().CPUPercent }

// VCPUCount returns the vCPU count from the newest sample.
func (g *Guest) VCPUCount() int { return g.latest().VCPUs }

// DiskReadRate and friends return the newest derived rates in KiB/s.
func (g *Guest) DiskReadRate() float64  { return g.latest().DiskRdRate }
func (g *Guest) DiskWriteRate() float64 { return g.latest().DiskWrRate }
func (g *Guest) NetworkRxRate() float64 { return g.latest().NetRxRate }
func (g *Guest) NetworkTxRate() float64 { return g.latest().NetTxRate }

// DiskIORate is the combined read+write rate.
func (g *Guest) DiskIORate() float64 { return g.DiskReadRate() + g.DiskWriteRate() }

// NetworkTrafficRate is the combined rx+tx rate.
func (g *Guest) NetworkTrafficRate() float64 { return g.NetworkRxRate() + g.NetworkTxRate() }

// MemoryPretty renders current memory for display.
func (g *Guest) MemoryPretty() string {
	return units.BytesSize(float64(g.Memory()) * units.KiB)
}

// MaxMemoryPretty renders maximum memory for display.
func (g *Guest) MaxMemoryPretty() string {
	return units.BytesSize(float64(g.MaxMemory()) * units.KiB)
}

// parseActiveLocked parses the active document, honoring the cache read
// policy (force=false never refetches a merely-invalid document).
func (g *Guest) parseActiveLocked(ctx context.Context, force bool) (*domconf.Document, error) {
	xml, err := g.activeConfigLocked(ctx, force)
	if err != nil {
		return nil, err
	}
	return domconf.Parse(xml)
}

func (g *Guest) parseInactiveLocked(ctx context.Context) (*domconf.Document, error) {
	xml, err := g.inactiveConfigLocked(ctx)
	if err != nil {
		return nil, err
	}
	return domconf.Parse(xml)
}

// Disks lists the disks of the active document.
func (g *Guest) Disks(ctx context.Context) ([]types.DiskID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return nil, err
	}
	return domconf.Disks(doc)
}

// Interfaces lists the network interfaces of the active document.
func (g *Guest) Interfaces(ctx context.Context) ([]types.InterfaceID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return nil, err
	}
	return domconf.Interfaces(doc), nil
}

// CharDevices lists serial/parallel/console devices of the active document.
func (g *Guest) CharDevices(ctx context.Context) ([]types.CharID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return nil, err
	}
	return domconf.CharDevices(doc), nil
}

// HostDevices lists host-attached devices of the active document.
func (g *Guest) HostDevices(ctx context.Context) ([]types.HostDeviceID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return nil, err
	}
	return domconf.HostDevices(doc), nil
}

// Attribute accessors over the active document.

func (g *Guest) docAttr(ctx context.Context, path, attr string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return "", err
	}
	return doc.PathAttr(path, attr), nil
}

// HVType returns the hypervisor driver type (the root element's type
// attribute).
func (g *Guest) HVType(ctx context.Context) (string, error) {
	return g.docAttr(ctx, "", "type")
}

// ABIType returns the machine ABI (os/type text).
func (g *Guest) ABIType(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return "", err
	}
	return doc.PathText("os/type"), nil
}

// Arch returns the machine architecture.
func (g *Guest) Arch(ctx context.Context) (string, error) {
	return g.docAttr(ctx, "os/type", "arch")
}

// Emulator returns the emulator binary path.
func (g *Guest) Emulator(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return "", err
	}
	return doc.PathText("devices/emulator"), nil
}

// BootDevice returns the first configured boot device.
func (g *Guest) BootDevice(ctx context.Context) (string, error) {
	return g.docAttr(ctx, "os/boot", "dev")
}

// ClockOffset returns the clock offset mode.
func (g *Guest) ClockOffset(ctx context.Context) (string, error) {
	return g.docAttr(ctx, "clock", "offset")
}

// FeatureEnabled reports whether a features child (acpi, apic) is present.
func (g *Guest) FeatureEnabled(ctx context.Context, name string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return false, err
	}
	features := doc.Root().SelectElement("features")
	return features != nil && features.SelectElement(name) != nil, nil
}

// SecurityLabel returns the security label's model, type and label text,
// all "" when the machine carries no label.
func (g *Guest) SecurityLabel(ctx context.Context) (model, labelType, label string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return "", "", "", err
	}
	node := doc.Root().SelectElement("seclabel")
	if node == nil {
		return "", "", "", nil
	}
	model = node.SelectAttrValue("model", "")
	labelType = node.SelectAttrValue("type", "")
	if l := node.SelectElement("label"); l != nil {
		label = l.Text()
	}
	return model, labelType, label, nil
}

// VCPUPinning returns the vcpu cpuset mask, "" when unpinned.
func (g *Guest) VCPUPinning(ctx context.Context) (string, error) {
	return g.docAttr(ctx, "vcpu", "cpuset")
}

// SerialConsolePath returns the host PTY path of the first pty-backed
// serial or console device, or "" when the machine has none.
func (g *Guest) SerialConsolePath(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return "", err
	}
	for _, dev := range domconf.CharDevices(doc) {
		if dev.Type == "pty" && dev.SourcePath != "" {
			return dev.SourcePath, nil
		}
	}
	return "", nil
}
