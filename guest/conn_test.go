package guest

import (
	"context"
	"sync"
	"testing"

	"github.com/projecteru2/virtmon/config"
	"github.com/projecteru2/virtmon/controlplane"
	"github.com/projecteru2/virtmon/notify"
	"github.com/projecteru2/virtmon/types"
)

const activeXML = `
<domain type="kvm">
  <name>box</name>
  <vcpu cpuset="0-3">2</vcpu>
  <memory>4194304</memory>
  <currentMemory>2097152</currentMemory>
  <os><type arch="x86_64">hvm</type><boot dev="hd"/></os>
  <clock offset="utc"/>
  <features><acpi/></features>
  <devices>
    <emulator>/usr/bin/qemu-system-x86_64</emulator>
    <disk type="file" device="disk">
      <source file="/var/lib/box/root.img"/>
      <target dev="vda" bus="virtio"/>
    </disk>
    <disk type="file" device="cdrom">
      <target dev="hdc" bus="ide"/>
      <readonly/>
    </disk>
    <interface type="bridge">
      <mac address="52:54:00:aa:bb:cc"/>
      <source bridge="br0"/>
      <target dev="vnet0"/>
      <model type="virtio"/>
    </interface>
    <serial type="pty">
      <source path="/dev/pts/3"/>
      <target port="0"/>
    </serial>
    <console type="pty">
      <source path="/dev/pts/3"/>
      <target port="0"/>
    </console>
    <graphics type="vnc" port="5900"/>
    <sound model="ich6"/>
  </devices>
</domain>`

var _ controlplane.Connection = (*fakeConn)(nil)

// fakeConn is an in-memory control connection. Every mutable field is
// guarded so tests can rewrite server-side state between ticks.
type fakeConn struct {
	mu sync.Mutex

	name  string
	uuid  string
	flags controlplane.DetailFlag
	host  types.HostFacts

	info    types.MachineInfo
	infoErr error

	active   string
	inactive string
	fetches  []controlplane.DetailFlag

	submitted []string
	submitErr error
	attached  []string
	detached  []string

	net        map[string]types.NetCounters
	netErr     error
	netCalls   int
	block      map[string]types.BlockCounters
	blockErr   error
	blockCalls int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		name:  "box",
		uuid:  "9a1f6c7e-0000-4000-8000-000000000001",
		flags: controlplane.DetailSecure | controlplane.DetailInactive,
		host: types.HostFacts{
			MemoryKB:   8 * 1024 * 1024,
			ActiveCPUs: 4,
		},
		info: types.MachineInfo{
			ID:        1,
			RawState:  types.RawStateRunning,
			MaxMemKB:  4 * 1024 * 1024,
			CurrMemKB: 2 * 1024 * 1024,
			VCPUs:     2,
		},
		active:   activeXML,
		inactive: activeXML,
		net:      map[string]types.NetCounters{},
		block:    map[string]types.BlockCounters{},
	}
}

func (c *fakeConn) Name() string { return c.name }
func (c *fakeConn) UUID() string { return c.uuid }

func (c *fakeConn) SupportedDetailFlags() controlplane.DetailFlag { return c.flags }
func (c *fakeConn) Host() types.HostFacts                         { return c.host }

func (c *fakeConn) MachineInfo(context.Context) (types.MachineInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info, c.infoErr
}

func (c *fakeConn) FetchConfig(_ context.Context, flags controlplane.DetailFlag) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches = append(c.fetches, flags)
	if flags&controlplane.DetailInactive != 0 {
		return c.inactive, nil
	}
	return c.active, nil
}

func (c *fakeConn) SubmitPersistentConfig(_ context.Context, xml string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return c.submitErr
	}
	c.submitted = append(c.submitted, xml)
	c.inactive = xml
	return nil
}

func (c *fakeConn) AttachDeviceFragment(_ context.Context, fragment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = append(c.attached, fragment)
	return nil
}

func (c *fakeConn) DetachDeviceFragment(_ context.Context, fragment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = append(c.detached, fragment)
	return nil
}

func (c *fakeConn) InterfaceCounters(_ context.Context, dev string) (types.NetCounters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.netCalls++
	if c.netErr != nil {
		return types.NetCounters{}, c.netErr
	}
	return c.net[dev], nil
}

func (c *fakeConn) BlockCounters(_ context.Context, dev string) (types.BlockCounters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockCalls++
	if c.blockErr != nil {
		return types.BlockCounters{}, c.blockErr
	}
	return c.block[dev], nil
}

func (c *fakeConn) inactiveFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.fetches {
		if f&controlplane.DetailInactive != 0 {
			n++
		}
	}
	return n
}

func (c *fakeConn) lastSubmitted(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.submitted) == 0 {
		t.Fatal("no config was submitted")
	}
	return c.submitted[len(c.submitted)-1]
}

func (c *fakeConn) submitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.submitted)
}

// newTestGuest builds a handle over conn with its own hub; conf may be nil
// for defaults. The caller can keep mutating conf between ticks. A single
// dispatch worker keeps event delivery order deterministic.
func newTestGuest(t *testing.T, conn *fakeConn, conf *config.Config) (*Guest, *notify.Hub) {
	t.Helper()
	hub, err := notify.NewHub(64, 1)
	if err != nil {
		t.Fatalf("create hub: %v", err)
	}
	t.Cleanup(hub.Close)

	if conf == nil {
		conf = config.DefaultConfig()
	}
	g, err := New(context.Background(), conn, hub, func() *config.Config { return conf }, "")
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}
	return g, hub
}
