package types

import "testing"

func TestHostDeviceLabels(t *testing.T) {
	cases := []struct {
		name string
		dev  HostDeviceID
		want string
	}{
		{
			"usb vendor/product",
			HostDeviceID{Type: "usb", Vendor: "0x0951", Product: "0x1666"},
			"USB 0951:1666",
		},
		{
			"usb positional",
			HostDeviceID{Type: "usb", Address: &HostAddress{Bus: "1", Device: "4"}},
			"USB 001:004",
		},
		{
			"pci positional",
			HostDeviceID{Type: "pci", Address: &HostAddress{
				Domain: "0x0000", Bus: "0x02", Slot: "0x00", Function: "0x1",
			}},
			"PCI 0000:02:00.1",
		},
		{
			"bare type",
			HostDeviceID{Type: "usb"},
			"USB",
		},
	}
	for _, c := range cases {
		if got := c.dev.Label(); got != c.want {
			t.Errorf("%s: Label() = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestCharIDKindFollowsDevice(t *testing.T) {
	id := CharID{Device: DeviceConsole, Port: "0"}
	if id.Kind() != DeviceConsole {
		t.Errorf("Kind() = %s, want console", id.Kind())
	}
	if id.Label() != "console:0" {
		t.Errorf("Label() = %q", id.Label())
	}
}

func TestRateMaximaSeededWithFloor(t *testing.T) {
	m := NewRateMaxima()
	if m.DiskRd != 10 || m.DiskWr != 10 || m.NetRx != 10 || m.NetTx != 10 {
		t.Errorf("seed wrong: %+v", m)
	}

	m.Observe(&Sample{NetRxRate: 50, DiskWrRate: 3})
	if m.NetRx != 50 {
		t.Errorf("NetRx = %v, want 50", m.NetRx)
	}
	if m.DiskWr != 10 {
		t.Errorf("DiskWr = %v, floor must hold against lower rates", m.DiskWr)
	}
}

func TestMachineInfoActivity(t *testing.T) {
	if (MachineInfo{ID: -1}).Active() {
		t.Error("-1 should read inactive")
	}
	if !(MachineInfo{ID: 0}).Active() || !(MachineInfo{ID: 0}).ManagementDomain() {
		t.Error("id 0 should be the active management domain")
	}
	if (MachineInfo{ID: 3}).ManagementDomain() {
		t.Error("ordinary machine flagged as management domain")
	}
}
