package types

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceKind enumerates the device categories addressable inside a
// configuration document.
type DeviceKind string

const (
	DeviceDisk      DeviceKind = "disk"
	DeviceInterface DeviceKind = "interface"
	DeviceInput     DeviceKind = "input"
	DeviceGraphics  DeviceKind = "graphics"
	DeviceSound     DeviceKind = "sound"
	DeviceSerial    DeviceKind = "serial"
	DeviceParallel  DeviceKind = "parallel"
	DeviceConsole   DeviceKind = "console"
	DeviceVideo     DeviceKind = "video"
	DeviceHost      DeviceKind = "hostdev"
)

// DeviceID identifies one device inside a configuration document. It is a
// closed sum: each kind carries exactly the attributes that make the device
// unique, and the addressing code switches over the concrete types
// exhaustively. Descriptive fields on some variants are display-only and
// never participate in matching.
type DeviceID interface {
	Kind() DeviceKind
	// Label is the identity shown in hardware lists.
	Label() string
}

// DiskID identifies a disk by its target device name. The remaining fields
// are descriptive.
type DiskID struct {
	Target string // identity: target/@dev

	Path      string
	Device    string // disk, cdrom, floppy
	Type      string // file, block
	Bus       string
	ReadOnly  bool
	Shareable bool
}

func (DiskID) Kind() DeviceKind { return DeviceDisk }
func (d DiskID) Label() string  { return d.Target }

// InterfaceID identifies a network interface by MAC address.
type InterfaceID struct {
	MAC string // identity: mac/@address

	Source string
	Target string // host-side device, used for counter polling
	Type   string
	Model  string
}

func (InterfaceID) Kind() DeviceKind { return DeviceInterface }
func (n InterfaceID) Label() string  { return n.MAC }

// InputID identifies an input device by (type, bus).
type InputID struct {
	Type string
	Bus  string
}

func (InputID) Kind() DeviceKind { return DeviceInput }
func (i InputID) Label() string  { return i.Type + ":" + i.Bus }

// GraphicsID identifies a graphics device by type.
type GraphicsID struct {
	Type string // identity

	Listen string
	Port   string
	Keymap string
}

func (GraphicsID) Kind() DeviceKind { return DeviceGraphics }
func (g GraphicsID) Label() string  { return g.Type }

// SoundID identifies a sound device by model.
type SoundID struct {
	Model string
}

func (SoundID) Kind() DeviceKind { return DeviceSound }
func (s SoundID) Label() string  { return s.Model }

// CharID identifies a character device (serial, parallel or console) by its
// target port. Device selects which of the three element kinds is meant.
type CharID struct {
	Device DeviceKind // DeviceSerial, DeviceParallel or DeviceConsole
	Port   string     // identity: target/@port

	Type       string // pty, tcp, ...
	SourcePath string
	// ConsoleDup marks a serial device whose console entry at the same
	// port is just a duplicate of it.
	ConsoleDup bool
}

func (c CharID) Kind() DeviceKind { return c.Device }
func (c CharID) Label() string    { return fmt.Sprintf("%s:%s", c.Device, c.Port) }

// VideoID identifies a video device by model plus whichever of vram/heads
// are present; absent attributes do not constrain the match.
type VideoID struct {
	Model string
	VRAM  string
	Heads string
}

func (VideoID) Kind() DeviceKind { return DeviceVideo }
func (v VideoID) Label() string  { return v.Model }

// HostAddress is the positional address of a host-attached device. Either
// (Bus, Device) for USB or (Domain, Bus, Slot, Function) for PCI.
type HostAddress struct {
	Domain   string
	Bus      string
	Slot     string
	Function string
	Device   string
}

// USB reports whether the address identifies a USB device by bus+device.
func (a HostAddress) USB() bool { return a.Bus != "" && a.Device != "" }

// PCI reports whether the address identifies a PCI device by
// domain+bus+slot+function.
func (a HostAddress) PCI() bool {
	return a.Bus != "" && a.Slot != "" && a.Function != "" && a.Domain != ""
}

// HostDeviceID identifies a host-attached device. The matching strategy is
// derived from the payload: a usable positional Address wins, otherwise
// vendor+product ids are used. Mode and the label helpers are descriptive.
type HostDeviceID struct {
	Type    string // usb, pci — part of the identity
	Mode    string
	Address *HostAddress
	Vendor  string // vendor/@id
	Product string // product/@id
}

func (HostDeviceID) Kind() DeviceKind { return DeviceHost }

// Label renders the identity the way hardware lists show host devices:
// vendor:product for USB ids, bus:device or domain:bus:slot.function for
// positional addresses.
func (h HostDeviceID) Label() string {
	base := strings.ToUpper(h.Type)
	switch {
	case h.Vendor != "" && h.Product != "":
		return fmt.Sprintf("%s %s:%s", base, dehex(h.Vendor), dehex(h.Product))
	case h.Address != nil && h.Address.USB():
		return fmt.Sprintf("%s %s:%s", base, safeint(h.Address.Bus), safeint(h.Address.Device))
	case h.Address != nil && h.Address.PCI():
		return fmt.Sprintf("%s %s:%s:%s.%s", base, dehex(h.Address.Domain),
			dehex(h.Address.Bus), dehex(h.Address.Slot), dehex(h.Address.Function))
	}
	return base
}

func dehex(val string) string {
	return strings.TrimPrefix(val, "0x")
}

// safeint zero-pads numeric address components; non-numeric values pass
// through untouched.
func safeint(val string) string {
	n, err := strconv.Atoi(val)
	if err != nil {
		return val
	}
	return fmt.Sprintf("%.3d", n)
}
