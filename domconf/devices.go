package domconf

import (
	"fmt"

	"github.com/projecteru2/virtmon/types"
)

// Typed device-list extraction. Each function walks the devices container
// and builds identity descriptors for one kind; the descriptors double as
// the unique keys for addressing and for UI list identity.

// Disks returns the disk descriptors in document order.
func Disks(doc *Document) ([]types.DiskID, error) {
	var disks []types.DiskID
	for _, el := range doc.Devices().SelectElements("disk") {
		typ := attr(el, "type")
		device := attr(el, "device")
		if device == "" {
			device = "disk"
		}

		var path string
		switch typ {
		case "file":
			path = childAttr(el, "source", "file")
		case "block":
			path = childAttr(el, "source", "dev")
		}
		if path == "" {
			// Removable drives may legitimately have no media.
			if device != "cdrom" && device != "floppy" {
				return nil, fmt.Errorf("disk missing source path")
			}
			typ = "block"
		}

		target := childAttr(el, "target", "dev")
		if target == "" {
			return nil, fmt.Errorf("disk missing target device")
		}

		disks = append(disks, types.DiskID{
			Target:    target,
			Path:      path,
			Device:    device,
			Type:      typ,
			Bus:       childAttr(el, "target", "bus"),
			ReadOnly:  el.SelectElement("readonly") != nil,
			Shareable: el.SelectElement("shareable") != nil,
		})
	}
	return disks, nil
}

// Interfaces returns the network interface descriptors. Interfaces without
// a MAC address are skipped: the MAC is the uniqueness key and some
// hypervisors leave half-deleted interface records behind.
func Interfaces(doc *Document) []types.InterfaceID {
	var nics []types.InterfaceID
	for _, el := range doc.Devices().SelectElements("interface") {
		mac := childAttr(el, "mac", "address")
		if mac == "" {
			continue
		}
		typ := attr(el, "type")
		var source string
		switch typ {
		case "bridge":
			source = childAttr(el, "source", "bridge")
		case "ethernet":
			source = childAttr(el, "source", "dev")
		case "network":
			source = childAttr(el, "source", "network")
		}
		nics = append(nics, types.InterfaceID{
			MAC:    mac,
			Source: source,
			Target: childAttr(el, "target", "dev"),
			Type:   typ,
			Model:  childAttr(el, "model", "type"),
		})
	}
	return nics
}

// Inputs returns the input device descriptors.
func Inputs(doc *Document) []types.InputID {
	var inputs []types.InputID
	for _, el := range doc.Devices().SelectElements("input") {
		inputs = append(inputs, types.InputID{
			Type: attr(el, "type"),
			Bus:  attr(el, "bus"),
		})
	}
	return inputs
}

// Graphics returns the graphics device descriptors.
func Graphics(doc *Document) []types.GraphicsID {
	var gfx []types.GraphicsID
	for _, el := range doc.Devices().SelectElements("graphics") {
		g := types.GraphicsID{Type: attr(el, "type")}
		if g.Type == "vnc" {
			g.Listen = attr(el, "listen")
			g.Port = attr(el, "port")
			g.Keymap = attr(el, "keymap")
		}
		gfx = append(gfx, g)
	}
	return gfx
}

// Sounds returns the sound device descriptors.
func Sounds(doc *Document) []types.SoundID {
	var sounds []types.SoundID
	for _, el := range doc.Devices().SelectElements("sound") {
		sounds = append(sounds, types.SoundID{Model: attr(el, "model")})
	}
	return sounds
}

// Videos returns the video device descriptors.
func Videos(doc *Document) []types.VideoID {
	var vids []types.VideoID
	for _, el := range doc.Devices().SelectElements("video") {
		model := el.SelectElement("model")
		if model == nil {
			continue
		}
		vids = append(vids, types.VideoID{
			Model: attr(model, "type"),
			VRAM:  attr(model, "vram"),
			Heads: attr(model, "heads"),
		})
	}
	return vids
}

// CharDevices returns serial, parallel and console descriptors. A console
// entry sharing its target port with a serial device is a duplicate of that
// serial line: the serial descriptor is flagged ConsoleDup and the console
// entry itself is suppressed from the list.
func CharDevices(doc *Document) []types.CharID {
	var chars []types.CharID
	var consoles []types.CharID

	for _, el := range doc.Devices().ChildElements() {
		kind := types.DeviceKind(el.Tag)
		switch kind {
		case types.DeviceSerial, types.DeviceParallel, types.DeviceConsole:
		default:
			continue
		}
		sourcePath := childAttr(el, "source", "path")
		if sourcePath == "" {
			sourcePath = attr(el, "tty")
		}
		dev := types.CharID{
			Device:     kind,
			Port:       childAttr(el, "target", "port"),
			Type:       attr(el, "type"),
			SourcePath: sourcePath,
		}
		if kind == types.DeviceConsole {
			consoles = append(consoles, dev)
			continue
		}
		chars = append(chars, dev)
	}

	for _, con := range consoles {
		dup := false
		if con.Port != "" {
			for i := range chars {
				if chars[i].Device == types.DeviceSerial && chars[i].Port == con.Port {
					chars[i].ConsoleDup = true
					dup = true
					break
				}
			}
		}
		if !dup {
			chars = append(chars, con)
		}
	}
	return chars
}

// HostDevices returns the host-attached device descriptors. Devices whose
// source carries neither a positional address nor vendor/product ids are
// skipped — without those there is no way to establish uniqueness.
func HostDevices(doc *Document) []types.HostDeviceID {
	var hostdevs []types.HostDeviceID
	for _, el := range doc.Devices().SelectElements("hostdev") {
		h := types.HostDeviceID{
			Type: attr(el, "type"),
			Mode: attr(el, "mode"),
		}
		src := el.SelectElement("source")
		if src != nil {
			if addrEl := src.SelectElement("address"); addrEl != nil {
				h.Address = &types.HostAddress{
					Domain:   attr(addrEl, "domain"),
					Bus:      attr(addrEl, "bus"),
					Slot:     attr(addrEl, "slot"),
					Function: attr(addrEl, "function"),
					Device:   attr(addrEl, "device"),
				}
			}
			h.Vendor = childAttr(src, "vendor", "id")
			h.Product = childAttr(src, "product", "id")
		}

		addressable := (h.Vendor != "" && h.Product != "") ||
			(h.Address != nil && (h.Address.USB() || h.Address.PCI()))
		if !addressable {
			continue
		}
		hostdevs = append(hostdevs, h)
	}
	return hostdevs
}

// DeviceElement serializes the first node matching id, e.g. for hot detach.
func DeviceElement(doc *Document, id types.DeviceID) (string, error) {
	nodes, err := Locate(doc, id)
	if err != nil {
		return "", err
	}
	return SerializeElement(nodes[0])
}
