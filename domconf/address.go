package domconf

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/projecteru2/virtmon/types"
)

// AddressingError means the identity payload was insufficient to even form
// a device query — as opposed to a well-formed query matching nothing,
// which is ErrDeviceNotFound.
type AddressingError struct {
	Kind   types.DeviceKind
	Reason string
}

func (e *AddressingError) Error() string {
	return fmt.Sprintf("cannot address %s device: %s", e.Kind, e.Reason)
}

// Locate finds the node(s) identified by id inside doc.
//
// Documents are assumed well-formed with at most one true match per
// identity; the first matching node wins. The one multi-node case is
// serial: hypervisor documents commonly duplicate a serial line as a
// console entry on the same target port, and both must be edited or
// removed together, so the paired console node is included in the result.
func Locate(doc *Document, id types.DeviceID) ([]*etree.Element, error) {
	match, err := matcher(id)
	if err != nil {
		return nil, err
	}

	var found *etree.Element
	for _, el := range doc.Devices().ChildElements() {
		if el.Tag != string(id.Kind()) {
			continue
		}
		if match(el) {
			found = el
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s %q", ErrDeviceNotFound, id.Kind(), id.Label())
	}

	nodes := []*etree.Element{found}
	if cid, ok := id.(types.CharID); ok && cid.Device == types.DeviceSerial {
		if con := findConsoleByPort(doc, cid.Port); con != nil {
			nodes = append(nodes, con)
		}
	}
	return nodes, nil
}

// matcher builds the per-kind predicate for id. The switch is exhaustive
// over the DeviceID sum; adding a new identity type without a case here is
// an addressing error at runtime and a review error at compile review time.
func matcher(id types.DeviceID) (func(*etree.Element) bool, error) {
	switch v := id.(type) {
	case types.InterfaceID:
		return func(el *etree.Element) bool {
			return childAttr(el, "mac", "address") == v.MAC
		}, nil

	case types.DiskID:
		return func(el *etree.Element) bool {
			return childAttr(el, "target", "dev") == v.Target
		}, nil

	case types.InputID:
		return func(el *etree.Element) bool {
			return attr(el, "type") == v.Type && attr(el, "bus") == v.Bus
		}, nil

	case types.GraphicsID:
		return func(el *etree.Element) bool {
			return attr(el, "type") == v.Type
		}, nil

	case types.SoundID:
		return func(el *etree.Element) bool {
			return attr(el, "model") == v.Model
		}, nil

	case types.CharID:
		switch v.Device {
		case types.DeviceSerial, types.DeviceParallel, types.DeviceConsole:
		default:
			return nil, &AddressingError{Kind: v.Device, Reason: "not a character device kind"}
		}
		return func(el *etree.Element) bool {
			return childAttr(el, "target", "port") == v.Port
		}, nil

	case types.VideoID:
		// Each present attribute narrows the match; absent ones are
		// unconstrained.
		return func(el *etree.Element) bool {
			model := el.SelectElement("model")
			if model == nil || attr(model, "type") != v.Model {
				return false
			}
			if v.VRAM != "" && attr(model, "vram") != v.VRAM {
				return false
			}
			if v.Heads != "" && attr(model, "heads") != v.Heads {
				return false
			}
			return true
		}, nil

	case types.HostDeviceID:
		return hostDeviceMatcher(v)

	default:
		return nil, &AddressingError{Kind: id.Kind(), Reason: "unknown identity type"}
	}
}

// hostDeviceMatcher derives the matching strategy from the identity
// payload: a usable positional address wins, vendor+product is the
// fallback, anything less cannot form a query.
func hostDeviceMatcher(v types.HostDeviceID) (func(*etree.Element) bool, error) {
	typeMatches := func(el *etree.Element) bool {
		return attr(el, "type") == v.Type
	}

	if a := v.Address; a != nil && a.USB() {
		return func(el *etree.Element) bool {
			if !typeMatches(el) {
				return false
			}
			addr := sourceAddress(el)
			return addr != nil &&
				attr(addr, "bus") == a.Bus && attr(addr, "device") == a.Device
		}, nil
	}
	if a := v.Address; a != nil && a.PCI() {
		return func(el *etree.Element) bool {
			if !typeMatches(el) {
				return false
			}
			addr := sourceAddress(el)
			return addr != nil &&
				attr(addr, "bus") == a.Bus && attr(addr, "slot") == a.Slot &&
				attr(addr, "function") == a.Function && attr(addr, "domain") == a.Domain
		}, nil
	}
	if v.Vendor != "" && v.Product != "" {
		return func(el *etree.Element) bool {
			if !typeMatches(el) {
				return false
			}
			src := el.SelectElement("source")
			return src != nil &&
				childAttr(src, "vendor", "id") == v.Vendor &&
				childAttr(src, "product", "id") == v.Product
		}, nil
	}
	return nil, &AddressingError{
		Kind:   types.DeviceHost,
		Reason: "neither a positional address nor vendor/product ids available",
	}
}

func sourceAddress(el *etree.Element) *etree.Element {
	src := el.SelectElement("source")
	if src == nil {
		return nil
	}
	return src.SelectElement("address")
}

func findConsoleByPort(doc *Document, port string) *etree.Element {
	for _, el := range doc.Devices().ChildElements() {
		if el.Tag != string(types.DeviceConsole) {
			continue
		}
		if childAttr(el, "target", "port") == port {
			return el
		}
	}
	return nil
}
