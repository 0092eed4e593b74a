package guest

import (
	"context"
	"regexp"
	"strconv"

	"github.com/projecteru2/virtmon/domconf"
	"github.com/projecteru2/virtmon/types"
)

// Machine-setting transforms. Each is a thin Redefine wrapper editing one
// well-known element of the persistent definition.

// cpusetRe accepts masks like "0-3", "1,3,5-7", "0-7,^5".
var cpusetRe = regexp.MustCompile(`^\^?\d+(-\d+)?(,\^?\d+(-\d+)?)*$`)

// DefineVCPUs sets the vCPU count and optionally the cpuset pinning mask.
// An empty cpuset removes the pinning; an invalid mask leaves the existing
// pinning untouched.
func (g *Guest) DefineVCPUs(ctx context.Context, vcpus int, cpuset string) error {
	return g.Redefine(ctx, func(doc *domconf.Document) error {
		node := doc.Root().SelectElement("vcpu")
		if node == nil {
			return nil
		}
		node.SetText(strconv.Itoa(vcpus))
		switch {
		case cpuset == "":
			node.RemoveAttr("cpuset")
		case cpusetRe.MatchString(cpuset):
			node.CreateAttr("cpuset", cpuset)
		}
		return nil
	})
}

// DefineMemory sets current and/or maximum memory (KiB) in the persistent
// definition. Zero leaves a field unchanged.
func (g *Guest) DefineMemory(ctx context.Context, currKB, maxKB uint64) error {
	return g.Redefine(ctx, func(doc *domconf.Document) error {
		if currKB != 0 {
			if node := doc.Root().SelectElement("currentMemory"); node != nil {
				node.SetText(strconv.FormatUint(currKB, 10))
			}
		}
		if maxKB != 0 {
			if node := doc.Root().SelectElement("memory"); node != nil {
				node.SetText(strconv.FormatUint(maxKB, 10))
			}
		}
		return nil
	})
}

// SetBootDevice switches the first boot entry to the given device type.
func (g *Guest) SetBootDevice(ctx context.Context, bootType string) error {
	return g.Redefine(ctx, func(doc *domconf.Document) error {
		node := doc.Root().FindElement("os/boot")
		if node != nil && node.SelectAttrValue("dev", "") != "" {
			node.CreateAttr("dev", bootType)
		}
		return nil
	})
}

// DefineFeature toggles a features child element (acpi, apic) on or off.
func (g *Guest) DefineFeature(ctx context.Context, name string, enable bool) error {
	return g.Redefine(ctx, func(doc *domconf.Document) error {
		features := doc.Root().SelectElement("features")
		if features == nil {
			if !enable {
				return nil
			}
			features = doc.Root().CreateElement("features")
		}
		node := features.SelectElement(name)
		switch {
		case node != nil && !enable:
			features.RemoveChild(node)
		case node == nil && enable:
			features.CreateElement(name)
		}
		return nil
	})
}

// DefineClockOffset sets the clock offset mode when a clock element exists.
func (g *Guest) DefineClockOffset(ctx context.Context, offset string) error {
	return g.Redefine(ctx, func(doc *domconf.Document) error {
		if node := doc.Root().SelectElement("clock"); node != nil {
			node.CreateAttr("offset", offset)
		}
		return nil
	})
}

// DefineSecurityLabel rewrites the security label. An empty model removes
// the label entirely.
func (g *Guest) DefineSecurityLabel(ctx context.Context, model, labelType, label string) error {
	return g.Redefine(ctx, func(doc *domconf.Document) error {
		node := doc.Root().SelectElement("seclabel")
		switch {
		case model == "":
			if node != nil {
				doc.Root().RemoveChild(node)
			}
		case node == nil:
			node = doc.Root().CreateElement("seclabel")
			node.CreateAttr("model", model)
			node.CreateAttr("type", labelType)
			node.CreateElement("label").SetText(label)
		default:
			node.CreateAttr("model", model)
			node.CreateAttr("type", labelType)
			if l := node.SelectElement("label"); l != nil {
				l.SetText(label)
			} else {
				node.CreateElement("label").SetText(label)
			}
		}
		return nil
	})
}

// DefineDiskReadonly toggles the readonly marker on a disk.
func (g *Guest) DefineDiskReadonly(ctx context.Context, id types.DiskID, readonly bool) error {
	return g.defineDiskFlag(ctx, id, "readonly", readonly)
}

// DefineDiskShareable toggles the shareable marker on a disk.
func (g *Guest) DefineDiskShareable(ctx context.Context, id types.DiskID, shareable bool) error {
	return g.defineDiskFlag(ctx, id, "shareable", shareable)
}

func (g *Guest) defineDiskFlag(ctx context.Context, id types.DiskID, flag string, enable bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	present, err := g.devicePresentLocked(ctx, id)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}

	return g.redefineLocked(ctx, func(doc *domconf.Document) error {
		nodes, err := domconf.Locate(doc, id)
		if err != nil {
			return err
		}
		disk := nodes[0]
		node := disk.SelectElement(flag)
		switch {
		case node != nil && !enable:
			disk.RemoveChild(node)
		case node == nil && enable:
			disk.CreateElement(flag)
		}
		return nil
	})
}
