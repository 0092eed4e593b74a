package guest

import (
	"context"
	"fmt"

	"github.com/beevik/etree"

	"github.com/projecteru2/virtmon/domconf"
	"github.com/projecteru2/virtmon/types"
)

// Removable media handling. Connecting media rewrites the disk's type,
// source and driver; disconnecting strips the source so the drive reads as
// empty.

// ChangeRemovableMedia redefines the persistent definition with the disk's
// media swapped. An empty newPath ejects the media. sourceType is "file" or
// "block"; it is ignored on eject.
func (g *Guest) ChangeRemovableMedia(ctx context.Context, id types.DiskID, newPath, sourceType string) error {
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
		_, err := swapMedia(doc, id, newPath, sourceType)
		return err
	})
}

// HotSwapMedia swaps media on the live instance only: it rewrites the disk
// node of the active document and submits just that fragment, without
// persisting anything.
func (g *Guest) HotSwapMedia(ctx context.Context, id types.DiskID, newPath, sourceType string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.isActiveLocked() {
		return fmt.Errorf("hot swap media on %s: %w", g.conn.Name(), ErrNotRunning)
	}

	doc, err := g.parseActiveLocked(ctx, true)
	if err != nil {
		return err
	}
	node, err := swapMedia(doc, id, newPath, sourceType)
	if err != nil {
		return err
	}
	fragment, err := domconf.SerializeElement(node)
	if err != nil {
		return err
	}
	return g.conn.AttachDeviceFragment(ctx, fragment)
}

// swapMedia rewrites the identified disk node in doc and returns it.
func swapMedia(doc *domconf.Document, id types.DiskID, newPath, sourceType string) (*etree.Element, error) {
	nodes, err := domconf.Locate(doc, id)
	if err != nil {
		return nil, err
	}
	disk := nodes[0]

	if newPath == "" {
		disconnectMedia(disk)
		return disk, nil
	}
	connectMedia(disk, newPath, sourceType)
	return disk, nil
}

func disconnectMedia(disk *etree.Element) {
	if source := disk.SelectElement("source"); source != nil {
		disk.RemoveChild(source)
	}
}

func connectMedia(disk *etree.Element, newPath, sourceType string) {
	disk.CreateAttr("type", sourceType)

	source := disk.CreateElement("source")
	driverName := "phy"
	if sourceType == "file" {
		source.CreateAttr("file", newPath)
		driverName = "file"
	} else {
		source.CreateAttr("dev", newPath)
	}

	// Xen encodes the storage type in the driver name; only rewrite it
	// when it already uses that scheme.
	if driver := disk.SelectElement("driver"); driver != nil {
		name := driver.SelectAttrValue("name", "")
		if name == "file" || name == "phy" {
			driver.CreateAttr("name", driverName)
		}
	}
}
