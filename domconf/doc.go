// Package domconf owns the in-memory representation of machine
// configuration documents: parsing, normalization, structural addressing of
// devices and typed device-list extraction. Documents are treated as values:
// every edit parses a fresh tree, transforms it and serializes a new string,
// nothing is mutated in place after being handed out.
package domconf

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrDeviceNotFound is returned when addressing criteria are valid but no
// node in the document matches them. Callers are expected to treat this as
// recoverable (see the converged-state rule in guest.RemoveDevice).
var ErrDeviceNotFound = errors.New("device not found in configuration")

// Document is one parsed configuration snapshot.
type Document struct {
	tree *etree.Document
}

// Parse reads a configuration document from its XML text.
func Parse(xml string) (*Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromString(xml); err != nil {
		return nil, fmt.Errorf("parse config document: %w", err)
	}
	if tree.Root() == nil {
		return nil, fmt.Errorf("parse config document: no root element")
	}
	return &Document{tree: tree}, nil
}

// Serialize renders the document back to XML text.
func (d *Document) Serialize() (string, error) {
	out, err := d.tree.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize config document: %w", err)
	}
	return out, nil
}

// Normalize round-trips xml through a parse-then-serialize pass so that
// structurally equivalent documents compare equal as strings regardless of
// their original formatting. Redefinition diffs against the normalized form
// to avoid false positives.
func Normalize(xml string) (string, error) {
	doc, err := Parse(xml)
	if err != nil {
		return "", err
	}
	return doc.Serialize()
}

// Root returns the document's root element.
func (d *Document) Root() *etree.Element { return d.tree.Root() }

// Devices returns the devices container element, creating it if absent.
func (d *Document) Devices() *etree.Element {
	if el := d.tree.Root().SelectElement("devices"); el != nil {
		return el
	}
	return d.tree.Root().CreateElement("devices")
}

// PathText returns the text of the first element matching an etree path
// relative to the root, or "" when absent.
func (d *Document) PathText(path string) string {
	if el := d.tree.Root().FindElement(path); el != nil {
		return el.Text()
	}
	return ""
}

// PathAttr returns the named attribute of the first element matching path,
// or "" when the element or attribute is absent. An empty path addresses
// the root element itself.
func (d *Document) PathAttr(path, attr string) string {
	el := d.tree.Root()
	if path != "" {
		el = d.tree.Root().FindElement(path)
	}
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(attr, "")
}

// AppendDeviceFragment parses a single device fragment and appends it to
// the devices container.
func (d *Document) AppendDeviceFragment(fragment string) error {
	frag := etree.NewDocument()
	if err := frag.ReadFromString(fragment); err != nil {
		return fmt.Errorf("parse device fragment: %w", err)
	}
	root := frag.Root()
	if root == nil {
		return fmt.Errorf("parse device fragment: no root element")
	}
	d.Devices().AddChild(root.Copy())
	return nil
}

// SerializeElement renders a single element subtree, e.g. one device node
// for hot attach/detach.
func SerializeElement(el *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize element <%s>: %w", el.Tag, err)
	}
	return out, nil
}

// childAttr returns child/@attr of el, or "" if the child or attribute is
// missing.
func childAttr(el *etree.Element, child, attr string) string {
	c := el.SelectElement(child)
	if c == nil {
		return ""
	}
	return c.SelectAttrValue(attr, "")
}

// attr returns el/@attr or "".
func attr(el *etree.Element, name string) string {
	return el.SelectAttrValue(name, "")
}
