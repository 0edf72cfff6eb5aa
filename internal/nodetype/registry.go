// Package nodetype consumes the node-type registry as a read-only oracle:
// it answers "what are the mandatory default properties of type T?" for
// the manager's root bootstrap. Child-node definitions are not modelled.
// Parsing a node-type schema definition format is out of scope; this
// package only exposes lookup.
package nodetype

import (
	"jcrcore/internal/itemid"
	"jcrcore/internal/value"
)

// PropertyDef describes a mandatory default property of a node type.
type PropertyDef struct {
	ID          string
	Name        itemid.QName
	Type        value.Type
	MultiValued bool
}

// NodeDef describes a node type: its name and the mandatory property
// definitions nt:base (or the type itself) declares.
type NodeDef struct {
	ID         string
	Name       itemid.QName
	Properties []PropertyDef
}

// Registry is the read-only oracle the manager consults at bootstrap.
type Registry interface {
	// RootNodeDef returns the definition used for the repository root.
	RootNodeDef() (NodeDef, error)
	// NodeTypeDef looks up a node type by qualified name.
	NodeTypeDef(name itemid.QName) (NodeDef, error)
}

// StaticRegistry is a fixed, in-memory Registry sufficient for bootstrap
// and tests: a small map of well-known type definitions rather than a
// real schema parser.
type StaticRegistry struct {
	types map[itemid.QName]NodeDef
	root  itemid.QName
}

// NewStaticRegistry constructs a registry seeded with defs, with root
// naming the type to use for RootNodeDef.
func NewStaticRegistry(root itemid.QName, defs ...NodeDef) *StaticRegistry {
	r := &StaticRegistry{types: make(map[itemid.QName]NodeDef), root: root}
	for _, d := range defs {
		r.types[d.Name] = d
	}
	return r
}

// RootNodeDef returns the definition registered for the registry's root
// type.
func (r *StaticRegistry) RootNodeDef() (NodeDef, error) {
	return r.NodeTypeDef(r.root)
}

// NodeTypeDef looks up a node type by qualified name.
func (r *StaticRegistry) NodeTypeDef(name itemid.QName) (NodeDef, error) {
	d, ok := r.types[name]
	if !ok {
		return NodeDef{}, ErrNoSuchNodeType
	}
	return d, nil
}
