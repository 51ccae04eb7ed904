package hdoc

import (
	"github.com/mindiply/hirardoc-sub000/internal/omap"
)

// NormalizedDocument is an immutable snapshot of a typed hierarchical
// document: a flat map from NodeId to *Node, keyed by canonical id, plus
// the schema that governs it and the id of its root node (spec.md
// section 3).
//
// Values are never mutated in place once a NormalizedDocument is built;
// MutableDocument.UpdatedDocument produces a new one sharing unmodified
// node pointers with its predecessor via omap.Map's copy-on-write clone.
type NormalizedDocument struct {
	schema *Schema
	rootId NodeId
	nodes  *omap.Map
}

// NewNormalizedDocument builds an empty document of the given schema, with
// a freshly created root node of the schema's root type.
func NewNormalizedDocument(schema *Schema, rootId NodeId, rootData map[string]interface{}) (*NormalizedDocument, error) {
	if rootId.Type != schema.RootType {
		return nil, NewConstraintError("", "root id type %q does not match schema root type %q", rootId.Type, schema.RootType)
	}
	root, err := schema.EmptyNode(schema.RootType, rootId, rootData)
	if err != nil {
		return nil, err
	}
	nodes := omap.New()
	nodes.Set(rootId.CanonicalId(), root)
	return &NormalizedDocument{schema: schema, rootId: rootId, nodes: nodes}, nil
}

// Schema returns the document's schema.
func (d *NormalizedDocument) Schema() *Schema { return d.schema }

// RootId returns the id of the document's root node.
func (d *NormalizedDocument) RootId() NodeId { return d.rootId }

// GetNode returns the node with the given id, if present.
func (d *NormalizedDocument) GetNode(id NodeId) (*Node, bool) {
	v, ok := d.nodes.Get(id.CanonicalId())
	if !ok {
		return nil, false
	}
	return v.(*Node), true
}

// MustGetNode returns the node with the given id, or an *HDocError of type
// ReferenceError if it does not exist.
func (d *NormalizedDocument) MustGetNode(id NodeId) (*Node, error) {
	n, ok := d.GetNode(id)
	if !ok {
		return nil, NewReferenceError("", "node %s does not exist", id)
	}
	return n, nil
}

// RootNode returns the document's root node.
func (d *NormalizedDocument) RootNode() *Node {
	n, _ := d.GetNode(d.rootId)
	return n
}

// NodeIds returns every live node id in the document, in insertion order.
func (d *NormalizedDocument) NodeIds() []NodeId {
	keys := d.nodes.Keys()
	out := make([]NodeId, 0, len(keys))
	d.nodes.Range(func(_ string, v interface{}) bool {
		out = append(out, v.(*Node).Id)
		return true
	})
	return out
}

// Len returns the number of live nodes in the document.
func (d *NormalizedDocument) Len() int { return d.nodes.Len() }

// PathOf returns the Path from the root to id.
func (d *NormalizedDocument) PathOf(id NodeId) (Path, error) {
	return pathForElementWithId(d, id)
}

// ResolvePath returns the id the given Path resolves to.
func (d *NormalizedDocument) ResolvePath(p Path) (NodeId, error) {
	return idAndTypeForPath(d, p)
}

// clone returns a NormalizedDocument sharing this one's node store via
// copy-on-write; callers mutate the clone's nodes map directly and never
// touch the receiver.
func (d *NormalizedDocument) clone() *NormalizedDocument {
	return &NormalizedDocument{schema: d.schema, rootId: d.rootId, nodes: d.nodes.Clone()}
}

// putNode installs (inserts or overwrites) a node. Internal: callers go
// through MutableDocument's primitives, which maintain I1-I7.
func (d *NormalizedDocument) putNode(n *Node) {
	d.nodes.Set(n.Id.CanonicalId(), n)
}

// removeNode tombstones a node's entry. Internal, see putNode.
func (d *NormalizedDocument) removeNode(id NodeId) {
	d.nodes.Delete(id.CanonicalId())
}

// ValidateInvariants checks I1, I2, I3 and I7 over the whole document
// (parent presence and back-links, forward-link targets, Array
// duplicates; I4-I6 are not checked here), returning a
// MultiError of every violation found (spec.md section 7, used by tests
// and by callers validating a document deserialized from elsewhere).
func (d *NormalizedDocument) ValidateInvariants() error {
	var errs MultiError
	d.nodes.Range(func(_ string, v interface{}) bool {
		n := v.(*Node)

		// I1/I7: non-root nodes have a parent, and that parent's declared
		// field actually links back to this node.
		if !EqualIds(n.Id, d.rootId) {
			if n.Parent == nil {
				errs.Append(NewIntegrityError("", "I1: node %s is not root but has no parent", n.Id))
			} else {
				parent, ok := d.GetNode(n.Parent.Parent)
				if !ok {
					errs.Append(NewIntegrityError("", "I1: node %s's parent %s does not exist", n.Id, n.Parent.Parent))
				} else if !parentLinksTo(parent, n.Parent.Field, n.Id) {
					errs.Append(NewIntegrityError("", "I7: parent %s field %q does not link back to %s", parent.Id, n.Parent.Field, n.Id))
				}
			}
		}

		// I2: every forward link target exists.
		for field, link := range n.Children {
			switch link.Kind {
			case KindSingle:
				if link.Single != nil {
					if _, ok := d.GetNode(*link.Single); !ok {
						errs.Append(NewIntegrityError("", "I2: %s.%s -> missing node %s", n.Id, field, *link.Single))
					}
				}
			case KindArray:
				seen := map[string]bool{}
				for _, id := range link.Array {
					if _, ok := d.GetNode(id); !ok {
						errs.Append(NewIntegrityError("", "I2: %s.%s -> missing node %s", n.Id, field, id))
					}
					key := id.CanonicalId()
					if seen[key] {
						errs.Append(NewIntegrityError("", "I3: %s.%s contains %s more than once", n.Id, field, id))
					}
					seen[key] = true
				}
			case KindSet:
				for _, id := range link.SetMembers() {
					if _, ok := d.GetNode(id); !ok {
						errs.Append(NewIntegrityError("", "I2: %s.%s -> missing node %s", n.Id, field, id))
					}
				}
			}
		}
		return true
	})
	return errs.AsError()
}

func parentLinksTo(parent *Node, field string, child NodeId) bool {
	link := parent.Children[field]
	if link == nil {
		link = parent.Links[field]
	}
	if link == nil {
		return false
	}
	switch link.Kind {
	case KindSingle:
		return link.Single != nil && EqualIds(*link.Single, child)
	case KindArray:
		for _, id := range link.Array {
			if EqualIds(id, child) {
				return true
			}
		}
		return false
	case KindSet:
		return link.HasSetMember(child)
	}
	return false
}

// ReIdSubtree rewrites every inbound reference to a moved/copied subtree's
// root from oldId to newId, and every node within the subtree so its id
// component of descendant Parent backpointers stays consistent, then
// returns the updated document (spec.md's reachability invariant I6,
// exercised when a node is moved across a reparenting boundary that
// requires a fresh id -- SPEC_FULL.md section 12).
//
// ReIdSubtree performs a whole-document scan: every node's Children/Links
// that reference oldId are rewritten to newId, and the direct children of
// the renamed root get their Parent.Parent back-pointer set to newId. Only
// the root's identity changes: its descendants keep their own ids.
func (d *NormalizedDocument) ReIdSubtree(oldId, newId NodeId) (*NormalizedDocument, error) {
	root, ok := d.GetNode(oldId)
	if !ok {
		return nil, NewReferenceError("", "ReIdSubtree: %s does not exist", oldId)
	}
	if _, exists := d.GetNode(newId); exists {
		return nil, NewUniquenessError("", "ReIdSubtree: target id %s already exists", newId)
	}

	out := d.clone()
	renamed := root.Clone()
	renamed.Id = newId
	out.removeNode(oldId)
	out.putNode(renamed)

	// Rewrite the back-pointer of every direct child of the renamed root.
	for field, link := range renamed.Children {
		rewriteChildrenParent(out, link, newId, field)
	}
	for field, link := range renamed.Links {
		rewriteChildrenParent(out, link, newId, field)
	}

	// Rewrite every other node's forward links/parent pointer that
	// mentioned oldId. Clone first, then mutate only the clone's maps.
	for _, id := range out.NodeIds() {
		if EqualIds(id, newId) {
			continue
		}
		n, _ := out.GetNode(id)
		clone := n.Clone()
		changed := false
		if clone.Parent != nil && EqualIds(clone.Parent.Parent, oldId) {
			clone.Parent.Parent = newId
			changed = true
		}
		for _, m := range []map[string]*NodeLink{clone.Children, clone.Links} {
			for _, link := range m {
				if rewriteLinkTarget(link, oldId, newId) {
					changed = true
				}
			}
		}
		if changed {
			out.putNode(clone)
		}
	}

	if root.Parent != nil {
		if err := assertReachable(out, newId); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func rewriteChildrenParent(d *NormalizedDocument, link *NodeLink, newParent NodeId, field string) {
	ids := linkTargets(link)
	for _, id := range ids {
		child, ok := d.GetNode(id)
		if !ok || child.Parent == nil {
			continue
		}
		clone := child.Clone()
		clone.Parent.Parent = newParent
		clone.Parent.Field = field
		d.putNode(clone)
	}
}

func linkTargets(link *NodeLink) []NodeId {
	switch link.Kind {
	case KindSingle:
		if link.Single == nil {
			return nil
		}
		return []NodeId{*link.Single}
	case KindArray:
		return link.Array
	case KindSet:
		return link.SetMembers()
	}
	return nil
}

// rewriteLinkTarget rewrites in place any occurrence of oldId within link
// to newId, returning whether it changed anything.
func rewriteLinkTarget(link *NodeLink, oldId, newId NodeId) bool {
	changed := false
	switch link.Kind {
	case KindSingle:
		if link.Single != nil && EqualIds(*link.Single, oldId) {
			id := newId
			link.Single = &id
			changed = true
		}
	case KindArray:
		for i, id := range link.Array {
			if EqualIds(id, oldId) {
				link.Array[i] = newId
				changed = true
			}
		}
	case KindSet:
		if link.HasSetMember(oldId) {
			link.removeSetMember(oldId)
			link.addSetMember(newId)
			changed = true
		}
	}
	return changed
}

// assertReachable walks ancestors of id up to the root, failing if the
// chain does not terminate there (I6).
func assertReachable(d *NormalizedDocument, id NodeId) error {
	cur := id
	seen := map[string]bool{}
	for {
		if EqualIds(cur, d.rootId) {
			return nil
		}
		n, ok := d.GetNode(cur)
		if !ok {
			return NewIntegrityError("", "I6: %s is unreachable (missing ancestor)", id)
		}
		if n.Parent == nil {
			return NewIntegrityError("", "I6: %s is unreachable (no parent, not root)", id)
		}
		key := cur.CanonicalId()
		if seen[key] {
			return NewIntegrityError("", "I6: cycle detected ascending from %s", id)
		}
		seen[key] = true
		cur = n.Parent.Parent
	}
}
