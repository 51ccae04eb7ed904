package hdoc

import (
	"github.com/mindiply/hirardoc-sub000/internal/idgen"
)

// ChangeOp names which of the four structural primitives a Change
// records (spec.md section 4).
type ChangeOp int

const (
	OpInsert ChangeOp = iota
	OpChange
	OpMove
	OpDelete
)

func (op ChangeOp) String() string {
	switch op {
	case OpInsert:
		return "Insert"
	case OpChange:
		return "Change"
	case OpMove:
		return "Move"
	case OpDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Change is one fully-resolved entry of a MutableDocument's change log:
// every target is a concrete NodeId, never a Path, so a log is replayable
// without re-running path resolution (spec.md section 4, "append-only
// change log with resolved targets").
type Change struct {
	Op       ChangeOp
	NodeId   NodeId
	NodeType string

	// Insert: initial Data. Change: the fields being overwritten (merged
	// over the existing Data, not a replacement of it).
	Data map[string]interface{}

	// Insert/Move: destination.
	ParentId NodeId
	Field    string
	Index    *int

	// Move: origin, recorded for diagnostics/undo; not consulted by replay.
	OldParentId *NodeId
	OldField    string
	OldIndex    *int
}

// Position names where, within one field of a parent, an inserted or
// moved node should land. Index is only meaningful for Array fields; nil
// means "append".
type Position struct {
	Field string
	Index *int
}

// At returns a Position targeting a specific array index.
func At(field string, index int) Position { return Position{Field: field, Index: &index} }

// End returns a Position appending to an array field (or simply targeting
// a Single/Set field).
func End(field string) Position { return Position{Field: field} }

// ElementRef names an existing node either directly by NodeId or by the
// Path to it; MutableDocument resolves either form to a NodeId before
// acting.
type ElementRef struct {
	id   *NodeId
	path Path
}

// ByID returns an ElementRef naming id directly.
func ByID(id NodeId) ElementRef { return ElementRef{id: &id} }

// ByPath returns an ElementRef that resolves against the document at the
// time it is used.
func ByPath(p Path) ElementRef { return ElementRef{path: p} }

// RootRef names the document's root node.
func RootRef() ElementRef { return ElementRef{path: Path{}} }

func (d *MutableDocument) resolve(ref ElementRef) (NodeId, error) {
	if ref.id != nil {
		if _, ok := d.working.GetNode(*ref.id); !ok {
			return ZeroNodeId, NewReferenceError("", "node %s does not exist", *ref.id)
		}
		return *ref.id, nil
	}
	return idAndTypeForPath(d.working, ref.path)
}

// MutableDocument is the only way to produce a new NormalizedDocument
// version: callers apply a batch of Insert/Change/Move/Delete primitives,
// then call UpdatedDocument for the resulting snapshot (spec.md section
// 4). Each successful primitive call appends one or more Changes to the
// log returned by Changes.
type MutableDocument struct {
	base    *NormalizedDocument
	working *NormalizedDocument
	changes []Change
	idGen   idgen.Generator
}

// NewMutableDocument begins an editing session on top of doc. doc itself
// is never modified.
func NewMutableDocument(doc *NormalizedDocument) *MutableDocument {
	return &MutableDocument{base: doc, working: doc.clone(), idGen: idgen.UUID()}
}

// SetIdGenerator overrides the generator used when InsertElement is called
// without an explicit id component (default: random UUID).
func (d *MutableDocument) SetIdGenerator(gen idgen.Generator) { d.idGen = gen }

// BaseDocument returns the document this session started from.
func (d *MutableDocument) BaseDocument() *NormalizedDocument { return d.base }

// UpdatedDocument returns the current working snapshot.
func (d *MutableDocument) UpdatedDocument() *NormalizedDocument { return d.working }

// Changes returns every Change recorded so far, in application order.
func (d *MutableDocument) Changes() []Change {
	out := make([]Change, len(d.changes))
	copy(out, d.changes)
	return out
}

// InsertElement creates a node of typeName under parent's named field at
// pos. If id is the zero NodeId, an id is minted via the configured
// generator. Returns the new node's id.
func (d *MutableDocument) InsertElement(parent ElementRef, pos Position, typeName string, id NodeId, data map[string]interface{}) (NodeId, error) {
	parentId, err := d.resolve(parent)
	if err != nil {
		return ZeroNodeId, err
	}
	parentNode, err := d.working.MustGetNode(parentId)
	if err != nil {
		return ZeroNodeId, err
	}
	if id.Type == "" {
		id.Type = typeName
	}
	if id.Type != typeName {
		return ZeroNodeId, NewConstraintError("", "id type %q does not match node type %q", id.Type, typeName)
	}
	if id.ID == nil {
		id.ID = d.idGen()
	}
	if _, exists := d.working.GetNode(id); exists {
		return ZeroNodeId, NewUniquenessError("", "node %s already exists", id)
	}
	if !d.working.schema.AcceptsType(parentNode.Id.Type, pos.Field, typeName) {
		return ZeroNodeId, NewConstraintError("", "field %q of %s does not accept type %q", pos.Field, parentNode.Id.Type, typeName)
	}

	node, err := d.working.schema.EmptyNode(typeName, id, cloneData(data))
	if err != nil {
		return ZeroNodeId, err
	}
	if err := d.attach(node, parentId, pos.Field, pos.Index); err != nil {
		return ZeroNodeId, err
	}
	d.changes = append(d.changes, Change{
		Op: OpInsert, NodeId: id, NodeType: typeName,
		Data: cloneData(data), ParentId: parentId, Field: pos.Field, Index: pos.Index,
	})
	return id, nil
}

// ChangeElement merges data over the existing Data fields of the node ref
// resolves to. Keys not present in data are left untouched.
func (d *MutableDocument) ChangeElement(ref ElementRef, data map[string]interface{}) error {
	id, err := d.resolve(ref)
	if err != nil {
		return err
	}
	n, _ := d.working.GetNode(id)
	clone := n.Clone()
	if clone.Data == nil {
		clone.Data = map[string]interface{}{}
	}
	for k, v := range data {
		clone.Data[k] = v
	}
	d.working.putNode(clone)
	d.changes = append(d.changes, Change{Op: OpChange, NodeId: id, NodeType: id.Type, Data: cloneData(data)})
	return nil
}

// MoveElement relocates the node ref resolves to under newParent's named
// field at pos.
//
// If the node's current parent link is Single, the move is recorded as
// two Changes: first into root.__orphans, then from there to the
// destination, matching the two-step log spec.md's Move section
// describes for the analogous scenario (SPEC_FULL.md sections 4 and 9). A move
// that would be a true no-op (same parent, same field, same position) is
// a no-op and records nothing.
//
// If the destination is a Single field already occupied by a different
// node, the occupant is first displaced into root.__orphans as its own
// Move.
func (d *MutableDocument) MoveElement(ref ElementRef, newParent ElementRef, pos Position) error {
	id, err := d.resolve(ref)
	if err != nil {
		return err
	}
	destParentId, err := d.resolve(newParent)
	if err != nil {
		return err
	}
	n, err := d.working.MustGetNode(id)
	if err != nil {
		return err
	}
	if n.Parent == nil {
		return NewConstraintError("", "cannot move the root node")
	}
	destParentNode, err := d.working.MustGetNode(destParentId)
	if err != nil {
		return err
	}
	if !d.working.schema.AcceptsType(destParentNode.Id.Type, pos.Field, id.Type) {
		return NewConstraintError("", "field %q of %s does not accept type %q", pos.Field, destParentNode.Id.Type, id.Type)
	}

	srcParentId, srcField, srcIndex := n.Parent.Parent, n.Parent.Field, n.Parent.Index
	if EqualIds(srcParentId, destParentId) && srcField == pos.Field && samePosition(srcIndex, pos.Index) {
		return nil
	}

	srcFieldKind, err := fieldKind(d.working, srcParentId, srcField)
	if err != nil {
		return err
	}

	if destFd, _ := d.working.schema.FieldOf(destParentNode.Id.Type, pos.Field); destFd.Kind == KindSingle {
		if occupied, ok := d.working.GetNode(destParentId); ok {
			if occ := occupied.Children[pos.Field]; occ != nil && occ.Single != nil && !EqualIds(*occ.Single, id) {
				if err := d.moveInternal(*occ.Single, d.working.rootId, OrphansField, nil); err != nil {
					return err
				}
			}
		}
	}

	if srcFieldKind == KindSingle {
		if err := d.moveInternal(id, d.working.rootId, OrphansField, nil); err != nil {
			return err
		}
		return d.moveInternal(id, destParentId, pos.Field, pos.Index)
	}
	return d.moveInternal(id, destParentId, pos.Field, pos.Index)
}

// moveInternal performs one atomic detach+attach and appends one Change.
func (d *MutableDocument) moveInternal(id, destParentId NodeId, field string, index *int) error {
	n, err := d.working.MustGetNode(id)
	if err != nil {
		return err
	}
	oldParentId, oldField, oldIndex := n.Parent.Parent, n.Parent.Field, n.Parent.Index
	if err := d.detach(id); err != nil {
		return err
	}
	if err := d.attach(n, destParentId, field, index); err != nil {
		return err
	}
	d.changes = append(d.changes, Change{
		Op: OpMove, NodeId: id, NodeType: id.Type,
		ParentId: destParentId, Field: field, Index: index,
		OldParentId: &oldParentId, OldField: oldField, OldIndex: oldIndex,
	})
	return nil
}

// DeleteElement removes the subtree rooted at ref, post-order, and strips
// any dangling informal Links elsewhere in the document that pointed into
// it (preserving I2 without touching ownership elsewhere).
func (d *MutableDocument) DeleteElement(ref ElementRef) error {
	id, err := d.resolve(ref)
	if err != nil {
		return err
	}
	n, err := d.working.MustGetNode(id)
	if err != nil {
		return err
	}
	if n.Parent == nil {
		return NewConstraintError("", "cannot delete the root node")
	}
	if err := d.detach(id); err != nil {
		return err
	}

	var order []NodeId
	_, err = Visit(d.working, id, struct{}{}, VisitOptions[struct{}]{
		Order: DepthFirst,
		Visit: func(s struct{}, _ nodeReader, node *Node) (struct{}, bool) {
			order = append(order, node.Id)
			return s, true
		},
	})
	if err != nil {
		return err
	}
	for i := len(order) - 1; i >= 0; i-- {
		d.working.removeNode(order[i])
		d.changes = append(d.changes, Change{Op: OpDelete, NodeId: order[i], NodeType: order[i].Type})
	}

	removed := map[string]bool{}
	for _, rid := range order {
		removed[rid.CanonicalId()] = true
	}
	for _, nid := range d.working.NodeIds() {
		node, _ := d.working.GetNode(nid)
		if node.Links == nil {
			continue
		}
		clone := node
		touched := false
		for field, link := range node.Links {
			nl := link
			for _, target := range linkTargets(link) {
				if removed[target.CanonicalId()] {
					if !touched {
						clone = node.Clone()
						touched = true
					}
					nl = clone.Links[field]
					switch nl.Kind {
					case KindSingle:
						nl.Single = nil
					case KindArray:
						filtered := nl.Array[:0]
						for _, e := range nl.Array {
							if !removed[e.CanonicalId()] {
								filtered = append(filtered, e)
							}
						}
						nl.Array = filtered
					case KindSet:
						nl.removeSetMember(target)
					}
				}
			}
		}
		if touched {
			d.working.putNode(clone)
		}
	}
	return nil
}

// ApplyChanges replays a previously recorded change log (e.g. from Diff or
// a persisted history entry) onto the current working document.
func (d *MutableDocument) ApplyChanges(changes []Change) error {
	for _, c := range changes {
		switch c.Op {
		case OpInsert:
			node, err := d.working.schema.EmptyNode(c.NodeType, c.NodeId, cloneData(c.Data))
			if err != nil {
				return err
			}
			if err := d.attach(node, c.ParentId, c.Field, c.Index); err != nil {
				return err
			}
		case OpChange:
			n, err := d.working.MustGetNode(c.NodeId)
			if err != nil {
				return err
			}
			clone := n.Clone()
			if clone.Data == nil {
				clone.Data = map[string]interface{}{}
			}
			for k, v := range c.Data {
				clone.Data[k] = v
			}
			d.working.putNode(clone)
		case OpMove:
			if err := d.detach(c.NodeId); err != nil {
				return err
			}
			n, _ := d.working.GetNode(c.NodeId)
			if err := d.attach(n, c.ParentId, c.Field, c.Index); err != nil {
				return err
			}
		case OpDelete:
			if err := (&MutableDocument{working: d.working}).DeleteElement(ByID(c.NodeId)); err != nil {
				return err
			}
		}
		d.changes = append(d.changes, c)
	}
	return nil
}

// detach removes id from its current parent's link and clears its Parent
// pointer, reindexing any Array siblings shifted by the removal.
func (d *MutableDocument) detach(id NodeId) error {
	n, err := d.working.MustGetNode(id)
	if err != nil {
		return err
	}
	if n.Parent == nil {
		return NewConstraintError("", "node %s has no parent to detach from", id)
	}
	parent, err := d.working.MustGetNode(n.Parent.Parent)
	if err != nil {
		return err
	}
	parentClone := parent.Clone()
	link := parentClone.Children[n.Parent.Field]
	if link == nil {
		return NewIntegrityError("", "parent %s has no field %q", parent.Id, n.Parent.Field)
	}
	switch link.Kind {
	case KindSingle:
		link.Single = nil
	case KindArray:
		idx := -1
		for i, e := range link.Array {
			if EqualIds(e, id) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return NewIntegrityError("", "array field %q of %s does not contain %s", n.Parent.Field, parent.Id, id)
		}
		link.Array = append(link.Array[:idx], link.Array[idx+1:]...)
	case KindSet:
		link.removeSetMember(id)
	}
	d.working.putNode(parentClone)

	childClone := n.Clone()
	childClone.Parent = nil
	d.working.putNode(childClone)

	if link.Kind == KindArray {
		d.reindexArray(parentClone.Id, n.Parent.Field)
	}
	return nil
}

// attach installs node as a child of destParentId's named field at index,
// setting its Parent pointer and reindexing Array siblings.
func (d *MutableDocument) attach(node *Node, destParentId NodeId, field string, index *int) error {
	parent, err := d.working.MustGetNode(destParentId)
	if err != nil {
		return err
	}
	parentClone := parent.Clone()
	link := parentClone.Children[field]
	if link == nil {
		return NewConstraintError("", "%s has no field %q", destParentId, field)
	}
	if index != nil && link.Kind != KindArray {
		return NewShapeError("", "field %q of %s is a %s, not indexable", field, destParentId, link.Kind)
	}
	childClone := node.Clone()
	switch link.Kind {
	case KindSingle:
		if link.Single != nil && !EqualIds(*link.Single, node.Id) {
			return NewConstraintError("", "field %q of %s is already occupied", field, destParentId)
		}
		idVal := node.Id
		link.Single = &idVal
		childClone.Parent = &ParentRef{Parent: destParentId, Field: field}
	case KindArray:
		pos := len(link.Array)
		if index != nil {
			if *index < 0 || *index > len(link.Array) {
				return NewRangeError("", "insert index %d out of range (len %d)", *index, len(link.Array))
			}
			pos = *index
		}
		link.Array = append(link.Array, NodeId{})
		copy(link.Array[pos+1:], link.Array[pos:])
		link.Array[pos] = node.Id
		idx := pos
		childClone.Parent = &ParentRef{Parent: destParentId, Field: field, Index: &idx}
	case KindSet:
		if !link.addSetMember(node.Id) {
			return NewUniquenessError("", "%s is already a member of field %q", node.Id, field)
		}
		childClone.Parent = &ParentRef{Parent: destParentId, Field: field}
	}
	d.working.putNode(parentClone)
	d.working.putNode(childClone)
	if link.Kind == KindArray {
		d.reindexArray(parentClone.Id, field)
	}
	return nil
}

// reindexArray resets Parent.Index on every child of parentId's Array
// field to match its current position.
func (d *MutableDocument) reindexArray(parentId NodeId, field string) {
	parent, ok := d.working.GetNode(parentId)
	if !ok {
		return
	}
	link := parent.Children[field]
	if link == nil || link.Kind != KindArray {
		return
	}
	for i, id := range link.Array {
		child, ok := d.working.GetNode(id)
		if !ok || child.Parent == nil {
			continue
		}
		if child.Parent.Index != nil && *child.Parent.Index == i {
			continue
		}
		clone := child.Clone()
		idx := i
		clone.Parent.Index = &idx
		d.working.putNode(clone)
	}
}

func fieldKind(doc *NormalizedDocument, typeId NodeId, field string) (LinkKind, error) {
	n, err := doc.MustGetNode(typeId)
	if err != nil {
		return 0, err
	}
	link := n.Children[field]
	if link == nil {
		return 0, NewConstraintError("", "%s has no field %q", typeId, field)
	}
	return link.Kind, nil
}

func samePosition(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
