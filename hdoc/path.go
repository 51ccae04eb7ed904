package hdoc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mindiply/hirardoc-sub000/internal/utils/tree"
)

// PathElementKind selects which of Index/MemberId is meaningful on a
// PathElement, mirroring the link kind of the field it descends through
// (spec.md section 3, Path).
type PathElementKind int

const (
	// PathField descends into a Single-linked field.
	PathField PathElementKind = iota
	// PathIndex descends into an Array-linked field at a numeric index.
	PathIndex
	// PathMember descends into a Set-linked field by member id.
	PathMember
)

// PathElement is one step of a Path: the field name of the parent being
// descended from, and, for Array/Set fields, which child of that field.
type PathElement struct {
	Field    string
	Kind     PathElementKind
	Index    int
	MemberId NodeId
}

// Path is a sequence of steps from the document root to one node, the way
// spec.md section 3 defines it. An empty Path denotes the root itself.
type Path []PathElement

// String renders a Path in a dotted, cursor-like form for diagnostics and
// HDocError.Path, e.g. "$.children[2].comments{user.7}".
func (p Path) String() string {
	var b strings.Builder
	for _, el := range p {
		switch el.Kind {
		case PathIndex:
			fmt.Fprintf(&b, ".%s[%d]", el.Field, el.Index)
		case PathMember:
			fmt.Fprintf(&b, ".%s{%s}", el.Field, el.MemberId.CanonicalId())
		default:
			fmt.Fprintf(&b, ".%s", el.Field)
		}
	}
	if b.Len() == 0 {
		return "$"
	}
	return "$" + b.String()
}

// nodeReader is the minimal read surface shared by NormalizedDocument and
// MutableDocument, letting path resolution and the visitor work uniformly
// over either.
type nodeReader interface {
	RootId() NodeId
	GetNode(id NodeId) (*Node, bool)
}

// idAndTypeForPath walks doc from its root following path, returning the id
// of the node it resolves to.
func idAndTypeForPath(doc nodeReader, path Path) (NodeId, error) {
	cur := doc.RootId()
	for i, el := range path {
		node, ok := doc.GetNode(cur)
		if !ok {
			return ZeroNodeId, NewReferenceError(path[:i].String(), "node %s does not exist", cur)
		}
		link := node.Children[el.Field]
		if link == nil {
			link = node.Links[el.Field]
		}
		if link == nil {
			return ZeroNodeId, NewConstraintError(path[:i+1].String(), "node %s has no field %q", cur, el.Field)
		}
		next, err := stepLink(path[:i+1], link, el)
		if err != nil {
			return ZeroNodeId, err
		}
		if next.IsZero() {
			return ZeroNodeId, NewReferenceError(path[:i+1].String(), "field %q is empty", el.Field)
		}
		cur = next
	}
	return cur, nil
}

// stepLink resolves one PathElement against the link it names, checking
// that the element's Kind agrees with the link's actual Kind (I-less
// "shape" check: spec.md section 7, ShapeError).
func stepLink(pfx Path, link *NodeLink, el PathElement) (NodeId, error) {
	switch link.Kind {
	case KindSingle:
		if el.Kind != PathField {
			return ZeroNodeId, NewShapeError(pfx.String(), "field %q is Single, not indexable", el.Field)
		}
		if link.Single == nil {
			return ZeroNodeId, nil
		}
		return *link.Single, nil
	case KindArray:
		if el.Kind != PathIndex {
			return ZeroNodeId, NewShapeError(pfx.String(), "field %q is Array, needs an index", el.Field)
		}
		if el.Index < 0 || el.Index >= len(link.Array) {
			return ZeroNodeId, NewRangeError(pfx.String(), "index %d out of range for field %q (len %d)", el.Index, el.Field, len(link.Array))
		}
		return link.Array[el.Index], nil
	case KindSet:
		if el.Kind != PathMember {
			return ZeroNodeId, NewShapeError(pfx.String(), "field %q is Set, needs a member id", el.Field)
		}
		if !link.HasSetMember(el.MemberId) {
			return ZeroNodeId, NewReferenceError(pfx.String(), "%s is not a member of field %q", el.MemberId, el.Field)
		}
		return el.MemberId, nil
	default:
		return ZeroNodeId, NewConstraintError(pfx.String(), "field %q has unknown link kind", el.Field)
	}
}

// pathForElementWithId ascends from id to the document root via Parent
// back-pointers, producing the unique Path that idAndTypeForPath would
// resolve back to id.
func pathForElementWithId(doc nodeReader, id NodeId) (Path, error) {
	if EqualIds(id, doc.RootId()) {
		return Path{}, nil
	}
	var rev Path
	cur := id
	seen := map[string]bool{}
	for {
		node, ok := doc.GetNode(cur)
		if !ok {
			return nil, NewReferenceError("", "node %s does not exist", cur)
		}
		if node.Parent == nil {
			if EqualIds(cur, doc.RootId()) {
				break
			}
			return nil, NewIntegrityError("", "node %s has no parent and is not the root", cur)
		}
		key := cur.CanonicalId()
		if seen[key] {
			return nil, NewIntegrityError("", "cycle detected ascending from %s", id)
		}
		seen[key] = true

		parentNode, ok := doc.GetNode(node.Parent.Parent)
		if !ok {
			return nil, NewReferenceError("", "parent %s of %s does not exist", node.Parent.Parent, cur)
		}
		link := parentNode.Children[node.Parent.Field]
		if link == nil {
			link = parentNode.Links[node.Parent.Field]
		}
		if link == nil {
			return nil, NewIntegrityError("", "parent %s has no field %q recorded for child %s", node.Parent.Parent, node.Parent.Field, cur)
		}
		el := PathElement{Field: node.Parent.Field}
		switch link.Kind {
		case KindSingle:
			el.Kind = PathField
		case KindArray:
			el.Kind = PathIndex
			if node.Parent.Index == nil {
				return nil, NewIntegrityError("", "parent ref for %s into array field %q has no index", cur, node.Parent.Field)
			}
			el.Index = *node.Parent.Index
		case KindSet:
			el.Kind = PathMember
			el.MemberId = cur
		}
		rev = append(rev, el)
		cur = node.Parent.Parent
	}
	out := make(Path, len(rev))
	for i, el := range rev {
		out[len(rev)-1-i] = el
	}
	return out, nil
}

// ParsePath parses a dotted, cursor-like path string (the form Path.String
// renders, e.g. "$.children[2].comments{user.7}") into a Path, resolving
// each step against doc's actual link kinds as it walks. It reuses the
// teacher's bracket/dot cursor tokenizer, treating "{...}" exactly like
// "[...]" since tree.ParseCursor only ever needs to know "this was set
// apart from the surrounding dots", not which bracket shape was used.
func ParsePath(doc nodeReader, s string) (Path, error) {
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, ".")
	s = strings.NewReplacer("{", "[", "}", "]").Replace(s)
	if s == "" {
		return Path{}, nil
	}
	cursor, err := tree.ParseCursor(s)
	if err != nil {
		return nil, NewShapeError(s, "invalid path syntax: %v", err)
	}

	var path Path
	cur := doc.RootId()
	nodes := cursor.Nodes
	for i := 0; i < len(nodes); {
		field := nodes[i]
		i++
		node, ok := doc.GetNode(cur)
		if !ok {
			return nil, NewReferenceError(path.String(), "node %s does not exist", cur)
		}
		link := node.Children[field]
		if link == nil {
			link = node.Links[field]
		}
		if link == nil {
			return nil, NewConstraintError(path.String(), "node %s has no field %q", cur, field)
		}

		var el PathElement
		var next NodeId
		switch link.Kind {
		case KindSingle:
			el = byField(field)
			if link.Single != nil {
				next = *link.Single
			}
		case KindArray:
			if i >= len(nodes) {
				return nil, NewShapeError(path.String(), "field %q is Array, needs an index", field)
			}
			idx, err := strconv.Atoi(nodes[i])
			i++
			if err != nil {
				return nil, NewShapeError(path.String(), "field %q needs a numeric index, got %q", field, nodes[i-1])
			}
			if idx < 0 || idx >= len(link.Array) {
				return nil, NewRangeError(path.String(), "index %d out of range for field %q (len %d)", idx, field, len(link.Array))
			}
			el = byIndex(field, idx)
			next = link.Array[idx]
		case KindSet:
			if i >= len(nodes) {
				return nil, NewShapeError(path.String(), "field %q is Set, needs a member id", field)
			}
			memberId, err := parseCanonicalId(nodes[i])
			i++
			if err != nil {
				return nil, NewShapeError(path.String(), "field %q has an invalid member id: %v", field, err)
			}
			if !link.HasSetMember(memberId) {
				return nil, NewReferenceError(path.String(), "%s is not a member of field %q", memberId, field)
			}
			el = byMember(field, memberId)
			next = memberId
		default:
			return nil, NewConstraintError(path.String(), "field %q has unknown link kind", field)
		}
		path = append(path, el)
		cur = next
	}
	return path, nil
}

// parseCanonicalId reverses NodeId.CanonicalId ("<typeName>.<id>").
func parseCanonicalId(s string) (NodeId, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ZeroNodeId, fmt.Errorf("expected \"<type>.<id>\", got %q", s)
	}
	return NodeId{Type: parts[0], ID: parts[1]}, nil
}

// byIndex/byMember/byField are small constructors used when building Paths
// by hand (tests, and callers composing an ElementRef from scratch).
func byField(field string) PathElement { return PathElement{Field: field, Kind: PathField} }
func byIndex(field string, idx int) PathElement {
	return PathElement{Field: field, Kind: PathIndex, Index: idx}
}
func byMember(field string, id NodeId) PathElement {
	return PathElement{Field: field, Kind: PathMember, MemberId: id}
}
