package hdoc

// FieldDescriptor declares one child-bearing field of a node type: its
// link kind and the node type(s) it may point to (spec.md section 3,
// Schema).
type FieldDescriptor struct {
	Kind LinkKind
	// Types lists the node type names this field may reference. A single
	// field may be polymorphic (e.g. a "target" field pointing at either
	// a Task or a Note type).
	Types []string
}

// NodeTypeDescriptor declares everything the schema knows about one node
// type: its child-bearing fields and, informationally, the scalar data
// field names it carries (not enforced -- Data is a free-form map).
type NodeTypeDescriptor struct {
	TypeName   string
	Fields     map[string]FieldDescriptor
	DataFields []string
}

// Schema is the caller-supplied, in-memory description of the node types a
// NormalizedDocument may contain. It never changes once nodes exist for it
// (no migration support: SPEC_FULL.md section 1).
type Schema struct {
	RootType string
	Types    map[string]NodeTypeDescriptor
}

// NewSchema builds a Schema from its root type name and per-type field
// descriptors. It auto-adds the "__orphans" Array field to the root type,
// the parking field displaced subtrees are moved into (spec.md section
// 4.6 and SPEC_FULL.md section 4).
func NewSchema(rootType string, types map[string]NodeTypeDescriptor) *Schema {
	root, ok := types[rootType]
	if !ok {
		root = NodeTypeDescriptor{TypeName: rootType}
	}
	if root.Fields == nil {
		root.Fields = map[string]FieldDescriptor{}
	}
	if _, has := root.Fields[OrphansField]; !has {
		allTypes := make([]string, 0, len(types))
		for t := range types {
			allTypes = append(allTypes, t)
		}
		root.Fields[OrphansField] = FieldDescriptor{Kind: KindArray, Types: allTypes}
	}
	types[rootType] = root
	return &Schema{RootType: rootType, Types: types}
}

// OrphansField is the name of the root-level Array field that parks
// subtrees displaced from a Single field during a Move (spec.md section
// 4.6, "Open Question" on orphan routing).
const OrphansField = "__orphans"

// FieldOf returns the FieldDescriptor for a (typeName, field) pair.
func (s *Schema) FieldOf(typeName, field string) (FieldDescriptor, bool) {
	t, ok := s.Types[typeName]
	if !ok {
		return FieldDescriptor{}, false
	}
	fd, ok := t.Fields[field]
	return fd, ok
}

// AcceptsType reports whether typeName is a legal target of (parentType, field).
func (s *Schema) AcceptsType(parentType, field, typeName string) bool {
	fd, ok := s.FieldOf(parentType, field)
	if !ok {
		return false
	}
	if len(fd.Types) == 0 {
		return true
	}
	for _, t := range fd.Types {
		if t == typeName {
			return true
		}
	}
	return false
}

// EmptyNode returns a fresh, parentless Node of typeName with an empty
// link for every field the schema declares for it, ready to be inserted.
func (s *Schema) EmptyNode(typeName string, id NodeId, data map[string]interface{}) (*Node, error) {
	td, ok := s.Types[typeName]
	if !ok {
		return nil, NewConstraintError("", "unknown node type %q", typeName)
	}
	n := &Node{Id: id, Data: data, Children: map[string]*NodeLink{}}
	if n.Data == nil {
		n.Data = map[string]interface{}{}
	}
	for field, fd := range td.Fields {
		switch fd.Kind {
		case KindSingle:
			n.Children[field] = NewSingleLink()
		case KindArray:
			n.Children[field] = NewArrayLink()
		case KindSet:
			n.Children[field] = NewSetLink()
		}
	}
	return n, nil
}
