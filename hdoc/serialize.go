package hdoc

import (
	"gopkg.in/yaml.v3"

	"github.com/mindiply/hirardoc-sub000/internal/omap"
)

// wireNode is the flat, YAML-friendly representation of one Node, used by
// MarshalDocument/UnmarshalDocument for any caller wanting to persist a
// document externally (HDocHistory's default checkpoint translator keeps
// the *NormalizedDocument itself, not this form). hdoc itself has no
// on-disk format of its own; this is the one wire shape the package
// offers (SPEC_FULL.md section 10).
type wireNode struct {
	Type     string                 `yaml:"type"`
	Id       interface{}            `yaml:"id"`
	Data     map[string]interface{} `yaml:"data,omitempty"`
	Single   map[string]wireId      `yaml:"single,omitempty"`
	Array    map[string][]wireId    `yaml:"array,omitempty"`
	Set      map[string][]wireId    `yaml:"set,omitempty"`
	Links    *wireNodeLinks         `yaml:"links,omitempty"`
	ParentOf wireId                 `yaml:"parentOf,omitempty"`
	ParentFd string                 `yaml:"parentField,omitempty"`
	ParentIx *int                   `yaml:"parentIndex,omitempty"`
}

type wireNodeLinks struct {
	Single map[string]wireId   `yaml:"single,omitempty"`
	Array  map[string][]wireId `yaml:"array,omitempty"`
	Set    map[string][]wireId `yaml:"set,omitempty"`
}

type wireId struct {
	Type string      `yaml:"type"`
	Id   interface{} `yaml:"id"`
}

func toWireId(id NodeId) wireId { return wireId{Type: id.Type, Id: id.ID} }
func fromWireId(w wireId) NodeId {
	if w.Type == "" {
		return ZeroNodeId
	}
	return NodeId{Type: w.Type, ID: w.Id}
}

type wireDocument struct {
	RootType string     `yaml:"rootType"`
	RootId   wireId     `yaml:"rootId"`
	Nodes    []wireNode `yaml:"nodes"`
}

// MarshalDocument serializes doc to its YAML wire form.
func MarshalDocument(doc *NormalizedDocument) ([]byte, error) {
	wd := wireDocument{RootType: doc.schema.RootType, RootId: toWireId(doc.rootId)}
	for _, id := range doc.NodeIds() {
		n, _ := doc.GetNode(id)
		wn := wireNode{Type: id.Type, Id: id.ID, Data: n.Data}
		for field, link := range n.Children {
			addLinkToWire(&wn, field, link, false)
		}
		for field, link := range n.Links {
			addLinkToWire(&wn, field, link, true)
		}
		if n.Parent != nil {
			wn.ParentOf = toWireId(n.Parent.Parent)
			wn.ParentFd = n.Parent.Field
			wn.ParentIx = n.Parent.Index
		}
		wd.Nodes = append(wd.Nodes, wn)
	}
	return yaml.Marshal(wd)
}

func addLinkToWire(wn *wireNode, field string, link *NodeLink, informal bool) {
	target := wn
	var dst **wireNodeLinks
	if informal {
		dst = &target.Links
	}
	switch link.Kind {
	case KindSingle:
		if link.Single == nil {
			return
		}
		if informal {
			if *dst == nil {
				*dst = &wireNodeLinks{}
			}
			if (*dst).Single == nil {
				(*dst).Single = map[string]wireId{}
			}
			(*dst).Single[field] = toWireId(*link.Single)
			return
		}
		if wn.Single == nil {
			wn.Single = map[string]wireId{}
		}
		wn.Single[field] = toWireId(*link.Single)
	case KindArray:
		ids := make([]wireId, 0, len(link.Array))
		for _, id := range link.Array {
			ids = append(ids, toWireId(id))
		}
		if informal {
			if *dst == nil {
				*dst = &wireNodeLinks{}
			}
			if (*dst).Array == nil {
				(*dst).Array = map[string][]wireId{}
			}
			(*dst).Array[field] = ids
			return
		}
		if wn.Array == nil {
			wn.Array = map[string][]wireId{}
		}
		wn.Array[field] = ids
	case KindSet:
		members := link.SetMembers()
		ids := make([]wireId, 0, len(members))
		for _, id := range members {
			ids = append(ids, toWireId(id))
		}
		if informal {
			if *dst == nil {
				*dst = &wireNodeLinks{}
			}
			if (*dst).Set == nil {
				(*dst).Set = map[string][]wireId{}
			}
			(*dst).Set[field] = ids
			return
		}
		if wn.Set == nil {
			wn.Set = map[string][]wireId{}
		}
		wn.Set[field] = ids
	}
}

// UnmarshalDocument rebuilds a NormalizedDocument from its YAML wire form
// against schema.
func UnmarshalDocument(schema *Schema, data []byte) (*NormalizedDocument, error) {
	var wd wireDocument
	if err := yaml.Unmarshal(data, &wd); err != nil {
		return nil, NewValidationError("UnmarshalDocument: %v", err)
	}
	rootId := fromWireId(wd.RootId)
	doc := &NormalizedDocument{schema: schema, rootId: rootId, nodes: omap.New()}
	for _, wn := range wd.Nodes {
		id := NodeId{Type: wn.Type, ID: wn.Id}
		n := &Node{Id: id, Data: wn.Data, Children: map[string]*NodeLink{}}
		for field, w := range wn.Single {
			target := fromWireId(w)
			n.Children[field] = &NodeLink{Kind: KindSingle, Single: &target}
		}
		for field, ws := range wn.Array {
			ids := make([]NodeId, 0, len(ws))
			for _, w := range ws {
				ids = append(ids, fromWireId(w))
			}
			n.Children[field] = &NodeLink{Kind: KindArray, Array: ids}
		}
		for field, ws := range wn.Set {
			l := NewSetLink()
			for _, w := range ws {
				l.addSetMember(fromWireId(w))
			}
			n.Children[field] = l
		}
		if wn.Links != nil {
			n.Links = map[string]*NodeLink{}
			for field, w := range wn.Links.Single {
				target := fromWireId(w)
				n.Links[field] = &NodeLink{Kind: KindSingle, Single: &target}
			}
			for field, ws := range wn.Links.Array {
				ids := make([]NodeId, 0, len(ws))
				for _, w := range ws {
					ids = append(ids, fromWireId(w))
				}
				n.Links[field] = &NodeLink{Kind: KindArray, Array: ids}
			}
			for field, ws := range wn.Links.Set {
				l := NewSetLink()
				for _, w := range ws {
					l.addSetMember(fromWireId(w))
				}
				n.Links[field] = l
			}
		}
		if wn.ParentFd != "" || wn.ParentOf.Type != "" {
			n.Parent = &ParentRef{Parent: fromWireId(wn.ParentOf), Field: wn.ParentFd, Index: wn.ParentIx}
		}
		doc.putNode(n)
	}
	return doc, nil
}
