package hdoc

// DenormalizedNode is a pointer-linked, human-browsable view of one node:
// its data plus its children already resolved into nested DenormalizedNode
// values, rather than NodeIds (spec.md section 3, "denormalized view").
// It is a read-only snapshot; mutating it has no effect on the document it
// was built from.
type DenormalizedNode struct {
	Id       NodeId
	Data     map[string]interface{}
	Children map[string]interface{} // *DenormalizedNode, []*DenormalizedNode, or nil
}

// Denormalize builds a DenormalizedNode tree rooted at id. It is built in
// two passes: first every node reachable through Children links is
// wrapped once, then each wrapper's Children map is populated from that
// node's own Children links. Informal Links are not followed or included.
func Denormalize(doc nodeReader, id NodeId) (*DenormalizedNode, error) {
	built := map[string]*DenormalizedNode{}
	order, err := collectReachable(doc, id, built)
	if err != nil {
		return nil, err
	}
	for _, nid := range order {
		n, _ := doc.GetNode(nid)
		dn := built[nid.CanonicalId()]
		dn.Children = map[string]interface{}{}
		for field, link := range n.Children {
			dn.Children[field] = denormalizeLink(link, built)
		}
	}
	return built[id.CanonicalId()], nil
}

func collectReachable(doc nodeReader, id NodeId, built map[string]*DenormalizedNode) ([]NodeId, error) {
	var order []NodeId
	var dfs func(id NodeId) error
	dfs = func(id NodeId) error {
		key := id.CanonicalId()
		if _, ok := built[key]; ok {
			return nil
		}
		n, ok := doc.GetNode(id)
		if !ok {
			return NewReferenceError("", "Denormalize: node %s does not exist", id)
		}
		built[key] = &DenormalizedNode{Id: id, Data: cloneData(n.Data)}
		order = append(order, id)
		for _, link := range n.Children {
			for _, childId := range linkTargets(link) {
				if err := dfs(childId); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := dfs(id); err != nil {
		return nil, err
	}
	return order, nil
}

func denormalizeLink(link *NodeLink, built map[string]*DenormalizedNode) interface{} {
	switch link.Kind {
	case KindSingle:
		if link.Single == nil {
			return nil
		}
		return built[link.Single.CanonicalId()]
	case KindArray:
		out := make([]*DenormalizedNode, 0, len(link.Array))
		for _, id := range link.Array {
			out = append(out, built[id.CanonicalId()])
		}
		return out
	case KindSet:
		members := link.SetMembers()
		out := make([]*DenormalizedNode, 0, len(members))
		for _, id := range members {
			out = append(out, built[id.CanonicalId()])
		}
		return out
	}
	return nil
}
