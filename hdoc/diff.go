package hdoc

import "reflect"

// Diff computes the sequence of resolved Changes that, replayed via
// MutableDocument.ApplyChanges against a, produces a document
// structurally and data-equal to b (spec.md section 6). Both documents
// must share a schema and root id; nodes are matched by NodeId, not by
// position, so a node kept but reparented is reported as a Move rather
// than a Delete+Insert.
//
// The emitted order is: every deleted node (post-order, descendants
// before ancestors), then every inserted node (BFS, ancestors before
// descendants), then a Change for every common node whose Data differs,
// then a Move for every common node whose parent/field/position differs.
func Diff(a, b *NormalizedDocument) ([]Change, error) {
	if a.schema != b.schema {
		if a.RootId().Type != b.RootId().Type {
			return nil, NewConstraintError("", "Diff: documents do not share a schema")
		}
	}

	aIds := idSet(a)
	bIds := idSet(b)

	var changes []Change

	deletedOrder, err := postOrderIds(a, func(id NodeId) bool { return !bIds[id.CanonicalId()] })
	if err != nil {
		return nil, err
	}
	for _, id := range deletedOrder {
		changes = append(changes, Change{Op: OpDelete, NodeId: id, NodeType: id.Type})
	}

	insertedOrder, err := bfsOrderIds(b, func(id NodeId) bool { return !aIds[id.CanonicalId()] })
	if err != nil {
		return nil, err
	}
	for _, id := range insertedOrder {
		n, _ := b.GetNode(id)
		c := Change{Op: OpInsert, NodeId: id, NodeType: id.Type, Data: cloneData(n.Data)}
		if n.Parent != nil {
			c.ParentId = n.Parent.Parent
			c.Field = n.Parent.Field
			c.Index = n.Parent.Index
		}
		changes = append(changes, c)
	}

	// Common nodes: data changes, in b's BFS order for determinism.
	bOrder, err := bfsOrderIds(b, func(NodeId) bool { return true })
	if err != nil {
		return nil, err
	}
	for _, id := range bOrder {
		if !aIds[id.CanonicalId()] {
			continue
		}
		an, _ := a.GetNode(id)
		bn, _ := b.GetNode(id)
		if !reflect.DeepEqual(an.Data, bn.Data) {
			changes = append(changes, Change{Op: OpChange, NodeId: id, NodeType: id.Type, Data: cloneData(bn.Data)})
		}
	}

	// Common nodes: position changes (reparent, field change, or
	// array/position reorder), also in b's BFS order so an ancestor's
	// move is recorded before a descendant's.
	for _, id := range bOrder {
		if !aIds[id.CanonicalId()] || EqualIds(id, b.rootId) {
			continue
		}
		an, _ := a.GetNode(id)
		bn, _ := b.GetNode(id)
		if an.Parent == nil || bn.Parent == nil {
			continue
		}
		if samePosRef(an.Parent, bn.Parent) {
			continue
		}
		changes = append(changes, Change{
			Op: OpMove, NodeId: id, NodeType: id.Type,
			ParentId: bn.Parent.Parent, Field: bn.Parent.Field, Index: bn.Parent.Index,
			OldParentId: &an.Parent.Parent, OldField: an.Parent.Field, OldIndex: an.Parent.Index,
		})
	}

	return changes, nil
}

func samePosRef(a, b *ParentRef) bool {
	return a.Equal(b)
}

func idSet(d *NormalizedDocument) map[string]bool {
	out := map[string]bool{}
	for _, id := range d.NodeIds() {
		out[id.CanonicalId()] = true
	}
	return out
}

// postOrderIds performs a post-order DFS from d's root and returns every
// visited id for which keep returns true, deepest-first.
func postOrderIds(d *NormalizedDocument, keep func(NodeId) bool) ([]NodeId, error) {
	var out []NodeId
	visited := map[string]bool{}
	var dfs func(id NodeId) error
	dfs = func(id NodeId) error {
		key := id.CanonicalId()
		if visited[key] {
			return nil
		}
		visited[key] = true
		n, ok := d.GetNode(id)
		if !ok {
			return nil
		}
		for _, child := range childIdsInFieldOrder(n) {
			if err := dfs(child); err != nil {
				return err
			}
		}
		if keep(id) {
			out = append(out, id)
		}
		return nil
	}
	if err := dfs(d.rootId); err != nil {
		return nil, err
	}
	return out, nil
}

// bfsOrderIds performs a BFS from d's root and returns every visited id
// for which keep returns true, ancestors before descendants.
func bfsOrderIds(d *NormalizedDocument, keep func(NodeId) bool) ([]NodeId, error) {
	var out []NodeId
	visited := map[string]bool{}
	queue := []NodeId{d.rootId}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		key := id.CanonicalId()
		if visited[key] {
			continue
		}
		visited[key] = true
		n, ok := d.GetNode(id)
		if !ok {
			continue
		}
		if keep(id) {
			out = append(out, id)
		}
		queue = append(queue, childIdsInFieldOrder(n)...)
	}
	return out, nil
}
