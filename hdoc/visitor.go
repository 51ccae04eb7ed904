package hdoc

// TraversalOrder selects whether Visit descends depth-first or
// breadth-first.
type TraversalOrder int

const (
	// DepthFirst visits a node, then recurses into each child field in
	// field-name order before moving to the next sibling.
	DepthFirst TraversalOrder = iota
	// BreadthFirst visits every node at a given depth before descending.
	BreadthFirst
)

// VisitOptions configures a Visit call: which node types to restrict to,
// which traversal order to use, and the per-node callback. C is caller
// state threaded through the traversal (accumulator, context, whatever
// the visitor needs) -- it is never mutated by Visit itself.
type VisitOptions[C any] struct {
	Order TraversalOrder
	// Types, if non-empty, restricts callback invocation to nodes of the
	// listed types (descendants of a filtered-out node are still visited).
	Types []string
	// Visit is called once per matching node. Returning false stops
	// descent into that node's children (its siblings are unaffected).
	Visit func(state C, doc nodeReader, n *Node) (next C, descend bool)
}

// Visit walks doc from startId according to opts, threading an instance of
// C through every callback invocation and returning its final value.
func Visit[C any](doc nodeReader, startId NodeId, initial C, opts VisitOptions[C]) (C, error) {
	state := initial
	visited := map[string]bool{}

	typeWanted := func(typeName string) bool {
		if len(opts.Types) == 0 {
			return true
		}
		for _, t := range opts.Types {
			if t == typeName {
				return true
			}
		}
		return false
	}

	switch opts.Order {
	case BreadthFirst:
		queue := []NodeId{startId}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			key := id.CanonicalId()
			if visited[key] {
				continue
			}
			visited[key] = true
			n, ok := doc.GetNode(id)
			if !ok {
				return state, NewReferenceError("", "Visit: node %s does not exist", id)
			}
			descend := true
			if typeWanted(id.Type) {
				state, descend = opts.Visit(state, doc, n)
			}
			if descend {
				queue = append(queue, childIdsInFieldOrder(n)...)
			}
		}
	default:
		var dfs func(id NodeId) error
		dfs = func(id NodeId) error {
			key := id.CanonicalId()
			if visited[key] {
				return nil
			}
			visited[key] = true
			n, ok := doc.GetNode(id)
			if !ok {
				return NewReferenceError("", "Visit: node %s does not exist", id)
			}
			descend := true
			if typeWanted(id.Type) {
				state, descend = opts.Visit(state, doc, n)
			}
			if !descend {
				return nil
			}
			for _, child := range childIdsInFieldOrder(n) {
				if err := dfs(child); err != nil {
					return err
				}
			}
			return nil
		}
		if err := dfs(startId); err != nil {
			return state, err
		}
	}
	return state, nil
}

// childIdsInFieldOrder returns every id n's Children links reference, in a
// stable order (field name, then array/set member order). Links (informal
// cross-references, not structural children) are deliberately excluded:
// traversal follows ownership, not reference.
func childIdsInFieldOrder(n *Node) []NodeId {
	fields := make([]string, 0, len(n.Children))
	for f := range n.Children {
		fields = append(fields, f)
	}
	sortStrings(fields)
	var out []NodeId
	for _, f := range fields {
		out = append(out, linkTargets(n.Children[f])...)
	}
	return out
}

// sortStrings is a tiny insertion sort, avoiding a "sort" import for a
// handful of field names per node.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
