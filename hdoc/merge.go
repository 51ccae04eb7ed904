package hdoc

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ConflictStatus records how a recorded conflict was settled.
type ConflictStatus int

const (
	// ConflictOpen: the default algorithm picked a value/placement but no
	// caller-supplied override or explicit compatibility check endorsed it.
	ConflictOpen ConflictStatus = iota
	// ConflictAutoMerged: resolved by the built-in three-way algorithm
	// (numeric distance, character-level string merge, or the default
	// incompatible-position clone) with no caller input.
	ConflictAutoMerged
	// ConflictResolved: a caller-supplied override decisively picked the
	// outcome.
	ConflictResolved
)

func (s ConflictStatus) String() string {
	switch s {
	case ConflictAutoMerged:
		return "AutoMerged"
	case ConflictResolved:
		return "Resolved"
	default:
		return "Open"
	}
}

// ValueConflict reports that local and remote both changed the same data
// field of a node to different, non-reconcilable values relative to base
// (spec.md section 4.9.4).
type ValueConflict struct {
	NodeId      NodeId
	Field       string
	Base        interface{}
	Local       interface{}
	Remote      interface{}
	MergedValue interface{}
	Status      ConflictStatus
}

// PositionConflict reports that local and remote moved (or deleted vs.
// moved) the same node to incompatible destinations relative to base
// (spec.md section 4.9.4).
type PositionConflict struct {
	NodeId NodeId
	Base   *ParentRef
	Local  *ParentRef
	Remote *ParentRef
	// LocalDeleted/RemoteDeleted are set when one side deleted the node
	// while the other moved or changed it.
	LocalDeleted  bool
	RemoteDeleted bool
	// ClonedElements holds the ids of a subtree re-identified under fresh
	// ids to let both sides' placements coexist (spec.md section 4.9.1,
	// scenario S6).
	ClonedElements []NodeId
	Status         ConflictStatus
}

// ElementConflicts aggregates every conflict recorded against one node
// during a single ThreeWayMerge call.
type ElementConflicts struct {
	NodeId   NodeId
	Values   []ValueConflict
	Position *PositionConflict
}

// ConflictsMap indexes ElementConflicts by canonical node id.
type ConflictsMap map[string]*ElementConflicts

func (c ConflictsMap) element(id NodeId) *ElementConflicts {
	key := id.CanonicalId()
	e, ok := c[key]
	if !ok {
		e = &ElementConflicts{NodeId: id}
		c[key] = e
	}
	return e
}

// IsEmpty reports whether no conflicts were recorded.
func (c ConflictsMap) IsEmpty() bool { return len(c) == 0 }

// MergeOverrides lets a caller customize the policy a ThreeWayMerge call
// uses to resolve conflicts it cannot merge automatically. Any nil field
// falls back to the documented default (spec.md section 4.9.5, "injectable
// overrides"). Field names follow the seven overrides the spec names;
// MergeValue/ResolvePosition are kept as the pre-existing, narrower aliases
// of MergeElementInfo/MoveToMergePosition.
type MergeOverrides struct {
	// CmpSiblings orders two nodes concurrently inserted under the same
	// parent field, so the merged array's sibling order is deterministic
	// even when both sides picked colliding positions (section 4.9.2).
	CmpSiblings func(a, b *Node) int

	// MergeElementInfo resolves a data field both sides changed to
	// different values. Returning ok=false falls through to the default
	// three-way value-merge algorithm (section 4.9.3).
	MergeElementInfo func(id NodeId, field string, base, local, remote interface{}) (merged interface{}, ok bool)

	// MergeValue is a legacy alias for MergeElementInfo, consulted only
	// when MergeElementInfo is nil.
	MergeValue func(id NodeId, field string, base, local, remote interface{}) (merged interface{}, ok bool)

	// OnDeleteElement decides, when one side deletes a node the other
	// touched, whether the node should survive (keep=true). Returning
	// ok=false falls through to the default: touched on one side blocks
	// deletion.
	OnDeleteElement func(id NodeId, base, otherSide *Node, otherEdited bool) (keep bool, ok bool)

	// ArePositionsCompatible lets a caller declare two differing
	// destinations non-conflicting (e.g. both are acceptable slots in a
	// field that tolerates reordering). Default: false, i.e. any
	// difference is incompatible.
	ArePositionsCompatible func(id NodeId, base, local, remote *ParentRef) (compatible bool, ok bool)

	// MoveToMergePosition resolves a node both sides moved to different,
	// incompatible destinations to a single merged destination, without
	// cloning. Returning ok=false falls through to ArePositionsCompatible,
	// then to OnIncompatibleElementVersions/the default clone behavior.
	MoveToMergePosition func(id NodeId, base, local, remote *ParentRef) (resolved *ParentRef, ok bool)

	// ResolvePosition is a legacy alias for MoveToMergePosition, consulted
	// only when MoveToMergePosition is nil.
	ResolvePosition func(id NodeId, base, local, remote *ParentRef) (resolved *ParentRef, ok bool)

	// AddElement lets a caller take over how a node inserted by one or
	// both sides is added to the merged tree. Returning handled=true skips
	// the default InsertElement-based placement.
	AddElement func(md *MutableDocument, n *Node) (handled bool, err error)

	// OnIncompatibleElementVersions takes over scenario S6 entirely: both
	// sides moved the same node to incompatible destinations. It receives
	// the working document so it can place nodes itself, and returns the
	// set of ids it cloned plus the conflict's resulting status. Nil runs
	// the default: keep the lexicographically-earlier destination under a
	// re-identified copy of the node, and place a second, fully
	// fresh-ided copy of the subtree at the other destination.
	OnIncompatibleElementVersions func(md *MutableDocument, id NodeId, base, local, remote *ParentRef) (clonedElements []NodeId, status ConflictStatus, err error)

	// PreferRemoteOnConflict flips the default tie-break from "prefer
	// local" to "prefer remote" wherever no override and no automatic
	// algorithm settles a conflict.
	PreferRemoteOnConflict bool
}

func (o *MergeOverrides) mergeValueFn() func(id NodeId, field string, base, local, remote interface{}) (interface{}, bool) {
	if o.MergeElementInfo != nil {
		return o.MergeElementInfo
	}
	return o.MergeValue
}

func (o *MergeOverrides) moveToMergePositionFn() func(id NodeId, base, local, remote *ParentRef) (*ParentRef, bool) {
	if o.MoveToMergePosition != nil {
		return o.MoveToMergePosition
	}
	return o.ResolvePosition
}

func (o *MergeOverrides) cmpSiblingsFn() func(a, b *Node) int {
	if o.CmpSiblings != nil {
		return o.CmpSiblings
	}
	return defaultCmpSiblings
}

// defaultCmpSiblings orders nodes deterministically by canonical id
// (spec.md section 4.9.2, default sibling comparator).
func defaultCmpSiblings(a, b *Node) int {
	return strings.Compare(a.Id.CanonicalId(), b.Id.CanonicalId())
}

type changeSet struct {
	inserted map[string]*Node // canonical id -> the node as it exists on this side
	deleted  map[string]bool
	changed  map[string]map[string]interface{} // id -> changed data fields -> new value
	moved    map[string]*ParentRef             // id -> new ParentRef
}

func collectChangeSet(base, side *NormalizedDocument) changeSet {
	cs := changeSet{
		inserted: map[string]*Node{},
		deleted:  map[string]bool{},
		changed:  map[string]map[string]interface{}{},
		moved:    map[string]*ParentRef{},
	}
	baseIds := idSet(base)
	for _, id := range side.NodeIds() {
		key := id.CanonicalId()
		n, _ := side.GetNode(id)
		if !baseIds[key] {
			cs.inserted[key] = n
			continue
		}
		bn, _ := base.GetNode(id)
		if !reflect.DeepEqual(bn.Data, n.Data) {
			diffFields := map[string]interface{}{}
			for f, v := range n.Data {
				if bv, ok := bn.Data[f]; !ok || !reflect.DeepEqual(bv, v) {
					diffFields[f] = v
				}
			}
			for f := range bn.Data {
				if _, ok := n.Data[f]; !ok {
					diffFields[f] = nil
				}
			}
			cs.changed[key] = diffFields
		}
		if n.Parent != nil && bn.Parent != nil && !n.Parent.Equal(bn.Parent) {
			cs.moved[key] = n.Parent
		}
	}
	for _, id := range base.NodeIds() {
		key := id.CanonicalId()
		if _, ok := side.GetNode(id); !ok {
			cs.deleted[key] = true
		}
	}
	return cs
}

// ThreeWayMerge reconciles local and remote, both derived from base,
// producing a merged document plus a ConflictsMap of everything it could
// not reconcile automatically (spec.md section 4.9). Where overrides is
// nil, default resolution policy applies throughout.
func ThreeWayMerge(base, local, remote *NormalizedDocument, overrides *MergeOverrides) (*NormalizedDocument, ConflictsMap, error) {
	if overrides == nil {
		overrides = &MergeOverrides{}
	}
	conflicts := ConflictsMap{}

	localCS := collectChangeSet(base, local)
	remoteCS := collectChangeSet(base, remote)

	md := NewMutableDocument(base)

	allIds := map[string]bool{}
	for k := range localCS.inserted {
		allIds[k] = true
	}
	for k := range remoteCS.inserted {
		allIds[k] = true
	}
	for k := range localCS.deleted {
		allIds[k] = true
	}
	for k := range remoteCS.deleted {
		allIds[k] = true
	}
	for k := range localCS.changed {
		allIds[k] = true
	}
	for k := range remoteCS.changed {
		allIds[k] = true
	}
	for k := range localCS.moved {
		allIds[k] = true
	}
	for k := range remoteCS.moved {
		allIds[k] = true
	}

	order, err := bfsOrderIds(remote, func(NodeId) bool { return true })
	if err != nil {
		return nil, nil, err
	}
	orderLocalOnly, err := bfsOrderIds(local, func(NodeId) bool { return true })
	if err != nil {
		return nil, nil, err
	}
	ordered := orderedUnion(order, orderLocalOnly, allIds)
	ordered = stabilizeInsertOrder(ordered, localCS, remoteCS, overrides.cmpSiblingsFn())

	for _, id := range ordered {
		key := id.CanonicalId()
		switch {
		case localCS.inserted[key] != nil && remoteCS.inserted[key] != nil:
			if err := mergeConcurrentInsert(md, conflicts, id, localCS.inserted[key], remoteCS.inserted[key], overrides); err != nil {
				return nil, nil, err
			}
		case localCS.inserted[key] != nil:
			if err := insertFromSide(md, localCS.inserted[key], overrides); err != nil {
				return nil, nil, err
			}
		case remoteCS.inserted[key] != nil:
			if err := insertFromSide(md, remoteCS.inserted[key], overrides); err != nil {
				return nil, nil, err
			}
		case localCS.deleted[key] || remoteCS.deleted[key]:
			if err := mergeDeleteVsEdit(md, conflicts, id, base, localCS, remoteCS, overrides); err != nil {
				return nil, nil, err
			}
		default:
			mergeDataChange(md, conflicts, id, base, localCS, remoteCS, overrides)
			if err := mergePosition(md, conflicts, id, base, localCS, remoteCS, overrides); err != nil {
				return nil, nil, err
			}
		}
	}

	return md.UpdatedDocument(), conflicts, nil
}

func orderedUnion(primary, secondary []NodeId, want map[string]bool) []NodeId {
	seen := map[string]bool{}
	var out []NodeId
	for _, id := range primary {
		if want[id.CanonicalId()] && !seen[id.CanonicalId()] {
			out = append(out, id)
			seen[id.CanonicalId()] = true
		}
	}
	for _, id := range secondary {
		if want[id.CanonicalId()] && !seen[id.CanonicalId()] {
			out = append(out, id)
			seen[id.CanonicalId()] = true
		}
	}
	return out
}

// stabilizeInsertOrder re-sorts maximal runs of nodes concurrently inserted
// under the very same (parent, field) destination using cmp, so the merged
// array's sibling order does not depend on BFS traversal incidentals
// (spec.md section 4.9.2).
func stabilizeInsertOrder(ordered []NodeId, localCS, remoteCS changeSet, cmp func(a, b *Node) int) []NodeId {
	nodeOf := func(key string) *Node {
		if n := localCS.inserted[key]; n != nil {
			return n
		}
		return remoteCS.inserted[key]
	}
	destOf := func(key string) (string, bool) {
		n := nodeOf(key)
		if n == nil || n.Parent == nil {
			return "", false
		}
		return n.Parent.Parent.CanonicalId() + "." + n.Parent.Field, true
	}
	out := append([]NodeId(nil), ordered...)
	i := 0
	for i < len(out) {
		d0, ok0 := destOf(out[i].CanonicalId())
		if !ok0 {
			i++
			continue
		}
		j := i + 1
		for j < len(out) {
			d, ok := destOf(out[j].CanonicalId())
			if !ok || d != d0 {
				break
			}
			j++
		}
		if j-i > 1 {
			run := out[i:j]
			sort.SliceStable(run, func(a, b int) bool {
				return cmp(nodeOf(run[a].CanonicalId()), nodeOf(run[b].CanonicalId())) < 0
			})
		}
		i = j
	}
	return out
}

func insertFromSide(md *MutableDocument, n *Node, overrides *MergeOverrides) error {
	if _, exists := md.working.GetNode(n.Id); exists {
		return nil
	}
	if overrides.AddElement != nil {
		handled, err := overrides.AddElement(md, n)
		if err != nil || handled {
			return err
		}
	}
	if n.Parent == nil {
		return nil
	}
	if _, exists := md.working.GetNode(n.Parent.Parent); !exists {
		// Parent not yet present (its own insert is later in the order);
		// caller's BFS ordering guarantees ancestors precede descendants
		// within a single side's own tree, so this should not happen for
		// well-formed input.
		return NewIntegrityError("", "insert of %s precedes its parent %s", n.Id, n.Parent.Parent)
	}
	_, err := md.InsertElement(ByID(n.Parent.Parent), Position{Field: n.Parent.Field, Index: n.Parent.Index}, n.Id.Type, n.Id, cloneData(n.Data))
	return err
}

// mergeConcurrentInsert handles the rare case where both sides minted a
// node under the same id independently (e.g. a caller-chosen, not
// generator-chosen, id scheme). If the data matches, it's a clean
// coincidence; otherwise each differing field runs through the same
// conflict-resolution policy as mergeDataChange.
func mergeConcurrentInsert(md *MutableDocument, conflicts ConflictsMap, id NodeId, local, remote *Node, overrides *MergeOverrides) error {
	if err := insertFromSide(md, local, overrides); err != nil {
		return err
	}
	for f, lv := range local.Data {
		rv, ok := remote.Data[f]
		if ok && !reflect.DeepEqual(lv, rv) {
			mv, status := resolveValueConflict(overrides, id, f, nil, lv, rv)
			_ = md.ChangeElement(ByID(id), map[string]interface{}{f: mv})
			if status != ConflictResolved {
				conflicts.element(id).Values = append(conflicts.element(id).Values, ValueConflict{
					NodeId: id, Field: f, Local: lv, Remote: rv, MergedValue: mv, Status: status,
				})
			}
		}
	}
	return nil
}

// mergeDeleteVsEdit handles a node deleted on one side. If the surviving
// side never touched it, the deletion proceeds; if the surviving side
// edited or moved it, the deletion is blocked and that side's changes are
// applied instead (spec.md section 4.9 step 3 and section 9's resolved
// "touched on one side blocks deletion" rule).
func mergeDeleteVsEdit(md *MutableDocument, conflicts ConflictsMap, id NodeId, base *NormalizedDocument, local, remote changeSet, overrides *MergeOverrides) error {
	key := id.CanonicalId()
	localDeleted, remoteDeleted := local.deleted[key], remote.deleted[key]
	if localDeleted && remoteDeleted {
		return nil // already absent from md's base-derived working doc once both agree
	}
	_, stillPresent := md.working.GetNode(id)
	if !stillPresent {
		return nil
	}
	otherEdited := false
	if localDeleted {
		_, changedOther := remote.changed[key]
		_, movedOther := remote.moved[key]
		otherEdited = changedOther || movedOther
	} else {
		_, changedOther := local.changed[key]
		_, movedOther := local.moved[key]
		otherEdited = changedOther || movedOther
	}

	if !otherEdited {
		return md.DeleteElement(ByID(id))
	}

	keep := true
	status := ConflictAutoMerged
	if overrides.OnDeleteElement != nil {
		if k, ok := overrides.OnDeleteElement(id, nil, nil, true); ok {
			keep = k
			status = ConflictResolved
		}
	}
	conflicts.element(id).Position = &PositionConflict{
		NodeId: id, LocalDeleted: localDeleted, RemoteDeleted: remoteDeleted, Status: status,
	}
	if !keep {
		return md.DeleteElement(ByID(id))
	}

	// The edited side's data and position still need applying: only it
	// has entries in local/remote.changed/moved for this id, so reusing
	// the regular data/position merge passes here just replays that one
	// side's edit onto the node we're keeping.
	mergeDataChange(md, conflicts, id, base, local, remote, overrides)
	return mergePosition(md, conflicts, id, base, local, remote, overrides)
}

func mergeDataChange(md *MutableDocument, conflicts ConflictsMap, id NodeId, base *NormalizedDocument, local, remote changeSet, overrides *MergeOverrides) {
	key := id.CanonicalId()
	lf, lok := local.changed[key]
	rf, rok := remote.changed[key]
	if !lok && !rok {
		return
	}
	bn, _ := base.GetNode(id)
	merged := map[string]interface{}{}
	fields := map[string]bool{}
	for f := range lf {
		fields[f] = true
	}
	for f := range rf {
		fields[f] = true
	}
	for f := range fields {
		lv, lchanged := lf[f]
		rv, rchanged := rf[f]
		switch {
		case lchanged && !rchanged:
			merged[f] = lv
		case rchanged && !lchanged:
			merged[f] = rv
		case reflect.DeepEqual(lv, rv):
			merged[f] = lv
		default:
			var bv interface{}
			if bn != nil {
				bv = bn.Data[f]
			}
			mv, status := resolveValueConflict(overrides, id, f, bv, lv, rv)
			merged[f] = mv
			if status != ConflictResolved {
				conflicts.element(id).Values = append(conflicts.element(id).Values, ValueConflict{
					NodeId: id, Field: f, Base: bv, Local: lv, Remote: rv, MergedValue: mv, Status: status,
				})
			}
		}
	}
	if len(merged) > 0 {
		_ = md.ChangeElement(ByID(id), merged)
	}
}

// resolveValueConflict implements spec.md section 4.9.3: an override gets
// first refusal, then the type-aware default (numeric distance-from-base,
// character-level three-way string merge), then prefer-local/remote.
func resolveValueConflict(overrides *MergeOverrides, id NodeId, field string, base, local, remote interface{}) (interface{}, ConflictStatus) {
	if fn := overrides.mergeValueFn(); fn != nil {
		if mv, ok := fn(id, field, base, local, remote); ok {
			return mv, ConflictResolved
		}
	}
	if mv, ok := defaultThreeWayValueMerge(base, local, remote); ok {
		return mv, ConflictAutoMerged
	}
	if overrides.PreferRemoteOnConflict {
		return remote, ConflictOpen
	}
	return local, ConflictOpen
}

// defaultThreeWayValueMerge implements the type-aware merge rules spec.md
// section 4.9.3 prescribes for values neither override nor equality
// resolves: numbers pick whichever of local/remote sits farther from base
// (ties favor the smaller value); strings run a character-level three-way
// merge whose conflicting middle region is settled by lexicographic order.
func defaultThreeWayValueMerge(base, local, remote interface{}) (interface{}, bool) {
	if ls, ok := local.(string); ok {
		if rs, ok2 := remote.(string); ok2 {
			bs, _ := base.(string)
			return stringThreeWayMerge(bs, ls, rs), true
		}
	}
	return numericDistanceMerge(base, local, remote)
}

func numericDistanceMerge(base, local, remote interface{}) (interface{}, bool) {
	bf, bok := toFloat64(base)
	lf, lok := toFloat64(local)
	rf, rok := toFloat64(remote)
	if !lok || !rok {
		return nil, false
	}
	if !bok {
		bf = 0
	}
	ld, rd := abs(lf-bf), abs(rf-bf)
	switch {
	case ld > rd:
		return local, true
	case rd > ld:
		return remote, true
	case lf <= rf:
		return local, true
	default:
		return remote, true
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// stringThreeWayMerge aligns local and remote on the longest prefix/suffix
// they share with base, treating whatever remains in the middle as the
// conflicting region; the conflict resolves to whichever middle span sorts
// lexicographically first.
func stringThreeWayMerge(base, local, remote string) string {
	br, lr, rr := []rune(base), []rune(local), []rune(remote)
	p := commonPrefixRunes(br, lr, rr)
	s := commonSuffixRunes(br[p:], lr[p:], rr[p:])
	lMid := string(lr[p : len(lr)-s])
	rMid := string(rr[p : len(rr)-s])
	winner := lMid
	if rMid < lMid {
		winner = rMid
	}
	return string(lr[:p]) + winner + string(lr[len(lr)-s:])
}

func commonPrefixRunes(a, b, c []rune) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if len(c) < n {
		n = len(c)
	}
	i := 0
	for i < n && a[i] == b[i] && a[i] == c[i] {
		i++
	}
	return i
}

func commonSuffixRunes(a, b, c []rune) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if len(c) < n {
		n = len(c)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] && a[len(a)-1-i] == c[len(c)-1-i] {
		i++
	}
	return i
}

func mergePosition(md *MutableDocument, conflicts ConflictsMap, id NodeId, base *NormalizedDocument, local, remote changeSet, overrides *MergeOverrides) error {
	key := id.CanonicalId()
	lp, lok := local.moved[key]
	rp, rok := remote.moved[key]
	if !lok && !rok {
		return nil
	}
	bn, _ := base.GetNode(id)
	var bp *ParentRef
	if bn != nil {
		bp = bn.Parent
	}

	switch {
	case lok && !rok:
		return movePositionTo(md, id, lp)
	case rok && !lok:
		return movePositionTo(md, id, rp)
	case lp.Equal(rp):
		return movePositionTo(md, id, lp)
	}

	if fn := overrides.moveToMergePositionFn(); fn != nil {
		if resolved, ok := fn(id, bp, lp, rp); ok {
			return movePositionTo(md, id, resolved)
		}
	}

	compatible := false
	if overrides.ArePositionsCompatible != nil {
		compatible, _ = overrides.ArePositionsCompatible(id, bp, lp, rp)
	}
	if compatible {
		return movePositionTo(md, id, lp)
	}

	// Scenario S6: incompatible concurrent moves of the same node
	// (spec.md section 4.9.1).
	if overrides.OnIncompatibleElementVersions != nil {
		cloned, status, err := overrides.OnIncompatibleElementVersions(md, id, bp, lp, rp)
		if err != nil {
			return err
		}
		conflicts.element(id).Position = &PositionConflict{NodeId: id, Base: bp, Local: lp, Remote: rp, ClonedElements: cloned, Status: status}
		return nil
	}
	return defaultIncompatiblePosition(md, conflicts, id, bp, lp, rp, overrides)
}

func movePositionTo(md *MutableDocument, id NodeId, target *ParentRef) error {
	if target == nil {
		return nil
	}
	n, ok := md.working.GetNode(id)
	if !ok || n.Parent == nil || target.Equal(n.Parent) {
		return nil
	}
	return md.MoveElement(ByID(id), ByID(target.Parent), Position{Field: target.Field, Index: target.Index})
}

// defaultIncompatiblePosition keeps the node (re-identified under a fresh
// id) at the lexicographically-earlier destination and places a second,
// fully fresh-ided copy of its subtree at the other, recording both ids in
// ClonedElements (spec.md section 4.9.1).
func defaultIncompatiblePosition(md *MutableDocument, conflicts ConflictsMap, id NodeId, bp, lp, rp *ParentRef, overrides *MergeOverrides) error {
	chooseLocal := true
	if lp != nil && rp != nil {
		chooseLocal = parentRefKey(lp) <= parentRefKey(rp)
	} else if rp != nil {
		chooseLocal = false
	}
	keep, clone := lp, rp
	if !chooseLocal {
		keep, clone = rp, lp
	}

	n, ok := md.working.GetNode(id)
	if !ok {
		return nil
	}

	keptId := NodeId{Type: id.Type, ID: md.idGen()}
	reIded, err := md.working.ReIdSubtree(id, keptId)
	if err != nil {
		return err
	}
	md.working = reIded
	_ = n

	if keep != nil {
		if err := md.MoveElement(ByID(keptId), ByID(keep.Parent), Position{Field: keep.Field, Index: keep.Index}); err != nil {
			return err
		}
	}

	cloned := []NodeId{keptId}
	if clone != nil {
		_, produced, err := cloneSubtreeWithFreshIds(md, keptId, clone.Parent, Position{Field: clone.Field, Index: clone.Index})
		if err != nil {
			return err
		}
		cloned = append(cloned, produced...)
	}

	conflicts.element(id).Position = &PositionConflict{
		NodeId: id, Base: bp, Local: lp, Remote: rp, ClonedElements: cloned, Status: ConflictAutoMerged,
	}
	return nil
}

func parentRefKey(p *ParentRef) string {
	if p == nil {
		return ""
	}
	idx := ""
	if p.Index != nil {
		idx = fmt.Sprintf("%d", *p.Index)
	}
	return p.Parent.CanonicalId() + "|" + p.Field + "|" + idx
}

// cloneSubtreeWithFreshIds denormalizes the subtree rooted at rootId and
// recursively re-inserts it at (destParent, destPos) under entirely fresh
// ids (root and every descendant), returning the new root id and the full
// list of ids minted.
func cloneSubtreeWithFreshIds(md *MutableDocument, rootId NodeId, destParent NodeId, destPos Position) (NodeId, []NodeId, error) {
	dn, err := Denormalize(md.working, rootId)
	if err != nil {
		return ZeroNodeId, nil, err
	}
	var cloned []NodeId
	var insert func(dn *DenormalizedNode, parent NodeId, pos Position) (NodeId, error)
	insert = func(dn *DenormalizedNode, parent NodeId, pos Position) (NodeId, error) {
		newId, err := md.InsertElement(ByID(parent), pos, dn.Id.Type, NodeId{}, cloneData(dn.Data))
		if err != nil {
			return ZeroNodeId, err
		}
		cloned = append(cloned, newId)
		for field, v := range dn.Children {
			switch vv := v.(type) {
			case *DenormalizedNode:
				if vv != nil {
					if _, err := insert(vv, newId, End(field)); err != nil {
						return ZeroNodeId, err
					}
				}
			case []*DenormalizedNode:
				for _, child := range vv {
					if child == nil {
						continue
					}
					if _, err := insert(child, newId, End(field)); err != nil {
						return ZeroNodeId, err
					}
				}
			}
		}
		return newId, nil
	}
	newRoot, err := insert(dn, destParent, destPos)
	if err != nil {
		return ZeroNodeId, nil, err
	}
	return newRoot, cloned, nil
}
