/*
Package hdoc implements a typed, schema-driven, normalized hierarchical
document: an immutable tree of typed nodes held in a flat keyed store, a
mutable editing engine that records a replayable change log, a structural
diff between two document versions, a three-way merge with conflict
reporting, and a Git-like commit history with branching, undo/redo, and
push/pull reconciliation.

# Overview

The core data structure is a [NormalizedDocument]: nodes are addressed by
[NodeId] (a schema type name plus an opaque scalar id) rather than nested
inline, so the same node can be referenced from multiple places without
duplicating it. A [Schema] declares, per node type, how children are linked
(Single/Array/Set) and what scalar data fields a node of that type carries.

Mutations never touch a [NormalizedDocument] directly. Callers obtain a
[MutableDocument], apply a batch of the four structural primitives
(InsertElement/ChangeElement/MoveElement/DeleteElement), and materialize an
updated snapshot:

	md := hdoc.NewMutableDocument(doc)
	_, err := md.InsertElement(hdoc.RootRef(), hdoc.Position{Field: "children"}, "Task", hdoc.NodeId{}, data)
	updated := md.UpdatedDocument()

[Diff] computes the minimal sequence of those same primitives that turns one
document into another; [ThreeWayMerge] reconciles two versions that diverged
from a common ancestor, auto-merging compatible edits and recording a typed
conflict for the rest; [HDocHistory] layers a commit graph with checkpoints,
undo/redo, and branch merge on top of the above.

# Schema registration

A [Schema] is a pure in-memory descriptor; there is no schema
evolution/migration support and no persistence format of its own — callers
serialize [Change] logs or [NormalizedDocument] snapshots however they see
fit.
*/
package hdoc
