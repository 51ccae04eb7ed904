package hdoc

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mindiply/hirardoc-sub000/internal/hdoclog"
)

// CommitId is the content-derived identifier of one history entry: a
// hex-encoded SHA-512 of its parent id, kind, author/timestamp, and record
// contents (spec.md section 4.10, invariant H1).
type CommitId string

// RecordKind names which of the four record shapes a commit carries.
type RecordKind int

const (
	// RecordOperation: a normal edit, its Changes produced by a
	// MutableDocument session (InsertElement/ChangeElement/etc.) via the
	// history's OperationInterpreter.
	RecordOperation RecordKind = iota
	// RecordUndo: rewinds to an earlier commit's document, recorded as a
	// forward commit (see undoneToCommitId).
	RecordUndo
	// RecordRedo: replays a commit previously undone, recorded as a
	// forward commit (see undoCommitId/reverseToCommitId).
	RecordRedo
	// RecordMerge: reconciles a diverged branch via ThreeWayMerge.
	RecordMerge
)

// Commit is one node of the history graph. Every record carries userId and
// when, per spec.md section 4.10 "Records".
type Commit struct {
	Id       CommitId
	ParentId CommitId // "" for the initial commit
	Kind     RecordKind
	UserId   string
	When     time.Time

	// RecordOperation: the high-level operation value passed to Commit (as
	// interpreted by the OperationInterpreter) and the primitive change
	// sequence it produced.
	Op      interface{}
	Changes []Change

	// RecordUndo: the commit this rewinds to.
	UndoneToCommitId CommitId
	// RecordRedo: the Undo being reversed, and the commit state restored.
	UndoCommitId      CommitId
	ReverseToCommitId CommitId

	// RecordMerge
	MergedFromId    CommitId
	MergedChanges   []Change
	MergeConflicts  ConflictsMap
	mergedCommitIds map[CommitId]bool // ids folded into this merge, for partial-overlap detection on a later pull

	checkpoint interface{} // non-nil every checkpointEvery commits; translated via HDocCheckpointTranslator
}

// computeId derives Id from every other field per invariant H1. Call after
// every other field is set, with Id still its zero value.
func (c *Commit) computeId() CommitId {
	hasher := sha512.New()
	fmt.Fprintf(hasher, "parent:%s\nkind:%d\nuser:%s\nwhen:%d\n", c.ParentId, c.Kind, c.UserId, c.When.UnixNano())
	fmt.Fprintf(hasher, "op:%v\n", c.Op)
	for _, ch := range c.Changes {
		fmt.Fprintf(hasher, "chg op:%d id:%s field:%s index:%v parent:%s data:%v\n",
			ch.Op, ch.NodeId, ch.Field, ch.Index, ch.ParentId, ch.Data)
	}
	fmt.Fprintf(hasher, "undoneTo:%s undoCommit:%s reverseTo:%s\n", c.UndoneToCommitId, c.UndoCommitId, c.ReverseToCommitId)
	fmt.Fprintf(hasher, "mergedFrom:%s\n", c.MergedFromId)
	for _, ch := range c.MergedChanges {
		fmt.Fprintf(hasher, "mchg op:%d id:%s field:%s index:%v parent:%s data:%v\n",
			ch.Op, ch.NodeId, ch.Field, ch.Index, ch.ParentId, ch.Data)
	}
	return CommitId(hex.EncodeToString(hasher.Sum(nil)))
}

// OperationInterpreter turns a caller-supplied high-level operation value
// into primitive mutations on md. The default interpreter accepts a
// []Change (the shape MutableDocument.Changes already produces) and
// replays it via ApplyChanges; callers whose Commit passes richer
// operation values supply their own (spec.md section 6, "operation
// interpreter").
type OperationInterpreter func(md *MutableDocument, op interface{}) error

func defaultOperationInterpreter(md *MutableDocument, op interface{}) error {
	switch v := op.(type) {
	case nil:
		return nil
	case []Change:
		return md.ApplyChanges(v)
	default:
		return NewValidationError("unsupported operation value of type %T; supply an OperationInterpreter", op)
	}
}

// HDocCheckpointTranslator converts between a NormalizedDocument and
// whatever external representation a history chooses to persist
// checkpoints as (spec.md section 4.10.2). The default is the identity
// translator: checkpoints are stored as the document itself.
type HDocCheckpointTranslator struct {
	HDocToCheckpoint func(*NormalizedDocument) (interface{}, error)
	CheckpointToHDoc func(interface{}) (*NormalizedDocument, error)
}

func identityCheckpointTranslator() *HDocCheckpointTranslator {
	return &HDocCheckpointTranslator{
		HDocToCheckpoint: func(doc *NormalizedDocument) (interface{}, error) { return doc, nil },
		CheckpointToHDoc: func(v interface{}) (*NormalizedDocument, error) {
			doc, ok := v.(*NormalizedDocument)
			if !ok {
				return nil, NewValidationError("checkpoint value is not a *NormalizedDocument")
			}
			return doc, nil
		},
	}
}

// HDocHistoryOptions configures a history beyond its defaults: how often
// to checkpoint, how to interpret commit() operations, how to translate
// checkpoints to/from their stored form, and which merge function to use
// (spec.md section 6).
type HDocHistoryOptions struct {
	CheckpointEvery      int
	OperationInterpreter OperationInterpreter
	CheckpointTranslator *HDocCheckpointTranslator
	MergeFn              func(base, local, remote *NormalizedDocument, overrides *MergeOverrides) (*NormalizedDocument, ConflictsMap, error)
}

// HDocHistory layers a commit graph, checkpoints, and undo/redo on top of
// a NormalizedDocument lineage (spec.md section 4.10). One HDocHistory
// tracks one branch's linear, append-only commit sequence; commits are
// never removed or reordered -- Undo/Redo append new commits rather than
// rewinding HEAD, so every previousCommitId always identifies an earlier
// record in the same history (invariant H3).
type HDocHistory struct {
	schema               *Schema
	commits              map[CommitId]*Commit
	order                []CommitId // linear, oldest-first; HEAD is always order[len(order)-1]
	checkpointEvery      int
	operationInterpreter OperationInterpreter
	checkpointTranslator *HDocCheckpointTranslator
	mergeFn              func(base, local, remote *NormalizedDocument, overrides *MergeOverrides) (*NormalizedDocument, ConflictsMap, error)
	log                  *zap.SugaredLogger
}

const defaultCheckpointEvery = 20

// NewHistory starts a history whose first commit holds initial as its
// checkpoint, using every default option.
func NewHistory(initial *NormalizedDocument) *HDocHistory {
	return NewHistoryWithOptions(initial, HDocHistoryOptions{})
}

// NewHistoryWithOptions starts a history as NewHistory does, with opts
// overriding any of the documented defaults (zero value fields keep the
// default).
func NewHistoryWithOptions(initial *NormalizedDocument, opts HDocHistoryOptions) *HDocHistory {
	h := &HDocHistory{
		schema:               initial.schema,
		commits:              map[CommitId]*Commit{},
		checkpointEvery:      defaultCheckpointEvery,
		operationInterpreter: defaultOperationInterpreter,
		checkpointTranslator: identityCheckpointTranslator(),
		mergeFn:              ThreeWayMerge,
		log:                  hdoclog.L().Sugar(),
	}
	if opts.CheckpointEvery > 0 {
		h.checkpointEvery = opts.CheckpointEvery
	}
	if opts.OperationInterpreter != nil {
		h.operationInterpreter = opts.OperationInterpreter
	}
	if opts.CheckpointTranslator != nil {
		h.checkpointTranslator = opts.CheckpointTranslator
	}
	if opts.MergeFn != nil {
		h.mergeFn = opts.MergeFn
	}

	root := &Commit{Kind: RecordOperation, When: time.Time{}}
	root.Id = root.computeId()
	if err := h.storeCheckpoint(root, initial); err != nil {
		// identity translator never errors; a caller-supplied one that does
		// leaves the history uninitialized, which is a programming error.
		panic(err)
	}
	h.commits[root.Id] = root
	h.order = []CommitId{root.Id}
	return h
}

// SetCheckpointInterval overrides how often (in commits) a full snapshot
// is stored rather than being reconstructed by replay. Default 20.
func (h *HDocHistory) SetCheckpointInterval(n int) {
	if n > 0 {
		h.checkpointEvery = n
	}
}

func (h *HDocHistory) storeCheckpoint(c *Commit, doc *NormalizedDocument) error {
	v, err := h.checkpointTranslator.HDocToCheckpoint(doc)
	if err != nil {
		return err
	}
	c.checkpoint = v
	return nil
}

func (h *HDocHistory) loadCheckpoint(c *Commit) (*NormalizedDocument, error) {
	return h.checkpointTranslator.CheckpointToHDoc(c.checkpoint)
}

// HeadId returns the commit id HEAD currently points to.
func (h *HDocHistory) HeadId() CommitId { return h.order[len(h.order)-1] }

// HasCommitId reports whether commitId is known to this history.
func (h *HDocHistory) HasCommitId(commitId CommitId) bool {
	_, ok := h.commits[commitId]
	return ok
}

// NextCommitIdOf returns the commit that immediately follows commitId in
// this history's order, if any.
func (h *HDocHistory) NextCommitIdOf(commitId CommitId) (CommitId, bool) {
	for i, id := range h.order {
		if id == commitId {
			if i+1 < len(h.order) {
				return h.order[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// PrevCommitIdOf returns the commit that immediately precedes commitId in
// this history's order, if any.
func (h *HDocHistory) PrevCommitIdOf(commitId CommitId) (CommitId, bool) {
	for i, id := range h.order {
		if id == commitId {
			if i > 0 {
				return h.order[i-1], true
			}
			return "", false
		}
	}
	return "", false
}

// CanUndo reports whether Undo has a prior commit to rewind to.
func (h *HDocHistory) CanUndo() bool {
	_, err := h.undoTarget()
	return err == nil
}

// CanRedo reports whether Redo has a later commit to replay.
func (h *HDocHistory) CanRedo() bool {
	_, err := h.redoTarget()
	return err == nil
}

// Commit interprets op via the history's OperationInterpreter against
// HEAD's materialized document, appends the resulting RecordOperation
// commit, and returns its id (spec.md section 4.10, commit(op, userId)).
func (h *HDocHistory) Commit(op interface{}, userId string) (CommitId, error) {
	headDoc, err := h.DocumentAtCommitId(h.HeadId())
	if err != nil {
		return "", err
	}
	md := NewMutableDocument(headDoc)
	if err := h.operationInterpreter(md, op); err != nil {
		return "", err
	}
	c := &Commit{ParentId: h.HeadId(), Kind: RecordOperation, Op: op, Changes: md.Changes(), UserId: userId, When: time.Now()}
	c.Id = c.computeId()
	if err := h.appendCommit(c, md.UpdatedDocument()); err != nil {
		return "", err
	}
	h.log.Debugw("commit", "id", c.Id, "changes", len(c.Changes))
	return c.Id, nil
}

// appendCommit appends c as the new HEAD and stores a checkpoint if due.
func (h *HDocHistory) appendCommit(c *Commit, materialized *NormalizedDocument) error {
	h.order = append(h.order, c.Id)
	h.commits[c.Id] = c
	if (len(h.order)-1)%h.checkpointEvery == 0 {
		if err := h.storeCheckpoint(c, materialized); err != nil {
			return err
		}
	}
	return nil
}

// undoTarget finds the commit Undo should record as undoneToCommitId,
// walking back from HEAD through any Redo/Undo cancellation pairs (spec.md
// section 4.10.1).
func (h *HDocHistory) undoTarget() (CommitId, error) {
	cur, ok := h.commits[h.HeadId()]
	if !ok {
		return "", NewIntegrityError("", "HEAD %s is not a known commit", h.HeadId())
	}
	for cur.Kind == RecordRedo || cur.Kind == RecordUndo {
		if cur.Kind == RecordUndo {
			undoneTo, ok := h.commits[cur.UndoneToCommitId]
			if !ok {
				return "", NewIntegrityError("", "undo commit %s references unknown commit %s", cur.Id, cur.UndoneToCommitId)
			}
			cur = undoneTo
			continue
		}
		undoCommit, ok := h.commits[cur.UndoCommitId]
		if !ok {
			return "", NewIntegrityError("", "redo commit %s references unknown undo %s", cur.Id, cur.UndoCommitId)
		}
		parent, ok := h.commits[undoCommit.ParentId]
		if !ok {
			return "", NewIntegrityError("", "undo commit %s has unknown parent", undoCommit.Id)
		}
		cur = parent
	}
	if cur.ParentId == "" {
		return "", NewConstraintError("", "nothing to undo")
	}
	return cur.ParentId, nil
}

// redoTarget finds the Undo commit Redo should reverse, ascending through
// Redo chains (spec.md section 4.10.1).
func (h *HDocHistory) redoTarget() (CommitId, error) {
	cur, ok := h.commits[h.HeadId()]
	if !ok {
		return "", NewIntegrityError("", "HEAD %s is not a known commit", h.HeadId())
	}
	for {
		switch cur.Kind {
		case RecordUndo:
			return cur.Id, nil
		case RecordRedo:
			undoCommit, ok := h.commits[cur.UndoCommitId]
			if !ok {
				return "", NewIntegrityError("", "redo commit %s references unknown undo %s", cur.Id, cur.UndoCommitId)
			}
			parent, ok := h.commits[undoCommit.ParentId]
			if !ok {
				return "", NewIntegrityError("", "undo commit %s has unknown parent", undoCommit.Id)
			}
			cur = parent
		default:
			return "", NewConstraintError("", "nothing to redo")
		}
	}
}

// Undo walks back to the nearest non-undone commit (section 4.10.1) and
// appends a RecordUndo commit whose Changes replay that state, returning
// its id.
func (h *HDocHistory) Undo(userId string) (CommitId, error) {
	target, err := h.undoTarget()
	if err != nil {
		return "", err
	}
	currentDoc, err := h.DocumentAtCommitId(h.HeadId())
	if err != nil {
		return "", err
	}
	undoneDoc, err := h.DocumentAtCommitId(target)
	if err != nil {
		return "", err
	}
	changes, err := Diff(currentDoc, undoneDoc)
	if err != nil {
		return "", err
	}
	c := &Commit{ParentId: h.HeadId(), Kind: RecordUndo, Changes: changes, UndoneToCommitId: target, UserId: userId, When: time.Now()}
	c.Id = c.computeId()
	if err := h.appendCommit(c, undoneDoc); err != nil {
		return "", err
	}
	h.log.Debugw("undo", "id", c.Id, "undoneTo", target)
	return c.Id, nil
}

// Redo reverses the Undo that Undo would otherwise target, replaying the
// state it had rewound past.
func (h *HDocHistory) Redo(userId string) (CommitId, error) {
	undoId, err := h.redoTarget()
	if err != nil {
		return "", err
	}
	undoCommit := h.commits[undoId]
	reverseTo := undoCommit.ParentId
	currentDoc, err := h.DocumentAtCommitId(h.HeadId())
	if err != nil {
		return "", err
	}
	reverseDoc, err := h.DocumentAtCommitId(reverseTo)
	if err != nil {
		return "", err
	}
	changes, err := Diff(currentDoc, reverseDoc)
	if err != nil {
		return "", err
	}
	c := &Commit{ParentId: h.HeadId(), Kind: RecordRedo, Changes: changes, UndoCommitId: undoId, ReverseToCommitId: reverseTo, UserId: userId, When: time.Now()}
	c.Id = c.computeId()
	if err := h.appendCommit(c, reverseDoc); err != nil {
		return "", err
	}
	h.log.Debugw("redo", "id", c.Id, "reverseTo", reverseTo)
	return c.Id, nil
}

// DocumentAtCommitId materializes the document as of commitId, replaying
// forward from the nearest checkpoint at or before it.
func (h *HDocHistory) DocumentAtCommitId(commitId CommitId) (*NormalizedDocument, error) {
	idx := -1
	for i, id := range h.order {
		if id == commitId {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, NewRangeError("", "unknown commit id %s", commitId)
	}
	cpIdx := idx
	for cpIdx > 0 && h.commits[h.order[cpIdx]].checkpoint == nil {
		cpIdx--
	}
	if h.commits[h.order[cpIdx]].checkpoint == nil {
		return nil, NewIntegrityError("", "history has no checkpoint at or before commit %s", commitId)
	}
	doc, err := h.loadCheckpoint(h.commits[h.order[cpIdx]])
	if err != nil {
		return nil, err
	}
	if cpIdx == idx {
		return doc, nil
	}
	md := NewMutableDocument(doc)
	for i := cpIdx + 1; i <= idx; i++ {
		c := h.commits[h.order[i]]
		if err := replayCommit(md, c); err != nil {
			return nil, err
		}
	}
	return md.UpdatedDocument(), nil
}

func replayCommit(md *MutableDocument, c *Commit) error {
	switch c.Kind {
	case RecordOperation, RecordUndo, RecordRedo:
		return md.ApplyChanges(c.Changes)
	case RecordMerge:
		return md.ApplyChanges(c.MergedChanges)
	}
	return nil
}

// Branch returns a new, independent HDocHistory sharing this history's
// commits up to and including fromCommitId (HEAD if fromCommitId is
// empty), so the two can diverge and later be reconciled with Merge
// (spec.md section 4.10, branch(fromCommitId?)).
func (h *HDocHistory) Branch(fromCommitId CommitId) (*HDocHistory, error) {
	upto := fromCommitId
	if upto == "" {
		upto = h.HeadId()
	}
	idx := -1
	for i, id := range h.order {
		if id == upto {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, NewRangeError("", "unknown commit id %s", fromCommitId)
	}
	commits := make(map[CommitId]*Commit, len(h.commits))
	for k, v := range h.commits {
		commits[k] = v
	}
	order := make([]CommitId, idx+1)
	copy(order, h.order[:idx+1])
	return &HDocHistory{
		schema:               h.schema,
		commits:              commits,
		order:                order,
		checkpointEvery:      h.checkpointEvery,
		operationInterpreter: h.operationInterpreter,
		checkpointTranslator: h.checkpointTranslator,
		mergeFn:              h.mergeFn,
		log:                  h.log,
	}, nil
}

// commonAncestor returns the last commit id present in both histories'
// order slices (a simple linear-history merge-base, sufficient because
// Branch always forks from a shared prefix).
func commonAncestor(a, b *HDocHistory) (CommitId, int, int) {
	bIdx := map[CommitId]int{}
	for i, id := range b.order {
		bIdx[id] = i
	}
	for i := len(a.order) - 1; i >= 0; i-- {
		if j, ok := bIdx[a.order[i]]; ok {
			return a.order[i], i, j
		}
	}
	return "", -1, -1
}

// HistoryDelta is the wire-serializable unit a history can push to, or
// pull from, another party: every commit strictly after FromCommitId up
// to and including ToCommitId (spec.md section 4.10,
// generateHistoryDelta/mergeHistoryDelta; section 1(e), "push/pull deltas
// and client/server reconciliation").
type HistoryDelta struct {
	FromCommitId CommitId
	ToCommitId   CommitId
	Commits      []*Commit
}

// GenerateHistoryDelta returns every commit after fromCommitId (exclusive)
// up to toCommitId (inclusive; HEAD if toCommitId is empty), ready to ship
// to a party whose history currently ends at fromCommitId.
func (h *HDocHistory) GenerateHistoryDelta(fromCommitId, toCommitId CommitId) (*HistoryDelta, error) {
	to := toCommitId
	if to == "" {
		to = h.HeadId()
	}
	fromIdx := -1
	if fromCommitId != "" {
		for i, id := range h.order {
			if id == fromCommitId {
				fromIdx = i
				break
			}
		}
		if fromIdx < 0 {
			return nil, NewRangeError("", "unknown commit id %s", fromCommitId)
		}
	}
	toIdx := -1
	for i, id := range h.order {
		if id == to {
			toIdx = i
			break
		}
	}
	if toIdx < 0 {
		return nil, NewRangeError("", "unknown commit id %s", to)
	}
	if toIdx < fromIdx {
		return nil, NewRangeError("", "toCommitId %s precedes fromCommitId %s", to, fromCommitId)
	}
	commits := make([]*Commit, 0, toIdx-fromIdx)
	for i := fromIdx + 1; i <= toIdx; i++ {
		commits = append(commits, h.commits[h.order[i]])
	}
	return &HistoryDelta{FromCommitId: fromCommitId, ToCommitId: to, Commits: commits}, nil
}

// materializeDelta replays delta's commits onto base, without touching any
// HDocHistory bookkeeping.
func materializeDelta(base *NormalizedDocument, commits []*Commit) (*NormalizedDocument, error) {
	md := NewMutableDocument(base)
	for _, c := range commits {
		if err := replayCommit(md, c); err != nil {
			return nil, err
		}
	}
	return md.UpdatedDocument(), nil
}

func foldedIdsFromDelta(delta *HistoryDelta) map[CommitId]bool {
	folded := map[CommitId]bool{}
	for _, c := range delta.Commits {
		folded[c.Id] = true
		for id := range c.mergedCommitIds {
			folded[id] = true
		}
	}
	return folded
}

// MergeHistoryDelta folds a HistoryDelta produced by another party's
// GenerateHistoryDelta into h (spec.md section 4.10,
// mergeHistoryDelta(delta, userId)):
//   - empty delta: no-op.
//   - delta.FromCommitId unknown to h: no-op (h cannot place it).
//   - delta.FromCommitId == h.HeadId(): fast-forward, no merge commit.
//   - otherwise: three-way merge against the last common ancestor,
//     appending a RecordMerge commit.
func (h *HDocHistory) MergeHistoryDelta(delta *HistoryDelta, userId string, overrides *MergeOverrides) (CommitId, ConflictsMap, error) {
	if delta == nil || len(delta.Commits) == 0 {
		return h.HeadId(), ConflictsMap{}, nil
	}
	if delta.FromCommitId != "" && !h.HasCommitId(delta.FromCommitId) {
		return h.HeadId(), ConflictsMap{}, nil
	}

	if h.HeadId() == delta.FromCommitId {
		for _, c := range delta.Commits {
			h.commits[c.Id] = c
			h.order = append(h.order, c.Id)
		}
		h.log.Debugw("merge-delta-fast-forward", "head", h.HeadId())
		return h.HeadId(), ConflictsMap{}, nil
	}

	ancestorId := delta.FromCommitId
	if ancestorId == "" {
		ancestorId = h.order[0]
	}
	baseDoc, err := h.DocumentAtCommitId(ancestorId)
	if err != nil {
		return "", nil, err
	}
	localDoc, err := h.DocumentAtCommitId(h.HeadId())
	if err != nil {
		return "", nil, err
	}
	remoteDoc, err := materializeDelta(baseDoc, delta.Commits)
	if err != nil {
		return "", nil, err
	}

	mergeFn := h.mergeFn
	if mergeFn == nil {
		mergeFn = ThreeWayMerge
	}
	merged, conflicts, err := mergeFn(baseDoc, localDoc, remoteDoc, overrides)
	if err != nil {
		return "", nil, err
	}
	mergedChanges, err := Diff(localDoc, merged)
	if err != nil {
		return "", nil, err
	}

	c := &Commit{
		ParentId: h.HeadId(), Kind: RecordMerge,
		MergedFromId: delta.Commits[len(delta.Commits)-1].Id, MergedChanges: mergedChanges, MergeConflicts: conflicts,
		UserId: userId, When: time.Now(),
		mergedCommitIds: foldedIdsFromDelta(delta),
	}
	c.Id = c.computeId()
	if err := h.appendCommit(c, merged); err != nil {
		return "", nil, err
	}
	h.log.Debugw("merge-delta", "id", c.Id, "conflicts", len(conflicts))
	return c.Id, conflicts, nil
}

// Merge folds other's commits since the common ancestor into h, via
// GenerateHistoryDelta/MergeHistoryDelta. It is the in-process convenience
// form of pushing/pulling a HistoryDelta between two parties that happen
// to share memory.
func (h *HDocHistory) Merge(other *HDocHistory, overrides *MergeOverrides) (CommitId, ConflictsMap, error) {
	ancestorId, _, bIdx := commonAncestor(h, other)
	if ancestorId == "" {
		return "", nil, NewConstraintError("", "Merge: histories share no common ancestor")
	}
	if ancestorId == other.order[len(other.order)-1] {
		return h.HeadId(), ConflictsMap{}, nil // other has nothing new
	}
	delta, err := other.GenerateHistoryDelta(ancestorId, other.HeadId())
	if err != nil {
		return "", nil, err
	}
	_ = bIdx
	return h.MergeHistoryDelta(delta, "", overrides)
}

// AlreadyMerged reports whether commitId was folded into h by a prior
// Merge/MergeHistoryDelta call, letting a repeated pull from the same
// remote recognize commits it has already reconciled instead of
// re-merging them (invariant H5).
func (h *HDocHistory) AlreadyMerged(commitId CommitId) bool {
	for _, id := range h.order {
		if c := h.commits[id]; c.Kind == RecordMerge && c.mergedCommitIds[commitId] {
			return true
		}
	}
	for _, id := range h.order {
		if id == commitId {
			return true
		}
	}
	return false
}

// PullOriginChangesIntoLocalHistory rebases h's commits since the common
// ancestor on top of origin's HEAD: it is Merge's "rebase on pull" mode,
// used when the caller wants a linear history with the remote's commits
// as the trunk rather than a merge commit.
func (h *HDocHistory) PullOriginChangesIntoLocalHistory(origin *HDocHistory, overrides *MergeOverrides) (CommitId, ConflictsMap, error) {
	ancestorId, aIdx, _ := commonAncestor(h, origin)
	if ancestorId == "" {
		return "", nil, NewConstraintError("", "Pull: histories share no common ancestor")
	}
	localOnly := append([]CommitId(nil), h.order[aIdx+1:]...)
	if len(localOnly) == 0 {
		// Nothing local to replay: fast-forward onto origin.
		return h.Merge(origin, overrides)
	}

	rebased, err := origin.Branch("")
	if err != nil {
		return "", nil, err
	}
	cursorDoc, err := rebased.DocumentAtCommitId(rebased.HeadId())
	if err != nil {
		return "", nil, err
	}
	var lastConflicts ConflictsMap
	mergeFn := h.mergeFn
	if mergeFn == nil {
		mergeFn = ThreeWayMerge
	}
	for _, id := range localOnly {
		c := h.commits[id]
		prevLocalDoc, err := h.DocumentAtCommitId(c.ParentId)
		if err != nil && c.ParentId != "" {
			return "", nil, err
		}
		var localChanges []Change
		switch c.Kind {
		case RecordOperation, RecordUndo, RecordRedo:
			localChanges = c.Changes
		case RecordMerge:
			localChanges = c.MergedChanges
		}
		if prevLocalDoc != nil {
			md := NewMutableDocument(cursorDoc)
			target, err := NewMutableDocument(prevLocalDoc).runChanges(localChanges)
			if err != nil {
				return "", nil, err
			}
			merged, conflicts, err := mergeFn(prevLocalDoc, target, cursorDoc, overrides)
			if err != nil {
				return "", nil, err
			}
			lastConflicts = conflicts
			replayChanges, err := Diff(cursorDoc, merged)
			if err != nil {
				return "", nil, err
			}
			if err := md.ApplyChanges(replayChanges); err != nil {
				return "", nil, err
			}
			cursorDoc = md.UpdatedDocument()
		}
		nc := &Commit{ParentId: rebased.HeadId(), Kind: c.Kind, Changes: localChanges, UserId: c.UserId, When: c.When}
		nc.Id = nc.computeId()
		if err := rebased.appendCommit(nc, cursorDoc); err != nil {
			return "", nil, err
		}
	}
	*h = *rebased
	return h.HeadId(), lastConflicts, nil
}

// runChanges is a small helper so Pull can materialize "prevDoc + changes"
// without going through the full Commit/history bookkeeping.
func (md *MutableDocument) runChanges(changes []Change) (*NormalizedDocument, error) {
	if err := md.ApplyChanges(changes); err != nil {
		return nil, err
	}
	return md.UpdatedDocument(), nil
}

// sortCommitIds returns the ids of a folded-commit-id set in ascending
// order. It has no caller in the package.
func sortCommitIds(ids map[CommitId]bool) []CommitId {
	out := make([]CommitId, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
