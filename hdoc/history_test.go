package hdoc

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func changesFrom(base *NormalizedDocument, ops func(md *MutableDocument)) []Change {
	md := NewMutableDocument(base)
	ops(md)
	return md.Changes()
}

func TestHistoryCommitUndoRedo(t *testing.T) {
	Convey("Given a fresh history", t, func() {
		base := newTestDocument()
		h := NewHistory(base)
		h.SetCheckpointInterval(2)

		c1, err := h.Commit(changesFrom(base, func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), map[string]interface{}{"title": "a"}))
		}), "alice")
		So(err, ShouldBeNil)

		doc1, err := h.DocumentAtCommitId(c1)
		So(err, ShouldBeNil)
		_, ok := doc1.GetNode(taskId("1"))
		So(ok, ShouldBeTrue)

		c2, err := h.Commit(changesFrom(doc1, func(md *MutableDocument) {
			noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "b"}))
		}), "alice")
		So(err, ShouldBeNil)

		Convey("HEAD reflects the latest commit", func() {
			doc2, err := h.DocumentAtCommitId(h.HeadId())
			So(err, ShouldBeNil)
			n, _ := doc2.GetNode(taskId("1"))
			So(n.Data["title"], ShouldEqual, "b")
			So(h.HeadId(), ShouldEqual, c2)
			So(h.commits[c2].UserId, ShouldEqual, "alice")
		})

		Convey("Undo rewinds HEAD to the previous commit's document", func() {
			So(h.CanUndo(), ShouldBeTrue)
			head, err := h.Undo("alice")
			So(err, ShouldBeNil)
			So(h.commits[head].Kind, ShouldEqual, RecordUndo)
			So(h.commits[head].UndoneToCommitId, ShouldEqual, c1)

			doc, err := h.DocumentAtCommitId(h.HeadId())
			So(err, ShouldBeNil)
			n, _ := doc.GetNode(taskId("1"))
			So(n.Data["title"], ShouldEqual, "a")

			Convey("Redo replays it again", func() {
				So(h.CanRedo(), ShouldBeTrue)
				head, err := h.Redo("alice")
				So(err, ShouldBeNil)
				So(h.commits[head].Kind, ShouldEqual, RecordRedo)

				doc, err := h.DocumentAtCommitId(h.HeadId())
				So(err, ShouldBeNil)
				n, _ := doc.GetNode(taskId("1"))
				So(n.Data["title"], ShouldEqual, "b")
			})

			Convey("Committing after an Undo does not block further undo/redo walk-back", func() {
				_, err := h.Commit(changesFrom(doc, func(md *MutableDocument) {
					noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "c"}))
				}), "alice")
				So(err, ShouldBeNil)
				So(h.CanUndo(), ShouldBeTrue)
			})
		})

		Convey("Undo past the first commit is rejected", func() {
			_, _ = h.Undo("alice")
			_, _ = h.Undo("alice")
			So(h.CanUndo(), ShouldBeFalse)
			_, err := h.Undo("alice")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestHistoryCommitIdsCoverUserAndTime(t *testing.T) {
	Convey("Given the same changes committed by two different users", t, func() {
		base := newTestDocument()
		h1 := NewHistory(base)
		h2 := NewHistory(base)

		changes := changesFrom(base, func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), map[string]interface{}{"title": "a"}))
		})

		c1, err := h1.Commit(changes, "alice")
		So(err, ShouldBeNil)
		c2, err := h2.Commit(changes, "bob")
		So(err, ShouldBeNil)

		Convey("their commit ids differ", func() {
			So(c1, ShouldNotEqual, c2)
		})
	})
}

func TestHistoryNextPrevCommitId(t *testing.T) {
	Convey("Given a history of three commits", t, func() {
		base := newTestDocument()
		h := NewHistory(base)
		root := h.HeadId()
		c1, err := h.Commit(changesFrom(base, func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), nil))
		}), "alice")
		So(err, ShouldBeNil)
		doc1, _ := h.DocumentAtCommitId(c1)
		c2, err := h.Commit(changesFrom(doc1, func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 1), "Task", taskId("2"), nil))
		}), "alice")
		So(err, ShouldBeNil)

		Convey("HasCommitId recognizes every commit and rejects unknown ones", func() {
			So(h.HasCommitId(root), ShouldBeTrue)
			So(h.HasCommitId(c1), ShouldBeTrue)
			So(h.HasCommitId(c2), ShouldBeTrue)
			So(h.HasCommitId(CommitId("nope")), ShouldBeFalse)
		})

		Convey("NextCommitIdOf/PrevCommitIdOf walk the linear order", func() {
			next, ok := h.NextCommitIdOf(root)
			So(ok, ShouldBeTrue)
			So(next, ShouldEqual, c1)

			prev, ok := h.PrevCommitIdOf(c2)
			So(ok, ShouldBeTrue)
			So(prev, ShouldEqual, c1)

			_, ok = h.NextCommitIdOf(c2)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestHistoryBranchAndMerge(t *testing.T) {
	Convey("Given a history with one committed task", t, func() {
		base := newTestDocument()
		h := NewHistory(base)
		c1, err := h.Commit(changesFrom(base, func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), map[string]interface{}{"title": "a"}))
		}), "alice")
		So(err, ShouldBeNil)
		doc1, _ := h.DocumentAtCommitId(c1)

		branch, err := h.Branch("")
		So(err, ShouldBeNil)

		Convey("A pure fast-forward merge adopts the other branch's commits", func() {
			_, err := branch.Commit(changesFrom(doc1, func(md *MutableDocument) {
				must(md.InsertElement(RootRef(), At("tasks", 1), "Task", taskId("2"), nil))
			}), "bob")
			So(err, ShouldBeNil)

			head, conflicts, err := h.Merge(branch, nil)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeTrue)
			So(head, ShouldEqual, branch.HeadId())

			doc, _ := h.DocumentAtCommitId(h.HeadId())
			_, ok := doc.GetNode(taskId("2"))
			So(ok, ShouldBeTrue)
		})

		Convey("Diverged branches produce a merge commit", func() {
			_, err := h.Commit(changesFrom(doc1, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "from-local"}))
			}), "alice")
			So(err, ShouldBeNil)

			_, err = branch.Commit(changesFrom(doc1, func(md *MutableDocument) {
				must(md.InsertElement(RootRef(), At("tasks", 1), "Task", taskId("2"), nil))
			}), "bob")
			So(err, ShouldBeNil)

			mergeId, conflicts, err := h.Merge(branch, nil)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeTrue)
			So(h.commits[mergeId].Kind, ShouldEqual, RecordMerge)

			doc, _ := h.DocumentAtCommitId(h.HeadId())
			n1, _ := doc.GetNode(taskId("1"))
			So(n1.Data["title"], ShouldEqual, "from-local")
			_, ok := doc.GetNode(taskId("2"))
			So(ok, ShouldBeTrue)

			Convey("AlreadyMerged recognizes the folded commit", func() {
				So(h.AlreadyMerged(branch.HeadId()), ShouldBeTrue)
			})
		})
	})
}

func TestHistoryDeltaPushPull(t *testing.T) {
	Convey("Given a history with a delta generated since its root", t, func() {
		base := newTestDocument()
		h := NewHistory(base)
		root := h.HeadId()
		c1, err := h.Commit(changesFrom(base, func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), nil))
		}), "alice")
		So(err, ShouldBeNil)

		delta, err := h.GenerateHistoryDelta(root, c1)
		So(err, ShouldBeNil)
		So(len(delta.Commits), ShouldEqual, 1)

		Convey("MergeHistoryDelta against a fresh copy fast-forwards", func() {
			other := NewHistory(base)
			head, conflicts, err := other.MergeHistoryDelta(delta, "alice", nil)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeTrue)
			So(head, ShouldEqual, c1)
		})

		Convey("an empty delta is a no-op", func() {
			other := NewHistory(base)
			head, conflicts, err := other.MergeHistoryDelta(&HistoryDelta{}, "alice", nil)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeTrue)
			So(head, ShouldEqual, other.HeadId())
		})
	})
}
