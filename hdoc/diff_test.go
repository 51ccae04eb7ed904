package hdoc

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func buildDoc(ops func(md *MutableDocument)) *NormalizedDocument {
	md := NewMutableDocument(newTestDocument())
	ops(md)
	return md.UpdatedDocument()
}

func TestDiffAndApply(t *testing.T) {
	Convey("Given a base document and a modified copy", t, func() {
		base := buildDoc(func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), map[string]interface{}{"title": "a"}))
			must(md.InsertElement(RootRef(), At("tasks", 1), "Task", taskId("2"), map[string]interface{}{"title": "b"}))
		})

		Convey("When a field is changed, a node is added, and one is deleted", func() {
			next := buildFrom(base, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "a2"}))
				must(md.InsertElement(RootRef(), At("tasks", 1), "Task", taskId("3"), map[string]interface{}{"title": "c"}))
				noerr(md.DeleteElement(ByID(taskId("2"))))
			})

			changes, err := Diff(base, next)
			So(err, ShouldBeNil)
			So(len(changes), ShouldBeGreaterThan, 0)

			Convey("Replaying the diff onto base reproduces next", func() {
				md := NewMutableDocument(base)
				err := md.ApplyChanges(changes)
				So(err, ShouldBeNil)
				replayed := md.UpdatedDocument()

				So(replayed.Len(), ShouldEqual, next.Len())
				n1, _ := replayed.GetNode(taskId("1"))
				So(n1.Data["title"], ShouldEqual, "a2")
				_, ok := replayed.GetNode(taskId("2"))
				So(ok, ShouldBeFalse)
				n3, ok := replayed.GetNode(taskId("3"))
				So(ok, ShouldBeTrue)
				So(n3.Data["title"], ShouldEqual, "c")
				So(replayed.ValidateInvariants(), ShouldBeNil)
			})
		})

		Convey("When a node is moved to a different parent", func() {
			base2 := buildFrom(base, func(md *MutableDocument) {
				must(md.InsertElement(ByID(taskId("1")), At("subtasks", 0), "Task", taskId("1a"), nil))
			})
			next := buildFrom(base2, func(md *MutableDocument) {
				noerr(md.MoveElement(ByID(taskId("1a")), ByID(taskId("2")), At("subtasks", 0)))
			})

			changes, err := Diff(base2, next)
			So(err, ShouldBeNil)

			var sawMove bool
			for _, c := range changes {
				if c.Op == OpMove && EqualIds(c.NodeId, taskId("1a")) {
					sawMove = true
				}
			}
			So(sawMove, ShouldBeTrue)

			md := NewMutableDocument(base2)
			So(md.ApplyChanges(changes), ShouldBeNil)
			replayed := md.UpdatedDocument()
			t2, _ := replayed.GetNode(taskId("2"))
			So(len(t2.Children["subtasks"].Array), ShouldEqual, 1)
		})

		Convey("Diffing a document against itself yields no changes", func() {
			changes, err := Diff(base, base)
			So(err, ShouldBeNil)
			So(len(changes), ShouldEqual, 0)
		})
	})
}

func buildFrom(doc *NormalizedDocument, ops func(md *MutableDocument)) *NormalizedDocument {
	md := NewMutableDocument(doc)
	ops(md)
	return md.UpdatedDocument()
}

func must(id NodeId, err error) {
	if err != nil {
		panic(err)
	}
}

func noerr(err error) {
	if err != nil {
		panic(err)
	}
}
