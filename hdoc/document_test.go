package hdoc

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewNormalizedDocument(t *testing.T) {
	Convey("Given a freshly created document", t, func() {
		doc := newTestDocument()

		Convey("It has exactly a root node", func() {
			So(doc.Len(), ShouldEqual, 1)
			root, ok := doc.GetNode(doc.RootId())
			So(ok, ShouldBeTrue)
			So(root.Data["title"], ShouldEqual, "root")
		})

		Convey("The root type must match the schema's declared root type", func() {
			_, err := NewNormalizedDocument(doc.schema, NodeId{Type: "Task", ID: "x"}, nil)
			So(err, ShouldNotBeNil)
			So(ErrorTypeOf(err), ShouldEqual, ConstraintError)
		})

		Convey("It validates I1-I7 with no violations", func() {
			So(doc.ValidateInvariants(), ShouldBeNil)
		})
	})
}

func TestPathResolution(t *testing.T) {
	Convey("Given a document with one task under tasks[0]", t, func() {
		doc := newTestDocument()
		md := NewMutableDocument(doc)
		_, err := md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), map[string]interface{}{"title": "first"})
		So(err, ShouldBeNil)
		updated := md.UpdatedDocument()

		Convey("PathOf and ResolvePath round-trip", func() {
			p, err := updated.PathOf(taskId("1"))
			So(err, ShouldBeNil)
			So(len(p), ShouldEqual, 1)
			So(p.String(), ShouldEqual, "$.tasks[0]")

			resolved, err := updated.ResolvePath(p)
			So(err, ShouldBeNil)
			So(EqualIds(resolved, taskId("1")), ShouldBeTrue)
		})

		Convey("Resolving an out-of-range index is a RangeError", func() {
			_, err := updated.ResolvePath(Path{byIndex("tasks", 5)})
			So(err, ShouldNotBeNil)
			So(ErrorTypeOf(err), ShouldEqual, RangeError)
		})

		Convey("Resolving the wrong kind of path element is a ShapeError", func() {
			_, err := updated.ResolvePath(Path{byField("tasks")})
			So(err, ShouldNotBeNil)
			So(ErrorTypeOf(err), ShouldEqual, ShapeError)
		})

		Convey("ParsePath parses the same string Path.String renders", func() {
			p, err := updated.PathOf(taskId("1"))
			So(err, ShouldBeNil)

			parsed, err := ParsePath(updated, p.String())
			So(err, ShouldBeNil)
			So(parsed, ShouldResemble, p)

			resolved, err := updated.ResolvePath(parsed)
			So(err, ShouldBeNil)
			So(EqualIds(resolved, taskId("1")), ShouldBeTrue)
		})
	})
}

func TestReIdSubtree(t *testing.T) {
	Convey("Given a document with a task referenced by its parent", t, func() {
		doc := newTestDocument()
		md := NewMutableDocument(doc)
		_, err := md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), nil)
		So(err, ShouldBeNil)
		updated := md.UpdatedDocument()

		Convey("ReIdSubtree renames it and fixes the parent's back-reference", func() {
			renamed, err := updated.ReIdSubtree(taskId("1"), taskId("1-new"))
			So(err, ShouldBeNil)
			_, ok := renamed.GetNode(taskId("1"))
			So(ok, ShouldBeFalse)
			n, ok := renamed.GetNode(taskId("1-new"))
			So(ok, ShouldBeTrue)
			So(n.Parent.Parent, ShouldResemble, renamed.RootId())

			root := renamed.RootNode()
			So(EqualIds(root.Children["tasks"].Array[0], taskId("1-new")), ShouldBeTrue)
			So(renamed.ValidateInvariants(), ShouldBeNil)
		})

		Convey("ReIdSubtree rejects a target id that already exists", func() {
			_, err := updated.ReIdSubtree(taskId("1"), doc.RootId())
			So(err, ShouldNotBeNil)
			So(ErrorTypeOf(err), ShouldEqual, UniquenessError)
		})
	})
}
