package hdoc

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMarshalUnmarshalDocument(t *testing.T) {
	Convey("Given a document with nested structure and a Set link", t, func() {
		doc := buildDoc(func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), map[string]interface{}{"title": "a"}))
			must(md.InsertElement(ByID(docId()), End("owner"), "Person", personId("alice"), map[string]interface{}{"name": "Alice"}))
			must(md.InsertElement(ByID(taskId("1")), At("subtasks", 0), "Task", taskId("1a"), nil))
		})
		md := NewMutableDocument(doc)
		noerr(md.MoveElement(ByID(personId("alice")), ByID(taskId("1")), Position{Field: "watchers"}))
		doc = md.UpdatedDocument()

		Convey("Marshaling then unmarshaling reproduces an equivalent document", func() {
			data, err := MarshalDocument(doc)
			So(err, ShouldBeNil)
			So(len(data), ShouldBeGreaterThan, 0)

			back, err := UnmarshalDocument(doc.schema, data)
			So(err, ShouldBeNil)
			So(back.Len(), ShouldEqual, doc.Len())

			n, ok := back.GetNode(taskId("1"))
			So(ok, ShouldBeTrue)
			So(n.Data["title"], ShouldEqual, "a")
			So(back.ValidateInvariants(), ShouldBeNil)
		})
	})
}
