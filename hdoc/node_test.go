package hdoc

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNodeLink(t *testing.T) {
	Convey("Given a Set link with two members", t, func() {
		link := NewSetLink()
		p1, p2 := personId("1"), personId("2")
		So(link.addSetMember(p1), ShouldBeTrue)
		So(link.addSetMember(p2), ShouldBeTrue)

		Convey("Adding the same member again is a no-op", func() {
			So(link.addSetMember(p1), ShouldBeFalse)
			So(len(link.SetMembers()), ShouldEqual, 2)
		})

		Convey("HasSetMember reports membership", func() {
			So(link.HasSetMember(p1), ShouldBeTrue)
			So(link.HasSetMember(personId("3")), ShouldBeFalse)
		})

		Convey("Removing a member drops it from iteration order", func() {
			So(link.removeSetMember(p1), ShouldBeTrue)
			members := link.SetMembers()
			So(len(members), ShouldEqual, 1)
			So(EqualIds(members[0], p2), ShouldBeTrue)
		})

		Convey("Clone is independent of the original", func() {
			clone := link.Clone()
			clone.addSetMember(personId("3"))
			So(len(link.SetMembers()), ShouldEqual, 2)
			So(len(clone.SetMembers()), ShouldEqual, 3)
		})
	})

	Convey("Given a Node with an Array child link", t, func() {
		n := &Node{
			Id:       taskId("1"),
			Data:     map[string]interface{}{"title": "t"},
			Children: map[string]*NodeLink{"subtasks": NewArrayLink()},
		}
		n.Children["subtasks"].Array = []NodeId{taskId("2"), taskId("3")}

		Convey("Clone deep-copies Data and Children", func() {
			clone := n.Clone()
			clone.Data["title"] = "changed"
			clone.Children["subtasks"].Array[0] = taskId("9")

			So(n.Data["title"], ShouldEqual, "t")
			So(EqualIds(n.Children["subtasks"].Array[0], taskId("2")), ShouldBeTrue)
		})
	})
}
