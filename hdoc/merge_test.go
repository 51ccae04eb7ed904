package hdoc

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestThreeWayMergeCleanCases(t *testing.T) {
	Convey("Given a common ancestor with one task", t, func() {
		base := buildDoc(func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), map[string]interface{}{"title": "a", "done": false}))
		})

		Convey("When only local changes a field", func() {
			local := buildFrom(base, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"done": true}))
			})
			remote := base

			merged, conflicts, err := ThreeWayMerge(base, local, remote, nil)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeTrue)
			n, _ := merged.GetNode(taskId("1"))
			So(n.Data["done"], ShouldEqual, true)
		})

		Convey("When both sides insert disjoint nodes", func() {
			local := buildFrom(base, func(md *MutableDocument) {
				must(md.InsertElement(RootRef(), At("tasks", 1), "Task", taskId("2"), map[string]interface{}{"title": "b"}))
			})
			remote := buildFrom(base, func(md *MutableDocument) {
				must(md.InsertElement(RootRef(), At("tasks", 1), "Task", taskId("3"), map[string]interface{}{"title": "c"}))
			})

			merged, conflicts, err := ThreeWayMerge(base, local, remote, nil)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeTrue)
			_, ok2 := merged.GetNode(taskId("2"))
			_, ok3 := merged.GetNode(taskId("3"))
			So(ok2, ShouldBeTrue)
			So(ok3, ShouldBeTrue)
			So(merged.ValidateInvariants(), ShouldBeNil)
		})

		Convey("When both sides change the same field to the same value", func() {
			local := buildFrom(base, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "same"}))
			})
			remote := buildFrom(base, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "same"}))
			})

			merged, conflicts, err := ThreeWayMerge(base, local, remote, nil)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeTrue)
			n, _ := merged.GetNode(taskId("1"))
			So(n.Data["title"], ShouldEqual, "same")
		})
	})
}

func TestThreeWayMergeConflicts(t *testing.T) {
	Convey("Given a common ancestor with one task", t, func() {
		base := buildDoc(func(md *MutableDocument) {
			must(md.InsertElement(RootRef(), At("tasks", 0), "Task", taskId("1"), map[string]interface{}{"title": "a"}))
		})

		Convey("When both sides change the same field to different values", func() {
			local := buildFrom(base, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "local-title"}))
			})
			remote := buildFrom(base, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "remote-title"}))
			})

			merged, conflicts, err := ThreeWayMerge(base, local, remote, nil)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeFalse)

			ec := conflicts[taskId("1").CanonicalId()]
			So(ec, ShouldNotBeNil)
			So(len(ec.Values), ShouldEqual, 1)
			So(ec.Values[0].Field, ShouldEqual, "title")

			Convey("Default string merge keeps the lexicographically smaller differing text", func() {
				n, _ := merged.GetNode(taskId("1"))
				So(n.Data["title"], ShouldEqual, "local-title")
			})
		})

		Convey("A caller-supplied MergeValue override can reconcile it instead", func() {
			local := buildFrom(base, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "local-title"}))
			})
			remote := buildFrom(base, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "remote-title"}))
			})

			overrides := &MergeOverrides{
				MergeValue: func(id NodeId, field string, base, local, remote interface{}) (interface{}, bool) {
					if field == "title" {
						return local.(string) + "/" + remote.(string), true
					}
					return nil, false
				},
			}
			merged, conflicts, err := ThreeWayMerge(base, local, remote, overrides)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeTrue)
			n, _ := merged.GetNode(taskId("1"))
			So(n.Data["title"], ShouldEqual, "local-title/remote-title")
		})

		Convey("When one side deletes and the other edits the same node, the edit wins", func() {
			local := buildFrom(base, func(md *MutableDocument) {
				noerr(md.DeleteElement(ByID(taskId("1"))))
			})
			remote := buildFrom(base, func(md *MutableDocument) {
				noerr(md.ChangeElement(ByID(taskId("1")), map[string]interface{}{"title": "edited"}))
			})

			merged, conflicts, err := ThreeWayMerge(base, local, remote, nil)
			So(err, ShouldBeNil)
			So(conflicts.IsEmpty(), ShouldBeFalse)

			n, ok := merged.GetNode(taskId("1"))
			So(ok, ShouldBeTrue)
			So(n.Data["title"], ShouldEqual, "edited")

			ec := conflicts[taskId("1").CanonicalId()]
			So(ec, ShouldNotBeNil)
			So(ec.Position, ShouldNotBeNil)
			So(ec.Position.LocalDeleted, ShouldBeTrue)
		})
	})
}
