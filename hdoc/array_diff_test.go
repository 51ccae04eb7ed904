package hdoc

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func strEq(a, b string) bool { return a == b }

func TestDiffArray(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
	}{
		{"no change", []string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{"pure append", []string{"a", "b"}, []string{"a", "b", "c"}},
		{"pure delete", []string{"a", "b", "c"}, []string{"a", "c"}},
		{"reorder", []string{"1", "2", "3"}, []string{"3", "1", "2"}},
		{"mixed add/move/delete", []string{"1", "2", "3"}, []string{"4", "3", "5", "2", "6"}},
		{"empty to full", []string{}, []string{"x", "y"}},
		{"full to empty", []string{"x", "y"}, []string{}},
	}

	Convey("Given pairs of string slices", t, func() {
		for _, c := range cases {
			c := c
			Convey("DiffArray("+c.name+") reconstructs b when applied to a", func() {
				result := DiffArray(c.a, c.b, strEq, strEq)
				got := ApplyArrayDiff(c.a, result.Changes)
				So(got, ShouldResemble, c.b)
			})
		}
	})

	Convey("Given an element whose identity is unchanged but data differs", t, func() {
		type item struct {
			id   string
			data string
		}
		a := []item{{"1", "x"}, {"2", "y"}}
		b := []item{{"1", "x2"}, {"2", "y"}}
		idEq := func(x, y item) bool { return x.id == y.id }
		dataEq := func(x, y item) bool { return x.data == y.data }

		Convey("It is reported as a touched Keep, not a Delete+Add", func() {
			result := DiffArray(a, b, idEq, dataEq)
			var kept, touched int
			for _, c := range result.Changes {
				if c.Kind == KeepElement {
					kept++
					if c.WasTouched {
						touched++
					}
				}
				So(c.Kind, ShouldNotEqual, DeleteElement)
				So(c.Kind, ShouldNotEqual, AddElement)
			}
			So(kept, ShouldEqual, 2)
			So(touched, ShouldEqual, 1)
		})
	})
}
