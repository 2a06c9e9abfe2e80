package model_test

import (
	"testing"

	"github.com/okian/rollcall/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNetID(t *testing.T) {
	Convey("Given email addresses", t, func() {
		Convey("When the address has a domain", func() {
			Convey("Then the local part is the netID", func() {
				So(model.NetID("abc123@example.edu"), ShouldEqual, "abc123")
				So(model.Submission{Email: " xyz9@school.edu "}.NetID(), ShouldEqual, "xyz9")
			})
		})

		Convey("When the address has several '@'", func() {
			Convey("Then only the first one splits", func() {
				So(model.NetID("a@b@c"), ShouldEqual, "a")
			})
		})

		Convey("When the address has no '@'", func() {
			Convey("Then the whole value is used", func() {
				So(model.NetID("justanetid"), ShouldEqual, "justanetid")
				So(model.NetID(""), ShouldEqual, "")
			})
		})

		Convey("When the address starts with '@'", func() {
			Convey("Then the netID is empty", func() {
				So(model.NetID("@example.edu"), ShouldEqual, "")
			})
		})
	})
}

func TestMemberDisplayName(t *testing.T) {
	Convey("Given members", t, func() {
		m := model.Member{NetID: "ab1", FirstName: "Ada", LastName: "Byron"}

		Convey("Then a public member shows the full name", func() {
			So(m.DisplayName(), ShouldEqual, "Ada Byron")
		})

		Convey("Then an anonymous member hides it", func() {
			m.Anonymous = true
			So(m.DisplayName(), ShouldEqual, "Anonymous")
		})

		Convey("Then a missing last name does not leave a trailing space", func() {
			m.LastName = ""
			So(m.DisplayName(), ShouldEqual, "Ada")
		})
	})
}
