package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/okian/rollcall/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

func openSQLite(t *testing.T, opts ...repository.SQLOption) *repository.SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rollcall.db")
	store, err := repository.OpenSQLite(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStore(t *testing.T) {
	Convey("Given a SQLite store with a seeded sheet", t, func() {
		ctx := context.Background()
		store := openSQLite(t, repository.WithSQLSheet("Form Responses 1", []string{"Timestamp", "Email"}))

		Convey("When reading the empty sheet", func() {
			rows, err := store.ReadRows(ctx, "Form Responses 1")

			Convey("Then there are no rows and no error", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
			})

			Convey("Then the header was stored", func() {
				header, err := store.Header(ctx, "Form Responses 1")
				So(err, ShouldBeNil)
				So(header, ShouldResemble, []string{"Timestamp", "Email"})
			})
		})

		Convey("When appending twice", func() {
			So(store.AppendRows(ctx, "Form Responses 1", [][]string{{"1/10/2024 18:00:00", "a@x"}}), ShouldBeNil)
			So(store.AppendRows(ctx, "Form Responses 1", [][]string{{"1/10/2024 18:05:00", "b@x"}, {"", ""}}), ShouldBeNil)

			Convey("Then rows keep storage order", func() {
				rows, err := store.ReadRows(ctx, "Form Responses 1")
				So(err, ShouldBeNil)
				So(rows, ShouldResemble, [][]string{
					{"1/10/2024 18:00:00", "a@x"},
					{"1/10/2024 18:05:00", "b@x"},
					{"", ""},
				})
			})
		})

		Convey("When replacing a sheet that does not exist yet", func() {
			err := store.ReplaceRows(ctx, "Points", [][]string{{"ab12", "Ada"}, {"cd34", "Cy"}})

			Convey("Then it is created with those rows", func() {
				So(err, ShouldBeNil)
				rows, err := store.ReadRows(ctx, "Points")
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
			})

			Convey("Then a second replace overwrites everything", func() {
				So(store.ReplaceRows(ctx, "Points", [][]string{{"ef56", "Ed"}}), ShouldBeNil)
				rows, _ := store.ReadRows(ctx, "Points")
				So(rows, ShouldResemble, [][]string{{"ef56", "Ed"}})
			})

			Convey("Then an empty replace clears it", func() {
				So(store.ReplaceRows(ctx, "Points", [][]string{}), ShouldBeNil)
				rows, _ := store.ReadRows(ctx, "Points")
				So(rows, ShouldBeEmpty)
			})
		})

		Convey("When reading a missing sheet", func() {
			_, err := store.ReadRows(ctx, "Events")

			Convey("Then ErrMissingSheet is returned", func() {
				So(errors.Is(err, repository.ErrMissingSheet), ShouldBeTrue)
			})
		})
	})
}
