package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/cohort/internal/adapters/repository/storetest"
	"github.com/okian/cohort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "cohort.db"))
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		return s
	})
}

func TestStore_Reopen(t *testing.T) {
	Convey("Given a database file with data", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "cohort.db")
		s, err := Open(ctx, path)
		So(err, ShouldBeNil)
		So(s.PutAdmin(ctx, model.Admin{Email: "Ada@org.test", Name: "Ada"}), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("When it is opened again", func() {
			s, err := Open(ctx, path)
			So(err, ShouldBeNil)
			Reset(func() { _ = s.Close() })

			Convey("Then migrations are not replayed and data survives", func() {
				admins, err := s.ListAdmins(ctx)
				So(err, ShouldBeNil)
				So(admins, ShouldResemble, []model.Admin{{Email: "ada@org.test", Name: "Ada"}})

				var n int
				So(s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+migrationTable).Scan(&n), ShouldBeNil)
				entries, _ := migrations.FS.ReadDir(".")
				So(n, ShouldEqual, len(entries)-1) // embed.go is not a migration
			})
		})
	})

	Convey("Given an empty path", t, func() {
		_, err := Open(context.Background(), " ")
		So(err, ShouldNotBeNil)
	})
}

func TestUpSection(t *testing.T) {
	Convey("Given a migration with both sections", t, func() {
		content := "-- +migrate Up\nCREATE TABLE a (x INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
		So(upSection(content), ShouldEqual, "\nCREATE TABLE a (x INTEGER);\n")
	})

	Convey("Given a migration without markers", t, func() {
		So(upSection("SELECT 1;"), ShouldEqual, "SELECT 1;")
	})

	Convey("Given a custom migration set", t, func() {
		ctx := context.Background()
		s, err := Open(ctx, filepath.Join(t.TempDir(), "cohort.db"))
		So(err, ShouldBeNil)
		Reset(func() { _ = s.Close() })

		extra := fstest.MapFS{
			"9999_extra.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE extra (id INTEGER);\n-- +migrate Down\nDROP TABLE extra;\n")},
		}
		So(applyMigrations(ctx, s.db, extra), ShouldBeNil)
		So(applyMigrations(ctx, s.db, extra), ShouldBeNil)

		var name string
		So(s.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='extra'").Scan(&name), ShouldBeNil)
		So(name, ShouldEqual, "extra")
	})
}
