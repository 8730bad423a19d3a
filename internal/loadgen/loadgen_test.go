package loadgen_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/talentsync/internal/adapters/http/api"
	service "github.com/okian/talentsync/internal/app"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/internal/loadgen"
	"github.com/okian/talentsync/internal/testsupport"
	"github.com/okian/talentsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerate(t *testing.T) {
	Convey("Given a fixed seed", t, func() {
		a := loadgen.Generate(200, 0.3, 42)
		b := loadgen.Generate(200, 0.3, 42)

		Convey("Then generation is deterministic apart from ids", func() {
			So(len(a), ShouldEqual, 200)
			for i := range a {
				So(a[i].Email, ShouldEqual, b[i].Email)
				So(a[i].FullName, ShouldEqual, b[i].FullName)
			}
		})

		Convey("Then some emails repeat under a different spelling", func() {
			unique := loadgen.UniqueEmails(a)
			So(unique, ShouldBeLessThan, 200)
			So(unique, ShouldBeGreaterThan, 100)
		})

		Convey("Then every submission is pending and ordered by creation", func() {
			for i, s := range a {
				So(s.SyncStatus, ShouldEqual, model.SyncPending)
				if i > 0 {
					So(s.CreatedAt.After(a[i-1].CreatedAt), ShouldBeTrue)
				}
			}
		})
	})

	Convey("Given a zero duplicate ratio", t, func() {
		subs := loadgen.Generate(50, 0, 7)
		So(loadgen.UniqueEmails(subs), ShouldEqual, 50)
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a store with one pending submission", t, func() {
		ctx := context.Background()
		store := testsupport.NewMemoryStore()
		sub := testsupport.MustInsertSubmission(t, store, testsupport.Submission(1, "lost@example.com"))

		Convey("When verifying", func() {
			rep, err := loadgen.Verify(ctx, store, []model.Submission{sub})

			Convey("Then the pending row and missing email are reported", func() {
				So(err, ShouldBeNil)
				So(rep.OK(), ShouldBeFalse)
				So(rep.Pending, ShouldEqual, 1)
				So(rep.Missing, ShouldResemble, []string{"lost@example.com"})
				So(rep.String(), ShouldContainSubstring, "pending=1")
			})
		})
	})
}

func TestRunAgainstService(t *testing.T) {
	Convey("Given a service served over HTTP", t, func() {
		ctx := context.Background()
		store := testsupport.NewMemoryStore()
		testsupport.GrantStandardRoles(t, store)
		svc := service.New(store,
			service.WithAuthenticator(testsupport.Authenticator()),
			service.WithLogger(logger.Nop()))
		mux := http.NewServeMux()
		api.NewServer(svc, svc, api.WithLogger(logger.Nop())).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		cfg := loadgen.Config{BaseURL: srv.URL, Token: testsupport.TokenEditor, Submissions: 60, DupRatio: 0.25, Workers: 3, Seed: 99}

		Convey("When a load run completes", func() {
			client := loadgen.NewClient(cfg.BaseURL, cfg.Token, 5*time.Second)
			stats, rep, err := loadgen.Run(ctx, cfg, store, client)

			Convey("Then every unique email was synced once", func() {
				So(err, ShouldBeNil)
				So(rep.OK(), ShouldBeTrue)
				So(stats.Inserted, ShouldEqual, 60)
				So(stats.Runs, ShouldEqual, 2)
				So(stats.Synced, ShouldEqual, stats.UniqueKeys)
				So(stats.Synced+stats.Existing, ShouldEqual, 60)
				So(stats.Errors, ShouldEqual, 0)

				items, err := client.ListApplications(ctx, 500, 0)
				So(err, ShouldBeNil)
				So(len(items), ShouldEqual, stats.UniqueKeys)
			})
		})

		Convey("When the token lacks the role", func() {
			client := loadgen.NewClient(srv.URL, testsupport.TokenViewer, 5*time.Second)
			_, err := client.Sync(ctx)

			Convey("Then the API error is decoded", func() {
				var apiErr *loadgen.APIError
				So(errors.As(err, &apiErr), ShouldBeTrue)
				So(apiErr.Status, ShouldEqual, http.StatusForbidden)
				So(apiErr.Code, ShouldEqual, "permission_denied")
			})
		})
	})
}
