package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/talentsync/internal/adapters/http/api"
	service "github.com/okian/talentsync/internal/app"
	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/internal/domain/reconcile"
	"github.com/okian/talentsync/internal/domain/types"
	"github.com/okian/talentsync/internal/testsupport"
	"github.com/okian/talentsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	summary   types.Summary
	err       error
	gotToken  string
	gotFilter model.ApplicationFilter
	apps      []model.TalentApplication
	panicOn   bool
}

func (m *mockDeps) RunTalentSync(_ context.Context, token string) (types.Summary, error) {
	m.gotToken = token
	if m.panicOn {
		panic("boom")
	}
	return m.summary, m.err
}

func (m *mockDeps) ListApplications(_ context.Context, token string, f model.ApplicationFilter) ([]model.TalentApplication, error) {
	m.gotToken = token
	m.gotFilter = f
	return m.apps, m.err
}

func (m *mockDeps) GetApplication(_ context.Context, token, id string) (model.TalentApplication, error) {
	m.gotToken = token
	if m.err != nil {
		return model.TalentApplication{}, m.err
	}
	for _, a := range m.apps {
		if a.ID == id {
			return a, nil
		}
	}
	return model.TalentApplication{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "runs": 3}
}

func newMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, api.WithLogger(logger.Nop())).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body
}

func TestSyncEndpoint(t *testing.T) {
	Convey("Given the sync endpoints over mock dependencies", t, func() {
		deps := &mockDeps{summary: types.Summary{
			Processed: 2,
			Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			Results: []types.Result{
				{SubmissionID: "s1", Email: "a@example.com", Status: types.StatusSynced, TalentApplicationID: "t1"},
				{SubmissionID: "s2", Email: "b@example.com", Status: types.StatusAlreadyExists, TalentApplicationID: "t0"},
			},
		}}
		mux := newMux(deps)

		Convey("When the function is invoked with a bearer token", func() {
			w := do(mux, http.MethodPost, api.PathSyncFunction, "abc")

			Convey("Then the summary is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotToken, ShouldEqual, "abc")
				body := decode(w)
				So(body["success"], ShouldEqual, true)
				So(body["processed"], ShouldEqual, float64(2))
				So(body["timestamp"], ShouldEqual, "2024-06-01T12:00:00Z")
				results := body["results"].([]any)
				So(len(results), ShouldEqual, 2)
				first := results[0].(map[string]any)
				So(first["id"], ShouldEqual, "s1")
				So(first["status"], ShouldEqual, "synced")
				counts := body["counts"].(map[string]any)
				So(counts["already_exists"], ShouldEqual, float64(1))
				So(counts["error"], ShouldEqual, float64(0))
			})
		})

		Convey("When the alias route is used", func() {
			w := do(mux, http.MethodPost, api.PathSync, "abc")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When nothing is pending", func() {
			deps.summary = types.Summary{}
			w := do(mux, http.MethodPost, api.PathSync, "abc")

			Convey("Then results is an empty array", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.Contains(w.Body.String(), `"results":[]`), ShouldBeTrue)
			})
		})

		Convey("When the wrong method is used", func() {
			w := do(mux, http.MethodGet, api.PathSync, "abc")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When a browser sends a preflight", func() {
			w := do(mux, http.MethodOptions, api.PathSyncFunction, "")

			Convey("Then CORS headers are returned without running the sync", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
				So(deps.gotToken, ShouldBeEmpty)
			})
		})

		cases := []struct {
			err    error
			status int
			code   string
		}{
			{authz.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
			{fmt.Errorf("%w: viewer", authz.ErrPermissionDenied), http.StatusForbidden, "permission_denied"},
			{fmt.Errorf("%w: db down", authz.ErrPermissionCheckFailed), http.StatusInternalServerError, "permission_check_failed"},
			{reconcile.ErrSyncInProgress, http.StatusConflict, "sync_in_progress"},
			{fmt.Errorf("%w: connection reset", reconcile.ErrListPending), http.StatusInternalServerError, "internal_error"},
		}
		for _, tc := range cases {
			tc := tc
			Convey(fmt.Sprintf("When the service fails with %v", tc.err), func() {
				deps.err = tc.err
				w := do(mux, http.MethodPost, api.PathSyncFunction, "abc")

				Convey("Then the error maps to a structured response", func() {
					So(w.Code, ShouldEqual, tc.status)
					body := decode(w)
					So(body["success"], ShouldEqual, false)
					So(body["code"], ShouldEqual, tc.code)
					So(body["error"], ShouldNotBeEmpty)
					So(body["error"], ShouldNotContainSubstring, "connection reset")
				})
			})
		}

		Convey("When the handler panics", func() {
			deps.panicOn = true
			w := do(mux, http.MethodPost, api.PathSync, "abc")

			Convey("Then a 500 is returned instead of crashing", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["code"], ShouldEqual, "internal_error")
			})
		})
	})
}

func TestTalentEndpoints(t *testing.T) {
	Convey("Given the directory endpoints over mock dependencies", t, func() {
		deps := &mockDeps{apps: []model.TalentApplication{
			{ID: "t1", Email: "a@example.com", FullName: "A", Status: model.ApplicationPending},
		}}
		mux := newMux(deps)

		Convey("When listing with paging and status", func() {
			w := do(mux, http.MethodGet, api.PathApplications+"?limit=10&offset=5&status=pending", "tok")

			Convey("Then the filter is passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotFilter, ShouldResemble, model.ApplicationFilter{Status: model.ApplicationPending, Limit: 10, Offset: 5})
				body := decode(w)
				So(len(body["items"].([]any)), ShouldEqual, 1)
				So(body["limit"], ShouldEqual, float64(10))
			})
		})

		Convey("When listing with a bad limit", func() {
			w := do(mux, http.MethodGet, api.PathApplications+"?limit=lots", "tok")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "bad_request")
		})

		Convey("When listing with an unknown status", func() {
			w := do(mux, http.MethodGet, api.PathApplications+"?status=archived", "tok")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When fetching a known id", func() {
			w := do(mux, http.MethodGet, api.PathApplications+"/t1", "tok")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["email"], ShouldEqual, "a@example.com")
		})

		Convey("When fetching an unknown id", func() {
			w := do(mux, http.MethodGet, api.PathApplications+"/nope", "tok")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When fetching a nested path", func() {
			w := do(mux, http.MethodGet, api.PathApplications+"/a/b", "tok")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the caller is not allowed", func() {
			deps.err = authz.ErrPermissionDenied
			w := do(mux, http.MethodGet, api.PathApplications, "tok")
			So(w.Code, ShouldEqual, http.StatusForbidden)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the operational endpoints", t, func() {
		mux := newMux(&mockDeps{})

		Convey("When stats are requested", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["runs"], ShouldEqual, float64(3))
		})

		Convey("When health is requested", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "talentsync_")
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	Convey("Given op-tagged errors", t, func() {
		cause := errors.New("disk full")

		Convey("Then kinds and causes are both visible", func() {
			err := api.WrapKind("api.test", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.test: bad request: disk full")
			So(api.NewKind("api.test", api.ErrInternal).Error(), ShouldEqual, "api.test: internal error")
			So(api.Wrap("api.test", nil), ShouldBeNil)
		})
	})
}

func TestSyncEndToEnd(t *testing.T) {
	Convey("Given the real service over a memory store", t, func() {
		store := testsupport.NewMemoryStore()
		testsupport.GrantStandardRoles(t, store)
		testsupport.MustInsertApplication(t, store, "known@example.com")
		testsupport.MustInsertSubmission(t, store, testsupport.Submission(1, "new@example.com"))
		testsupport.MustInsertSubmission(t, store, testsupport.Submission(2, "known@example.com"))
		svc := service.New(store,
			service.WithAuthenticator(testsupport.Authenticator()),
			service.WithLogger(logger.Nop()))
		mux := http.NewServeMux()
		api.NewServer(svc, svc, api.WithLogger(logger.Nop())).Register(context.Background(), mux)

		Convey("When an editor triggers the function", func() {
			w := do(mux, http.MethodPost, api.PathSyncFunction, testsupport.TokenEditor)

			Convey("Then one is synced and one already existed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				counts := decode(w)["counts"].(map[string]any)
				So(counts["synced"], ShouldEqual, float64(1))
				So(counts["already_exists"], ShouldEqual, float64(1))
			})

			Convey("Then a viewer can read the new directory entry", func() {
				w := do(mux, http.MethodGet, api.PathApplications, testsupport.TokenViewer)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(decode(w)["items"].([]any)), ShouldEqual, 2)
			})
		})

		Convey("When a viewer triggers the function", func() {
			w := do(mux, http.MethodPost, api.PathSyncFunction, testsupport.TokenViewer)

			Convey("Then it is forbidden and nothing moves", func() {
				So(w.Code, ShouldEqual, http.StatusForbidden)
				pending, _ := store.ListPendingSubmissions(context.Background())
				So(len(pending), ShouldEqual, 2)
			})
		})

		Convey("When no token is sent", func() {
			w := do(mux, http.MethodPost, api.PathSyncFunction, "")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}
