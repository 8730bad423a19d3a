package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/logger"
)

// TalentDependencies defines the directory read operations.
type TalentDependencies interface {
	ListApplications(ctx context.Context, token string, filter model.ApplicationFilter) ([]model.TalentApplication, error)
	GetApplication(ctx context.Context, token, id string) (model.TalentApplication, error)
}

// TalentHandler handles directory reads.
type TalentHandler struct {
	deps TalentDependencies
	log  logger.Logger
}

// NewTalentHandler creates a new directory handler.
func NewTalentHandler(deps TalentDependencies) *TalentHandler {
	return &TalentHandler{deps: deps, log: logger.Get().Named("http")}
}

type listResponse struct {
	Items  []model.TalentApplication `json:"items"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

// HandleList handles GET /api/v1/talent-applications?limit=&offset=&status=.
func (h *TalentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_applications"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	token, _ := authz.BearerToken(r.Header.Get("Authorization"))
	items, err := h.deps.ListApplications(r.Context(), token, filter)
	if err != nil {
		h.logFailure(r, op, err)
		writeError(w, Wrap(op, err))
		return
	}
	if items == nil {
		items = []model.TalentApplication{}
	}
	filter = filter.Normalize()
	writeJSON(w, http.StatusOK, listResponse{Items: items, Limit: filter.Limit, Offset: filter.Offset})
}

// HandleGet handles GET /api/v1/talent-applications/{id}.
func (h *TalentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_application"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, PathApplications+"/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	token, _ := authz.BearerToken(r.Header.Get("Authorization"))
	app, err := h.deps.GetApplication(r.Context(), token, id)
	if err != nil {
		h.logFailure(r, op, err)
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *TalentHandler) logFailure(r *http.Request, op string, err error) {
	if status, _ := classify(err); status >= http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
	}
}

func parseFilter(r *http.Request) (model.ApplicationFilter, error) {
	q := r.URL.Query()
	var f model.ApplicationFilter
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid offset %q", v)
		}
		f.Offset = n
	}
	if v := q.Get("status"); v != "" {
		f.Status = model.ApplicationStatus(v)
		if !f.Status.Valid() {
			return f, fmt.Errorf("unknown status %q", v)
		}
	}
	return f, nil
}
