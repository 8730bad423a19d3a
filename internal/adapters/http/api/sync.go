package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/types"
	"github.com/okian/talentsync/pkg/logger"
)

// SyncDependencies defines the interface for running a reconciliation.
type SyncDependencies interface {
	RunTalentSync(ctx context.Context, token string) (types.Summary, error)
}

// SyncHandler handles sync requests.
type SyncHandler struct {
	deps SyncDependencies
	log  logger.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(deps SyncDependencies) *SyncHandler {
	return &SyncHandler{deps: deps, log: logger.Get().Named("http")}
}

type syncResponse struct {
	Success   bool                     `json:"success"`
	Processed int                      `json:"processed"`
	Results   []types.Result           `json:"results"`
	Counts    map[types.ItemStatus]int `json:"counts"`
	Timestamp time.Time                `json:"timestamp"`
}

// HandleSync handles POST /functions/v1/sync-talent-submissions and its
// /api/v1/sync alias.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	const op = "api.sync"
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: "method_not_allowed", Error: "use POST"})
		return
	}

	token, _ := authz.BearerToken(r.Header.Get("Authorization"))
	summary, err := h.deps.RunTalentSync(r.Context(), token)
	if err != nil {
		err = Wrap(op, err)
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			h.log.Error(r.Context(), "sync request failed", logger.String("code", code), logger.Error(err))
		} else {
			h.log.Info(r.Context(), "sync request rejected", logger.String("code", code), logger.Error(err))
		}
		writeError(w, err)
		return
	}

	results := summary.Results
	if results == nil {
		results = []types.Result{}
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Success:   true,
		Processed: summary.Processed,
		Results:   results,
		Counts:    summary.Counts(),
		Timestamp: summary.Timestamp,
	})
}
