// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/internal/domain/types"
	"github.com/okian/talentsync/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// RunTalentSync authorizes token and runs one reconciliation.
	RunTalentSync(ctx context.Context, token string) (types.Summary, error)

	// Read operations expose the talent directory.
	ListApplications(ctx context.Context, token string, filter model.ApplicationFilter) ([]model.TalentApplication, error)
	GetApplication(ctx context.Context, token, id string) (model.TalentApplication, error)
}

// Route paths.
const (
	PathSyncFunction = "/functions/v1/sync-talent-submissions"
	PathSync         = "/api/v1/sync"
	PathApplications = "/api/v1/talent-applications"
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	syncHandler   *SyncHandler
	talentHandler *TalentHandler
	log           logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		syncHandler:   NewSyncHandler(deps),
		talentHandler: NewTalentHandler(deps),
		log:           logger.Get().Named("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.syncHandler.log = s.log
	s.talentHandler.log = s.log
	return s
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	wrap := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return RecoveryMiddleware(CORSMiddleware(MetricsMiddleware(h, endpoint)), s.log)
	}

	mux.HandleFunc("/healthz", wrap(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", wrap(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc(PathSyncFunction, wrap(s.syncHandler.HandleSync, "sync_function"))
	mux.HandleFunc(PathSync, wrap(s.syncHandler.HandleSync, "sync"))
	mux.HandleFunc(PathApplications, wrap(s.talentHandler.HandleList, "talent_applications"))
	mux.HandleFunc(PathApplications+"/", wrap(s.talentHandler.HandleGet, "talent_application"))
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, errorResponse{Success: false, Code: code, Error: publicMessage(status, err)})
}
