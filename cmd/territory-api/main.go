// Command territory-api is a thin read/write HTTP surface over the core
// (SPEC_FULL.md "cmd/territory-api (NEW)"): it only translates HTTP to the
// Go API documented in §6 — run a build, file/decide a reassignment, read
// cross-build conflicts. It has no routes for approval stamps. It carries no
// assignment rules of its own.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/internal/observability/logging"
	"github.com/jordigilh/territory-assignment-core/internal/observability/metrics"
	"github.com/jordigilh/territory-assignment-core/pkg/engine"
	"github.com/jordigilh/territory-assignment-core/pkg/lock"
	"github.com/jordigilh/territory-assignment-core/pkg/notifier"
	"github.com/jordigilh/territory-assignment-core/pkg/store"
	"github.com/jordigilh/territory-assignment-core/pkg/workflow"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the per-build configuration document")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Exit(exitWithErr(err))
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		os.Exit(exitWithErr(err))
	}

	s, err := store.Open(cfg.Store)
	if err != nil {
		log.Error(err, "open store")
		os.Exit(1)
	}
	defer s.Close()

	buildLock := localOrRedisLock(cfg)
	reg := metrics.New(prometheus.DefaultRegisterer)
	eng := engine.New(s, buildLock, reg, log)
	wf := workflow.NewService(s, notifier.NewSlack(cfg.Notifier))

	srv := &server{cfg: cfg, engine: eng, workflow: wf, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Post("/builds/{buildID}/run", srv.handleRun)
	r.Post("/reassignments", srv.handleFileReassignment)
	r.Post("/reassignments/{id}/decide", srv.handleDecide)
	r.Get("/accounts/{accountID}/cross-build-conflicts", srv.handleCrossBuildConflicts)

	log.Info("listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Error(err, "server exited")
		os.Exit(1)
	}
}

type server struct {
	cfg      *config.Config
	engine   *engine.Engine
	workflow *workflow.Service
	log      interface {
		Error(err error, msg string, kv ...any)
	}
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")
	result, err := s.engine.Run(r.Context(), buildID, s.cfg, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type fileReassignmentRequest struct {
	AccountID          string `json:"account_id"`
	BuildID            string `json:"build_id"`
	ProposedOwner      string `json:"proposed_owner"`
	ProposedOwnerName  string `json:"proposed_owner_name"`
	Rationale          string `json:"rationale"`
	ProposerUserID     string `json:"proposer_user_id"`
	ProposerName       string `json:"proposer_name"`
	ProposerRole       string `json:"proposer_role"`
	SLMAlreadyAccepted bool   `json:"slm_already_accepted"`
}

func (s *server) handleFileReassignment(w http.ResponseWriter, r *http.Request) {
	var req fileReassignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "malformed request body"))
		return
	}

	proposer := workflow.Actor{UserID: req.ProposerUserID, Name: req.ProposerName, Role: workflow.ApproverRole(req.ProposerRole)}
	reassignment := &workflow.Reassignment{
		AccountID:         req.AccountID,
		BuildID:           req.BuildID,
		ProposedOwner:     req.ProposedOwner,
		ProposedOwnerName: req.ProposedOwnerName,
		Rationale:         req.Rationale,
	}

	id, err := s.workflow.FileReassignment(r.Context(), reassignment, proposer, req.SLMAlreadyAccepted)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type decideRequest struct {
	ActorUserID string `json:"actor_user_id"`
	ActorName   string `json:"actor_name"`
	ActorRole   string `json:"actor_role"`
	Approve     bool   `json:"approve"`
	Rationale   string `json:"rationale"`
}

func (s *server) handleDecide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "malformed request body"))
		return
	}

	actor := workflow.Actor{UserID: req.ActorUserID, Name: req.ActorName, Role: workflow.ApproverRole(req.ActorRole)}
	reassignment := &workflow.Reassignment{ID: id}
	if err := s.workflow.Decide(r.Context(), reassignment, actor, req.Approve, req.Rationale); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(reassignment.ApprovalStatus)})
}

func (s *server) handleCrossBuildConflicts(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	buildID := r.URL.Query().Get("build_id")
	conflicts, err := s.workflow.CrossBuildConflicts(r.Context(), []string{accountID}, buildID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflicts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	s.log.Error(err, "request failed")
	writeJSON(w, apperrors.HTTPStatus(err), map[string]string{"error": err.Error()})
}

func localOrRedisLock(cfg *config.Config) lock.BuildLock {
	if cfg.Lock.RedisAddr == "" {
		return lock.NewLocalBuildLock()
	}
	ttl, err := time.ParseDuration(cfg.Lock.LeaseTTL)
	if err != nil {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	return lock.NewRedisBuildLock(client, ttl)
}

func exitWithErr(err error) int {
	os.Stderr.WriteString(err.Error() + "\n")
	return 1
}
