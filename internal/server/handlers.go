// Package server provides the HTTP server and routing for the trading race.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
	"github.com/agentrace/agentrace/internal/modules/agents"
	"github.com/agentrace/agentrace/internal/modules/equity"
	"github.com/agentrace/agentrace/internal/modules/ledger"
	"github.com/agentrace/agentrace/internal/orchestrator"
)

// Handler handles the race API requests
type Handler struct {
	agentRepo    *agents.Repository
	ledgerSvc    *ledger.Service
	equitySvc    *equity.Service
	orchestrator *orchestrator.Orchestrator
	instanceRepo *orchestrator.InstanceRepository
	log          zerolog.Logger
}

// NewHandler creates a new race API handler
func NewHandler(
	agentRepo *agents.Repository,
	ledgerSvc *ledger.Service,
	equitySvc *equity.Service,
	orch *orchestrator.Orchestrator,
	instanceRepo *orchestrator.InstanceRepository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		agentRepo:    agentRepo,
		ledgerSvc:    ledgerSvc,
		equitySvc:    equitySvc,
		orchestrator: orch,
		instanceRepo: instanceRepo,
		log:          log.With().Str("handler", "race").Logger(),
	}
}

// RegisterRoutes registers all race API routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/market-cycle", func(r chi.Router) {
		r.Post("/trigger", h.HandleTrigger)
		r.Get("/instances", h.HandleListInstances)
		r.Get("/instances/{id}", h.HandleGetInstance)
	})

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", h.HandleListAgents)
		r.Get("/{id}/portfolio", h.HandleGetPortfolio)
		r.Get("/{id}/equity-curve", h.HandleGetEquityCurve)
		r.Get("/{id}/performance", h.HandleGetPerformance)
	})

	r.Get("/leaderboard", h.HandleLeaderboard)
}

// HandleTrigger starts a manual market cycle and returns its instance id
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	instanceID, err := h.orchestrator.Trigger()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{"instance_id": instanceID})
}

// HandleListInstances returns recent orchestration instances
func (h *Handler) HandleListInstances(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	instances, err := h.instanceRepo.GetRecent(limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if instances == nil {
		instances = []domain.OrchestrationInstance{}
	}

	h.writeJSON(w, http.StatusOK, instances)
}

// HandleGetInstance returns one orchestration instance by id
func (h *Handler) HandleGetInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "id")

	instance, err := h.instanceRepo.Get(instanceID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if instance == nil {
		h.writeError(w, http.StatusNotFound, "instance not found")
		return
	}

	h.writeJSON(w, http.StatusOK, instance)
}

// HandleListAgents returns every registered agent
func (h *Handler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := h.agentRepo.GetAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []domain.Agent{}
	}

	h.writeJSON(w, http.StatusOK, list)
}

// HandleGetPortfolio returns the agent's current valued portfolio state
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	if _, err := h.agentRepo.GetByID(agentID); err != nil {
		h.writeAgentError(w, err)
		return
	}

	state, err := h.ledgerSvc.GetPortfolio(agentID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// HandleGetEquityCurve returns ordered snapshots with percent change.
// Optional unix-seconds query params: from, to.
func (h *Handler) HandleGetEquityCurve(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	if _, err := h.agentRepo.GetByID(agentID); err != nil {
		h.writeAgentError(w, err)
		return
	}

	from := int64(queryInt(r, "from", 0))
	to := int64(queryInt(r, "to", 0))

	curve, err := h.equitySvc.GetEquityCurve(agentID, from, to)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, curve)
}

// HandleGetPerformance returns the agent's performance metrics
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	if _, err := h.agentRepo.GetByID(agentID); err != nil {
		h.writeAgentError(w, err)
		return
	}

	metrics, err := h.equitySvc.CalculatePerformance(agentID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, metrics)
}

// HandleLeaderboard returns the race standings
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.equitySvc.Leaderboard()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if board == nil {
		board = []equity.LeaderboardEntry{}
	}

	h.writeJSON(w, http.StatusOK, board)
}

func (h *Handler) writeAgentError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrAgentNotFound) {
		h.writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, def int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
