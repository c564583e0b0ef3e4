// Package handler exposes the eligibility rolls and criteria administration
// over HTTP. Roll views and criteria changes are commission operations.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/eligibility"
	"sabha/internal/platform/middleware"
	"sabha/internal/transport/http/shared"
	dErrors "sabha/pkg/domain-errors"
)

// Service defines the eligibility operations the handler delegates to.
type Service interface {
	Voters(ctx context.Context, scope eligibility.Scope) ([]uuid.UUID, error)
	Candidates(ctx context.Context, scope eligibility.Scope) ([]uuid.UUID, error)
	SetCriteria(ctx context.Context, criteria *eligibility.Criteria) (*eligibility.Criteria, error)
	Recompute(ctx context.Context, scope eligibility.Scope) error
}

// ElectionSource loads elections to build scopes.
type ElectionSource interface {
	Get(ctx context.Context, id uuid.UUID) (*election.Election, error)
}

// Gate authorizes commission members.
type Gate interface {
	RequireCommission(ctx context.Context, memberID uuid.UUID, level directory.Level, orgUnitID uuid.UUID) error
}

type Handler struct {
	logger    *slog.Logger
	rolls     Service
	elections ElectionSource
	gate      Gate
	validator middleware.JWTValidator
}

func New(rolls Service, elections ElectionSource, gate Gate, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, rolls: rolls, elections: elections, gate: gate, validator: validator}
}

// Register mounts the eligibility routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Get("/elections/{electionID}/voters", h.roll(Service.Voters))
		r.Get("/elections/{electionID}/candidates", h.roll(Service.Candidates))
		r.Put("/elections/{electionID}/criteria", h.handleSetCriteria)
		r.Post("/elections/{electionID}/recompute", h.handleRecompute)
	})
}

// scopeFor authorizes the caller and resolves the election into a scope.
func (h *Handler) scopeFor(ctx context.Context, r *http.Request) (eligibility.Scope, error) {
	actorID, err := shared.MemberID(ctx)
	if err != nil {
		return eligibility.Scope{}, err
	}
	electionID, err := shared.PathUUID(chi.URLParam(r, "electionID"))
	if err != nil {
		return eligibility.Scope{}, err
	}
	e, err := h.elections.Get(ctx, electionID)
	if err != nil {
		return eligibility.Scope{}, err
	}
	if err := h.gate.RequireCommission(ctx, actorID, e.Level, e.OrgUnitID); err != nil {
		return eligibility.Scope{}, err
	}
	return eligibility.Scope{ElectionID: e.ID, Level: e.Level, OrgUnitID: e.OrgUnitID}, nil
}

func (h *Handler) roll(list func(Service, context.Context, eligibility.Scope) ([]uuid.UUID, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		scope, err := h.scopeFor(ctx, r)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		members, err := list(h.rolls, ctx, scope)
		if err != nil {
			h.logError(ctx, "list roll", err)
			shared.WriteError(w, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, map[string]any{
			"members": members,
			"count":   len(members),
		})
	}
}

type criteriaRequest struct {
	IncludeMembers    []uuid.UUID `json:"include_members"`
	ExcludeMembers    []uuid.UUID `json:"exclude_members"`
	ApplyToCandidates bool        `json:"apply_to_candidates"`
}

func (h *Handler) handleSetCriteria(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, err := h.scopeFor(ctx, r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req criteriaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	criteria, err := h.rolls.SetCriteria(ctx, &eligibility.Criteria{
		ElectionID:        scope.ElectionID,
		IncludeMembers:    req.IncludeMembers,
		ExcludeMembers:    req.ExcludeMembers,
		ApplyToCandidates: req.ApplyToCandidates,
	})
	if err != nil {
		h.logError(ctx, "set criteria", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"election_id": criteria.ElectionID,
		"version":     criteria.Version,
	})
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, err := h.scopeFor(ctx, r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.rolls.Recompute(ctx, scope); err != nil {
		h.logError(ctx, "recompute rolls", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	logFn := h.logger.WarnContext
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		logFn = h.logger.ErrorContext
	}
	logFn(ctx, "eligibility request failed",
		"op", op,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}
