// Package handler exposes the per-election audit trail to commission members.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sabha/internal/audit"
	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/platform/middleware"
	"sabha/internal/transport/http/shared"
	dErrors "sabha/pkg/domain-errors"
)

// Trail lists the recorded events for an election.
type Trail interface {
	List(ctx context.Context, electionID uuid.UUID) ([]audit.Event, error)
}

// ElectionSource loads elections so the gate can scope the check.
type ElectionSource interface {
	Get(ctx context.Context, id uuid.UUID) (*election.Election, error)
}

// Gate authorizes commission members.
type Gate interface {
	RequireCommission(ctx context.Context, memberID uuid.UUID, level directory.Level, orgUnitID uuid.UUID) error
}

type Handler struct {
	logger    *slog.Logger
	trail     Trail
	elections ElectionSource
	gate      Gate
	validator middleware.JWTValidator
}

func New(trail Trail, elections ElectionSource, gate Gate, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, trail: trail, elections: elections, gate: gate, validator: validator}
}

// Register mounts the audit routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Get("/elections/{electionID}/audit", h.handleList)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, err := shared.MemberID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	electionID, err := shared.PathUUID(chi.URLParam(r, "electionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	e, err := h.elections.Get(ctx, electionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.gate.RequireCommission(ctx, actorID, e.Level, e.OrgUnitID); err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.trail.List(ctx, electionID)
	if err != nil {
		logFn := h.logger.WarnContext
		if dErrors.GetCode(err) == dErrors.CodeInternal {
			logFn = h.logger.ErrorContext
		}
		logFn(ctx, "audit trail request failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"election_id": electionID,
		"events":      events,
		"count":       len(events),
	})
}
