// Package handler exposes the election lifecycle over HTTP. Every route
// requires a bearer token; commission authorization happens in the service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/platform/middleware"
	"sabha/internal/transport/http/shared"
	dErrors "sabha/pkg/domain-errors"
)

// Service defines the lifecycle operations the handler delegates to.
type Service interface {
	Create(ctx context.Context, actorID uuid.UUID, level directory.Level, orgUnitID uuid.UUID, electionType string, nomination, voting election.Window) (*election.Election, error)
	Get(ctx context.Context, id uuid.UUID) (*election.Election, error)
	SetWindows(ctx context.Context, actorID, electionID uuid.UUID, nomination, voting election.Window) (*election.Election, error)
	OpenNominations(ctx context.Context, actorID, electionID uuid.UUID) (*election.Election, error)
	CloseNominations(ctx context.Context, actorID, electionID uuid.UUID) (*election.Election, error)
	OpenVoting(ctx context.Context, actorID, electionID uuid.UUID) (*election.Election, error)
	CloseVoting(ctx context.Context, actorID, electionID uuid.UUID) (*election.Election, error)
	Complete(ctx context.Context, actorID, electionID uuid.UUID) (*election.Election, error)
	Cancel(ctx context.Context, actorID, electionID uuid.UUID) (*election.Election, error)
}

type Handler struct {
	logger    *slog.Logger
	elections Service
	validator middleware.JWTValidator
}

func New(elections Service, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, elections: elections, validator: validator}
}

// Register mounts the election routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/elections", h.handleCreate)
		r.Get("/elections/{electionID}", h.handleGet)
		r.Put("/elections/{electionID}/windows", h.handleSetWindows)
		r.Post("/elections/{electionID}/open-nominations", h.transition(Service.OpenNominations))
		r.Post("/elections/{electionID}/close-nominations", h.transition(Service.CloseNominations))
		r.Post("/elections/{electionID}/open-voting", h.transition(Service.OpenVoting))
		r.Post("/elections/{electionID}/close-voting", h.transition(Service.CloseVoting))
		r.Post("/elections/{electionID}/complete", h.transition(Service.Complete))
		r.Post("/elections/{electionID}/cancel", h.transition(Service.Cancel))
	})
}

type windowPayload struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w windowPayload) toWindow() election.Window {
	return election.Window{Start: w.Start, End: w.End}
}

type createRequest struct {
	Level            string        `json:"level"`
	OrgUnitID        uuid.UUID     `json:"org_unit_id"`
	ElectionType     string        `json:"election_type"`
	NominationWindow windowPayload `json:"nomination_window"`
	VotingWindow     windowPayload `json:"voting_window"`
}

type electionResponse struct {
	ID               uuid.UUID     `json:"id"`
	Level            string        `json:"level"`
	OrgUnitID        uuid.UUID     `json:"org_unit_id"`
	ElectionType     string        `json:"election_type"`
	Status           string        `json:"status"`
	NominationWindow windowPayload `json:"nomination_window"`
	VotingWindow     windowPayload `json:"voting_window"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func toResponse(e *election.Election) electionResponse {
	return electionResponse{
		ID:               e.ID,
		Level:            string(e.Level),
		OrgUnitID:        e.OrgUnitID,
		ElectionType:     e.ElectionType,
		Status:           string(e.Status),
		NominationWindow: windowPayload{Start: e.NominationWindow.Start, End: e.NominationWindow.End},
		VotingWindow:     windowPayload{Start: e.VotingWindow.Start, End: e.VotingWindow.End},
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, err := shared.MemberID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	e, err := h.elections.Create(ctx, actorID, directory.Level(req.Level), req.OrgUnitID, req.ElectionType,
		req.NominationWindow.toWindow(), req.VotingWindow.toWindow())
	if err != nil {
		h.logError(ctx, "create election", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(e))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
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
	shared.WriteJSON(w, http.StatusOK, toResponse(e))
}

type setWindowsRequest struct {
	NominationWindow windowPayload `json:"nomination_window"`
	VotingWindow     windowPayload `json:"voting_window"`
}

func (h *Handler) handleSetWindows(w http.ResponseWriter, r *http.Request) {
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

	var req setWindowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	e, err := h.elections.SetWindows(ctx, actorID, electionID, req.NominationWindow.toWindow(), req.VotingWindow.toWindow())
	if err != nil {
		h.logError(ctx, "set election windows", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(e))
}

// transition builds the shared handler for the explicit lifecycle actions.
func (h *Handler) transition(step func(Service, context.Context, uuid.UUID, uuid.UUID) (*election.Election, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		e, err := step(h.elections, ctx, actorID, electionID)
		if err != nil {
			h.logError(ctx, "transition election", err)
			shared.WriteError(w, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, toResponse(e))
	}
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	logFn := h.logger.WarnContext
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		logFn = h.logger.ErrorContext
	}
	logFn(ctx, "election request failed",
		"op", op,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}
