// Package handler exposes nomination filing and commission decisions over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sabha/internal/nomination"
	"sabha/internal/platform/middleware"
	"sabha/internal/transport/http/shared"
	dErrors "sabha/pkg/domain-errors"
)

// Service defines the nomination operations the handler delegates to.
type Service interface {
	File(ctx context.Context, memberID, electionID uuid.UUID, position, vision string) (*nomination.Nomination, error)
	Approve(ctx context.Context, actorID, nominationID uuid.UUID) (*nomination.Nomination, error)
	Reject(ctx context.Context, actorID, nominationID uuid.UUID, reason string) (*nomination.Nomination, error)
	List(ctx context.Context, electionID uuid.UUID) ([]*nomination.Nomination, error)
	Ballot(ctx context.Context, electionID uuid.UUID) ([]*nomination.Nomination, error)
}

type Handler struct {
	logger      *slog.Logger
	nominations Service
	validator   middleware.JWTValidator
}

func New(nominations Service, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, nominations: nominations, validator: validator}
}

// Register mounts the nomination routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/elections/{electionID}/nominations", h.handleFile)
		r.Get("/elections/{electionID}/nominations", h.handleList)
		r.Get("/elections/{electionID}/ballot", h.handleBallot)
		r.Post("/nominations/{nominationID}/approve", h.handleApprove)
		r.Post("/nominations/{nominationID}/reject", h.handleReject)
	})
}

type fileRequest struct {
	Position        string `json:"position"`
	VisionStatement string `json:"vision_statement"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type nominationResponse struct {
	ID              uuid.UUID  `json:"id"`
	ElectionID      uuid.UUID  `json:"election_id"`
	MemberID        uuid.UUID  `json:"member_id"`
	Position        string     `json:"position"`
	VisionStatement string     `json:"vision_statement"`
	Status          string     `json:"status"`
	RejectReason    string     `json:"reject_reason,omitempty"`
	FiledAt         time.Time  `json:"filed_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

func toResponse(n *nomination.Nomination) nominationResponse {
	return nominationResponse{
		ID:              n.ID,
		ElectionID:      n.ElectionID,
		MemberID:        n.MemberID,
		Position:        n.Position,
		VisionStatement: n.VisionStatement,
		Status:          string(n.Status),
		RejectReason:    n.RejectReason,
		FiledAt:         n.FiledAt,
		DecidedAt:       n.DecidedAt,
	}
}

func toResponses(ns []*nomination.Nomination) []nominationResponse {
	out := make([]nominationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, toResponse(n))
	}
	return out
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID, err := shared.MemberID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	electionID, err := shared.PathUUID(chi.URLParam(r, "electionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req fileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	n, err := h.nominations.File(ctx, memberID, electionID, req.Position, req.VisionStatement)
	if err != nil {
		h.logError(ctx, "file nomination", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(n))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID, err := shared.PathUUID(chi.URLParam(r, "electionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	ns, err := h.nominations.List(ctx, electionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponses(ns))
}

func (h *Handler) handleBallot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID, err := shared.PathUUID(chi.URLParam(r, "electionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	ns, err := h.nominations.Ballot(ctx, electionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponses(ns))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, err := shared.MemberID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	nominationID, err := shared.PathUUID(chi.URLParam(r, "nominationID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	n, err := h.nominations.Approve(ctx, actorID, nominationID)
	if err != nil {
		h.logError(ctx, "approve nomination", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(n))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, err := shared.MemberID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	nominationID, err := shared.PathUUID(chi.URLParam(r, "nominationID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	n, err := h.nominations.Reject(ctx, actorID, nominationID, req.Reason)
	if err != nil {
		h.logError(ctx, "reject nomination", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(n))
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	logFn := h.logger.WarnContext
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		logFn = h.logger.ErrorContext
	}
	logFn(ctx, "nomination request failed",
		"op", op,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}
