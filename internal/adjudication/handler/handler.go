// Package handler exposes the vote adjudication queue over HTTP, including
// the photo fetch endpoints adjudicators load side by side.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sabha/internal/adjudication"
	"sabha/internal/photo"
	"sabha/internal/platform/middleware"
	"sabha/internal/transport/http/shared"
	"sabha/internal/voting"
	dErrors "sabha/pkg/domain-errors"
)

// Service defines the adjudication operations the handler delegates to.
type Service interface {
	ListPending(ctx context.Context, actorID, electionID uuid.UUID) ([]adjudication.PendingVote, error)
	Approve(ctx context.Context, actorID, voteID uuid.UUID) (*voting.Vote, error)
	Reject(ctx context.Context, actorID, voteID uuid.UUID, reason string) (*voting.Vote, error)
}

type Handler struct {
	logger    *slog.Logger
	queue     Service
	photos    photo.Store
	validator middleware.JWTValidator
}

func New(queue Service, photos photo.Store, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, queue: queue, photos: photos, validator: validator}
}

// Register mounts the adjudication routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Get("/elections/{electionID}/adjudication", h.handleListPending)
		r.Post("/adjudication/{voteID}/approve", h.handleApprove)
		r.Post("/adjudication/{voteID}/reject", h.handleReject)
		r.Get("/photos/{photoRef}", h.handleGetPhoto)
	})
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
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

	queue, err := h.queue.ListPending(ctx, actorID, electionID)
	if err != nil {
		h.logError(ctx, "list pending votes", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, queue)
}

type voteResponse struct {
	VoteID       uuid.UUID `json:"vote_id"`
	Status       string    `json:"status"`
	RejectReason string    `json:"reject_reason,omitempty"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, err := shared.MemberID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	voteID, err := shared.PathUUID(chi.URLParam(r, "voteID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	vote, err := h.queue.Approve(ctx, actorID, voteID)
	if err != nil {
		h.logError(ctx, "approve vote", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, voteResponse{VoteID: vote.ID, Status: string(vote.Status)})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, err := shared.MemberID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	voteID, err := shared.PathUUID(chi.URLParam(r, "voteID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	vote, err := h.queue.Reject(ctx, actorID, voteID, req.Reason)
	if err != nil {
		h.logError(ctx, "reject vote", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, voteResponse{
		VoteID:       vote.ID,
		Status:       string(vote.Status),
		RejectReason: vote.RejectReason,
	})
}

func (h *Handler) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref := chi.URLParam(r, "photoRef")

	data, contentType, err := h.photos.Get(ctx, ref)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "photo not found"))
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	logFn := h.logger.WarnContext
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		logFn = h.logger.ErrorContext
	}
	logFn(ctx, "adjudication request failed",
		"op", op,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}
