// Package handler exposes the voting protocol over HTTP. OTP routes are
// JSON; vote submission is multipart because it carries the live photo.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sabha/internal/platform/middleware"
	"sabha/internal/transport/http/shared"
	"sabha/internal/voting"
	dErrors "sabha/pkg/domain-errors"
)

// maxPhotoBytes bounds the multipart upload; anything bigger than a phone
// camera frame is rejected before it hits memory.
const maxPhotoBytes = 8 << 20

// Service defines the voting protocol operations the handler delegates to.
type Service interface {
	RequestOTP(ctx context.Context, memberID, electionID uuid.UUID) (time.Time, error)
	VerifyOTP(ctx context.Context, memberID, electionID uuid.UUID, code string) (*voting.VerifiedSession, error)
	SubmitVote(ctx context.Context, memberID uuid.UUID, sessionToken string, nominationID uuid.UUID, livePhoto []byte, photoContentType string) (*voting.Vote, error)
}

type Handler struct {
	logger    *slog.Logger
	votes     Service
	validator middleware.JWTValidator
}

func New(votes Service, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, votes: votes, validator: validator}
}

// Register mounts the voting routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Post("/elections/{electionID}/otp/request", h.handleRequestOTP)
			r.Post("/elections/{electionID}/otp/verify", h.handleVerifyOTP)
		})
		// Multipart route stays outside the JSON content-type guard.
		r.Post("/votes", h.handleSubmitVote)
	})
}

func (h *Handler) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
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

	expiresAt, err := h.votes.RequestOTP(ctx, memberID, electionID)
	if err != nil {
		h.logError(ctx, "request otp", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, map[string]any{
		"expires_at": expiresAt,
	})
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
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

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	session, err := h.votes.VerifyOTP(ctx, memberID, electionID, req.Code)
	if err != nil {
		h.logError(ctx, "verify otp", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"session_token": session.Token,
		"expires_at":    session.ExpiresAt,
	})
}

// handleSubmitVote reads a multipart form: session_token and nomination_id
// fields plus a live_photo file part.
func (h *Handler) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID, err := shared.MemberID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart form"))
		return
	}

	sessionToken := r.FormValue("session_token")
	if sessionToken == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session_token is required"))
		return
	}
	nominationID, err := uuid.Parse(r.FormValue("nomination_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "nomination_id is required"))
		return
	}

	file, header, err := r.FormFile("live_photo")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "a live photo is required to submit a vote"))
		return
	}
	defer file.Close()
	photo, err := io.ReadAll(file)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "could not read live photo"))
		return
	}

	vote, err := h.votes.SubmitVote(ctx, memberID, sessionToken, nominationID, photo, header.Header.Get("Content-Type"))
	if err != nil {
		h.logError(ctx, "submit vote", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"vote_id":      vote.ID,
		"status":       string(vote.Status),
		"submitted_at": vote.SubmittedAt,
	})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	logFn := h.logger.WarnContext
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		logFn = h.logger.ErrorContext
	}
	logFn(ctx, "voting request failed",
		"op", op,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}
