// Package handler exposes tally calculation, certification and result
// retrieval over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sabha/internal/platform/middleware"
	"sabha/internal/results"
	"sabha/internal/transport/http/shared"
	dErrors "sabha/pkg/domain-errors"
)

// Service defines the tabulation operations the handler delegates to.
type Service interface {
	Calculate(ctx context.Context, actorID, electionID uuid.UUID) (*results.Result, error)
	Certify(ctx context.Context, actorID, electionID uuid.UUID) (*results.Result, error)
	Get(ctx context.Context, electionID uuid.UUID) (*results.Result, error)
}

type Handler struct {
	logger    *slog.Logger
	results   Service
	validator middleware.JWTValidator
}

func New(results Service, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, results: results, validator: validator}
}

// Register mounts the result routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/elections/{electionID}/results/calculate", h.handleCalculate)
		r.Post("/elections/{electionID}/results/certify", h.handleCertify)
		r.Get("/elections/{electionID}/results", h.handleGet)
	})
}

type resultResponse struct {
	ElectionID   uuid.UUID                `json:"election_id"`
	Positions    []results.PositionResult `json:"positions"`
	CalculatedAt time.Time                `json:"calculated_at"`
	IsCertified  bool                     `json:"is_certified"`
	CertifiedAt  *time.Time               `json:"certified_at,omitempty"`
}

func toResponse(r *results.Result) resultResponse {
	return resultResponse{
		ElectionID:   r.ElectionID,
		Positions:    r.Positions,
		CalculatedAt: r.CalculatedAt,
		IsCertified:  r.IsCertified,
		CertifiedAt:  r.CertifiedAt,
	}
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.results.Calculate)
}

func (h *Handler) handleCertify(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.results.Certify)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, uuid.UUID) (*results.Result, error)) {
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

	result, err := op(ctx, actorID, electionID)
	if err != nil {
		h.logError(ctx, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(result))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID, err := shared.PathUUID(chi.URLParam(r, "electionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	result, err := h.results.Get(ctx, electionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(result))
}

func (h *Handler) logError(ctx context.Context, err error) {
	logFn := h.logger.WarnContext
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		logFn = h.logger.ErrorContext
	}
	logFn(ctx, "results request failed",
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}
