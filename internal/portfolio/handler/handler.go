// Package handler exposes portfolio administration: defining portfolios,
// granting permissions and assigning seats. Mutations require the caller to
// hold portfolio:manage at state level.
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
	"sabha/internal/platform/middleware"
	"sabha/internal/portfolio"
	"sabha/internal/transport/http/shared"
	dErrors "sabha/pkg/domain-errors"
)

// Service defines the portfolio operations the handler delegates to.
type Service interface {
	Authorize(ctx context.Context, memberID uuid.UUID, permissionKey, resourceType string, level directory.Level, want portfolio.Capability) error
	CreatePortfolio(ctx context.Context, code, name string, level directory.Level, typ portfolio.Type, authorityRank int, parentID uuid.UUID) (*portfolio.Portfolio, error)
	GrantPermission(ctx context.Context, portfolioID uuid.UUID, permissionKey, resourceType string, capability portfolio.Capability, level directory.Level) (*portfolio.Permission, error)
	Assign(ctx context.Context, memberID, portfolioID, orgUnitID uuid.UUID, now time.Time) (*portfolio.Assignment, error)
	EndAssignment(ctx context.Context, assignmentID uuid.UUID) error
}

const managePermission = "portfolio:manage"

type Handler struct {
	logger     *slog.Logger
	portfolios Service
	validator  middleware.JWTValidator
}

func New(portfolios Service, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, portfolios: portfolios, validator: validator}
}

// Register mounts the portfolio administration routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/portfolios", h.handleCreatePortfolio)
		r.Post("/portfolios/{portfolioID}/permissions", h.handleGrantPermission)
		r.Post("/assignments", h.handleAssign)
		r.Delete("/assignments/{assignmentID}", h.handleEndAssignment)
	})
}

// requireManager gates portfolio mutations on the manage grant.
func (h *Handler) requireManager(ctx context.Context) (uuid.UUID, error) {
	actorID, err := shared.MemberID(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if err := h.portfolios.Authorize(ctx, actorID, managePermission, "portfolio", directory.LevelState, portfolio.CapWrite); err != nil {
		return uuid.Nil, err
	}
	return actorID, nil
}

type createPortfolioRequest struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Level         string    `json:"level"`
	Type          string    `json:"type"`
	AuthorityRank int       `json:"authority_rank"`
	ParentID      uuid.UUID `json:"parent_id,omitempty"`
}

func (h *Handler) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.requireManager(ctx); err != nil {
		shared.WriteError(w, err)
		return
	}

	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	p, err := h.portfolios.CreatePortfolio(ctx, req.Code, req.Name, directory.Level(req.Level), portfolio.Type(req.Type), req.AuthorityRank, req.ParentID)
	if err != nil {
		h.logError(ctx, "create portfolio", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":    p.ID,
		"code":  p.Code,
		"level": string(p.Level),
		"type":  string(p.Type),
	})
}

type grantPermissionRequest struct {
	PermissionKey string `json:"permission_key"`
	ResourceType  string `json:"resource_type"`
	Capability    int    `json:"capability"`
	Level         string `json:"level"`
}

func (h *Handler) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.requireManager(ctx); err != nil {
		shared.WriteError(w, err)
		return
	}
	portfolioID, err := shared.PathUUID(chi.URLParam(r, "portfolioID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req grantPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	perm, err := h.portfolios.GrantPermission(ctx, portfolioID, req.PermissionKey, req.ResourceType, portfolio.Capability(req.Capability), directory.Level(req.Level))
	if err != nil {
		h.logError(ctx, "grant permission", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, perm)
}

type assignRequest struct {
	MemberID    uuid.UUID `json:"member_id"`
	PortfolioID uuid.UUID `json:"portfolio_id"`
	OrgUnitID   uuid.UUID `json:"org_unit_id"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.requireManager(ctx); err != nil {
		shared.WriteError(w, err)
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	assignment, err := h.portfolios.Assign(ctx, req.MemberID, req.PortfolioID, req.OrgUnitID, time.Now())
	if err != nil {
		h.logError(ctx, "assign portfolio", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":          assignment.ID,
		"member_id":   assignment.MemberID,
		"assigned_at": assignment.AssignedAt,
	})
}

func (h *Handler) handleEndAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.requireManager(ctx); err != nil {
		shared.WriteError(w, err)
		return
	}
	assignmentID, err := shared.PathUUID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.portfolios.EndAssignment(ctx, assignmentID); err != nil {
		h.logError(ctx, "end assignment", err)
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
	logFn(ctx, "portfolio request failed",
		"op", op,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}
