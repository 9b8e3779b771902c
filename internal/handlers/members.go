package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chorusbot/chorus/internal/admin"
	"github.com/chorusbot/chorus/internal/pluralkit"
	"github.com/chorusbot/chorus/internal/store"
	"github.com/chorusbot/chorus/internal/syncer"
)

// MemberRecords is the read surface the member handler needs.
type MemberRecords interface {
	Members(ctx context.Context) ([]store.Member, error)
	Member(ctx context.Context, externalID string) (store.Member, error)
}

// Registrar is the admin surface the member handler drives.
type Registrar interface {
	Register(ctx context.Context, externalID, ownerID string) (store.Member, syncer.Report, error)
	Suspend(ctx context.Context, externalID string) error
	Reenable(ctx context.Context, externalID string) error
	Disable(ctx context.Context, externalID string) error
	CreateInvite(ctx context.Context, externalID string) (string, error)
	RedeemInvite(code string) (string, error)
	RegisterSystem(ctx context.Context, systemID, ownerID string) ([]admin.SystemRegistration, error)
}

// MemberHandler serves the member management endpoints.
type MemberHandler struct {
	records   MemberRecords
	registrar Registrar
	logger    *slog.Logger
}

// NewMemberHandler creates the member handler.
func NewMemberHandler(log *slog.Logger, records MemberRecords, registrar Registrar) *MemberHandler {
	return &MemberHandler{
		records:   records,
		registrar: registrar,
		logger:    log.With(slog.String("handler", "members")),
	}
}

// Register mounts the member routes.
func (h *MemberHandler) Register(e *echo.Echo) {
	e.GET("/members", h.List)
	e.GET("/members/:id", h.Get)
	e.POST("/members", h.Create)
	e.POST("/members/:id/suspend", h.Suspend)
	e.POST("/members/:id/enable", h.Enable)
	e.DELETE("/members/:id", h.Delete)
	e.POST("/members/:id/invite", h.Invite)
	e.POST("/invites/:code/redeem", h.Redeem)
	e.POST("/systems/:id/register", h.CreateSystem)
}

// RegisterRequest is the body for POST /members.
type RegisterRequest struct {
	ExternalID string `json:"external_id"`
	OwnerID    string `json:"owner_id"`
}

// RegisterResponse carries the created member and the outcome of its initial
// profile sync.
type RegisterResponse struct {
	Member store.Member  `json:"member"`
	Sync   syncer.Report `json:"sync"`
}

// List returns every registered member.
func (h *MemberHandler) List(c echo.Context) error {
	members, err := h.records.Members(c.Request().Context())
	if err != nil {
		h.logger.Error("list members", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "list members failed"})
	}
	return c.JSON(http.StatusOK, members)
}

// Get returns one member.
func (h *MemberHandler) Get(c echo.Context) error {
	member, err := h.records.Member(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Message: "member not found"})
		}
		h.logger.Error("get member", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "get member failed"})
	}
	return c.JSON(http.StatusOK, member)
}

// Create registers a new member.
func (h *MemberHandler) Create(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}
	if req.ExternalID == "" || req.OwnerID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "external_id and owner_id are required"})
	}

	member, report, err := h.registrar.Register(c.Request().Context(), req.ExternalID, req.OwnerID)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, RegisterResponse{Member: member, Sync: report})
	case errors.Is(err, pluralkit.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: "identity not found"})
	case errors.Is(err, admin.ErrIncompleteSource):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Message: err.Error()})
	case errors.Is(err, store.ErrNoFreeCredential):
		return c.JSON(http.StatusConflict, ErrorResponse{Message: "no free credential"})
	case errors.Is(err, store.ErrDuplicateMember):
		return c.JSON(http.StatusConflict, ErrorResponse{Message: "member already registered"})
	default:
		h.logger.Error("register member", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "register failed"})
	}
}

// SystemRegisterRequest is the body for POST /systems/:id/register.
type SystemRegisterRequest struct {
	OwnerID string `json:"owner_id"`
}

// CreateSystem registers every member of an upstream system for one owner.
func (h *MemberHandler) CreateSystem(c echo.Context) error {
	var req SystemRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}
	if req.OwnerID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "owner_id is required"})
	}

	results, err := h.registrar.RegisterSystem(c.Request().Context(), c.Param("id"), req.OwnerID)
	if err != nil {
		if errors.Is(err, pluralkit.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Message: "system not found"})
		}
		h.logger.Error("register system", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "register system failed"})
	}
	return c.JSON(http.StatusCreated, results)
}

// Suspend disables a member without deleting it.
func (h *MemberHandler) Suspend(c echo.Context) error {
	return h.lifecycle(c, h.registrar.Suspend)
}

// Enable re-enables a suspended member.
func (h *MemberHandler) Enable(c echo.Context) error {
	return h.lifecycle(c, h.registrar.Reenable)
}

// Delete permanently removes a member.
func (h *MemberHandler) Delete(c echo.Context) error {
	return h.lifecycle(c, h.registrar.Disable)
}

// Invite issues a single-use invite code for a member.
func (h *MemberHandler) Invite(c echo.Context) error {
	code, err := h.registrar.CreateInvite(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Message: "member not found"})
		}
		h.logger.Error("create invite", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "invite failed"})
	}
	return c.JSON(http.StatusOK, map[string]string{"code": code})
}

// Redeem consumes an invite code and reveals which member it was issued for.
func (h *MemberHandler) Redeem(c echo.Context) error {
	externalID, err := h.registrar.RedeemInvite(c.Param("code"))
	if err != nil {
		if errors.Is(err, admin.ErrInviteNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Message: "invite not found"})
		}
		h.logger.Error("redeem invite", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "redeem failed"})
	}
	return c.JSON(http.StatusOK, map[string]string{"external_id": externalID})
}

func (h *MemberHandler) lifecycle(c echo.Context, op func(context.Context, string) error) error {
	if err := op(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Message: "member not found"})
		}
		h.logger.Error("member lifecycle", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "operation failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
