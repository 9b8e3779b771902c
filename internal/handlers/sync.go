package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chorusbot/chorus/internal/store"
	"github.com/chorusbot/chorus/internal/syncer"
)

// SyncTrigger runs reconciliation on demand.
type SyncTrigger interface {
	TriggerSync(ctx context.Context) (syncer.Report, error)
}

// MemberSync runs reconciliation for a single member or one owner's members.
type MemberSync interface {
	SyncMember(ctx context.Context, externalID string) (syncer.Report, error)
	SyncOwner(ctx context.Context, ownerID string) (syncer.Report, error)
}

// SyncHandler serves the sync trigger endpoints.
type SyncHandler struct {
	trigger SyncTrigger
	members MemberSync
	logger  *slog.Logger
}

// NewSyncHandler creates the sync handler.
func NewSyncHandler(log *slog.Logger, trigger SyncTrigger, members MemberSync) *SyncHandler {
	return &SyncHandler{
		trigger: trigger,
		members: members,
		logger:  log.With(slog.String("handler", "sync")),
	}
}

// Register mounts the sync routes.
func (h *SyncHandler) Register(e *echo.Echo) {
	e.POST("/sync", h.All)
	e.POST("/sync/owner/:id", h.Owner)
	e.POST("/sync/:id", h.Member)
}

// All runs a full reconciliation pass and returns the report.
func (h *SyncHandler) All(c echo.Context) error {
	report, err := h.trigger.TriggerSync(c.Request().Context())
	if err != nil {
		h.logger.Error("trigger sync", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "sync failed"})
	}
	return c.JSON(http.StatusOK, report)
}

// Owner reconciles all of one owner's enabled members.
func (h *SyncHandler) Owner(c echo.Context) error {
	report, err := h.members.SyncOwner(c.Request().Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("sync owner", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "sync failed"})
	}
	return c.JSON(http.StatusOK, report)
}

// Member reconciles one member and returns its report.
func (h *SyncHandler) Member(c echo.Context) error {
	report, err := h.members.SyncMember(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Message: "member not found"})
		}
		h.logger.Error("sync member", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "sync failed"})
	}
	return c.JSON(http.StatusOK, report)
}
