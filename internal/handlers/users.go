package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chorusbot/chorus/internal/store"
)

// UserRecords is the store surface for owner accounts and their autoproxy
// preferences.
type UserRecords interface {
	User(ctx context.Context, id string) (store.User, error)
	UpsertUser(ctx context.Context, id string) error
	SetAutoproxy(ctx context.Context, userID string, mode store.AutoproxyMode, target string) error
}

// UserHandler serves owner account endpoints.
type UserHandler struct {
	records UserRecords
	logger  *slog.Logger
}

// NewUserHandler creates the user handler.
func NewUserHandler(log *slog.Logger, records UserRecords) *UserHandler {
	return &UserHandler{
		records: records,
		logger:  log.With(slog.String("handler", "users")),
	}
}

// Register mounts the user routes.
func (h *UserHandler) Register(e *echo.Echo) {
	e.GET("/users/:id", h.Get)
	e.PUT("/users/:id/autoproxy", h.SetAutoproxy)
}

// AutoproxyRequest is the body for PUT /users/:id/autoproxy.
type AutoproxyRequest struct {
	Mode   string `json:"mode"`
	Member string `json:"member,omitempty"`
}

// Get returns one owner account with its autoproxy state.
func (h *UserHandler) Get(c echo.Context) error {
	user, err := h.records.User(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Message: "user not found"})
		}
		h.logger.Error("get user", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "get user failed"})
	}
	return c.JSON(http.StatusOK, user)
}

// SetAutoproxy updates the owner's autoproxy mode. The user row is created
// on first use; a member target must belong to the user.
func (h *UserHandler) SetAutoproxy(c echo.Context) error {
	var req AutoproxyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}
	mode := store.AutoproxyMode(req.Mode)
	switch mode {
	case store.AutoproxyNone, store.AutoproxyLatch, store.AutoproxyMember:
	default:
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "mode must be none, latch, or member"})
	}
	if mode == store.AutoproxyMember && req.Member == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "member mode requires a member id"})
	}

	ctx := c.Request().Context()
	userID := c.Param("id")
	if err := h.records.UpsertUser(ctx, userID); err != nil {
		h.logger.Error("upsert user", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "set autoproxy failed"})
	}
	if err := h.records.SetAutoproxy(ctx, userID, mode, req.Member); err != nil {
		switch {
		case errors.Is(err, store.ErrMemberNotFound):
			return c.JSON(http.StatusNotFound, ErrorResponse{Message: "member not found"})
		case errors.Is(err, store.ErrNotOwned):
			return c.JSON(http.StatusConflict, ErrorResponse{Message: "member is not owned by this user"})
		}
		h.logger.Error("set autoproxy", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "set autoproxy failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
