package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chorusbot/chorus/internal/store"
)

// CredentialPool is the admin surface for the login pool.
type CredentialPool interface {
	AddCredential(ctx context.Context, token string) error
	ReleaseCredential(ctx context.Context, token string) error
	Credentials(ctx context.Context) ([]store.Credential, error)
}

// CredentialHandler serves the credential pool endpoints. Tokens are never
// echoed back; the list reports pool shape only.
type CredentialHandler struct {
	pool   CredentialPool
	logger *slog.Logger
}

// NewCredentialHandler creates the credential handler.
func NewCredentialHandler(log *slog.Logger, pool CredentialPool) *CredentialHandler {
	return &CredentialHandler{
		pool:   pool,
		logger: log.With(slog.String("handler", "credentials")),
	}
}

// Register mounts the credential routes.
func (h *CredentialHandler) Register(e *echo.Echo) {
	e.GET("/credentials", h.List)
	e.POST("/credentials", h.Add)
	e.POST("/credentials/release", h.Release)
}

// AddCredentialRequest is the body for POST /credentials.
type AddCredentialRequest struct {
	Token string `json:"token"`
}

// PoolStatus summarizes the credential pool without exposing tokens.
type PoolStatus struct {
	Total int `json:"total"`
	Free  int `json:"free"`
}

// List returns the pool summary.
func (h *CredentialHandler) List(c echo.Context) error {
	creds, err := h.pool.Credentials(c.Request().Context())
	if err != nil {
		h.logger.Error("list credentials", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "list credentials failed"})
	}
	status := PoolStatus{Total: len(creds)}
	for _, cred := range creds {
		if !cred.Used {
			status.Free++
		}
	}
	return c.JSON(http.StatusOK, status)
}

// Add puts a new token into the pool. Re-adding a known token is a no-op.
func (h *CredentialHandler) Add(c echo.Context) error {
	var req AddCredentialRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "token is required"})
	}
	if err := h.pool.AddCredential(c.Request().Context(), req.Token); err != nil {
		h.logger.Error("add credential", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "add credential failed"})
	}
	return c.NoContent(http.StatusCreated)
}

// Release marks a retired token free again so a future registration can
// claim it.
func (h *CredentialHandler) Release(c echo.Context) error {
	var req AddCredentialRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "token is required"})
	}
	if err := h.pool.ReleaseCredential(c.Request().Context(), req.Token); err != nil {
		h.logger.Error("release credential", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "release credential failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
