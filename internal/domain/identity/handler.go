package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts sign-in and reset on public and the token-bound
// endpoints on api, which must require a bearer token.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/signin", h.SignIn)
	public.POST("/auth/password-reset", h.RequestPasswordReset)
	public.POST("/auth/password-reset/confirm", h.ConfirmPasswordReset)

	api.POST("/auth/signout", h.SignOut)
	api.POST("/auth/refresh", h.Refresh)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrResetTokenInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return apperr.HTTP(err)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	tok, err := h.svc.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tok)
}

func (h *Handler) SignOut(c echo.Context) error {
	if err := h.svc.SignOut(c.Request().Context(), auth.ClaimsFromContext(c.Request().Context())); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Refresh(c echo.Context) error {
	tok, err := h.svc.Refresh(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tok)
}

type resetRequest struct {
	Email string `json:"email"`
}

func (h *Handler) RequestPasswordReset(c echo.Context) error {
	var req resetRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	if err := h.svc.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

type confirmResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) ConfirmPasswordReset(c echo.Context) error {
	var req confirmResetRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	if err := h.svc.ConfirmPasswordReset(c.Request().Context(), req.Token, req.Password); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
