package profile

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/usuarios/me", h.GetMe)
	api.POST("/usuarios/me/completar", h.CompleteProfile)
	api.GET("/usuarios/:uid", h.GetProfile)

	therapist := api.Group("", auth.RequireRole(auth.RoleTherapist))
	therapist.GET("/usuarios", h.ListProfiles)
}

func (h *Handler) GetMe(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

// GetProfile serves a profile to its owner or to a therapist.
func (h *Handler) GetProfile(c echo.Context) error {
	ctx := c.Request().Context()
	uid := c.Param("uid")
	if uid != auth.UserIDFromContext(ctx) && auth.RoleFromContext(ctx) != auth.RoleTherapist {
		return echo.NewHTTPError(http.StatusForbidden, "cannot read another user's profile")
	}
	p, err := h.svc.Get(ctx, uid)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListProfiles(c echo.Context) error {
	rol := c.QueryParam("rol")
	if rol == "" {
		rol = auth.RolePatient
	}
	items, err := h.svc.ListByRole(c.Request().Context(), rol)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) CompleteProfile(c echo.Context) error {
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.CompleteProfile(c.Request().Context(), auth.ClaimsFromContext(c.Request().Context()), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}
