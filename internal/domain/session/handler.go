package session

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
	api.GET("/sesiones", h.ListSessions)
	api.GET("/sesiones/:id", h.GetSession)
	api.GET("/expedientes/:id/sesiones", h.ListRecordSessions)

	therapist := api.Group("", auth.RequireRole(auth.RoleTherapist))
	therapist.POST("/sesiones", h.ScheduleSession)
	therapist.POST("/sesiones/:id/completar", h.CompleteSession)
	therapist.POST("/sesiones/:id/cancelar", h.CancelSession)
}

func (h *Handler) ScheduleSession(c echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	s, err := h.svc.Schedule(ctx, auth.ClaimsFromContext(ctx), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) CompleteSession(c echo.Context) error {
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	s, err := h.svc.Complete(ctx, auth.ClaimsFromContext(ctx), c.Param("id"), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) CancelSession(c echo.Context) error {
	ctx := c.Request().Context()
	s, err := h.svc.Cancel(ctx, auth.ClaimsFromContext(ctx), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	s, err := h.svc.Get(ctx, auth.ClaimsFromContext(ctx), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListFor(ctx, auth.ClaimsFromContext(ctx), c.QueryParam("estado"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) ListRecordSessions(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListByRecord(ctx, auth.ClaimsFromContext(ctx), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}
