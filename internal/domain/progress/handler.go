package progress

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
	api.GET("/avances", h.ListProgress)
	api.GET("/avances/:id", h.GetProgress)
	api.GET("/expedientes/:id/avances", h.ListRecordProgress)
	api.POST("/avances", h.CreateProgress, auth.RequireRole(auth.RolePatient))
	api.POST("/avances/:id/resumen", h.Summarize, auth.RequireRole(auth.RoleTherapist))
}

func (h *Handler) CreateProgress(c echo.Context) error {
	var p Payload
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	a, err := h.svc.Create(ctx, auth.ClaimsFromContext(ctx), p)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetProgress(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.svc.Get(ctx, auth.ClaimsFromContext(ctx), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListProgress(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListFor(ctx, auth.ClaimsFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) ListRecordProgress(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListByRecord(ctx, auth.ClaimsFromContext(ctx), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) Summarize(c echo.Context) error {
	ctx := c.Request().Context()
	sum, err := h.svc.Summarize(ctx, auth.ClaimsFromContext(ctx), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, sum)
}
