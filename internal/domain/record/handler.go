package record

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
	api.GET("/expedientes", h.ListRecords)
	api.GET("/expedientes/:id", h.GetRecord)

	therapist := api.Group("", auth.RequireRole(auth.RoleTherapist))
	therapist.POST("/expedientes", h.CreateRecord)
	therapist.PATCH("/expedientes/:id", h.UpdateClinical)
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	e, err := h.svc.Create(ctx, auth.ClaimsFromContext(ctx), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetRecord(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.svc.Detail(ctx, auth.ClaimsFromContext(ctx), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListRecords(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListFor(ctx, auth.ClaimsFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) UpdateClinical(c echo.Context) error {
	var upd ClinicalUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	e, err := h.svc.UpdateClinical(ctx, auth.ClaimsFromContext(ctx), c.Param("id"), upd)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}
