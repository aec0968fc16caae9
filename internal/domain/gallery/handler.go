package gallery

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
	api.GET("/galerias", h.ListGalleries)
	api.GET("/galerias/:id", h.GetGallery)

	therapist := api.Group("", auth.RequireRole(auth.RoleTherapist))
	therapist.POST("/galerias", h.CreateGallery)
	therapist.PUT("/galerias/:id/pacientes", h.UpdateAssignments)
}

func (h *Handler) CreateGallery(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	g, err := h.svc.Create(ctx, auth.ClaimsFromContext(ctx), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) GetGallery(c echo.Context) error {
	ctx := c.Request().Context()
	g, err := h.svc.Get(ctx, auth.ClaimsFromContext(ctx), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) ListGalleries(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListFor(ctx, auth.ClaimsFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) UpdateAssignments(c echo.Context) error {
	var req AssignmentsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	g, err := h.svc.UpdateAssignments(ctx, auth.ClaimsFromContext(ctx), c.Param("id"), req.PacientesAsignados)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, g)
}
