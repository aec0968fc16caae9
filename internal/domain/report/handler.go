package report

import (
	"fmt"
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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/expedientes/:id/reporte.pdf", h.Download)
}

func (h *Handler) Download(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	out, err := h.svc.Expediente(ctx, auth.ClaimsFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="expediente-%s.pdf"`, id))
	return c.Blob(http.StatusOK, "application/pdf", out)
}
