package dashboard

import (
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
	api.GET("/terapeuta/panel", h.TherapistPanel, auth.RequireRole(auth.RoleTherapist))
	api.GET("/paciente/panel", h.PatientPanel, auth.RequireRole(auth.RolePatient))
}

func (h *Handler) TherapistPanel(c echo.Context) error {
	ctx := c.Request().Context()
	panel, err := h.svc.Therapist(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, panel)
}

func (h *Handler) PatientPanel(c echo.Context) error {
	ctx := c.Request().Context()
	panel, err := h.svc.Patient(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, panel)
}
