package provisioning

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

// RegisterRoutes mounts the callable on g, which must carry the optional
// bearer middleware so anonymous self-registration still reaches it.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/functions/createUser", h.CreateUser)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

var statusByCode = map[string]int{
	ErrInvalidArgument.Error():  http.StatusBadRequest,
	ErrPermissionDenied.Error(): http.StatusForbidden,
	ErrEmailExists.Error():      http.StatusConflict,
	ErrCreateFailed.Error():     http.StatusInternalServerError,
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: ErrInvalidArgument.Error(), Message: "invalid request body"})
	}
	ctx := c.Request().Context()
	uid, err := h.svc.CreateUser(ctx, auth.ClaimsFromContext(ctx), req)
	if err != nil {
		code := Code(err)
		body := errorBody{Error: code}
		var ve *apperr.ValidationError
		switch {
		case errors.As(err, &ve):
			body.Message, body.Field = ve.Message, ve.Field
		case code == ErrCreateFailed.Error():
			c.Logger().Error(err)
		default:
			body.Message = err.Error()
		}
		return c.JSON(statusByCode[code], body)
	}
	return c.JSON(http.StatusOK, map[string]string{"uid": uid})
}
