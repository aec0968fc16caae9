package gate

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/profile"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
)

// ProfileReader reads one profile.
type ProfileReader interface {
	Get(ctx context.Context, uid string) (*profile.UserProfile, error)
}

// Resolve evaluates the gate once for uid at path. An empty uid is signed
// out; a failed profile read counts as signed out as well.
func Resolve(ctx context.Context, profiles ProfileReader, uid, path string) State {
	if path == "" {
		path = PathPublic
	}
	st := State{Phase: PhaseUnauthenticated, Path: path}
	if uid != "" {
		p, err := profiles.Get(ctx, uid)
		switch {
		case err == nil:
			st = State{Phase: PhaseFor(p), UID: uid, Path: path}
			if st.Phase != PhaseNoProfile {
				st.Profile = p
			}
		case errors.Is(err, profile.ErrProfileNotFound):
			st = State{Phase: PhaseNoProfile, UID: uid, Path: path}
		}
	}
	if target := Decide(st.Phase, st.Path); target != "" {
		st.Redirect = target
		st.Path = target
	}
	return st
}

type Handler struct {
	profiles ProfileReader
	ws       echo.HandlerFunc
	logger   zerolog.Logger
}

// NewHandler serves the one-shot resolver and, when ws is not nil, the
// live gate socket.
func NewHandler(profiles ProfileReader, ws echo.HandlerFunc, logger zerolog.Logger) *Handler {
	return &Handler{profiles: profiles, ws: ws, logger: logger}
}

// RegisterRoutes mounts the gate on g, which should carry the optional
// bearer middleware.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/session/resolve", h.Resolve)
	if h.ws != nil {
		g.GET("/session/ws", h.ws)
	}
}

func (h *Handler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	uid := auth.UserIDFromContext(ctx)
	st := Resolve(ctx, h.profiles, uid, c.QueryParam("path"))
	if uid != "" && st.Phase == PhaseUnauthenticated {
		h.logger.Warn().Str("uid", uid).Msg("profile read failed while resolving gate")
	}
	return c.JSON(http.StatusOK, st)
}
