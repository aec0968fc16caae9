package gate

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
	"github.com/fisiotrack/fisiotrack/internal/platform/websocket"
)

// Frame is pushed to the client on every gate state change.
type Frame struct {
	Type string `json:"type"`
	State
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Connector builds one gate-backed websocket session per connection.
type Connector struct {
	watcher  ProfileWatcher
	verifier auth.Verifier
	revoked  auth.RevocationChecker
	logger   zerolog.Logger
}

func NewConnector(watcher ProfileWatcher, verifier auth.Verifier, revoked auth.RevocationChecker, logger zerolog.Logger) *Connector {
	return &Connector{watcher: watcher, verifier: verifier, revoked: revoked, logger: logger}
}

// NewSession satisfies websocket.SessionFactory. The gate starts in the
// loading phase until the client announces signin or signout.
func (cn *Connector) NewSession(ctx context.Context, client *websocket.Client) websocket.Session {
	s := &Session{
		gate:      New(ctx, cn.watcher, cn.logger.With().Str("conn_id", client.ID).Logger()),
		client:    client,
		connector: cn,
	}
	s.unsubscribe = s.gate.Subscribe(func(st State) {
		client.SendJSON(Frame{Type: "gate", State: st})
	})
	client.SendJSON(Frame{Type: "gate", State: s.gate.Snapshot()})
	return s
}

// Session routes one connection's messages into its gate.
type Session struct {
	gate        *Gate
	client      *websocket.Client
	connector   *Connector
	unsubscribe func()
}

func (s *Session) HandleMessage(ctx context.Context, msg websocket.ClientMessage) {
	switch msg.Action {
	case "signin":
		claims, reason := s.connector.verify(ctx, msg.Token)
		if reason != "" {
			s.client.SendJSON(errorFrame{Type: "error", Error: reason})
			s.gate.SignedOut()
			return
		}
		s.gate.SignedIn(claims.Subject)
	case "signout":
		s.gate.SignedOut()
	case "navigate":
		s.gate.Navigate(msg.Path)
	default:
		s.client.SendJSON(errorFrame{Type: "error", Error: "unknown action"})
	}
}

// CanSubscribe limits change-event topics to identities with a profile.
// Patients may follow shared collections and their own profile only.
func (s *Session) CanSubscribe(topic string) bool {
	st := s.gate.Snapshot()
	switch st.Phase {
	case PhaseTherapist:
		return true
	case PhasePatient:
		if topic == pubsub.DocTopic(docstore.Usuarios, st.UID) {
			return true
		}
		return !strings.Contains(topic, "/") && topic != docstore.Usuarios
	}
	return false
}

func (s *Session) State() State { return s.gate.Snapshot() }

func (s *Session) Close() {
	s.unsubscribe()
	s.gate.Close()
}

// verify returns the token's claims or a client-facing reason.
func (cn *Connector) verify(ctx context.Context, token string) (*auth.Claims, string) {
	if token == "" {
		return nil, "token required"
	}
	claims, err := cn.verifier.Parse(token)
	if err != nil {
		return nil, "invalid token"
	}
	if cn.revoked != nil {
		revoked, err := cn.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			cn.logger.Error().Err(err).Msg("revocation check failed")
			return nil, "authentication unavailable"
		}
		if revoked {
			return nil, "token revoked"
		}
	}
	return claims, ""
}
