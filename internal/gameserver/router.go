package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/frontend/ws"
	"github.com/cory-johannsen/tictactoe/internal/game/state"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
)

// Peer is one client connection as seen by the Router.
type Peer interface {
	state.Conn
	// ReadFrame blocks until the next text frame arrives or the connection closes.
	ReadFrame() ([]byte, error)
	Close() error
}

// Router decodes inbound frames and dispatches them to the Coordinator
// according to the sender's membership.
type Router struct {
	coord   *Coordinator
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRouter creates a Router.
//
// Precondition: coord and logger must be non-nil. metrics may be nil.
func NewRouter(coord *Coordinator, logger *zap.Logger, metrics *observability.Metrics) *Router {
	return &Router{coord: coord, logger: logger, metrics: metrics}
}

// Serve handles peer until its connection closes, ctx is cancelled, or an
// unregistered peer sends anything other than register. On return the peer's identity, if
// any, has been passed to Coordinator.Disconnect.
//
// Precondition: peer must be freshly opened.
func (r *Router) Serve(ctx context.Context, peer Peer) error {
	var identity string
	defer func() {
		if identity != "" {
			r.coord.Disconnect(peer, identity)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := peer.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			r.metrics.Message("", "malformed")
			r.logger.Debug("malformed frame", zap.String("conn", peer.ID()), zap.Error(err))
			r.coord.Notify(peer, identity, err)
			continue
		}

		if reg, ok := msg.(protocol.Register); ok {
			if r.register(peer, identity, reg) {
				identity = reg.UUID
			}
			continue
		}
		if identity == "" {
			r.record(msg, ErrNotRegistered)
			r.logger.Info("unregistered connection sent non-register action",
				zap.String("conn", peer.ID()),
				zap.String("action", string(msg.Action())),
			)
			r.coord.Notify(peer, msg.Sender(), ErrNotRegistered)
			return ErrNotRegistered
		}
		r.record(msg, r.dispatch(peer, msg))
	}
}

// HandleSession serves one websocket connection.
func (r *Router) HandleSession(ctx context.Context, conn *ws.Conn) error {
	return r.Serve(ctx, conn)
}

// register handles a register frame and reports whether the connection is
// now bound to reg.UUID. A connection already registered may only re-register
// as the same client.
func (r *Router) register(peer Peer, identity string, reg protocol.Register) bool {
	if identity != "" && reg.UUID != identity {
		err := fmt.Errorf("connection registered as %q: %w", identity, state.ErrInvalidIdentity)
		r.coord.Notify(peer, identity, err)
		r.record(reg, err)
		return false
	}
	err := r.coord.Register(peer, reg)
	r.record(reg, err)
	return err == nil || errors.Is(err, ErrTransportFailure)
}

// dispatch routes msg by the sender's membership. Lobby clients may create,
// join, or list; session members may only move, and a create or join from
// them is rejected as ErrAlreadyInSession.
func (r *Router) dispatch(peer Peer, msg protocol.Message) error {
	uuid := msg.Sender()
	sessionID, err := r.coord.Membership(peer, uuid)
	if errors.Is(err, ErrStaleSession) {
		return err
	}
	if err != nil {
		r.coord.Notify(peer, uuid, err)
		return err
	}

	if sessionID == "" {
		switch m := msg.(type) {
		case protocol.CreateGame:
			return r.coord.CreateGame(peer, uuid)
		case protocol.JoinGame:
			return r.coord.JoinGame(peer, uuid, m.GameID)
		case protocol.ListGames:
			return r.coord.ListGames(peer, uuid)
		default:
			err := &inapplicableError{text: fmt.Sprintf("Unknown action '%s' in lobby state.", msg.Action())}
			r.coord.Notify(peer, uuid, err)
			return err
		}
	}

	switch m := msg.(type) {
	case protocol.MakeMove:
		return r.coord.MakeMove(peer, uuid, m.GameID, m.Row, m.Col)
	case protocol.CreateGame, protocol.JoinGame:
		r.coord.Notify(peer, uuid, ErrAlreadyInSession)
		return ErrAlreadyInSession
	default:
		err := &inapplicableError{text: "Unknown game action."}
		r.coord.Notify(peer, uuid, err)
		return err
	}
}

func (r *Router) record(msg protocol.Message, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTransportFailure):
		result = "send_failed"
	default:
		result = "rejected"
	}
	action := msg.Action()
	if !action.Known() {
		action = "unknown"
	}
	r.metrics.Message(string(action), result)
}
