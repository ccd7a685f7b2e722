package gameserver

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/rules"
	"github.com/cory-johannsen/tictactoe/internal/game/state"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
)

// delivery is one encoded frame addressed to one connection.
type delivery struct {
	conn  state.Conn
	uuid  string
	frame []byte
}

// outbox collects frames while the store lock is held. Coordinator.commit
// hands them to their connections before the lock is released, so every
// connection receives frames in the order the transactions committed.
type outbox struct {
	items  []delivery
	err    error
	failed error
}

func (o *outbox) add(conn state.Conn, uuid string, payload any) {
	if conn == nil {
		return
	}
	frame, err := protocol.Encode(payload)
	if err != nil {
		o.err = errors.Join(o.err, err)
		return
	}
	o.items = append(o.items, delivery{conn: conn, uuid: uuid, frame: frame})
}

// Coordinator owns every compound state change: registration, session
// creation and joining, moves, termination, and disconnect cleanup.
// All registry and directory access goes through one state.Store
// transaction; outbound frames are queued on their connections before the
// transaction commits.
type Coordinator struct {
	store   *state.Store
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewCoordinator creates a Coordinator.
//
// Precondition: store and logger must be non-nil. metrics may be nil.
func NewCoordinator(store *state.Store, logger *zap.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{store: store, logger: logger, metrics: metrics}
}

// Register binds uuid to conn and replays the client's position: the
// session snapshot if it is bound to a live session, otherwise the open
// session list.
//
// Postcondition: On success the registry routes uuid to conn.
func (c *Coordinator) Register(conn state.Conn, msg protocol.Register) error {
	var out outbox
	err := c.commit(&out, func(tx *state.Tx) error {
		sessionID, err := tx.Clients.Register(msg.UUID, msg.Name, conn)
		if err != nil {
			return err
		}
		out.add(conn, msg.UUID, protocol.NewRegistered(msg.UUID, msg.Name))
		if sessionID != "" {
			if m, err := tx.Sessions.Get(sessionID); err == nil {
				if mark, ok := m.SlotOf(msg.UUID); ok {
					out.add(conn, msg.UUID, protocol.NewRejoinGame(m.Snapshot(), mark))
					c.observe(tx)
					return nil
				}
			}
			// The binding outlived its session.
			_ = tx.Clients.UnbindSession(msg.UUID)
		}
		out.add(conn, msg.UUID, protocol.NewAvailableGames(tx.Sessions.ListOpen()))
		c.observe(tx)
		return nil
	})
	if err != nil {
		c.logger.Info("registration rejected", zap.String("uuid", msg.UUID), zap.Error(err))
		c.Notify(conn, msg.UUID, err)
		return err
	}
	c.logger.Info("client registered", zap.String("uuid", msg.UUID), zap.String("name", msg.Name))
	return out.failed
}

// Membership returns the session bound to uuid, or "" while in the lobby.
// A binding to a session that no longer exists is cleared, the client is told
// so and sent the open list, and ErrStaleSession is returned.
func (c *Coordinator) Membership(conn state.Conn, uuid string) (string, error) {
	var (
		out       outbox
		sessionID string
	)
	err := c.commit(&out, func(tx *state.Tx) error {
		client, err := authorize(tx, conn, uuid)
		if err != nil {
			return err
		}
		if client.InLobby() {
			return nil
		}
		if _, err := tx.Sessions.Get(client.SessionID); err != nil {
			_ = tx.Clients.UnbindSession(uuid)
			out.add(conn, uuid, protocol.NewError(describe(ErrStaleSession)))
			out.add(conn, uuid, protocol.NewAvailableGames(tx.Sessions.ListOpen()))
			return fmt.Errorf("session %q: %w", client.SessionID, ErrStaleSession)
		}
		sessionID = client.SessionID
		return nil
	})
	if errors.Is(err, ErrStaleSession) {
		c.logger.Warn("cleared stale session binding", zap.String("uuid", uuid), zap.Error(err))
	}
	return sessionID, err
}

// CreateGame opens a new session with the caller as X.
//
// Precondition: the caller is registered on conn and in the lobby.
// Postcondition: the caller is bound to the new session and every lobby
// client has been sent the refreshed open list.
func (c *Coordinator) CreateGame(conn state.Conn, uuid string) error {
	var (
		out outbox
		id  string
	)
	err := c.commit(&out, func(tx *state.Tx) error {
		client, err := authorize(tx, conn, uuid)
		if err != nil {
			return err
		}
		if !client.InLobby() {
			return ErrAlreadyInSession
		}
		m := tx.Sessions.Create(uuid, client.Name)
		id = m.ID()
		if err := tx.Clients.BindSession(uuid, id); err != nil {
			tx.Sessions.Destroy(id)
			return err
		}
		out.add(conn, uuid, protocol.NewGameCreated(m.Snapshot(), rules.X))
		c.lobbyFrames(tx, &out)
		c.observe(tx)
		return nil
	})
	if err != nil {
		c.Notify(conn, uuid, err)
		return err
	}
	c.logger.Info("session created", zap.String("game_id", id), zap.String("uuid", uuid))
	return out.failed
}

// JoinGame places the caller into the O slot of gameID and starts the match.
// An unjoinable target is answered with game_error and the open list.
//
// Precondition: the caller is registered on conn and in the lobby.
// Postcondition: On success both players have been sent game_start.
func (c *Coordinator) JoinGame(conn state.Conn, uuid, gameID string) error {
	var out outbox
	err := c.commit(&out, func(tx *state.Tx) error {
		client, err := authorize(tx, conn, uuid)
		if err != nil {
			return err
		}
		if !client.InLobby() {
			return ErrAlreadyInSession
		}
		m, err := tx.Sessions.Join(gameID, uuid, client.Name)
		if err != nil {
			out.add(conn, uuid, protocol.NewGameError(gameID, describe(state.ErrNotJoinable)))
			out.add(conn, uuid, protocol.NewAvailableGames(tx.Sessions.ListOpen()))
			return err
		}
		if err := tx.Clients.BindSession(uuid, m.ID()); err != nil {
			return err
		}
		start := protocol.NewGameStart(m.Snapshot())
		for _, p := range m.Participants() {
			pc, err := tx.Clients.ResolveConn(p.UUID)
			if err != nil {
				c.logger.Warn("participant unreachable", zap.String("game_id", gameID), zap.String("uuid", p.UUID), zap.Error(err))
				continue
			}
			out.add(pc, p.UUID, start)
		}
		c.lobbyFrames(tx, &out)
		c.observe(tx)
		return nil
	})
	switch {
	case errors.Is(err, state.ErrNotJoinable):
		c.logger.Info("join rejected", zap.String("game_id", gameID), zap.String("uuid", uuid), zap.Error(err))
		return err
	case err != nil:
		c.Notify(conn, uuid, err)
		return err
	}
	c.logger.Info("session started", zap.String("game_id", gameID), zap.String("joiner", uuid))
	return out.failed
}

// MakeMove applies a move to the caller's bound session. A rejected move is
// answered with move_error to the mover alone. An accepted move is broadcast
// to both players as game_update or, when terminal, game_over followed by
// session teardown.
//
// gameID may be empty; when set it must name the caller's bound session.
func (c *Coordinator) MakeMove(conn state.Conn, uuid, gameID string, row, col int) error {
	var (
		out     outbox
		m       *match.Match
		outcome match.Outcome
		moveErr error
	)
	err := c.commit(&out, func(tx *state.Tx) error {
		client, err := authorize(tx, conn, uuid)
		if err != nil {
			return err
		}
		if client.InLobby() {
			return &inapplicableError{text: "Unknown action 'make_move' in lobby state."}
		}
		if m, err = tx.Sessions.Get(client.SessionID); err != nil {
			return err
		}

		if gameID != "" && gameID != m.ID() {
			outcome, moveErr = match.Outcome{Board: m.Snapshot().Board}, match.ErrNotAPlayer
		} else {
			outcome, moveErr = m.ApplyMove(uuid, row, col)
		}
		if moveErr != nil {
			out.add(conn, uuid, protocol.NewMoveError(m.ID(), describe(moveErr), outcome.Board))
			return nil
		}

		var payload any
		if outcome.Terminal {
			payload = protocol.NewGameOver(m.ID(), outcome.Board, outcome.Winner, outcome.Tie)
		} else {
			payload = protocol.NewGameUpdate(m.ID(), outcome.Board, outcome.Next)
		}
		for _, p := range m.Participants() {
			pc, err := tx.Clients.ResolveConn(p.UUID)
			if err != nil {
				continue
			}
			out.add(pc, p.UUID, payload)
		}
		if outcome.Terminal {
			c.teardown(tx, m)
			c.lobbyFrames(tx, &out)
			c.observe(tx)
		}
		return nil
	})
	if err != nil {
		c.Notify(conn, uuid, err)
		return err
	}

	c.metrics.Move(moveOutcome(moveErr))
	if moveErr != nil {
		c.logger.Debug("move rejected",
			zap.String("game_id", m.ID()),
			zap.String("uuid", uuid),
			zap.Int("row", row),
			zap.Int("col", col),
			zap.Error(moveErr),
		)
		return moveErr
	}
	if outcome.Terminal {
		reason := "win"
		if outcome.Tie {
			reason = "draw"
		}
		c.metrics.SessionEnded(reason)
		c.logger.Info("session finished",
			zap.String("game_id", m.ID()),
			zap.String("winner", string(outcome.Winner)),
			zap.Bool("tie", outcome.Tie),
		)
	}
	return out.failed
}

// ListGames sends the open session list to the caller.
func (c *Coordinator) ListGames(conn state.Conn, uuid string) error {
	var out outbox
	err := c.commit(&out, func(tx *state.Tx) error {
		if _, err := authorize(tx, conn, uuid); err != nil {
			return err
		}
		out.add(conn, uuid, protocol.NewAvailableGames(tx.Sessions.ListOpen()))
		return nil
	})
	if err != nil {
		c.Notify(conn, uuid, err)
		return err
	}
	return out.failed
}

// Disconnect cleans up after conn closes. If uuid has since re-registered on
// another connection nothing happens. Otherwise a bound session is abandoned
// and destroyed, the remaining player is told, the client record is removed,
// and the lobby is refreshed.
//
// Postcondition: no client or session references uuid via conn.
func (c *Coordinator) Disconnect(conn state.Conn, uuid string) {
	var (
		out       outbox
		stale     bool
		abandoned string
	)
	_ = c.commit(&out, func(tx *state.Tx) error {
		if !tx.Clients.IsCurrent(uuid, conn) {
			stale = true
			return nil
		}
		client, err := tx.Clients.Lookup(uuid)
		if err != nil {
			return err
		}
		if !client.InLobby() {
			if m, err := tx.Sessions.Get(client.SessionID); err == nil {
				// A match that already finished has told its players
				// everything; it only needs clearing away.
				if m.Abandon() {
					abandoned = m.ID()
					c.noticeLeaving(tx, m, uuid, client.Name, &out)
				}
				c.teardown(tx, m)
			}
		}
		tx.Clients.Remove(uuid)
		c.lobbyFrames(tx, &out)
		c.observe(tx)
		return nil
	})
	if stale {
		c.logger.Debug("ignoring disconnect of superseded connection", zap.String("uuid", uuid), zap.String("conn", conn.ID()))
		return
	}
	if abandoned != "" {
		c.metrics.SessionEnded("abandoned")
		c.logger.Info("session abandoned", zap.String("game_id", abandoned), zap.String("uuid", uuid))
	}
	c.logger.Info("client disconnected", zap.String("uuid", uuid))
}

// BroadcastLobby sends the open session list to every lobby client.
func (c *Coordinator) BroadcastLobby() error {
	var out outbox
	_ = c.commit(&out, func(tx *state.Tx) error {
		c.lobbyFrames(tx, &out)
		c.observe(tx)
		return nil
	})
	c.metrics.LobbyPushed()
	return out.failed
}

// Notify sends err to conn as an error frame.
func (c *Coordinator) Notify(conn state.Conn, uuid string, err error) {
	var out outbox
	_ = c.commit(&out, func(*state.Tx) error {
		out.add(conn, uuid, protocol.NewError(describe(err)))
		return nil
	})
}

// noticeLeaving queues opponent_disconnected for everyone in m but uuid.
func (c *Coordinator) noticeLeaving(tx *state.Tx, m *match.Match, uuid, name string, out *outbox) {
	leaver := name
	for _, p := range m.Participants() {
		if p.UUID == uuid {
			leaver = p.Name
		}
	}
	for _, p := range m.Participants() {
		if p.UUID == uuid {
			continue
		}
		if pc, err := tx.Clients.ResolveConn(p.UUID); err == nil {
			out.add(pc, p.UUID, protocol.NewOpponentDisconnected(m.ID(), leaver))
		}
	}
}

// teardown destroys m and returns its players to the lobby.
//
// Precondition: called inside a store transaction.
func (c *Coordinator) teardown(tx *state.Tx, m *match.Match) {
	tx.Sessions.Destroy(m.ID())
	for _, p := range m.Participants() {
		client, err := tx.Clients.Lookup(p.UUID)
		if err != nil || client.SessionID != m.ID() {
			continue
		}
		_ = tx.Clients.UnbindSession(p.UUID)
	}
}

// lobbyFrames queues the open list for every lobby client.
func (c *Coordinator) lobbyFrames(tx *state.Tx, out *outbox) {
	games := protocol.NewAvailableGames(tx.Sessions.ListOpen())
	for _, conn := range tx.Clients.LobbyConns() {
		out.add(conn, "", games)
	}
}

func (c *Coordinator) observe(tx *state.Tx) {
	c.metrics.Population(tx.Clients.Len(), tx.Sessions.Len(), tx.Sessions.OpenLen())
}

// commit runs fn in a store transaction and, still holding the lock, hands
// every frame fn queued to its connection. Frames are delivered whether or
// not fn fails; delivery errors land in out.failed.
func (c *Coordinator) commit(out *outbox, fn func(tx *state.Tx) error) error {
	return c.store.Update(func(tx *state.Tx) error {
		err := fn(tx)
		out.failed = c.flush(*out)
		return err
	})
}

// flush hands every queued frame to its connection. Conn.Send only enqueues,
// so this is safe under the store lock. A failed send is logged and counted;
// it does not stop delivery to the remaining recipients.
func (c *Coordinator) flush(out outbox) error {
	if out.err != nil {
		c.logger.Error("encoding outbound frame", zap.Error(out.err))
	}
	var failed error
	for _, d := range out.items {
		if err := d.conn.Send(d.frame); err != nil {
			c.metrics.SendFailed()
			c.logger.Warn("send failed",
				zap.String("uuid", d.uuid),
				zap.String("conn", d.conn.ID()),
				zap.Error(err),
			)
			failed = errors.Join(failed, fmt.Errorf("%w: %w", ErrTransportFailure, err))
		}
	}
	return errors.Join(out.err, failed)
}

// authorize returns the client for uuid if conn is its current connection.
func authorize(tx *state.Tx, conn state.Conn, uuid string) (state.Client, error) {
	if uuid == "" || !tx.Clients.IsCurrent(uuid, conn) {
		return state.Client{}, ErrUnknownIdentity
	}
	return tx.Clients.Lookup(uuid)
}
