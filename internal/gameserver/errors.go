package gameserver

import (
	"errors"

	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/state"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
)

var (
	// ErrUnknownIdentity is returned when a frame names an unregistered client
	// or arrives on a connection that is no longer the client's current one.
	ErrUnknownIdentity = errors.New("unknown identity")
	// ErrAlreadyInSession is returned for create/join while bound to a session.
	ErrAlreadyInSession = errors.New("already in a session")
	// ErrInapplicableAction is returned for actions not valid in the caller's membership.
	ErrInapplicableAction = errors.New("inapplicable action")
	// ErrNotRegistered is returned when the first frame on a connection is not register.
	ErrNotRegistered = errors.New("first message must be register")
	// ErrStaleSession is returned when a client's bound session no longer exists.
	ErrStaleSession = errors.New("bound session no longer exists")
	// ErrTransportFailure wraps a failed outbound send.
	ErrTransportFailure = errors.New("transport failure")
)

// clientText maps errors to the message shown to clients.
var clientText = []struct {
	err  error
	text string
}{
	{ErrUnknownIdentity, "Client not fully registered or using an old connection."},
	{ErrAlreadyInSession, "You are already in a game."},
	{ErrNotRegistered, "First message must be a valid register request."},
	{ErrStaleSession, "Was in invalid game state, returning to lobby."},
	{state.ErrInvalidIdentity, "Invalid register request: missing UUID or name."},
	{state.ErrNotJoinable, "Game not found or is full."},
	{match.ErrNotActive, "Game is not active"},
	{match.ErrNotAPlayer, "Player not in game"},
	{match.ErrOutOfTurn, "Not your turn"},
	{match.ErrOutOfBounds, "Invalid position"},
	{match.ErrCellOccupied, "Position already occupied"},
}

// describe returns the client-facing text for err.
func describe(err error) string {
	var me *protocol.MalformedError
	if errors.As(err, &me) {
		return me.Reason
	}
	var ia *inapplicableError
	if errors.As(err, &ia) {
		return ia.text
	}
	for _, ct := range clientText {
		if errors.Is(err, ct.err) {
			return ct.text
		}
	}
	return err.Error()
}

// inapplicableError carries the client text for an ErrInapplicableAction.
type inapplicableError struct {
	text string
}

func (e *inapplicableError) Error() string { return ErrInapplicableAction.Error() + ": " + e.text }

func (e *inapplicableError) Is(target error) bool { return target == ErrInapplicableAction }

// moveOutcome labels a move result for metrics.
func moveOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, match.ErrNotActive):
		return "not_active"
	case errors.Is(err, match.ErrNotAPlayer):
		return "not_a_player"
	case errors.Is(err, match.ErrOutOfTurn):
		return "out_of_turn"
	case errors.Is(err, match.ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, match.ErrCellOccupied):
		return "cell_occupied"
	default:
		return "rejected"
	}
}
