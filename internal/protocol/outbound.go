package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/rules"
	"github.com/cory-johannsen/tictactoe/internal/game/state"
)

// Outbound action names.
const (
	EventRegistered           = "registered"
	EventRejoinGame           = "rejoin_game"
	EventAvailableGames       = "available_games_update"
	EventGameCreated          = "game_created"
	EventGameStart            = "game_start"
	EventGameError            = "game_error"
	EventGameUpdate           = "game_update"
	EventGameOver             = "game_over"
	EventMoveError            = "move_error"
	EventOpponentDisconnected = "opponent_disconnected"
	EventError                = "error"
)

// Registered confirms a registration.
type Registered struct {
	Action string `json:"action"`
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
}

// GameState carries a full session snapshot with the recipient's mark.
// It is used for rejoin_game and game_created.
type GameState struct {
	Action      string         `json:"action"`
	GameID      string         `json:"game_id"`
	State       match.Snapshot `json:"game_state"`
	PlayerPiece rules.Mark     `json:"player_piece"`
}

// AvailableGames lists the open sessions.
type AvailableGames struct {
	Action string            `json:"action"`
	Games  []state.OpenEntry `json:"games"`
}

// GameStart announces that both slots are filled.
type GameStart struct {
	Action string         `json:"action"`
	GameID string         `json:"game_id"`
	State  match.Snapshot `json:"game_state"`
}

// GameError reports a session-level failure such as an unjoinable target.
type GameError struct {
	Action  string `json:"action"`
	GameID  string `json:"game_id"`
	Message string `json:"message"`
}

// GameUpdate carries the board after a non-terminal move.
type GameUpdate struct {
	Action   string      `json:"action"`
	GameID   string      `json:"game_id"`
	Board    rules.Board `json:"board"`
	NextTurn rules.Mark  `json:"next_turn_piece"`
}

// GameOver carries the final board. Winner is null on a tie.
type GameOver struct {
	Action string      `json:"action"`
	GameID string      `json:"game_id"`
	Board  rules.Board `json:"board"`
	Winner *rules.Mark `json:"winner_piece"`
	IsTie  bool        `json:"is_tie"`
}

// MoveError rejects a move and echoes the unchanged board.
type MoveError struct {
	Action  string      `json:"action"`
	GameID  string      `json:"game_id"`
	Message string      `json:"message"`
	Board   rules.Board `json:"board"`
}

// OpponentDisconnected tells the remaining player the session ended.
type OpponentDisconnected struct {
	Action  string `json:"action"`
	GameID  string `json:"game_id"`
	Message string `json:"message"`
}

// Error is a generic rejection.
type Error struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// NewRegistered acknowledges a registration.
func NewRegistered(uuid, name string) Registered {
	return Registered{Action: EventRegistered, UUID: uuid, Name: name}
}

// NewRejoinGame replays a live session to a reconnecting player.
func NewRejoinGame(snap match.Snapshot, piece rules.Mark) GameState {
	return GameState{Action: EventRejoinGame, GameID: snap.GameID, State: snap, PlayerPiece: piece}
}

// NewGameCreated tells the creator its session is open and which mark it holds.
func NewGameCreated(snap match.Snapshot, piece rules.Mark) GameState {
	return GameState{Action: EventGameCreated, GameID: snap.GameID, State: snap, PlayerPiece: piece}
}

// NewAvailableGames never encodes a null list.
func NewAvailableGames(games []state.OpenEntry) AvailableGames {
	if games == nil {
		games = []state.OpenEntry{}
	}
	return AvailableGames{Action: EventAvailableGames, Games: games}
}

// NewGameStart announces that both seats are filled.
func NewGameStart(snap match.Snapshot) GameStart {
	return GameStart{Action: EventGameStart, GameID: snap.GameID, State: snap}
}

// NewGameError rejects a join for gameID.
func NewGameError(gameID, message string) GameError {
	return GameError{Action: EventGameError, GameID: gameID, Message: message}
}

// NewGameUpdate carries the board after an accepted, non-terminal move.
func NewGameUpdate(gameID string, board rules.Board, next rules.Mark) GameUpdate {
	return GameUpdate{Action: EventGameUpdate, GameID: gameID, Board: board, NextTurn: next}
}

// NewGameOver carries the final board. winner is Empty on a tie.
func NewGameOver(gameID string, board rules.Board, winner rules.Mark, tie bool) GameOver {
	out := GameOver{Action: EventGameOver, GameID: gameID, Board: board, IsTie: tie}
	if winner != rules.Empty {
		out.Winner = &winner
	}
	return out
}

// NewMoveError rejects a move and echoes the unchanged board.
func NewMoveError(gameID, message string, board rules.Board) MoveError {
	return MoveError{Action: EventMoveError, GameID: gameID, Message: message, Board: board}
}

// NewOpponentDisconnected tells the remaining player who left.
func NewOpponentDisconnected(gameID, leaverName string) OpponentDisconnected {
	return OpponentDisconnected{
		Action:  EventOpponentDisconnected,
		GameID:  gameID,
		Message: fmt.Sprintf("%s disconnected. Game ended.", leaverName),
	}
}

// NewError is a generic rejection with a client-facing message.
func NewError(message string) Error {
	return Error{Action: EventError, Message: message}
}

// Encode serializes an outbound payload into one text frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return data, nil
}
