// Package protocol defines the JSON text frames exchanged with clients.
// Inbound frames are decoded into one concrete Message type per action and
// validated before dispatch.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedMessage is returned for frames that cannot be parsed or lack
// required fields.
var ErrMalformedMessage = errors.New("malformed message")

// MalformedError describes why a frame was rejected. It matches
// ErrMalformedMessage under errors.Is.
type MalformedError struct {
	// Reason is the client-facing explanation.
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedMessage, e.Reason)
}

// Is reports whether target is ErrMalformedMessage.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedMessage
}

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

// Action names an inbound request.
type Action string

const (
	ActionRegister   Action = "register"
	ActionCreateGame Action = "create_game"
	ActionJoinGame   Action = "join_game"
	ActionMakeMove   Action = "make_move"
	ActionListGames  Action = "list_games"
)

// DefaultName is used when a register frame carries no name at all.
const DefaultName = "Anonymous"

// Known reports whether a is one of the actions the server handles.
func (a Action) Known() bool {
	switch a {
	case ActionRegister, ActionCreateGame, ActionJoinGame, ActionMakeMove, ActionListGames:
		return true
	}
	return false
}

// Message is a decoded inbound frame.
type Message interface {
	// Action returns the request's action name.
	Action() Action
	// Sender returns the client identifier carried in the frame.
	Sender() string
}

// Register announces a client's durable identifier and display name. A frame
// without a name key gets DefaultName; an explicitly empty name or missing
// UUID is left for registration to reject.
type Register struct {
	UUID string
	Name string
}

// CreateGame asks for a new session with the sender as X.
type CreateGame struct {
	UUID string
}

// JoinGame asks to take the O slot of an open session.
type JoinGame struct {
	UUID   string
	GameID string
}

// MakeMove places the sender's mark. GameID is optional; when present it must
// name the sender's current session.
type MakeMove struct {
	UUID   string
	GameID string
	Row    int
	Col    int
}

// ListGames asks for the open-session list.
type ListGames struct {
	UUID string
}

// Unknown carries an action name the server does not recognise.
type Unknown struct {
	Name string
	UUID string
}

func (Register) Action() Action   { return ActionRegister }
func (CreateGame) Action() Action { return ActionCreateGame }
func (JoinGame) Action() Action   { return ActionJoinGame }
func (MakeMove) Action() Action   { return ActionMakeMove }
func (ListGames) Action() Action  { return ActionListGames }
func (u Unknown) Action() Action  { return Action(u.Name) }

func (m Register) Sender() string   { return m.UUID }
func (m CreateGame) Sender() string { return m.UUID }
func (m JoinGame) Sender() string   { return m.UUID }
func (m MakeMove) Sender() string   { return m.UUID }
func (m ListGames) Sender() string  { return m.UUID }
func (m Unknown) Sender() string    { return m.UUID }

type inboundFrame struct {
	Action string          `json:"action"`
	UUID   string          `json:"uuid"`
	Name   *string         `json:"name"`
	GameID string          `json:"game_id"`
	Y      json.RawMessage `json:"y"`
	X      json.RawMessage `json:"x"`
}

// Decode parses one inbound frame.
//
// Postcondition: Returns a concrete Message, or a *MalformedError.
func Decode(frame []byte) (Message, error) {
	var in inboundFrame
	if err := json.Unmarshal(frame, &in); err != nil {
		return nil, malformed("Invalid JSON received.")
	}
	if in.Action == "" {
		return nil, malformed("Message is missing an action.")
	}

	action := Action(in.Action)
	if action == ActionRegister {
		name := DefaultName
		if in.Name != nil {
			name = *in.Name
		}
		return Register{UUID: in.UUID, Name: name}, nil
	}
	if in.UUID == "" {
		return nil, malformed("Action '%s' requires a valid UUID.", in.Action)
	}

	switch action {
	case ActionCreateGame:
		return CreateGame{UUID: in.UUID}, nil
	case ActionJoinGame:
		if in.GameID == "" {
			return nil, malformed("Join game request missing game_id.")
		}
		return JoinGame{UUID: in.UUID, GameID: in.GameID}, nil
	case ActionMakeMove:
		row, okY := coordinate(in.Y)
		col, okX := coordinate(in.X)
		if !okY || !okX {
			return nil, malformed("Invalid coordinates.")
		}
		return MakeMove{UUID: in.UUID, GameID: in.GameID, Row: row, Col: col}, nil
	case ActionListGames:
		return ListGames{UUID: in.UUID}, nil
	default:
		return Unknown{Name: in.Action, UUID: in.UUID}, nil
	}
}

// coordinate reads a board index given as a JSON number or a numeric string.
// Fractional numbers truncate toward zero. Range checks are left to the rules.
func coordinate(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return clampIndex(float64(i))
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return clampIndex(math.Trunc(f))
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func clampIndex(f float64) (int, bool) {
	if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
