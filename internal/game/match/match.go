// Package match implements the authoritative state machine for a single
// two-player tic-tac-toe session.
package match

import (
	"errors"
	"sync"

	"github.com/cory-johannsen/tictactoe/internal/game/rules"
)

// Move rejections.
var (
	ErrNotActive    = errors.New("game is not active")
	ErrNotAPlayer   = errors.New("player not in game")
	ErrOutOfTurn    = errors.New("not your turn")
	ErrOutOfBounds  = errors.New("invalid position")
	ErrCellOccupied = errors.New("position already occupied")
	// ErrNotWaiting is returned by Join when the second slot is unavailable.
	ErrNotWaiting = errors.New("game is not awaiting a second player")
)

// Status is the lifecycle phase of a match. Transitions are monotonic:
// Waiting -> Active -> Finished.
type Status string

const (
	Waiting  Status = "waiting"
	Active   Status = "active"
	Finished Status = "finished"
)

func (s Status) rank() int {
	switch s {
	case Waiting:
		return 0
	case Active:
		return 1
	default:
		return 2
	}
}

// Player occupies one slot of a match.
type Player struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Outcome is the result of ApplyMove. Board is always populated: on success it
// is the board after the move, on rejection the board as it stood before.
type Outcome struct {
	Board    rules.Board
	Next     rules.Mark
	Terminal bool
	Winner   rules.Mark
	Tie      bool
}

// Match is one session's board, slots, and turn state.
// All methods are safe for concurrent use; moves are serialized per match.
type Match struct {
	id     string
	engine rules.Engine

	mu      sync.Mutex
	board   rules.Board
	players map[rules.Mark]*Player
	turn    rules.Mark
	status  Status
	winner  rules.Mark
}

// New creates a match awaiting its second player, with the creator holding X.
//
// Precondition: id, creatorUUID, and creatorName must be non-empty; engine must be non-nil.
// Postcondition: Returns a match in Waiting status with X to move.
func New(id string, engine rules.Engine, creatorUUID, creatorName string) *Match {
	return &Match{
		id:     id,
		engine: engine,
		players: map[rules.Mark]*Player{
			rules.X: {UUID: creatorUUID, Name: creatorName},
		},
		turn:   rules.X,
		status: Waiting,
	}
}

// ID returns the session identifier.
func (m *Match) ID() string { return m.id }

// Status returns the current lifecycle phase.
func (m *Match) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Join fills the O slot and activates the match.
//
// Postcondition: Status is Active, or ErrNotWaiting is returned and nothing changes.
func (m *Match) Join(uuid, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Waiting || m.players[rules.O] != nil {
		return ErrNotWaiting
	}
	m.players[rules.O] = &Player{UUID: uuid, Name: name}
	m.setStatus(Active)
	return nil
}

// SlotOf returns the mark held by uuid.
//
// Postcondition: Returns (mark, true) if uuid occupies a slot, or (Empty, false).
func (m *Match) SlotOf(uuid string) (rules.Mark, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotOf(uuid)
}

func (m *Match) slotOf(uuid string) (rules.Mark, bool) {
	for _, mark := range []rules.Mark{rules.X, rules.O} {
		if p := m.players[mark]; p != nil && p.UUID == uuid {
			return mark, true
		}
	}
	return rules.Empty, false
}

// ApplyMove places the caller's mark at (row, col).
//
// Validation order: status, membership, turn, bounds, occupancy. A rejected
// move leaves the match untouched.
//
// Postcondition: On success either the match is Finished with a winner or tie,
// or the turn has passed to the opponent.
func (m *Match) ApplyMove(uuid string, row, col int) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rejected := Outcome{Board: m.board, Next: m.turn}
	if m.status != Active {
		return rejected, ErrNotActive
	}
	mark, ok := m.slotOf(uuid)
	if !ok {
		return rejected, ErrNotAPlayer
	}
	if mark != m.turn {
		return rejected, ErrOutOfTurn
	}
	if !rules.InBounds(row, col) {
		return rejected, ErrOutOfBounds
	}
	if m.board[row][col] != rules.Empty {
		return rejected, ErrCellOccupied
	}

	m.board[row][col] = mark
	verdict := m.engine.Evaluate(m.board)
	if verdict.Terminal() {
		m.winner = verdict.Winner
		m.setStatus(Finished)
		return Outcome{
			Board:    m.board,
			Terminal: true,
			Winner:   verdict.Winner,
			Tie:      verdict.Draw,
		}, nil
	}

	m.turn = m.turn.Opponent()
	return Outcome{Board: m.board, Next: m.turn}, nil
}

// Abandon finishes the match without a winner, whatever the board holds.
//
// Postcondition: Status is Finished. Returns false if it already was.
func (m *Match) Abandon() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == Finished {
		return false
	}
	m.setStatus(Finished)
	return true
}

// Participants returns the occupied slots, X first.
func (m *Match) Participants() []Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Player, 0, 2)
	for _, mark := range []rules.Mark{rules.X, rules.O} {
		if p := m.players[mark]; p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// Creator returns the X player.
func (m *Match) Creator() Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.players[rules.X]
}

// setStatus never moves backwards.
func (m *Match) setStatus(s Status) {
	if s.rank() > m.status.rank() {
		m.status = s
	}
}
