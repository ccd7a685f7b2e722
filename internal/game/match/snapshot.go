package match

import "github.com/cory-johannsen/tictactoe/internal/game/rules"

// Snapshot is an immutable copy of a match's state, shaped for clients.
// It shares no memory with the live match.
type Snapshot struct {
	GameID  string      `json:"game_id"`
	Board   rules.Board `json:"board"`
	Turn    rules.Mark  `json:"turn"`
	Status  Status      `json:"status"`
	Players Slots       `json:"players"`
	Winner  *rules.Mark `json:"winner"`
}

// Slots holds both player slots; an empty slot encodes as null.
type Slots struct {
	X *Player `json:"X"`
	O *Player `json:"O"`
}

// Snapshot copies the current state.
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		GameID: m.id,
		Board:  m.board,
		Turn:   m.turn,
		Status: m.status,
	}
	if p := m.players[rules.X]; p != nil {
		cp := *p
		s.Players.X = &cp
	}
	if p := m.players[rules.O]; p != nil {
		cp := *p
		s.Players.O = &cp
	}
	if m.winner != rules.Empty {
		w := m.winner
		s.Winner = &w
	}
	return s
}
