// Package rules implements the tic-tac-toe rules engine: board representation
// and terminal-condition evaluation.
package rules

import "encoding/json"

// Size is the board edge length.
const Size = 3

// Mark is a player token placed on the board. The zero value is an empty cell.
type Mark string

const (
	// Empty marks an unoccupied cell.
	Empty Mark = ""
	// X is the first player's mark. X always moves first.
	X Mark = "X"
	// O is the second player's mark.
	O Mark = "O"
)

// Opponent returns the other player's mark.
//
// Precondition: m must be X or O.
func (m Mark) Opponent() Mark {
	if m == X {
		return O
	}
	return X
}

// Board is a 3x3 grid indexed [row][col]. It is a value type: assigning or
// passing a Board copies every cell.
type Board [Size][Size]Mark

// InBounds reports whether (row, col) addresses a cell on the board.
func InBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// Full reports whether every cell is occupied.
func (b Board) Full() bool {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] == Empty {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the board as a 3x3 array of strings ("" for empty).
func (b Board) MarshalJSON() ([]byte, error) {
	rows := make([][]string, Size)
	for r := 0; r < Size; r++ {
		rows[r] = make([]string, Size)
		for c := 0; c < Size; c++ {
			rows[r][c] = string(b[r][c])
		}
	}
	return json.Marshal(rows)
}

// Verdict is the rules engine's evaluation of a board.
type Verdict struct {
	// Winner is the mark holding a complete line, or Empty.
	Winner Mark
	// Draw is true when the board is full and no line is complete.
	Draw bool
}

// Terminal reports whether the verdict ends the game.
func (v Verdict) Terminal() bool {
	return v.Winner != Empty || v.Draw
}

// Engine evaluates a board for a terminal condition.
type Engine interface {
	Evaluate(b Board) Verdict
}

// Classic is the standard three-in-a-row Engine.
type Classic struct{}

// Evaluate checks rows, then columns, then both diagonals for a winning line,
// and declares a draw when the board is full with no winner.
//
// Postcondition: At most one of Winner != Empty and Draw holds.
func (Classic) Evaluate(b Board) Verdict {
	for r := 0; r < Size; r++ {
		if line(b[r][0], b[r][1], b[r][2]) {
			return Verdict{Winner: b[r][0]}
		}
	}
	for c := 0; c < Size; c++ {
		if line(b[0][c], b[1][c], b[2][c]) {
			return Verdict{Winner: b[0][c]}
		}
	}
	if line(b[0][0], b[1][1], b[2][2]) {
		return Verdict{Winner: b[0][0]}
	}
	if line(b[0][2], b[1][1], b[2][0]) {
		return Verdict{Winner: b[0][2]}
	}
	return Verdict{Draw: b.Full()}
}

func line(a, b, c Mark) bool {
	return a != Empty && a == b && b == c
}
