package match

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/tictactoe/internal/game/rules"
)

func newActive(t *testing.T) *Match {
	t.Helper()
	m := New("g1", rules.Classic{}, "a", "Alice")
	require.NoError(t, m.Join("b", "Bob"))
	return m
}

func TestNew_Waiting(t *testing.T) {
	m := New("g1", rules.Classic{}, "a", "Alice")
	assert.Equal(t, Waiting, m.Status())
	mark, ok := m.SlotOf("a")
	assert.True(t, ok)
	assert.Equal(t, rules.X, mark)
	_, ok = m.SlotOf("b")
	assert.False(t, ok)
}

func TestJoin_Activates(t *testing.T) {
	m := newActive(t)
	assert.Equal(t, Active, m.Status())
	mark, ok := m.SlotOf("b")
	require.True(t, ok)
	assert.Equal(t, rules.O, mark)
	assert.Equal(t, []Player{{UUID: "a", Name: "Alice"}, {UUID: "b", Name: "Bob"}}, m.Participants())
}

func TestJoin_Full(t *testing.T) {
	m := newActive(t)
	assert.ErrorIs(t, m.Join("c", "Carol"), ErrNotWaiting)
}

func TestApplyMove_WaitingIsNotActive(t *testing.T) {
	m := New("g1", rules.Classic{}, "a", "Alice")
	_, err := m.ApplyMove("a", 0, 0)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestApplyMove_ValidationOrder(t *testing.T) {
	m := newActive(t)

	_, err := m.ApplyMove("stranger", 9, 9)
	assert.ErrorIs(t, err, ErrNotAPlayer)

	_, err = m.ApplyMove("b", 9, 9)
	assert.ErrorIs(t, err, ErrOutOfTurn)

	_, err = m.ApplyMove("a", 3, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	out, err := m.ApplyMove("a", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, rules.O, out.Next)
	assert.False(t, out.Terminal)

	out, err = m.ApplyMove("b", 1, 1)
	assert.ErrorIs(t, err, ErrCellOccupied)
	assert.Equal(t, rules.X, out.Board[1][1])
}

func TestApplyMove_TopRowWin(t *testing.T) {
	m := newActive(t)
	moves := []struct {
		uuid     string
		row, col int
	}{
		{"a", 0, 0}, {"b", 1, 1}, {"a", 0, 1}, {"b", 2, 2}, {"a", 0, 2},
	}
	var out Outcome
	var err error
	for _, mv := range moves {
		out, err = m.ApplyMove(mv.uuid, mv.row, mv.col)
		require.NoError(t, err)
	}
	assert.True(t, out.Terminal)
	assert.Equal(t, rules.X, out.Winner)
	assert.False(t, out.Tie)
	assert.Equal(t, Finished, m.Status())

	_, err = m.ApplyMove("b", 2, 0)
	assert.ErrorIs(t, err, ErrNotActive)

	snap := m.Snapshot()
	require.NotNil(t, snap.Winner)
	assert.Equal(t, rules.X, *snap.Winner)
}

func TestApplyMove_Draw(t *testing.T) {
	m := newActive(t)
	// X O X
	// X O O
	// O X X
	moves := []struct {
		uuid     string
		row, col int
	}{
		{"a", 0, 0}, {"b", 0, 1}, {"a", 0, 2},
		{"b", 1, 1}, {"a", 1, 0}, {"b", 1, 2},
		{"a", 2, 1}, {"b", 2, 0}, {"a", 2, 2},
	}
	var out Outcome
	var err error
	for _, mv := range moves {
		out, err = m.ApplyMove(mv.uuid, mv.row, mv.col)
		require.NoError(t, err)
	}
	assert.True(t, out.Terminal)
	assert.True(t, out.Tie)
	assert.Equal(t, rules.Empty, out.Winner)
	assert.Nil(t, m.Snapshot().Winner)
}

func TestAbandon(t *testing.T) {
	m := newActive(t)
	assert.True(t, m.Abandon())
	assert.False(t, m.Abandon())
	assert.Equal(t, Finished, m.Status())
	_, err := m.ApplyMove("a", 0, 0)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestSnapshot_DoesNotAlias(t *testing.T) {
	m := newActive(t)
	before := m.Snapshot()
	_, err := m.ApplyMove("a", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, rules.Empty, before.Board[0][0])
	before.Players.X.Name = "Mallory"
	assert.Equal(t, "Alice", m.Creator().Name)
}

func TestSnapshot_JSON(t *testing.T) {
	m := New("g1", rules.Classic{}, "a", "Alice")
	data, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"game_id": "g1",
		"board": [["","",""],["","",""],["","",""]],
		"turn": "X",
		"status": "waiting",
		"players": {"X": {"uuid": "a", "name": "Alice"}, "O": null},
		"winner": null
	}`, string(data))
}

func TestApplyMove_ConcurrentSameCell(t *testing.T) {
	m := newActive(t)
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ApplyMove("a", 0, 0)
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	var ok int
	for err := range results {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

// Random play: every accepted move alternates the mark, rejected moves never
// mutate the board, and nothing is accepted once the match is finished.
func TestProperty_RandomPlay(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := New("g", rules.Classic{}, "a", "Alice")
		if err := m.Join("b", "Bob"); err != nil {
			rt.Fatal(err)
		}
		last := rules.Empty
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			who := rapid.SampledFrom([]string{"a", "b"}).Draw(rt, "who")
			row := rapid.IntRange(-1, 3).Draw(rt, "row")
			col := rapid.IntRange(-1, 3).Draw(rt, "col")

			before := m.Snapshot()
			out, err := m.ApplyMove(who, row, col)
			if err != nil {
				after := m.Snapshot()
				if after.Board != before.Board {
					rt.Fatalf("rejected move %v mutated the board", err)
				}
				if before.Status == Finished && err != ErrNotActive {
					rt.Fatalf("finished match returned %v, want ErrNotActive", err)
				}
				if err == ErrCellOccupied && out.Board != before.Board {
					rt.Fatalf("rejection outcome does not carry the current board")
				}
				continue
			}
			mark, _ := m.SlotOf(who)
			if mark == last {
				rt.Fatalf("mark %s moved twice in a row", mark)
			}
			last = mark
			if !out.Terminal && out.Next != mark.Opponent() {
				rt.Fatalf("next turn %s after %s", out.Next, mark)
			}
		}
	})
}
