package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func board(rows ...string) Board {
	var b Board
	for r, row := range rows {
		for c, ch := range row {
			switch ch {
			case 'X':
				b[r][c] = X
			case 'O':
				b[r][c] = O
			}
		}
	}
	return b
}

func TestClassic_Rows(t *testing.T) {
	v := Classic{}.Evaluate(board("XXX", "OO.", "..."))
	assert.Equal(t, X, v.Winner)
	assert.False(t, v.Draw)
	assert.True(t, v.Terminal())
}

func TestClassic_Column(t *testing.T) {
	v := Classic{}.Evaluate(board("XO.", "XO.", ".OX"))
	assert.Equal(t, O, v.Winner)
}

func TestClassic_Diagonals(t *testing.T) {
	assert.Equal(t, X, Classic{}.Evaluate(board("XO.", "OX.", "..X")).Winner)
	assert.Equal(t, O, Classic{}.Evaluate(board("X.O", "XO.", "O.X")).Winner)
}

func TestClassic_Draw(t *testing.T) {
	v := Classic{}.Evaluate(board("XOX", "XOO", "OXX"))
	assert.Equal(t, Empty, v.Winner)
	assert.True(t, v.Draw)
	assert.True(t, v.Terminal())
}

func TestClassic_InProgress(t *testing.T) {
	v := Classic{}.Evaluate(board("X..", ".O.", "..."))
	assert.False(t, v.Terminal())
}

func TestMark_Opponent(t *testing.T) {
	assert.Equal(t, O, X.Opponent())
	assert.Equal(t, X, O.Opponent())
}

func TestInBounds(t *testing.T) {
	assert.True(t, InBounds(0, 0))
	assert.True(t, InBounds(2, 2))
	assert.False(t, InBounds(-1, 0))
	assert.False(t, InBounds(0, 3))
}

func TestBoard_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(board("X..", ".O.", "..."))
	require.NoError(t, err)
	assert.JSONEq(t, `[["X","",""],["","O",""],["","",""]]`, string(data))
}

func TestBoard_ValueSemantics(t *testing.T) {
	a := board("X..", "...", "...")
	b := a
	b[1][1] = O
	assert.Equal(t, Empty, a[1][1])
}

func TestProperty_VerdictNeverBothWinnerAndDraw(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var b Board
		for r := 0; r < Size; r++ {
			for c := 0; c < Size; c++ {
				b[r][c] = rapid.SampledFrom([]Mark{Empty, X, O}).Draw(rt, "cell")
			}
		}
		v := Classic{}.Evaluate(b)
		if v.Winner != Empty && v.Draw {
			rt.Fatalf("verdict has both winner %q and draw", v.Winner)
		}
		if v.Draw && !b.Full() {
			rt.Fatalf("draw declared on a board with empty cells")
		}
	})
}
