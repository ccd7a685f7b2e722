package protocol

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/rules"
	"github.com/cory-johannsen/tictactoe/internal/game/state"
)

func TestDecode_Register(t *testing.T) {
	msg, err := Decode([]byte(`{"action":"register","uuid":"u1","name":"Alice"}`))
	require.NoError(t, err)
	assert.Equal(t, Register{UUID: "u1", Name: "Alice"}, msg)
	assert.Equal(t, ActionRegister, msg.Action())
	assert.Equal(t, "u1", msg.Sender())
}

func TestDecode_RegisterWithoutIdentityIsNotMalformed(t *testing.T) {
	msg, err := Decode([]byte(`{"action":"register"}`))
	require.NoError(t, err)
	assert.Equal(t, Register{Name: DefaultName}, msg)
}

func TestDecode_RegisterNameDefaults(t *testing.T) {
	msg, err := Decode([]byte(`{"action":"register","uuid":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, Register{UUID: "u1", Name: "Anonymous"}, msg)

	// An explicit empty name is passed through for registration to reject.
	msg, err = Decode([]byte(`{"action":"register","uuid":"u1","name":""}`))
	require.NoError(t, err)
	assert.Equal(t, Register{UUID: "u1", Name: ""}, msg)
}

func TestDecode_LenientCoordinates(t *testing.T) {
	cases := []struct {
		y, x     string
		row, col int
	}{
		{`1`, `2`, 1, 2},
		{`1.0`, `2.0`, 1, 2},
		{`"1"`, `"2"`, 1, 2},
		{`" 0 "`, `2`, 0, 2},
		{`1.9`, `0`, 1, 0},
		{`-1`, `3`, -1, 3},
		{`1e0`, `0`, 1, 0},
	}
	for _, tc := range cases {
		frame := `{"action":"make_move","uuid":"u1","y":` + tc.y + `,"x":` + tc.x + `}`
		msg, err := Decode([]byte(frame))
		require.NoError(t, err, frame)
		assert.Equal(t, MakeMove{UUID: "u1", Row: tc.row, Col: tc.col}, msg, frame)
	}
}

func TestAction_Known(t *testing.T) {
	for _, a := range []Action{ActionRegister, ActionCreateGame, ActionJoinGame, ActionMakeMove, ActionListGames} {
		assert.True(t, a.Known(), string(a))
	}
	assert.False(t, Action("dance").Known())
	assert.False(t, Action("").Known())
}

func TestDecode_Variants(t *testing.T) {
	cases := []struct {
		frame string
		want  Message
	}{
		{`{"action":"create_game","uuid":"u1"}`, CreateGame{UUID: "u1"}},
		{`{"action":"join_game","uuid":"u1","game_id":"g1"}`, JoinGame{UUID: "u1", GameID: "g1"}},
		{`{"action":"make_move","uuid":"u1","game_id":"g1","y":2,"x":0}`, MakeMove{UUID: "u1", GameID: "g1", Row: 2, Col: 0}},
		{`{"action":"make_move","uuid":"u1","y":0,"x":1}`, MakeMove{UUID: "u1", Row: 0, Col: 1}},
		{`{"action":"list_games","uuid":"u1"}`, ListGames{UUID: "u1"}},
		{`{"action":"dance","uuid":"u1"}`, Unknown{Name: "dance", UUID: "u1"}},
	}
	for _, tc := range cases {
		msg, err := Decode([]byte(tc.frame))
		require.NoError(t, err, tc.frame)
		assert.Equal(t, tc.want, msg, tc.frame)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct{ frame, reason string }{
		{`not json`, "Invalid JSON received."},
		{`{"uuid":"u1"}`, "Message is missing an action."},
		{`{"action":"create_game"}`, "Action 'create_game' requires a valid UUID."},
		{`{"action":"create_game","uuid":7}`, "Invalid JSON received."},
		{`{"action":"join_game","uuid":"u1"}`, "Join game request missing game_id."},
		{`{"action":"make_move","uuid":"u1","y":1}`, "Invalid coordinates."},
		{`{"action":"make_move","uuid":"u1","y":"a","x":1}`, "Invalid coordinates."},
		{`{"action":"make_move","uuid":"u1","y":true,"x":1}`, "Invalid coordinates."},
		{`{"action":"make_move","uuid":"u1","y":null,"x":1}`, "Invalid coordinates."},
		{`{"action":"make_move","uuid":"u1","y":[1],"x":1}`, "Invalid coordinates."},
		{`{"action":"make_move","uuid":"u1","y":1e12,"x":1}`, "Invalid coordinates."},
		{`{"action":"make_move","name":7,"uuid":"u1"}`, "Invalid JSON received."},
	}
	for _, tc := range cases {
		frame, reason := tc.frame, tc.reason
		_, err := Decode([]byte(frame))
		require.Error(t, err, frame)
		assert.ErrorIs(t, err, ErrMalformedMessage, frame)
		var me *MalformedError
		require.ErrorAs(t, err, &me, frame)
		assert.Equal(t, reason, me.Reason, frame)
	}
}

func TestEncode_AvailableGamesNeverNull(t *testing.T) {
	data, err := Encode(NewAvailableGames(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"available_games_update","games":[]}`, string(data))

	data, err = Encode(NewAvailableGames([]state.OpenEntry{{GameID: "g1", Player1Name: "Alice", Player1UUID: "a"}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"available_games_update","games":[{"game_id":"g1","player1_name":"Alice","player1_uuid":"a"}]}`, string(data))
}

func TestEncode_GameOver(t *testing.T) {
	var b rules.Board
	b[0] = [3]rules.Mark{rules.X, rules.X, rules.X}

	data, err := Encode(NewGameOver("g1", b, rules.X, false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"game_over","game_id":"g1","board":[["X","X","X"],["","",""],["","",""]],"winner_piece":"X","is_tie":false}`, string(data))

	data, err = Encode(NewGameOver("g1", b, rules.Empty, true))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"winner_piece":null`)
	assert.Contains(t, string(data), `"is_tie":true`)
}

func TestEncode_GameCreated(t *testing.T) {
	m := match.New("g1", rules.Classic{}, "a", "Alice")
	data, err := Encode(NewGameCreated(m.Snapshot(), rules.X))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"game_created"`)
	assert.Contains(t, string(data), `"player_piece":"X"`)
	assert.Contains(t, string(data), `"status":"waiting"`)
}

func TestEncode_OpponentDisconnected(t *testing.T) {
	data, err := Encode(NewOpponentDisconnected("g1", "Alice"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"opponent_disconnected","game_id":"g1","message":"Alice disconnected. Game ended."}`, string(data))
}

func TestOutboundConstructorsAreDocumented(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "outbound.go", nil, parser.ParseComments)
	require.NoError(t, err)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || !fn.Name.IsExported() {
			continue
		}
		assert.NotNil(t, fn.Doc, "%s has no doc comment", fn.Name.Name)
	}
}
