package gameserver_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tictactoe/internal/game/rules"
	"github.com/cory-johannsen/tictactoe/internal/game/state"
	"github.com/cory-johannsen/tictactoe/internal/gameserver"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
)

// fakePeer is an in-memory connection. Frames queued on in are returned by
// ReadFrame; closing in simulates the client hanging up.
type fakePeer struct {
	id string
	in chan []byte

	mu     sync.Mutex
	out    [][]byte
	broken bool
	closed bool
}

func newPeer(id string) *fakePeer {
	return &fakePeer{id: id, in: make(chan []byte, 64)}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broken {
		return errors.New("broken pipe")
	}
	p.out = append(p.out, append([]byte(nil), frame...))
	return nil
}

func (p *fakePeer) ReadFrame() ([]byte, error) {
	frame, ok := <-p.in
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) breakSends() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broken = true
}

// push queues a frame built from kv pairs.
func (p *fakePeer) push(t *testing.T, msg map[string]any) {
	t.Helper()
	frame, err := json.Marshal(msg)
	require.NoError(t, err)
	p.in <- frame
}

// take returns and clears every frame sent so far, decoded.
func (p *fakePeer) take(t *testing.T) []map[string]any {
	t.Helper()
	p.mu.Lock()
	frames := p.out
	p.out = nil
	p.mu.Unlock()

	msgs := make([]map[string]any, 0, len(frames))
	for _, f := range frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		msgs = append(msgs, m)
	}
	return msgs
}

func actions(msgs []map[string]any) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fmt.Sprint(m["action"]))
	}
	return out
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("g%d", n)
	}
}

func newCoordinator(t *testing.T) (*gameserver.Coordinator, *state.Store) {
	t.Helper()
	store := state.NewStore(rules.Classic{}, sequentialIDs())
	return gameserver.NewCoordinator(store, zaptest.NewLogger(t), nil), store
}

// registered returns a peer registered as uuid with its outbox cleared.
func registered(t *testing.T, c *gameserver.Coordinator, connID, uuid, name string) *fakePeer {
	t.Helper()
	p := newPeer(connID)
	require.NoError(t, c.Register(p, protocol.Register{UUID: uuid, Name: name}))
	p.take(t)
	return p
}

// started returns two peers in an active game g1, A as X and B as O.
func started(t *testing.T, c *gameserver.Coordinator) (a, b *fakePeer) {
	t.Helper()
	a = registered(t, c, "ca", "ua", "Alice")
	b = registered(t, c, "cb", "ub", "Bob")
	require.NoError(t, c.CreateGame(a, "ua"))
	require.NoError(t, c.JoinGame(b, "ub", "g1"))
	a.take(t)
	b.take(t)
	return a, b
}

// wait blocks until at least n frames have been sent, then takes them.
func (p *fakePeer) wait(t *testing.T, n int) []map[string]any {
	t.Helper()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.out) >= n
	}, 2*time.Second, time.Millisecond, "peer %s: waiting for %d frames", p.id, n)
	return p.take(t)
}

// gatedPeer queues frames the way a websocket connection does, but its
// writer holds everything back until release is called.
type gatedPeer struct {
	*fakePeer
	queue chan []byte
	gate  chan struct{}
	done  chan struct{}
}

func newGatedPeer(id string) *gatedPeer {
	p := &gatedPeer{
		fakePeer: newPeer(id),
		queue:    make(chan []byte, 64),
		gate:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.write()
	return p
}

func (p *gatedPeer) Send(frame []byte) error {
	select {
	case p.queue <- frame:
		return nil
	default:
		return errors.New("send queue full")
	}
}

func (p *gatedPeer) write() {
	defer close(p.done)
	<-p.gate
	for frame := range p.queue {
		_ = p.fakePeer.Send(frame)
	}
}

// release lets the writer run, stops further sends and waits for the drain.
func (p *gatedPeer) release(t *testing.T) {
	t.Helper()
	close(p.gate)
	close(p.queue)
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("gated writer did not drain")
	}
}

// marks counts the occupied cells of a board frame.
func marks(t *testing.T, msg map[string]any) int {
	t.Helper()
	rows, ok := msg["board"].([]any)
	require.True(t, ok, "board must be a list: %v", msg["board"])
	n := 0
	for _, row := range rows {
		for _, cell := range row.([]any) {
			if cell != "" {
				n++
			}
		}
	}
	return n
}
