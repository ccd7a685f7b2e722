package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/rules"
)

// SessionIDLen is the number of hex characters in a session id (48 bits).
const SessionIDLen = 12

// ErrNotJoinable is returned when a join target is missing, full, or finished.
var ErrNotJoinable = errors.New("game not found or is full")

// OpenEntry advertises a session awaiting its second player.
type OpenEntry struct {
	GameID      string `json:"game_id"`
	Player1Name string `json:"player1_name"`
	Player1UUID string `json:"player1_uuid"`
}

// NewSessionID returns SessionIDLen hex characters drawn from a random v4 UUID.
// The leading 12 hex digits of a v4 UUID carry no version bits.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:SessionIDLen]
}

// Directory owns every live session and the ordered subset still open for
// joining. It is not synchronized; use it only inside a Store transaction.
type Directory struct {
	engine   rules.Engine
	newID    func() string
	sessions map[string]*match.Match
	// open holds session ids in creation order.
	open []string
}

// NewDirectory creates an empty Directory.
//
// Precondition: engine must be non-nil. newID may be nil to use NewSessionID.
func NewDirectory(engine rules.Engine, newID func() string) *Directory {
	if newID == nil {
		newID = NewSessionID
	}
	return &Directory{
		engine:   engine,
		newID:    newID,
		sessions: make(map[string]*match.Match),
	}
}

// Create allocates a fresh session for the creator and advertises it.
//
// Postcondition: The returned match is Waiting and listed by ListOpen.
func (d *Directory) Create(creatorUUID, creatorName string) *match.Match {
	id := d.newID()
	for d.sessions[id] != nil {
		id = d.newID()
	}
	m := match.New(id, d.engine, creatorUUID, creatorName)
	d.sessions[id] = m
	d.open = append(d.open, id)
	return m
}

// Join fills the second slot of an open session and withdraws its advertisement.
//
// Postcondition: Returns the now-active match, or an error wrapping ErrNotJoinable.
func (d *Directory) Join(id, joinerUUID, joinerName string) (*match.Match, error) {
	m, ok := d.sessions[id]
	if !ok || !d.isOpen(id) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotJoinable)
	}
	if err := m.Join(joinerUUID, joinerName); err != nil {
		return nil, fmt.Errorf("session %q: %w: %v", id, ErrNotJoinable, err)
	}
	d.withdraw(id)
	return m, nil
}

// Get returns the session with the given id.
func (d *Directory) Get(id string) (*match.Match, error) {
	m, ok := d.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return m, nil
}

// ListOpen returns the open sessions in creation order.
func (d *Directory) ListOpen() []OpenEntry {
	out := make([]OpenEntry, 0, len(d.open))
	for _, id := range d.open {
		creator := d.sessions[id].Creator()
		out = append(out, OpenEntry{
			GameID:      id,
			Player1Name: creator.Name,
			Player1UUID: creator.UUID,
		})
	}
	return out
}

// Destroy removes the session and its advertisement. Destroying an unknown id
// is a no-op.
func (d *Directory) Destroy(id string) {
	delete(d.sessions, id)
	d.withdraw(id)
}

// Len returns the number of live sessions.
func (d *Directory) Len() int {
	return len(d.sessions)
}

// OpenLen returns the number of advertised sessions.
func (d *Directory) OpenLen() int {
	return len(d.open)
}

func (d *Directory) isOpen(id string) bool {
	for _, open := range d.open {
		if open == id {
			return true
		}
	}
	return false
}

func (d *Directory) withdraw(id string) {
	for i, open := range d.open {
		if open == id {
			d.open = append(d.open[:i], d.open[i+1:]...)
			return
		}
	}
}
