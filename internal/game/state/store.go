package state

import (
	"sync"

	"github.com/cory-johannsen/tictactoe/internal/game/rules"
)

// Tx exposes the registry and directory for the duration of one Store.Update
// call. It must not be retained after the callback returns.
type Tx struct {
	Clients  *Registry
	Sessions *Directory
}

// Store guards the registry and directory with one mutex so that compound
// updates spanning both stay consistent.
type Store struct {
	mu  sync.Mutex
	reg *Registry
	dir *Directory
}

// NewStore creates an empty Store.
//
// Precondition: engine must be non-nil. newID may be nil to use NewSessionID.
func NewStore(engine rules.Engine, newID func() string) *Store {
	return &Store{
		reg: NewRegistry(),
		dir: NewDirectory(engine, newID),
	}
}

// Update runs fn while holding the store lock and returns its error.
// fn must not block; handing frames to Conn.Send is allowed.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{Clients: s.reg, Sessions: s.dir})
}
