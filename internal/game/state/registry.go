// Package state owns the coordinator's shared mutable state: the identity
// registry and the session directory. Both are reachable only through a
// Store transaction, which holds the single process-wide lock.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// MaxIdentityLen bounds client identifiers and display names.
const MaxIdentityLen = 128

var (
	// ErrNotFound is returned when a client or session does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidIdentity is returned for empty or malformed identifiers and names.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrDisconnected is returned when a known client has no live connection.
	ErrDisconnected = errors.New("client disconnected")
)

// Conn is an outbound route to one physical connection.
type Conn interface {
	// ID identifies the physical connection for logging and staleness checks.
	ID() string
	// Send queues one complete text frame for delivery. It must not block:
	// frames are handed over while the store lock is held, and each
	// connection must deliver them in the order Send was called.
	Send(frame []byte) error
}

// Client is a registered client's record. Values returned from the registry
// are copies.
type Client struct {
	UUID string
	Name string
	// Conn is nil while the client has no live connection.
	Conn Conn
	// SessionID is empty while the client is in the lobby.
	SessionID string
}

// InLobby reports whether the client has no bound session.
func (c Client) InLobby() bool { return c.SessionID == "" }

// Registry maps client identifiers to their connection and session membership.
// It is not synchronized; use it only inside a Store transaction.
type Registry struct {
	clients map[string]*Client
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// ValidateIdentity checks a client identifier and display name.
//
// Postcondition: Returns nil, or an error wrapping ErrInvalidIdentity.
func ValidateIdentity(uuid, name string) error {
	if err := validateField("uuid", uuid); err != nil {
		return err
	}
	return validateField("name", name)
}

func validateField(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidIdentity, field)
	}
	if len(v) > MaxIdentityLen {
		return fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidIdentity, field, MaxIdentityLen)
	}
	if strings.IndexFunc(v, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: %s contains control characters", ErrInvalidIdentity, field)
	}
	return nil
}

// Register creates a record for uuid or, if one exists, replaces its name and
// connection while leaving session membership untouched.
//
// Postcondition: Returns the client's bound session id ("" for lobby), or an
// error wrapping ErrInvalidIdentity.
func (r *Registry) Register(uuid, name string, conn Conn) (string, error) {
	if err := ValidateIdentity(uuid, name); err != nil {
		return "", err
	}
	if c, ok := r.clients[uuid]; ok {
		c.Name = name
		c.Conn = conn
		return c.SessionID, nil
	}
	r.clients[uuid] = &Client{UUID: uuid, Name: name, Conn: conn}
	return "", nil
}

// Lookup returns a copy of the record for uuid.
func (r *Registry) Lookup(uuid string) (Client, error) {
	c, ok := r.clients[uuid]
	if !ok {
		return Client{}, fmt.Errorf("client %q: %w", uuid, ErrNotFound)
	}
	return *c, nil
}

// BindSession records that uuid is a participant of sessionID.
func (r *Registry) BindSession(uuid, sessionID string) error {
	c, ok := r.clients[uuid]
	if !ok {
		return fmt.Errorf("client %q: %w", uuid, ErrNotFound)
	}
	c.SessionID = sessionID
	return nil
}

// UnbindSession returns uuid to the lobby.
func (r *Registry) UnbindSession(uuid string) error {
	c, ok := r.clients[uuid]
	if !ok {
		return fmt.Errorf("client %q: %w", uuid, ErrNotFound)
	}
	c.SessionID = ""
	return nil
}

// Remove deletes the record for uuid. Removing an unknown uuid is a no-op.
func (r *Registry) Remove(uuid string) {
	delete(r.clients, uuid)
}

// ResolveConn returns the current connection for uuid.
//
// Postcondition: Returns an error wrapping ErrNotFound or ErrDisconnected when
// no route exists.
func (r *Registry) ResolveConn(uuid string) (Conn, error) {
	c, ok := r.clients[uuid]
	if !ok {
		return nil, fmt.Errorf("client %q: %w", uuid, ErrNotFound)
	}
	if c.Conn == nil {
		return nil, fmt.Errorf("client %q: %w", uuid, ErrDisconnected)
	}
	return c.Conn, nil
}

// IsCurrent reports whether conn is the live connection registered for uuid.
func (r *Registry) IsCurrent(uuid string, conn Conn) bool {
	c, ok := r.clients[uuid]
	return ok && c.Conn != nil && conn != nil && c.Conn.ID() == conn.ID()
}

// LobbyConns returns the connections of every connected client with no bound
// session, ordered by client identifier.
func (r *Registry) LobbyConns() []Conn {
	uuids := make([]string, 0, len(r.clients))
	for uuid, c := range r.clients {
		if c.InLobby() && c.Conn != nil {
			uuids = append(uuids, uuid)
		}
	}
	sort.Strings(uuids)
	conns := make([]Conn, 0, len(uuids))
	for _, uuid := range uuids {
		conns = append(conns, r.clients[uuid].Conn)
	}
	return conns
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.clients)
}
