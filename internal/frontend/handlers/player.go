// Package handlers provides the session logic frontends share: command
// senders and the Telnet login and command loop.
package handlers

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.minekube.com/common/minecraft/component"
)

// Output delivers a rendered message to a frontend.
type Output func(msg component.Component) error

// Player is a command sender backed by a frontend output. It is used for
// Telnet players and the console alike.
//
// Player is safe for concurrent use.
type Player struct {
	name   string
	id     uuid.UUID
	player bool
	out    Output

	mu    sync.RWMutex
	perms map[string]bool
}

// OfflineUUID derives a stable id from a player name, the way offline-mode
// servers identify players.
func OfflineUUID(name string) uuid.UUID {
	return uuid.NewMD5(uuid.NameSpaceOID, []byte("OfflinePlayer:"+name))
}

// NewPlayer creates a player named name.
//
// Precondition: out must be non-nil.
func NewPlayer(name string, out Output, perms ...string) *Player {
	return newSender(name, OfflineUUID(name), true, out, perms)
}

// NewConsole creates the console sender.
//
// Precondition: out must be non-nil.
func NewConsole(name string, out Output, perms ...string) *Player {
	return newSender(name, uuid.Nil, false, out, perms)
}

func newSender(name string, id uuid.UUID, player bool, out Output, perms []string) *Player {
	p := &Player{name: name, id: id, player: player, out: out, perms: make(map[string]bool, len(perms))}
	for _, perm := range perms {
		p.perms[strings.ToLower(perm)] = true
	}
	return p
}

func (p *Player) Name() string        { return p.name }
func (p *Player) UniqueID() uuid.UUID { return p.id }
func (p *Player) IsPlayer() bool      { return p.player }

// HasPermission reports whether perm, or "*", was granted.
func (p *Player) HasPermission(perm string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.perms["*"] || p.perms[strings.ToLower(perm)]
}

// Grant adds permissions.
func (p *Player) Grant(perms ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, perm := range perms {
		p.perms[strings.ToLower(perm)] = true
	}
}

// Revoke removes permissions.
func (p *Player) Revoke(perms ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, perm := range perms {
		delete(p.perms, strings.ToLower(perm))
	}
}

// SendMessage delivers msg through the frontend output.
func (p *Player) SendMessage(msg component.Component) error {
	return p.out(msg)
}
