package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.minekube.com/common/minecraft/component"
	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/command"
)

// VanishSeePermission lets a sender see vanished players. {plugin_name} is
// the lowercase plugin name.
const VanishSeePermission = "{plugin_name}.vanish.see"

// ErrAlreadyOnline is returned by Join when a player with the same name is online.
var ErrAlreadyOnline = errors.New("player already online")

// Players tracks online players.
//
// Players is safe for concurrent use.
type Players struct {
	p *Plugin

	mu       sync.RWMutex
	online   map[string]command.Sender // lower-case name → player
	vanished map[uuid.UUID]bool
}

func newPlayers(p *Plugin) *Players {
	return &Players{
		p:        p,
		online:   make(map[string]command.Sender),
		vanished: make(map[uuid.UUID]bool),
	}
}

// Join marks s as online.
//
// Postcondition: Returns ErrAlreadyOnline when the name is taken.
func (ps *Players) Join(s command.Sender) error {
	key := strings.ToLower(s.Name())
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, taken := ps.online[key]; taken {
		return fmt.Errorf("%w: %s", ErrAlreadyOnline, s.Name())
	}
	ps.online[key] = s
	ps.p.logger.Info("player joined",
		zap.String("player", s.Name()),
		zap.String("uuid", s.UniqueID().String()),
	)
	return nil
}

// Quit removes the player named name.
func (ps *Players) Quit(name string) bool {
	return ps.remove(strings.ToLower(name), nil)
}

// Leave removes s if it is still the online player under its name. A
// later session that joined with the same name is left alone.
func (ps *Players) Leave(s command.Sender) bool {
	return ps.remove(strings.ToLower(s.Name()), s)
}

func (ps *Players) remove(key string, want command.Sender) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	s, ok := ps.online[key]
	if !ok || (want != nil && s != want) {
		return false
	}
	delete(ps.online, key)
	delete(ps.vanished, s.UniqueID())
	ps.p.logger.Info("player quit", zap.String("player", s.Name()))
	return true
}

// Find returns the online player named name, case-insensitively.
func (ps *Players) Find(name string) (command.Sender, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	s, ok := ps.online[strings.ToLower(name)]
	return s, ok
}

// Len returns the number of online players.
func (ps *Players) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.online)
}

// All returns every online player sorted by name.
func (ps *Players) All() []command.Sender {
	ps.mu.RLock()
	out := make([]command.Sender, 0, len(ps.online))
	for _, s := range ps.online {
		out = append(out, s)
	}
	ps.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name()) < strings.ToLower(out[j].Name())
	})
	return out
}

// SetVanished hides or reveals the player named name.
//
// Postcondition: Returns false when the player is not online.
func (ps *Players) SetVanished(name string, vanished bool) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	s, ok := ps.online[strings.ToLower(name)]
	if !ok {
		return false
	}
	if vanished {
		ps.vanished[s.UniqueID()] = true
	} else {
		delete(ps.vanished, s.UniqueID())
	}
	return true
}

// IsVanished reports whether the player named name is online and vanished.
func (ps *Players) IsVanished(name string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	s, ok := ps.online[strings.ToLower(name)]
	return ok && ps.vanished[s.UniqueID()]
}

// Names lists the players viewer can see, sorted. A nil viewer, the console,
// a vanished player themself and holders of VanishSeePermission see everyone.
func (ps *Players) Names(viewer command.Sender) []string {
	seeAll := viewer == nil || !viewer.IsPlayer() ||
		viewer.HasPermission(strings.ReplaceAll(VanishSeePermission, "{plugin_name}", strings.ToLower(ps.p.Name())))

	var names []string
	for _, s := range ps.All() {
		ps.mu.RLock()
		hidden := ps.vanished[s.UniqueID()]
		ps.mu.RUnlock()
		if hidden && !seeAll && s.UniqueID() != viewer.UniqueID() {
			continue
		}
		names = append(names, s.Name())
	}
	return names
}

// Broadcast sends msg to every online player. Delivery failures are logged.
func (ps *Players) Broadcast(msg component.Component) {
	for _, s := range ps.All() {
		if err := s.SendMessage(msg); err != nil {
			ps.p.logger.Warn("broadcast delivery failed",
				zap.String("player", s.Name()),
				zap.Error(err),
			)
		}
	}
}
