package chat

import (
	"go.minekube.com/common/minecraft/component"
)

// Recipient receives chat components.
type Recipient interface {
	SendMessage(msg component.Component) error
}

// Level selects the prefix a message is sent with.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
	LevelQuestion
	LevelAnnounce
)

var levelNames = [...]string{"info", "success", "warn", "error", "question", "announce"}

// String returns the lower-case level name used in settings files.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// Levels lists every level in declaration order.
func Levels() []Level {
	return []Level{LevelInfo, LevelSuccess, LevelWarn, LevelError, LevelQuestion, LevelAnnounce}
}

// DefaultPrefixes are the legacy-coded prefixes used when settings do not
// override them.
var DefaultPrefixes = map[Level]string{
	LevelInfo:     "&8&l[&9&li&8&l]&7 ",
	LevelSuccess:  "&8&l[&2&l✔&8&l]&7 ",
	LevelWarn:     "&8&l[&6&l!&8&l]&6 ",
	LevelError:    "&8&l[&4&l✕&8&l]&c ",
	LevelQuestion: "&8&l[&a&l?&8&l]&7 ",
	LevelAnnounce: "&8&l[&5&l!&8&l]&d ",
}

// Messenger prefixes outgoing messages by level. When disabled, messages
// are sent as given.
type Messenger struct {
	Enabled  bool
	Prefixes map[Level]string
}

// NewMessenger returns an enabled messenger with the default prefixes.
func NewMessenger() Messenger {
	prefixes := make(map[Level]string, len(DefaultPrefixes))
	for l, p := range DefaultPrefixes {
		prefixes[l] = p
	}
	return Messenger{Enabled: true, Prefixes: prefixes}
}

// Format builds the message component for level.
func (m Messenger) Format(level Level, message string) component.Component {
	if !m.Enabled {
		return Parse(message)
	}
	return Parse(m.Prefixes[level] + message)
}

// Tell sends message to r prefixed for level.
func (m Messenger) Tell(r Recipient, level Level, message string) error {
	return r.SendMessage(m.Format(level, message))
}

// Info sends an informational message.
func (m Messenger) Info(r Recipient, message string) error {
	return m.Tell(r, LevelInfo, message)
}

// Success sends a success message.
func (m Messenger) Success(r Recipient, message string) error {
	return m.Tell(r, LevelSuccess, message)
}

// Warn sends a warning.
func (m Messenger) Warn(r Recipient, message string) error {
	return m.Tell(r, LevelWarn, message)
}

// Error sends an error message.
func (m Messenger) Error(r Recipient, message string) error {
	return m.Tell(r, LevelError, message)
}

// Question sends a question.
func (m Messenger) Question(r Recipient, message string) error {
	return m.Tell(r, LevelQuestion, message)
}

// Announce sends an announcement.
func (m Messenger) Announce(r Recipient, message string) error {
	return m.Tell(r, LevelAnnounce, message)
}
