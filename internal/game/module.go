// Package game defines the contract game modules implement and the bridge
// that hands a room's connections over to a running module.
package game

import "encoding/json"

// Info describes a game module.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MinPlayers  int    `json:"minPlayers"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// PlayerInfo is what a module learns about each player at start.
type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Host bool   `json:"host"`
}

// API is the set of capabilities handed to a running module.
type API interface {
	// SendToAll delivers an event to every player of the room.
	SendToAll(event string, data any)
	// SendToOne delivers an event to a single player.
	SendToOne(playerID, event string, data any)
	// EndGame returns the room to the lobby. Calls after the first are ignored.
	EndGame()
}

// Handler receives one event sent by a player.
type Handler func(playerID string, data json.RawMessage)

// Instance is a running game.
type Instance interface {
	// Events maps event names to handlers. Events without a handler are dropped.
	Events() map[string]Handler
	Start()
}

// PlayerLeaver is implemented by instances that want to know about departures.
type PlayerLeaver interface {
	PlayerLeft(playerID string)
}

// Closer is implemented by instances holding resources.
type Closer interface {
	Close()
}

// Module creates game instances.
type Module interface {
	Info() Info
	// DefaultSettings is used when the host supplies none.
	DefaultSettings() json.RawMessage
	Init(api API, players []PlayerInfo, settings json.RawMessage) (Instance, error)
}
