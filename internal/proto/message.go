package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	// Fired by the transport layer itself.
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	// Fired by the hub right after a successful newRoom/joinRoom.
	EventLobbyJoined = "onLobbyJoined"

	EventNewRoom    = "newRoom"
	EventJoinRoom   = "joinRoom"
	EventLeaveRoom  = "leaveRoom"
	EventSelectGame = "selectGame"
	EventStartGame  = "startGame"
	EventGameLoaded = "gameLoaded"
	EventGameSetup  = "onGameSetup"

	EventJoinSuccess    = "joinSuccess"
	EventJoinFailed     = "joinFailed"
	EventLeftRoom       = "leftRoom"
	EventPlayersChanged = "playersChanged"
	EventRoleChanged    = "roleChanged"
	EventGameSelected   = "gameSelected"
	EventGameStarted    = "gameStarted"
	EventStartFailed    = "startFailed"
	EventGameEnded      = "gameEnded"
	EventError          = "error"
)

// IsReserved reports whether clients are forbidden from sending the event.
func IsReserved(event string) bool {
	switch event {
	case EventConnect, EventDisconnect, EventLobbyJoined:
		return true
	}
	return false
}

// NewRoomData asks to open a room with the sender as host.
type NewRoomData struct {
	PlayerName string `json:"playerName"`
}

// JoinRoomData asks to join an open room.
type JoinRoomData struct {
	PlayerName string `json:"playerName"`
	RoomID     int    `json:"roomId"`
}

// SelectGameData changes the game of the room.
type SelectGameData struct {
	GameName string `json:"gameName"`
}

// StartGameData optionally carries game settings.
type StartGameData struct {
	Settings json.RawMessage `json:"settings,omitempty"`
}

// JoinSuccess confirms room membership.
type JoinSuccess struct {
	RoomID int `json:"roomId"`
}

// JoinFailed reports why a join was refused.
type JoinFailed struct {
	RoomID int    `json:"roomId"`
	Code   string `json:"code"`
	Msg    string `json:"msg"`
}

// LeftRoom confirms the sender left a room.
type LeftRoom struct {
	RoomID int `json:"roomId"`
}

// PlayersChanged lists the names of everyone in the room, host first.
type PlayersChanged struct {
	PlayerNames []string `json:"playerNames"`
}

// RoleChanged tells a player their role in the room.
type RoleChanged struct {
	Role string `json:"role"`
}

// GameSelected announces the currently selected game.
type GameSelected struct {
	GameName string `json:"gameName"`
}

// GameStarted announces that the room entered game setup.
type GameStarted struct {
	GameName string `json:"gameName"`
}

// StartFailed reports a failed game activation to the host.
type StartFailed struct {
	GameName string `json:"gameName"`
	Code     string `json:"code"`
	Msg      string `json:"msg"`
}

// GameEnded announces that the room is back in the lobby.
type GameEnded struct {
	GameName string `json:"gameName"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
