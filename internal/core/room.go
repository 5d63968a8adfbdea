package core

import (
	"encoding/json"
	"slices"
	"strconv"
)

// RoomPhase is the lifecycle stage of a room.
type RoomPhase int

const (
	RoomLobby RoomPhase = iota
	RoomGameSetup
	RoomInGame
)

func (p RoomPhase) String() string {
	switch p {
	case RoomLobby:
		return "LOBBY"
	case RoomGameSetup:
		return "GAME_SETUP"
	case RoomInGame:
		return "IN_GAME"
	default:
		return "UNKNOWN"
	}
}

// Role is derived from the position of a player in the room, never stored.
type Role string

const (
	RoleHost  Role = "HOST"
	RoleGuest Role = "GUEST"
)

// Room is a group of players. PlayerIDs[0] is the host.
type Room struct {
	ID        int
	PlayerIDs []string
	GameName  string
	Phase     RoomPhase
	Settings  json.RawMessage
}

// Group returns the transport group name of the room.
func (r *Room) Group() string {
	return GroupName(r.ID)
}

// GroupName maps a room id to its transport group.
func GroupName(roomID int) string {
	return "room-" + strconv.Itoa(roomID)
}

// Host returns the id of the host, or "" for an empty room.
func (r *Room) Host() string {
	if len(r.PlayerIDs) == 0 {
		return ""
	}
	return r.PlayerIDs[0]
}

// IsHost reports whether the player hosts the room.
func (r *Room) IsHost(playerID string) bool {
	return playerID != "" && r.Host() == playerID
}

// RoleOf returns HOST for the first player and GUEST otherwise.
func (r *Room) RoleOf(playerID string) Role {
	if r.IsHost(playerID) {
		return RoleHost
	}
	return RoleGuest
}

// Has reports whether the player is a member.
func (r *Room) Has(playerID string) bool {
	return slices.Contains(r.PlayerIDs, playerID)
}

// AddPlayer appends the player. Returns false if already present.
func (r *Room) AddPlayer(playerID string) bool {
	if r.Has(playerID) {
		return false
	}
	r.PlayerIDs = append(r.PlayerIDs, playerID)
	return true
}

// RemovePlayer deletes the player keeping the order of the others.
// Returns true if removed.
func (r *Room) RemovePlayer(playerID string) bool {
	i := slices.Index(r.PlayerIDs, playerID)
	if i < 0 {
		return false
	}
	r.PlayerIDs = slices.Delete(r.PlayerIDs, i, i+1)
	return true
}

// Empty returns true if no players are in the room.
func (r *Room) Empty() bool {
	return len(r.PlayerIDs) == 0
}
