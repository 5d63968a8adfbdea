package core

import "sort"

// State is the whole session state: every connected player and every open room.
// It is owned by a single writer; see hub.Hub.
type State struct {
	Players map[string]*Player
	Rooms   map[int]*Room
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Players: make(map[string]*Player),
		Rooms:   make(map[int]*Room),
	}
}

// Player looks up a player by connection id.
func (s *State) Player(id string) (*Player, bool) {
	p, ok := s.Players[id]
	return p, ok
}

// Room looks up a room by id.
func (s *State) Room(id int) (*Room, bool) {
	r, ok := s.Rooms[id]
	return r, ok
}

// RoomOf returns the room the player belongs to.
func (s *State) RoomOf(playerID string) (*Room, bool) {
	p, ok := s.Players[playerID]
	if !ok || !p.InRoom() {
		return nil, false
	}
	return s.Room(p.RoomID)
}

// PlayerNames lists names in room order, host first.
func (s *State) PlayerNames(r *Room) []string {
	names := make([]string, 0, len(r.PlayerIDs))
	for _, id := range r.PlayerIDs {
		if p, ok := s.Players[id]; ok {
			names = append(names, p.Name)
		}
	}
	return names
}

// AllLoaded reports whether every player of the room acknowledged loading the game.
func (s *State) AllLoaded(r *Room) bool {
	for _, id := range r.PlayerIDs {
		p, ok := s.Players[id]
		if !ok || !p.GameLoaded {
			return false
		}
	}
	return true
}

// PlayerSnapshot is a read-only view of a room member.
type PlayerSnapshot struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	GameLoaded   bool   `json:"gameLoaded"`
	HasSetupGame bool   `json:"hasSetupGame"`
}

// RoomSnapshot is a read-only view of a room, detached from State.
type RoomSnapshot struct {
	ID       int              `json:"id"`
	Phase    string           `json:"phase"`
	GameName string           `json:"gameName"`
	Players  []PlayerSnapshot `json:"players"`
}

// Snapshot copies a room out of the state.
func (s *State) Snapshot(roomID int) (RoomSnapshot, bool) {
	r, ok := s.Rooms[roomID]
	if !ok {
		return RoomSnapshot{}, false
	}
	snap := RoomSnapshot{
		ID:       r.ID,
		Phase:    r.Phase.String(),
		GameName: r.GameName,
		Players:  make([]PlayerSnapshot, 0, len(r.PlayerIDs)),
	}
	for _, id := range r.PlayerIDs {
		p, ok := s.Players[id]
		if !ok {
			continue
		}
		snap.Players = append(snap.Players, PlayerSnapshot{
			ID:           p.ID,
			Name:         p.Name,
			Role:         r.RoleOf(p.ID),
			GameLoaded:   p.GameLoaded,
			HasSetupGame: p.HasSetupGame,
		})
	}
	return snap, true
}

// Snapshots copies every room, ordered by id.
func (s *State) Snapshots() []RoomSnapshot {
	ids := make([]int, 0, len(s.Rooms))
	for id := range s.Rooms {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]RoomSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, _ := s.Snapshot(id)
		out = append(out, snap)
	}
	return out
}
