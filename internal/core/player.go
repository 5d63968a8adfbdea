package core

// Player is a connected participant, keyed by connection id.
type Player struct {
	ID   string
	Name string
	// RoomID is zero while the player is not in a room.
	RoomID       int
	GameLoaded   bool
	HasSetupGame bool
}

// InRoom reports whether the player belongs to a room.
func (p *Player) InRoom() bool {
	return p.RoomID != 0
}

func (p *Player) resetGameFlags() {
	p.GameLoaded = false
	p.HasSetupGame = false
}
