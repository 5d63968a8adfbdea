package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Room is a persisted snapshot of an open room.
type Room struct {
	ID        int64
	Phase     string
	GameName  string
	PlayerIDs []string // host first
	UpdatedAt time.Time
}

// Player is a persisted snapshot of a connected player.
type Player struct {
	ID        string
	Name      string
	RoomID    *int64 // nil while not in a room
	UpdatedAt time.Time
}

// MatchOutcome tells how a game session finished.
type MatchOutcome string

const (
	MatchCompleted MatchOutcome = "completed"
	MatchAbandoned MatchOutcome = "abandoned"
)

// Match is one finished game session.
type Match struct {
	ID        string // UUID
	RoomID    int64
	GameName  string
	Players   []string // names at start
	Outcome   MatchOutcome
	StartedAt time.Time
	EndedAt   time.Time
}

// Game is a catalog entry for a registered game module.
type Game struct {
	Name        string
	Description string
	MinPlayers  int
	MaxPlayers  int
	UpdatedAt   time.Time
}

// RoomStore handles room snapshots.
type RoomStore interface {
	// SaveRoom inserts or replaces a room by id.
	SaveRoom(ctx context.Context, room *Room) error

	// GetRoom retrieves a room by id.
	GetRoom(ctx context.Context, id int64) (*Room, error)

	// DeleteRoom removes a room. Deleting a missing room is not an error.
	DeleteRoom(ctx context.Context, id int64) error

	// ListRooms lists every room ordered by id.
	ListRooms(ctx context.Context) ([]*Room, error)
}

// PlayerStore handles player snapshots.
type PlayerStore interface {
	SavePlayer(ctx context.Context, player *Player) error
	GetPlayer(ctx context.Context, id string) (*Player, error)
	DeletePlayer(ctx context.Context, id string) error
}

// MatchStore handles match history.
type MatchStore interface {
	// SaveMatch records a finished match.
	SaveMatch(ctx context.Context, match *Match) error

	// ListMatches returns the most recent matches first.
	ListMatches(ctx context.Context, limit int) ([]*Match, error)
}

// GameStore handles the game catalog.
type GameStore interface {
	UpsertGame(ctx context.Context, game *Game) error
	ListGames(ctx context.Context) ([]*Game, error)
}

// Store aggregates all persistence interfaces.
type Store interface {
	RoomStore
	PlayerStore
	MatchStore
	GameStore

	// Reset drops live rooms and players left over from a previous process.
	Reset(ctx context.Context) error

	// Close releases resources.
	Close() error
}
