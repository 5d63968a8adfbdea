package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/partyhub-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY,
	phase      TEXT NOT NULL,
	game_name  TEXT NOT NULL DEFAULT '',
	player_ids TEXT NOT NULL DEFAULT '[]',
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS players (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	room_id    INTEGER,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS matches (
	id         TEXT PRIMARY KEY,
	room_id    INTEGER NOT NULL,
	game_name  TEXT NOT NULL,
	players    TEXT NOT NULL DEFAULT '[]',
	outcome    TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_matches_ended_at ON matches (ended_at);

CREATE TABLE IF NOT EXISTS games (
	name        TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	min_players INTEGER NOT NULL DEFAULT 1,
	max_players INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL
);
`

// Migrate creates the schema if it does not exist.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup opens the database and runs setup before first use.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Reset drops live rooms and players. Match history and the game catalog are kept.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms`); err != nil {
		return fmt.Errorf("reset rooms: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM players`); err != nil {
		return fmt.Errorf("reset players: %w", err)
	}
	return tx.Commit()
}

// ==== RoomStore implementation ====

// SaveRoom inserts or replaces a room snapshot.
func (s *SQLiteStore) SaveRoom(ctx context.Context, room *store.Room) error {
	ids, err := json.Marshal(room.PlayerIDs)
	if err != nil {
		return fmt.Errorf("encode player ids: %w", err)
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO rooms (id, phase, game_name, player_ids, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			game_name = excluded.game_name,
			player_ids = excluded.player_ids,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, room.ID, room.Phase, room.GameName, string(ids), room.UpdatedAt); err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by id.
func (s *SQLiteStore) GetRoom(ctx context.Context, id int64) (*store.Room, error) {
	query := `
		SELECT id, phase, game_name, player_ids, updated_at
		FROM rooms
		WHERE id = ?
	`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

// DeleteRoom removes a room snapshot.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// ListRooms lists every room ordered by id.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]*store.Room, error) {
	query := `
		SELECT id, phase, game_name, player_ids, updated_at
		FROM rooms
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*store.Room, error) {
	var (
		room store.Room
		ids  string
	)
	if err := row.Scan(&room.ID, &room.Phase, &room.GameName, &ids, &room.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &room.PlayerIDs); err != nil {
		return nil, fmt.Errorf("decode player ids: %w", err)
	}
	return &room, nil
}

// ==== PlayerStore implementation ====

// SavePlayer inserts or replaces a player snapshot.
func (s *SQLiteStore) SavePlayer(ctx context.Context, player *store.Player) error {
	if player.UpdatedAt.IsZero() {
		player.UpdatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO players (id, name, room_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			room_id = excluded.room_id,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, player.ID, player.Name, player.RoomID, player.UpdatedAt); err != nil {
		return fmt.Errorf("save player: %w", err)
	}
	return nil
}

// GetPlayer retrieves a player by connection id.
func (s *SQLiteStore) GetPlayer(ctx context.Context, id string) (*store.Player, error) {
	query := `
		SELECT id, name, room_id, updated_at
		FROM players
		WHERE id = ?
	`
	var (
		player store.Player
		roomID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&player.ID, &player.Name, &roomID, &player.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	if roomID.Valid {
		player.RoomID = &roomID.Int64
	}
	return &player, nil
}

// DeletePlayer removes a player snapshot.
func (s *SQLiteStore) DeletePlayer(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	return nil
}

// ==== MatchStore implementation ====

// SaveMatch records a finished match.
func (s *SQLiteStore) SaveMatch(ctx context.Context, match *store.Match) error {
	players, err := json.Marshal(match.Players)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	query := `
		INSERT INTO matches (id, room_id, game_name, players, outcome, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		match.ID, match.RoomID, match.GameName, string(players), string(match.Outcome),
		match.StartedAt.UTC(), match.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save match: %w", err)
	}
	return nil
}

// ListMatches returns up to limit matches, most recent first.
func (s *SQLiteStore) ListMatches(ctx context.Context, limit int) ([]*store.Match, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, room_id, game_name, players, outcome, started_at, ended_at
		FROM matches
		ORDER BY ended_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []*store.Match
	for rows.Next() {
		var (
			m       store.Match
			players string
			outcome string
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.GameName, &players, &outcome, &m.StartedAt, &m.EndedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if err := json.Unmarshal([]byte(players), &m.Players); err != nil {
			return nil, fmt.Errorf("decode players: %w", err)
		}
		m.Outcome = store.MatchOutcome(outcome)
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

// ==== GameStore implementation ====

// UpsertGame inserts or updates a catalog entry.
func (s *SQLiteStore) UpsertGame(ctx context.Context, game *store.Game) error {
	if game.UpdatedAt.IsZero() {
		game.UpdatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO games (name, description, min_players, max_players, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			min_players = excluded.min_players,
			max_players = excluded.max_players,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, game.Name, game.Description, game.MinPlayers, game.MaxPlayers, game.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}
	return nil
}

// ListGames lists the catalog ordered by name.
func (s *SQLiteStore) ListGames(ctx context.Context) ([]*store.Game, error) {
	query := `
		SELECT name, description, min_players, max_players, updated_at
		FROM games
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []*store.Game
	for rows.Next() {
		var g store.Game
		if err := rows.Scan(&g.Name, &g.Description, &g.MinPlayers, &g.MaxPlayers, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, &g)
	}
	return games, rows.Err()
}
