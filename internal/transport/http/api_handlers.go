package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/partyhub-server/internal/core"
	"github.com/vovakirdan/partyhub-server/internal/game"
	"github.com/vovakirdan/partyhub-server/internal/hub"
	"github.com/vovakirdan/partyhub-server/internal/store"
)

const maxMatchesLimit = 200

// Inspector reads live session state.
type Inspector interface {
	Rooms(ctx context.Context) ([]core.RoomSnapshot, error)
	Room(ctx context.Context, roomID int) (core.RoomSnapshot, bool, error)
	Stats(ctx context.Context) (hub.Stats, error)
}

// Catalog lists the installed game modules.
type Catalog interface {
	List() []game.Info
}

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	inspector Inspector
	catalog   Catalog
	matches   store.MatchStore
	registry  *Registry
	log       *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance. matches may be nil when
// persistence is off.
func NewAPIHandlers(inspector Inspector, catalog Catalog, matches store.MatchStore, registry *Registry, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		inspector: inspector,
		catalog:   catalog,
		matches:   matches,
		registry:  registry,
		log:       logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// MatchResponse is one entry of GET /api/matches.
type MatchResponse struct {
	ID        string    `json:"id"`
	RoomID    int64     `json:"roomId"`
	GameName  string    `json:"gameName"`
	Players   []string  `json:"players"`
	Outcome   string    `json:"outcome"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	hub.Stats
	Connections   int   `json:"connections"`
	DroppedFrames int64 `json:"droppedFrames"`
}

// ListGames returns the game library.
// GET /api/games
func (h *APIHandlers) ListGames(c *gin.Context) {
	games := h.catalog.List()
	if games == nil {
		games = []game.Info{}
	}
	c.JSON(http.StatusOK, games)
}

// ListRooms returns every open room.
// GET /api/rooms
func (h *APIHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.inspector.Rooms(c.Request.Context())
	if err != nil {
		h.unavailable(c, err)
		return
	}
	if rooms == nil {
		rooms = []core.RoomSnapshot{}
	}
	c.JSON(http.StatusOK, rooms)
}

// GetRoom returns one room.
// GET /api/rooms/:id
func (h *APIHandlers) GetRoom(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: core.ErrCodeBadRequest, Error: "invalid room id"})
		return
	}
	room, ok, err := h.inspector.Room(c.Request.Context(), id)
	if err != nil {
		h.unavailable(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: core.ErrCodeRoomNotFound, Error: "room not found"})
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListMatches returns finished matches, most recent first.
// GET /api/matches?limit=N
func (h *APIHandlers) ListMatches(c *gin.Context) {
	if h.matches == nil {
		c.JSON(http.StatusOK, []MatchResponse{})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > maxMatchesLimit {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: core.ErrCodeBadRequest, Error: "limit must be between 1 and 200"})
		return
	}
	matches, err := h.matches.ListMatches(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list matches")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	resp := make([]MatchResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, MatchResponse{
			ID:        m.ID,
			RoomID:    m.RoomID,
			GameName:  m.GameName,
			Players:   m.Players,
			Outcome:   string(m.Outcome),
			StartedAt: m.StartedAt,
			EndedAt:   m.EndedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Stats reports live counters.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	stats, err := h.inspector.Stats(c.Request.Context())
	if err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{
		Stats:         stats,
		Connections:   h.registry.Len(),
		DroppedFrames: h.registry.Dropped(),
	})
}

func (h *APIHandlers) unavailable(c *gin.Context, err error) {
	h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("hub unavailable")
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service unavailable"})
}

// writeJSONError answers a plain net/http request, before any upgrade.
func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Code: code, Error: msg})
}
