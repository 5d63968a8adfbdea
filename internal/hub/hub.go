// Package hub owns the session state and serializes every transition.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vovakirdan/partyhub-server/internal/core"
	"github.com/vovakirdan/partyhub-server/internal/game"
	"github.com/vovakirdan/partyhub-server/internal/proto"
	"github.com/vovakirdan/partyhub-server/internal/store"
)

const (
	defaultQueueSize = 1024
	tracerName       = "github.com/vovakirdan/partyhub-server/internal/hub"
)

var (
	ErrStopped       = errors.New("hub stopped")
	ErrReservedEvent = errors.New("reserved event")
)

// Recorder receives snapshots after each transition. Calls must not block.
type Recorder interface {
	SaveRoom(room store.Room)
	DeleteRoom(id int64)
	SavePlayer(player store.Player)
	DeletePlayer(id string)
	RecordMatch(match store.Match)
}

// Stats summarizes the live state.
type Stats struct {
	Players     int `json:"players"`
	Rooms       int `json:"rooms"`
	ActiveGames int `json:"activeGames"`
}

type requestKind int

const (
	requestEvent requestKind = iota
	requestEndGame
	requestRead
)

type request struct {
	kind   requestKind
	connID string
	event  string
	data   json.RawMessage
	roomID int
	read   func(*core.State)
	done   chan struct{}
}

// Hub is the single writer of the session state. Every event, from clients
// or from game modules, goes through Run one at a time.
type Hub struct {
	state    *core.State
	router   *core.Router
	exec     *core.Executor
	bridge   *game.Bridge
	recorder Recorder
	log      *zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	requests chan request
	stopped  chan struct{}
	matches  map[int]*store.Match
}

// Option configures a Hub.
type Option func(*Hub)

// WithRecorder mirrors every change to r.
func WithRecorder(r Recorder) Option {
	return func(h *Hub) {
		h.recorder = r
	}
}

// WithQueueSize sets the capacity of the inbound queue.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.requests = make(chan request, n)
		}
	}
}

// New wires a hub. The bridge reports finished games back to the hub.
func New(router *core.Router, exec *core.Executor, bridge *game.Bridge, logger *zerolog.Logger, opts ...Option) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Hub{
		state:    core.NewState(),
		router:   router,
		exec:     exec,
		bridge:   bridge,
		log:      logger,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		requests: make(chan request, defaultQueueSize),
		stopped:  make(chan struct{}),
		matches:  make(map[int]*store.Match),
	}
	for _, opt := range opts {
		opt(h)
	}
	bridge.OnEnd(h.EndGame)
	return h
}

// Run processes requests until ctx is cancelled. Running game sessions are
// stopped on exit.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	defer h.bridge.StopAll()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-h.requests:
			h.handle(req)
		}
	}
}

// Connect registers a new connection.
func (h *Hub) Connect(connID string) {
	h.submit(context.Background(), request{kind: requestEvent, connID: connID, event: proto.EventConnect})
}

// Disconnect removes a connection and everything it owned.
func (h *Hub) Disconnect(connID string) {
	h.submit(context.Background(), request{kind: requestEvent, connID: connID, event: proto.EventDisconnect})
}

// Dispatch queues an event sent by a client. Events are applied in the
// order Dispatch is called for a given connection.
func (h *Hub) Dispatch(ctx context.Context, connID, event string, data json.RawMessage) error {
	if proto.IsReserved(event) {
		return ErrReservedEvent
	}
	return h.submit(ctx, request{kind: requestEvent, connID: connID, event: event, data: data})
}

// EndGame returns an IN_GAME room to the lobby and uninstalls its game session.
func (h *Hub) EndGame(roomID int) {
	h.submit(context.Background(), request{kind: requestEndGame, roomID: roomID})
}

// Rooms returns a snapshot of every open room.
func (h *Hub) Rooms(ctx context.Context) ([]core.RoomSnapshot, error) {
	var out []core.RoomSnapshot
	err := h.query(ctx, func(s *core.State) { out = s.Snapshots() })
	return out, err
}

// Room returns a snapshot of one room.
func (h *Hub) Room(ctx context.Context, roomID int) (core.RoomSnapshot, bool, error) {
	var (
		out core.RoomSnapshot
		ok  bool
	)
	err := h.query(ctx, func(s *core.State) { out, ok = s.Snapshot(roomID) })
	return out, ok, err
}

// Stats counts players, rooms and running games.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := h.query(ctx, func(s *core.State) {
		out.Players = len(s.Players)
		out.Rooms = len(s.Rooms)
		for _, r := range s.Rooms {
			if r.Phase == core.RoomInGame {
				out.ActiveGames++
			}
		}
	})
	return out, err
}

func (h *Hub) query(ctx context.Context, read func(*core.State)) error {
	done := make(chan struct{})
	if err := h.submit(ctx, request{kind: requestRead, read: read, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrStopped
	}
}

func (h *Hub) submit(ctx context.Context, req request) error {
	select {
	case h.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrStopped
	}
}

func (h *Hub) handle(req request) {
	switch req.kind {
	case requestEvent:
		h.apply(req.connID, req.event, req.data)
	case requestEndGame:
		h.endGame(req.roomID)
	case requestRead:
		req.read(h.state)
		close(req.done)
	}
}

// apply runs one transition, commits it and then performs its effects.
func (h *Hub) apply(connID, event string, data json.RawMessage) {
	_, span := h.tracer.Start(context.Background(), "hub.transition", trace.WithAttributes(
		attribute.String("player_id", connID),
		attribute.String("event", event),
	))
	defer span.End()

	phase := core.Classify(h.state, connID)
	prevRoom := h.roomOf(connID)
	span.SetAttributes(attribute.String("phase", phase.String()))

	out := h.router.Transition(h.state, connID, event, data)
	if out.Noop() {
		h.log.Debug().Str("player_id", connID).Str("event", event).Str("phase", phase.String()).Msg("event ignored")
		return
	}
	h.log.Debug().Str("player_id", connID).Str("event", event).Str("phase", phase.String()).Int("effects", len(out.Effects)).Msg("transition")

	h.exec.Execute(out.Effects)

	if out.Forward != nil {
		h.bridge.Forward(out.Forward.RoomID, out.Forward.PlayerID, out.Forward.Event, out.Forward.Data)
		return
	}

	newRoom := h.roomOf(connID)
	h.logMembership(connID, prevRoom, newRoom)

	if prevRoom != 0 && prevRoom != newRoom {
		h.roomLost(prevRoom, connID, phase)
	}
	if out.Activate != nil {
		h.activate(*out.Activate)
	}
	h.sync(connID, prevRoom, newRoom)

	if phase == core.PhaseLonely && newRoom != 0 {
		h.apply(connID, proto.EventLobbyJoined, nil)
	}
}

// roomLost runs after connID left roomID, by choice or by disconnecting.
func (h *Hub) roomLost(roomID int, connID string, phase core.Phase) {
	if phase != core.PhaseInGame {
		return
	}
	if _, ok := h.state.Room(roomID); !ok {
		h.bridge.Stop(roomID)
		h.finishMatch(roomID, store.MatchAbandoned)
		return
	}
	h.bridge.PlayerLeft(roomID, connID)
}

func (h *Hub) activate(act core.Activation) {
	room, ok := h.state.Room(act.RoomID)
	if !ok {
		return
	}
	players := make([]game.PlayerInfo, 0, len(room.PlayerIDs))
	names := make([]string, 0, len(room.PlayerIDs))
	for _, id := range room.PlayerIDs {
		p := h.state.Players[id]
		players = append(players, game.PlayerInfo{ID: id, Name: p.Name, Host: room.IsHost(id)})
		names = append(names, p.Name)
	}

	if err := h.bridge.Activate(act, players); err != nil {
		code := core.ErrCodeGameInitFailed
		if errors.Is(err, game.ErrGameNotFound) {
			code = core.ErrCodeGameNotFound
		}
		h.log.Warn().Err(err).Int("room_id", act.RoomID).Str("game", act.GameName).Msg("game activation failed")
		out := core.AbortActivation(h.state, act.RoomID, &core.CoreError{Code: code, Message: err.Error()})
		h.exec.Execute(out.Effects)
		return
	}

	h.matches[act.RoomID] = &store.Match{
		ID:        uuid.NewString(),
		RoomID:    int64(act.RoomID),
		GameName:  act.GameName,
		Players:   names,
		StartedAt: h.now(),
	}
}

func (h *Hub) endGame(roomID int) {
	out := core.EndGame(h.state, roomID)
	if out.Noop() {
		return
	}
	h.bridge.Stop(roomID)
	h.exec.Execute(out.Effects)
	h.finishMatch(roomID, store.MatchCompleted)
	h.log.Info().Int("room_id", roomID).Msg("game ended")
	h.syncRoom(roomID)
}

func (h *Hub) finishMatch(roomID int, outcome store.MatchOutcome) {
	m, ok := h.matches[roomID]
	if !ok {
		return
	}
	delete(h.matches, roomID)
	m.Outcome = outcome
	m.EndedAt = h.now()
	if h.recorder != nil {
		h.recorder.RecordMatch(*m)
	}
}

func (h *Hub) roomOf(connID string) int {
	if p, ok := h.state.Player(connID); ok {
		return p.RoomID
	}
	return 0
}

func (h *Hub) logMembership(connID string, prevRoom, newRoom int) {
	switch {
	case prevRoom == newRoom:
	case prevRoom == 0:
		h.log.Info().Str("player_id", connID).Int("room_id", newRoom).Msg("player joined room")
	default:
		ev := h.log.Info().Str("player_id", connID).Int("room_id", prevRoom)
		if _, ok := h.state.Room(prevRoom); !ok {
			ev.Msg("player left room, room closed")
			return
		}
		ev.Msg("player left room")
	}
}

// sync pushes the records touched by a transition to the recorder.
func (h *Hub) sync(connID string, rooms ...int) {
	if h.recorder == nil {
		return
	}
	if p, ok := h.state.Player(connID); ok {
		rec := store.Player{ID: p.ID, Name: p.Name, UpdatedAt: h.now()}
		if p.InRoom() {
			id := int64(p.RoomID)
			rec.RoomID = &id
		}
		h.recorder.SavePlayer(rec)
	} else {
		h.recorder.DeletePlayer(connID)
	}

	seen := make(map[int]struct{}, len(rooms))
	for _, id := range rooms {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		h.syncRoom(id)
	}
}

func (h *Hub) syncRoom(roomID int) {
	if h.recorder == nil {
		return
	}
	room, ok := h.state.Room(roomID)
	if !ok {
		h.recorder.DeleteRoom(int64(roomID))
		return
	}
	h.recorder.SaveRoom(store.Room{
		ID:        int64(room.ID),
		Phase:     room.Phase.String(),
		GameName:  room.GameName,
		PlayerIDs: append([]string(nil), room.PlayerIDs...),
		UpdatedAt: h.now(),
	})
}
