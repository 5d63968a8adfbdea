package core

import (
	"encoding/json"

	"github.com/vovakirdan/partyhub-server/internal/proto"
	"github.com/vovakirdan/partyhub-server/internal/utils"
)

// Phase is the coarse state of an actor used to route its events.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseLonely
	PhaseLobby
	PhaseGameSetup
	PhaseInGame
)

func (p Phase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseLonely:
		return "lonely"
	case PhaseLobby:
		return "lobby"
	case PhaseGameSetup:
		return "game_setup"
	case PhaseInGame:
		return "in_game"
	default:
		return "invalid"
	}
}

// Classify returns the phase of the actor against the current state.
func Classify(s *State, actor string) Phase {
	p, ok := s.Players[actor]
	if !ok {
		return PhaseUnknown
	}
	if !p.InRoom() {
		return PhaseLonely
	}
	r, ok := s.Rooms[p.RoomID]
	if !ok {
		// Unreachable while invariants hold.
		return PhaseLonely
	}
	switch r.Phase {
	case RoomGameSetup:
		return PhaseGameSetup
	case RoomInGame:
		return PhaseInGame
	default:
		return PhaseLobby
	}
}

// Handler is a transition: it mutates s in place and returns the effects.
// A handler either commits every change or none of them.
type Handler func(s *State, actor string, data json.RawMessage) Outcome

// Route owns the events of actors for which Match returns true.
type Route struct {
	Name     string
	Match    func(s *State, actor string) bool
	Handlers map[string]Handler
	// Forward hands events without a handler to the room's game module.
	Forward bool
}

// RoomIDSource draws ids for new rooms, skipping those reported as taken.
type RoomIDSource interface {
	Next(taken func(id int) bool) (int, error)
}

// Router dispatches events to the first route matching the actor.
type Router struct {
	routes  []Route
	roomIDs RoomIDSource
	catalog func(gameName string) bool
	limits  func(gameName string) (minPlayers, maxPlayers int, ok bool)
}

// Option configures a Router.
type Option func(*Router)

// WithRoomIDs replaces the default room id source.
func WithRoomIDs(src RoomIDSource) Option {
	return func(r *Router) {
		r.roomIDs = src
	}
}

// WithCatalog makes selectGame reject names for which has returns false.
func WithCatalog(has func(gameName string) bool) Option {
	return func(r *Router) {
		r.catalog = has
	}
}

// WithPlayerLimits makes startGame refuse rooms whose size is outside the
// bounds the game declares. Zero bounds are not enforced.
func WithPlayerLimits(limits func(gameName string) (minPlayers, maxPlayers int, ok bool)) Option {
	return func(r *Router) {
		r.limits = limits
	}
}

// NewRouter builds the router with the session routes in priority order.
func NewRouter(opts ...Option) *Router {
	r := &Router{}
	for _, opt := range opts {
		opt(r)
	}
	if r.roomIDs == nil {
		r.roomIDs = utils.NewRoomIDs(utils.DefaultRoomIDMin, utils.DefaultRoomIDMax, nil)
	}
	r.routes = []Route{
		{
			Name:  "unknown",
			Match: phaseIs(PhaseUnknown),
			Handlers: map[string]Handler{
				proto.EventConnect: r.connect,
			},
		},
		{
			Name:  "lonely",
			Match: phaseIs(PhaseLonely),
			Handlers: map[string]Handler{
				proto.EventDisconnect: r.disconnectLonely,
				proto.EventNewRoom:    r.newRoom,
				proto.EventJoinRoom:   r.joinRoom,
			},
		},
		{
			Name:  "lobby",
			Match: phaseIs(PhaseLobby),
			Handlers: map[string]Handler{
				proto.EventLobbyJoined: r.lobbyJoined,
				proto.EventSelectGame:  r.selectGame,
				proto.EventStartGame:   r.startGame,
				proto.EventLeaveRoom:   r.leaveRoom,
				proto.EventDisconnect:  r.disconnectInRoom,
			},
		},
		{
			Name:  "gameSetup",
			Match: phaseIs(PhaseGameSetup),
			Handlers: map[string]Handler{
				proto.EventGameLoaded: r.gameLoaded,
				proto.EventGameSetup:  r.gameSetup,
				proto.EventStartGame:  r.startGame,
				proto.EventDisconnect: r.disconnectInRoom,
			},
		},
		{
			Name:  "inGame",
			Match: phaseIs(PhaseInGame),
			Handlers: map[string]Handler{
				proto.EventDisconnect: r.disconnectInRoom,
			},
			Forward: true,
		},
	}
	return r
}

func phaseIs(want Phase) func(*State, string) bool {
	return func(s *State, actor string) bool {
		return Classify(s, actor) == want
	}
}

// Routes returns the routes in priority order.
func (r *Router) Routes() []Route {
	return r.routes
}

// Match returns the first route owning the actor's events.
func (r *Router) Match(s *State, actor string) (Route, bool) {
	for _, route := range r.routes {
		if route.Match(s, actor) {
			return route, true
		}
	}
	return Route{}, false
}

// Transition applies one event from actor to s.
// Events with no handler in the matching route leave s untouched and return
// an empty Outcome, unless the route forwards to a game module.
func (r *Router) Transition(s *State, actor, event string, data json.RawMessage) Outcome {
	route, ok := r.Match(s, actor)
	if !ok {
		return Outcome{}
	}
	if h, ok := route.Handlers[event]; ok {
		return h(s, actor, data)
	}
	if route.Forward {
		return Outcome{Forward: &Forward{
			RoomID:   s.Players[actor].RoomID,
			PlayerID: actor,
			Event:    event,
			Data:     data,
		}}
	}
	return Outcome{}
}
