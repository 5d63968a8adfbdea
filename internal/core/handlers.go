package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/partyhub-server/internal/proto"
)

// MaxPlayerNameLength bounds display names, in runes.
const MaxPlayerNameLength = 32

func (r *Router) connect(s *State, actor string, _ json.RawMessage) Outcome {
	s.Players[actor] = &Player{ID: actor}
	return Outcome{}
}

func (r *Router) disconnectLonely(s *State, actor string, _ json.RawMessage) Outcome {
	delete(s.Players, actor)
	return Outcome{}
}

func (r *Router) newRoom(s *State, actor string, data json.RawMessage) Outcome {
	var req proto.NewRoomData
	if !decode(data, &req) {
		return errorTo(actor, coreError(ErrCodeBadRequest, "invalid newRoom payload"))
	}
	name, ok := playerName(req.PlayerName)
	if !ok {
		return errorTo(actor, coreError(ErrCodeBadRequest, "playerName is required"))
	}
	id, err := r.roomIDs.Next(func(id int) bool {
		_, taken := s.Rooms[id]
		return taken
	})
	if err != nil {
		return errorTo(actor, coreError(ErrCodeRoomsExhausted, err.Error()))
	}

	p := s.Players[actor]
	p.Name = name
	p.RoomID = id
	p.resetGameFlags()
	s.Rooms[id] = &Room{ID: id, PlayerIDs: []string{actor}, Phase: RoomLobby}

	return Outcome{Effects: []Effect{
		JoinGroup{PlayerID: actor, RoomID: id},
		SendToOne{PlayerID: actor, Event: proto.EventJoinSuccess, Data: proto.JoinSuccess{RoomID: id}},
	}}
}

func (r *Router) joinRoom(s *State, actor string, data json.RawMessage) Outcome {
	var req proto.JoinRoomData
	if !decode(data, &req) {
		return errorTo(actor, coreError(ErrCodeBadRequest, "invalid joinRoom payload"))
	}
	name, ok := playerName(req.PlayerName)
	if !ok {
		return errorTo(actor, coreError(ErrCodeBadRequest, "playerName is required"))
	}
	room, ok := s.Rooms[req.RoomID]
	if !ok {
		return joinFailed(actor, req.RoomID, coreError(ErrCodeRoomNotFound, ErrRoomNotFound.Error()))
	}
	if room.Phase != RoomLobby {
		return joinFailed(actor, req.RoomID, coreError(ErrCodeRoomInGame, "room is already playing"))
	}

	p := s.Players[actor]
	room.AddPlayer(actor)
	p.Name = name
	p.RoomID = room.ID
	p.resetGameFlags()

	return Outcome{Effects: []Effect{
		JoinGroup{PlayerID: actor, RoomID: room.ID},
		SendToOne{PlayerID: actor, Event: proto.EventJoinSuccess, Data: proto.JoinSuccess{RoomID: room.ID}},
	}}
}

func (r *Router) lobbyJoined(s *State, actor string, _ json.RawMessage) Outcome {
	room, _ := s.RoomOf(actor)
	return Outcome{Effects: []Effect{
		SendToRoom{RoomID: room.ID, Event: proto.EventPlayersChanged, Data: proto.PlayersChanged{PlayerNames: s.PlayerNames(room)}},
		SendToOne{PlayerID: actor, Event: proto.EventRoleChanged, Data: proto.RoleChanged{Role: string(room.RoleOf(actor))}},
		SendToOne{PlayerID: actor, Event: proto.EventGameSelected, Data: proto.GameSelected{GameName: room.GameName}},
	}}
}

func (r *Router) selectGame(s *State, actor string, data json.RawMessage) Outcome {
	room, _ := s.RoomOf(actor)
	if !room.IsHost(actor) {
		return Outcome{}
	}
	var req proto.SelectGameData
	if !decode(data, &req) || strings.TrimSpace(req.GameName) == "" {
		return errorTo(actor, coreError(ErrCodeBadRequest, "gameName is required"))
	}
	name := strings.TrimSpace(req.GameName)
	if r.catalog != nil && !r.catalog(name) {
		return errorTo(actor, coreError(ErrCodeGameNotFound, "unknown game: "+name))
	}

	room.GameName = name
	return Outcome{Effects: []Effect{
		SendToRoom{RoomID: room.ID, Event: proto.EventGameSelected, Data: proto.GameSelected{GameName: name}},
	}}
}

// startGame moves a LOBBY room to GAME_SETUP, or a GAME_SETUP room whose
// players all loaded the game to IN_GAME.
func (r *Router) startGame(s *State, actor string, data json.RawMessage) Outcome {
	room, _ := s.RoomOf(actor)
	if !room.IsHost(actor) || room.GameName == "" {
		return Outcome{}
	}

	var req proto.StartGameData
	if !isEmpty(data) && json.Unmarshal(data, &req) != nil {
		return errorTo(actor, coreError(ErrCodeBadRequest, "invalid startGame payload"))
	}
	settings := req.Settings
	if isEmpty(settings) {
		settings = nil
	}
	if err := r.checkPlayerCount(room); err != nil {
		return startFailed(room, err)
	}

	switch room.Phase {
	case RoomLobby:
		// Nil settings fall back to the module defaults on activation.
		room.Settings = settings
		room.Phase = RoomGameSetup
		for _, id := range room.PlayerIDs {
			s.Players[id].resetGameFlags()
		}
		return Outcome{Effects: []Effect{
			SendToRoom{RoomID: room.ID, Event: proto.EventGameStarted, Data: proto.GameStarted{GameName: room.GameName}},
		}}
	case RoomGameSetup:
		if settings != nil {
			room.Settings = settings
		}
		if !s.AllLoaded(room) {
			return Outcome{}
		}
		return activate(room)
	}
	return Outcome{}
}

func (r *Router) checkPlayerCount(room *Room) *CoreError {
	if r.limits == nil {
		return nil
	}
	lo, hi, ok := r.limits(room.GameName)
	if !ok {
		return nil
	}
	n := len(room.PlayerIDs)
	if (lo > 0 && n < lo) || (hi > 0 && n > hi) {
		return coreError(ErrCodeBadRequest, fmt.Sprintf("%s needs %d-%d players, room has %d", room.GameName, lo, hi, n))
	}
	return nil
}

func (r *Router) gameLoaded(s *State, actor string, _ json.RawMessage) Outcome {
	room, _ := s.RoomOf(actor)
	s.Players[actor].GameLoaded = true
	if !s.AllLoaded(room) {
		return Outcome{}
	}
	return activate(room)
}

func (r *Router) gameSetup(s *State, actor string, _ json.RawMessage) Outcome {
	s.Players[actor].HasSetupGame = true
	return Outcome{}
}

func (r *Router) leaveRoom(s *State, actor string, _ json.RawMessage) Outcome {
	p := s.Players[actor]
	roomID := p.RoomID
	out := removeFromRoom(s, actor)
	p.RoomID = 0
	p.resetGameFlags()
	out.Effects = append([]Effect{
		LeaveGroup{PlayerID: actor, RoomID: roomID},
		SendToOne{PlayerID: actor, Event: proto.EventLeftRoom, Data: proto.LeftRoom{RoomID: roomID}},
	}, out.Effects...)
	return out
}

func (r *Router) disconnectInRoom(s *State, actor string, _ json.RawMessage) Outcome {
	roomID := s.Players[actor].RoomID
	out := removeFromRoom(s, actor)
	delete(s.Players, actor)
	out.Effects = append([]Effect{LeaveGroup{PlayerID: actor, RoomID: roomID}}, out.Effects...)
	return out
}

// removeFromRoom takes the actor out of its room, deleting the room when it
// becomes empty. The player record itself is left to the caller.
func removeFromRoom(s *State, actor string) Outcome {
	room, ok := s.RoomOf(actor)
	if !ok {
		return Outcome{}
	}
	wasHost := room.IsHost(actor)
	room.RemovePlayer(actor)
	if room.Empty() {
		delete(s.Rooms, room.ID)
		return Outcome{}
	}

	var out Outcome
	out.add(SendToRoom{RoomID: room.ID, Event: proto.EventPlayersChanged, Data: proto.PlayersChanged{PlayerNames: s.PlayerNames(room)}})
	if wasHost {
		out.add(SendToOne{PlayerID: room.Host(), Event: proto.EventRoleChanged, Data: proto.RoleChanged{Role: string(RoleHost)}})
	}
	// A straggler leaving setup may complete the load barrier.
	if room.Phase == RoomGameSetup && s.AllLoaded(room) {
		out.Activate = activate(room).Activate
	}
	return out
}

func activate(room *Room) Outcome {
	room.Phase = RoomInGame
	return Outcome{Activate: &Activation{
		RoomID:   room.ID,
		GameName: room.GameName,
		Settings: room.Settings,
	}}
}

// AbortActivation reverts a room whose game module could not be started
// back to GAME_SETUP and tells the host why.
func AbortActivation(s *State, roomID int, cause *CoreError) Outcome {
	room, ok := s.Rooms[roomID]
	if !ok || room.Phase != RoomInGame {
		return Outcome{}
	}
	room.Phase = RoomGameSetup
	return startFailed(room, cause)
}

func startFailed(room *Room, cause *CoreError) Outcome {
	return Outcome{Effects: []Effect{
		SendToOne{PlayerID: room.Host(), Event: proto.EventStartFailed, Data: proto.StartFailed{
			GameName: room.GameName,
			Code:     cause.Code,
			Msg:      cause.Message,
		}},
	}}
}

// EndGame returns an IN_GAME room to the lobby.
func EndGame(s *State, roomID int) Outcome {
	room, ok := s.Rooms[roomID]
	if !ok || room.Phase != RoomInGame {
		return Outcome{}
	}
	room.Phase = RoomLobby
	room.Settings = nil
	for _, id := range room.PlayerIDs {
		s.Players[id].resetGameFlags()
	}
	return Outcome{Effects: []Effect{
		SendToRoom{RoomID: room.ID, Event: proto.EventGameEnded, Data: proto.GameEnded{GameName: room.GameName}},
	}}
}

func errorTo(actor string, err *CoreError) Outcome {
	return Outcome{Effects: []Effect{
		SendToOne{PlayerID: actor, Event: proto.EventError, Data: proto.Error{Code: err.Code, Msg: err.Message}},
	}}
}

func joinFailed(actor string, roomID int, err *CoreError) Outcome {
	return Outcome{Effects: []Effect{
		SendToOne{PlayerID: actor, Event: proto.EventJoinFailed, Data: proto.JoinFailed{RoomID: roomID, Code: err.Code, Msg: err.Message}},
	}}
}

func playerName(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > MaxPlayerNameLength {
		return "", false
	}
	return name, true
}

func decode(data json.RawMessage, v any) bool {
	if isEmpty(data) {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func isEmpty(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
