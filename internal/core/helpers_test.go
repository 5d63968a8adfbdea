package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"
)

// seqIDs hands out room ids in order, skipping taken ones.
type seqIDs struct {
	next int
}

func (g *seqIDs) Next(taken func(int) bool) (int, error) {
	if g.next == 0 {
		g.next = 100000
	}
	for taken(g.next) {
		g.next++
	}
	id := g.next
	g.next++
	return id, nil
}

func newTestRouter(opts ...Option) *Router {
	return NewRouter(append([]Option{WithRoomIDs(&seqIDs{})}, opts...)...)
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// step applies an event and fails the test if an invariant breaks.
func step(t *testing.T, r *Router, s *State, actor, event string, data any) Outcome {
	t.Helper()
	var payload json.RawMessage
	if data != nil {
		payload = raw(t, data)
	}
	out := r.Transition(s, actor, event, payload)
	if err := checkInvariants(s); err != nil {
		t.Fatalf("after %s from %s: %v", event, actor, err)
	}
	return out
}

func checkInvariants(s *State) error {
	for id, room := range s.Rooms {
		if room.ID != id {
			return fmt.Errorf("room %d stored under %d", room.ID, id)
		}
		if room.Empty() {
			return fmt.Errorf("room %d exists with no players", id)
		}
		seen := make(map[string]struct{}, len(room.PlayerIDs))
		for _, pid := range room.PlayerIDs {
			if _, dup := seen[pid]; dup {
				return fmt.Errorf("room %d lists %s twice", id, pid)
			}
			seen[pid] = struct{}{}
			p, ok := s.Players[pid]
			if !ok {
				return fmt.Errorf("room %d lists unknown player %s", id, pid)
			}
			if p.RoomID != id {
				return fmt.Errorf("player %s listed in room %d but has roomId %d", pid, id, p.RoomID)
			}
		}
	}
	for pid, p := range s.Players {
		if !p.InRoom() {
			continue
		}
		room, ok := s.Rooms[p.RoomID]
		if !ok {
			return fmt.Errorf("player %s points to missing room %d", pid, p.RoomID)
		}
		if !room.Has(pid) {
			return fmt.Errorf("player %s points to room %d which does not list it", pid, p.RoomID)
		}
	}
	return nil
}

func cloneState(s *State) *State {
	c := NewState()
	for id, p := range s.Players {
		cp := *p
		c.Players[id] = &cp
	}
	for id, r := range s.Rooms {
		cr := *r
		cr.PlayerIDs = slices.Clone(r.PlayerIDs)
		cr.Settings = slices.Clone(r.Settings)
		c.Rooms[id] = &cr
	}
	return c
}

func sameState(a, b *State) bool {
	return reflect.DeepEqual(a, b)
}

func sentTo(out Outcome, playerID, event string) (SendToOne, bool) {
	for _, eff := range out.Effects {
		if e, ok := eff.(SendToOne); ok && e.PlayerID == playerID && e.Event == event {
			return e, true
		}
	}
	return SendToOne{}, false
}

func sentToRoom(out Outcome, roomID int, event string) (SendToRoom, bool) {
	for _, eff := range out.Effects {
		if e, ok := eff.(SendToRoom); ok && e.RoomID == roomID && e.Event == event {
			return e, true
		}
	}
	return SendToRoom{}, false
}

// recordingTransport records calls and fails for connections listed in dead.
type recordingTransport struct {
	calls []string
	dead  map[string]bool
}

var errDead = errors.New("connection closed")

func (t *recordingTransport) Send(connID, event string, _ any) error {
	t.calls = append(t.calls, "send "+connID+" "+event)
	if t.dead[connID] {
		return errDead
	}
	return nil
}

func (t *recordingTransport) SendToGroup(group, event string, _ any) error {
	t.calls = append(t.calls, "group "+group+" "+event)
	return nil
}

func (t *recordingTransport) JoinGroup(connID, group string) error {
	t.calls = append(t.calls, "join "+connID+" "+group)
	if t.dead[connID] {
		return errDead
	}
	return nil
}

func (t *recordingTransport) LeaveGroup(connID, group string) error {
	t.calls = append(t.calls, "leave "+connID+" "+group)
	return nil
}
