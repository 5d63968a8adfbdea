package core

import "encoding/json"

// Effect is an instruction for the transport, produced by a transition.
// The set is closed: SendToOne, SendToRoom, JoinGroup, LeaveGroup.
type Effect interface {
	effect()
}

// SendToOne delivers an event to a single connection.
type SendToOne struct {
	PlayerID string
	Event    string
	Data     any
}

// SendToRoom delivers an event to every member of the room group.
type SendToRoom struct {
	RoomID int
	Event  string
	Data   any
}

// JoinGroup subscribes a connection to the room group.
type JoinGroup struct {
	PlayerID string
	RoomID   int
}

// LeaveGroup unsubscribes a connection from the room group.
type LeaveGroup struct {
	PlayerID string
	RoomID   int
}

func (SendToOne) effect()  {}
func (SendToRoom) effect() {}
func (JoinGroup) effect()  {}
func (LeaveGroup) effect() {}

// Activation asks the caller to hand the room over to its game module.
type Activation struct {
	RoomID   int
	GameName string
	Settings json.RawMessage
}

// Forward asks the caller to deliver an in-game event to the room's game module.
type Forward struct {
	RoomID   int
	PlayerID string
	Event    string
	Data     json.RawMessage
}

// Outcome is the result of one transition. All fields may be empty,
// which is the no-op outcome.
type Outcome struct {
	Effects  []Effect
	Activate *Activation
	Forward  *Forward
}

func (o *Outcome) add(effects ...Effect) {
	o.Effects = append(o.Effects, effects...)
}

// Noop reports whether the outcome has nothing to do.
func (o Outcome) Noop() bool {
	return len(o.Effects) == 0 && o.Activate == nil && o.Forward == nil
}
