package core

import (
	"github.com/rs/zerolog"
)

// Transport is the connection layer the executor drives.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(connID, event string, data any) error
	SendToGroup(group, event string, data any) error
	JoinGroup(connID, group string) error
	LeaveGroup(connID, group string) error
}

// Executor applies effects to a Transport. It holds no session state.
type Executor struct {
	transport Transport
	log       *zerolog.Logger
}

// NewExecutor wires an executor to a transport.
func NewExecutor(t Transport, logger *zerolog.Logger) *Executor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Executor{transport: t, log: logger}
}

// Execute applies effects in order. A failed effect is logged and skipped;
// the number of failures is returned.
func (e *Executor) Execute(effects []Effect) int {
	failed := 0
	for _, eff := range effects {
		if err := e.apply(eff); err != nil {
			failed++
			e.log.Warn().Err(err).Str("effect", effectName(eff)).Msg("effect delivery failed")
		}
	}
	return failed
}

func (e *Executor) apply(eff Effect) error {
	switch eff := eff.(type) {
	case SendToOne:
		return e.transport.Send(eff.PlayerID, eff.Event, eff.Data)
	case SendToRoom:
		return e.transport.SendToGroup(GroupName(eff.RoomID), eff.Event, eff.Data)
	case JoinGroup:
		return e.transport.JoinGroup(eff.PlayerID, GroupName(eff.RoomID))
	case LeaveGroup:
		return e.transport.LeaveGroup(eff.PlayerID, GroupName(eff.RoomID))
	}
	return nil
}

func effectName(eff Effect) string {
	switch eff.(type) {
	case SendToOne:
		return "send_to_one"
	case SendToRoom:
		return "send_to_room"
	case JoinGroup:
		return "join_group"
	case LeaveGroup:
		return "leave_group"
	default:
		return "unknown"
	}
}
