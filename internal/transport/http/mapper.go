package http

import (
	"errors"
	"strings"

	"github.com/vovakirdan/partyhub-server/internal/core"
	"github.com/vovakirdan/partyhub-server/internal/hub"
	"github.com/vovakirdan/partyhub-server/internal/proto"
)

const maxEventNameLength = 64

// validateInbound checks the envelope before it reaches the hub. Payloads are
// decoded by the handler of the event.
func validateInbound(inbound proto.Inbound) *proto.Error {
	event := strings.TrimSpace(inbound.Event)
	switch {
	case event == "":
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "event is required"}
	case len(event) > maxEventNameLength:
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "event name too long"}
	case event != inbound.Event:
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "event name has surrounding spaces"}
	}
	return nil
}

// dispatchError maps a hub rejection to the error sent back to the client.
// It returns nil when the connection cannot continue.
func dispatchError(err error) *proto.Error {
	if errors.Is(err, hub.ErrReservedEvent) {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "reserved event"}
	}
	return nil
}

func rateLimitedError() *proto.Error {
	return &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many events"}
}
