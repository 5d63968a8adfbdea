package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/partyhub-server/internal/auth"
	"github.com/vovakirdan/partyhub-server/internal/core"
	"github.com/vovakirdan/partyhub-server/internal/proto"
	"github.com/vovakirdan/partyhub-server/internal/utils"
)

// Sessions is the part of the hub the websocket handler drives.
type Sessions interface {
	Connect(connID string)
	Disconnect(connID string)
	Dispatch(ctx context.Context, connID, event string, data json.RawMessage) error
}

// WSOptions tunes websocket connections.
type WSOptions struct {
	MaxMessageBytes    int64
	SendBuffer         int
	RateLimitPerMinute int
	WriteTimeout       time.Duration

	// JWT enables token checks on the handshake. With JWTRequired a missing
	// token is rejected too.
	JWT         *auth.JWTConfig
	JWTRequired bool
}

// WSHandler upgrades HTTP connections and bridges them to the hub.
type WSHandler struct {
	sessions Sessions
	registry *Registry
	opts     WSOptions
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(sessions Sessions, registry *Registry, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &WSHandler{sessions: sessions, registry: registry, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws handshake rejected")
		writeJSONError(w, stdhttp.StatusUnauthorized, core.ErrCodeUnauthorized, "invalid or missing token")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if v := r.URL.Query().Get("protocol"); v != "" && v != strconv.Itoa(proto.ProtocolVersion) {
		_ = h.writeFrame(ctx, conn, errorFrame(&proto.Error{Code: core.ErrCodeUnsupported, Msg: "server speaks protocol " + strconv.Itoa(proto.ProtocolVersion)}))
		conn.Close(websocket.StatusPolicyViolation, "unsupported protocol version")
		return
	}

	connID := utils.NewConnectionID()
	out := h.registry.Add(connID, h.opts.SendBuffer)
	h.sessions.Connect(connID)

	logger := h.log.With().Str("client_id", connID).Logger()
	if claims != nil {
		logger = logger.With().Str("subject", claims.Subject).Logger()
	}
	logger.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, connID, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, out, &logger)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	h.sessions.Disconnect(connID)
	h.registry.Remove(connID)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}
	logger.Info().Msg("client disconnected")

	conn.Close(status, reason)
}

// authenticate returns nil claims when no token is configured or presented.
func (h *WSHandler) authenticate(r *stdhttp.Request) (*auth.Claims, error) {
	if h.opts.JWT == nil {
		return nil, nil
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		if h.opts.JWTRequired {
			return nil, auth.ErrInvalidToken
		}
		return nil, nil
	}
	return auth.ValidateToken(h.opts.JWT, token)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, connID string, logger *zerolog.Logger) error {
	limiter := newRateLimiter(h.opts.RateLimitPerMinute)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			h.reply(connID, rateLimitedError(), logger)
			continue
		}
		if typ != websocket.MessageText {
			h.reply(connID, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "text frames only"}, logger)
			continue
		}
		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.reply(connID, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed frame"}, logger)
			continue
		}
		if protoErr := validateInbound(inbound); protoErr != nil {
			h.reply(connID, protoErr, logger)
			continue
		}

		if err := h.sessions.Dispatch(ctx, connID, inbound.Event, inbound.Data); err != nil {
			protoErr := dispatchError(err)
			if protoErr == nil {
				return err
			}
			h.reply(connID, protoErr, logger)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan proto.Outbound, logger *zerolog.Logger) error {
	for {
		select {
		case frame, ok := <-out:
			if !ok {
				return nil
			}
			if err := h.writeFrame(ctx, conn, frame); err != nil {
				logger.Error().Err(err).Str("event", frame.Event).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeFrame(ctx context.Context, conn *websocket.Conn, frame proto.Outbound) error {
	wctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, frame)
}

// reply queues an error frame through the registry so it stays ordered with
// the connection's other frames.
func (h *WSHandler) reply(connID string, protoErr *proto.Error, logger *zerolog.Logger) {
	frame := errorFrame(protoErr)
	if err := h.registry.Send(connID, frame.Event, frame.Data); err != nil {
		logger.Warn().Err(err).Str("code", protoErr.Code).Msg("failed to queue error frame")
	}
}

func errorFrame(protoErr *proto.Error) proto.Outbound {
	return proto.Outbound{Event: proto.EventError, Data: *protoErr}
}
