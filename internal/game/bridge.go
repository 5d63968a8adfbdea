package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/partyhub-server/internal/core"
)

const defaultInboxSize = 256

var (
	ErrAlreadyActive = errors.New("room already runs a game")
	ErrInitFailed    = errors.New("game init failed")
)

// Bridge runs one game session per IN_GAME room. Each session owns a
// goroutine, so module code for a room never runs concurrently with itself
// and never runs on the caller's goroutine after Init.
type Bridge struct {
	registry  *Registry
	exec      *core.Executor
	log       *zerolog.Logger
	inboxSize int

	mu       sync.Mutex
	sessions map[int]*session
	onEnd    func(roomID int)
}

// NewBridge builds a bridge resolving modules from reg and delivering their
// output through exec.
func NewBridge(reg *Registry, exec *core.Executor, logger *zerolog.Logger) *Bridge {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bridge{
		registry:  reg,
		exec:      exec,
		log:       logger,
		inboxSize: defaultInboxSize,
		sessions:  make(map[int]*session),
	}
}

// OnEnd sets the callback run when a module ends its game.
// It runs on its own goroutine.
func (b *Bridge) OnEnd(fn func(roomID int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEnd = fn
}

// Activate resolves the module of act, initializes it with players and starts
// it. On error nothing is left running for the room.
func (b *Bridge) Activate(act core.Activation, players []PlayerInfo) error {
	module, err := b.registry.Resolve(act.GameName)
	if err != nil {
		return err
	}

	b.mu.Lock()
	_, busy := b.sessions[act.RoomID]
	b.mu.Unlock()
	if busy {
		return fmt.Errorf("%w: room %d", ErrAlreadyActive, act.RoomID)
	}

	settings := act.Settings
	if len(settings) == 0 {
		settings = module.DefaultSettings()
	}

	sess := &session{
		roomID: act.RoomID,
		game:   act.GameName,
		inbox:  make(chan message, b.inboxSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	api := &roomAPI{bridge: b, sess: sess}

	inst, err := initModule(module, api, players, settings)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	sess.instance = inst
	sess.handlers = inst.Events()

	b.mu.Lock()
	b.sessions[act.RoomID] = sess
	b.mu.Unlock()

	b.log.Info().Int("room_id", act.RoomID).Str("game", act.GameName).Int("players", len(players)).Msg("game session started")
	go sess.run(b.log)
	return nil
}

func initModule(m Module, api API, players []PlayerInfo, settings json.RawMessage) (inst Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	inst, err = m.Init(api, players, settings)
	if err == nil && inst == nil {
		err = fmt.Errorf("%w: nil instance", ErrInvalidModule)
	}
	return inst, err
}

// Forward hands an event from a player to the room's game session.
// It never blocks; it returns false when the event was dropped.
func (b *Bridge) Forward(roomID int, playerID, event string, data json.RawMessage) bool {
	sess, ok := b.session(roomID)
	if !ok {
		return false
	}
	if _, ok := sess.handlers[event]; !ok {
		return false
	}
	if !sess.post(message{playerID: playerID, event: event, data: data}) {
		b.log.Warn().Int("room_id", roomID).Str("player_id", playerID).Str("event", event).Msg("game inbox full, event dropped")
		return false
	}
	return true
}

// PlayerLeft tells the room's module that a player disconnected.
func (b *Bridge) PlayerLeft(roomID int, playerID string) {
	sess, ok := b.session(roomID)
	if !ok {
		return
	}
	if _, ok := sess.instance.(PlayerLeaver); !ok {
		return
	}
	if !sess.post(message{playerID: playerID, left: true}) {
		b.log.Warn().Int("room_id", roomID).Str("player_id", playerID).Msg("game inbox full, departure dropped")
	}
}

// Stop uninstalls the room's session. It does not wait for module code
// currently running to return.
func (b *Bridge) Stop(roomID int) {
	b.mu.Lock()
	sess, ok := b.sessions[roomID]
	delete(b.sessions, roomID)
	b.mu.Unlock()
	if !ok {
		return
	}
	sess.stop()
	b.log.Info().Int("room_id", roomID).Str("game", sess.game).Msg("game session stopped")
}

// StopAll stops every session and waits for their goroutines to exit.
func (b *Bridge) StopAll() {
	b.mu.Lock()
	sessions := make([]*session, 0, len(b.sessions))
	for id, sess := range b.sessions {
		sessions = append(sessions, sess)
		delete(b.sessions, id)
	}
	b.mu.Unlock()

	for _, sess := range sessions {
		sess.stop()
	}
	for _, sess := range sessions {
		<-sess.exited
	}
}

// Active reports whether the room has a running session.
func (b *Bridge) Active(roomID int) bool {
	_, ok := b.session(roomID)
	return ok
}

func (b *Bridge) session(roomID int) (*session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[roomID]
	return sess, ok
}

func (b *Bridge) endGame(roomID int) {
	b.mu.Lock()
	fn := b.onEnd
	b.mu.Unlock()
	if fn != nil {
		go fn(roomID)
	}
}

type message struct {
	playerID string
	event    string
	data     json.RawMessage
	left     bool
}

type session struct {
	roomID   int
	game     string
	instance Instance
	handlers map[string]Handler

	inbox    chan message
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	endOnce  sync.Once
}

func (s *session) post(msg message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- msg:
		return true
	default:
		return false
	}
}

func (s *session) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *session) run(logger *zerolog.Logger) {
	defer close(s.exited)
	defer func() {
		if c, ok := s.instance.(Closer); ok {
			c.Close()
		}
	}()

	s.guard(logger, "start", s.instance.Start)
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.inbox:
			if msg.left {
				leaver := s.instance.(PlayerLeaver)
				s.guard(logger, "player_left", func() { leaver.PlayerLeft(msg.playerID) })
				continue
			}
			handler := s.handlers[msg.event]
			s.guard(logger, msg.event, func() { handler(msg.playerID, msg.data) })
		}
	}
}

// guard runs module code, keeping a panicking module from taking the
// process down.
func (s *session) guard(logger *zerolog.Logger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Int("room_id", s.roomID).Str("game", s.game).Str("event", what).Interface("panic", r).Msg("game module panicked")
		}
	}()
	fn()
}

// roomAPI is the capability set handed to one module instance.
type roomAPI struct {
	bridge *Bridge
	sess   *session
}

func (a *roomAPI) SendToAll(event string, data any) {
	if a.sess.stopped() {
		return
	}
	a.bridge.exec.Execute([]core.Effect{
		core.SendToRoom{RoomID: a.sess.roomID, Event: event, Data: data},
	})
}

func (a *roomAPI) SendToOne(playerID, event string, data any) {
	if a.sess.stopped() {
		return
	}
	a.bridge.exec.Execute([]core.Effect{
		core.SendToOne{PlayerID: playerID, Event: event, Data: data},
	})
}

func (a *roomAPI) EndGame() {
	if a.sess.stopped() {
		return
	}
	a.sess.endOnce.Do(func() { a.bridge.endGame(a.sess.roomID) })
}
