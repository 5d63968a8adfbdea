package game

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type delivery struct {
	target string
	event  string
	data   any
}

// memTransport records deliveries from any goroutine.
type memTransport struct {
	mu  sync.Mutex
	out []delivery
}

func (m *memTransport) record(target, event string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, delivery{target: target, event: event, data: data})
	return nil
}

func (m *memTransport) Send(connID, event string, data any) error {
	return m.record(connID, event, data)
}

func (m *memTransport) SendToGroup(group, event string, data any) error {
	return m.record(group, event, data)
}

func (m *memTransport) JoinGroup(string, string) error  { return nil }
func (m *memTransport) LeaveGroup(string, string) error { return nil }

func (m *memTransport) find(target, event string) (delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.out {
		if d.target == target && d.event == event {
			return d, true
		}
	}
	return delivery{}, false
}

func mustDelivery(t *testing.T, m *memTransport, target, event string) delivery {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d, ok := m.find(target, event); ok {
			return d
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %s to %s not delivered", event, target)
	return delivery{}
}

// echoModule replies to "ping" with "pong" and ends the game on "quit".
type echoModule struct {
	name    string
	initErr error
	panics  bool
}

func (m *echoModule) Info() Info {
	return Info{Name: m.name, Description: "echo", MinPlayers: 1, MaxPlayers: 4}
}

func (m *echoModule) DefaultSettings() json.RawMessage {
	return json.RawMessage(`{"greeting":"hello"}`)
}

func (m *echoModule) Init(api API, players []PlayerInfo, settings json.RawMessage) (Instance, error) {
	if m.initErr != nil {
		return nil, m.initErr
	}
	if m.panics {
		panic("boom")
	}
	return &echoInstance{api: api, players: players, settings: settings, left: make(chan string, 4)}, nil
}

type echoInstance struct {
	api      API
	players  []PlayerInfo
	settings json.RawMessage
	left     chan string
}

func (e *echoInstance) Events() map[string]Handler {
	return map[string]Handler{
		"ping": func(playerID string, data json.RawMessage) {
			e.api.SendToOne(playerID, "pong", string(data))
		},
		"quit": func(string, json.RawMessage) {
			e.api.EndGame()
		},
		"crash": func(string, json.RawMessage) {
			panic("handler crashed")
		},
	}
}

func (e *echoInstance) Start() {
	e.api.SendToAll("started", string(e.settings))
}

func (e *echoInstance) PlayerLeft(playerID string) {
	e.left <- playerID
}

var errNoBoard = errors.New("no board")
