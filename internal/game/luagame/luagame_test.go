package luagame

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vovakirdan/partyhub-server/internal/game"
)

type sent struct {
	to    string
	event string
	data  any
}

type fakeAPI struct {
	sent  []sent
	ended int
}

func (f *fakeAPI) SendToAll(event string, data any) {
	f.sent = append(f.sent, sent{event: event, data: data})
}

func (f *fakeAPI) SendToOne(playerID, event string, data any) {
	f.sent = append(f.sent, sent{to: playerID, event: event, data: data})
}

func (f *fakeAPI) EndGame() { f.ended++ }

func (f *fakeAPI) find(to, event string) (sent, bool) {
	for _, s := range f.sent {
		if s.to == to && s.event == event {
			return s, true
		}
	}
	return sent{}, false
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

var votePath = filepath.Join("..", "..", "..", "games", "vote.lua")

var players = []game.PlayerInfo{
	{ID: "a", Name: "Alice", Host: true},
	{ID: "b", Name: "Bob"},
}

func TestLoadVote(t *testing.T) {
	m, err := Load(votePath, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	info := m.Info()
	if info.Name != "vote" || info.MinPlayers != 2 || info.MaxPlayers != 12 {
		t.Fatalf("unexpected info %+v", info)
	}

	var defaults struct {
		Rounds  int      `json:"rounds"`
		Options []string `json:"options"`
	}
	if err := json.Unmarshal(m.DefaultSettings(), &defaults); err != nil {
		t.Fatalf("decode defaults: %v", err)
	}
	if defaults.Rounds != 3 || len(defaults.Options) != 3 {
		t.Fatalf("unexpected defaults %s", m.DefaultSettings())
	}
}

func TestVoteRound(t *testing.T) {
	m, err := Load(votePath, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	api := &fakeAPI{}
	inst, err := m.Init(api, players, json.RawMessage(`{"rounds":1,"options":["x","y"]}`))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	inst.Start()

	ballot, ok := api.find("", "ballot")
	if !ok {
		t.Fatalf("expected a ballot, got %+v", api.sent)
	}
	want := map[string]any{"round": 1, "rounds": 1, "options": []any{"x", "y"}}
	if !reflect.DeepEqual(ballot.data, want) {
		t.Fatalf("unexpected ballot %#v", ballot.data)
	}

	events := inst.Events()
	vote, ok := events["vote"]
	if !ok || len(events) != 1 {
		t.Fatalf("expected only a vote handler, got %v", events)
	}

	vote("a", json.RawMessage(`{"option":"x"}`))
	vote("b", json.RawMessage(`{"option":"z"}`))
	if _, ok := api.find("b", "invalidVote"); !ok {
		t.Fatalf("expected invalidVote for b")
	}
	vote("b", json.RawMessage(`{"option":"y"}`))

	tally, ok := api.find("", "tally")
	if !ok {
		t.Fatalf("expected a tally, got %+v", api.sent)
	}
	counts := tally.data.(map[string]any)["counts"]
	if !reflect.DeepEqual(counts, map[string]any{"x": 1, "y": 1}) {
		t.Fatalf("unexpected counts %#v", counts)
	}
	if _, ok := api.find("", "results"); !ok {
		t.Fatalf("expected results")
	}
	if api.ended != 1 {
		t.Fatalf("expected endGame, got %d", api.ended)
	}
}

func TestVotePlayerLeftClosesRound(t *testing.T) {
	m, err := Load(votePath, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	api := &fakeAPI{}
	inst, err := m.Init(api, players, m.DefaultSettings())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	inst.Start()
	inst.Events()["vote"]("a", json.RawMessage(`{"option":"red"}`))
	inst.(game.PlayerLeaver).PlayerLeft("b")

	if _, ok := api.find("", "tally"); !ok {
		t.Fatalf("expected the round to close once b left")
	}
}

func TestLoadRejectsBadScripts(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{name: "syntax error", script: `return {`},
		{name: "not a table", script: `return 42`},
		{name: "no init", script: `return { info = { name = "x" } }`},
		{name: "runtime error", script: `error("nope")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeScript(t, "bad.lua", tt.script), nil)
			if !errors.Is(err, ErrBadScript) {
				t.Fatalf("expected ErrBadScript, got %v", err)
			}
		})
	}
}

func TestNameDefaultsToFileName(t *testing.T) {
	path := writeScript(t, "quiet.lua", `return { init = function() return {} end }`)
	m, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Info().Name != "quiet" {
		t.Fatalf("expected name quiet, got %q", m.Info().Name)
	}
	if string(m.DefaultSettings()) != `{}` {
		t.Fatalf("expected empty defaults, got %s", m.DefaultSettings())
	}
}

func TestInitErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{name: "init raises", script: `return { init = function() error("no board") end }`},
		{name: "init returns nothing", script: `return { init = function() end }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Load(writeScript(t, "g.lua", tt.script), nil)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if _, err := m.Init(&fakeAPI{}, players, nil); err == nil {
				t.Fatalf("expected Init to fail")
			}
		})
	}
}

func TestHandlerErrorsAreContained(t *testing.T) {
	script := `
return {
  init = function(api, players, settings)
    return {
      events = {
        boom = function() error("kaboom") end,
        echo = function(id, data) api.sendToOne(id, "echo", data) end,
      },
    }
  end,
}`
	m, err := Load(writeScript(t, "g.lua", script), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	api := &fakeAPI{}
	inst, err := m.Init(api, players, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	inst.Start()
	inst.(game.PlayerLeaver).PlayerLeft("a")

	events := inst.Events()
	events["boom"]("a", nil)
	events["echo"]("a", json.RawMessage(`{"n":[1,2.5,true]}`))

	got, ok := api.find("a", "echo")
	if !ok {
		t.Fatalf("expected echo after a failing handler")
	}
	want := map[string]any{"n": []any{1, 2.5, true}}
	if !reflect.DeepEqual(got.data, want) {
		t.Fatalf("unexpected echo %#v", got.data)
	}
}

func TestLoaderRegistersDir(t *testing.T) {
	reg := game.NewRegistry()
	n, err := reg.LoadDir(filepath.Dir(votePath), Ext, Loader(nil))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n < 1 || !reg.Has("vote") {
		t.Fatalf("vote not registered, loaded %d", n)
	}
}
