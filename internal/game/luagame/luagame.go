// Package luagame loads game modules written in Lua.
//
// A script returns a table:
//
//	return {
//	  info = { name = "vote", description = "...", minPlayers = 2, maxPlayers = 8 },
//	  defaults = { rounds = 3 },
//	  init = function(api, players, settings)
//	    return { events = { vote = function(playerId, data) end }, start = function() end }
//	  end,
//	}
//
// api exposes sendToAll(event, data), sendToOne(playerId, event, data) and
// endGame(). The returned table may also define playerLeft(playerId).
// Every game instance runs in its own Lua state.
package luagame

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/partyhub-server/internal/game"
)

// Ext is the file extension of Lua game modules.
const Ext = ".lua"

const gameGlobal = "__partyhub_game"

var ErrBadScript = errors.New("bad game script")

// Module is a game module backed by a Lua script.
type Module struct {
	path     string
	info     game.Info
	defaults json.RawMessage
	log      *zerolog.Logger
}

// Loader returns a game.Loader whose modules log through logger.
func Loader(logger *zerolog.Logger) game.Loader {
	return func(path string) (game.Module, error) {
		return Load(path, logger)
	}
}

// Load reads the script once to validate it and extract info and defaults.
func Load(path string, logger *zerolog.Logger) (*Module, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l, err := open(path)
	if err != nil {
		return nil, err
	}

	m := &Module{path: path, log: logger}

	l.Field(-1, "info")
	info := tableToMap(l, -1)
	l.Pop(1)
	m.info = game.Info{
		Name:        stringField(info, "name", strings.TrimSuffix(filepath.Base(path), Ext)),
		Description: stringField(info, "description", ""),
		MinPlayers:  intField(info, "minPlayers", 1),
		MaxPlayers:  intField(info, "maxPlayers", 0),
	}

	l.Field(-1, "defaults")
	defaults := toValue(l, -1)
	l.Pop(1)
	if defaults == nil {
		defaults = map[string]any{}
	}
	if m.defaults, err = json.Marshal(defaults); err != nil {
		return nil, fmt.Errorf("%w: defaults: %w", ErrBadScript, err)
	}

	l.Field(-1, "init")
	if !l.IsFunction(-1) {
		return nil, fmt.Errorf("%w: %s has no init function", ErrBadScript, path)
	}
	return m, nil
}

// open runs the script in a fresh state and leaves its module table on top.
func open(path string) (*lua.State, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)
	if err := lua.LoadFile(l, path, ""); err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrBadScript, path, err)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("%w: run %s: %w", ErrBadScript, path, err)
	}
	if !l.IsTable(-1) {
		return nil, fmt.Errorf("%w: %s must return a table", ErrBadScript, path)
	}
	return l, nil
}

func (m *Module) Info() game.Info { return m.info }

func (m *Module) DefaultSettings() json.RawMessage { return m.defaults }

// Init starts a new Lua state and calls the script's init function.
func (m *Module) Init(api game.API, players []game.PlayerInfo, settings json.RawMessage) (game.Instance, error) {
	l, err := open(m.path)
	if err != nil {
		return nil, err
	}
	inst := &instance{l: l, api: api, game: m.info.Name, log: m.log}

	l.Field(-1, "init")
	inst.pushAPI()
	pushValue(l, players)
	pushJSON(l, settings)
	if err := l.ProtectedCall(3, 1, 0); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if !l.IsTable(-1) {
		return nil, fmt.Errorf("%w: init must return a table", ErrBadScript)
	}
	l.SetGlobal(gameGlobal)
	l.SetTop(0)

	inst.events = inst.eventNames()
	return inst, nil
}

type instance struct {
	l      *lua.State
	api    game.API
	game   string
	events []string
	log    *zerolog.Logger
}

func (i *instance) pushAPI() {
	i.l.NewTable()
	lua.SetFunctions(i.l, []lua.RegistryFunction{
		{Name: "sendToAll", Function: func(l *lua.State) int {
			event := lua.CheckString(l, 1)
			i.api.SendToAll(event, toValue(l, 2))
			return 0
		}},
		{Name: "sendToOne", Function: func(l *lua.State) int {
			playerID := lua.CheckString(l, 1)
			event := lua.CheckString(l, 2)
			i.api.SendToOne(playerID, event, toValue(l, 3))
			return 0
		}},
		{Name: "endGame", Function: func(l *lua.State) int {
			i.api.EndGame()
			return 0
		}},
	}, 0)
}

func (i *instance) eventNames() []string {
	defer i.l.SetTop(0)
	i.l.Global(gameGlobal)
	i.l.Field(-1, "events")
	if !i.l.IsTable(-1) {
		return nil
	}
	var names []string
	i.l.PushNil()
	for i.l.Next(-2) {
		if i.l.TypeOf(-2) == lua.TypeString && i.l.IsFunction(-1) {
			name, _ := i.l.ToString(-2)
			names = append(names, name)
		}
		i.l.Pop(1)
	}
	sort.Strings(names)
	return names
}

func (i *instance) Events() map[string]game.Handler {
	handlers := make(map[string]game.Handler, len(i.events))
	for _, name := range i.events {
		handlers[name] = func(playerID string, data json.RawMessage) {
			i.call("event "+name, func() int {
				i.l.Global(gameGlobal)
				i.l.Field(-1, "events")
				i.l.Field(-1, name)
				i.l.PushString(playerID)
				pushJSON(i.l, data)
				return 2
			})
		}
	}
	return handlers
}

func (i *instance) Start() {
	i.call("start", func() int {
		i.l.Global(gameGlobal)
		i.l.Field(-1, "start")
		return 0
	})
}

func (i *instance) PlayerLeft(playerID string) {
	i.call("playerLeft", func() int {
		i.l.Global(gameGlobal)
		i.l.Field(-1, "playerLeft")
		i.l.PushString(playerID)
		return 1
	})
}

// call runs prepare, which pushes a function followed by its arguments and
// returns the argument count. A missing function is not an error.
func (i *instance) call(what string, prepare func() int) {
	defer i.l.SetTop(0)
	args := prepare()
	if !i.l.IsFunction(-1 - args) {
		return
	}
	if err := i.l.ProtectedCall(args, 0, 0); err != nil {
		i.log.Warn().Err(err).Str("game", i.game).Str("call", what).Msg("lua game error")
	}
}

func stringField(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func intField(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
