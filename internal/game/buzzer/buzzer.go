// Package buzzer is a built-in game: each round the first player to buzz
// scores a point.
package buzzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/vovakirdan/partyhub-server/internal/game"
)

const Name = "buzzer"

// Events.
const (
	EventBuzz        = "buzz"
	EventNextRound   = "nextRound"
	EventRoundOpen   = "roundOpen"
	EventBuzzed      = "buzzed"
	EventFinalScores = "finalScores"
)

type Settings struct {
	Rounds int `json:"rounds"`
}

type RoundOpen struct {
	Round  int `json:"round"`
	Rounds int `json:"rounds"`
}

type Buzzed struct {
	Round      int            `json:"round"`
	PlayerName string         `json:"playerName"`
	Scores     map[string]int `json:"scores"`
}

type FinalScores struct {
	Scores  map[string]int `json:"scores"`
	Winners []string       `json:"winners"`
}

// Module is the buzzer game module.
type Module struct{}

func New() *Module {
	return &Module{}
}

func (*Module) Info() game.Info {
	return game.Info{
		Name:        Name,
		Description: "First to buzz wins the round",
		MinPlayers:  2,
		MaxPlayers:  16,
	}
}

func (*Module) DefaultSettings() json.RawMessage {
	return json.RawMessage(`{"rounds":5}`)
}

func (*Module) Init(api game.API, players []game.PlayerInfo, settings json.RawMessage) (game.Instance, error) {
	var cfg Settings
	if err := json.Unmarshal(settings, &cfg); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if cfg.Rounds <= 0 {
		return nil, fmt.Errorf("rounds must be positive, got %d", cfg.Rounds)
	}
	if len(players) == 0 {
		return nil, errors.New("no players")
	}

	g := &instance{
		api:    api,
		rounds: cfg.Rounds,
		names:  make(map[string]string, len(players)),
		scores: make(map[string]int, len(players)),
	}
	for _, p := range players {
		g.names[p.ID] = p.Name
		g.scores[p.Name] = 0
		if p.Host {
			g.host = p.ID
		}
	}
	return g, nil
}

// instance state is only touched from the session goroutine.
type instance struct {
	api    game.API
	host   string
	rounds int
	round  int
	open   bool
	names  map[string]string
	scores map[string]int
}

func (g *instance) Events() map[string]game.Handler {
	return map[string]game.Handler{
		EventBuzz:      g.buzz,
		EventNextRound: g.nextRound,
	}
}

func (g *instance) Start() {
	g.openRound()
}

func (g *instance) PlayerLeft(playerID string) {
	delete(g.names, playerID)
	if len(g.names) == 0 {
		g.api.EndGame()
	}
}

func (g *instance) openRound() {
	g.round++
	g.open = true
	g.api.SendToAll(EventRoundOpen, RoundOpen{Round: g.round, Rounds: g.rounds})
}

func (g *instance) buzz(playerID string, _ json.RawMessage) {
	name, ok := g.names[playerID]
	if !ok || !g.open {
		return
	}
	g.open = false
	g.scores[name]++
	g.api.SendToAll(EventBuzzed, Buzzed{Round: g.round, PlayerName: name, Scores: g.copyScores()})

	if g.round >= g.rounds {
		g.api.SendToAll(EventFinalScores, FinalScores{Scores: g.copyScores(), Winners: g.winners()})
		g.api.EndGame()
	}
}

// nextRound is sent by the host once everyone saw the result.
func (g *instance) nextRound(playerID string, _ json.RawMessage) {
	if playerID != g.host || g.open || g.round >= g.rounds {
		return
	}
	g.openRound()
}

func (g *instance) copyScores() map[string]int {
	return maps.Clone(g.scores)
}

func (g *instance) winners() []string {
	best := -1
	var winners []string
	for _, name := range g.names {
		score := g.scores[name]
		switch {
		case score > best:
			best = score
			winners = []string{name}
		case score == best:
			winners = append(winners, name)
		}
	}
	sort.Strings(winners)
	return winners
}
