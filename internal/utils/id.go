package utils

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// NewConnectionID returns a fresh identifier for one transport connection.
// Ids are never reused.
func NewConnectionID() string {
	return uuid.NewString()
}

const (
	DefaultRoomIDMin = 100000
	DefaultRoomIDMax = 999999

	randomAttempts = 32
)

var ErrRoomIDsExhausted = errors.New("no free room ids")

// RoomIDs draws random room ids in [min, max].
type RoomIDs struct {
	min, max int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoomIDs builds a generator. A nil rng uses a randomly seeded source.
func NewRoomIDs(min, max int, rng *rand.Rand) *RoomIDs {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RoomIDs{min: min, max: max, rng: rng}
}

// Next returns an id for which taken reports false. It retries random draws
// first and falls back to a linear probe so a nearly full range still
// succeeds.
func (g *RoomIDs) Next(taken func(id int) bool) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	span := g.max - g.min + 1
	for range randomAttempts {
		id := g.min + g.rng.IntN(span)
		if !taken(id) {
			return id, nil
		}
	}
	start := g.rng.IntN(span)
	for i := range span {
		id := g.min + (start+i)%span
		if !taken(id) {
			return id, nil
		}
	}
	return 0, ErrRoomIDsExhausted
}
