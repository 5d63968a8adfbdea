package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMirrorQueue = 1024
	mirrorOpTimeout    = 5 * time.Second
)

type mirrorOp struct {
	name string
	run  func(ctx context.Context) error
}

// Mirror writes snapshots to a Store in the background. Calls never block:
// when the queue is full the write is dropped and counted.
type Mirror struct {
	store   Store
	ops     chan mirrorOp
	log     *zerolog.Logger
	dropped atomic.Int64
}

// NewMirror builds a mirror with a queue of size entries.
func NewMirror(st Store, logger *zerolog.Logger, size int) *Mirror {
	if size <= 0 {
		size = defaultMirrorQueue
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Mirror{store: st, ops: make(chan mirrorOp, size), log: logger}
}

// Run applies queued writes until ctx is done, then flushes what is left.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.flush()
			return
		case op := <-m.ops:
			m.apply(context.Background(), op)
		}
	}
}

func (m *Mirror) flush() {
	for {
		select {
		case op := <-m.ops:
			m.apply(context.Background(), op)
		default:
			return
		}
	}
}

func (m *Mirror) apply(parent context.Context, op mirrorOp) {
	ctx, cancel := context.WithTimeout(parent, mirrorOpTimeout)
	defer cancel()
	if err := op.run(ctx); err != nil {
		m.log.Warn().Err(err).Str("op", op.name).Msg("store mirror write failed")
	}
}

func (m *Mirror) enqueue(name string, run func(ctx context.Context) error) {
	select {
	case m.ops <- mirrorOp{name: name, run: run}:
	default:
		m.dropped.Add(1)
		m.log.Warn().Str("op", name).Msg("store mirror queue full, write dropped")
	}
}

// Dropped returns the number of writes lost to a full queue.
func (m *Mirror) Dropped() int64 {
	return m.dropped.Load()
}

func (m *Mirror) SaveRoom(room Room) {
	m.enqueue("save_room", func(ctx context.Context) error { return m.store.SaveRoom(ctx, &room) })
}

func (m *Mirror) DeleteRoom(id int64) {
	m.enqueue("delete_room", func(ctx context.Context) error { return m.store.DeleteRoom(ctx, id) })
}

func (m *Mirror) SavePlayer(player Player) {
	m.enqueue("save_player", func(ctx context.Context) error { return m.store.SavePlayer(ctx, &player) })
}

func (m *Mirror) DeletePlayer(id string) {
	m.enqueue("delete_player", func(ctx context.Context) error { return m.store.DeletePlayer(ctx, id) })
}

func (m *Mirror) RecordMatch(match Match) {
	m.enqueue("save_match", func(ctx context.Context) error { return m.store.SaveMatch(ctx, &match) })
}
