package http

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/partyhub-server/internal/proto"
)

var (
	ErrUnknownConn = errors.New("unknown connection")
	ErrSendBuffer  = errors.New("send buffer full")
)

// Registry tracks live websocket connections and their groups. It implements
// core.Transport; sends never block, a full connection drops the frame.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]chan proto.Outbound
	groups map[string]map[string]struct{}

	dropped atomic.Int64
	log     *zerolog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		conns:  make(map[string]chan proto.Outbound),
		groups: make(map[string]map[string]struct{}),
		log:    logger,
	}
}

// Add registers a connection and returns its outbound queue.
func (r *Registry) Add(connID string, buffer int) <-chan proto.Outbound {
	out := make(chan proto.Outbound, buffer)
	r.mu.Lock()
	r.conns[connID] = out
	r.mu.Unlock()
	return out
}

// Remove forgets a connection and drops it from every group. The outbound
// queue is closed.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	close(out)
	for name, members := range r.groups {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.groups, name)
		}
	}
}

func (r *Registry) Send(connID, event string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConn
	}
	return r.push(connID, out, proto.Outbound{Event: event, Data: data})
}

func (r *Registry) SendToGroup(group, event string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	frame := proto.Outbound{Event: event, Data: data}
	var errs []error
	for connID := range r.groups[group] {
		if out, ok := r.conns[connID]; ok {
			if err := r.push(connID, out, frame); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) JoinGroup(connID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return ErrUnknownConn
	}
	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]struct{})
		r.groups[group] = members
	}
	members[connID] = struct{}{}
	return nil
}

func (r *Registry) LeaveGroup(connID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return nil
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.groups, group)
	}
	return nil
}

// Members lists the connections of a group.
func (r *Registry) Members(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.groups[group]))
	for id := range r.groups[group] {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Dropped returns how many frames were discarded on full queues.
func (r *Registry) Dropped() int64 {
	return r.dropped.Load()
}

// push must be called with r.mu held.
func (r *Registry) push(connID string, out chan proto.Outbound, frame proto.Outbound) error {
	select {
	case out <- frame:
		return nil
	default:
		r.dropped.Add(1)
		r.log.Warn().Str("client_id", connID).Str("event", frame.Event).Msg("send buffer full, frame dropped")
		return ErrSendBuffer
	}
}
