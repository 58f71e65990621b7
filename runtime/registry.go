package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

const defaultShards = 32

// Set maps a connection to its outbound sink
type Set map[domain.ConnectionID]contract.EventSink

type shard struct {
	mu     sync.RWMutex
	groups map[domain.GroupName]Set
}

// Registry holds group memberships for local connections only.
// Groups are spread over shards so that traffic on one room never
// contends with another; no shard lock is held while a sink consumes.
type Registry struct {
	log    *slog.Logger
	shards []*shard
}

func NewRegistry(log *slog.Logger, shards int) *Registry {
	if shards < 1 {
		shards = defaultShards
	}
	r := &Registry{log: log, shards: make([]*shard, shards)}
	for i := range r.shards {
		r.shards[i] = &shard{groups: make(map[domain.GroupName]Set)}
	}
	return r
}

func (r *Registry) shardFor(group domain.GroupName) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(group))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Subscribe is idempotent; subscribing again only replaces the sink.
func (r *Registry) Subscribe(group domain.GroupName, conn domain.ConnectionID, sink contract.EventSink) {
	s := r.shardFor(group)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[group]
	if !ok {
		members = make(Set)
		s.groups[group] = members
	}
	members[conn] = sink
}

// Unsubscribe is a no-op for unknown pairs.
// Empty groups are removed so the maps don't grow forever.
func (r *Registry) Unsubscribe(group domain.GroupName, conn domain.ConnectionID) {
	s := r.shardFor(group)
	s.mu.Lock()
	defer s.mu.Unlock()

	if members, ok := s.groups[group]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(s.groups, group)
		}
	}
}

func (r *Registry) Members(group domain.GroupName) []domain.ConnectionID {
	s := r.shardFor(group)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.groups[group])
}

// Deliver hands e to every sink of the group and returns how many accepted it.
func (r *Registry) Deliver(ctx context.Context, group domain.GroupName, e event.Envelope) int {
	s := r.shardFor(group)
	s.mu.RLock()
	sinks := lo.Entries(s.groups[group])
	s.mu.RUnlock()

	delivered := 0
	for _, entry := range sinks {
		if err := entry.Value.Consume(ctx, e); err != nil {
			r.log.Debug("Sink refused event", "group", group, "connection_id", entry.Key, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// GroupCount returns the number of non-empty groups over all shards.
func (r *Registry) GroupCount() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.groups)
		s.mu.RUnlock()
	}
	return total
}
