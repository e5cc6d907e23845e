package inmemory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/anitogether/relay/internal/repository/connection"
	"github.com/anitogether/relay/pkg/protocol"
	"golang.org/x/exp/maps"
)

type repo struct {
	entries map[string]connection.Entry
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		entries: make(map[string]connection.Entry),
		logger:  logger,
	}
}

func (r *repo) Add(ctx context.Context, conn connection.Conn, identity protocol.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.DebugContext(ctx, "called", "connection_id", conn.Id(), "user_id", identity.Id)
	if _, ok := r.entries[conn.Id()]; ok {
		r.logger.DebugContext(ctx, "returned", "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	r.entries[conn.Id()] = connection.Entry{
		Conn:     conn,
		Identity: identity,
	}

	return nil
}

func (r *repo) Remove(ctx context.Context, connId string) (connection.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.DebugContext(ctx, "called", "connection_id", connId)
	entry, ok := r.entries[connId]
	if !ok {
		r.logger.DebugContext(ctx, "returned", "error", connection.ErrNotFound)
		return connection.Entry{}, connection.ErrNotFound
	}

	delete(r.entries, connId)

	return entry, nil
}

func (r *repo) Get(ctx context.Context, connId string) (connection.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[connId]
	if !ok {
		r.logger.DebugContext(ctx, "returned", "connection_id", connId, "error", connection.ErrNotFound)
		return connection.Entry{}, connection.ErrNotFound
	}

	return entry, nil
}

// GetMany resolves connIds in order, skipping ids that are no longer connected.
func (r *repo) GetMany(ctx context.Context, connIds []string) []connection.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]connection.Entry, 0, len(connIds))
	for _, id := range connIds {
		entry, ok := r.entries[id]
		if !ok {
			r.logger.DebugContext(ctx, "skipping unknown connection", "connection_id", id)
			continue
		}
		entries = append(entries, entry)
	}

	return entries
}

func (r *repo) All(context.Context) []connection.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := maps.Keys(r.entries)
	sort.Strings(ids)

	entries := make([]connection.Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, r.entries[id])
	}

	return entries
}
