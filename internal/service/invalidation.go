package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/CredForge/internal/port/messagequeue"
)

// invalidate drops key from the cache and tells the other nodes to drop it
// from their local tier. Failures are logged: the write is already committed
// and stale entries expire with their TTL.
func (m *ProviderManager) invalidate(ctx context.Context, key CredentialsCacheKey) {
	m.forget(key.TenantID)
	m.cache.Delete(ctx, key)
	if m.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.CredentialsInvalidatePayload{
		TenantID:   key.TenantID,
		IdentityID: key.IdentityID,
		CacheType:  string(key.CacheType),
		Origin:     m.nodeID,
	})
	if err != nil {
		slog.ErrorContext(ctx, "marshal invalidation", "error", err)
		return
	}
	if err := m.queue.Publish(ctx, messagequeue.SubjectCredentialsInvalidate, data); err != nil {
		slog.WarnContext(ctx, "broadcast invalidation failed", "key", key.String(), "error", err)
	}
}

// LocalDeleter drops a key from this node's cache tier only.
type LocalDeleter interface {
	DeleteLocal(ctx context.Context, key string) error
}

// InvalidationSubscriber applies invalidations broadcast by other nodes.
type InvalidationSubscriber struct {
	queue  messagequeue.Subscriber
	local  LocalDeleter
	nodeID string
}

// NewInvalidationSubscriber creates a subscriber for this node.
func NewInvalidationSubscriber(queue messagequeue.Subscriber, local LocalDeleter, nodeID string) *InvalidationSubscriber {
	return &InvalidationSubscriber{queue: queue, local: local, nodeID: nodeID}
}

// Start subscribes to credential invalidations. The returned func stops it.
func (s *InvalidationSubscriber) Start(ctx context.Context) (func(), error) {
	cancel, err := s.queue.Subscribe(ctx, messagequeue.SubjectCredentialsInvalidate, s.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe invalidations: %w", err)
	}
	return cancel, nil
}

func (s *InvalidationSubscriber) handle(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.CredentialsInvalidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode invalidation: %w", err)
	}
	if p.Origin != "" && p.Origin == s.nodeID {
		return nil
	}
	key := CredentialsCacheKey{TenantID: p.TenantID, IdentityID: p.IdentityID, CacheType: CacheType(p.CacheType)}
	if err := s.local.DeleteLocal(ctx, key.String()); err != nil {
		return fmt.Errorf("drop local entry: %w", err)
	}
	slog.DebugContext(ctx, "credentials invalidated", "key", key.String(), "origin", p.Origin)
	return nil
}
