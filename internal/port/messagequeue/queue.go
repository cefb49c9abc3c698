// Package messagequeue defines the message queue port used for cache
// invalidation between CredForge nodes.
package messagequeue

import "context"

// SubjectCredentialsInvalidate tells every node to drop a cached credential
// entry from its in-process tier.
const SubjectCredentialsInvalidate = "credentials.invalidate"

// Handler processes one message. A non-nil error asks for redelivery.
type Handler func(ctx context.Context, subject string, data []byte) error

// Publisher sends messages. Publish must carry the request ID found in ctx.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber delivers messages on a subject to a handler until the returned
// cancel func is called. Payloads failing Validate never reach the handler.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)
}

// Queue is a connected publisher and subscriber.
type Queue interface {
	Publisher
	Subscriber
	Drain() error
	Close() error
	IsConnected() bool
}
