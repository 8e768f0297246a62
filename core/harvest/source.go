package harvest

import (
	"context"

	"listing-harvester/core/record"
)

// Session is the read-only credential context shared by all workers.
type Session interface {
	// ID identifies the session in logs.
	ID() string
}

// Credentials are passed to a SessionProvider.
type Credentials struct {
	UserAgent string
	Token     string
}

// SessionProvider acquires a session. Failures are returned as *AuthError.
type SessionProvider interface {
	AcquireSession(ctx context.Context, creds Credentials) (Session, error)
}

// Fetcher fetches one entity. Failures should be *FetchError; anything else
// is treated as transient.
type Fetcher interface {
	FetchEntity(ctx context.Context, session Session, key record.EntityKey) (record.Fetched, error)
}

// Lister pages through the entity keys of the source.
type Lister interface {
	ListEntities(ctx context.Context, session Session, page int) ([]record.EntityKey, bool, error)
}

// Source combines the operations a harvest needs.
type Source interface {
	SessionProvider
	Fetcher
	Lister
}

// RecordSink receives successfully fetched records before they are checkpointed.
type RecordSink interface {
	Put(ctx context.Context, fetched record.Fetched) error
}
