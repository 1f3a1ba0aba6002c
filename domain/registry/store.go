package registry

import (
	"context"

	"multcheck/domain/core"
)

// SessionStore is the save/load contract for the external session store.
// Persistence happens at session boundaries only; the registry never reaches
// into the store mid-operation.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Load(ctx context.Context, id core.SessionID) (*Session, error)
	Delete(ctx context.Context, id core.SessionID) error
}
