package ports

import (
	"multcheck/domain/registry"
)

// SessionStore is the external durable-store collaborator for registry
// sessions. The contract is defined next to the session type; this alias
// keeps all collaborator interfaces visible in one place.
type SessionStore = registry.SessionStore
