package port

import "context"

// Locker serializes access to one inventory cell. Implementations own no
// business data; they are purely a per-key serialization gate.
type Locker interface {
	// Acquire blocks until no other caller holds key, or until ctx ends.
	Acquire(ctx context.Context, key string) error

	// Release marks key free. Releasing a free or unknown key is a no-op.
	Release(key string)
}
