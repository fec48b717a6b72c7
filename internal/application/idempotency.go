package application

import "context"

// IdempotencyStore deduplicates externally triggered ingestion runs.
type IdempotencyStore interface {
	// TryReserve reports whether key was free and is now held by the caller.
	TryReserve(ctx context.Context, key string) (bool, error)
	// Release frees a held key so it can be reserved again.
	Release(ctx context.Context, key string) error
}

// NoopIdempotency accepts every key; used when IDEMPOTENCY_BACKEND=none.
type NoopIdempotency struct{}

func (NoopIdempotency) TryReserve(context.Context, string) (bool, error) { return true, nil }
func (NoopIdempotency) Release(context.Context, string) error             { return nil }

func runKey(idem string) string { return "ingest:run:" + idem }
