package ports

import "context"

// StorageBackend is one physical key-value tier of the credential store.
// Any method may fail; the credential store absorbs failures.
type StorageBackend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// ChangeKind classifies a cross-instance session change.
type ChangeKind string

const (
	ChangeSaved   ChangeKind = "saved"
	ChangeCleared ChangeKind = "cleared"
)

// ChangeEvent is broadcast when an instance writes or clears the shared session keys.
type ChangeEvent struct {
	Kind   ChangeKind `json:"kind"`
	Origin string     `json:"origin"` // instance ID of the writer
}

// ChangeNotifier carries storage-change notifications between instances sharing durable storage.
type ChangeNotifier interface {
	// Publish announces a local change. Implementations that observe storage directly may no-op.
	Publish(ctx context.Context, ev ChangeEvent) error

	// Listen delivers events to fn until ctx is done.
	Listen(ctx context.Context, fn func(ChangeEvent)) error
}
