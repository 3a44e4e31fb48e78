package ports

import "context"

// KVStore is the persisted key-value store holding every market record.
// Get on a missing key returns ok=false and a nil error.
type KVStore interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
}

// Mutation is one staged write. Delete mutations carry a nil Value.
type Mutation struct {
	Key    string
	Value  []byte
	Delete bool
}

// BatchWriter is implemented by stores that can apply a set of mutations
// atomically (all or none).
type BatchWriter interface {
	WriteBatch(ctx context.Context, muts []Mutation) error
}
