package ledger

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/predictbot/internal/ports"
)

// Overlay stages writes over a KVStore so that one market call is applied as
// a whole or not at all. Reads see staged writes first.
//
// An Overlay is not safe for concurrent use; the engine creates one per call.
type Overlay struct {
	base   ports.KVStore
	writes map[string]ports.Mutation
	order  []string
}

// NewOverlay returns an empty overlay over base.
func NewOverlay(base ports.KVStore) *Overlay {
	return &Overlay{base: base, writes: make(map[string]ports.Mutation)}
}

func (o *Overlay) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m, ok := o.writes[key]; ok {
		if m.Delete {
			return nil, false, nil
		}
		return clone(m.Value), true, nil
	}
	return o.base.Get(ctx, key)
}

func (o *Overlay) Set(_ context.Context, key string, value []byte) error {
	o.stage(ports.Mutation{Key: key, Value: clone(value)})
	return nil
}

func (o *Overlay) Delete(_ context.Context, key string) error {
	o.stage(ports.Mutation{Key: key, Delete: true})
	return nil
}

func (o *Overlay) Has(ctx context.Context, key string) (bool, error) {
	if m, ok := o.writes[key]; ok {
		return !m.Delete, nil
	}
	return o.base.Has(ctx, key)
}

// Mutations returns staged writes in first-write order.
func (o *Overlay) Mutations() []ports.Mutation {
	out := make([]ports.Mutation, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, o.writes[k])
	}
	return out
}

// Len is the number of distinct keys staged.
func (o *Overlay) Len() int { return len(o.order) }

// Commit writes all staged mutations to the base store and clears the
// overlay. Stores implementing ports.BatchWriter apply them atomically.
func (o *Overlay) Commit(ctx context.Context) error {
	if len(o.order) == 0 {
		return nil
	}
	muts := o.Mutations()
	if bw, ok := o.base.(ports.BatchWriter); ok {
		if err := bw.WriteBatch(ctx, muts); err != nil {
			return fmt.Errorf("ledger.Commit: batch of %d: %w", len(muts), err)
		}
		o.Discard()
		return nil
	}
	for _, m := range muts {
		var err error
		if m.Delete {
			err = o.base.Delete(ctx, m.Key)
		} else {
			err = o.base.Set(ctx, m.Key, m.Value)
		}
		if err != nil {
			return fmt.Errorf("ledger.Commit: %q: %w", m.Key, err)
		}
	}
	o.Discard()
	return nil
}

// Discard drops every staged mutation.
func (o *Overlay) Discard() {
	o.writes = make(map[string]ports.Mutation)
	o.order = o.order[:0]
}

func (o *Overlay) stage(m ports.Mutation) {
	if _, seen := o.writes[m.Key]; !seen {
		o.order = append(o.order, m.Key)
	}
	o.writes[m.Key] = m
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
