package state

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Side is the synthetic position a symbol is notionally in.
type Side string

const (
	SideNone  Side = "NONE"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

const positionBookKey = "strategy:position_book"

// PositionBook is the durable symbol → side mapping owned by the
// directional strategy. Transition holds the book lock across the whole
// read-evaluate-write sequence so two overlapping evaluation passes cannot
// both observe NONE for a symbol and double-enter it.
type PositionBook struct {
	mu    sync.Mutex
	store Store
	log   *zap.Logger
}

func NewPositionBook(store Store, log *zap.Logger) *PositionBook {
	if log == nil {
		log = zap.NewNop()
	}
	return &PositionBook{store: store, log: log}
}

// All returns the current book. An unreadable or corrupt book reads as
// empty: signal generation stays available at the accepted risk of
// re-entering a position the store believed was open.
func (b *PositionBook) All(ctx context.Context) map[string]Side {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx)
}

// Side returns the recorded side for one symbol, defaulting to NONE.
func (b *PositionBook) Side(ctx context.Context, symbol string) Side {
	b.mu.Lock()
	defer b.mu.Unlock()
	side, ok := b.load(ctx)[symbol]
	if !ok {
		return SideNone
	}
	return side
}

// Transition applies fn to the symbol's current side and persists the
// result before returning. The store write and the caller's signal
// emission form one atomic unit per symbol: if the write fails the caller
// sees the error and must not emit.
func (b *PositionBook) Transition(ctx context.Context, symbol string, fn func(Side) Side) (Side, Side, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	book := b.load(ctx)
	prev, ok := book[symbol]
	if !ok {
		prev = SideNone
	}
	next := fn(prev)
	if next == prev {
		return prev, next, nil
	}
	book[symbol] = next
	if err := b.save(ctx, book); err != nil {
		return prev, prev, err
	}
	return prev, next, nil
}

func (b *PositionBook) load(ctx context.Context) map[string]Side {
	book := make(map[string]Side)
	raw, ok, err := b.store.Get(ctx, positionBookKey)
	if err != nil {
		b.log.Warn("position book unreadable, treating as empty", zap.Error(err))
		return book
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return book
	}
	var stored map[string]string
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		b.log.Warn("position book corrupt, treating as empty", zap.Error(err))
		return book
	}
	for symbol, side := range stored {
		book[symbol] = normalizeSide(side)
	}
	return book
}

func (b *PositionBook) save(ctx context.Context, book map[string]Side) error {
	stored := make(map[string]string, len(book))
	for symbol, side := range book {
		stored[symbol] = string(side)
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return b.store.Set(ctx, positionBookKey, string(payload))
}

func normalizeSide(raw string) Side {
	switch Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case SideLong:
		return SideLong
	case SideShort:
		return SideShort
	default:
		return SideNone
	}
}
