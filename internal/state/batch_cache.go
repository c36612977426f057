package state

import (
	"context"
	"encoding/base64"
	"time"

	"apr-signal-bot/internal/market"

	"github.com/vmihailenco/msgpack/v5"
)

const batchCacheKey = "market:last_batch"

type cachedBatch struct {
	SavedAt   time.Time         `msgpack:"saved_at"`
	Snapshots []market.Snapshot `msgpack:"snapshots"`
}

// SaveBatch caches the last good snapshot batch so exit checks and
// monitoring can keep running through a feed outage. Encoded with msgpack
// and base64-wrapped to fit the text kv store.
func SaveBatch(ctx context.Context, store Store, snaps []market.Snapshot, now time.Time) error {
	if store == nil {
		return nil
	}
	payload, err := msgpack.Marshal(cachedBatch{SavedAt: now, Snapshots: snaps})
	if err != nil {
		return err
	}
	return store.Set(ctx, batchCacheKey, base64.StdEncoding.EncodeToString(payload))
}

// LoadBatch returns the cached batch and when it was saved. A missing or
// undecodable cache reports ok=false without error so callers can fall
// back to an empty evaluation pass.
func LoadBatch(ctx context.Context, store Store) ([]market.Snapshot, time.Time, bool) {
	if store == nil {
		return nil, time.Time{}, false
	}
	raw, ok, err := store.Get(ctx, batchCacheKey)
	if err != nil || !ok || raw == "" {
		return nil, time.Time{}, false
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, time.Time{}, false
	}
	var cached cachedBatch
	if err := msgpack.Unmarshal(decoded, &cached); err != nil {
		return nil, time.Time{}, false
	}
	return cached.Snapshots, cached.SavedAt, true
}
