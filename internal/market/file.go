package market

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Source produces the current snapshot batch. Implementations own any
// network or filesystem access; evaluation never blocks on them beyond
// a single Fetch call.
type Source interface {
	Fetch(ctx context.Context) ([]Snapshot, error)
}

// Batch is the wire shape written by the rates collector.
type Batch struct {
	GeneratedAt time.Time `json:"generated_at"`
	Markets     []Record  `json:"markets"`
}

// FileSource reads a rates batch file dropped by the acquisition side.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Fetch(ctx context.Context) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}
	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parse rates file: %w", err)
	}
	observedAt := batch.GeneratedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	return Select(batch.Markets, observedAt), nil
}
