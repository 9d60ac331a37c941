package store

import (
	"context"
	"errors"

	"medilens.app/analysis-server/internal/report"
)

// ErrStoreUnavailable indicates the store was used before Initialize
// succeeded. GetAll degrades to an empty collection instead; Put surfaces
// this error, since silently dropping a completed analysis would be worse
// than a visibly failed save.
var ErrStoreUnavailable = errors.New("store not initialized")

// Store persists analysis records keyed by id. Put is insert-or-replace;
// concurrent puts under the same id are last-write-wins, not serialized.
type Store interface {
	// Initialize establishes the storage handle. Idempotent; must be called
	// before any read or write.
	Initialize(ctx context.Context) error
	// Put inserts or replaces one record atomically.
	Put(ctx context.Context, rec *report.AnalysisRecord) error
	// GetAll returns every stored record in no particular order. Ordering is
	// the caller's responsibility.
	GetAll(ctx context.Context) ([]report.AnalysisRecord, error)
	// Clear removes every record. Whole-store clearing is the only deletion
	// this layer exposes.
	Clear(ctx context.Context) error
}
