package etl

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DocumentStore is the destination of the backfill. One BulkIndex call
// carries one complete batch; partial failures inside the store are its own
// concern and surface as a single error here.
type DocumentStore interface {
	BulkIndex(ctx context.Context, docs []Document) error
}

// WriteError reports a rejected batch write, carrying the size attempted.
type WriteError struct {
	BatchSize int
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("bulk write of %d documents failed: %v", e.BatchSize, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// WriteResult reports the outcome of one batch write.
type WriteResult struct {
	Written int
}

// BulkWriter submits formatted documents to the destination store, one call
// per batch. Batch sizing is the caller's policy, not the writer's.
type BulkWriter struct {
	store DocumentStore
	log   *zap.Logger
}

func NewBulkWriter(store DocumentStore, log *zap.Logger) *BulkWriter {
	return &BulkWriter{store: store, log: log}
}

// Write sends the given documents to the store in a single call. An empty
// batch is a no-op. Store failures are treated as all-or-nothing and wrapped
// into a WriteError.
func (w *BulkWriter) Write(ctx context.Context, docs []Document) (WriteResult, error) {
	if len(docs) == 0 {
		return WriteResult{}, nil
	}

	if err := w.store.BulkIndex(ctx, docs); err != nil {
		return WriteResult{}, &WriteError{BatchSize: len(docs), Err: err}
	}

	w.log.Info("batch written",
		zap.Int("documents", len(docs)),
		zap.String("first_id", docs[0].ID),
		zap.String("last_id", docs[len(docs)-1].ID),
	)
	return WriteResult{Written: len(docs)}, nil
}
