package etl

import (
	"context"

	"github.com/audit-trail/backend/internal/models"
	"go.uber.org/zap"
)

// DefaultBatchSize is how many documents accumulate before a bulk write.
const DefaultBatchSize = 50

// RowStream feeds delta rows to fn in source order. Implemented by the audit
// repository over the joined legacy tables; any error from fn must stop the
// stream and be returned as-is.
type RowStream func(ctx context.Context, fn func(models.DeltaRow) error) error

// Stats summarizes one pipeline run.
type Stats struct {
	Events    int
	Documents int
	Batches   int
}

// Pipeline drives the backfill: group the row stream per event, rebuild each
// event's change set, format it, and hand documents to the writer in fixed
// batches. Single pass, single goroutine; memory stays bounded to the open
// group plus the pending batch.
type Pipeline struct {
	extractor *Extractor
	formatter *Formatter
	writer    *BulkWriter
	batchSize int
	log       *zap.Logger
}

func NewPipeline(extractor *Extractor, formatter *Formatter, writer *BulkWriter, batchSize int, log *zap.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{
		extractor: extractor,
		formatter: formatter,
		writer:    writer,
		batchSize: batchSize,
		log:       log,
	}
}

// Run consumes the stream to completion. After the stream ends the grouper's
// unfinished tail group goes through the same path, and the remaining batch
// buffer is written out so no document is dropped. The first format or write
// error aborts the run.
func (p *Pipeline) Run(ctx context.Context, stream RowStream) (Stats, error) {
	var (
		grouper Grouper
		batch   []Document
		stats   Stats
	)

	process := func(group []models.DeltaRow) error {
		doc, err := p.formatter.Format(p.extractor.Extract(group))
		if err != nil {
			return err
		}
		stats.Events++
		batch = append(batch, doc)

		if len(batch) >= p.batchSize {
			res, err := p.writer.Write(ctx, batch)
			if err != nil {
				return err
			}
			stats.Documents += res.Written
			stats.Batches++
			batch = nil
		}
		return nil
	}

	err := stream(ctx, func(row models.DeltaRow) error {
		if group, ok := grouper.Push(row); ok {
			return process(group)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	if tail := grouper.Flush(); len(tail) > 0 {
		if err := process(tail); err != nil {
			return stats, err
		}
	}

	res, err := p.writer.Write(ctx, batch)
	if err != nil {
		return stats, err
	}
	if res.Written > 0 {
		stats.Documents += res.Written
		stats.Batches++
	}

	p.log.Info("pipeline finished",
		zap.Int("events", stats.Events),
		zap.Int("documents", stats.Documents),
		zap.Int("batches", stats.Batches),
	)
	return stats, nil
}
