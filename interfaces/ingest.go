package interfaces

import "context"

// IngestResult summarizes one ingestion pass over a change batch.
type IngestResult struct {
	Upserted int
	Skipped  int
}

// IngestOptions carries the per-session switches for one ingestion pass.
type IngestOptions struct {
	RequestAnalysis bool
}

// IngestionPipeline applies provider change batches to local storage.
// Applying the same batch twice yields the same end state.
type IngestionPipeline interface {
	Ingest(ctx context.Context, accountID string, changes []EmailChange, opts IngestOptions) (IngestResult, error)
}
