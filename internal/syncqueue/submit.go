package syncqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/inspection-sync/internal/domain"
	"github.com/bissquit/inspection-sync/internal/pkg/ctxlog"
)

// Transport performs the two remote calls of a submission.
type Transport interface {
	// UploadBatch uploads local photos and returns remote URLs keyed by
	// logical photo key.
	UploadBatch(ctx context.Context, inspectionID *int64, photos []domain.LocalPhoto) (map[string]string, error)
	// SubmitInspection posts the record and returns the server id, if any.
	SubmitInspection(ctx context.Context, insp *domain.Inspection) (*int64, error)
}

// submit uploads local photos, rewrites their references and posts the
// record. The returned inspection reflects every rewrite that happened, and
// is non-nil on failure when the upload phase already succeeded, so the
// caller can persist it and retry without re-uploading.
func (e *Engine) submit(ctx context.Context, insp *domain.Inspection) (*domain.Inspection, error) {
	if insp == nil {
		return nil, ErrNoInspection
	}

	record := insp
	var rewritten *domain.Inspection

	if photos := insp.LocalPhotos(); len(photos) > 0 {
		start := time.Now()
		urls, err := e.transport.UploadBatch(ctx, insp.ID, photos)
		recordPhase("upload", err, time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("upload photos: %w", err)
		}

		record = insp.WithUploadedURLs(urls)
		rewritten = record
		ctxlog.FromContext(ctx).Debug("photos uploaded", "local", len(photos), "uploaded", len(urls))
	}

	start := time.Now()
	id, err := e.transport.SubmitInspection(ctx, record)
	recordPhase("record", err, time.Since(start))
	if err != nil {
		return rewritten, fmt.Errorf("submit inspection: %w", err)
	}

	if id != nil {
		if record == insp {
			record = insp.Clone()
		}
		record.ID = id
	}
	return record, nil
}
