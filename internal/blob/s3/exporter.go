package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"

	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = 8 * 1024 * 1024
)

// PredictionSource lists the predictions to include in a snapshot.
type PredictionSource interface {
	// ListBefore returns every prediction dated strictly before cutoff.
	ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Prediction, error)
}

// IndustrySource lists the industries to include in a snapshot.
type IndustrySource interface {
	List(ctx context.Context) ([]domain.Industry, error)
}

// SnapshotExporter implements domain.Exporter. Each export serialises the
// selected records to JSONL and uploads them under
// exports/<kind>/<YYYY-MM-DD>/<HHMMSS>-<uuid>.jsonl, so repeated runs never
// overwrite each other. Exports are never deleted from the primary store.
type SnapshotExporter struct {
	writer      domain.BlobWriter
	predictions PredictionSource
	industries  IndustrySource
	audit       domain.AuditStore
	newID       func() string
}

// NewExporter creates a SnapshotExporter. audit may be nil.
func NewExporter(writer domain.BlobWriter, predictions PredictionSource, industries IndustrySource, audit domain.AuditStore) *SnapshotExporter {
	return &SnapshotExporter{
		writer:      writer,
		predictions: predictions,
		industries:  industries,
		audit:       audit,
		newID:       uuid.NewString,
	}
}

// ExportPredictions uploads every prediction dated before at.
func (e *SnapshotExporter) ExportPredictions(ctx context.Context, at time.Time) (string, int64, error) {
	preds, err := e.predictions.ListBefore(ctx, at)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: export predictions query: %w", err)
	}
	return upload(ctx, e, "predictions", at, preds)
}

// ExportIndustries uploads the full industry catalogue.
func (e *SnapshotExporter) ExportIndustries(ctx context.Context, at time.Time) (string, int64, error) {
	inds, err := e.industries.List(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: export industries query: %w", err)
	}
	return upload(ctx, e, "industries", at, inds)
}

func upload[T any](ctx context.Context, e *SnapshotExporter, kind string, at time.Time, records []T) (string, int64, error) {
	buf, err := marshalJSONL(records)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: export %s marshal: %w", kind, err)
	}

	path := exportPath(kind, at, e.newID())
	if len(buf) >= multipartThreshold {
		err = e.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = e.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: export %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if e.audit != nil {
		if err := e.audit.Log(ctx, "export."+kind, map[string]any{
			"path":  path,
			"count": count,
			"at":    at.UTC().Format(time.RFC3339),
		}); err != nil {
			return path, count, fmt.Errorf("s3blob: export %s audit log: %w", kind, err)
		}
	}
	return path, count, nil
}

// exportPath builds the object path of one export, e.g.
//
//	exports/predictions/2026-03-02/083000-3f1c....jsonl
func exportPath(kind string, at time.Time, id string) string {
	at = at.UTC()
	return fmt.Sprintf("exports/%s/%s/%s-%s.jsonl", kind, at.Format(time.DateOnly), at.Format("150405"), id)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Exporter = (*SnapshotExporter)(nil)
