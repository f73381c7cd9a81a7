package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// TransmissionSource lists transmission rows older than a cutoff.
type TransmissionSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.SignalTransmission, error)
}

// PositionSource lists positions closed before a cutoff.
type PositionSource interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error)
}

// Archiver exports old transmission rows and closed positions to object
// storage as JSONL. It never deletes anything from the primary store; each
// run rewrites the day's file with everything older than the cutoff.
type Archiver struct {
	writer        domain.BlobWriter
	transmissions TransmissionSource
	positions     PositionSource
	audit         domain.AuditStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	transmissions TransmissionSource,
	positions PositionSource,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer:        writer,
		transmissions: transmissions,
		positions:     positions,
		audit:         audit,
	}
}

// ArchiveTransmissions uploads every transmission sent before the cutoff to
// archive/transmissions/YYYY-MM-DD.jsonl and returns the record count.
func (a *Archiver) ArchiveTransmissions(ctx context.Context, before time.Time) (int, error) {
	rows, err := a.transmissions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transmissions query: %w", err)
	}
	return archive(ctx, a, "transmissions", before, rows)
}

// ArchiveClosedPositions uploads every position closed before the cutoff to
// archive/positions/YYYY-MM-DD.jsonl and returns the record count.
func (a *Archiver) ArchiveClosedPositions(ctx context.Context, before time.Time) (int, error) {
	rows, err := a.positions.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	return archive(ctx, a, "positions", before, rows)
}

// Run archives both kinds with the cutoff set retention before now.
func (a *Archiver) Run(ctx context.Context, retention time.Duration) error {
	before := time.Now().UTC().Add(-retention)
	if _, err := a.ArchiveTransmissions(ctx, before); err != nil {
		return err
	}
	_, err := a.ArchiveClosedPositions(ctx, before)
	return err
}

func archive[T any](ctx context.Context, a *Archiver, kind string, before time.Time, records []T) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := len(records)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
		}
	}
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// UTC day of the cutoff.
//
//	archive/transmissions/2026-10-17.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01-02"))
}

// marshalJSONL encodes records as newline-delimited JSON.
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
