package internal

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

var exportBaseHeader = []string{"submission_id", "submitted_at", "form_version", "qr_code_id"}

// exportSource is what the exporter reads from.
type exportSource interface {
	GetVersions(ctx context.Context, formID uuid.UUID) ([]survey.FormVersion, error)
	ListSubmissionsAfter(ctx context.Context, formID uuid.UUID, after *survey.SubmissionCursor, limit int) ([]*survey.Submission, error)
}

// CSVExporter renders a form's submissions as CSV. Each submission is rendered
// against the snapshot of the version it was bound to, never the live schema.
type CSVExporter struct {
	source   exportSource
	uploader *S3Uploader
	nowFunc  func() time.Time
}

// NewCSVExporter builds an exporter. uploader may be nil when only WriteCSV is used.
func NewCSVExporter(source exportSource, uploader *S3Uploader) *CSVExporter {
	return &CSVExporter{source: source, uploader: uploader, nowFunc: time.Now}
}

// WriteCSV writes the header and one row per submission, returning the row count.
func (e *CSVExporter) WriteCSV(ctx context.Context, formID uuid.UUID, w io.Writer) (rows int, err error) {
	started := time.Now()
	defer func() { observe(ctx, "export_csv", started, err) }()

	versions, err := e.source.GetVersions(ctx, formID)
	if err != nil {
		return 0, err
	}
	submissions, err := e.allSubmissions(ctx, formID)
	if err != nil {
		return 0, err
	}
	columns := survey.ColumnsForSubmissions(versions, submissions)

	cw := csv.NewWriter(w)
	header := append([]string{}, exportBaseHeader...)
	for _, f := range columns {
		label := f.Label
		if label == "" {
			label = f.ID
		}
		header = append(header, label)
	}
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	for i := range submissions {
		if err := cw.Write(exportRow(versions, columns, &submissions[i])); err != nil {
			return rows, fmt.Errorf("write row: %w", err)
		}
		rows++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	return rows, nil
}

// exportRow fills a cell only when the column's field existed in the snapshot the
// submission was answered against.
func exportRow(versions []survey.FormVersion, columns []survey.Field, sub *survey.Submission) []string {
	qr := ""
	if sub.QRCodeID != nil {
		qr = sub.QRCodeID.String()
	}
	row := []string{
		sub.ID.String(),
		sub.SubmittedAt.UTC().Format(time.RFC3339),
		strconv.Itoa(sub.FormVersion),
		qr,
	}

	var seen map[string]survey.Field
	if snap := survey.SnapshotFor(versions, sub.FormVersion); snap != nil {
		present := survey.FieldsIntroducedBy(snap.Fields, sub.FormVersion)
		seen = make(map[string]survey.Field, len(present))
		for _, f := range present {
			seen[f.ID] = f
		}
	}
	for _, col := range columns {
		field := col
		if seen != nil {
			f, ok := seen[col.ID]
			if !ok {
				row = append(row, "")
				continue
			}
			field = f
		}
		row = append(row, survey.ResolveFieldLabel(sub, field))
	}
	return row
}

func (e *CSVExporter) allSubmissions(ctx context.Context, formID uuid.UUID) ([]survey.Submission, error) {
	var (
		out   []survey.Submission
		after *survey.SubmissionCursor
	)
	for {
		page, err := e.source.ListSubmissionsAfter(ctx, formID, after, maxSubmissionLimit)
		if err != nil {
			return nil, err
		}
		for _, s := range page {
			out = append(out, *s)
		}
		if len(page) < maxSubmissionLimit {
			return out, nil
		}
		after = survey.CursorOf(page[len(page)-1])
	}
}

// ExportToS3 renders the CSV and uploads it as <prefix>/<form code>/<timestamp>.csv.
func (e *CSVExporter) ExportToS3(ctx context.Context, formID uuid.UUID) (*survey.ExportResult, error) {
	if e.uploader == nil {
		return nil, survey.NewInternalError("export storage is not configured", nil)
	}
	var buf bytes.Buffer
	rows, err := e.WriteCSV(ctx, formID, &buf)
	if err != nil {
		return nil, err
	}

	now := e.nowFunc().UTC()
	key := e.uploader.ObjectKey(fmt.Sprintf("%s/%s.csv", FormCode(formID), now.Format("20060102T150405Z")))
	location, err := e.uploader.Upload(ctx, key, "text/csv", &buf)
	if err != nil {
		return nil, survey.NewInternalError("upload export", err)
	}

	EmitExportRows(ctx, "s3", int64(rows))
	zap.S().Infow("export uploaded", "formId", formID, "bucket", e.uploader.Bucket(), "key", key, "rows", rows)
	return &survey.ExportResult{
		Bucket:     e.uploader.Bucket(),
		Key:        key,
		Location:   location,
		Rows:       rows,
		ExportedAt: now,
	}, nil
}
