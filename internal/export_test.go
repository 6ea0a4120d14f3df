package internal

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/lychee-technology/survey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryExportSource struct {
	versions    []survey.FormVersion
	submissions []*survey.Submission
	pages       int
	// afterPage runs once each page has been served.
	afterPage func(m *memoryExportSource)
}

func (m *memoryExportSource) GetVersions(context.Context, uuid.UUID) ([]survey.FormVersion, error) {
	return m.versions, nil
}

func (m *memoryExportSource) ListSubmissionsAfter(_ context.Context, _ uuid.UUID, after *survey.SubmissionCursor, limit int) ([]*survey.Submission, error) {
	m.pages++
	sorted := append([]*survey.Submission{}, m.submissions...)
	sort.Slice(sorted, func(i, j int) bool { return newerThan(sorted[i], survey.CursorOf(sorted[j])) })
	var page []*survey.Submission
	for _, sub := range sorted {
		if after != nil && !newerThan(&survey.Submission{SubmittedAt: after.SubmittedAt, ID: after.ID}, survey.CursorOf(sub)) {
			continue
		}
		if len(page) == limit {
			break
		}
		page = append(page, sub)
	}
	if m.afterPage != nil {
		m.afterPage(m)
	}
	return page, nil
}

// newerThan orders by (submitted_at, id) descending.
func newerThan(s *survey.Submission, c *survey.SubmissionCursor) bool {
	if !s.SubmittedAt.Equal(c.SubmittedAt) {
		return s.SubmittedAt.After(c.SubmittedAt)
	}
	return bytes.Compare(s.ID[:], c.ID[:]) > 0
}

func exportFixture() (*memoryExportSource, uuid.UUID) {
	formID := uuid.MustParse("0190b2a4-0000-7000-8000-000000000001")
	two := 2
	v1 := survey.FormVersion{FormID: formID, Version: 1, Fields: []survey.Field{
		{ID: "name", Type: survey.FieldTypeShortText, Label: "Name"},
		{ID: "intro", Type: survey.FieldTypeHeading, Label: "Welcome"},
		{ID: "color", Type: survey.FieldTypeSingleChoice, Label: "Colour", Options: []survey.FieldOption{{Value: "r", Label: "Red"}}},
	}}
	v2 := survey.FormVersion{FormID: formID, Version: 2, Fields: []survey.Field{
		{ID: "name", Type: survey.FieldTypeShortText, Label: "Full name"},
		{ID: "color", Type: survey.FieldTypeSingleChoice, Label: "Colour", Options: []survey.FieldOption{{Value: "r", Label: "Crimson"}}},
		{ID: "email", Type: survey.FieldTypeEmail, Label: "Email", VersionAdded: &two},
	}}
	newer := &survey.Submission{
		ID: uuid.MustParse("0190b2a4-0000-7000-8000-0000000000b2"), FormID: formID, FormVersion: 2,
		SubmittedAt: fixedNow.Add(time.Hour),
		Answers:     survey.Answers{"name": json.RawMessage(`"Grace"`), "color": json.RawMessage(`"r"`), "email": json.RawMessage(`"g@example.com"`)},
	}
	qr := uuid.MustParse("0190b2a4-0000-7000-8000-0000000000c1")
	older := &survey.Submission{
		ID: uuid.MustParse("0190b2a4-0000-7000-8000-0000000000b1"), FormID: formID, FormVersion: 1, QRCodeID: &qr,
		SubmittedAt: fixedNow,
		// an answer for a field the respondent never saw is not exported
		Answers: survey.Answers{"name": json.RawMessage(`"Ada"`), "color": json.RawMessage(`"r"`), "email": json.RawMessage(`"stray"`)},
	}
	return &memoryExportSource{versions: []survey.FormVersion{v2, v1}, submissions: []*survey.Submission{newer, older}}, formID
}

func TestCSVExporter_RendersAgainstBoundSnapshot(t *testing.T) {
	src, formID := exportFixture()
	e := NewCSVExporter(src, nil)

	var buf bytes.Buffer
	rows, err := e.WriteCSV(context.Background(), formID, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"submission_id", "submitted_at", "form_version", "qr_code_id", "Full name", "Colour", "Email"}, records[0])
	assert.Equal(t, []string{"0190b2a4-0000-7000-8000-0000000000b2", "2025-03-04T06:06:07Z", "2", "", "Grace", "Crimson", "g@example.com"}, records[1])
	assert.Equal(t, []string{"0190b2a4-0000-7000-8000-0000000000b1", "2025-03-04T05:06:07Z", "1", "0190b2a4-0000-7000-8000-0000000000c1", "Ada", "Red", ""}, records[2])
}

func TestCSVExporter_EmptyFormUsesNewestSnapshot(t *testing.T) {
	src, formID := exportFixture()
	src.submissions = nil
	e := NewCSVExporter(src, nil)

	var buf bytes.Buffer
	rows, err := e.WriteCSV(context.Background(), formID, &buf)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Equal(t, "submission_id,submitted_at,form_version,qr_code_id,Full name,Colour,Email\n", buf.String())
	assert.Equal(t, 1, src.pages)
}

func TestCSVExporter_SubmissionsArrivingMidExport(t *testing.T) {
	src, formID := exportFixture()
	src.submissions = nil
	// equal timestamps exercise the id tiebreak at the page boundary
	for i := 0; i < maxSubmissionLimit+5; i++ {
		src.submissions = append(src.submissions, &survey.Submission{
			ID: uuid.New(), FormID: formID, FormVersion: 1,
			SubmittedAt: fixedNow.Add(-time.Duration(i/2) * time.Second),
			Answers:     survey.Answers{"name": json.RawMessage(`"Ada"`)},
		})
	}
	want := make(map[string]bool, len(src.submissions))
	for _, sub := range src.submissions {
		want[sub.ID.String()] = true
	}
	src.afterPage = func(m *memoryExportSource) {
		if m.pages == 1 {
			m.submissions = append(m.submissions, &survey.Submission{
				ID: uuid.New(), FormID: formID, FormVersion: 2, SubmittedAt: fixedNow.Add(time.Minute),
			})
		}
	}

	var buf bytes.Buffer
	rows, err := NewCSVExporter(src, nil).WriteCSV(context.Background(), formID, &buf)
	require.NoError(t, err)
	assert.Equal(t, maxSubmissionLimit+5, rows)
	assert.Equal(t, 2, src.pages)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	got := make(map[string]bool, len(records)-1)
	for _, rec := range records[1:] {
		assert.False(t, got[rec[0]], "duplicate row %s", rec[0])
		got[rec[0]] = true
	}
	assert.Equal(t, want, got)
}

type fakeBuckets struct {
	headErr   error
	createErr error
	created   int
}

func (f *fakeBuckets) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeBuckets) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created++
	return &s3.CreateBucketOutput{}, f.createErr
}

type fakeUploader struct {
	keys   []string
	bodies []string
	err    error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, *in.Key)
	f.bodies = append(f.bodies, string(body))
	return &manager.UploadOutput{Location: "s3://" + *in.Bucket + "/" + *in.Key}, nil
}

func TestCSVExporter_ExportToS3(t *testing.T) {
	src, formID := exportFixture()
	buckets := &fakeBuckets{headErr: errors.New("not found")}
	up := &fakeUploader{}
	e := NewCSVExporter(src, newS3Uploader(buckets, up, "exports-bucket", "/exports/", NewCircuitBreaker(3, time.Minute, time.Minute)))
	e.nowFunc = func() time.Time { return fixedNow }

	res, err := e.ExportToS3(context.Background(), formID)
	require.NoError(t, err)
	assert.Equal(t, "exports/agilfjaaabyabaaaaaaaaaaaae/20250304T050607Z.csv", res.Key)
	assert.Equal(t, "exports-bucket", res.Bucket)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 1, buckets.created)
	require.Len(t, up.bodies, 1)
	assert.True(t, strings.HasPrefix(up.bodies[0], "submission_id,"))

	// the bucket check happens once per uploader
	_, err = e.ExportToS3(context.Background(), formID)
	require.NoError(t, err)
	assert.Equal(t, 1, buckets.created)
}

func TestCSVExporter_ExportWithoutStorage(t *testing.T) {
	src, formID := exportFixture()
	_, err := NewCSVExporter(src, nil).ExportToS3(context.Background(), formID)
	require.Error(t, err)
}

func TestS3Uploader_BucketAlreadyOwned(t *testing.T) {
	buckets := &fakeBuckets{
		headErr:   errors.New("forbidden"),
		createErr: &smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"},
	}
	u := newS3Uploader(buckets, &fakeUploader{}, "b", "", nil)
	_, err := u.Upload(context.Background(), "k.csv", "text/csv", strings.NewReader("x"))
	require.NoError(t, err)

	buckets = &fakeBuckets{headErr: errors.New("forbidden"), createErr: &smithy.GenericAPIError{Code: "AccessDenied"}}
	u = newS3Uploader(buckets, &fakeUploader{}, "b", "", nil)
	_, err = u.Upload(context.Background(), "k.csv", "text/csv", strings.NewReader("x"))
	require.Error(t, err)
}

func TestS3Uploader_BreakerOpensOnRepeatedFailures(t *testing.T) {
	up := &fakeUploader{err: errors.New("timeout")}
	u := newS3Uploader(&fakeBuckets{}, up, "b", "p", NewCircuitBreaker(2, time.Minute, time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := u.Upload(ctx, "k", "text/csv", strings.NewReader("x"))
		require.Error(t, err)
	}
	_, err := u.Upload(ctx, "k", "text/csv", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, "p/k", u.ObjectKey("/k"))
}
