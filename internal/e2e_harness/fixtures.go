package e2e_harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lychee-technology/survey"
)

// FeedbackForm is the baseline form used by the scenarios: a name and a channel
// question.
func FeedbackForm(slug string) *survey.NewForm {
	return &survey.NewForm{
		Slug:  slug,
		Title: "Spring feedback",
		Fields: []survey.Field{
			{ID: "q_name", Type: survey.FieldTypeShortText, Label: "Name", Validation: survey.FieldValidation{Required: true}},
			{ID: "q_channel", Type: survey.FieldTypeSingleChoice, Label: "How did you hear about us?", Options: []survey.FieldOption{
				{Value: "poster", Label: "Poster"},
				{Value: "friend", Label: "A friend"},
			}},
		},
	}
}

// WithPhoneField returns content with an extra phone question appended.
func WithPhoneField(wc survey.WorkingCopy) survey.WorkingCopy {
	out := wc.Clone()
	out.Fields = append(out.Fields, survey.Field{ID: "q_phone", Type: survey.FieldTypePhone, Label: "Phone"})
	return out
}

// Answers marshals plain values into an answer set.
func Answers(values map[string]any) (survey.Answers, error) {
	out := make(survey.Answers, len(values))
	for id, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal answer %s: %w", id, err)
		}
		out[id] = raw
	}
	return out, nil
}

// ExportConfig points the exporter at the harness object store.
func ExportConfig(endpoint, bucket string) survey.ExportConfig {
	cfg := survey.DefaultConfig().Export
	cfg.Bucket = bucket
	cfg.Endpoint = endpoint
	cfg.AccessKeyID = s3AccessKey
	cfg.SecretAccessKey = s3SecretKey
	cfg.UsePathStyle = true
	return cfg
}

// ReadObject downloads an object from the harness object store.
func ReadObject(ctx context.Context, endpoint, bucket, key string) (string, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s3AccessKey, s3SecretKey, "")),
		config.WithBaseEndpoint(endpoint),
	)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	return string(body), nil
}
