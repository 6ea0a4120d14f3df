package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/survey"
	"github.com/lychee-technology/survey/factory"
	"github.com/lychee-technology/survey/internal"
)

type exportOptions struct {
	db      dbOptions
	formID  uuid.UUID
	out     string
	export  survey.ExportConfig
	timeout time.Duration
}

func parseExportFlags(args []string) (*exportOptions, error) {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: survey-tools export -form-id <id or code> [options]")
		fmt.Println("")
		fmt.Println("Writes the CSV to -out (\"-\" for stdout) or uploads it to the export bucket.")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := &exportOptions{export: survey.DefaultConfig().Export}
	registerDBFlags(flags, &opts.db)
	var formID string
	flags.StringVar(&formID, "form-id", "", "form to export, as a UUID or a form code (required)")
	flags.StringVar(&opts.out, "out", "", "write the CSV to this path instead of uploading it")
	flags.StringVar(&opts.export.Bucket, "bucket", getenvDefault("EXPORT_BUCKET", ""), "export bucket")
	flags.StringVar(&opts.export.Prefix, "prefix", getenvDefault("EXPORT_PREFIX", opts.export.Prefix), "object key prefix")
	flags.StringVar(&opts.export.Region, "region", getenvDefault("EXPORT_REGION", opts.export.Region), "bucket region")
	flags.StringVar(&opts.export.Endpoint, "endpoint", getenvDefault("EXPORT_ENDPOINT", ""), "custom S3 endpoint (MinIO, RustFS)")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall export timeout")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if formID == "" {
		return nil, fmt.Errorf("-form-id is required")
	}
	id, err := parseFormRef(formID)
	if err != nil {
		return nil, fmt.Errorf("invalid -form-id: %w", err)
	}
	opts.formID = id
	if opts.out == "" && opts.export.Bucket == "" {
		return nil, fmt.Errorf("either -out or -bucket is required")
	}
	opts.export.AccessKeyID = os.Getenv("EXPORT_ACCESS_KEY_ID")
	opts.export.SecretAccessKey = os.Getenv("EXPORT_SECRET_ACCESS_KEY")
	opts.export.UsePathStyle = opts.export.Endpoint != ""
	return opts, nil
}

func runExport(args []string) error {
	opts, err := parseExportFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	config := survey.DefaultConfig()
	config.Database = opts.db.databaseConfig()
	config.Export = opts.export
	if opts.out != "" {
		config.Export.Bucket = ""
	}

	pool, err := pgxpool.New(ctx, internal.PostgresDSN(config.Database, ""))
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	stack, err := factory.NewStackWithConfig(ctx, config, pool)
	if err != nil {
		return err
	}
	defer stack.Close()

	if opts.out == "" {
		result, err := stack.Exporter.ExportToS3(ctx, opts.formID)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d rows to s3://%s/%s\n", result.Rows, result.Bucket, result.Key)
		return nil
	}

	var w io.Writer = os.Stdout
	if opts.out != "-" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	rows, err := stack.Exporter.WriteCSV(ctx, opts.formID, w)
	if err != nil {
		return err
	}
	if opts.out != "-" {
		fmt.Printf("Exported %d rows to %s\n", rows, opts.out)
	}
	return nil
}
