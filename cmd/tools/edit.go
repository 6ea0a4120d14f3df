package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/survey"
	"github.com/lychee-technology/survey/factory"
	"github.com/lychee-technology/survey/internal"
	"go.uber.org/zap"
)

type editOptions struct {
	db       dbOptions
	formID   uuid.UUID
	file     string
	actor    string
	interval time.Duration
	publish  bool
}

func parseEditFlags(args []string) (*editOptions, error) {
	flags := flag.NewFlagSet("edit", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: survey-tools edit -form-id <id or code> -file <working-copy.json> [options]")
		fmt.Println("")
		fmt.Println("Saves the file as the form's draft whenever it changes, until interrupted.")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := &editOptions{}
	registerDBFlags(flags, &opts.db)
	var formID string
	flags.StringVar(&formID, "form-id", "", "form to edit, as a UUID or a form code (required)")
	flags.StringVar(&opts.file, "file", "", "working copy JSON file (required)")
	flags.StringVar(&opts.actor, "actor", getenvDefault("SURVEY_ACTOR", os.Getenv("USER")), "editor identity recorded on the draft")
	flags.DurationVar(&opts.interval, "interval", survey.DefaultConfig().Draft.AutosaveInterval, "autosave interval")
	flags.BoolVar(&opts.publish, "publish", false, "publish the draft when the session ends")

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
	if opts.file == "" {
		return nil, fmt.Errorf("-file is required")
	}
	if strings.TrimSpace(opts.actor) == "" {
		return nil, fmt.Errorf("-actor is required")
	}
	return opts, nil
}

// parseFormRef accepts a UUID or the short form code used in export keys.
func parseFormRef(ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	return internal.ParseFormCode(ref)
}

// fileSource reads the working copy from path on every call. Unreadable or
// malformed content is skipped until the next tick.
func fileSource(path string) internal.WorkingCopySource {
	return func() (survey.WorkingCopy, bool) {
		raw, err := os.ReadFile(path)
		if err != nil {
			zap.S().Warnw("cannot read working copy", "file", path, "error", err)
			return survey.WorkingCopy{}, false
		}
		var wc survey.WorkingCopy
		if err := json.Unmarshal(raw, &wc); err != nil {
			zap.S().Warnw("working copy is not valid JSON", "file", path, "error", err)
			return survey.WorkingCopy{}, false
		}
		return wc, true
	}
}

func runEdit(args []string) error {
	opts, err := parseEditFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := survey.DefaultConfig()
	config.Database = opts.db.databaseConfig()
	config.Draft.AutosaveInterval = opts.interval

	pool, err := pgxpool.New(ctx, internal.PostgresDSN(config.Database, ""))
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	manager, err := factory.NewFormManagerWithConfig(config, pool)
	if err != nil {
		return err
	}
	if _, err := manager.GetForm(ctx, opts.formID); err != nil {
		return err
	}

	saver := internal.NewAutosaver(manager, opts.formID, opts.actor, opts.interval, fileSource(opts.file))
	if _, err := saver.Flush(ctx); err != nil {
		return fmt.Errorf("initial save: %w", err)
	}
	fmt.Printf("Autosaving %s to form %s every %s (Ctrl+C to stop)\n", opts.file, opts.formID, opts.interval)
	saver.Run(ctx)

	if !opts.publish {
		return nil
	}
	publishCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := manager.Publish(publishCtx, &survey.PublishRequest{FormID: opts.formID, ActorID: opts.actor})
	if err != nil {
		return err
	}
	fmt.Printf("Published version %d\n", res.Version.Version)
	return nil
}
