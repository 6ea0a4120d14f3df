package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

const autosaveFlushTimeout = 5 * time.Second

// WorkingCopySource returns the editor's current content. ok is false while there
// is nothing to save.
type WorkingCopySource func() (wc survey.WorkingCopy, ok bool)

// Autosaver periodically saves an open editing session's working copy as the form's
// draft. Saves only happen when the content changed since the last successful save.
// Failures are logged and retried on the next tick.
type Autosaver struct {
	drafts   survey.DraftStore
	formID   uuid.UUID
	actorID  string
	interval time.Duration
	source   WorkingCopySource

	mu        sync.Mutex
	lastSaved []byte
}

func NewAutosaver(drafts survey.DraftStore, formID uuid.UUID, actorID string, interval time.Duration, source WorkingCopySource) *Autosaver {
	if interval <= 0 {
		interval = survey.DefaultConfig().Draft.AutosaveInterval
	}
	return &Autosaver{
		drafts:   drafts,
		formID:   formID,
		actorID:  actorID,
		interval: interval,
		source:   source,
	}
}

// Run saves on every tick until ctx is done, then flushes once more.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	zap.S().Debugw("autosave started", "formId", a.formID, "interval", a.interval)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), autosaveFlushTimeout)
			a.save(flushCtx)
			cancel()
			zap.S().Debugw("autosave stopped", "formId", a.formID)
			return
		case <-ticker.C:
			a.save(ctx)
		}
	}
}

func (a *Autosaver) save(ctx context.Context) {
	if _, err := a.Flush(ctx); err != nil {
		zap.S().Warnw("autosave failed", "formId", a.formID, "error", err)
	}
}

// Flush saves the working copy if it changed and reports whether a save happened.
func (a *Autosaver) Flush(ctx context.Context) (bool, error) {
	wc, ok := a.source()
	if !ok {
		return false, nil
	}
	fingerprint, err := json.Marshal(wc)
	if err != nil {
		return false, fmt.Errorf("fingerprint working copy: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if bytes.Equal(fingerprint, a.lastSaved) {
		return false, nil
	}
	if _, err := a.drafts.SaveDraft(ctx, &survey.SaveDraftRequest{
		FormID:      a.formID,
		WorkingCopy: wc,
		ActorID:     a.actorID,
	}); err != nil {
		return false, err
	}
	a.lastSaved = fingerprint
	return true, nil
}
