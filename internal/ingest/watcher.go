// Package ingest watches an inbox directory and feeds dropped files through
// the document intake pipeline. Processed files move to processed/, files
// the pipeline rejected move to failed/, so the inbox itself only ever
// holds work in flight.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/documents"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/intake"
)

// File extensions the watcher picks up (lowercase, without '.'), mapped to
// the MIME type handed to the pipeline.
var allowedExts = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"txt":  "text/plain",
}

const (
	processedDir = "processed"
	failedDir    = "failed"

	// stableInterval is how long a file's size must hold still before it is
	// considered fully written. Copies into the inbox arrive in chunks.
	stableInterval = 500 * time.Millisecond
	stableChecks   = 2
)

// Intake is the slice of the intake service the watcher needs.
type Intake interface {
	ProcessDocument(ctx context.Context, upload intake.DocumentUpload) (*intake.Record, *documents.Document, error)
}

// Watcher ingests files dropped into a directory.
type Watcher struct {
	dir    string
	svc    Intake
	logger zerolog.Logger

	stableInterval time.Duration
	stableChecks   int
}

// NewWatcher creates a watcher over dir. The directory and its processed/
// and failed/ subdirectories are created on Run.
func NewWatcher(dir string, svc Intake, logger zerolog.Logger) *Watcher {
	return &Watcher{
		dir:            dir,
		svc:            svc,
		logger:         logger,
		stableInterval: stableInterval,
		stableChecks:   stableChecks,
	}
}

// Run watches the inbox until ctx is cancelled. Files already present at
// startup are processed first, then fsnotify events drive the rest.
func (w *Watcher) Run(ctx context.Context) error {
	for _, d := range []string{w.dir, filepath.Join(w.dir, processedDir), filepath.Join(w.dir, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating inbox directory %s: %w", d, err)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating inbox watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info().Str("dir", w.dir).Msg("inbox watcher started")

	// Pick up files that were already waiting.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scanning inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.handle(ctx, filepath.Join(w.dir, e.Name()))
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("inbox watcher stopped")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.handle(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("inbox watcher error")
		}
	}
}

// handle runs one file through the pipeline and files it away. Unknown
// extensions, directories, and already-moved files are skipped silently;
// the same path may arrive through several fsnotify events.
func (w *Watcher) handle(ctx context.Context, path string) {
	contentType, ok := allowedExts[ext(path)]
	if !ok {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	if err := w.waitStable(ctx, path, info.Size()); err != nil {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("inbox file open failed")
		return
	}

	rec, _, perr := w.svc.ProcessDocument(ctx, intake.DocumentUpload{
		FileName:    filepath.Base(path),
		ContentType: contentType,
		Source:      documents.SourceInbox,
		Content:     f,
	})
	f.Close()

	if perr != nil {
		w.logger.Error().Err(perr).Str("path", path).Msg("inbox file failed")
		w.move(path, failedDir)
		return
	}

	evt := w.logger.Info().Str("path", path).Str("status", rec.Status)
	if rec.SourceID != nil {
		evt = evt.Str("source_id", *rec.SourceID)
	}
	evt.Msg("inbox file processed")
	w.move(path, processedDir)
}

// waitStable blocks until the file size stops changing across consecutive
// checks. Returns an error when the file vanished or ctx was cancelled.
func (w *Watcher) waitStable(ctx context.Context, path string, size int64) error {
	stable := 0
	for stable < w.stableChecks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.stableInterval):
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Size() == size {
			stable++
		} else {
			stable = 0
			size = info.Size()
		}
	}
	return nil
}

// move relocates an ingested file into the named subdirectory, suffixing
// the name with a timestamp when the target already exists.
func (w *Watcher) move(path, sub string) {
	base := filepath.Base(path)
	dest := filepath.Join(w.dir, sub, base)
	if _, err := os.Stat(dest); err == nil {
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		dest = filepath.Join(w.dir, sub,
			fmt.Sprintf("%s-%d%s", stem, time.Now().UnixNano(), filepath.Ext(base)))
	}
	if err := os.Rename(path, dest); err != nil {
		w.logger.Warn().Err(err).Str("path", path).Str("dest", dest).Msg("inbox file move failed")
	}
}

func ext(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
