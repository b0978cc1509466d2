package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/documents"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/intake"
)

type fakeIntake struct {
	mu      sync.Mutex
	uploads []intake.DocumentUpload
	texts   []string
	err     error
}

func (f *fakeIntake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeIntake) ProcessDocument(_ context.Context, upload intake.DocumentUpload) (*intake.Record, *documents.Document, error) {
	data, _ := io.ReadAll(upload.Content)
	f.mu.Lock()
	f.uploads = append(f.uploads, upload)
	f.texts = append(f.texts, string(data))
	f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	sourceID := "SMITH_JOHN__03_14_1975"
	return &intake.Record{
		ID:       uuid.New(),
		Channel:  intake.ChannelInbox,
		Status:   intake.StatusComplete,
		SourceID: &sourceID,
	}, nil, nil
}

func newTestWatcher(t *testing.T, svc Intake) *Watcher {
	t.Helper()
	w := NewWatcher(t.TempDir(), svc, zerolog.Nop())
	w.stableInterval = 5 * time.Millisecond
	for _, d := range []string{w.dir, filepath.Join(w.dir, processedDir), filepath.Join(w.dir, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return w
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHandle_ProcessesAndMoves(t *testing.T) {
	svc := &fakeIntake{}
	w := newTestWatcher(t, svc)
	path := writeFile(t, w.dir, "referral.txt", "patient John Smith born 3/14/1975")

	w.handle(context.Background(), path)

	if len(svc.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(svc.uploads))
	}
	up := svc.uploads[0]
	if up.FileName != "referral.txt" {
		t.Errorf("unexpected file name %q", up.FileName)
	}
	if up.ContentType != "text/plain" {
		t.Errorf("unexpected content type %q", up.ContentType)
	}
	if up.Source != documents.SourceInbox {
		t.Errorf("expected inbox source, got %q", up.Source)
	}
	if svc.texts[0] != "patient John Smith born 3/14/1975" {
		t.Errorf("unexpected content %q", svc.texts[0])
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected original file moved out of the inbox")
	}
	if _, err := os.Stat(filepath.Join(w.dir, processedDir, "referral.txt")); err != nil {
		t.Errorf("expected file in processed/: %v", err)
	}
}

func TestHandle_MovesToFailedOnError(t *testing.T) {
	svc := &fakeIntake{err: errors.New("extraction provider down")}
	w := newTestWatcher(t, svc)
	path := writeFile(t, w.dir, "scan.pdf", "%PDF-1.4")

	w.handle(context.Background(), path)

	if _, err := os.Stat(filepath.Join(w.dir, failedDir, "scan.pdf")); err != nil {
		t.Errorf("expected file in failed/: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected original file moved out of the inbox")
	}
}

func TestHandle_SkipsUnknownExtensions(t *testing.T) {
	svc := &fakeIntake{}
	w := newTestWatcher(t, svc)
	path := writeFile(t, w.dir, "notes.docx", "not supported")

	w.handle(context.Background(), path)

	if len(svc.uploads) != 0 {
		t.Fatalf("expected no uploads, got %d", len(svc.uploads))
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("expected unsupported file left in place")
	}
}

func TestMove_AvoidsCollisions(t *testing.T) {
	svc := &fakeIntake{}
	w := newTestWatcher(t, svc)
	writeFile(t, filepath.Join(w.dir, processedDir), "dup.txt", "first")
	path := writeFile(t, w.dir, "dup.txt", "second")

	w.move(path, processedDir)

	entries, err := os.ReadDir(filepath.Join(w.dir, processedDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 files in processed/, got %d", len(entries))
	}
}

func TestRun_PicksUpExistingFiles(t *testing.T) {
	svc := &fakeIntake{}
	w := newTestWatcher(t, svc)
	writeFile(t, w.dir, "waiting.txt", "patient Jane Doe born 1/2/1990")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for svc.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for initial scan")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if svc.uploads[0].FileName != "waiting.txt" {
		t.Errorf("unexpected file %q", svc.uploads[0].FileName)
	}
}
