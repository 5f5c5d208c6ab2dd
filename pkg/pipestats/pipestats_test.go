package pipestats

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/queue"
	"tiledetect/pkg/queue/memq"
)

func TestRunWritesSummaryFileOnSentinel(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(cwd)

	ctx := context.Background()
	logCh := memq.New[imagejob.LogRecord](4)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := New(logCh, start)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	_ = logCh.Put(ctx, queue.Of(imagejob.LogRecord{Stage: "stitcher", Image: "img1", Message: "image assembled", Count: 3}))
	_ = logCh.Put(ctx, queue.Sentinel[imagejob.LogRecord]())

	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := filepath.Join(dir, "logs", "pipeline_2026-01-02_03-04-05.txt")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected summary file at %s: %v", want, err)
	}
}

func TestRunWritesNothingWithNoRecords(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(cwd)

	ctx := context.Background()
	logCh := memq.New[imagejob.LogRecord](1)
	r := New(logCh, time.Now())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	_ = logCh.Put(ctx, queue.Sentinel[imagejob.LogRecord]())

	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); err == nil {
		t.Fatalf("expected no logs directory when there are no records")
	}
}
