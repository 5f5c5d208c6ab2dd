// Package pipestats drains the log channel into a per-run summary report,
// writing a timestamped logs/*.txt file. It is pure observability: nothing
// downstream of the log channel feeds back into the pipeline's correctness.
package pipestats

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/queue"
)

// Reporter drains the log channel and accumulates one record per image.
type Reporter struct {
	Log       queue.Queue[imagejob.LogRecord]
	StartTime time.Time
}

// New builds a Reporter over the shared log channel.
func New(logCh queue.Queue[imagejob.LogRecord], startTime time.Time) *Reporter {
	return &Reporter{Log: logCh, StartTime: startTime}
}

// Run drains Log until the terminal sentinel, logging each record as it
// arrives and writing a combined summary file on exit.
func (r *Reporter) Run(ctx context.Context) error {
	var records []imagejob.LogRecord

	for {
		msg, err := r.Log.Get(ctx)
		if err != nil {
			return fmt.Errorf("pipestats: read: %w", err)
		}

		if msg.Sentinel {
			r.write(records)
			return nil
		}

		rec := msg.Value
		log.Printf("%s: %s: %s (%d)", rec.Stage, rec.Image, rec.Message, rec.Count)
		records = append(records, rec)
	}
}

// write mirrors stats.WritePerformanceResultsWithPrefix's layout: ensure a
// logs/ directory, write one timestamped .txt summary.
func (r *Reporter) write(records []imagejob.LogRecord) {
	if len(records) == 0 {
		return
	}

	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("pipestats: failed to create logs directory: %v", err)
		return
	}

	timestamp := r.StartTime.Format("2006-01-02_15-04-05")
	resultsFile := fmt.Sprintf("logs/pipeline_%s.txt", timestamp)

	file, err := os.Create(resultsFile)
	if err != nil {
		log.Printf("pipestats: failed to create results file: %v", err)
		return
	}
	defer file.Close()

	fmt.Fprintf(file, "=== Tiled Detection Pipeline Run ===\n")
	fmt.Fprintf(file, "Timestamp: %s\n\n", r.StartTime.Format("2006-01-02 15:04:05"))

	total := 0
	for _, rec := range records {
		total += rec.Count
	}

	fmt.Fprintf(file, "Images processed: %d\n", len(records))
	fmt.Fprintf(file, "Total detections: %d\n", total)
	fmt.Fprintf(file, "Total wall time: %.2fs\n\n", time.Since(r.StartTime).Seconds())

	fmt.Fprintf(file, "Per-image detections:\n")
	for i, rec := range records {
		fmt.Fprintf(file, "  %d. %s: %d\n", i+1, rec.Image, rec.Count)
	}
}
