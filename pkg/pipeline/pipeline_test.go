package pipeline

import (
	"context"
	"testing"
	"time"

	"tiledetect/pkg/config"
	"tiledetect/pkg/detector"
	"tiledetect/pkg/geometry"
	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/queue"
	"tiledetect/pkg/queue/memq"
)

func smallImage(name string, side int) imagejob.ImageJob {
	pixels := make([][][3]byte, side)
	for y := range pixels {
		pixels[y] = make([][3]byte, side)
	}
	return imagejob.ImageJob{Name: name, Pixels: pixels}
}

// TestPipelineProcessesImagesInOrderWithZeroDetections runs two images end to
// end through every stage with a stub adapter (zero detections for every
// tile), confirming: both images reach egress, in the order they entered
// ingress, and the pipeline shuts down cleanly once ingress is closed.
func TestPipelineProcessesImagesInOrderWithZeroDetections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.Default()
	cfg.NumPreprocessors = 2
	cfg.NumTileNMS = 2
	cfg.CacheSize = 8
	cfg.Split.Subsize = 512
	cfg.Split.Gap = 100

	ingress := memq.New[imagejob.ImageJob](2)
	egressQ := memq.New[imagejob.EgressRecord](4)
	logQ := memq.New[imagejob.LogRecord](16)

	p := New(cfg, ingress, egressQ, logQ, detector.NewStub(), geometry.DefaultIoU)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	_ = ingress.Put(ctx, queue.Of(smallImage("first", 600)))
	_ = ingress.Put(ctx, queue.Of(smallImage("second", 600)))
	_ = ingress.Put(ctx, queue.Sentinel[imagejob.ImageJob]())

	// Drain the log channel concurrently so the stitcher never blocks on it.
	logDone := make(chan struct{})
	go func() {
		for {
			msg, err := logQ.Get(ctx)
			if err != nil || msg.Sentinel {
				close(logDone)
				return
			}
		}
	}()

	var names []string
	for i := 0; i < 2; i++ {
		msg, err := egressQ.Get(ctx)
		if err != nil {
			t.Fatalf("egress.Get: %v", err)
		}
		if msg.Sentinel {
			t.Fatalf("got sentinel after only %d image(s)", i)
		}
		names = append(names, msg.Value.Image)
	}
	if names[0] != "first" || names[1] != "second" {
		t.Fatalf("images arrived out of order: %v", names)
	}

	sentinel, err := egressQ.Get(ctx)
	if err != nil || !sentinel.Sentinel {
		t.Fatalf("expected terminal sentinel on egress, got %+v err %v", sentinel, err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	<-logDone
}
