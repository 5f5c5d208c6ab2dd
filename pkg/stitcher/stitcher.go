// Package stitcher implements the pipeline's final assembly stage: a single
// accumulator gathers every tile result for the image currently in flight,
// runs cross-tile polygon NMS once all patch_num tiles have arrived, emits
// the whole-image result, and releases the ingress gate so the splitter can
// admit the next image.
//
// Only one image is ever in flight at a time, so the accumulator is a single
// struct rather than a per-image map.
package stitcher

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tiledetect/pkg/config"
	"tiledetect/pkg/geometry"
	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/pipeline"
	"tiledetect/pkg/queue"
)

// accumulator is the stitcher's single-image state.
type accumulator struct {
	curName    string
	active     bool
	boxes      [][9]float64
	labels     []int
	classNum   int
	patchCount int
	expected   int
	tStart     time.Time
}

func (a *accumulator) reset() {
	*a = accumulator{}
}

// Stitcher is the single stitcher worker.
type Stitcher struct {
	Gate   *pipeline.Gate
	In     queue.Queue[imagejob.TileResult]
	Egress queue.Queue[imagejob.ImageResult]
	Log    queue.Queue[imagejob.LogRecord]
	Cfg    config.DetectionConfig
	IoU    geometry.IoUFunc

	// NumTileNMS is M, the number of tile-NMS workers whose sentinels the
	// stitcher must see before it has truly reached the end of the stream.
	NumTileNMS int

	// ProgressInterval, if nonzero, makes Run log the current image's
	// accumulation progress on this cadence. Zero disables the ticker.
	ProgressInterval time.Duration

	accMu sync.Mutex
	acc   accumulator

	sentinelsSeen atomic.Int64
}

// New builds a Stitcher accumulating tile results from in.
func New(gate *pipeline.Gate, in queue.Queue[imagejob.TileResult], egress queue.Queue[imagejob.ImageResult], logCh queue.Queue[imagejob.LogRecord], numTileNMS int, cfg config.DetectionConfig, iou geometry.IoUFunc) *Stitcher {
	return &Stitcher{Gate: gate, In: in, Egress: egress, Log: logCh, NumTileNMS: numTileNMS, Cfg: cfg, IoU: iou}
}

// Run drains In. On each tile result it folds it into the current image's
// accumulator, flushing and releasing the gate once patch_num tiles have been
// seen. It exits once it has observed one sentinel per tile-NMS worker,
// forwarding a single terminal sentinel on the egress and log channels.
func (s *Stitcher) Run(ctx context.Context) error {
	if s.ProgressInterval > 0 {
		progressCtx, stopProgress := context.WithCancel(ctx)
		defer stopProgress()
		go s.logProgress(progressCtx)
	}

	for {
		msg, err := s.In.Get(ctx)
		if err != nil {
			return fmt.Errorf("stitcher: read: %w", err)
		}

		if msg.Sentinel {
			if s.sentinelsSeen.Add(1) < int64(s.NumTileNMS) {
				continue
			}
			if err := s.Egress.Put(ctx, queue.Sentinel[imagejob.ImageResult]()); err != nil {
				return fmt.Errorf("stitcher: forward egress sentinel: %w", err)
			}
			if err := s.Log.Put(ctx, queue.Sentinel[imagejob.LogRecord]()); err != nil {
				return fmt.Errorf("stitcher: forward log sentinel: %w", err)
			}
			log.Printf("Stitcher: all %d tile-NMS workers drained, shutting down", s.NumTileNMS)
			return nil
		}

		if err := s.accept(ctx, msg.Value); err != nil {
			return err
		}
	}
}

// accept folds one tile result into the current accumulation, flushing (and
// releasing the gate) once the image is complete. A tile result whose name
// doesn't match the image currently being accumulated is a protocol
// violation — the ingress gate guarantees at most one image is in flight
// between the splitter and the stitcher — and is reported as fatal rather
// than silently misfiled.
func (s *Stitcher) accept(ctx context.Context, r imagejob.TileResult) error {
	s.accMu.Lock()
	defer s.accMu.Unlock()

	if !s.acc.active {
		s.acc.active = true
		s.acc.curName = r.Name
		s.acc.expected = r.PatchNum
		s.acc.tStart = r.TStart
	}
	if r.Name != s.acc.curName {
		return fmt.Errorf("stitcher: fatal: tile result for %q arrived while accumulating %q", r.Name, s.acc.curName)
	}

	s.acc.boxes = append(s.acc.boxes, r.RBoxes...)
	labels := make([]int, len(r.RBoxes))
	copy(labels, r.Labels)
	s.acc.labels = append(s.acc.labels, labels...)
	if r.ClassNum > s.acc.classNum {
		s.acc.classNum = r.ClassNum
	}
	s.acc.patchCount++

	if s.acc.patchCount < s.acc.expected {
		return nil
	}
	return s.flush(ctx)
}

// logProgress periodically reports how many tiles have arrived for the image
// currently being accumulated, so a long-running stitch is observable before
// it completes. It is a no-op while no image is in flight.
func (s *Stitcher) logProgress(ctx context.Context) {
	ticker := time.NewTicker(s.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.accMu.Lock()
			active, name, got, expected := s.acc.active, s.acc.curName, s.acc.patchCount, s.acc.expected
			s.accMu.Unlock()
			if active {
				log.Printf("Stitcher: image %s progress: %d/%d tiles received", name, got, expected)
			}
		}
	}
}

// flush runs cross-tile NMS over the accumulated image, emits the result, and
// releases the ingress gate.
func (s *Stitcher) flush(ctx context.Context) error {
	rboxes, labels := geometry.MultiClassPolyNMSPatches(s.acc.boxes, s.acc.labels, s.acc.classNum, s.Cfg.NMSThreshold, s.IoU)

	result := imagejob.ImageResult{Name: s.acc.curName, RBoxes: rboxes, Labels: labels}
	if err := s.Egress.Put(ctx, queue.Of(result)); err != nil {
		return fmt.Errorf("stitcher: enqueue result: %w", err)
	}
	if err := s.Log.Put(ctx, queue.Of(imagejob.LogRecord{
		Stage:   "stitcher",
		Image:   s.acc.curName,
		Message: "image assembled",
		Count:   len(labels),
	})); err != nil {
		return fmt.Errorf("stitcher: enqueue log record: %w", err)
	}

	log.Printf("Stitcher: image %s assembled: %d tiles, %d detections in %.2fs",
		s.acc.curName, s.acc.patchCount, len(labels), time.Since(s.acc.tStart).Seconds())

	s.acc.reset()
	s.Gate.Release()
	return nil
}
