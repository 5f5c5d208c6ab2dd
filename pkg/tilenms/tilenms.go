// Package tilenms implements the tile-NMS stage: each of the M tile-NMS
// workers reads a shared detector-output queue, applies per-tile polygon
// NMS, translates coordinates from tile-local to image-global space, and
// forwards the result to the cache queue.
//
// The M workers share one physical input queue but each must independently
// observe the single terminal sentinel arriving on it. A worker that simply
// consumed its own sentinel would either starve siblings of it or loop
// forever re-enqueueing; Group's shared atomic counter makes exactly one
// worker the last to observe it, so only that worker skips the re-enqueue
// and no sentinel is left behind in the queue.
package tilenms

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"tiledetect/pkg/config"
	"tiledetect/pkg/geometry"
	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/queue"
)

// Worker is one of the M tile-NMS workers.
type Worker struct {
	ID      int
	In      queue.Queue[imagejob.RawTileDetection]
	Out     queue.Queue[imagejob.TileResult]
	Cfg     config.DetectionConfig
	IoU     geometry.IoUFunc
	remaining *atomic.Int64 // shared across all workers in the Group
}

// Group is the full set of M tile-NMS workers sharing one detector-output
// queue and one shared sentinel counter.
type Group struct {
	workers   []*Worker
	remaining atomic.Int64
}

// NewGroup builds a Group of M tile-NMS workers draining in, each forwarding
// its per-tile result onto out.
func NewGroup(m int, in queue.Queue[imagejob.RawTileDetection], out queue.Queue[imagejob.TileResult], cfg config.DetectionConfig, iou geometry.IoUFunc) *Group {
	g := &Group{workers: make([]*Worker, m)}
	g.remaining.Store(int64(m))
	for i := 0; i < m; i++ {
		g.workers[i] = &Worker{ID: i, In: in, Out: out, Cfg: cfg, IoU: iou, remaining: &g.remaining}
	}
	return g
}

// Run starts all M workers and blocks until every one has exited, returning
// the first error encountered (if any).
func (g *Group) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(g.workers))

	for _, w := range g.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.run(ctx); err != nil {
				errs <- err
			}
		}(w)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		return err
	}
	return nil
}

func (w *Worker) run(ctx context.Context) error {
	classNum := 0
	for {
		msg, err := w.In.Get(ctx)
		if err != nil {
			return fmt.Errorf("tile-nms %d: read: %w", w.ID, err)
		}

		if msg.Sentinel {
			if w.remaining.Add(-1) > 0 {
				if err := w.In.Put(ctx, queue.Sentinel[imagejob.RawTileDetection]()); err != nil {
					return fmt.Errorf("tile-nms %d: re-enqueue sentinel: %w", w.ID, err)
				}
			}
			if err := w.Out.Put(ctx, queue.Sentinel[imagejob.TileResult]()); err != nil {
				return fmt.Errorf("tile-nms %d: forward sentinel: %w", w.ID, err)
			}
			log.Printf("Tile-NMS %d: shutting down", w.ID)
			return nil
		}

		det := msg.Value
		if len(det.Score) > 0 {
			classNum = len(det.Score[0])
		}

		rboxes, labels := geometry.MultiClassPolyNMS(det.Box, det.Score, w.Cfg.ScoreThreshold, w.Cfg.NMSThreshold, w.Cfg.MaxDetNum, w.IoU)
		for i := range rboxes {
			geometry.Translate(&rboxes[i], float64(det.OffsetX), float64(det.OffsetY))
		}

		result := imagejob.TileResult{
			RBoxes:   rboxes,
			Labels:   labels,
			Name:     det.Name,
			PatchNum: det.PatchNum,
			ClassNum: classNum,
			TStart:   det.TStart,
		}
		if err := w.Out.Put(ctx, queue.Of(result)); err != nil {
			return fmt.Errorf("tile-nms %d: enqueue result: %w", w.ID, err)
		}
	}
}
