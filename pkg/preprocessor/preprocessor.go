// Package preprocessor implements the pipeline's tile-preparation stage:
// each of the N preprocessor workers drains its own input queue, runs the
// crop/pad/normalize/transpose pipeline on every tile it receives, and
// forwards the resulting tensor onto the single shared detector-input queue.
package preprocessor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/imaging"
	"tiledetect/pkg/queue"
)

// Worker is one of the N preprocessor workers.
type Worker struct {
	ID        int
	In        queue.Queue[imagejob.TileJob]
	Out       queue.Queue[imagejob.TileTensor]
	PatchSize int
	Norm      imaging.NormParams

	tilesProcessed atomic.Int64
}

// New builds a preprocessor worker reading tiles from in and writing tensors
// to the shared detector-input queue out.
func New(id int, in queue.Queue[imagejob.TileJob], out queue.Queue[imagejob.TileTensor], patchSize int, norm imaging.NormParams) *Worker {
	return &Worker{ID: id, In: in, Out: out, PatchSize: patchSize, Norm: norm}
}

// Run drains In until it sees the sentinel, forwards that sentinel onto Out
// (where the detector bridge coalesces one sentinel per preprocessor into a
// single terminal sentinel), and returns.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.In.Get(ctx)
		if err != nil {
			return fmt.Errorf("preprocessor %d: read: %w", w.ID, err)
		}

		if msg.Sentinel {
			if err := w.Out.Put(ctx, queue.Sentinel[imagejob.TileTensor]()); err != nil {
				return fmt.Errorf("preprocessor %d: forward sentinel: %w", w.ID, err)
			}
			log.Printf("Preprocessor %d: processed %d tiles, shutting down", w.ID, w.tilesProcessed.Load())
			return nil
		}

		tile := msg.Value
		tensor := imaging.BuildTileTensor(tile.Image.Pixels, tile.Spec, w.PatchSize, w.Norm, tile.Name, tile.PatchNum, tile.TStart)

		if err := w.Out.Put(ctx, queue.Of(tensor)); err != nil {
			return fmt.Errorf("preprocessor %d: enqueue tensor: %w", w.ID, err)
		}
		w.tilesProcessed.Add(1)
	}
}

// Pool runs the full set of N preprocessor workers to completion, returning
// the first error encountered (if any).
func Pool(ctx context.Context, workers []*Worker) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(workers))

	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
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
