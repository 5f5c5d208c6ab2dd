package detector

import (
	"context"
	"sync"
	"sync/atomic"

	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/queue"
)

// Runner bridges the detector-input and detector-output queues using an
// Adapter, standing in for the real, out-of-process detector model. It is not
// part of the core pipeline — a production deployment may run the real model
// against the same two queues instead and never construct a Runner at all.
//
// NumProducers preprocessors each forward exactly one sentinel into the
// shared detector-input queue. Runner counts them and, once all have
// arrived, coalesces them into the single terminal sentinel the tile-NMS
// stage expects on detector-output — the same N-into-1 pattern the stitcher
// uses for its own shutdown.
type Runner struct {
	In           queue.Queue[imagejob.TileTensor]
	Out          queue.Queue[imagejob.RawTileDetection]
	Adapter      Adapter
	NumProducers int
}

// Run drains In with the given worker concurrency, calling Adapter.Detect for
// each tile tensor and forwarding the result to Out. It returns once the
// terminal sentinel has been forwarded and every worker has exited.
//
// The terminal sentinel is put only after every worker has returned, never
// by whichever worker happens to consume the last producer sentinel: a
// sibling worker can still be inside Adapter.Detect for an earlier tile, and
// putting its result on Out after the terminal sentinel would strand it past
// the point the tile-NMS/stitcher stages consider the stream finished.
func (r *Runner) Run(ctx context.Context, workers int) {
	getCtx, cancelGet := context.WithCancel(ctx)
	defer cancelGet()

	var remaining atomic.Int64
	remaining.Store(int64(r.NumProducers))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				// getCtx, not ctx: canceled only once every producer sentinel
				// has been consumed, so a worker blocked here with nothing
				// left to read exits instead of waiting forever.
				msg, err := r.In.Get(getCtx)
				if err != nil {
					return
				}
				if msg.Sentinel {
					if remaining.Add(-1) == 0 {
						cancelGet()
					}
					continue
				}

				result, err := r.Adapter.Detect(ctx, msg.Value)
				if err != nil {
					// A detector failure for a single tile is zero detections,
					// not a dropped tile — the stitcher must still reach patch_num.
					result = imagejob.RawTileDetection{
						Name:     msg.Value.Name,
						OffsetX:  msg.Value.OffsetX,
						OffsetY:  msg.Value.OffsetY,
						PatchNum: msg.Value.PatchNum,
						TStart:   msg.Value.TStart,
					}
				}
				_ = r.Out.Put(ctx, queue.Of(result))
			}
		}()
	}
	wg.Wait()
	_ = r.Out.Put(ctx, queue.Sentinel[imagejob.RawTileDetection]())
}
