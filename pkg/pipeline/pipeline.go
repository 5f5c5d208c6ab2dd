// Package pipeline wires the six stages (splitter, preprocessor, detector
// bridge, tile-NMS, stitcher, egress) into a running topology and owns
// startup/shutdown: one goroutine per component, a shared WaitGroup, and
// errors collected on a buffered channel.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"tiledetect/pkg/config"
	"tiledetect/pkg/detector"
	"tiledetect/pkg/egress"
	"tiledetect/pkg/geometry"
	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/imaging"
	"tiledetect/pkg/preprocessor"
	"tiledetect/pkg/queue"
	"tiledetect/pkg/queue/memq"
	"tiledetect/pkg/splitter"
	"tiledetect/pkg/stitcher"
	"tiledetect/pkg/tilenms"
)

// Pipeline holds the externally-owned endpoints plus the configuration and
// collaborators needed to build the internal topology: explicit parameters
// passed into each worker at construction, not ambient singletons.
type Pipeline struct {
	Cfg     config.Config
	Gate    *Gate
	Ingress queue.Queue[imagejob.ImageJob]
	Egress  queue.Queue[imagejob.EgressRecord]
	Log     queue.Queue[imagejob.LogRecord]
	Adapter detector.Adapter
	IoU     geometry.IoUFunc

	// DetectorIn/DetectorOut, when non-nil, replace the default in-process
	// memq pair and the adapter is never run in-process — an external process
	// reads DetectorIn and writes DetectorOut instead, standing in for a
	// Redis Streams adapter that hands tiles to, and collects results from,
	// an out-of-process detector. Leave both nil for single-binary operation,
	// where Adapter is driven in-process by a detector.Runner.
	DetectorIn  queue.Queue[imagejob.TileTensor]
	DetectorOut queue.Queue[imagejob.RawTileDetection]
}

// New builds a Pipeline over caller-owned ingress/egress/log queues.
// ingress must already be wired to receive image jobs (and a terminal
// sentinel once closed); egress and log are drained by the caller.
func New(cfg config.Config, ingress queue.Queue[imagejob.ImageJob], egressQ queue.Queue[imagejob.EgressRecord], logQ queue.Queue[imagejob.LogRecord], adapter detector.Adapter, iou geometry.IoUFunc) *Pipeline {
	return &Pipeline{
		Cfg:     cfg,
		Gate:    NewGate(),
		Ingress: ingress,
		Egress:  egressQ,
		Log:     logQ,
		Adapter: adapter,
		IoU:     iou,
	}
}

// Run builds the internal queue topology, starts every stage, and blocks
// until all of them have exited (i.e. the terminal sentinel has drained all
// the way to the egress formatter). It returns the first error raised by any
// stage, if any.
func (p *Pipeline) Run(ctx context.Context) error {
	fanOut := make([]queue.Queue[imagejob.TileJob], p.Cfg.NumPreprocessors)
	for i := range fanOut {
		fanOut[i] = memq.New[imagejob.TileJob](p.Cfg.CacheSize)
	}
	detectorIn := p.DetectorIn
	detectorOut := p.DetectorOut
	runInProcessDetector := detectorIn == nil && detectorOut == nil
	if runInProcessDetector {
		detectorIn = memq.New[imagejob.TileTensor](p.Cfg.CacheSize)
		detectorOut = memq.New[imagejob.RawTileDetection](p.Cfg.CacheSize)
	}
	cacheQ := memq.New[imagejob.TileResult](p.Cfg.CacheSize)
	stitcherOut := memq.New[imagejob.ImageResult](1)

	norm := imaging.NewNormParams(p.Cfg.Normalization.Enable, p.Cfg.Normalization.Mean, p.Cfg.Normalization.Std)

	s := splitter.New(p.Gate, p.Ingress, fanOut, p.Cfg.Split)

	preWorkers := make([]*preprocessor.Worker, p.Cfg.NumPreprocessors)
	for i := range preWorkers {
		preWorkers[i] = preprocessor.New(i, fanOut[i], detectorIn, p.Cfg.Split.Subsize, norm)
	}

	var runner *detector.Runner
	if runInProcessDetector {
		runner = &detector.Runner{In: detectorIn, Out: detectorOut, Adapter: p.Adapter, NumProducers: p.Cfg.NumPreprocessors}
	}

	tileGroup := tilenms.NewGroup(p.Cfg.NumTileNMS, detectorOut, cacheQ, p.Cfg.Detection, p.IoU)

	stitch := stitcher.New(p.Gate, cacheQ, stitcherOut, p.Log, p.Cfg.NumTileNMS, p.Cfg.Detection, p.IoU)
	stitch.ProgressInterval = p.Cfg.ProgressInterval

	formatter := egress.New(stitcherOut, p.Egress, p.Cfg.LabelTable)

	var wg sync.WaitGroup
	errs := make(chan error, 5+len(preWorkers))

	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	run("splitter", func() error { return s.Run(ctx) })
	for _, w := range preWorkers {
		w := w
		run(fmt.Sprintf("preprocessor-%d", w.ID), func() error { return w.Run(ctx) })
	}
	if runInProcessDetector {
		run("detector-runner", func() error { runner.Run(ctx, p.Cfg.NumPreprocessors); return nil })
	}
	run("tile-nms", func() error { return tileGroup.Run(ctx) })
	run("stitcher", func() error { return stitch.Run(ctx) })
	run("egress", func() error { return formatter.Run(ctx) })

	wg.Wait()
	close(errs)

	for err := range errs {
		return err
	}
	return nil
}
