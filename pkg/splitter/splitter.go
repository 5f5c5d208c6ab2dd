// Package splitter implements the pipeline's first stage: it pulls one image
// job at a time off the ingress queue, converts it BGR->RGB once, cuts it
// into overlapping tiles, and fans the tiles out across the preprocessor
// workers' input queues.
package splitter

import (
	"context"
	"fmt"
	"log"
	"time"

	"tiledetect/pkg/config"
	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/imaging"
	"tiledetect/pkg/pipeline"
	"tiledetect/pkg/queue"
)

// Splitter is the single splitter worker.
type Splitter struct {
	Gate    *pipeline.Gate
	Ingress queue.Queue[imagejob.ImageJob]
	FanOut  []queue.Queue[imagejob.TileJob] // one per preprocessor worker
	Cfg     config.SplitConfig
}

// New builds a Splitter over the given ingress queue and preprocessor fan-out
// queues.
func New(gate *pipeline.Gate, ingress queue.Queue[imagejob.ImageJob], fanOut []queue.Queue[imagejob.TileJob], cfg config.SplitConfig) *Splitter {
	return &Splitter{Gate: gate, Ingress: ingress, FanOut: fanOut, Cfg: cfg}
}

// Run drains the ingress queue until it sees the terminal sentinel, at which
// point it forwards one sentinel to every preprocessor queue and returns.
//
// The gate is acquired before reading each image and held across that
// image's entire fan-out; it is only released once the stitcher has flushed
// that image downstream, so Run releases it itself only on the terminal
// sentinel, where there is no image left in flight to protect, and before
// returning an error.
func (s *Splitter) Run(ctx context.Context) error {
	for {
		s.Gate.Acquire()

		msg, err := s.Ingress.Get(ctx)
		if err != nil {
			s.Gate.Release()
			return fmt.Errorf("splitter: read ingress: %w", err)
		}

		if msg.Sentinel {
			for _, fo := range s.FanOut {
				if err := fo.Put(ctx, queue.Sentinel[imagejob.TileJob]()); err != nil {
					s.Gate.Release()
					return fmt.Errorf("splitter: forward sentinel: %w", err)
				}
			}
			s.Gate.Release()
			log.Printf("Splitter: ingress drained, shutting down")
			return nil
		}

		if err := s.split(ctx, msg.Value); err != nil {
			s.Gate.Release()
			return err
		}
		// Gate intentionally held: released by the stitcher once this image's
		// detections are flushed.
	}
}

func (s *Splitter) split(ctx context.Context, job imagejob.ImageJob) error {
	tStart := time.Now()

	rgb := imaging.ConvertBGRToRGB(job.Pixels)
	height := len(rgb)
	width := 0
	if height > 0 {
		width = len(rgb[0])
	}

	tiles := imaging.TileGrid(width, height, s.Cfg.Subsize, s.Cfg.Gap)
	patchNum := len(tiles)

	log.Printf("Splitter: image %s (%dx%d) cut into %d tiles", job.Name, width, height, patchNum)

	shared := &imagejob.SharedImage{Pixels: rgb, Width: width, Height: height}
	batches := imaging.Partition(tiles, len(s.FanOut))

	for i, batch := range batches {
		for _, spec := range batch {
			tj := imagejob.TileJob{
				Image:    shared,
				Spec:     spec,
				Name:     job.Name,
				PatchNum: patchNum,
				TStart:   tStart,
			}
			if err := s.FanOut[i].Put(ctx, queue.Of(tj)); err != nil {
				return fmt.Errorf("splitter: enqueue tile: %w", err)
			}
		}
	}
	return nil
}
