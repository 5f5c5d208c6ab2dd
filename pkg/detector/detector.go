// Package detector defines the detector-adapter boundary: the core pipeline
// treats the object detector model as a queue-to-queue black box that
// consumes tile tensors and returns per-tile raw detections. Adapter is that
// interface. Stub is a deterministic in-process reference implementation for
// tests and single-binary operation. Runner bridges two queue.Queue[T]
// instances by driving an Adapter in-process; an out-of-process model can
// serve the same two queues directly instead, with no Runner at all.
package detector

import (
	"context"

	"tiledetect/pkg/imagejob"
)

// Adapter consumes one tile tensor and produces one raw tile detection. A
// detector failure for a single tile is treated as "zero detections" for
// that tile by the caller — Adapter implementations should prefer returning
// a zero-detection result over an error where that distinction doesn't
// matter downstream.
type Adapter interface {
	Detect(ctx context.Context, tile imagejob.TileTensor) (imagejob.RawTileDetection, error)
}
