// Package egress implements the pipeline's final formatting stage: it
// reshapes the stitcher's per-image result into an object-list form keyed by
// a label table, and forwards the terminal sentinel. Its shape follows the
// same single-consumer drain loop as every other stage.
package egress

import (
	"context"
	"fmt"
	"log"

	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/queue"
)

// Formatter is the egress stage's single worker.
type Formatter struct {
	In         queue.Queue[imagejob.ImageResult]
	Out        queue.Queue[imagejob.EgressRecord]
	LabelTable []string
}

// New builds a Formatter translating class ids through labelTable.
func New(in queue.Queue[imagejob.ImageResult], out queue.Queue[imagejob.EgressRecord], labelTable []string) *Formatter {
	return &Formatter{In: in, Out: out, LabelTable: labelTable}
}

// Run drains In, formatting and forwarding each image result until it sees
// the terminal sentinel, which it forwards downstream and exits on.
func (f *Formatter) Run(ctx context.Context) error {
	for {
		msg, err := f.In.Get(ctx)
		if err != nil {
			return fmt.Errorf("egress: read: %w", err)
		}

		if msg.Sentinel {
			if err := f.Out.Put(ctx, queue.Sentinel[imagejob.EgressRecord]()); err != nil {
				return fmt.Errorf("egress: forward sentinel: %w", err)
			}
			log.Printf("Egress: shutting down")
			return nil
		}

		record := f.format(msg.Value)
		if err := f.Out.Put(ctx, queue.Of(record)); err != nil {
			return fmt.Errorf("egress: enqueue record: %w", err)
		}
	}
}

func (f *Formatter) format(result imagejob.ImageResult) imagejob.EgressRecord {
	objects := make([]imagejob.Object, len(result.Labels))
	for i, label := range result.Labels {
		box := result.RBoxes[i]
		var coords [8]float64
		copy(coords[:], box[:8])

		objects[i] = imagejob.Object{
			Label:      f.labelName(label),
			Box:        coords,
			Confidence: box[8],
		}
	}
	return imagejob.EgressRecord{Image: result.Name, Objects: objects}
}

func (f *Formatter) labelName(class int) string {
	if class >= 0 && class < len(f.LabelTable) {
		return f.LabelTable[class]
	}
	return fmt.Sprintf("class_%d", class)
}
