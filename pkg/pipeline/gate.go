// Package pipeline wires the six stages (splitter, preprocessor, detector
// bridge, tile-NMS, stitcher, egress) into a running topology and owns
// startup/shutdown.
package pipeline

// Gate is the ingress gate: a mutual-exclusion primitive ensuring the
// splitter handles only one image at a time end to end. The splitter acquires
// it before pulling the next image job off the ingress queue; the stitcher
// releases it once it has flushed that image's detections. This keeps the
// stitcher a simple single-image accumulator instead of a multi-image
// demultiplexer.
type Gate struct {
	token chan struct{}
}

// NewGate returns an unlocked Gate.
func NewGate() *Gate {
	g := &Gate{token: make(chan struct{}, 1)}
	g.token <- struct{}{}
	return g
}

// Acquire blocks until the gate is available.
func (g *Gate) Acquire() {
	<-g.token
}

// Release makes the gate available again.
func (g *Gate) Release() {
	g.token <- struct{}{}
}
