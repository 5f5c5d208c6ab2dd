// Package imagejob holds the wire-level data model shared by every pipeline stage.
package imagejob

import "time"

// ImageJob is the unit entering the pipeline from the ingress queue.
type ImageJob struct {
	Name   string `json:"name"`
	Pixels [][][3]byte `json:"pixels"` // H x W x 3, BGR
}

// TileSpec is one tile carved out by the splitter, in source-image coordinates.
type TileSpec struct {
	Y0, Y1, X0, X1 int `json:"y0_y1_x0_x1"`
}

func (t TileSpec) Height() int { return t.Y1 - t.Y0 }
func (t TileSpec) Width() int  { return t.X1 - t.X0 }

// ImageMeta describes one image's tile-grid bookkeeping. No pipeline stage
// builds or emits an ImageMeta; the splitter carries patch_num on every
// TileJob instead.
type ImageMeta struct {
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	PatchSize int    `json:"patch_size"`
	Gap       int    `json:"gap"`
	PatchNum  int    `json:"patch_num"`
}

// SharedImage is the splitter's converted, shared-immutable RGB buffer. Every
// tile cut from one image job points at the same SharedImage rather than
// carrying its own copy; the preprocessor's crop step is the first point any
// tile-local copy is made.
type SharedImage struct {
	Pixels [][][3]byte // H x W x 3, RGB
	Width  int
	Height int
}

// TileJob is the splitter's per-tile handoff to the preprocessor: a TileSpec
// plus the shared-image and per-image bookkeeping the preprocessor needs to
// build a TileTensor.
type TileJob struct {
	Image    *SharedImage `json:"-"`
	Spec     TileSpec     `json:"spec"`
	Name     string       `json:"name"`
	PatchNum int          `json:"patch_num"`
	TStart   time.Time    `json:"t_start"`
}

// TileTensor is the preprocessor's output: a tensor-ready, normalized tile.
type TileTensor struct {
	// Image is 1x3xSxS, RGB, normalized, zero-padded on the right/bottom.
	Image    [1][3][][]float32 `json:"image"`
	OffsetX  int               `json:"offset_x"`
	OffsetY  int               `json:"offset_y"`
	Name     string            `json:"name"`
	PatchNum int               `json:"patch_num"`
	TStart   time.Time         `json:"t_start"`
}

// RawTileDetection is the detector's raw output for one tile.
type RawTileDetection struct {
	// Box is Kx9: 8 polygon vertex coordinates (tile-local) plus confidence.
	Box [][9]float64 `json:"box"`
	// Score is KxC: per-class scores.
	Score    [][]float64 `json:"score"`
	OffsetX  int         `json:"offset_x"`
	OffsetY  int         `json:"offset_y"`
	Name     string      `json:"name"`
	PatchNum int         `json:"patch_num"`
	TStart   time.Time   `json:"t_start"`
}

// TileResult is the tile-NMS worker's output: image-global boxes for one tile.
type TileResult struct {
	RBoxes   [][9]float64 `json:"rboxes"`
	Labels   []int        `json:"labels"`
	Name     string       `json:"name"`
	PatchNum int          `json:"patch_num"`
	ClassNum int          `json:"class_num"`
	TStart   time.Time    `json:"t_start"`
}

// ImageResult is the stitcher's output: the whole image's deduplicated detections.
type ImageResult struct {
	Name   string       `json:"name"`
	RBoxes [][9]float64 `json:"rboxes"`
	Labels []int        `json:"labels"`
}

// Object is one detection in the egress formatter's object-list representation.
type Object struct {
	Label      string     `json:"label"`
	Box        [8]float64 `json:"box"`
	Confidence float64    `json:"confidence"`
}

// EgressRecord is the final, formatted per-image message.
type EgressRecord struct {
	Image   string   `json:"image"`
	Objects []Object `json:"objects"`
}

// LogRecord is one structured entry on the log channel.
type LogRecord struct {
	Stage   string
	Image   string
	Message string
	Count   int
}
