package detector

import (
	"context"

	"tiledetect/pkg/imagejob"
)

// StubAdapter is a deterministic, in-process Adapter used by tests and
// single-binary mode when no real model is attached. By default it returns
// zero detections for every tile; tests may set DetectFunc to return fixed,
// reproducible boxes instead.
type StubAdapter struct {
	// DetectFunc, if set, overrides the zero-detection default. Tests use this to
	// inject deterministic boxes/scores per tile.
	DetectFunc func(tile imagejob.TileTensor) imagejob.RawTileDetection
}

// NewStub builds a StubAdapter that returns zero detections for every tile.
func NewStub() *StubAdapter {
	return &StubAdapter{}
}

func (s *StubAdapter) Detect(ctx context.Context, tile imagejob.TileTensor) (imagejob.RawTileDetection, error) {
	if s.DetectFunc != nil {
		return s.DetectFunc(tile), nil
	}
	return imagejob.RawTileDetection{
		Box:      nil,
		Score:    nil,
		OffsetX:  tile.OffsetX,
		OffsetY:  tile.OffsetY,
		Name:     tile.Name,
		PatchNum: tile.PatchNum,
		TStart:   tile.TStart,
	}, nil
}
