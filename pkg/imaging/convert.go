package imaging

import (
	"time"

	"tiledetect/pkg/imagejob"
)

// NormParams holds the per-channel normalization constants, precomputed once
// at stage construction to avoid a per-tile division.
type NormParams struct {
	Enable bool
	Mean   [3]float32
	InvStd [3]float32 // 1/std
}

// NewNormParams precomputes 1/std once at stage construction.
func NewNormParams(enable bool, mean, std [3]float32) NormParams {
	return NormParams{
		Enable: enable,
		Mean:   mean,
		InvStd: [3]float32{1 / std[0], 1 / std[1], 1 / std[2]},
	}
}

// DefaultNormParams matches the standard configuration defaults.
func DefaultNormParams(enable bool) NormParams {
	return NewNormParams(enable, [3]float32{123.675, 116.28, 103.53}, [3]float32{58.395, 57.12, 57.375})
}

// ConvertBGRToRGB returns a new buffer with channels reordered BGR->RGB. The
// splitter runs this once per image, before fan-out, so every tile crop reads
// from an already-converted, shared-immutable buffer.
func ConvertBGRToRGB(pixels [][][3]byte) [][][3]byte {
	out := make([][][3]byte, len(pixels))
	for y, row := range pixels {
		out[y] = make([][3]byte, len(row))
		for x, px := range row {
			out[y][x] = [3]byte{px[2], px[1], px[0]}
		}
	}
	return out
}

// crop copies src[y0:y1, x0:x1, :] into a private buffer. The result never
// aliases src.
func crop(src [][][3]byte, spec imagejob.TileSpec) [][][3]byte {
	h := spec.Height()
	w := spec.Width()
	out := make([][][3]byte, h)
	for y := 0; y < h; y++ {
		out[y] = make([][3]byte, w)
		copy(out[y], src[spec.Y0+y][spec.X0:spec.X1])
	}
	return out
}

// BuildTileTensor runs the preprocessor's crop/pad/normalize/transpose
// pipeline on one tile spec, producing a tensor-ready descriptor.
func BuildTileTensor(rgb [][][3]byte, spec imagejob.TileSpec, patchSize int, norm NormParams, name string, patchNum int, tStart time.Time) imagejob.TileTensor {
	cropped := crop(rgb, spec)
	h := spec.Height()
	w := spec.Width()

	var chw [3][][]float32
	for c := 0; c < 3; c++ {
		chw[c] = make([][]float32, patchSize)
		for y := 0; y < patchSize; y++ {
			chw[c][y] = make([]float32, patchSize)
		}
	}

	for y := 0; y < patchSize; y++ {
		for x := 0; x < patchSize; x++ {
			var px [3]byte
			if y < h && x < w {
				px = cropped[y][x]
			} // else: zero padding, bottom/right only

			for c := 0; c < 3; c++ {
				v := float32(px[c])
				if norm.Enable {
					v = (v - norm.Mean[c]) * norm.InvStd[c]
				}
				chw[c][y][x] = v
			}
		}
	}

	return imagejob.TileTensor{
		Image:    [1][3][][]float32{chw},
		OffsetX:  spec.X0,
		OffsetY:  spec.Y0,
		Name:     name,
		PatchNum: patchNum,
		TStart:   tStart,
	}
}
