package preprocessor

import (
	"context"
	"testing"

	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/imaging"
	"tiledetect/pkg/queue"
	"tiledetect/pkg/queue/memq"
)

func TestWorkerBuildsTensorAndForwards(t *testing.T) {
	ctx := context.Background()
	in := memq.New[imagejob.TileJob](4)
	out := memq.New[imagejob.TileTensor](4)
	w := New(0, in, out, 4, imaging.NormParams{Enable: false})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	rgb := make([][][3]byte, 4)
	for y := range rgb {
		rgb[y] = make([][3]byte, 4)
		for x := range rgb[y] {
			rgb[y][x] = [3]byte{1, 2, 3}
		}
	}
	shared := &imagejob.SharedImage{Pixels: rgb, Width: 4, Height: 4}

	_ = in.Put(ctx, queue.Of(imagejob.TileJob{
		Image:    shared,
		Spec:     imagejob.TileSpec{Y0: 0, Y1: 4, X0: 0, X1: 4},
		Name:     "img1",
		PatchNum: 1,
	}))

	msg, err := out.Get(ctx)
	if err != nil {
		t.Fatalf("out.Get: %v", err)
	}
	if msg.Value.Name != "img1" || msg.Value.PatchNum != 1 {
		t.Fatalf("unexpected tensor metadata: %+v", msg.Value)
	}
	if msg.Value.Image[0][0][0][0] != 1 {
		t.Fatalf("tensor channel 0 = %v, want 1", msg.Value.Image[0][0][0][0])
	}

	_ = in.Put(ctx, queue.Sentinel[imagejob.TileJob]())
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	sentinel, err := out.Get(ctx)
	if err != nil || !sentinel.Sentinel {
		t.Fatalf("expected sentinel, got %+v err %v", sentinel, err)
	}
}

func TestPoolRunsAllWorkersToCompletion(t *testing.T) {
	ctx := context.Background()
	outs := make([]queue.Queue[imagejob.TileTensor], 2)
	workers := make([]*Worker, 2)
	ins := make([]queue.Queue[imagejob.TileJob], 2)
	for i := range workers {
		ins[i] = memq.New[imagejob.TileJob](2)
		outs[i] = memq.New[imagejob.TileTensor](2)
		workers[i] = New(i, ins[i], outs[i], 2, imaging.NormParams{Enable: false})
	}

	for _, in := range ins {
		_ = in.Put(ctx, queue.Sentinel[imagejob.TileJob]())
	}

	if err := Pool(ctx, workers); err != nil {
		t.Fatalf("Pool returned error: %v", err)
	}

	for i, out := range outs {
		msg, err := out.Get(ctx)
		if err != nil || !msg.Sentinel {
			t.Fatalf("worker %d: expected sentinel, got %+v err %v", i, msg, err)
		}
	}
}
