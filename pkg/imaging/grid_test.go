package imaging

import "testing"

func TestAxisStarts(t *testing.T) {
	cases := []struct {
		name                    string
		extent, subsize, gap    int
		want                    []int
	}{
		{"smaller than subsize", 512, 1024, 200, []int{0}},
		{"exactly subsize", 1024, 1024, 200, []int{0}},
		{"two tiles aligned to far edge", 1800, 1024, 200, []int{0, 776}},
		{"three tiles aligned to far edge", 2000, 1024, 200, []int{0, 824, 976}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := axisStarts(tc.extent, tc.subsize, tc.gap)
			if len(got) != len(tc.want) {
				t.Fatalf("axisStarts(%d,%d,%d) = %v, want %v", tc.extent, tc.subsize, tc.gap, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("axisStarts(%d,%d,%d) = %v, want %v", tc.extent, tc.subsize, tc.gap, got, tc.want)
				}
			}
		})
	}
}

func TestTileGrid(t *testing.T) {
	// 2000x2000, subsize 1024, gap 200 -> 3x3 = 9 tiles.
	tiles := TileGrid(2000, 2000, 1024, 200)
	if len(tiles) != 9 {
		t.Fatalf("got %d tiles, want 9", len(tiles))
	}

	wantStarts := []int{0, 824, 976}
	seen := make(map[[2]int]bool)
	for _, tile := range tiles {
		seen[[2]int{tile.X0, tile.Y0}] = true
		if tile.X1-tile.X0 > 1024 || tile.Y1-tile.Y0 > 1024 {
			t.Fatalf("tile %+v exceeds subsize", tile)
		}
	}
	for _, x := range wantStarts {
		for _, y := range wantStarts {
			if !seen[[2]int{x, y}] {
				t.Fatalf("missing tile at (%d,%d)", x, y)
			}
		}
	}
}

func TestTileGridS2NoPadding(t *testing.T) {
	// S2: exactly subsize x subsize -> one tile, no padding needed.
	tiles := TileGrid(1024, 1024, 1024, 200)
	if len(tiles) != 1 {
		t.Fatalf("got %d tiles, want 1", len(tiles))
	}
	tile := tiles[0]
	if tile.X0 != 0 || tile.Y0 != 0 || tile.X1 != 1024 || tile.Y1 != 1024 {
		t.Fatalf("unexpected tile bounds: %+v", tile)
	}
}

func TestTileGridS3TwoColumns(t *testing.T) {
	tiles := TileGrid(1800, 1024, 1024, 200)
	if len(tiles) != 2 {
		t.Fatalf("got %d tiles, want 2", len(tiles))
	}
	gotX := map[int]bool{}
	for _, tile := range tiles {
		gotX[tile.X0] = true
		if tile.Y0 != 0 {
			t.Fatalf("expected single row, got y0=%d", tile.Y0)
		}
	}
	for _, x := range []int{0, 776} {
		if !gotX[x] {
			t.Fatalf("missing column at x0=%d", x)
		}
	}
}

func TestPartition(t *testing.T) {
	specs := TileGrid(2000, 2000, 1024, 200) // 9 tiles
	batches := Partition(specs, 4)
	if len(batches) != 4 {
		t.Fatalf("got %d batches, want 4", len(batches))
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total != len(specs) {
		t.Fatalf("batches cover %d tiles, want %d", total, len(specs))
	}

	// ceil(9/4) = 3 tiles per batch except possibly the last.
	for i, b := range batches[:len(batches)-1] {
		if len(b) != 3 {
			t.Fatalf("batch %d has %d tiles, want 3", i, len(b))
		}
	}
}

func TestPartitionFewerTilesThanWorkers(t *testing.T) {
	specs := TileGrid(512, 512, 1024, 200) // 1 tile
	batches := Partition(specs, 4)
	if len(batches) != 4 {
		t.Fatalf("got %d batches, want 4", len(batches))
	}
	if len(batches[0]) != 1 {
		t.Fatalf("first batch has %d tiles, want 1", len(batches[0]))
	}
	for _, b := range batches[1:] {
		if len(b) != 0 {
			t.Fatalf("expected empty trailing batch, got %d tiles", len(b))
		}
	}
}
