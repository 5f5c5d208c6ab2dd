package geometry

import "sort"

// Translate moves a detection's polygon coordinates from tile-local to
// image-global space in place. Only the x-indices (0,2,4,6) receive offsetX
// and the y-indices (1,3,5,7) receive offsetY; the 9th slot (confidence) is
// left untouched.
func Translate(box *[9]float64, offsetX, offsetY float64) {
	for _, i := range [4]int{0, 2, 4, 6} {
		box[i] += offsetX
	}
	for _, i := range [4]int{1, 3, 5, 7} {
		box[i] += offsetY
	}
}

type scoredIndex struct {
	index int
	score float64
}

// singleClassNMS runs polygon-IoU NMS over rows (already filtered to one class)
// and returns the surviving row indices, highest score first.
func singleClassNMS(rows []scoredIndex, boxes [][9]float64, threshold float64, iou IoUFunc) []int {
	sort.Slice(rows, func(i, j int) bool { return rows[i].score > rows[j].score })

	kept := make([]int, 0, len(rows))
	suppressed := make([]bool, len(rows))

	for i := range rows {
		if suppressed[i] {
			continue
		}
		kept = append(kept, rows[i].index)

		a := coords8(boxes[rows[i].index])
		for j := i + 1; j < len(rows); j++ {
			if suppressed[j] {
				continue
			}
			b := coords8(boxes[rows[j].index])
			if iou(a, b) > threshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func coords8(row [9]float64) [8]float64 {
	var c [8]float64
	copy(c[:], row[:8])
	return c
}

// MultiClassPolyNMS runs per-tile multiclass NMS: per class, filter by score
// threshold, run polygon-IoU NMS, concatenate survivors across classes, and
// cap the total at maxDetNum by confidence.
func MultiClassPolyNMS(boxes [][9]float64, scores [][]float64, scoreThreshold, nmsThreshold float64, maxDetNum int, iou IoUFunc) ([][9]float64, []int) {
	if iou == nil {
		iou = DefaultIoU
	}

	var outBoxes [][9]float64
	var outLabels []int

	if len(boxes) == 0 {
		return outBoxes, outLabels
	}
	numClasses := len(scores[0])

	for c := 0; c < numClasses; c++ {
		var rows []scoredIndex
		for i, s := range scores {
			if s[c] >= scoreThreshold {
				rows = append(rows, scoredIndex{index: i, score: s[c]})
			}
		}
		if len(rows) == 0 {
			continue
		}

		for _, idx := range singleClassNMS(rows, boxes, nmsThreshold, iou) {
			row := boxes[idx]
			row[8] = scores[idx][c]
			outBoxes = append(outBoxes, row)
			outLabels = append(outLabels, c)
		}
	}

	if len(outBoxes) > maxDetNum {
		outBoxes, outLabels = topByConfidence(outBoxes, outLabels, maxDetNum)
	}

	return outBoxes, outLabels
}

// MultiClassPolyNMSPatches runs cross-tile multiclass NMS: per class, run
// polygon-IoU NMS over the cross-tile union with no score threshold and no
// cap, and concatenate survivors across classes.
func MultiClassPolyNMSPatches(boxes [][9]float64, labels []int, classNum int, nmsThreshold float64, iou IoUFunc) ([][9]float64, []int) {
	if iou == nil {
		iou = DefaultIoU
	}

	var outBoxes [][9]float64
	var outLabels []int

	for c := 0; c < classNum; c++ {
		var rows []scoredIndex
		for i, l := range labels {
			if l == c {
				rows = append(rows, scoredIndex{index: i, score: boxes[i][8]})
			}
		}
		if len(rows) == 0 {
			continue
		}

		for _, idx := range singleClassNMS(rows, boxes, nmsThreshold, iou) {
			outBoxes = append(outBoxes, boxes[idx])
			outLabels = append(outLabels, c)
		}
	}

	return outBoxes, outLabels
}

func topByConfidence(boxes [][9]float64, labels []int, n int) ([][9]float64, []int) {
	type row struct {
		box   [9]float64
		label int
	}
	rows := make([]row, len(boxes))
	for i := range boxes {
		rows[i] = row{boxes[i], labels[i]}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].box[8] > rows[j].box[8] })
	rows = rows[:n]

	outBoxes := make([][9]float64, n)
	outLabels := make([]int, n)
	for i, r := range rows {
		outBoxes[i] = r.box
		outLabels[i] = r.label
	}
	return outBoxes, outLabels
}
