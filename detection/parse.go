package detection

import (
	"image"

	"gocv.io/x/gocv"
)

// candidate is a decoded box before non-maximum suppression.
type candidate struct {
	box     image.Rectangle
	classID int
	score   float32
}

// decodeYOLOv8 reads rows of [cx, cy, w, h, score_0 ... score_n] in network
// input pixels. scaleX/scaleY map input pixels back to frame pixels.
func decodeYOLOv8(data []float32, rows, cols int, scaleX, scaleY, floor float32) []candidate {
	if cols <= 4 {
		return nil
	}

	var out []candidate
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		classID, score := argmax(row[4:])
		if score < floor {
			continue
		}

		cx, cy, w, h := row[0]*scaleX, row[1]*scaleY, row[2]*scaleX, row[3]*scaleY
		out = append(out, candidate{
			box:     boxFromCenter(cx, cy, w, h),
			classID: classID,
			score:   score,
		})
	}
	return out
}

// decodeDarknet reads rows of [cx, cy, w, h, objectness, score_0 ... score_n]
// with coordinates normalized to [0, 1].
func decodeDarknet(data []float32, rows, cols int, frameW, frameH, floor float32) []candidate {
	if cols <= 5 {
		return nil
	}

	var out []candidate
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		classID, score := argmax(row[5:])
		if score < floor {
			continue
		}

		cx, cy, w, h := row[0]*frameW, row[1]*frameH, row[2]*frameW, row[3]*frameH
		out = append(out, candidate{
			box:     boxFromCenter(cx, cy, w, h),
			classID: classID,
			score:   score,
		})
	}
	return out
}

func argmax(scores []float32) (int, float32) {
	best, bestScore := 0, float32(0)
	for i, s := range scores {
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}

func boxFromCenter(cx, cy, w, h float32) image.Rectangle {
	left := int(cx - w/2)
	top := int(cy - h/2)
	return image.Rect(left, top, left+int(w), top+int(h))
}

// suppress drops candidates outside classes (all classes when empty), then
// runs non-maximum suppression separately per class so a box of one class
// never hides an overlapping box of another.
func suppress(candidates []candidate, classes []int, floor, nmsThreshold float32) []Detection {
	var order []int
	byClass := make(map[int][]candidate)
	for _, c := range candidates {
		if !wantClass(classes, c.classID) {
			continue
		}
		if _, seen := byClass[c.classID]; !seen {
			order = append(order, c.classID)
		}
		byClass[c.classID] = append(byClass[c.classID], c)
	}
	if len(order) == 0 {
		return nil
	}

	var detections []Detection
	for _, classID := range order {
		detections = append(detections, suppressClass(byClass[classID], floor, nmsThreshold)...)
	}
	return detections
}

func wantClass(classes []int, id int) bool {
	if len(classes) == 0 {
		return true
	}
	for _, c := range classes {
		if c == id {
			return true
		}
	}
	return false
}

func suppressClass(candidates []candidate, floor, nmsThreshold float32) []Detection {
	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		boxes[i] = c.box
		scores[i] = c.score
	}

	indices := gocv.NMSBoxes(boxes, scores, floor, nmsThreshold)

	detections := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		c := candidates[idx]
		detections = append(detections, Detection{
			Box:        c.box,
			ClassID:    c.classID,
			ClassName:  ClassName(c.classID),
			Confidence: float64(c.score),
		})
	}
	return detections
}
