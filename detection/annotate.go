package detection

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

const (
	labelFont      = gocv.FontHersheySimplex
	labelScale     = 0.5
	labelThickness = 1
	boxThickness   = 2
	labelOffset    = 10
)

// detectionGreen is drawn as BGR (0, 255, 0).
var detectionGreen = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// Annotate draws a box and a "Person 0.87" caption for every detection.
func Annotate(img *gocv.Mat, detections []Detection) {
	for _, det := range detections {
		gocv.Rectangle(img, det.Box, detectionGreen, boxThickness)

		label := CaptionText(det.Confidence)
		size := gocv.GetTextSize(label, labelFont, labelScale, labelThickness)
		pos := image.Pt(det.Box.Min.X, CaptionY(det.Box.Min.Y, size.Y))
		gocv.PutText(img, label, pos, labelFont, labelScale, detectionGreen, labelThickness)
	}
}

// CaptionText formats the label drawn next to a person box.
func CaptionText(confidence float64) string {
	return fmt.Sprintf("Person %.2f", confidence)
}

// CaptionY places the caption baseline above the box, or inside it when the
// box is too close to the top edge for the text to fit.
func CaptionY(boxTop, textHeight int) int {
	if boxTop-labelOffset > textHeight {
		return boxTop - labelOffset
	}
	return boxTop + labelOffset
}
