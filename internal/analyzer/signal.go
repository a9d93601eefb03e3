package analyzer

import (
	"image"
	"image/color"
	"math"

	"media-forensics/internal/fingerprint"
	"media-forensics/internal/geometry"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// luma returns the Rec.601 luma of c on a 0..255 scale.
func luma(c color.NRGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

// areaStats returns the summed luma and pixel count of rect clipped to img.
func areaStats(img image.Image, rect image.Rectangle) (float64, int) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return 0, 0
	}

	crop := imaging.Crop(img, rect)
	var sum float64
	w, h := crop.Rect.Dx(), crop.Rect.Dy()
	for y := 0; y < h; y++ {
		row := crop.Pix[y*crop.Stride : y*crop.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			sum += luma(color.NRGBA{R: row[x], G: row[x+1], B: row[x+2], A: row[x+3]})
		}
	}
	return sum, w * h
}

// meanLuma is the area-averaged luma of rect, the same value a 1x1 box
// downscale of the crop would produce before 8-bit quantization.
func meanLuma(img image.Image, rect image.Rectangle) (float64, bool) {
	sum, n := areaStats(img, rect)
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// regionRect places a region on the frame's actual bounds.
func regionRect(r geometry.Region, bounds image.Rectangle) image.Rectangle {
	return r.Rect(bounds.Dx(), bounds.Dy()).Add(bounds.Min)
}

// tileSignal is the tile mean minus the mean of the ring around it. The ring
// extends half a side beyond the tile on every edge.
func tileSignal(img image.Image, r geometry.Region) (float64, bool) {
	tile := regionRect(r, img.Bounds())
	pad := tile.Dx() / 2
	outer := image.Rect(tile.Min.X-pad, tile.Min.Y-pad, tile.Max.X+pad, tile.Max.Y+pad)

	tileSum, tileN := areaStats(img, tile)
	outerSum, outerN := areaStats(img, outer)
	ringN := outerN - tileN
	if tileN == 0 || ringN <= 0 {
		return 0, false
	}
	return tileSum/float64(tileN) - (outerSum-tileSum)/float64(ringN), true
}

// pairSignal is the left box mean minus the right box mean.
func pairSignal(img image.Image, pair [2]geometry.Region) (float64, bool) {
	left, okL := meanLuma(img, regionRect(pair[0], img.Bounds()))
	right, okR := meanLuma(img, regionRect(pair[1], img.Bounds()))
	if !okL || !okR {
		return 0, false
	}
	return left - right, true
}

// classify scores one frame. Score is the signed sum of per-region
// differences; confidence is the absolute mean difference over 255. Signals below floor
// yield VariantNone.
func classify(img image.Image, layout geometry.Layout, regions []geometry.Region, floor float64) (fingerprint.Variant, float64, float64) {
	var diffs []float64
	switch layout {
	case geometry.LayoutV1:
		for _, r := range regions {
			if d, ok := tileSignal(img, r); ok {
				diffs = append(diffs, d)
			}
		}
	case geometry.LayoutV2:
		for _, pair := range geometry.Pairs(regions) {
			if d, ok := pairSignal(img, pair); ok {
				diffs = append(diffs, d)
			}
		}
	}
	if len(diffs) == 0 {
		return fingerprint.VariantNone, 0, 0
	}

	score := floats.Sum(diffs)
	confidence := math.Min(math.Abs(stat.Mean(diffs, nil))/255, 1)

	if confidence < floor {
		return fingerprint.VariantNone, score, confidence
	}
	if score >= 0 {
		return fingerprint.VariantA, score, confidence
	}
	return fingerprint.VariantB, score, confidence
}
