package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
)

const heatmapSize = 512

// renderHeatmap draws the simulated attention overlay: a handful of
// translucent hot spots over a transparent canvas, seeded from the record id
// so the same record always renders the same overlay. This is a disclosed
// simulation of explainability, not a real saliency map.
func renderHeatmap(seed string) ([]byte, error) {
	h := fnv.New64a()
	h.Write([]byte(seed))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	img := image.NewNRGBA(image.Rect(0, 0, heatmapSize, heatmapSize))

	type spot struct {
		cx, cy, radius float64
	}
	spots := make([]spot, 3+rng.Intn(3))
	for i := range spots {
		spots[i] = spot{
			cx:     heatmapSize * (0.2 + 0.6*rng.Float64()),
			cy:     heatmapSize * (0.2 + 0.6*rng.Float64()),
			radius: heatmapSize * (0.08 + 0.12*rng.Float64()),
		}
	}

	for y := 0; y < heatmapSize; y++ {
		for x := 0; x < heatmapSize; x++ {
			var heat float64
			for _, s := range spots {
				dx, dy := float64(x)-s.cx, float64(y)-s.cy
				d := math.Sqrt(dx*dx + dy*dy)
				if d < s.radius {
					heat += 1 - d/s.radius
				}
			}
			if heat <= 0 {
				continue
			}
			if heat > 1 {
				heat = 1
			}
			// Cold-to-hot ramp: yellow at the fringe, red at the core.
			img.SetNRGBA(x, y, color.NRGBA{
				R: 255,
				G: uint8(200 * (1 - heat)),
				B: 0,
				A: uint8(160 * heat),
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode heatmap png: %w", err)
	}
	return buf.Bytes(), nil
}

func heatmapDataURL(pngBytes []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}
