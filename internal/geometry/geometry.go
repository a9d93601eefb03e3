package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"media-forensics/internal/fingerprint"
)

const (
	// TileSize is a region's side as a fraction of min(width, height).
	TileSize = 0.12
	// Margin is the minimum distance from every frame edge, as a fraction of
	// the corresponding dimension.
	Margin = 0.06

	TileCount = 6
	PairCount = 3
)

var (
	ErrUnknownLayout  = errors.New("unknown watermark layout")
	ErrEmptySecret    = errors.New("geometry secret is empty")
	ErrInvalidMediaID = errors.New("media id must be positive")
)

// Layout selects the region placement strategy.
type Layout string

const (
	LayoutV1 Layout = "v1"
	LayoutV2 Layout = "v2"
)

// ParseLayout accepts "v1" or "v2" in any case.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case LayoutV1:
		return LayoutV1, nil
	case LayoutV2:
		return LayoutV2, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLayout, s)
}

// Role describes how a region participates in the signal.
type Role string

const (
	RoleTile        Role = "independent-tile"
	RolePairedLight Role = "paired-light"
	RolePairedDark  Role = "paired-dark"
)

// Shade is the overlay a region receives in a given variant.
type Shade int

const (
	ShadeLight Shade = iota
	ShadeDark
)

// Region is a square watermark box in normalized frame coordinates.
//
// X and Y locate the top-left corner of the region's group as fractions of
// the frame width and height. The box side is Size*min(width, height) pixels,
// and Column shifts the box right by whole sides (0 for tiles and the left
// box of a pair, 1 for the right box).
type Region struct {
	Index  int     `json:"index"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Size   float64 `json:"size"`
	Column int     `json:"column"`
	Role   Role    `json:"role"`
}

// Rect maps the region onto a width x height frame.
func (r Region) Rect(width, height int) image.Rectangle {
	side := int(math.Round(r.Size * float64(min(width, height))))
	x := int(math.Round(r.X*float64(width))) + r.Column*side
	y := int(math.Round(r.Y * float64(height)))
	return image.Rect(x, y, x+side, y+side)
}

// Bounds returns the normalized extent of the region's group in units where
// the group spans (Column+1) sides horizontally. These are upper bounds on the
// pixel box for any aspect ratio.
func (r Region) Bounds() (x0, y0, x1, y1 float64) {
	return r.X, r.Y, r.X + float64(r.Column+1)*r.Size, r.Y + r.Size
}

// ShadeFor returns the overlay the region receives in variant v.
func (r Region) ShadeFor(v fingerprint.Variant) Shade {
	light := v == fingerprint.VariantA
	if r.Role == RolePairedDark {
		light = !light
	}
	if light {
		return ShadeLight
	}
	return ShadeDark
}

// Generator derives region lists from the server secret.
type Generator struct {
	secret []byte
}

// NewGenerator returns a Generator keyed by secret.
func NewGenerator(secret string) (*Generator, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Generator{secret: []byte(secret)}, nil
}

// RegionsFor returns the ordered regions for a media item. v1 yields
// TileCount tiles; v2 yields PairCount pairs as left, right, left, right...
func (g *Generator) RegionsFor(mediaID int64, layout Layout) ([]Region, error) {
	if mediaID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMediaID, mediaID)
	}

	ks := newKeystream(g.secret, mediaID, layout)

	switch layout {
	case LayoutV1:
		regions := make([]Region, 0, TileCount)
		for i := 0; i < TileCount; i++ {
			x, y := place(ks, 1)
			regions = append(regions, Region{Index: i, X: x, Y: y, Size: TileSize, Role: RoleTile})
		}
		return regions, nil

	case LayoutV2:
		regions := make([]Region, 0, PairCount*2)
		for i := 0; i < PairCount; i++ {
			x, y := place(ks, 2)
			regions = append(regions,
				Region{Index: i, X: x, Y: y, Size: TileSize, Column: 0, Role: RolePairedLight},
				Region{Index: i, X: x, Y: y, Size: TileSize, Column: 1, Role: RolePairedDark},
			)
		}
		return regions, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownLayout, layout)
}

// place draws an (x, y) origin for a group `columns` sides wide, keeping the
// whole group inside the margin on both axes.
func place(ks *keystream, columns int) (float64, float64) {
	spanX := 1 - 2*Margin - float64(columns)*TileSize
	spanY := 1 - 2*Margin - TileSize
	x := Margin + ks.fraction()*spanX
	y := Margin + ks.fraction()*spanY
	return x, y
}

// Pairs groups a v2 region list into (light, dark) pairs in order.
func Pairs(regions []Region) [][2]Region {
	var pairs [][2]Region
	for i := 0; i+1 < len(regions); i += 2 {
		if regions[i].Role == RolePairedLight && regions[i+1].Role == RolePairedDark {
			pairs = append(pairs, [2]Region{regions[i], regions[i+1]})
		}
	}
	return pairs
}
