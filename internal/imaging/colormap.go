package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// Colormap maps a value in [0,1] to a colour by blending evenly spaced stops
// in CIE L*a*b* space.
type Colormap struct {
	Name  string
	stops []colorful.Color
}

func mustColormap(name string, hexes ...string) *Colormap {
	cm := &Colormap{Name: name}
	for _, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(fmt.Sprintf("colormap %s: %v", name, err))
		}
		cm.stops = append(cm.stops, c)
	}
	return cm
}

// BrBG is the brown-to-teal diverging map used for NDWI: dry land brown,
// open water teal.
var BrBG = mustColormap("BrBG",
	"#543005", "#8c510a", "#bf812d", "#dfc27d", "#f6e8c3", "#f5f5f5",
	"#c7eae5", "#80cdc1", "#35978f", "#01665e", "#003c30")

// Coolwarm is the blue-to-red diverging map used for NDWI change.
var Coolwarm = mustColormap("coolwarm",
	"#3b4cc0", "#7b9ff9", "#c0d4f5", "#dddddd", "#f2cbb7", "#ee8468", "#b40426")

// Reds is the sequential map used for growth masks.
var Reds = mustColormap("Reds",
	"#fff5f0", "#fee0d2", "#fcbba1", "#fc9272", "#fb6a4a", "#ef3b2c",
	"#cb181d", "#a50f15", "#67000d")

var colormaps = map[string]*Colormap{
	"brbg":     BrBG,
	"coolwarm": Coolwarm,
	"reds":     Reds,
}

// ColormapByName looks up a colormap case-insensitively.
func ColormapByName(name string) (*Colormap, error) {
	cm, ok := colormaps[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(colormaps))
		for k := range colormaps {
			names = append(names, k)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown colormap %q (available: %s)", name, strings.Join(names, ", "))
	}
	return cm, nil
}

// At returns the colour for t, clamped to [0,1].
func (cm *Colormap) At(t float64) color.NRGBA {
	t = math.Max(0, math.Min(1, t))
	pos := t * float64(len(cm.stops)-1)
	i := int(pos)
	if i >= len(cm.stops)-1 {
		i = len(cm.stops) - 2
	}
	c := cm.stops[i].BlendLab(cm.stops[i+1], pos-float64(i))
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// Colorize renders g with cm, mapping vmin..vmax onto the colormap. NaN
// samples are transparent.
func Colorize(g *raster.Grid, cm *Colormap, vmin, vmax float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	span := vmax - vmin
	if span == 0 {
		span = 1
	}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			if math.IsNaN(v) {
				continue
			}
			img.SetNRGBA(x, y, cm.At((v-vmin)/span))
		}
	}
	return img
}
