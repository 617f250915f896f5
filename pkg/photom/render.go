package photom

// Diagnostic output: nothing in here feeds back into the pipeline,
// it's all for eyeballing whether alignment and photometry did the
// right thing.

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/mhollis/fieldphot/pkg/fmath"
)

// gridImage adapts a FloatGrid to mdouchement's hdr.Image, so aligned
// frames can be dumped as Radiance .hdr without quantizing the flux.
type gridImage struct {
	g *fmath.FloatGrid
}

var _ hdr.Image = gridImage{}

func (gi gridImage)ColorModel() color.Model { return hdrcolor.RGBModel }
func (gi gridImage)Bounds() image.Rectangle { return image.Rect(0, 0, gi.g.Dx(), gi.g.Dy()) }
func (gi gridImage)Size() int               { return gi.g.Dx() * gi.g.Dy() }
func (gi gridImage)At(x, y int) color.Color { return gi.HDRAt(x, y) }

func (gi gridImage)HDRAt(x, y int) hdrcolor.Color {
	v := gi.g.Get(x, y)
	if math.IsNaN(v) {
		v = 0
	}
	return hdrcolor.RGB{R: v, G: v, B: v}
}

// WriteHDR dumps the grid as a Radiance RGBE file. You can load this
// into photoshop or other HDR tools and inspect the raw flux.
func WriteHDR(g *fmath.FloatGrid, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("WriteHDR, open+w '%s': %v", filename, err)
	}
	defer writer.Close()
	return rgbe.Encode(writer, gridImage{g})
}

// GridToPNG renders the grid as a false-color PNG: sky-dark navy up
// to white, with a gamma stretch so faint stars survive the trip to
// 8 bits. NaN (resampling fill) renders magenta so it can't be
// mistaken for sky.
func GridToPNG(g *fmath.FloatGrid, filename string) error {
	return writePNG(gridToRGBA(g), filename)
}

func gridToRGBA(g *fmath.FloatGrid) *image.RGBA {
	min, max := finiteRange(g)
	span := max - min
	if span == 0 {
		span = 1
	}

	dark, _ := colorful.Hex("#0a0a23")
	light, _ := colorful.Hex("#ffffff")
	nanCol := color.RGBA{0xff, 0, 0xff, 0xff}

	img := image.NewRGBA(image.Rect(0, 0, g.Dx(), g.Dy()))
	for y := 0; y < g.Dy(); y++ {
		for x := 0; x < g.Dx(); x++ {
			v := g.Get(x, y)
			if math.IsNaN(v) {
				img.Set(x, y, nanCol)
				continue
			}
			t := math.Sqrt((v - min) / span) // gamma 0.5
			if t < 0 { t = 0 }
			if t > 1 { t = 1 }
			c := dark.BlendLuv(light, t)
			r, gc, b := c.RGB255()
			img.Set(x, y, color.RGBA{r, gc, b, 0xff})
		}
	}

	return img
}

// DrawApertures renders the grid with the configured apertures
// circled and labelled, for checking placements survive alignment.
func DrawApertures(g *fmath.FloatGrid, aps []Aperture, filename string) error {
	dc := gg.NewContextForImage(gridToRGBA(g))
	dc.SetRGB(0, 1, 0)
	dc.SetLineWidth(1.5)
	for _, ap := range aps {
		dc.DrawCircle(ap.X, ap.Y, ap.R)
		dc.Stroke()
		dc.DrawString(ap.Name, ap.X+ap.R+3, ap.Y)
	}
	return dc.SavePNG(filename)
}

// PlotLightCurve writes a simple scatter-and-line plot of the curve.
func PlotLightCurve(lc LightCurve, filename string) error {
	const w, h = 900, 500
	const margin = 60.0

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	if len(lc.Ratio) == 0 {
		return fmt.Errorf("empty light curve")
	}

	min, max := lc.Range()
	span := max - min
	if span == 0 {
		span = 1
	}
	t0 := lc.Times[0]
	tSpan := lc.Times[len(lc.Times)-1].Sub(t0).Seconds()
	if tSpan == 0 {
		tSpan = 1
	}

	px := func(i int) (float64, float64) {
		x := margin + (float64(w)-2*margin)*lc.Times[i].Sub(t0).Seconds()/tSpan
		y := float64(h) - margin - (float64(h)-2*margin)*(lc.Ratio[i]-min)/span
		return x, y
	}

	// Axes
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(margin, margin, margin, h-margin)
	dc.DrawLine(margin, h-margin, w-margin, h-margin)
	dc.Stroke()
	dc.DrawString(fmt.Sprintf("%s / %s", lc.Target, lc.Compare), margin, margin-10)
	dc.DrawString(fmt.Sprintf("%.4f", max), 5, margin+5)
	dc.DrawString(fmt.Sprintf("%.4f", min), 5, float64(h)-margin)
	dc.DrawString(fmt.Sprintf("t0 = %s, % .0fs span", t0.Format("2006-01-02 15:04:05"), tSpan), margin, float64(h)-margin+20)

	dc.SetRGB(0.1, 0.3, 0.8)
	for i := range lc.Ratio {
		x, y := px(i)
		if i > 0 {
			xp, yp := px(i - 1)
			dc.DrawLine(xp, yp, x, y)
			dc.Stroke()
		}
		dc.DrawCircle(x, y, 2.5)
		dc.Fill()
	}

	return dc.SavePNG(filename)
}

func finiteRange(g *fmath.FloatGrid) (min, max float64) {
	min, max = math.MaxFloat64, -math.MaxFloat64
	for _, v := range g.Values() {
		if math.IsNaN(v) {
			continue
		}
		if v < min { min = v }
		if v > max { max = v }
	}
	if min > max {
		return 0, 0
	}
	return min, max
}

func writePNG(img image.Image, filename string) error {
	dc := gg.NewContextForImage(img)
	return dc.SavePNG(filename)
}
