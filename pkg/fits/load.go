package fits

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"

	"github.com/mhollis/fieldphot/pkg/fmath"
)

// LoadFilesAndDirs loads every frame found in the given files and
// directories (recursing into dirs), and returns them sorted by
// observation time. Files with extensions we don't handle are skipped.
func LoadFilesAndDirs(args ...string) ([]Frame, error) {
	frames := []Frame{}

	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case os.IsNotExist(err):
			return nil, fmt.Errorf("load %s: %w", arg, ErrNotFound)

		case err != nil:
			return nil, fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			contents, err := os.ReadDir(arg)
			if err != nil {
				return nil, fmt.Errorf("readdir %s: %v", arg, err)
			}
			names := []string{}
			for _, content := range contents {
				names = append(names, filepath.Join(arg, content.Name()))
			}
			sub, err := LoadFilesAndDirs(names...)
			if err != nil {
				return nil, err
			}
			frames = append(frames, sub...)

		default:
			frame, ok, err := LoadFile(arg)
			if err != nil {
				return nil, err
			} else if ok {
				frames = append(frames, frame)
			}
		}
	}

	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Time.Before(frames[j].Time) })
	return frames, nil
}

// LoadFile loads a single frame. The bool is false when the file's
// extension isn't one we load (so dir walks can skip READMEs etc).
func LoadFile(filename string) (Frame, bool, error) {
	switch strings.ToLower(filepath.Ext(filename)) {

	case ".fits", ".fit", ".fts":
		frame, err := loadFITS(filename)
		if err != nil {
			return frame, true, fmt.Errorf("loading %s as FITS: %w", filename, err)
		}
		return frame, true, nil

	case ".tif", ".tiff":
		frame, err := loadTIFF(filename)
		if err != nil {
			return frame, true, fmt.Errorf("loading %s as TIFF: %w", filename, err)
		}
		return frame, true, nil
	}

	return Frame{}, false, nil
}

// The FITS cards we copy into the frame header. Everything else in the
// HDU is ignored.
var headerCards = []string{
	"DATE-OBS", "EXPTIME", "EXPOSURE", "INSTRUME", "TELESCOP", "OBJECT",
	"FILTER", "GAIN", "EGAIN", "XBINNING", "YBINNING", "AIRMASS", "OBSERVER",
	"BZERO", "BSCALE",
}

func loadFITS(filename string) (Frame, error) {
	frame := Frame{Path: filename, Header: Header{}}

	reader, err := os.Open(filename)
	if os.IsNotExist(err) {
		return frame, ErrNotFound
	} else if err != nil {
		return frame, fmt.Errorf("open+r: %v", err)
	}
	defer reader.Close()

	f, err := fitsio.Open(reader)
	if err != nil {
		return frame, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return frame, fmt.Errorf("%w: primary HDU is not an image", ErrFormat)
	}

	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) < 2 || axes[0] <= 0 || axes[1] <= 0 {
		return frame, fmt.Errorf("%w: primary HDU has axes %v, want 2D", ErrFormat, axes)
	}
	w, h := axes[0], axes[1]

	for _, name := range headerCards {
		if card := hdr.Get(name); card != nil {
			frame.Header[name] = fmt.Sprintf("%v", card.Value)
		}
	}

	raw, err := readPixels(img, hdr.Bitpix(), w*h)
	if err != nil {
		return frame, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	// FITS physical value = BZERO + BSCALE * stored value
	bzero := cardFloat(frame.Header, "BZERO", 0)
	bscale := cardFloat(frame.Header, "BSCALE", 1)

	frame.Grid = fmath.NewFloatGrid(w, h)
	vals := frame.Grid.Values()
	for i, v := range raw {
		vals[i] = bzero + bscale*v
	}

	if frame.Time, err = frame.Header.Time(); err != nil {
		return frame, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	return frame, nil
}

func readPixels(img fitsio.Image, bitpix, n int) ([]float64, error) {
	out := make([]float64, n)

	switch bitpix {
	case 8:
		// BITPIX 8 is unsigned bytes, unlike the wider integer forms.
		data := make([]byte, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data { out[i] = float64(v) }
	case 16:
		data := make([]int16, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data { out[i] = float64(v) }
	case 32:
		data := make([]int32, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data { out[i] = float64(v) }
	case 64:
		data := make([]int64, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data { out[i] = float64(v) }
	case -32:
		data := make([]float32, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data { out[i] = float64(v) }
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("BITPIX %d unhandled", bitpix)
	}

	return out, nil
}

func cardFloat(h Header, key string, def float64) float64 {
	if raw, exists := h[key]; exists {
		var v float64
		if _, err := fmt.Sscanf(raw, "%g", &v); err == nil {
			return v
		}
		log.Printf("header card %s='%s' is not numeric, using %g\n", key, raw, def)
	}
	return def
}

// loadTIFF handles 16-bit TIFF frames, e.g. exported from capture
// software that doesn't speak FITS. The timestamp comes from EXIF.
func loadTIFF(filename string) (Frame, error) {
	frame := Frame{Path: filename, Header: Header{}}

	// First, the EXIF metadata.
	if reader, err := os.Open(filename); os.IsNotExist(err) {
		return frame, ErrNotFound
	} else if err != nil {
		return frame, fmt.Errorf("open+r exif: %v", err)
	} else if ex, err := exif.Decode(reader); err != nil {
		return frame, fmt.Errorf("%w: exif parsing: %v", ErrFormat, err)
	} else {
		when, err := ex.DateTime()
		if err != nil {
			return frame, fmt.Errorf("%w: exif datetime: %v", ErrFormat, err)
		}
		frame.Time = when
		frame.Header["DATE-OBS"] = when.Format(time.RFC3339)

		if tag, err := ex.Get(exif.Model); err == nil {
			if model, err := tag.StringVal(); err == nil {
				frame.Header["INSTRUME"] = model
			}
		}
	}

	// Re-open the file, now for the image data
	reader, err := os.Open(filename)
	if err != nil {
		return frame, fmt.Errorf("open+r img: %v", err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return frame, fmt.Errorf("%w: tiff decoding: %v", ErrFormat, err)
	}

	// Collapse color to luminance; photometry only cares about flux.
	b := img.Bounds()
	frame.Grid = fmath.NewFloatGrid(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA() // channel values in range [0, 0xFFFF]
			gray := float64(r)*0.2989 + float64(g)*0.5870 + float64(bl)*0.1140
			frame.Grid.Set(x, y, gray)
		}
	}

	return frame, nil
}
