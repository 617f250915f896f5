package fits

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mhollis/fieldphot/pkg/fmath"
)

var (
	ErrNotFound = errors.New("file not found")
	ErrFormat   = errors.New("unrecognised image format")
)

// A Header is observation metadata pulled out of the image container:
// FITS cards, or EXIF tags dressed up to look like them. The one key
// every frame must carry is DATE-OBS.
type Header map[string]string

func (h Header)Get(key string) string { return h[key] }

var dateObsLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Time parses the DATE-OBS card. FITS files in the wild use a few
// spellings of ISO-8601, so try them in order.
func (h Header)Time() (time.Time, error) {
	raw := h["DATE-OBS"]
	if raw == "" {
		return time.Time{}, fmt.Errorf("header has no DATE-OBS card")
	}
	for _, layout := range dateObsLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("DATE-OBS '%s' is not a recognised timestamp", raw)
}

// A Frame pairs one exposure's pixel grid with its header. Frames are
// never modified; anything that changes pixels (alignment) builds a
// new Frame via WithGrid.
type Frame struct {
	Path   string
	Time   time.Time
	Header Header
	Grid   fmath.FloatGrid
}

// WithGrid returns a new Frame carrying `g` but this frame's header
// and timestamp.
func (f Frame)WithGrid(g fmath.FloatGrid) Frame {
	return Frame{
		Path:   f.Path,
		Time:   f.Time,
		Header: f.Header,
		Grid:   g,
	}
}

func (f Frame)Filename() string {
	return filepath.Base(f.Path)
}

func (f Frame)String() string {
	return fmt.Sprintf("%s: %s, %dx%d", f.Filename(), f.Time.Format(time.RFC3339), f.Grid.Dx(), f.Grid.Dy())
}
