package photom

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/mhollis/fieldphot/pkg/fmath"
)

/* Example config file ...

boxsize: 32
detectsigma: 5.0
maxsources: 30
interpolation: bilinear
workers: 4
failfast: false

apertures:
  - name: target
    x: 412.5
    y: 388.0
    r: 6.0
  - name: comp1
    x: 120.0
    y: 77.5
    r: 6.0

targetaperture: target
compareaperture: comp1

*/

type Config struct {
	Verbosity       int

	// Source extraction
	BoxSize         int     // background mesh cell side, pixels
	DetectSigma     float64 // detection threshold, in units of local noise sigma
	MaxSources      int     // cap on candidates per frame, bounds matching cost

	// Registration
	TriTolerance    float64 // triangle invariant match tolerance
	MatchBudget     int     // cap on triangle-pair comparisons per frame
	CondMax         float64 // reject fits whose design matrix is worse conditioned than this
	ResidualMax     float64 // pairs with fit residual above this (px) get trimmed and the fit redone
	Interpolation   string  // "bilinear" or "nearest"

	// Orchestration
	FailFast        bool    // abort the whole sequence on the first bad frame
	Workers         int     // frame-level concurrency

	// Photometry
	Apertures       []Aperture
	TargetAperture  string
	CompareAperture string

	// Values we derive during Finalize
	Interp          fmath.Interp `yaml:"-"`
}

func NewConfig() Config {
	return Config{
		BoxSize:       32,
		DetectSigma:   5.0,
		MaxSources:    30,
		TriTolerance:  0.02,
		MatchBudget:   5_000_000,
		CondMax:       1e8,
		ResidualMax:   2.0,
		Interpolation: "bilinear",
		Workers:       4,
		Apertures:     []Aperture{},
	}
}

func LoadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return NewConfig(), fmt.Errorf("config read %s: %v", filename, err)
	}
	return newConfigFromYaml(contents)
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, c.Finalize()
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// Finalize does sanity checks and other post-processing
func (c *Config)Finalize() error {
	if c.BoxSize <= 0 {
		return fmt.Errorf("boxsize must be a positive pixel count, have %d", c.BoxSize)
	}
	if c.DetectSigma <= 0 {
		return fmt.Errorf("detectsigma must be positive, have %g", c.DetectSigma)
	}
	if c.MaxSources < 3 {
		return fmt.Errorf("maxsources must be at least 3, have %d", c.MaxSources)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}

	switch c.Interpolation {
	case "bilinear", "": c.Interp = fmath.InterpBilinear
	case "nearest":      c.Interp = fmath.InterpNearest
	default:
		return fmt.Errorf("no interpolation policy named '%s'", c.Interpolation)
	}

	for _, ap := range c.Apertures {
		if ap.R <= 0 {
			return fmt.Errorf("aperture '%s' has non-positive radius %g", ap.Name, ap.R)
		}
	}

	return nil
}

// ApertureIndex finds the position of a named aperture in the
// configured list, which is also its column in every FluxSample.
func (c Config)ApertureIndex(name string) (int, error) {
	for i, ap := range c.Apertures {
		if ap.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no aperture named '%s' configured", name)
}
