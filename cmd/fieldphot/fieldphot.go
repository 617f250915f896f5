package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/skypies/util/histogram"

	"github.com/mhollis/fieldphot/pkg/fits"
	"github.com/mhollis/fieldphot/pkg/photom"
)

var (
	fVerbosity   int
	fConfig      string
	fBoxSize     int
	fSigma       float64
	fMaxSources  int
	fInterp      string
	fFailFast    bool
	fWorkers     int
	fOut         string
	fPlot        string
	fDumpHDR     bool
	fShadowSpeed float64
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fConfig, "c", "", "YAML config file (apertures live here)")
	flag.IntVar(&fBoxSize, "box", 0, "background mesh cell size in pixels (overrides config)")
	flag.Float64Var(&fSigma, "sigma", 0, "detection threshold in noise sigmas (overrides config)")
	flag.IntVar(&fMaxSources, "maxsrc", 0, "max star candidates per frame (overrides config)")
	flag.StringVar(&fInterp, "interp", "", "resampling: bilinear or nearest (overrides config)")
	flag.BoolVar(&fFailFast, "failfast", false, "abort the run on the first frame that won't register")
	flag.IntVar(&fWorkers, "workers", 0, "frame-level concurrency (overrides config)")
	flag.StringVar(&fOut, "o", "flux.csv", "flux table output")
	flag.StringVar(&fPlot, "plot", "", "write a light curve PNG here")
	flag.BoolVar(&fDumpHDR, "dumphdr", false, "dump each aligned frame as Radiance .hdr")
	flag.Float64Var(&fShadowSpeed, "shadowspeed", 0, "occultation shadow speed (km/s); >0 enables the chord estimate")
	flag.Parse()

	log.Printf("fieldphot starting\n")
}

func main() {
	cfg := photom.NewConfig()
	if fConfig != "" {
		var err error
		if cfg, err = photom.LoadConfig(fConfig); err != nil {
			log.Fatal(err)
		}
		log.Printf("Loaded base configuration from %s\n", fConfig)
	}

	cfg.Verbosity = fVerbosity
	cfg.FailFast = cfg.FailFast || fFailFast
	if fBoxSize > 0    { cfg.BoxSize = fBoxSize }
	if fSigma > 0      { cfg.DetectSigma = fSigma }
	if fMaxSources > 0 { cfg.MaxSources = fMaxSources }
	if fInterp != ""   { cfg.Interpolation = fInterp }
	if fWorkers > 0    { cfg.Workers = fWorkers }
	if err := cfg.Finalize(); err != nil {
		log.Fatal(err)
	}
	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	frames, err := fits.LoadFilesAndDirs(flag.Args()...)
	if err != nil {
		log.Fatal(err)
	}
	if len(frames) == 0 {
		log.Fatal("no loadable frames in the given paths")
	}
	log.Printf("Loaded %d frames, %s .. %s\n", len(frames),
		frames[0].Time.Format(time.RFC3339), frames[len(frames)-1].Time.Format(time.RFC3339))

	logSourceHistogram(frames[0], cfg)

	aligned, err := photom.AlignSequence(ctx, frames, cfg)
	for _, fe := range aligned.Errs {
		log.Printf("registration failed: %v\n", fe)
	}
	if err != nil {
		log.Fatal(err)
	}

	samples, err := photom.Photometry(ctx, aligned.Frames, cfg)
	if err != nil {
		log.Fatal(err)
	}
	for _, s := range samples {
		for _, w := range s.Warnings {
			log.Printf("%s: %s\n", s.Time.Format(time.RFC3339), w)
		}
	}

	if err := writeFluxCSV(samples, cfg, fOut); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %d flux samples x %d apertures to %s\n", len(samples), len(cfg.Apertures), fOut)

	if fDumpHDR {
		for i := range aligned.Frames {
			name := fmt.Sprintf("aligned-%03d.hdr", i)
			if err := photom.WriteHDR(&aligned.Frames[i].Grid, name); err != nil {
				log.Printf("dump %s: %v\n", name, err)
			}
		}
		if err := photom.DrawApertures(&aligned.Frames[0].Grid, cfg.Apertures, "apertures.png"); err != nil {
			log.Printf("aperture overlay: %v\n", err)
		}
	}

	if fPlot != "" {
		plotCurve(samples, cfg)
	}
}

// logSourceHistogram shows the brightness distribution of detected
// stars on the reference frame - a quick sanity check that the
// detection threshold is in a sensible place before the slow part runs.
func logSourceHistogram(ref fits.Frame, cfg photom.Config) {
	srcs := photom.FindSources(&ref.Grid, cfg)
	log.Printf("Reference %s: %d star candidates\n", ref.Filename(), len(srcs))
	if len(srcs) == 0 {
		return
	}

	h := histogram.Histogram{NumBuckets: 16, ValMin: 0, ValMax: 16}
	for _, s := range srcs {
		h.Add(histogram.ScalarVal(int(math.Log2(s.Peak + 1))))
	}
	log.Printf("star peak brightness (log2): %s\n", h)
}

func writeFluxCSV(samples []photom.FluxSample, cfg photom.Config, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"time"}
	for _, ap := range cfg.Apertures {
		header = append(header, ap.Name)
	}
	header = append(header, "warnings")
	if err := w.Write(header); err != nil {
		return err
	}

	for _, s := range samples {
		row := []string{s.Time.Format(time.RFC3339Nano)}
		for _, flux := range s.Flux {
			row = append(row, fmt.Sprintf("%.6f", flux))
		}
		row = append(row, fmt.Sprintf("%d", len(s.Warnings)))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func plotCurve(samples []photom.FluxSample, cfg photom.Config) {
	lc, err := photom.NewLightCurve(samples, cfg)
	if err != nil {
		log.Printf("light curve: %v\n", err)
		return
	}
	if err := photom.PlotLightCurve(lc, fPlot); err != nil {
		log.Printf("plot: %v\n", err)
		return
	}

	mean, stddev := lc.Stats()
	minR, maxR := lc.Range()
	log.Printf("light curve %s/%s: mean %.4f, stddev %.4f (%.2f%%), peak-to-peak %.4f, plotted to %s\n",
		lc.Target, lc.Compare, mean, stddev, 100*stddev/mean, maxR-minR, fPlot)

	if fShadowSpeed > 0 {
		if start, end, ok := lc.Drop(0.5); ok {
			km := photom.ChordLengthKm(start, end, fShadowSpeed)
			log.Printf("occultation: %s .. %s (%.1fs), chord %.1f km at %.3f km/s\n",
				start.Format(time.RFC3339), end.Format(time.RFC3339),
				end.Sub(start).Seconds(), km, fShadowSpeed)
		} else {
			log.Printf("no occultation dip found in the light curve\n")
		}
	}
}
