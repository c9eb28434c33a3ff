// Package main provides the CLI wrapper for the MOT-BA pipeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/config"
	"github.com/bamot-go/bamot/internal/feature"
	"github.com/bamot-go/bamot/internal/mot"
	"github.com/bamot-go/bamot/internal/pipeline"
	"github.com/schollz/progressbar/v3"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file (defaults built in if omitted)")
	manifestPath := flag.String("manifest", "", "Path to a run manifest (required)")
	outPath := flag.String("out", "", "Path to write the trajectory result as JSON (stdout if omitted)")
	queueDepth := flag.Int("queue-depth", 8, "Depth of each output queue")
	orbFeatures := flag.Int("orb-features", 500, "Max ORB features per detection mask")
	quiet := flag.Bool("quiet", false, "Suppress the progress bar")
	showVersion := flag.Bool("version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "bamot - stereo multi-object tracking with bundle adjustment\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -manifest run.json [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("bamot version %s\n", version)
		os.Exit(0)
	}
	if *manifestPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	var cfg config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		log.Fatalf("bamot: load config: %v", err)
	}

	manifest, err := LoadManifest(*manifestPath)
	if err != nil {
		log.Fatalf("bamot: %v", err)
	}

	classParams := classparams.NewTable(
		cfg.MaxSpeedCar, cfg.MaxSpeedPed,
		cfg.ClusterRadiusCar, cfg.ClusterRadiusPed,
		cfg.MinLandmarksCar, cfg.MinLandmarksPed,
	)
	matcher := feature.NewORBMatcher(*orbFeatures, 0.8)
	defer matcher.Close()

	engine := mot.NewEngine(cfg, classParams, manifest.StereoCamera(), matcher)
	runner := pipeline.NewRunner(engine, cfg, *queueDepth)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("bamot: shutting down, finishing the current frame")
		runner.Flags.Stop()
	}()

	frames, frameErrs := buildFrames(ctx, manifest, matcher)
	egoPoses := buildEgoPoses(ctx, manifest, len(manifest.Frames))

	var bar *progressbar.ProgressBar
	if !*quiet {
		bar = progressbar.NewOptions(len(manifest.Frames),
			progressbar.OptionSetDescription(*manifestPath),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	drainQuiet(ctx, runner)
	go drainSharedData(runner, bar)

	result, runErr := runner.Run(ctx, frames, egoPoses)
	if bar != nil {
		bar.Finish()
	}
	if runErr != nil {
		log.Fatalf("bamot: run failed: %v", runErr)
	}
	select {
	case err, ok := <-frameErrs:
		if ok && err != nil {
			log.Fatalf("bamot: %v", err)
		}
	default:
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("bamot: create %s: %v", *outPath, err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("bamot: encode result: %v", err)
	}
}

// drainSharedData consumes §6's shared-data queue, advancing the progress
// bar once per frame until the end-of-stream sentinel, so Run never blocks
// on a full queue nobody else is reading.
func drainSharedData(r *pipeline.Runner, bar *progressbar.ProgressBar) {
	for rec := range r.SharedData {
		if rec.Done {
			return
		}
		if bar != nil {
			bar.Add(1)
		}
	}
}

// drainQuiet discards §6's optional writer queues: a manifest-driven CLI
// run has no 2D/3D/OBB sink of its own, but the queues must still be
// drained so Runner.publish never blocks on them.
func drainQuiet(ctx context.Context, r *pipeline.Runner) {
	go func() {
		for range r.TwoDWriter {
		}
	}()
	go func() {
		for range r.ThreeDWriter {
		}
	}()
	go func() {
		for range r.OBBWriter {
		}
	}()
}
