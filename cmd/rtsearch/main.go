package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/urfave/cli/v2"

	"github.com/skyburst/rtsearch"
	"github.com/skyburst/rtsearch/backend"
	"github.com/skyburst/rtsearch/candidate"
	"github.com/skyburst/rtsearch/conditioner"
	"github.com/skyburst/rtsearch/pipeline"
	"github.com/skyburst/rtsearch/planner"
	"github.com/skyburst/rtsearch/reader"
	"github.com/skyburst/rtsearch/search"
)

// runSearch wires the Planner, a backend, the Conditioner, the Searcher,
// and the candidate Sink into one Engine.Run call. Only the dry-run
// synthetic backend is implemented here; a real measurement-set/SDM
// ScanSource is a pluggable rtsearch.ScanSource the caller supplies
// outside this binary (see DESIGN.md).
func runSearch(cCtx *cli.Context) error {
	if !cCtx.Bool("dry-run") {
		return fmt.Errorf("rtsearch: no measurement-set backend wired into this binary; pass --dry-run to exercise the pipeline against synthetic data")
	}

	nAnt := cCtx.Int("nant")
	ants := make([]string, nAnt)
	for i := range ants {
		ants[i] = fmt.Sprintf("A%d", i+1)
	}

	meta := rtsearch.ScanMetadata{
		Filename:         cCtx.String("ms-uri"),
		ScanID:           cCtx.Int("scan"),
		SourceName:       "dry-run",
		Antennas:         ants,
		Polarizations:    strings.Split(cCtx.String("selectpol"), ","),
		DishDiameterM:    cCtx.Float64("dish-diameter"),
		StartTimeMJD:     cCtx.Float64("start-mjd"),
		IntegrationTimeS: cCtx.Float64("inttime"),
		NIntegrations:    cCtx.Int("nints"),
		SpectralWindows: []rtsearch.SpectralWindow{
			{SPWID: 0, NChan: cCtx.Int("nchan"), RefFreqHz: cCtx.Float64("reffreq-hz"), ChanWidthHz: cCtx.Float64("chanwidth-hz")},
		},
	}

	excludeAnts := map[string]bool{}
	for _, a := range strings.Split(cCtx.String("excludeants"), ",") {
		if a != "" {
			excludeAnts[a] = true
		}
	}
	var excludedBaselines []rtsearch.Baseline
	for _, bl := range meta.Baselines() {
		if excludeAnts[bl.A] || excludeAnts[bl.B] {
			excludedBaselines = append(excludedBaselines, bl)
		}
	}

	planCfg := planner.Config{
		MinDM:            cCtx.Float64("dm-min"),
		MaxDM:            cCtx.Float64("dm-max"),
		IntrinsicWidthUS: cCtx.Float64("intrinsic-width-us"),
		Scale:            cCtx.Float64("scale-nsegments"),
		NSegments:        cCtx.Int("nsegments"),
		NThread:          cCtx.Int("nthread"),
		NChunks:          cCtx.Int("nchunk"),
		MemoryLimitBytes: cCtx.Float64("memory-limit"),
		ReadFDown:        cCtx.Int("read-f-down"),
		SigmaImage1:      cCtx.Float64("sigma-image1"),
		SigmaImage2:      cCtx.Float64("sigma-image2"),
		SearchType:       rtsearch.SearchType(cCtx.String("searchtype")),
	}

	state, err := planner.Plan(meta, planCfg)
	if err != nil {
		return err
	}
	log.Printf("planned %d segments, %d DM trials, uvres=%d npix=%dx%d", state.NSegments(), len(state.DMArr), state.UVRes, state.NPixX, state.NPixY)

	src := &backend.Synthetic{Meta: meta}

	var sink *candidate.Sink
	if candURI := cCtx.String("savecands"); candURI != "" {
		ctx, err := tiledb.NewContext(nil)
		if err != nil {
			return err
		}
		defer ctx.Free()

		dims := candidate.Dims{
			MaxSegments: int64(state.NSegments()),
			MaxInts:     int64(state.ReadInts),
			MaxDMs:      int64(len(state.DMArr)),
			MaxDts:      int64(len(state.DtArr)),
			MaxBeams:    1,
		}
		sink, err = candidate.Open(ctx, candURI, cCtx.String("savenoise"), dims)
		if err != nil {
			return err
		}
	}

	engine := &pipeline.Engine{
		Source: src,
		Cal:    src,
		Meta:   meta,
		Path:   cCtx.String("ms-uri"),
		Scan:   cCtx.Int("scan"),
		State:  state,
		ReadConfig: reader.Config{
			ReadTDown: cCtx.Int("read-t-down"),
			ReadFDown: cCtx.Int("read-f-down"),
		},
		CondConfig: conditioner.Config{
			FlagSigma:         cCtx.Float64("flag-sigma"),
			TimeSub:           cCtx.Bool("timesub"),
			ExcludedBaselines: excludedBaselines,
			L1:                cCtx.Float64("l1"),
			M1:                cCtx.Float64("m1"),
		},
		SearchConfig: search.Config{
			NThread:  cCtx.Int("nthread"),
			IntTimeS: meta.IntegrationTimeS,
		},
		Sink:      sink,
		ConfigURI: cCtx.String("config-uri"),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := engine.Run(runCtx)
	for _, r := range results {
		log.Printf("segment %d: %d candidates", r.Segment, r.Candidates)
		if r.CalErr != nil {
			log.Printf("segment %d: calibration degraded: %v", r.Segment, r.CalErr)
		}
	}
	return err
}

func main() {
	app := &cli.App{
		Name:  "rtsearch",
		Usage: "real-time transient search over radio interferometric visibility data",
		Commands: []*cli.Command{
			{
				Name:  "search",
				Usage: "plan and run a segmented DM/dt search over a scan",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ms-uri", Usage: "URI or pathname to the measurement set / SDM."},
					&cli.IntFlag{Name: "scan", Usage: "scan number to process."},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file."},
					&cli.StringFlag{Name: "savecands", Usage: "URI to write the candidate TileDB array to."},
					&cli.StringFlag{Name: "savenoise", Usage: "URI to write the noise-journal TileDB array to."},

					&cli.Float64Flag{Name: "dm-min", Usage: "minimum trial DM, pc/cm^3."},
					&cli.Float64Flag{Name: "dm-max", Usage: "maximum trial DM, pc/cm^3."},
					&cli.Float64Flag{Name: "intrinsic-width-us", Usage: "assumed intrinsic pulse width, microseconds."},

					&cli.Float64Flag{Name: "scale-nsegments", Value: 1.0, Usage: "scales the fringe-time-derived segment count."},
					&cli.IntFlag{Name: "nsegments", Usage: "override the derived segment count; 0 derives it."},
					&cli.IntFlag{Name: "nthread", Value: 1, Usage: "worker count for dedispersion and imaging fan-out."},
					&cli.IntFlag{Name: "nchunk", Value: 1, Usage: "starting imaging chunk count for the planner's memory estimate."},
					&cli.Float64Flag{Name: "memory-limit", Usage: "bytes; 0 is unconstrained."},
					&cli.IntFlag{Name: "read-t-down", Value: 1, Usage: "block-average this many integrations together when reading."},
					&cli.IntFlag{Name: "read-f-down", Value: 1, Usage: "block-average this many raw channels together when reading."},

					&cli.StringFlag{Name: "searchtype", Value: string(rtsearch.SearchImage1), Usage: "image1, image1stats, image1snip, image2, or image2w."},
					&cli.Float64Flag{Name: "sigma-image1", Value: 7.0},
					&cli.Float64Flag{Name: "sigma-image2", Value: 7.0},

					&cli.Float64Flag{Name: "flag-sigma", Value: 5.0, Usage: "iterative flagging threshold, standard deviations."},
					&cli.BoolFlag{Name: "timesub", Usage: "subtract the per-baseline time mean before searching."},
					&cli.StringFlag{Name: "excludeants", Usage: "comma-separated antenna names to exclude wholesale."},
					&cli.StringFlag{Name: "selectpol", Value: "RR", Usage: "comma-separated polarizations to search."},
					&cli.Float64Flag{Name: "l1", Usage: "secondary-pointing rephase direction cosine l."},
					&cli.Float64Flag{Name: "m1", Usage: "secondary-pointing rephase direction cosine m."},

					&cli.BoolFlag{Name: "dry-run", Usage: "run against synthetic in-memory data instead of ms-uri."},
					&cli.IntFlag{Name: "nant", Value: 8, Usage: "dry-run: antenna count."},
					&cli.IntFlag{Name: "nchan", Value: 64, Usage: "dry-run: channel count."},
					&cli.Float64Flag{Name: "reffreq-hz", Value: 1.4e9, Usage: "dry-run: reference frequency, Hz."},
					&cli.Float64Flag{Name: "chanwidth-hz", Value: 1e6, Usage: "dry-run: channel width, Hz."},
					&cli.Float64Flag{Name: "dish-diameter", Value: 25.0, Usage: "dry-run: dish diameter, metres."},
					&cli.Float64Flag{Name: "start-mjd", Value: 59000.0, Usage: "dry-run: scan start, MJD."},
					&cli.Float64Flag{Name: "inttime", Value: 1.0, Usage: "dry-run: integration time, seconds."},
					&cli.IntFlag{Name: "nints", Value: 600, Usage: "dry-run: integration count."},
				},
				Action: runSearch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
