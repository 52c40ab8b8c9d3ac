// Command lakegrowth runs the lake growth workflows from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/lake-growth-mcp/internal/api"
	"github.com/ironsheep/lake-growth-mcp/internal/config"
	"github.com/ironsheep/lake-growth-mcp/internal/log"
	"github.com/ironsheep/lake-growth-mcp/internal/pipeline"
	"github.com/ironsheep/lake-growth-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"ndwi", "NDWI threshold scan between the May and June bands", runNDWI},
		{"ndwi-stats", "NDWI statistics for one pair of bands", runNDWIStats},
		{"growth-area", "Lake growth area between the May and June masks", runGrowthArea},
		{"growth-mask", "Write the growth mask GeoTIFF", runGrowthMask},
		{"visualize", "Write the RGB growth visualization (or an overlay with --base)", runVisualize},
		{"lakes", "List water bodies and new lakes in the June mask", runLakes},
		{"predict", "Segment a 3-band image with the model", runPredict},
		{"predict-patches", "Segment a patch stack (or a tiled image) in batches", runPredictPatches},
		{"tile", "Cut an image into a patch stack", runTile},
		{"train", "Train the segmentation model", runTrain},
		{"serve", "Serve the analysis history REST API", runServe},
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("lakegrowth %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		usage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := dispatch(ctx, os.Args[1], os.Args[2:])
	stop()
	log.Sync()
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, name string, args []string) error {
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, args)
		}
	}
	usage()
	return fmt.Errorf("unknown command %q", name)
}

func usage() {
	fmt.Println("lakegrowth - glacial lake growth from satellite bands and water masks")
	fmt.Println()
	fmt.Println("Usage: lakegrowth <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, c := range commands {
		fmt.Printf("  %-16s %s\n", c.name, c.usage)
	}
	fmt.Printf("  %-16s %s\n", "version", "Print version information")
	fmt.Printf("  %-16s %s\n", "help", "Print this help message")
	fmt.Println()
	fmt.Println("Every command accepts --config <file>. Run 'lakegrowth <command> -h' for its flags.")
}

// flags is a command's flag set plus the settings shared by every command.
type flags struct {
	*flag.FlagSet
	config    *string
	outputDir *string
}

func newFlags(name string) *flags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return &flags{
		FlagSet:   fs,
		config:    fs.String("config", "", "YAML configuration file"),
		outputDir: fs.String("output-dir", "", "Directory relative output paths are resolved against"),
	}
}

// load parses args, loads the configuration, and starts logging.
func (f *flags) load(args []string) (*config.Config, error) {
	if err := f.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(*f.config)
	if err != nil {
		return nil, err
	}
	if *f.outputDir != "" {
		cfg.Outputs.Dir = *f.outputDir
	}
	if err := log.Init(cfg.Debug()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// set copies v into dst when the flag was given.
func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// newPipeline returns a pipeline printing to stdout. When a store is
// configured, analyses are recorded in it; the returned func closes it.
func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	p := pipeline.New(cfg, os.Stdout)
	if cfg.Store.Path == "" {
		return p, func() {}, nil
	}
	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open analysis store: %w", err)
	}
	p.History = st
	return p, func() { st.Close() }, nil
}

func runWorkflow(ctx context.Context, cfg *config.Config, wf func(*pipeline.Pipeline) (*pipeline.Report, error)) error {
	p, done, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()
	rep, err := wf(p)
	if err != nil {
		return err
	}
	log.Debugw("workflow finished", "workflow", rep.Workflow, "outputs", rep.Outputs, "analysis", rep.AnalysisID)
	return nil
}

func runNDWI(ctx context.Context, args []string) error {
	f := newFlags("ndwi")
	mayGreen := f.String("may-green", "", "May green band GeoTIFF")
	mayNIR := f.String("may-nir", "", "May near-infrared band GeoTIFF")
	juneGreen := f.String("june-green", "", "June green band GeoTIFF")
	juneNIR := f.String("june-nir", "", "June near-infrared band GeoTIFF")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	set(&cfg.Inputs.MayGreen, *mayGreen)
	set(&cfg.Inputs.MayNIR, *mayNIR)
	set(&cfg.Inputs.JuneGreen, *juneGreen)
	set(&cfg.Inputs.JuneNIR, *juneNIR)

	return runWorkflow(ctx, cfg, func(p *pipeline.Pipeline) (*pipeline.Report, error) {
		return p.NDWIGrowth(ctx)
	})
}

func runNDWIStats(ctx context.Context, args []string) error {
	f := newFlags("ndwi-stats")
	green := f.String("green", "", "Green band GeoTIFF (default: May green)")
	nir := f.String("nir", "", "Near-infrared band GeoTIFF (default: May NIR)")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	g, n := cfg.Inputs.MayGreen, cfg.Inputs.MayNIR
	set(&g, *green)
	set(&n, *nir)

	_, err = pipeline.New(cfg, os.Stdout).NDWIStats(g, n)
	return err
}

// maskFlags registers the mask pair flags shared by the mask workflows.
func maskFlags(f *flags) func(cfg *config.Config) {
	mayMask := f.String("may-mask", "", "Earlier water mask GeoTIFF")
	juneMask := f.String("june-mask", "", "Later water mask (PNG or GeoTIFF)")
	return func(cfg *config.Config) {
		set(&cfg.Inputs.MayMask, *mayMask)
		set(&cfg.Inputs.JuneMask, *juneMask)
	}
}

func runGrowthArea(ctx context.Context, args []string) error {
	f := newFlags("growth-area")
	apply := maskFlags(f)
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	apply(cfg)

	return runWorkflow(ctx, cfg, func(p *pipeline.Pipeline) (*pipeline.Report, error) {
		return p.ModelGrowth(ctx)
	})
}

func runGrowthMask(ctx context.Context, args []string) error {
	f := newFlags("growth-mask")
	apply := maskFlags(f)
	output := f.String("output", "", "Growth mask GeoTIFF to write")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	apply(cfg)
	set(&cfg.Outputs.GrowthMask, *output)

	return runWorkflow(ctx, cfg, func(p *pipeline.Pipeline) (*pipeline.Report, error) {
		return p.GrowthMask(ctx)
	})
}

func runVisualize(ctx context.Context, args []string) error {
	f := newFlags("visualize")
	apply := maskFlags(f)
	output := f.String("output", "", "PNG to write")
	outline := f.Bool("outline", false, "Draw the June shoreline in white")
	base := f.String("base", "", "Paint the growth over this image instead of the RGB rendering")
	colorHex := f.String("color", "#FF0000", "Overlay colour (with --base)")
	opacity := f.Float64("opacity", 0.6, "Overlay opacity 0-1 (with --base)")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	apply(cfg)

	if *base != "" {
		if *output == "" {
			return errors.New("--output is required with --base")
		}
		return runWorkflow(ctx, cfg, func(p *pipeline.Pipeline) (*pipeline.Report, error) {
			return p.Overlay(ctx, *base, *output, *colorHex, *opacity)
		})
	}
	set(&cfg.Outputs.GrowthRGB, *output)
	return runWorkflow(ctx, cfg, func(p *pipeline.Pipeline) (*pipeline.Report, error) {
		return p.Visualize(ctx, *outline)
	})
}

func runLakes(ctx context.Context, args []string) error {
	f := newFlags("lakes")
	apply := maskFlags(f)
	minPixels := f.Int("min-pixels", 0, "Ignore water bodies smaller than this (default from configuration)")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	apply(cfg)
	if *minPixels > 0 {
		cfg.MinLakePixels = *minPixels
	}

	return runWorkflow(ctx, cfg, func(p *pipeline.Pipeline) (*pipeline.Report, error) {
		return p.Lakes(ctx)
	})
}

// modelFlags registers the image/model/output flags of the prediction commands.
func modelFlags(f *flags) func(cfg *config.Config) {
	image := f.String("image", "", "3-band 8-bit image (GeoTIFF or PNG)")
	model := f.String("model", "", "Model weights")
	output := f.String("output", "", "Predicted mask to write (.tif keeps georeferencing)")
	return func(cfg *config.Config) {
		set(&cfg.Inputs.Image, *image)
		set(&cfg.Inputs.Model, *model)
		set(&cfg.Outputs.PredictedMask, *output)
	}
}

func runPredict(ctx context.Context, args []string) error {
	f := newFlags("predict")
	apply := modelFlags(f)
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	apply(cfg)
	if cfg.Inputs.Image == "" {
		return errors.New("--image is required")
	}

	return runWorkflow(ctx, cfg, func(p *pipeline.Pipeline) (*pipeline.Report, error) {
		return p.Predict(ctx)
	})
}

func runPredictPatches(ctx context.Context, args []string) error {
	f := newFlags("predict-patches")
	apply := modelFlags(f)
	patches := f.String("patches", "", "Patch stack to predict when --image is not given")
	perRow := f.Int("per-row", 0, "Patches per row when the stack does not record it")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	apply(cfg)
	set(&cfg.Inputs.Patches, *patches)
	if *perRow > 0 {
		cfg.Patches.PerRow = *perRow
	}

	return runWorkflow(ctx, cfg, func(p *pipeline.Pipeline) (*pipeline.Report, error) {
		return p.PredictPatches(ctx)
	})
}

func runTile(ctx context.Context, args []string) error {
	f := newFlags("tile")
	image := f.String("image", "", "Image to cut into patches")
	patches := f.String("patches", "", "Patch stack to write")
	size := f.Int("size", 0, "Patch side in pixels (default from configuration)")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	set(&cfg.Inputs.Image, *image)
	set(&cfg.Inputs.Patches, *patches)
	if *size > 0 {
		cfg.Patches.Size = *size
	}
	if cfg.Inputs.Image == "" {
		return errors.New("--image is required")
	}

	_, err = pipeline.New(cfg, os.Stdout).Tile(ctx)
	return err
}

func runTrain(ctx context.Context, args []string) error {
	f := newFlags("train")
	images := f.String("images", "", "Directory of training images")
	masks := f.String("masks", "", "Directory of training masks with matching names")
	epochs := f.Int("epochs", 0, "Training epochs (default from configuration)")
	output := f.String("output", "", "Model weights to write")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	set(&cfg.Training.ImageDir, *images)
	set(&cfg.Training.MaskDir, *masks)
	set(&cfg.Outputs.Model, *output)
	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}

	_, err = pipeline.New(cfg, os.Stdout).Train(ctx)
	return err
}

func runServe(ctx context.Context, args []string) error {
	f := newFlags("serve")
	port := f.Int("port", 0, "HTTP port (default from configuration)")
	dbPath := f.String("store", "", "SQLite analysis history")
	cfg, err := f.load(args)
	if err != nil {
		return err
	}
	set(&cfg.Store.Path, *dbPath)
	if *port > 0 {
		cfg.API.Port = *port
	}
	if cfg.Store.Path == "" {
		return errors.New("an analysis store is required: use --store or LAKEGROWTH_STORE_PATH")
	}

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open analysis store: %w", err)
	}
	defer st.Close()

	log.Infof("Serving analysis history from %s on %s", cfg.Store.Path, cfg.ListenAddr())
	return api.New(cfg, st).Run(ctx)
}
