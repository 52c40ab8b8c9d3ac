// Package config loads settings for the lakegrowth CLI and servers.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML file,
// a .env file in the working directory, and LAKEGROWTH_* environment
// variables. Command-line flags are applied on top by the binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/ironsheep/lake-growth-mcp/internal/ndwi"
	"github.com/ironsheep/lake-growth-mcp/internal/segment"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LAKEGROWTH_"

// Inputs names the files the workflows read.
type Inputs struct {
	MayGreen  string `yaml:"may_green"`
	MayNIR    string `yaml:"may_nir"`
	JuneGreen string `yaml:"june_green"`
	JuneNIR   string `yaml:"june_nir"`
	MayMask   string `yaml:"may_mask"`
	JuneMask  string `yaml:"june_mask"`
	Image     string `yaml:"image"`
	Model     string `yaml:"model"`
	Patches   string `yaml:"patches"`
}

// Outputs names the files the workflows write. Relative names are resolved
// against Dir.
type Outputs struct {
	Dir           string `yaml:"dir"`
	GrowthMask    string `yaml:"growth_mask"`
	GrowthVisual  string `yaml:"growth_visual"`
	GrowthRGB     string `yaml:"growth_rgb"`
	NDWIMay       string `yaml:"ndwi_may"`
	NDWIJune      string `yaml:"ndwi_june"`
	DiffMap       string `yaml:"diff_map"`
	PredictedMask string `yaml:"predicted_mask"`
	Model         string `yaml:"model"`
}

// Patches controls tiled inference.
type Patches struct {
	Size      int `yaml:"size"`
	PerRow    int `yaml:"per_row"`
	BatchSize int `yaml:"batch_size"`
}

// Training controls model fitting.
type Training struct {
	segment.TrainConfig `yaml:",inline"`
	Hidden              int    `yaml:"hidden"`
	ImageDir            string `yaml:"image_dir"`
	MaskDir             string `yaml:"mask_dir"`
}

// Store configures the analysis history database.
type Store struct {
	// Path of the SQLite file. Empty disables history and alerts.
	Path string `yaml:"path"`
}

// API configures the REST server.
type API struct {
	Port        int    `yaml:"port"`
	BearerToken string `yaml:"bearer_token"`
}

// Config is the complete configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Inputs  Inputs  `yaml:"inputs"`
	Outputs Outputs `yaml:"outputs"`

	Scan ndwi.ScanRange `yaml:"scan"`
	// NDWIThreshold is the single threshold used outside the scan.
	NDWIThreshold float64 `yaml:"ndwi_threshold"`
	// MaskThreshold binarizes model confidences and decoded mask files.
	MaskThreshold float64 `yaml:"mask_threshold"`
	// MinLakePixels drops smaller water bodies from lake listings.
	MinLakePixels int `yaml:"min_lake_pixels"`

	Patches  Patches  `yaml:"patches"`
	Training Training `yaml:"training"`

	Store Store `yaml:"store"`
	API   API   `yaml:"api"`

	// AlertThresholdKm2 raises an alert when a growth analysis reaches it.
	AlertThresholdKm2 float64 `yaml:"alert_threshold_km2"`
}

// Default returns the stock file layout and model settings.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Inputs: Inputs{
			MayGreen:  "may_band2.tif",
			MayNIR:    "may_band3.tif",
			JuneGreen: "june_band2.tif",
			JuneNIR:   "june_band3.tif",
			MayMask:   "input/masks/may_mask.tif",
			JuneMask:  "predictions/june_mask_pred.png",
			Model:     "unet_glacier.msgpack",
			Patches:   "inference_patches/patches.msgpack",
		},
		Outputs: Outputs{
			Dir:           ".",
			GrowthMask:    "lake_growth_mask.tif",
			GrowthVisual:  "lake_growth_visual.png",
			GrowthRGB:     "predictions/lake_growth_visual.png",
			NDWIMay:       "ndwi_may.png",
			NDWIJune:      "ndwi_june.png",
			DiffMap:       "ndwi_diff_map.png",
			PredictedMask: "predictions/june_mask_pred.png",
			Model:         "unet_glacier.msgpack",
		},
		Scan:          ndwi.DefaultScanRange,
		NDWIThreshold: 0,
		MaskThreshold: 0.5,
		MinLakePixels: 1,
		Patches: Patches{
			Size:      segment.DefaultPatchSize,
			PerRow:    segment.DefaultPatchesPerRow,
			BatchSize: segment.DefaultBatchSize,
		},
		Training: Training{
			TrainConfig: segment.DefaultTrainConfig,
			Hidden:      segment.DefaultHidden,
			ImageDir:    "data/train/images",
			MaskDir:     "data/train/masks",
		},
		API:               API{Port: 8080},
		AlertThresholdKm2: 0.5,
	}
}

// Load builds the configuration. path names a YAML file; when empty,
// LAKEGROWTH_CONFIG is consulted, and when that is empty too no file is read.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LOG_LEVEL":    &c.LogLevel,
		"MODEL":        &c.Inputs.Model,
		"OUTPUT_DIR":   &c.Outputs.Dir,
		"STORE_PATH":   &c.Store.Path,
		"BEARER_TOKEN": &c.API.BearerToken,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":       &c.API.Port,
		"PATCH_SIZE": &c.Patches.Size,
		"BATCH_SIZE": &c.Patches.BatchSize,
		"EPOCHS":     &c.Training.Epochs,
	}
	for name, dst := range ints {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s%s: %s", EnvPrefix, name, v)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"ALERT_THRESHOLD_KM2": &c.AlertThresholdKm2,
		"LEARNING_RATE":       &c.Training.LearningRate,
		"NDWI_THRESHOLD":      &c.NDWIThreshold,
	}
	for name, dst := range floats {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %s", EnvPrefix, name, v)
		}
		*dst = f
	}
	return nil
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Scan.Step <= 0 {
		errs = append(errs, fmt.Errorf("scan.step must be positive"))
	}
	if c.Scan.Stop <= c.Scan.Start {
		errs = append(errs, fmt.Errorf("scan.stop must be greater than scan.start"))
	}
	if c.MaskThreshold < 0 || c.MaskThreshold > 1 {
		errs = append(errs, fmt.Errorf("mask_threshold must be within [0,1]"))
	}
	if c.Patches.Size <= 0 || c.Patches.PerRow <= 0 || c.Patches.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("patches.size, patches.per_row and patches.batch_size must be positive"))
	}
	if c.Training.Epochs <= 0 || c.Training.BatchSize <= 0 || c.Training.LearningRate <= 0 || c.Training.Hidden <= 0 {
		errs = append(errs, fmt.Errorf("training epochs, batch_size, learning_rate and hidden must be positive"))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	if c.AlertThresholdKm2 < 0 {
		errs = append(errs, fmt.Errorf("alert_threshold_km2 must not be negative"))
	}
	return errors.Join(errs...)
}

// Debug reports whether debug logging is requested.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// Output resolves an output name against Outputs.Dir.
func (c *Config) Output(name string) string {
	if name == "" || filepath.IsAbs(name) || c.Outputs.Dir == "" {
		return name
	}
	return filepath.Join(c.Outputs.Dir, name)
}

// ListenAddr returns the host:port string for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.API.Port)
}
