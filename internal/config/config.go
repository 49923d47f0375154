// Package config resolves imgpress settings from built-in defaults, an
// optional YAML file, IMGPRESS_* environment variables and command flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"imgpress/internal/processor"
)

// EnvPrefix is prepended to every environment override, e.g. IMGPRESS_WORKERS.
const EnvPrefix = "IMGPRESS"

var ErrInvalid = errors.New("invalid configuration")

// Settings is the fully resolved configuration.
type Settings struct {
	JPEGQuality int    `mapstructure:"jpeg_quality"`
	PNGMin      int    `mapstructure:"png_min"`
	PNGMax      int    `mapstructure:"png_max"`
	WebP        bool   `mapstructure:"webp"`
	AVIF        bool   `mapstructure:"avif"`
	Recompress  bool   `mapstructure:"recompress"`
	InPlace     bool   `mapstructure:"inplace"`
	OutputDir   string `mapstructure:"output"`
	Workers     int    `mapstructure:"workers"`

	Pngquant string `mapstructure:"pngquant"`
	Oxipng   string `mapstructure:"oxipng"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Listen string `mapstructure:"listen"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	rc := processor.DefaultRunConfig()
	return Settings{
		JPEGQuality: rc.JPEGQuality,
		PNGMin:      rc.PNGMin,
		PNGMax:      rc.PNGMax,
		Recompress:  rc.Recompress,
		Pngquant:    "pngquant",
		Oxipng:      "oxipng",
		LogLevel:    "info",
		LogFormat:   "console",
		Listen:      "127.0.0.1:8765",
	}
}

// flagKeys maps command flag names onto setting keys.
var flagKeys = map[string]string{
	"jpeg-quality": "jpeg_quality",
	"png-min":      "png_min",
	"png-max":      "png_max",
	"webp":         "webp",
	"avif":         "avif",
	"recompress":   "recompress",
	"inplace":      "inplace",
	"output":       "output",
	"workers":      "workers",
	"pngquant":     "pngquant",
	"oxipng":       "oxipng",
	"log-level":    "log_level",
	"log-format":   "log_format",
	"listen":       "listen",
}

// RegisterFlags declares every setting as a flag on fs, with the built-in
// defaults. Flags only override lower layers when set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.Int("jpeg-quality", d.JPEGQuality, "JPEG re-encode quality (0-100)")
	fs.Int("png-min", d.PNGMin, "pngquant minimum quality (0-100)")
	fs.Int("png-max", d.PNGMax, "pngquant maximum quality (0-100)")
	fs.Bool("webp", d.WebP, "also write a .webp variant next to each output")
	fs.Bool("avif", d.AVIF, "also write an .avif variant next to each output")
	fs.Bool("recompress", d.Recompress, "recompress the original format")
	fs.BoolP("inplace", "i", d.InPlace, "overwrite sources instead of writing __optimized copies")
	fs.StringP("output", "o", d.OutputDir, "write results under this directory")
	fs.Int("workers", d.Workers, "parallel workers (0 = one per CPU)")
	fs.String("pngquant", d.Pngquant, "pngquant executable name or path")
	fs.String("oxipng", d.Oxipng, "oxipng executable name or path")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", d.LogFormat, "log format: console or json")
	fs.String("listen", d.Listen, "address for the HTTP control surface")
}

// Load resolves settings. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Settings, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Settings{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("jpeg_quality", d.JPEGQuality)
	v.SetDefault("png_min", d.PNGMin)
	v.SetDefault("png_max", d.PNGMax)
	v.SetDefault("webp", d.WebP)
	v.SetDefault("avif", d.AVIF)
	v.SetDefault("recompress", d.Recompress)
	v.SetDefault("inplace", d.InPlace)
	v.SetDefault("output", d.OutputDir)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("pngquant", d.Pngquant)
	v.SetDefault("oxipng", d.Oxipng)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("listen", d.Listen)
}

// Validate checks ranges and enumerations.
func (s Settings) Validate() error {
	if err := s.RunConfig(nil).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalid, s.Workers)
	}
	if s.InPlace && s.OutputDir != "" {
		return fmt.Errorf("%w: inplace cannot be combined with output", ErrInvalid)
	}
	switch s.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, s.LogFormat)
	}
	return nil
}

// RunConfig builds the processor configuration for the given inputs.
func (s Settings) RunConfig(tasks []processor.RawTask) processor.RunConfig {
	return processor.RunConfig{
		Tasks:       tasks,
		JPEGQuality: s.JPEGQuality,
		PNGMin:      s.PNGMin,
		PNGMax:      s.PNGMax,
		WebP:        s.WebP,
		AVIF:        s.AVIF,
		Recompress:  s.Recompress,
		Replace:     s.InPlace,
		OutputDir:   s.OutputDir,
	}
}
