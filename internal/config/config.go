package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

const (
	DefaultBaudRate    = 115200
	DefaultSessionRoot = "sessions"
	DefaultShotCount   = 9
	DefaultImageFormat = "png"
	DefaultLogFile     = "fastcap.log"

	// DirName is the workspace configuration directory.
	DirName = ".fastcap"
)

// WhiteBalance is a white-balance setting. Auto ignores Red and Blue.
type WhiteBalance struct {
	Auto bool    `json:"auto"`
	Red  float64 `json:"red"`
	Blue float64 `json:"blue"`
}

// Phase holds the camera settings applied for one capture phase.
// ExposureMicros of 0 selects auto exposure.
type Phase struct {
	ExposureMicros int          `json:"exposure_us"`
	WhiteBalance   WhiteBalance `json:"white_balance"`
}

// Config holds all fastcap configuration.
type Config struct {
	SerialPort            string `json:"serial_port"`
	SerialBaudRate        int    `json:"serial_baud_rate"`
	SessionRoot           string `json:"session_root"`
	ShotCount             int    `json:"shot_count"`
	ImageFormat           string `json:"image_format"`
	PlatformVersion       string `json:"platform_version"`
	PlatformConfiguration string `json:"platform_configuration"`

	PollIntervalMS    int `json:"poll_interval_ms"`
	AcquireFloorMS    int `json:"acquire_floor_ms"`
	AcquireMarginMS   int `json:"acquire_margin_ms"`
	LinkOpenTimeoutMS int `json:"link_open_timeout_ms"`

	TopDown  Phase `json:"top_down"`
	SideView Phase `json:"side_view"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		SerialBaudRate:        DefaultBaudRate,
		SessionRoot:           DefaultSessionRoot,
		ShotCount:             DefaultShotCount,
		ImageFormat:           DefaultImageFormat,
		PlatformVersion:       "1.0",
		PlatformConfiguration: "dome-backlight",
		PollIntervalMS:        50,
		AcquireFloorMS:        2000,
		AcquireMarginMS:       3000,
		LinkOpenTimeoutMS:     3000,
		TopDown: Phase{
			ExposureMicros: 0,
			WhiteBalance:   WhiteBalance{Auto: true},
		},
		SideView: Phase{
			ExposureMicros: 0,
			WhiteBalance:   WhiteBalance{Auto: true},
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Validate reports the first setting that cannot drive a run.
func (c Config) Validate() error {
	if c.ShotCount < 1 {
		return fmt.Errorf("shot_count must be at least 1, got %d", c.ShotCount)
	}
	switch c.ImageFormat {
	case "png", "jpg", "fits":
	default:
		return fmt.Errorf("image_format %q: must be png, jpg or fits", c.ImageFormat)
	}
	if c.SerialBaudRate <= 0 {
		return fmt.Errorf("serial_baud_rate must be positive, got %d", c.SerialBaudRate)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", c.PollIntervalMS)
	}
	if c.AcquireFloorMS < 0 || c.AcquireMarginMS < 0 {
		return fmt.Errorf("acquisition floor and margin cannot be negative")
	}
	for name, p := range map[string]Phase{"top_down": c.TopDown, "side_view": c.SideView} {
		if p.ExposureMicros < 0 {
			return fmt.Errorf("%s.exposure_us cannot be negative", name)
		}
		if !p.WhiteBalance.Auto && (p.WhiteBalance.Red <= 0 || p.WhiteBalance.Blue <= 0) {
			return fmt.Errorf("%s.white_balance ratios must be positive", name)
		}
	}
	return nil
}

// Load reads and merges global and workspace configs.
// Order: defaults → global (~/.config/fastcap/config.json) → workspace (.fastcap/config.json).
// Unreadable or malformed files are skipped.
func Load(workspaceRoot string) Config {
	k := koanf.New(".")
	k.Load(structs.Provider(Defaults(), "json"), nil)

	if home, err := os.UserHomeDir(); err == nil {
		mergeFromFile(k, filepath.Join(home, ".config", "fastcap", "config.json"))
	}

	if workspaceRoot != "" {
		mergeFromFile(k, filepath.Join(workspaceRoot, DirName, "config.json"))
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Defaults()
	}
	return cfg
}

// Save writes the config to the workspace .fastcap/config.json by default,
// or to the global config if global is true.
func Save(cfg Config, workspaceRoot string, global bool) error {
	var dir string
	if global {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(home, ".config", "fastcap")
	} else {
		dir = filepath.Join(workspaceRoot, DirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

func mergeFromFile(k *koanf.Koanf, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	// A layer that fails to parse leaves the earlier layers untouched.
	layer := koanf.New(".")
	if err := layer.Load(file.Provider(path), kjson.Parser()); err != nil {
		return
	}
	k.Merge(layer)
}
