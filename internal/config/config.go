package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// PanelConfig describes the attached panel.
type PanelConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// LUT selects the waveform table: "full" (default) or "partial".
	LUT string `yaml:"lut" json:"lut"`

	// BusyTimeout bounds each wait on the BUSY line, e.g. "30s".
	// Zero or empty waits forever.
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`

	// ClearColor is the fill used by -clear: "white", "black" or "red".
	ClearColor string `yaml:"clear_color" json:"clear_color"`

	// SleepAfterDisplay puts the panel into deep sleep after every refresh.
	SleepAfterDisplay bool `yaml:"sleep_after_display" json:"sleep_after_display"`
}

// SPIConfig selects the SPI port and clock.
type SPIConfig struct {
	// Port is a periph spireg name; "" picks the first port (/dev/spidev0.0 on a Pi).
	Port string `yaml:"port" json:"port"`
	// MaxHz is the SPI clock in Hz.
	MaxHz int64 `yaml:"max_hz" json:"max_hz"`
}

// PinsConfig holds periph gpioreg names for the control lines.
type PinsConfig struct {
	RST  string `yaml:"rst" json:"rst"`
	DC   string `yaml:"dc" json:"dc"`
	CS   string `yaml:"cs" json:"cs"`
	BUSY string `yaml:"busy" json:"busy"`
}

// SourceConfig describes what gets rendered onto the panel.
type SourceConfig struct {
	// Image is a file for the black layer.
	Image string `yaml:"image" json:"image"`
	// RedImage is a file for the red layer.
	RedImage string `yaml:"red_image" json:"red_image"`
	// Text is drawn onto the black layer (after Image, if both are set).
	Text string `yaml:"text" json:"text"`
	// RedText is drawn onto the red layer.
	RedText string `yaml:"red_text" json:"red_text"`
	// URL is captured with headless Chromium as the black layer.
	URL string `yaml:"url" json:"url"`

	// Font is a TrueType file; empty uses the built-in 7x13 bitmap font.
	Font     string  `yaml:"font" json:"font"`
	FontSize float64 `yaml:"font_size" json:"font_size"`

	// Rotate180 flips the landscape canvas for upside-down mounting.
	Rotate180 bool `yaml:"rotate180" json:"rotate180"`

	// SplitRed separates red pixels of Image or URL onto the red layer.
	// RedImage, when set, takes precedence over the split red pixels.
	SplitRed bool `yaml:"split_red" json:"split_red"`
}

// BatteryConfig enables the PiSugar3 battery reader.
type BatteryConfig struct {
	// Bus is a periph i2creg name; "" picks the first bus.
	Bus  string `yaml:"bus" json:"bus"`
	Addr uint16 `yaml:"addr" json:"addr"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// LogLevel is "debug", "info" or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	Panel  PanelConfig  `yaml:"panel" json:"panel"`
	SPI    SPIConfig    `yaml:"spi" json:"spi"`
	Pins   PinsConfig   `yaml:"pins" json:"pins"`
	Source SourceConfig `yaml:"source" json:"source"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen is the HTTP listen address for the Web UI. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// DumpDir receives black.bin, red.bin and preview.png when dumping.
	DumpDir string `yaml:"dump_dir" json:"dump_dir"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Battery, if non-nil, reports the battery level in /api/status.
	Battery *BatteryConfig `yaml:"battery,omitempty" json:"battery,omitempty"`
}

const (
	defaultWidth    = 104
	defaultHeight   = 212
	defaultMaxHz    = 4_000_000
	defaultCron     = "*/15 * * * *"
	defaultDumpDir  = "/var/lib/epd2in13bc"
	defaultFontSize = 13
	defaultBattAddr = 0x57
)

// DefaultConfig returns an in-memory default configuration, wired for the
// Waveshare e-Paper HAT.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Panel: PanelConfig{
			Width:      defaultWidth,
			Height:     defaultHeight,
			LUT:        "full",
			ClearColor: "white",
		},
		SPI: SPIConfig{
			MaxHz: defaultMaxHz,
		},
		Pins: PinsConfig{
			RST:  "GPIO17",
			DC:   "GPIO25",
			CS:   "GPIO8",
			BUSY: "GPIO24",
		},
		Source: SourceConfig{
			Text:     "hello",
			FontSize: defaultFontSize,
		},
		RefreshCron: defaultCron,
		DumpDir:     defaultDumpDir,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()

	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = d.LogLevel
	}

	if c.Panel.Width <= 0 {
		c.Panel.Width = d.Panel.Width
	}
	if c.Panel.Height <= 0 {
		c.Panel.Height = d.Panel.Height
	}
	switch c.Panel.LUT {
	case "full", "partial":
	default:
		c.Panel.LUT = d.Panel.LUT
	}
	if c.Panel.BusyTimeout < 0 {
		c.Panel.BusyTimeout = 0
	}
	switch c.Panel.ClearColor {
	case "white", "black", "red":
	default:
		c.Panel.ClearColor = d.Panel.ClearColor
	}

	if c.SPI.MaxHz <= 0 {
		c.SPI.MaxHz = d.SPI.MaxHz
	}

	if c.Pins.RST == "" {
		c.Pins.RST = d.Pins.RST
	}
	if c.Pins.DC == "" {
		c.Pins.DC = d.Pins.DC
	}
	if c.Pins.CS == "" {
		c.Pins.CS = d.Pins.CS
	}
	if c.Pins.BUSY == "" {
		c.Pins.BUSY = d.Pins.BUSY
	}

	if c.Source.FontSize <= 0 {
		c.Source.FontSize = d.Source.FontSize
	}

	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.DumpDir == "" {
		c.DumpDir = d.DumpDir
	}
	if c.Battery != nil && c.Battery.Addr == 0 {
		c.Battery.Addr = defaultBattAddr
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Panel.Width > 0xFF {
		return fmt.Errorf("config: panel width %d exceeds 255", c.Panel.Width)
	}
	if c.Panel.Height > 0xFFFF {
		return fmt.Errorf("config: panel height %d exceeds 65535", c.Panel.Height)
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		return errors.New("config: basic_auth needs both username and password")
	}
	if c.Battery != nil && c.Battery.Addr > 0x7F {
		return fmt.Errorf("config: battery addr 0x%X is not a 7-bit I2C address", c.Battery.Addr)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".epd2in13bc-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
