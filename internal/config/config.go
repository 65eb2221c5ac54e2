package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/gdamore/tcell/v2"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "Cider CLI"
	AppTagline     = "Terminal remote for Cider"
	AppDescription = "A terminal client that browses Apple Music and drives the Cider player"
	AppProjectURL  = "https://github.com/glebovdev/cider-cli"

	ConfigDir      = ".config/cider-cli"
	ConfigFileName = "config.yml"
	DefaultVolume  = 70
	MinVolume      = 0
	MaxVolume      = 100

	EnvURL        = "CIDER_URL"
	EnvToken      = "CIDER_TOKEN"
	EnvStorefront = "CIDER_STOREFRONT"
)

// Home views shown at startup.
const (
	HomeRecommendations = "recommendations"
	HomeRecent          = "recent"
	HomePlaylists       = "playlists"
	HomeSearch          = "search"
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/cider-cli/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type EngineConfig struct {
	URL        string `yaml:"url" default:"http://localhost:10767" validate:"required,url"`
	Token      string `yaml:"token,omitempty"`
	Storefront string `yaml:"storefront" default:"tw" validate:"len=2"`
}

// TimingConfig holds the controller timings in milliseconds.
type TimingConfig struct {
	DebounceMs       int     `yaml:"debounce_ms" default:"500" validate:"gte=50,lte=5000"`
	StationPollMs    int     `yaml:"station_poll_ms" default:"500" validate:"gte=100,lte=5000"`
	StationTimeoutMs int     `yaml:"station_timeout_ms" default:"10000" validate:"gte=1000,lte=60000"`
	StatusClearMs    int     `yaml:"status_clear_ms" default:"2000" validate:"gte=1000,lte=3000"`
	ThrottleMs       int     `yaml:"throttle_ms" default:"100" validate:"gte=0,lte=1000"`
	FallbackPollMs   int     `yaml:"fallback_poll_ms" default:"1000" validate:"gte=250,lte=10000"`
	EndThreshold     float64 `yaml:"end_threshold" default:"0.99" validate:"gt=0.5,lte=1"`
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (t TimingConfig) Debounce() time.Duration       { return ms(t.DebounceMs) }
func (t TimingConfig) StationPoll() time.Duration    { return ms(t.StationPollMs) }
func (t TimingConfig) StationTimeout() time.Duration { return ms(t.StationTimeoutMs) }
func (t TimingConfig) StatusClear() time.Duration    { return ms(t.StatusClearMs) }
func (t TimingConfig) Throttle() time.Duration       { return ms(t.ThrottleMs) }
func (t TimingConfig) FallbackPoll() time.Duration   { return ms(t.FallbackPollMs) }

type Theme struct {
	Background       string `yaml:"background" default:"#1a1b25"`
	Foreground       string `yaml:"foreground" default:"#a3aacb"`
	Borders          string `yaml:"borders" default:"#40445b"`
	Highlight        string `yaml:"highlight" default:"#ff9d65"`
	MutedVolume      string `yaml:"muted_volume" default:"#fe0702"`
	HeaderBackground string `yaml:"header_background" default:"#473533"`
	ListHeaderBg     string `yaml:"list_header_background" default:"#3a3d4f"`
	ListHeaderFg     string `yaml:"list_header_foreground" default:"#c8d0e8"`
	HelpBackground   string `yaml:"help_background" default:"#322f45"`
	HelpForeground   string `yaml:"help_foreground" default:"#9aa3c6"`
	HelpHotkey       string `yaml:"help_hotkey" default:"#ff9d65"`
	StatusForeground string `yaml:"status_foreground" default:"#ffd866"`
	ModalBackground  string `yaml:"modal_background" default:"#282a36"`
}

// ErrNotLoaded is returned by Save when the file on disk could not be loaded,
// so the defaults in use must not replace it.
var ErrNotLoaded = errors.New("config file failed to load, not overwriting it")

type Config struct {
	Engine   EngineConfig `yaml:"engine"`
	HomeView string       `yaml:"home_view" default:"recommendations" validate:"oneof=recommendations recent playlists search"`
	Volume   int          `yaml:"volume" default:"70"`
	AutoPlay bool         `yaml:"autoplay" default:"true"`
	Timing   TimingConfig `yaml:"timing"`
	Theme    Theme        `yaml:"theme"`

	// stored holds the file values of fields that env vars and flags may
	// override at runtime. Save writes these instead of the overrides.
	stored    *storedValues
	loadError bool
}

type storedValues struct {
	engine   EngineConfig
	homeView string
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

// Load reads the config file, falling back to defaults when it does not
// exist. Environment variables take precedence over file values.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFile(configPath)
}

func LoadFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.overrideFromEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fallback(), errors.Wrap(err, "failed to read config file")
	}

	// Defaults go in first so explicit zero values in the file survive.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fallback(), errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()
	cfg.Volume = ClampVolume(cfg.Volume)

	if err := cfg.Validate(); err != nil {
		return fallback(), errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// fallback is the config used when the file exists but cannot be loaded.
func fallback() *Config {
	cfg := DefaultConfig()
	cfg.overrideFromEnv()
	cfg.loadError = true
	return cfg
}

func (c *Config) remember() {
	if c.stored == nil {
		c.stored = &storedValues{engine: c.Engine, homeView: c.HomeView}
	}
}

func (c *Config) overrideFromEnv() {
	c.remember()
	if v := os.Getenv(EnvURL); v != "" {
		c.Engine.URL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Engine.Token = v
	}
	if v := os.Getenv(EnvStorefront); v != "" {
		c.Engine.Storefront = v
	}
}

// Override applies command-line values for this run only; empty values are
// ignored. They are never written by Save.
func (c *Config) Override(url, homeView string) {
	c.remember()
	if url != "" {
		c.Engine.URL = url
	}
	if homeView != "" {
		c.HomeView = homeView
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(configPath)
}

func (c *Config) SaveFile(configPath string) error {
	if c.loadError {
		return errors.Wrap(ErrNotLoaded, configPath)
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	out := *c
	if c.stored != nil {
		out.Engine = c.stored.engine
		out.HomeView = c.stored.homeView
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to write temp file")
	}

	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return errors.Wrap(err, "failed to rename config file")
	}

	tmpPath = ""
	return nil
}

func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
