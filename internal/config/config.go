package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the analyzer service.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Logging    LoggingConfig     `yaml:"logging"`
	Storage    StorageConfig     `yaml:"storage"`
	Ingest     IngestConfig      `yaml:"ingest"`
	Cache      CacheConfig       `yaml:"cache"`
	Thresholds Thresholds        `yaml:"thresholds"`
	Aliases    map[string]string `yaml:"aliases"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// StorageConfig locates the on-disk analysis artifact store.
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

// IngestConfig controls the spool-directory watcher.
type IngestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// CacheConfig controls Redis-backed caching of series payloads.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	TLS          bool          `yaml:"tls"`
	SeriesTTL    time.Duration `yaml:"seriesTTL"`
}

// Thresholds holds the numeric knobs for every health rule. Loaded once,
// validated once, and shared read-only across all captures and rules.
type Thresholds struct {
	CPU     CPUThresholds     `yaml:"cpu"`
	Memory  MemoryThresholds  `yaml:"memory"`
	EMMC    EMMCThresholds    `yaml:"emmc"`
	Network NetworkThresholds `yaml:"network"`

	deviceRe *regexp.Regexp
	ifaceRe  *regexp.Regexp
}

// CPUThresholds configures the sustained CPU saturation rule.
type CPUThresholds struct {
	BusyPctWarn      float64 `yaml:"busyPctWarn"`
	BusyPctCrit      float64 `yaml:"busyPctCrit"`
	SustainedMinutes float64 `yaml:"sustainedMinutes"`
}

// MemoryThresholds configures the memory leak trend rule.
type MemoryThresholds struct {
	Series            string  `yaml:"series"`
	SlopeKBPerMinWarn float64 `yaml:"slopeKbPerMinWarn"`
	SlopeKBPerMinCrit float64 `yaml:"slopeKbPerMinCrit"`
	R2Min             float64 `yaml:"r2Min"`
	MinSamples        int     `yaml:"minSamples"`
}

// EMMCThresholds configures the sustained eMMC write bandwidth rule.
type EMMCThresholds struct {
	KbpsWarn         float64 `yaml:"kbpsWarn"`
	KbpsCrit         float64 `yaml:"kbpsCrit"`
	SustainedMinutes float64 `yaml:"sustainedMinutes"`
	DeviceRegex      string  `yaml:"deviceRegex"`
}

// NetworkThresholds configures the sustained network throughput rule.
type NetworkThresholds struct {
	KbpsWarn         float64 `yaml:"kbpsWarn"`
	KbpsCrit         float64 `yaml:"kbpsCrit"`
	SustainedMinutes float64 `yaml:"sustainedMinutes"`
	IfaceRegex       string  `yaml:"ifaceRegex"`
}

// DeviceRe returns the compiled eMMC device matcher. Valid after Validate.
func (t *Thresholds) DeviceRe() *regexp.Regexp { return t.deviceRe }

// IfaceRe returns the compiled interface matcher. Valid after Validate.
func (t *Thresholds) IfaceRe() *regexp.Regexp { return t.ifaceRe }

// Load initialises Config from a YAML file plus optional environment
// overrides, then validates it. A .env file in the working directory is
// honoured before the environment is read.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("NMON_INSIGHT_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Storage: StorageConfig{DataDir: "data"},
		Ingest:  IngestConfig{Enabled: false, Dir: "spool"},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			SeriesTTL:    5 * time.Minute,
		},
		Thresholds: DefaultThresholds(),
	}
}

// DefaultThresholds returns the stock rule knobs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPU: CPUThresholds{
			BusyPctWarn:      75,
			BusyPctCrit:      90,
			SustainedMinutes: 5,
		},
		Memory: MemoryThresholds{
			Series:            "mem_active_kb",
			SlopeKBPerMinWarn: 1000,
			SlopeKBPerMinCrit: 3000,
			R2Min:             0.7,
			MinSamples:        5,
		},
		EMMC: EMMCThresholds{
			KbpsWarn:         5000,
			KbpsCrit:         20000,
			SustainedMinutes: 5,
			DeviceRegex:      `^(mmcblk\d+|mmc\d+)$`,
		},
		Network: NetworkThresholds{
			KbpsWarn:         20000,
			KbpsCrit:         80000,
			SustainedMinutes: 5,
			IfaceRegex:       `^(eth\d+|enp\S+|wlan\d+)$`,
		},
	}
}

// Validate enforces threshold ordering and compiles the device/interface
// matchers. Invalid configuration is fatal at startup, never reinterpreted
// per capture.
func (c *Config) Validate() error {
	return c.Thresholds.Validate()
}

// Validate checks rule knob consistency.
func (t *Thresholds) Validate() error {
	if t.CPU.BusyPctCrit < t.CPU.BusyPctWarn {
		return fmt.Errorf("thresholds: cpu busyPctCrit %.1f below busyPctWarn %.1f", t.CPU.BusyPctCrit, t.CPU.BusyPctWarn)
	}
	if t.CPU.SustainedMinutes <= 0 {
		return fmt.Errorf("thresholds: cpu sustainedMinutes must be positive")
	}
	if t.Memory.SlopeKBPerMinCrit < t.Memory.SlopeKBPerMinWarn {
		return fmt.Errorf("thresholds: memory slope crit %.1f below warn %.1f", t.Memory.SlopeKBPerMinCrit, t.Memory.SlopeKBPerMinWarn)
	}
	if t.Memory.R2Min <= 0 || t.Memory.R2Min > 1 {
		return fmt.Errorf("thresholds: memory r2Min %.2f outside (0, 1]", t.Memory.R2Min)
	}
	if t.Memory.MinSamples < 2 {
		return fmt.Errorf("thresholds: memory minSamples %d below 2", t.Memory.MinSamples)
	}
	if t.Memory.Series == "" {
		return fmt.Errorf("thresholds: memory series is required")
	}
	if t.EMMC.KbpsCrit < t.EMMC.KbpsWarn {
		return fmt.Errorf("thresholds: emmc kbpsCrit %.1f below kbpsWarn %.1f", t.EMMC.KbpsCrit, t.EMMC.KbpsWarn)
	}
	if t.EMMC.SustainedMinutes <= 0 {
		return fmt.Errorf("thresholds: emmc sustainedMinutes must be positive")
	}
	if t.Network.KbpsCrit < t.Network.KbpsWarn {
		return fmt.Errorf("thresholds: network kbpsCrit %.1f below kbpsWarn %.1f", t.Network.KbpsCrit, t.Network.KbpsWarn)
	}
	if t.Network.SustainedMinutes <= 0 {
		return fmt.Errorf("thresholds: network sustainedMinutes must be positive")
	}

	var err error
	if t.deviceRe, err = regexp.Compile(t.EMMC.DeviceRegex); err != nil {
		return fmt.Errorf("thresholds: emmc deviceRegex: %w", err)
	}
	if t.ifaceRe, err = regexp.Compile(t.Network.IfaceRegex); err != nil {
		return fmt.Errorf("thresholds: network ifaceRegex: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NMON_INSIGHT_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("NMON_INSIGHT_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("NMON_INSIGHT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NMON_INSIGHT_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("NMON_INSIGHT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("NMON_INSIGHT_INGEST_DIR"); v != "" {
		cfg.Ingest.Dir = v
		cfg.Ingest.Enabled = true
	}
	if v := os.Getenv("NMON_INSIGHT_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("NMON_INSIGHT_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("NMON_INSIGHT_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("NMON_INSIGHT_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("NMON_INSIGHT_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("NMON_INSIGHT_CACHE_SERIES_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SeriesTTL = d
		}
	}
}
