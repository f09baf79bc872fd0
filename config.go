package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultHost     = "127.0.0.1"
	defaultHTTPHost = "0.0.0.0"
	defaultHTTPPort = 3000

	transportStdio = "stdio"
	transportHTTP  = "http"
)

// duration reads "10s" style strings; a bare integer is milliseconds.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d duration) Duration() time.Duration { return time.Duration(d) }

// switchFlag is on only for "true" or "1"; any other value is off rather
// than an error.
type switchFlag bool

func (f *switchFlag) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	*f = switchFlag(s == "true" || s == "1")
	return nil
}

type Config struct {
	IDEPort            int      `mapstructure:"idePort" env:"IDE_PORT"`
	Host               string   `mapstructure:"host" env:"HOST"`
	ScanBasePort       int      `mapstructure:"scanBasePort" env:"SCAN_BASE_PORT"`
	ScanPortCount      int      `mapstructure:"scanPortCount" env:"SCAN_PORT_COUNT"`
	RefreshInterval    duration `mapstructure:"refreshInterval" env:"REFRESH_INTERVAL"`
	ProbeTimeout       duration `mapstructure:"probeTimeout" env:"PROBE_TIMEOUT"`
	CallTimeout        duration `mapstructure:"callTimeout" env:"CALL_TIMEOUT"`
	EvictAfterFailures int      `mapstructure:"evictAfterFailures" env:"EVICT_AFTER_FAILURES"`

	Transport      string   `mapstructure:"transport" env:"TRANSPORT_MODE"`
	HTTPHost       string   `mapstructure:"httpHost" env:"HTTP_HOST"`
	HTTPPort       int      `mapstructure:"httpPort" env:"HTTP_PORT"`
	AuthTokens     []string `mapstructure:"authTokens" env:"AUTH_TOKENS" envSeparator:","`
	AllowedOrigins []string `mapstructure:"allowedOrigins" env:"ALLOWED_ORIGINS" envSeparator:","`

	LogEnabled switchFlag `mapstructure:"logEnabled" env:"LOG_ENABLED"`
	LogLevel   string     `mapstructure:"logLevel" env:"LOG_LEVEL"`

	ToolOverridesPath      string `mapstructure:"toolOverridesPath" env:"TOOL_OVERRIDES_PATH"`
	CatalogSnapshotPath    string `mapstructure:"catalogSnapshotPath" env:"CATALOG_SNAPSHOT_PATH"`
	CatalogSnapshotHistory int    `mapstructure:"catalogSnapshotHistory" env:"CATALOG_SNAPSHOT_HISTORY"`
}

func defaultConfig() *Config {
	return &Config{
		Host:            defaultHost,
		ScanBasePort:    defaultScanBasePort,
		ScanPortCount:   defaultScanPortCount,
		RefreshInterval: duration(defaultRefreshInterval),
		ProbeTimeout:    duration(defaultProbeTimeout),
		Transport:       transportStdio,
		HTTPHost:        defaultHTTPHost,
		HTTPPort:        defaultHTTPPort,
		AllowedOrigins:  []string{"*"},
		LogLevel:        "info",
	}
}

// loadConfig layers defaults, the optional JSON file and the environment.
// A nil environ reads the process environment.
func loadConfig(path string, environ map[string]string) (*Config, error) {
	cfg := defaultConfig()

	if strings.TrimSpace(path) != "" {
		if err := readConfigFile(path, cfg); err != nil {
			return nil, err
		}
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// readConfigFile decodes the keys present in the file over cfg. A missing
// file leaves cfg untouched.
func readConfigFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHook())); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

var (
	durationType   = reflect.TypeOf(duration(0))
	switchFlagType = reflect.TypeOf(switchFlag(false))
)

// configDecodeHook parses durations and switches from file values with the
// same rules the environment layer applies.
func configDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(func(_ reflect.Type, to reflect.Type, data any) (any, error) {
			switch to {
			case durationType:
				var d duration
				err := d.UnmarshalText([]byte(scalarText(data)))
				return d, err
			case switchFlagType:
				var f switchFlag
				err := f.UnmarshalText([]byte(scalarText(data)))
				return f, err
			}
			return data, nil
		}),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func scalarText(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.IDEPort < 0 || c.IDEPort > 65535 {
		errs = append(errs, fmt.Errorf("idePort %d out of range", c.IDEPort))
	}
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	if c.ScanBasePort < 1 || c.ScanBasePort > 65535 {
		errs = append(errs, fmt.Errorf("scanBasePort %d out of range", c.ScanBasePort))
	}
	if c.ScanPortCount < 1 || c.ScanBasePort+c.ScanPortCount-1 > 65535 {
		errs = append(errs, fmt.Errorf("scanPortCount %d out of range", c.ScanPortCount))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, errors.New("refreshInterval must be positive"))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("probeTimeout must be positive"))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, errors.New("callTimeout must not be negative"))
	}
	if c.EvictAfterFailures < 0 {
		errs = append(errs, errors.New("evictAfterFailures must not be negative"))
	}
	switch c.Transport {
	case transportStdio, transportHTTP:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, transportStdio, transportHTTP))
	}
	if c.Transport == transportHTTP && (c.HTTPPort < 0 || c.HTTPPort > 65535) {
		errs = append(errs, fmt.Errorf("httpPort %d out of range", c.HTTPPort))
	}
	if c.CatalogSnapshotHistory < 0 {
		errs = append(errs, errors.New("catalogSnapshotHistory must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) httpAddr() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}
