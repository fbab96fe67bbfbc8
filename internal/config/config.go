package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "PRESENCE"
	configFileName = "config"
	configFileType = "toml"
)

const (
	KeyDataDir          = "data.dir"
	KeyTrackerInterval  = "tracker.interval"
	KeyTrackerPrune     = "tracker.prune_after"
	KeySourceKind       = "source.kind"
	KeySourceURL        = "source.url"
	KeySourceToken      = "source.token"
	KeySourceTimeout    = "source.timeout"
	KeyReportSchedule   = "report.schedule"
	KeyReportTimezone   = "report.timezone"
	KeyReportMode       = "report.mode"
	KeyReportMaxWait    = "report.max_wait"
	KeyHTTPAddr         = "http.addr"
	KeyHTTPFileRoot     = "http.file_root"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
	KeyLogFile          = "log.file"
	KeySecretsBackend   = "secrets.backend"
	defaultDataDirName  = ".presence"
	defaultDeliveryDir  = "deliveries"
	SourceKindHTTP      = "http"
	SourceKindWebsocket = "websocket"
)

type Config struct {
	DataDir string
	Tracker TrackerConfig
	Source  SourceConfig
	Report  ReportConfig
	HTTP    HTTPConfig
	Log     LogConfig
	Secrets SecretsConfig
}

type TrackerConfig struct {
	Interval   time.Duration
	PruneAfter int
}

type SourceConfig struct {
	Kind    string
	URL     string
	Token   string
	Timeout time.Duration
}

type ReportConfig struct {
	Schedule string
	Timezone string
	Mode     domain.ReportMode
	MaxWait  time.Duration
}

type HTTPConfig struct {
	Addr string
	// FileRoot bounds file:// destinations requested over the API.
	FileRoot string
}

type SecretsConfig struct {
	// Backend is auto, pass or file.
	Backend string
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyTrackerInterval, time.Minute)
	v.SetDefault(KeyTrackerPrune, 1)
	v.SetDefault(KeySourceKind, SourceKindHTTP)
	v.SetDefault(KeySourceTimeout, 10*time.Second)
	v.SetDefault(KeyReportSchedule, "0 0 * * 1")
	v.SetDefault(KeyReportTimezone, "Local")
	v.SetDefault(KeyReportMode, string(domain.ReportModeSinceLast))
	v.SetDefault(KeyReportMaxWait, time.Hour)
	v.SetDefault(KeyHTTPAddr, "127.0.0.1:8420")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "human")
	v.SetDefault(KeySecretsBackend, "auto")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{KeyDataDir, KeySourceURL, KeySourceToken, KeyLogFile, KeyHTTPFileRoot} {
		_ = v.BindEnv(key)
	}
	return v
}

// ReadIn loads .env from the working directory and then the config file,
// either the explicit path or config.toml from the data directory. A missing
// implicit config file is not an error.
func ReadIn(v *viper.Viper, explicitPath string) error {
	if err := loadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicitPath, err)
		}
		return nil
	}

	dataDir, err := DataDir(v)
	if err != nil {
		return err
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dataDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DataDir resolves data.dir, defaulting to ~/.presence.
func DataDir(v *viper.Viper) (string, error) {
	if dir := strings.TrimSpace(v.GetString(KeyDataDir)); dir != "" {
		return expandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, defaultDataDirName), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	dataDir, err := DataDir(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DataDir: dataDir,
		Tracker: TrackerConfig{
			Interval:   v.GetDuration(KeyTrackerInterval),
			PruneAfter: v.GetInt(KeyTrackerPrune),
		},
		Source: SourceConfig{
			Kind:    strings.ToLower(strings.TrimSpace(v.GetString(KeySourceKind))),
			URL:     strings.TrimSpace(v.GetString(KeySourceURL)),
			Token:   v.GetString(KeySourceToken),
			Timeout: v.GetDuration(KeySourceTimeout),
		},
		Report: ReportConfig{
			Schedule: strings.TrimSpace(v.GetString(KeyReportSchedule)),
			Timezone: strings.TrimSpace(v.GetString(KeyReportTimezone)),
			Mode:     domain.ReportMode(v.GetString(KeyReportMode)),
			MaxWait:  v.GetDuration(KeyReportMaxWait),
		},
		HTTP: HTTPConfig{
			Addr:     v.GetString(KeyHTTPAddr),
			FileRoot: strings.TrimSpace(v.GetString(KeyHTTPFileRoot)),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString(KeyLogLevel)),
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
			File:   v.GetString(KeyLogFile),
		},
		Secrets: SecretsConfig{Backend: strings.ToLower(strings.TrimSpace(v.GetString(KeySecretsBackend)))},
	}

	if cfg.HTTP.FileRoot == "" {
		cfg.HTTP.FileRoot = filepath.Join(dataDir, defaultDeliveryDir)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Tracker.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyTrackerInterval))
	}
	if c.Tracker.PruneAfter < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyTrackerPrune))
	}
	switch c.Source.Kind {
	case SourceKindHTTP, SourceKindWebsocket:
	default:
		errs = append(errs, fmt.Errorf("unsupported %s %q", KeySourceKind, c.Source.Kind))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeySourceTimeout))
	}
	if !c.Report.Mode.Valid() {
		errs = append(errs, fmt.Errorf("unsupported %s %q", KeyReportMode, c.Report.Mode))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported %s %q", KeyLogLevel, c.Log.Level))
	}
	switch c.Log.Format {
	case "human", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported %s %q", KeyLogFormat, c.Log.Format))
	}
	switch c.Secrets.Backend {
	case "auto", "pass", "file":
	default:
		errs = append(errs, fmt.Errorf("unsupported %s %q", KeySecretsBackend, c.Secrets.Backend))
	}
	return errors.Join(errs...)
}

// Location resolves report.timezone. "Local" and the empty string mean the
// host time zone.
func (c Config) Location() (*time.Location, error) {
	if c.Report.Timezone == "" || c.Report.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load %s %q: %w", KeyReportTimezone, c.Report.Timezone, err)
	}
	return loc, nil
}

// RequireSource reports whether a presence source is configured.
func (c Config) RequireSource() error {
	if c.Source.URL == "" {
		return fmt.Errorf("%s is not set", KeySourceURL)
	}
	return nil
}
