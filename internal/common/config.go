package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Browser     BrowserConfig    `toml:"browser"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	Submission  SubmissionConfig `toml:"submission"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// BrowserConfig contains Chrome/chromedp session configuration
type BrowserConfig struct {
	Headless           bool          `toml:"headless"`              // Run Chrome headless (default: false, the host page is a live session)
	UserAgent          string        `toml:"user_agent"`            // User agent override
	UserDataDir        string        `toml:"user_data_dir"`         // Chrome user data directory for the authenticated session
	StartupTimeout     time.Duration `toml:"startup_timeout"`       // Max time for browser startup test
	JavaScriptWaitTime time.Duration `toml:"javascript_wait_time"`  // Settle time after navigation before agent scripts run
	WindowWidth        int           `toml:"window_width"`
	WindowHeight       int           `toml:"window_height"`
}

// PipelineConfig contains the collection pipeline timing and eligibility knobs
type PipelineConfig struct {
	ListingURL  string `toml:"listing_url" validate:"required"` // Host listing page the worker agent is bound to
	BuilderURL  string `toml:"builder_url"`                     // Downstream builder page for the second phase
	BaselineURL string `toml:"baseline_url"`                    // Location the host page is returned to when a run finishes

	DetailTimeout    time.Duration `toml:"detail_timeout"`    // Budget for detail-panel requests (default: 20s)
	LoadTimeout      time.Duration `toml:"load_timeout"`      // Budget for auxiliary tab load (default: 30s)
	SecondaryTimeout time.Duration `toml:"secondary_timeout"` // Budget per secondary-payload request (default: 15s)
	ItemDelay        time.Duration `toml:"item_delay"`        // Delay between items to avoid driving the host page too hard (default: 5s)
	BuildTimeout     time.Duration `toml:"build_timeout"`     // Budget for downstream build round-trips (default: 60s)

	// EligibleStatuses filters enumerated items by status label. Items whose
	// status is not listed are skipped. IncludeAllStatuses disables the filter
	// entirely; it is the explicit replacement for the hidden testing toggle.
	EligibleStatuses   []string `toml:"eligible_statuses"`
	IncludeAllStatuses bool     `toml:"include_all_statuses"`

	SecondaryTabs []string `toml:"secondary_tabs"` // Secondary detail-panel tabs to request per item
	Source        string   `toml:"source"`         // Source tag stamped on merged records
}

// SubmissionConfig contains backend submission settings
type SubmissionConfig struct {
	Endpoint       string        `toml:"endpoint" validate:"required,url"` // Backend base URL (records are posted to <endpoint>/api/jobs)
	MaxAttempts    int           `toml:"max_attempts"`                     // Max submission attempts (default: 3)
	InitialBackoff time.Duration `toml:"initial_backoff"`                  // Base backoff before the second attempt (default: 1s)
	RequestTimeout time.Duration `toml:"request_timeout"`                  // Per-request HTTP timeout
}

// SchedulerConfig contains the optional cron trigger for unattended runs
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron expression, e.g. "0 8 * * *"
}

// WebSocketConfig contains configuration for status event streaming
type WebSocketConfig struct {
	MinLevel         string `toml:"min_level"`         // Minimum status level to broadcast ("debug", "info", "warn", "error")
	ThrottleInterval string `toml:"throttle_interval"` // Minimum interval between progress broadcasts, e.g. "500ms"
}

// NewDefaultConfig returns a Config populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8087,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/colligo",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Browser: BrowserConfig{
			Headless:           false,
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			StartupTimeout:     30 * time.Second,
			JavaScriptWaitTime: 3 * time.Second,
			WindowWidth:        1920,
			WindowHeight:       1080,
		},
		Pipeline: PipelineConfig{
			DetailTimeout:    20 * time.Second,
			LoadTimeout:      30 * time.Second,
			SecondaryTimeout: 15 * time.Second,
			ItemDelay:        5 * time.Second,
			BuildTimeout:     60 * time.Second,
			EligibleStatuses: []string{"new", "open"},
			SecondaryTabs:    []string{"about", "outreach"},
			Source:           "colligo",
		},
		Submission: SubmissionConfig{
			Endpoint:       "http://localhost:5000",
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 8 * * *",
		},
		WebSocket: WebSocketConfig{
			MinLevel:         "info",
			ThrottleInterval: "500ms",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier ones. Priority: CLI flags > env > last file > ... > first file > defaults
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COLLIGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("COLLIGO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COLLIGO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("COLLIGO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("COLLIGO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Pipeline configuration
	if listingURL := os.Getenv("COLLIGO_LISTING_URL"); listingURL != "" {
		config.Pipeline.ListingURL = listingURL
	}
	if builderURL := os.Getenv("COLLIGO_BUILDER_URL"); builderURL != "" {
		config.Pipeline.BuilderURL = builderURL
	}
	if itemDelay := os.Getenv("COLLIGO_ITEM_DELAY"); itemDelay != "" {
		if d, err := time.ParseDuration(itemDelay); err == nil {
			config.Pipeline.ItemDelay = d
		}
	}
	if includeAll := os.Getenv("COLLIGO_INCLUDE_ALL_STATUSES"); includeAll != "" {
		if ia, err := strconv.ParseBool(includeAll); err == nil {
			config.Pipeline.IncludeAllStatuses = ia
		}
	}

	// Submission configuration
	if endpoint := os.Getenv("COLLIGO_SUBMIT_ENDPOINT"); endpoint != "" {
		config.Submission.Endpoint = endpoint
	}

	// Browser configuration
	if headless := os.Getenv("COLLIGO_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if userDataDir := os.Getenv("COLLIGO_BROWSER_USER_DATA_DIR"); userDataDir != "" {
		config.Browser.UserDataDir = userDataDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
