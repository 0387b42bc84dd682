package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "BROWSERCRON_"

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// BrowserConfig holds the Chrome launch and timeout settings.
type BrowserConfig struct {
	Headless      bool
	ChromePath    string
	WindowWidth   int
	WindowHeight  int
	NavTimeout    time.Duration
	ActionTimeout time.Duration
}

// ExecutionConfig sizes the execution pool.
type ExecutionConfig struct {
	Workers   int
	QueueSize int
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
	// On is "failed" or "all".
	On       string
	Interval time.Duration
	Burst    int
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Browser      BrowserConfig
	Execution    ExecutionConfig
	Notification NotificationConfig

	Mode           string
	MetricsEnabled bool
	StateDir       string
	UseUTC         bool
	ShutdownGrace  time.Duration
}

const (
	defaultAddr          = "127.0.0.1:7070"
	defaultMode          = "http"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultShutdownGrace = 30 * time.Second
	defaultWorkers       = 2
	defaultQueueSize     = 64
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse reads configuration for the running process.
func Parse() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs builds the configuration from args and the environment.
// Priority: CLI flags > environment variables > .env file > defaults.
func ParseArgs(args []string) (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "browsercron", ".env"))
	}
	for _, file := range envFiles {
		// godotenv.Load stops at the first missing file.
		_ = godotenv.Load(file)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("ADDR", defaultAddr),
			AuthToken: getEnvString("AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level:      getEnvString("LOG_LEVEL", defaultLogLevel),
			Format:     getEnvString("LOG_FORMAT", defaultLogFormat),
			File:       getEnvString("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
		Browser: BrowserConfig{
			Headless:      getEnvBool("HEADLESS", true),
			ChromePath:    getEnvString("CHROME_PATH", ""),
			WindowWidth:   getEnvInt("WINDOW_WIDTH", 1920),
			WindowHeight:  getEnvInt("WINDOW_HEIGHT", 1080),
			NavTimeout:    getEnvDuration("NAV_TIMEOUT", 60*time.Second),
			ActionTimeout: getEnvDuration("ACTION_TIMEOUT", 10*time.Second),
		},
		Execution: ExecutionConfig{
			Workers:   getEnvInt("WORKERS", defaultWorkers),
			QueueSize: getEnvInt("QUEUE_SIZE", defaultQueueSize),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("BARK_URL", ""),
				Enabled: getEnvBool("BARK_ENABLED", false),
			},
			On:       getEnvString("NOTIFY_ON", "failed"),
			Interval: getEnvDuration("NOTIFY_INTERVAL", time.Minute),
			Burst:    getEnvInt("NOTIFY_BURST", 5),
		},
		Mode:           getEnvString("MODE", defaultMode),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		StateDir:       getEnvString("STATE_DIR", ""),
		UseUTC:         getEnvBool("USE_UTC", false),
		ShutdownGrace:  getEnvDuration("SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	fs := flag.NewFlagSet("browsercrond", flag.ContinueOnError)
	var (
		addr, mode, stateDir, logLevel, logFormat, logFile, chromePath string
		useUTC, headless, metrics                                      bool
		shutdownGrace                                                  time.Duration
		workers                                                        int
	)
	fs.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	fs.StringVar(&mode, "mode", "", "Run mode: http, mcp or both")
	fs.StringVar(&stateDir, "state-dir", "", "Directory to store the database and screenshots")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	fs.StringVar(&logFile, "log-file", "", "Also write logs to this rotating file")
	fs.StringVar(&chromePath, "chrome-path", "", "Chrome or Chromium executable")
	fs.BoolVar(&useUTC, "use-utc", false, "Use UTC for schedule evaluation instead of system local time")
	fs.BoolVar(&headless, "headless", true, "Run the browser headless")
	fs.BoolVar(&metrics, "metrics", false, "Serve Prometheus metrics on /metrics")
	fs.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Time in-flight runs get to finish on shutdown")
	fs.IntVar(&workers, "workers", 0, "Number of concurrent browser runs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = addr
		case "mode":
			cfg.Mode = mode
		case "state-dir":
			cfg.StateDir = stateDir
		case "log-level":
			cfg.Log.Level = logLevel
		case "log-format":
			cfg.Log.Format = logFormat
		case "log-file":
			cfg.Log.File = logFile
		case "chrome-path":
			cfg.Browser.ChromePath = chromePath
		case "use-utc":
			cfg.UseUTC = useUTC
		case "headless":
			cfg.Browser.Headless = headless
		case "metrics":
			cfg.MetricsEnabled = metrics
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		case "workers":
			cfg.Execution.Workers = workers
		}
	})

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case "http", "mcp", "both":
	default:
		return fmt.Errorf("invalid mode %q (valid: http, mcp, both)", c.Mode)
	}
	if c.Execution.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Execution.Workers)
	}
	if c.Execution.QueueSize < 0 {
		c.Execution.QueueSize = 0
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown grace must not be negative")
	}
	if c.Notification.Bark.Enabled && c.Notification.Bark.URL == "" {
		return fmt.Errorf("bark notifications enabled without %sBARK_URL", envPrefix)
	}
	if c.Notification.Interval <= 0 {
		c.Notification.Interval = time.Minute
	}
	return nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "browsercron")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
