// Package core turns a YAML configuration into a running set of bots.
//
// It handles:
//
//   - Configuration loading and validation (from YAML files)
//   - Environment expansion, .env files and GROUPMEBOT_* overrides
//   - Building bots whose handlers and jobs run configured actions
//   - Assembling the router.Application that serves them
//
// # Example Configuration
//
//	server:
//	  port: 8000
//	bots:
//	  - name: "morning"
//	    path: "/morning"
//	    bot_id: "${MORNING_BOT_ID}"
//	    token: "${GROUPME_TOKEN}"
//	    group_id: "12345678"
//	    handlers:
//	      - pattern: '^\\all'
//	        action: mention_all
//	    jobs:
//	      - name: "wake-up"
//	        action: reply
//	        text: "Good morning!"
//	        schedule:
//	          hour: "8"
//	          timezone: "America/Chicago"
package core

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/keepmind9/groupmebot/internal/logger"
	"github.com/keepmind9/groupmebot/pkg/constants"
	"github.com/keepmind9/groupmebot/pkg/scheduler"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLogLevel = "info"

	GuardHumanOnly = "human_only"
	GuardNotSelf   = "not_self"

	dateLayout = "2006-01-02"
)

// LoadConfig loads configuration from file, expands environment variables
// and applies GROUPMEBOT_* overrides
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// LoadEnvFile loads variables from a .env file without overriding the ones
// already set. An empty path loads ./.env when it exists.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	logger.WithField("file", path).Debug("env-file-loaded")
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR_NAME} patterns with environment variable values.
// Any other use of $ is left as written.
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := envPattern.ReplaceAllStringFunc(input, func(m string) string {
		key := m[2 : len(m)-1]
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// applyEnvOverrides overlays GROUPMEBOT_SERVER_*, GROUPMEBOT_PLATFORM_* and
// GROUPMEBOT_LOG_* variables onto the parsed file
func applyEnvOverrides(config *Config) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"SERVER_", &config.Server},
		{"PLATFORM_", &config.Platform},
		{"LOG_", &config.Logging},
	}
	for _, s := range sections {
		if err := env.ParseWithOptions(s.target, env.Options{Prefix: constants.EnvPrefix + s.prefix}); err != nil {
			return err
		}
	}
	return nil
}

// validateConfig applies defaults and checks every bot definition
func validateConfig(config *Config) error {
	if config.Server.Host == "" {
		config.Server.Host = constants.DefaultHost
	}
	if config.Server.Port == 0 {
		config.Server.Port = constants.DefaultPort
	}
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", config.Server.Port)
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = constants.DefaultReadTimeout
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = constants.DefaultWriteTimeout
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	if config.Server.MaxBodySize == 0 {
		config.Server.MaxBodySize = constants.MaxCallbackBodySize
	}

	if config.Platform.APIURL == "" {
		config.Platform.APIURL = constants.DefaultAPIURL
	}
	if config.Platform.ImageURL == "" {
		config.Platform.ImageURL = constants.DefaultImageURL
	}
	if config.Platform.Timeout == 0 {
		config.Platform.Timeout = constants.DefaultClientTimeout
	}

	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = constants.DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = constants.DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = constants.DefaultLogMaxAge
	}
	if config.Logging.EnableStdout == nil {
		enabled := true
		config.Logging.EnableStdout = &enabled
	}

	if len(config.Bots) == 0 {
		return fmt.Errorf("at least one bot must be configured")
	}

	names := make(map[string]bool)
	paths := make(map[string]string)
	for i := range config.Bots {
		b := &config.Bots[i]
		if b.Name == "" {
			return fmt.Errorf("bots[%d]: name is required", i)
		}
		if names[b.Name] {
			return fmt.Errorf("bot name '%s' is used more than once", b.Name)
		}
		names[b.Name] = true

		if b.Path == "" {
			b.Path = "/" + b.Name
		}
		if !strings.HasPrefix(b.Path, "/") {
			return fmt.Errorf("bot '%s': path must start with / (got '%s')", b.Name, b.Path)
		}
		if b.Path == constants.RootPath || b.Path == constants.HealthPath {
			return fmt.Errorf("bot '%s': path '%s' is reserved", b.Name, b.Path)
		}
		if other, taken := paths[b.Path]; taken {
			return fmt.Errorf("bot '%s': path '%s' is already used by bot '%s'", b.Name, b.Path, other)
		}
		paths[b.Path] = b.Name

		if err := validateBot(b); err != nil {
			return fmt.Errorf("bot '%s': %w", b.Name, err)
		}
	}

	return nil
}

func validateBot(b *BotConfig) error {
	if b.BotID == "" {
		return fmt.Errorf("bot_id is required")
	}

	switch b.Guard {
	case "":
		b.Guard = GuardHumanOnly
	case GuardHumanOnly, GuardNotSelf:
	default:
		return fmt.Errorf("unknown guard '%s' (want %s or %s)", b.Guard, GuardHumanOnly, GuardNotSelf)
	}

	patterns := make(map[string]bool)
	for i, h := range b.Handlers {
		if h.Pattern == "" {
			return fmt.Errorf("handlers[%d]: pattern is required", i)
		}
		if patterns[h.Pattern] {
			return fmt.Errorf("handlers[%d]: pattern '%s' is registered more than once", i, h.Pattern)
		}
		patterns[h.Pattern] = true
		if _, err := regexp.Compile(h.Pattern); err != nil {
			return fmt.Errorf("handlers[%d]: invalid pattern: %w", i, err)
		}
		if err := validateAction(b, h.ActionConfig); err != nil {
			return fmt.Errorf("handlers[%d]: %w", i, err)
		}
	}

	for i, j := range b.Jobs {
		if j.Name == "" {
			return fmt.Errorf("jobs[%d]: name is required", i)
		}
		if err := validateAction(b, j.ActionConfig); err != nil {
			return fmt.Errorf("job '%s': %w", j.Name, err)
		}
		cron, err := j.Schedule.Cron()
		if err != nil {
			return fmt.Errorf("job '%s': %w", j.Name, err)
		}
		if err := cron.Validate(); err != nil {
			return fmt.Errorf("job '%s': %w", j.Name, err)
		}
	}

	return nil
}

func validateAction(b *BotConfig, a ActionConfig) error {
	switch a.Action {
	case ActionReply:
		if a.Text == "" && a.ImageURL == "" && a.Location == nil {
			return fmt.Errorf("reply needs text, image_url or location")
		}
		if a.ImageURL != "" && b.Token == "" {
			return fmt.Errorf("image_url requires the bot token")
		}
	case ActionMentionAll:
		if b.Token == "" || b.GroupID == "" {
			return fmt.Errorf("mention_all requires token and group_id")
		}
	case ActionEcho:
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action '%s'", a.Action)
	}
	return nil
}

// Cron converts the configured fields into a scheduler trigger
func (s ScheduleConfig) Cron() (scheduler.Cron, error) {
	c := scheduler.Cron{
		Year:      s.Year,
		Month:     s.Month,
		Day:       s.Day,
		Week:      s.Week,
		DayOfWeek: s.DayOfWeek,
		Hour:      s.Hour,
		Minute:    s.Minute,
		Second:    s.Second,
		Timezone:  s.Timezone,
		Jitter:    s.Jitter,
	}

	loc := time.Local
	if s.Timezone != "" {
		l, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return c, fmt.Errorf("unknown timezone '%s': %w", s.Timezone, err)
		}
		loc = l
	}

	var err error
	if c.StartDate, err = parseDate(s.StartDate, loc); err != nil {
		return c, fmt.Errorf("invalid start_date: %w", err)
	}
	if c.EndDate, err = parseDate(s.EndDate, loc); err != nil {
		return c, fmt.Errorf("invalid end_date: %w", err)
	}
	return c, nil
}

func parseDate(value string, loc *time.Location) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return nil, errors.New("want YYYY-MM-DD or RFC 3339")
	}
	return &t, nil
}

// LoggerConfig converts the logging section for logger.InitLogger
func (c *Config) LoggerConfig() logger.Config {
	stdout := true
	if c.Logging.EnableStdout != nil {
		stdout = *c.Logging.EnableStdout
	}
	return logger.Config{
		Level:        c.Logging.Level,
		File:         c.Logging.File,
		MaxSize:      c.Logging.MaxSize,
		MaxBackups:   c.Logging.MaxBackups,
		MaxAge:       c.Logging.MaxAge,
		Compress:     c.Logging.Compress,
		EnableStdout: stdout,
	}
}

// Address is the host:port the server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetBotConfig retrieves configuration for a specific bot
func (c *Config) GetBotConfig(name string) (BotConfig, error) {
	for _, b := range c.Bots {
		if b.Name == name {
			return b, nil
		}
	}
	return BotConfig{}, fmt.Errorf("bot %s not found in configuration", name)
}
