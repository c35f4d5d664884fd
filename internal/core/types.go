package core

import "time"

// Config represents the complete groupmebot configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Platform PlatformConfig `yaml:"platform"`
	Logging  LoggingConfig  `yaml:"logging"`
	Bots     []BotConfig    `yaml:"bots"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxBodySize     int64         `yaml:"max_body_size" env:"MAX_BODY_SIZE"` // bytes
}

// PlatformConfig represents the GroupMe API endpoints used by every bot
type PlatformConfig struct {
	APIURL   string        `yaml:"api_url" env:"API_URL"`
	ImageURL string        `yaml:"image_url" env:"IMAGE_URL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LEVEL"`                 // debug, info, warn, error
	File         string `yaml:"file" env:"FILE"`                   // Log file path
	MaxSize      int    `yaml:"max_size" env:"MAX_SIZE"`           // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups" env:"MAX_BACKUPS"`     // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age" env:"MAX_AGE"`             // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress" env:"COMPRESS"`           // Whether to compress old logs
	EnableStdout *bool  `yaml:"enable_stdout" env:"ENABLE_STDOUT"` // Also output to stdout (default: true)
}

// BotConfig describes one bot and the callback path it is served at
type BotConfig struct {
	Name     string          `yaml:"name"`
	Path     string          `yaml:"path"`
	BotID    string          `yaml:"bot_id"`
	Token    string          `yaml:"token"`
	GroupID  string          `yaml:"group_id"`
	Guard    string          `yaml:"guard"` // human_only (default) or not_self
	Handlers []HandlerConfig `yaml:"handlers"`
	Jobs     []JobConfig     `yaml:"jobs"`
}

// ActionConfig is what a handler or job does when it fires
type ActionConfig struct {
	Action   string          `yaml:"action"` // reply, mention_all, echo
	Text     string          `yaml:"text"`
	ImageURL string          `yaml:"image_url"` // re-hosted on the platform before posting
	Location *LocationConfig `yaml:"location"`
}

// HandlerConfig binds a pattern to an action
type HandlerConfig struct {
	Pattern      string `yaml:"pattern"`
	ActionConfig `yaml:",inline"`
}

// JobConfig binds a schedule to an action
type JobConfig struct {
	Name         string         `yaml:"name"`
	Schedule     ScheduleConfig `yaml:"schedule"`
	ActionConfig `yaml:",inline"`
}

// ScheduleConfig holds cron fields; unset fields follow the cron trigger defaults
type ScheduleConfig struct {
	Year      string        `yaml:"year"`
	Month     string        `yaml:"month"`
	Day       string        `yaml:"day"`
	Week      string        `yaml:"week"`
	DayOfWeek string        `yaml:"day_of_week"`
	Hour      string        `yaml:"hour"`
	Minute    string        `yaml:"minute"`
	Second    string        `yaml:"second"`
	StartDate string        `yaml:"start_date"` // 2006-01-02 or RFC 3339
	EndDate   string        `yaml:"end_date"`
	Timezone  string        `yaml:"timezone"`
	Jitter    time.Duration `yaml:"jitter"`
}

// LocationConfig is a location attachment
type LocationConfig struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}
