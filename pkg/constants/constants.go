package constants

import "time"

// Platform endpoints
const (
	// DefaultAPIURL is the base URL of the GroupMe v3 REST API
	DefaultAPIURL = "https://api.groupme.com/v3"
	// DefaultImageURL is the GroupMe image service upload endpoint
	DefaultImageURL = "https://image.groupme.com/pictures"
	// BotPostPath is the message endpoint for bots, relative to the API URL
	BotPostPath = "/bots/post"
	// GroupPathFormat is the group endpoint, relative to the API URL
	GroupPathFormat = "/groups/%s"
	// AccessTokenHeader carries the API token on image uploads
	AccessTokenHeader = "X-Access-Token"
)

// Reserved application routes
const (
	// RootPath serves the endpoint and job summary
	RootPath = "/"
	// HealthPath always answers OK
	HealthPath = "/_health"
)

// Response bodies written by the application
const (
	SuccessText          = "Success"
	HealthText           = "OK"
	PingText             = "Hello"
	NotFoundText         = "404 Not Found"
	MethodNotAllowedText = "405 Method Not Allowed"
	BadJSONTextPrefix    = "400 Bad Request. Unable to parse JSON. Error: "
)

// Timeouts and limits
const (
	// DefaultClientTimeout bounds every outbound platform call
	DefaultClientTimeout = 10 * time.Second
	// DefaultReadTimeout is the HTTP server read timeout
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout is the HTTP server write timeout
	DefaultWriteTimeout = 30 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown of the HTTP server and scheduler
	DefaultShutdownTimeout = 5 * time.Second
	// MaxCallbackBodySize caps inbound webhook bodies (1 MiB)
	MaxCallbackBodySize = 1 << 20
	// SchedulerTick is how often the scheduler evaluates its jobs; jobs fire at most once per second
	SchedulerTick = 250 * time.Millisecond
)

// Server defaults
const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8000
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxBackups is the default number of rotated files to keep
	DefaultLogMaxBackups = 5
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
)

// Secret masking
const (
	// MinSecretLengthForMasking is the minimum secret length to show a prefix and suffix
	MinSecretLengthForMasking = 8
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// EnvPrefix prefixes environment overrides of the configuration
const EnvPrefix = "GROUPMEBOT_"
