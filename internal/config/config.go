package config

import "github.com/spf13/viper"

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for the board.
type Config struct {
	BoardName string
	Port      int
	DBPath    string
	JWTSecret string

	Model           string
	AIRetryAttempts int
	AIFallbacks     bool

	DoorIdleMinutes    int
	PageTimeoutSeconds int

	MaxSubscriptions    int
	SubscribesPerMinute int
	EventsPerMinute     int
	HeartbeatSeconds    int
	WSIdleSeconds       int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from viper, which merges flag values, env
// vars, and defaults (set up by the cobra command in cmd/retrobbs).
func Load() Config {
	return Config{
		BoardName: viper.GetString("board_name"),
		Port:      viper.GetInt("port"),
		DBPath:    viper.GetString("db_path"),
		JWTSecret: viper.GetString("jwt_secret"),

		Model:           viper.GetString("model"),
		AIRetryAttempts: viper.GetInt("ai_retry_attempts"),
		AIFallbacks:     viper.GetBool("ai_fallbacks"),

		DoorIdleMinutes:    viper.GetInt("door_idle_minutes"),
		PageTimeoutSeconds: viper.GetInt("page_timeout_seconds"),

		MaxSubscriptions:    viper.GetInt("max_subscriptions"),
		SubscribesPerMinute: viper.GetInt("subscribes_per_minute"),
		EventsPerMinute:     viper.GetInt("events_per_minute"),
		HeartbeatSeconds:    viper.GetInt("heartbeat_seconds"),
		WSIdleSeconds:       viper.GetInt("ws_idle_seconds"),

		LogLevel:  viper.GetString("log_level"),
		LogFormat: viper.GetString("log_format"),
	}
}
