package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	InboundRateLimit  int           `mapstructure:"inbound_rate_limit" yaml:"inbound_rate_limit"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "chat.db",
		StoreTimeout:      5 * time.Second,
		HistoryLimit:      50,
		MaxMessageBytes:   1 << 20,
		InboundRateLimit:  0, // disabled
		LogLevel:          "info",
		JWTSecret:         "dev-secret-change-me",
		JWTIssuer:         "skillguru-chat",
		JWTAudience:       "skillguru-clients",
	}
}
