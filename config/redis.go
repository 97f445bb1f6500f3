package config

// RedisConfig configures the event broadcast sink.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Prefix starts every channel name: <prefix>:<pair>:<kind>.
	Prefix string `mapstructure:"prefix"`
}
