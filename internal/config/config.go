package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	// RelayURL is the websocket endpoint of the signaling relay.
	RelayURL string `mapstructure:"relay_url"`
	// ICEServers are STUN/TURN URLs handed to every peer connection.
	ICEServers []string `mapstructure:"ice_servers"`
	// NegotiationTimeout bounds how long a call may sit in negotiating
	// before it is aborted. Zero disables the timer.
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	SendBuffer         int           `mapstructure:"send_buffer"`

	// Relay-side settings (cmd/devrelay only).
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("relay_url", "ws://localhost:8080/ws")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("negotiation_timeout", "30s")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "10s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
