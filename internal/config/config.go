package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Broker struct {
	Addr string `mapstructure:"addr"`
	URL  string `mapstructure:"url"`
}

type RTC struct {
	StunServers []string `mapstructure:"stun_servers"`
}

type Room struct {
	GracePeriod       time.Duration `mapstructure:"grace_period"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff"`
	OneVideoPerUser   bool          `mapstructure:"one_video_per_user"`
}

type Lookup struct {
	PipedInstances []string `mapstructure:"piped_instances"`
	NoembedURL     string   `mapstructure:"noembed_url"`
}

type Config struct {
	Mode         string `mapstructure:"mode"`
	IdentityFile string `mapstructure:"identity_file"`
	Broker       Broker `mapstructure:"broker"`
	RTC          RTC    `mapstructure:"rtc"`
	Room         Room   `mapstructure:"room"`
	Lookup       Lookup `mapstructure:"lookup"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("broker.addr", ":9000")
	v.SetDefault("broker.url", "ws://localhost:9000/ws")
	v.SetDefault("rtc.stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("room.grace_period", "30s")
	v.SetDefault("room.reconnect_attempts", 5)
	v.SetDefault("room.reconnect_backoff", "3s")
	v.SetDefault("room.one_video_per_user", false)
	v.SetDefault("lookup.piped_instances", []string{
		"https://pipedapi.kavin.rocks",
		"https://pipedapi.adminforge.de",
	})
	v.SetDefault("lookup.noembed_url", "https://noembed.com/embed")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
