package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	LogLevel string `mapstructure:"log_level"`

	Host        string `mapstructure:"host"`
	TCPPort     int    `mapstructure:"tcp_port"`
	VideoPort   int    `mapstructure:"video_port"`
	AudioPort   int    `mapstructure:"audio_port"`
	HTTPPort    int    `mapstructure:"http_port"`
	HTTPEnabled bool   `mapstructure:"http_enabled"`

	MaxFrameSize    int   `mapstructure:"max_frame_size"`
	MaxDatagramSize int   `mapstructure:"max_datagram_size"`
	MaxFileSize     int64 `mapstructure:"max_file_size"`
	FileStoreLimit  int64 `mapstructure:"file_store_limit"`
	MaxChatLength   int   `mapstructure:"max_chat_length"`

	SendQueue        int           `mapstructure:"send_queue"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	JoinTimeout      time.Duration `mapstructure:"join_timeout"`
	ChatHistory      int           `mapstructure:"chat_history"`
	ChatRateLimit    int           `mapstructure:"chat_rate_limit"`
	ChatRateInterval time.Duration `mapstructure:"chat_rate_interval"`
}

// Flags registers the command-line overrides understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("lanhub", pflag.ContinueOnError)
	fs.String("config", "", "path to a yaml config file")
	fs.String("host", "", "bind address for all listeners")
	fs.Int("tcp-port", 0, "control channel TCP port")
	fs.Int("video-port", 0, "video relay UDP port")
	fs.Int("audio-port", 0, "audio relay UDP port")
	fs.Int("http-port", 0, "admin HTTP port")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	return fs
}

var flagKeys = map[string]string{
	"host":       "host",
	"tcp-port":   "tcp_port",
	"video-port": "video_port",
	"audio-port": "audio_port",
	"http-port":  "http_port",
	"log-level":  "log_level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("tcp_port", 5555)
	v.SetDefault("video_port", 5556)
	v.SetDefault("audio_port", 5557)
	v.SetDefault("http_port", 8080)
	v.SetDefault("http_enabled", true)
	v.SetDefault("max_frame_size", 64<<20)
	v.SetDefault("max_datagram_size", 65507)
	v.SetDefault("max_file_size", 48<<20)
	v.SetDefault("file_store_limit", 1<<30)
	v.SetDefault("max_chat_length", 4096)
	v.SetDefault("send_queue", 256)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("join_timeout", "10s")
	v.SetDefault("chat_history", 50)
	v.SetDefault("chat_rate_limit", 20)
	v.SetDefault("chat_rate_interval", "10s")
}

// Load resolves the configuration from defaults, an optional yaml file,
// LANHUB_* environment variables and the given flags, in that order of precedence
// (flags win). fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("LANHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileName := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			fileName = f.Value.String()
		}
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	explicit := fileName != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		// A missing default file is fine; a broken one or a missing explicit one is not.
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for name, p := range map[string]int{"tcp_port": c.TCPPort, "video_port": c.VideoPort, "audio_port": c.AudioPort} {
		if p < 0 || p > 65535 {
			return fmt.Errorf("invalid %s: %d", name, p)
		}
	}
	if c.MaxDatagramSize <= 0 || c.MaxDatagramSize > 65507 {
		return fmt.Errorf("invalid max_datagram_size: %d", c.MaxDatagramSize)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("invalid max_frame_size: %d", c.MaxFrameSize)
	}
	if c.SendQueue <= 0 {
		return fmt.Errorf("invalid send_queue: %d", c.SendQueue)
	}
	return nil
}

func (c *Config) TCPAddr() string   { return fmt.Sprintf("%s:%d", c.Host, c.TCPPort) }
func (c *Config) VideoAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.VideoPort) }
func (c *Config) AudioAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.AudioPort) }
func (c *Config) HTTPAddr() string  { return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort) }
