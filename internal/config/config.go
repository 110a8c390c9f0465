// ABOUTME: Monitor configuration from flags, HEOS_ environment and a TOML file
// ABOUTME: Watches the file and re-applies the log level when it changes
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	golog "github.com/ipfs/go-log/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/harperreed/heos-go/internal/logging"
)

var log = golog.Logger("heos/config")

// EnvPrefix prefixes environment overrides, e.g. HEOS_LOG_LEVEL
const EnvPrefix = "HEOS"

// Config is everything the monitor needs to start
type Config struct {
	Hosts            []string      `mapstructure:"hosts"`
	Discover         bool          `mapstructure:"discover"`
	DiscoveryTimeout time.Duration `mapstructure:"discovery-timeout"`
	Transport        string        `mapstructure:"transport"`

	DialTimeout    time.Duration `mapstructure:"dial-timeout"`
	CommandTimeout time.Duration `mapstructure:"command-timeout"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	Stateful       bool          `mapstructure:"stateful"`

	LogLevel string `mapstructure:"log-level"`
	LogFile  string `mapstructure:"log-file"`
	NoTUI    bool   `mapstructure:"no-tui"`

	Mock     bool `mapstructure:"mock"`
	MockPort int  `mapstructure:"mock-port"`
}

// Flags returns the command line flags. Their names double as config keys.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "config file (default: $HOME/.config/heos/heos.toml or ./heos.toml)")
	fs.StringSlice("hosts", nil, "device addresses to try, host[:port]")
	fs.Bool("discover", true, "browse mDNS for devices")
	fs.Duration("discovery-timeout", 3*time.Second, "how long to browse for devices")
	fs.String("transport", "tcp", "tcp or websocket")
	fs.Duration("dial-timeout", 5*time.Second, "connection setup timeout")
	fs.Duration("command-timeout", 15*time.Second, "default command timeout")
	fs.Duration("heartbeat", 0, "heart_beat interval, 0 disables")
	fs.Bool("stateful", true, "track live state from change events")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("log-file", "heos-monitor.log", "log file, empty for stderr")
	fs.Bool("no-tui", false, "stream changes to the log instead of the TUI")
	fs.Bool("mock", false, "serve a simulated system and connect to it")
	fs.Int("mock-port", 0, "TCP port for the simulated system, 0 picks one")
	fs.Bool("version", false, "print the version and exit")
	return fs
}

// Loader layers flags over environment over file over defaults
type Loader struct {
	v *viper.Viper

	mu      sync.Mutex
	current Config
}

// NewLoader binds an already parsed flag set
func NewLoader(fs *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return &Loader{v: v}, nil
}

// Load reads file, or the default locations when file is empty. A missing
// default file is not an error.
func (l *Loader) Load(file string) (Config, error) {
	if file != "" {
		l.v.SetConfigFile(file)
	} else {
		l.v.SetConfigName("heos")
		l.v.SetConfigType("toml")
		l.v.AddConfigPath("$HOME/.config/heos")
		l.v.AddConfigPath(".")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
		log.Debugw("no config file, using flags and environment")
	} else {
		log.Infow("loaded config", "file", l.v.ConfigFileUsed())
	}

	cfg, err := l.decode()
	if err != nil {
		return Config{}, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	switch cfg.Transport {
	case "tcp", "websocket":
	default:
		return Config{}, fmt.Errorf("config: unknown transport %q", cfg.Transport)
	}
	return cfg, nil
}

// Current returns the last successfully loaded configuration
func (l *Loader) Current() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// File returns the config file in use, empty when there is none
func (l *Loader) File() string { return l.v.ConfigFileUsed() }

// Watch reloads on every change to the config file, re-applies the log level
// and calls fn with the new configuration. Invalid edits are logged and
// ignored. It does nothing when no file was loaded.
func (l *Loader) Watch(fn func(Config)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			log.Warnw("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}

		l.mu.Lock()
		prev := l.current
		l.current = cfg
		l.mu.Unlock()

		if cfg.LogLevel != prev.LogLevel {
			if err := logging.SetLevel(cfg.LogLevel); err != nil {
				log.Warnw("bad log level", "level", cfg.LogLevel, "error", err)
			}
		}
		log.Infow("config reloaded", "file", e.Name)
		if fn != nil {
			fn(cfg)
		}
	})
	l.v.WatchConfig()
}
