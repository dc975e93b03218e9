package config

import (
	"bytes"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-relay/globals"
)

const (
	defaultPort            = 3000
	defaultGracePeriod     = 5 * time.Second
	defaultLogLevel        = "INFO"
	defaultStatsCron       = "@every 1m"
	defaultFilterCacheSize = 256
	defaultEventQueueSize  = 1000
)

// Config is the global configuration object which is filled via the configuration file, the
// environment (LSRELAY_*, plus PORT) and command-line flags, in increasing priority.
type Config struct {
	Host              string            `mapstructure:"host"`
	Port              int               `mapstructure:"port"`
	GracePeriod       time.Duration     `mapstructure:"grace_period"`
	LogLevel          string            `mapstructure:"log_level"`
	StatsCron         string            `mapstructure:"stats_cron"`
	FilterCacheSize   int               `mapstructure:"filter_cache_size"`
	EventQueueSize    int               `mapstructure:"event_queue_size"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig configures the lifecycle event log. Type is one of "buntdb", "sqlite" or
// "postgres", an empty Type disables the event log. For buntdb the DSN is the file name and
// LockPath (default: DSN + ".lock") guards it against a second process.
type PersistenceConfig struct {
	Type     string `mapstructure:"type"`
	DSN      string `mapstructure:"dsn"`
	LockPath string `mapstructure:"lock_path"`
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("host", "", "listen host (empty: all interfaces)")
	flagSet.IntP("port", "P", defaultPort, "listen port")
	flagSet.Duration("grace-period", defaultGracePeriod, "how long a room survives its host's disconnect")
	flagSet.StringP("log-level", "l", defaultLogLevel, "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	flagSet.String("stats-cron", defaultStatsCron, "cron spec of the registry statistics job (empty: disabled)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a Config
// object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	v := viper.New()
	v.SetDefault("port", defaultPort)
	v.SetDefault("grace_period", defaultGracePeriod)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("stats_cron", defaultStatsCron)
	v.SetDefault("filter_cache_size", defaultFilterCacheSize)
	v.SetDefault("event_queue_size", defaultEventQueueSize)
	v.SetDefault("persistence.type", "")
	v.SetDefault("persistence.dsn", "")
	v.SetDefault("persistence.lock_path", "")
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		// only flags given on the command line override, the flag defaults mirror the viper defaults
		flagSet.VisitAll(func(f *pflag.Flag) {
			if !f.Changed {
				return
			}
			if err := v.BindPFlag(f.Name, f); err != nil {
				globals.AppLogger.Error("could not bind flag (ignored)", "flag", f.Name, "error", err)
			}
		})
	}
	v.SetEnvPrefix("LSRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the plain PORT variable is what hosting platforms set
	if _, ok := os.LookupEnv("LSRELAY_PORT"); !ok {
		if err := v.BindEnv("port", "PORT"); err != nil {
			return nil, err
		}
	}
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		v.SetConfigType("toml")
		err = v.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			return nil, err
		}
	}
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.PersistenceConfig.Type == "buntdb" && cfg.PersistenceConfig.LockPath == "" && cfg.PersistenceConfig.DSN != ":memory:" {
		cfg.PersistenceConfig.LockPath = cfg.PersistenceConfig.DSN + ".lock"
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}
