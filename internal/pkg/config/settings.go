package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GRIDSIM_HTTP_ADDR.
const EnvPrefix = "GRIDSIM"

// Settings are the runtime options of a simulation run.
type Settings struct {
	Model     string          `mapstructure:"model"`
	Log       LogSettings     `mapstructure:"log"`
	HTTP      HTTPSettings    `mapstructure:"http"`
	Step      StepSettings    `mapstructure:"step"`
	Recorders RecorderSetting `mapstructure:"recorders"`
}

// LogSettings select the logger level and encoding.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTPSettings configure the reporting service. An empty address disables it.
type HTTPSettings struct {
	Addr string `mapstructure:"addr"`
}

// StepSettings bound the simulation clock.
type StepSettings struct {
	Max  int64         `mapstructure:"max"`  // s, longest step
	Stop int64         `mapstructure:"stop"` // s, 0 runs until cancelled
	Pace time.Duration `mapstructure:"pace"` // wall-clock delay between steps
}

// RecorderSetting enables recorders by giving them an endpoint.
type RecorderSetting struct {
	Mongo  MongoSettings  `mapstructure:"mongo"`
	NATS   NATSSettings   `mapstructure:"nats"`
	SQL    SQLSettings    `mapstructure:"sql"`
	Influx InfluxSettings `mapstructure:"influx"`
}

type MongoSettings struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type NATSSettings struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type SQLSettings struct {
	Driver string `mapstructure:"driver"` // sqlite, mysql or postgres
	DSN    string `mapstructure:"dsn"`
}

type InfluxSettings struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("step.max", 60)
	v.SetDefault("step.stop", 3600)
	v.SetDefault("step.pace", "0s")
	v.SetDefault("recorders.mongo.uri", "")
	v.SetDefault("recorders.mongo.database", "gridsim")
	v.SetDefault("recorders.mongo.collection", "snapshots")
	v.SetDefault("recorders.nats.url", "")
	v.SetDefault("recorders.nats.prefix", "gridsim")
	v.SetDefault("recorders.sql.driver", "sqlite")
	v.SetDefault("recorders.sql.dsn", "")
	v.SetDefault("recorders.influx.url", "")
	v.SetDefault("recorders.influx.token", "")
	v.SetDefault("recorders.influx.org", "")
	v.SetDefault("recorders.influx.bucket", "gridsim")
}

// NewViper returns a viper instance carrying the defaults and environment
// bindings. Callers may bind command line flags to it before LoadSettings.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadSettings reads the optional settings file at path into v and decodes
// the result.
func LoadSettings(v *viper.Viper, path string) (Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("reading settings %s: %w", path, err)
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the step bounds and recorder driver.
func (s Settings) Validate() error {
	if s.Step.Max < 1 {
		return fmt.Errorf("step.max must be >= 1, got %d", s.Step.Max)
	}
	if s.Step.Stop < 0 {
		return fmt.Errorf("step.stop must be >= 0, got %d", s.Step.Stop)
	}
	if s.Step.Pace < 0 {
		return fmt.Errorf("step.pace must be >= 0, got %v", s.Step.Pace)
	}
	switch s.Recorders.SQL.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("recorders.sql.driver %q is not sqlite, mysql or postgres", s.Recorders.SQL.Driver)
	}
	return nil
}
