package sensormux

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"
)

// EnvPrefix prefixes environment overrides, e.g. SENSORMUX_SOURCES_TEMP.
const EnvPrefix = "SENSORMUX_"

// Sources holds the locator of each sensor source.
type Sources struct {
	Temp string `koanf:"temp" yaml:"temp"`
	Pres string `koanf:"pres" yaml:"pres"`
}

// Locators converts s for NewRegistry.
func (s Sources) Locators() Locators {
	return Locators{Temperature: s.Temp, Pressure: s.Pres}
}

// Config describes one sensor device node.
type Config struct {
	// Name is the device node name clients address.
	Name string `koanf:"name" yaml:"name"`

	// Addr is the listen address of the daemon's HTTP frontend.
	Addr string `koanf:"addr" yaml:"addr"`

	// Capacity is the transfer buffer size in bytes.
	Capacity int `koanf:"capacity" yaml:"capacity"`

	Sources Sources `koanf:"sources" yaml:"sources"`
}

// DefaultConfig reads the first hwmon temperature and the first IIO pressure sensor.
func DefaultConfig() Config {
	return Config{
		Name:     "sensormux",
		Addr:     ":8000",
		Capacity: DefaultCapacity,
		Sources: Sources{
			Temp: "/sys/class/hwmon/hwmon0/temp1_input",
			Pres: "/sys/bus/iio/devices/iio:device0/in_pressure_input",
		},
	}
}

// Validate checks that cfg can build a device.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("config: empty name")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("config: invalid capacity %d", c.Capacity)
	}
	if c.Sources.Temp == "" || c.Sources.Pres == "" {
		return errors.New("config: every source needs a locator")
	}
	return nil
}

// LoadConfig layers the defaults, the YAML file at path and SENSORMUX_*
// environment variables, in that order. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	} else if path != "" && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	envKey := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// WriteConfig encodes cfg as YAML.
func WriteConfig(w io.Writer, cfg Config) error {
	return yml.NewEncoder(w).Encode(cfg)
}
