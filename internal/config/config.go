// Package config holds the process-wide settings. A Config is built once at
// startup from defaults, an optional YAML file, the environment and flags,
// and is then passed by value to whatever needs it.
package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"structflow/internal/isa"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STRUCTFLOW_"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the process configuration.
type Config struct {
	WordBits        int    `yaml:"word_bits" json:"wordBits" jsonschema:"title=Word Bits,description=Pointer width; struct offsets wrap at this width (32 for arm64_32),enum=32,enum=64,default=64"`
	ByteOrder       string `yaml:"byte_order" json:"byteOrder" jsonschema:"title=Byte Order,description=Byte order of instruction words in the image,enum=little,enum=big,default=little"`
	LogLevel        string `yaml:"log_level" json:"logLevel" jsonschema:"title=Log Level,enum=debug,enum=info,enum=warn,enum=error,default=info"`
	LogToFile       bool   `yaml:"log_to_file" json:"logToFile" jsonschema:"title=Log To File,description=Write logs to a timestamped file instead of stderr"`
	LogDir          string `yaml:"log_dir" json:"logDir" jsonschema:"title=Log Directory,description=Directory for log files"`
	MaxFunctionSize uint64 `yaml:"max_function_size" json:"maxFunctionSize" jsonschema:"title=Max Function Size,description=Functions are truncated to this many bytes; 0 disables the limit"`
	MaxDelta        int64  `yaml:"max_delta" json:"maxDelta" jsonschema:"title=Max Delta,description=Largest accepted seed delta and struct offset"`
	NoColor         bool   `yaml:"no_color" json:"noColor" jsonschema:"title=No Color,description=Disable coloured output"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WordBits:        64,
		ByteOrder:       "little",
		LogLevel:        "info",
		LogDir:          ".",
		MaxFunctionSize: 0x100000,
		MaxDelta:        0x1000000,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.WordBits != 32 && c.WordBits != 64 {
		return fmt.Errorf("%w: word_bits %d: want 32 or 64", ErrInvalid, c.WordBits)
	}
	if c.ByteOrder != "little" && c.ByteOrder != "big" {
		return fmt.Errorf("%w: byte_order %q: want little or big", ErrInvalid, c.ByteOrder)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	if c.MaxDelta < 0 {
		return fmt.Errorf("%w: max_delta %d is negative", ErrInvalid, c.MaxDelta)
	}
	return nil
}

// Level is the parsed log level. It assumes c has been validated.
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Order is the byte order of instruction words.
func (c Config) Order() binary.ByteOrder {
	if c.ByteOrder == "big" {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Arch is the machine word the analysis runs with.
func (c Config) Arch() isa.Arch {
	return isa.Arch{Bits: c.WordBits, Order: c.Order()}
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "structflow", "config.yaml")
}

// Load builds a Config from defaults, the YAML file at path and the process
// environment. An empty path means DefaultPath, which may be absent.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultPath()
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			if !optional || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookup(EnvPrefix + "LOG_DIR"); ok && v != "" {
		c.LogDir = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_TO_FILE"); ok {
		c.LogToFile = v == "1"
	}
	if _, ok := lookup("NO_COLOR"); ok {
		c.NoColor = true
	}
	if v, ok := lookup(EnvPrefix + "NO_COLOR"); ok {
		c.NoColor = v == "1"
	}
	if v, ok := lookup(EnvPrefix + "MAX_FUNCTION_SIZE"); ok && v != "" {
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_FUNCTION_SIZE: %v", ErrInvalid, EnvPrefix, err)
		}
		c.MaxFunctionSize = n
	}
	return nil
}
