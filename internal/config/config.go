// Package config loads opcheck configuration files.
//
// A config file supplies defaults for the test command. Flags given on the
// command line take precedence over values from the file.
//
//	evaluator: command
//	eval_cmd: ./calc {{.Op}} {{range .Operands}}{{.}} {{end}}
//	width: 64
//	timeout: 5s
//	parallel: 4
//	db: .opcheck/history.db
//	metrics_file: /var/lib/node_exporter/opcheck.prom
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/opcheck/internal/eval"
)

// Evaluator names accepted by the test command.
const (
	EvaluatorNative  = "native"
	EvaluatorCommand = "command"
)

// Config holds test command defaults.
type Config struct {
	Evaluator   string        `yaml:"evaluator"`
	EvalCmd     string        `yaml:"eval_cmd"`
	Width       int           `yaml:"width"` // 0 uses each suite's width
	Timeout     time.Duration `yaml:"timeout"`
	Parallel    int           `yaml:"parallel"`
	Filter      string        `yaml:"filter"`
	DB          string        `yaml:"db"`
	MetricsFile string        `yaml:"metrics_file"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Evaluator: EvaluatorNative,
		Timeout:   eval.DefaultCommandTimeout,
	}
}

// Load reads a config file. Fields absent from the file keep their
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses config YAML over the defaults. Unknown fields are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	switch c.Evaluator {
	case EvaluatorNative:
	case EvaluatorCommand:
		if c.EvalCmd == "" {
			return errors.New("eval_cmd is required for the command evaluator")
		}
	default:
		return fmt.Errorf("unknown evaluator %q (want %s or %s)", c.Evaluator, EvaluatorNative, EvaluatorCommand)
	}
	if _, err := eval.ParseWidth(c.Width); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.Parallel < 0 {
		return errors.New("parallel must not be negative")
	}
	return nil
}
