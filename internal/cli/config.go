package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nao1215/tablequery"
	"gopkg.in/yaml.v3"
)

// Config holds defaults for input and output settings. Command-line flags
// and options in the fragment of the input location take precedence.
//
// Example:
//
//	input:
//	  delimiter: semicolon
//	  encoding: windows-1252
//	  header: present
//	output:
//	  format: tsv
//	  compress: gz
//	memory_limit_mb: 1024
//	memory_warning_threshold: 0.9
type Config struct {
	Input  InputConfig  `yaml:"input"`
	Output OutputConfig `yaml:"output"`

	// MemoryLimitMB bounds the memory used to buffer non-streaming formats
	MemoryLimitMB int64 `yaml:"memory_limit_mb,omitempty"`
	// MaxRows caps the number of rows buffered for non-streaming formats
	MaxRows int64 `yaml:"max_rows,omitempty"`
	// MemoryWarningThreshold is the share of MemoryLimitMB from which
	// buffering logs a warning
	MemoryWarningThreshold float64 `yaml:"memory_warning_threshold,omitempty"`
}

// InputConfig describes how the table is read.
type InputConfig struct {
	Type       string `yaml:"type,omitempty"`
	Encoding   string `yaml:"encoding,omitempty"`
	Header     string `yaml:"header,omitempty"` // "present" | "absent"
	Delimiter  string `yaml:"delimiter,omitempty"`
	QuoteChar  string `yaml:"quotechar,omitempty"`
	EscapeChar string `yaml:"escapechar,omitempty"`
	Sheet      string `yaml:"sheet,omitempty"`
}

// OutputConfig describes how results are written.
type OutputConfig struct {
	Format   string `yaml:"format,omitempty"`
	Compress string `yaml:"compress,omitempty"`
}

// LoadConfig reads a YAML config file. Unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Config path is chosen by the user
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// MemoryLimit returns the buffering limit, or nil when the config sets no
// bound.
func (c *Config) MemoryLimit() *tablequery.MemoryLimit {
	if c.MemoryLimitMB <= 0 && c.MaxRows <= 0 {
		return nil
	}
	return tablequery.NewMemoryLimit(c.MemoryLimitMB).
		WithMaxRows(c.MaxRows).
		SetWarningThreshold(c.MemoryWarningThreshold)
}

// FormatOptions converts the input section to format options.
func (c *Config) FormatOptions() (tablequery.FormatOptions, error) {
	in := c.Input
	opts := tablequery.FormatOptions{Encoding: in.Encoding}

	switch strings.ToLower(in.Header) {
	case "":
	case "present", "true", "yes":
		opts.Header = tablequery.HeaderPresent
	case "absent", "false", "no":
		opts.Header = tablequery.HeaderAbsent
	default:
		return opts, fmt.Errorf("invalid header %q: must be present or absent", in.Header)
	}

	var err error
	if opts.Delimiter, err = parseCharOption("delimiter", in.Delimiter); err != nil {
		return opts, err
	}
	if opts.QuoteChar, err = parseCharOption("quotechar", in.QuoteChar); err != nil {
		return opts, err
	}
	if opts.EscapeChar, err = parseCharOption("escapechar", in.EscapeChar); err != nil {
		return opts, err
	}
	return opts, nil
}

// parseCharOption decodes a character option. An empty value is unset.
func parseCharOption(name, value string) (rune, error) {
	if value == "" {
		return 0, nil
	}
	r, ok := tablequery.ParseChar(value)
	if !ok {
		return 0, fmt.Errorf("invalid %s %q: expected a single character or a name such as tab", name, value)
	}
	return r, nil
}
