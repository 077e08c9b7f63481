// Package config reads itinerary configuration from YAML, JSON or TOML
// files and hot reloads them.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/itinerary/domain/config"
)

// Format names a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

var extensions = map[string]Format{
	".yaml": FormatYAML,
	".yml":  FormatYAML,
	".json": FormatJSON,
	".toml": FormatTOML,
}

// decoders reject keys that do not map onto config.Config.
var decoders = map[Format]func([]byte, *config.Config) error{
	FormatYAML: func(data []byte, cfg *config.Config) error {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	},
	FormatJSON: func(data []byte, cfg *config.Config) error {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	},
	FormatTOML: func(data []byte, cfg *config.Config) error {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if keys := md.Undecoded(); len(keys) > 0 {
			return fmt.Errorf("unknown field %s", keys[0])
		}
		return nil
	},
}

// FormatFor maps a file extension to its Format.
func FormatFor(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", config.ErrUnsupportedFormat, ext)
}

// Loader turns documents into defaulted, validated configurations.
type Loader struct {
	expandEnv bool
	strictEnv bool
	validate  bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvExpansion toggles ${VAR} expansion before decoding.
func WithEnvExpansion(enabled bool) LoaderOption {
	return func(l *Loader) { l.expandEnv = enabled }
}

// WithStrictEnv fails loading when a referenced variable is unset and has
// no default.
func WithStrictEnv(enabled bool) LoaderOption {
	return func(l *Loader) { l.strictEnv = enabled }
}

// WithValidation toggles validation after defaults are applied.
func WithValidation(enabled bool) LoaderOption {
	return func(l *Loader) { l.validate = enabled }
}

// NewLoader expands variables and validates unless told otherwise.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{expandEnv: true, validate: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile reads path in the format its extension names.
func (l *Loader) LoadFile(path string) (*config.Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
	case err != nil:
		if info, serr := os.Stat(path); serr == nil && info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", config.ErrInvalidFormat, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.LoadBytes(data, format)
}

// LoadString is LoadBytes for inline documents.
func (l *Loader) LoadString(content string, format Format) (*config.Config, error) {
	return l.LoadBytes([]byte(content), format)
}

// LoadBytes decodes data, fills defaults and validates the result.
func (l *Loader) LoadBytes(data []byte, format Format) (*config.Config, error) {
	decode, ok := decoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", config.ErrUnsupportedFormat, format)
	}

	if l.expandEnv {
		expanded, err := expand(string(data), l.strictEnv)
		if err != nil {
			return nil, err
		}
		data = []byte(expanded)
	}

	cfg := &config.Config{}
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidFormat, err)
	}
	cfg.ApplyDefaults()

	if !l.validate {
		return cfg, nil
	}
	if errs := config.NewValidator().Validate(cfg); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %w", config.ErrValidationFailed, errs)
	}
	return cfg, nil
}
