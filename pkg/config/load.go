package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read config file"),
			errors.Fields{"path": path},
		)
	}
	return Parse(data)
}

// Parse overlays YAML content onto the defaults and validates the result.
// Sections absent from the document keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.ParseFailure, "failed to parse config YAML")
	}

	cfg.Normalize()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation plus the cross-field checks the tags
// cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
		}
		return errors.WithFields(
			errors.Wrap(err, errors.ValidationFailed, "invalid configuration"),
			errors.Fields{"fields": strings.Join(fields, ", ")},
		)
	}

	if err := cfg.Reward.Validate(); err != nil {
		return err
	}
	for i := range cfg.Axioms {
		if err := cfg.Axioms[i].Validate(); err != nil {
			return err
		}
	}

	if cfg.Facts.Backend == "sqlite" && cfg.Facts.Path == "" {
		return errors.New(errors.ValidationFailed,
			"facts backend sqlite requires a path")
	}
	if cfg.Cache.Backend == "sqlite" && cfg.Cache.Path == "" {
		return errors.New(errors.ValidationFailed,
			"cache backend sqlite requires a path")
	}
	return nil
}
