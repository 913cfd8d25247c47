package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, expands ${VAR} environment
// references so secrets can stay out of the file, and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg, err := LoadFromReader(strings.NewReader(os.ExpandEnv(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.AWS.TenantTable == "" {
		errs = append(errs, errors.New("aws.tenant_table is required"))
	}
	if cfg.KMSearch.BaseURL == "" {
		errs = append(errs, errors.New("km_search.base_url is required"))
	}
	if cfg.TTS.AzureRegion == "" {
		errs = append(errs, errors.New("tts.azure_region is required"))
	}

	if cfg.Pipeline.SessionTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.session_timeout_seconds %d must not be negative", cfg.Pipeline.SessionTimeoutSeconds))
	}
	if cfg.Pipeline.KMResultLimit < 0 {
		errs = append(errs, fmt.Errorf("pipeline.km_result_limit %d must not be negative", cfg.Pipeline.KMResultLimit))
	}

	return errors.Join(errs...)
}
