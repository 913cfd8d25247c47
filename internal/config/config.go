// Package config provides the configuration schema and loader for the
// vocanta answer pipeline server.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	AWS      AWSConfig      `yaml:"aws"`
	TTS      TTSConfig      `yaml:"tts"`
	KMSearch KMSearchConfig `yaml:"km_search"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AWSConfig names the AWS resources the pipeline depends on.
type AWSConfig struct {
	// Region is the AWS region for DynamoDB and S3 clients. Empty falls back
	// to the SDK's default resolution chain.
	Region string `yaml:"region"`

	// TenantTable is the DynamoDB table holding tenant configuration records.
	TenantTable string `yaml:"tenant_table"`

	// AudioCacheBucket is the S3 bucket for synthesized audio. Empty disables
	// the audio cache.
	AudioCacheBucket string `yaml:"audio_cache_bucket"`
}

// TTSConfig holds server-level speech synthesis settings. Per-tenant voice
// configuration lives in the tenant record, not here.
type TTSConfig struct {
	// AzureRegion is the Azure Speech region (e.g., "southeastasia").
	AzureRegion string `yaml:"azure_region"`
}

// KMSearchConfig holds the knowledge-search API settings.
type KMSearchConfig struct {
	// BaseURL is the search endpoint URL.
	BaseURL string `yaml:"base_url"`
}

// PipelineConfig tunes the answer pipeline.
type PipelineConfig struct {
	// SessionTimeoutSeconds aborts a pipeline run that has not completed in
	// time. Zero means the 300s default.
	SessionTimeoutSeconds int `yaml:"session_timeout_seconds"`

	// KMResultLimit caps merged search results fed to the generator.
	// Zero means the default of 5.
	KMResultLimit int `yaml:"km_result_limit"`
}

// Pipeline defaults.
const (
	DefaultSessionTimeout = 300 * time.Second
	DefaultKMResultLimit  = 5
)

// EffectiveSessionTimeout returns the configured timeout or the default.
func (p PipelineConfig) EffectiveSessionTimeout() time.Duration {
	if p.SessionTimeoutSeconds > 0 {
		return time.Duration(p.SessionTimeoutSeconds) * time.Second
	}
	return DefaultSessionTimeout
}

// EffectiveKMResultLimit returns the configured limit or the default.
func (p PipelineConfig) EffectiveKMResultLimit() int {
	if p.KMResultLimit > 0 {
		return p.KMResultLimit
	}
	return DefaultKMResultLimit
}
