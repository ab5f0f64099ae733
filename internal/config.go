package internal

import (
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Sync        SyncConfig        `yaml:"sync"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Remote      RemoteConfig      `yaml:"remote"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Attachments.Validate(); err != nil {
		return err
	}
	return c.Remote.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// SyncConfig controls the output root and run behaviour.
type SyncConfig struct {
	Root        string `yaml:"root"`
	Concurrency int    `yaml:"concurrency"`
	DryRun      bool   `yaml:"dry_run"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// AttachmentsConfig tunes attachment downloads and the audio/image
// classification rule. The id-length threshold is empirical, tied to
// the remote service's id scheme, which is why it is configuration and
// not a constant.
type AttachmentsConfig struct {
	FanOut           int      `yaml:"fan_out"`
	MaxRetries       int      `yaml:"max_retries"`
	AudioIDMinLength int      `yaml:"audio_id_min_length"`
	AudioIDPrefixes  []string `yaml:"audio_id_prefixes"`
}

// Validate validates the attachments configuration.
func (c *AttachmentsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FanOut, validation.Required, validation.Min(1), validation.Max(32)),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.AudioIDMinLength, validation.Required, validation.Min(1)),
	)
}

// RemoteConfig holds the cloud service endpoint and credentials. The
// cookie normally arrives via ${MINOTE_COOKIE} expansion; it is
// checked at run start rather than here so dry runs against injected
// gateways stay possible.
type RemoteConfig struct {
	BaseURL        string `yaml:"base_url"`
	Cookie         string `yaml:"cookie"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Required, validation.Min(1), validation.Max(300)),
	)
}

// Timeout returns the per-request timeout.
func (c *RemoteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Sync: SyncConfig{
			Root:        "./Data",
			Concurrency: 8,
		},
		Attachments: AttachmentsConfig{
			FanOut:           4,
			MaxRetries:       3,
			AudioIDMinLength: 30,
		},
		Remote: RemoteConfig{
			BaseURL:        "https://i.mi.com",
			TimeoutSeconds: 15,
		},
	}
}
