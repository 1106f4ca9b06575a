// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration parameters for the application.
type Config struct {
	Credentials          CredentialsConfig          `mapstructure:"credentials"`
	Issues               IssuesConfig               `mapstructure:"issues"`
	Cache                CacheConfig                `mapstructure:"cache"`
	Metrics              MetricsConfig              `mapstructure:"metrics"`
	Logging              LoggingConfig              `mapstructure:"logging"`
	CustomFields         CustomFieldsConfig         `mapstructure:"custom_fields"`
	PrivateSecurityLevel PrivateSecurityLevelConfig `mapstructure:"private_security_level"`
	Modules              ModulesConfig              `mapstructure:"modules"`
}

// CredentialsConfig holds the bot account used against the tracker.
type CredentialsConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// PAT is a personal access token; when set it is sent as a bearer token instead of basic auth.
	PAT string `mapstructure:"pat"`
}

// IssuesConfig controls which tickets are polled and how often.
type IssuesConfig struct {
	URL               string        `mapstructure:"url"`
	Projects          []string      `mapstructure:"projects"`
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	Lookback          time.Duration `mapstructure:"lookback"`
	Workers           int           `mapstructure:"workers"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// CacheConfig controls the dedup cache of tickets without actionable changes.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CustomFieldsConfig maps tracker custom field IDs.
type CustomFieldsConfig struct {
	CHK          string `mapstructure:"chk"`
	Confirmation string `mapstructure:"confirmation"`
	// ConfirmationName is the display name the change log uses for the confirmation field.
	ConfirmationName string `mapstructure:"confirmation_name"`
	MojangPriority   string `mapstructure:"mojang_priority"`
	TriagedTime      string `mapstructure:"triaged_time"`
}

// PrivateSecurityLevelConfig holds the security level IDs that make a ticket private.
type PrivateSecurityLevelConfig struct {
	Default string            `mapstructure:"default"`
	Special map[string]string `mapstructure:"special"`
}

// For returns the private security level of a project.
// Project keys are compared case-insensitively since viper lowercases map keys.
func (p PrivateSecurityLevelConfig) For(project string) string {
	for key, level := range p.Special {
		if strings.EqualFold(key, project) {
			return level
		}
	}
	return p.Default
}

// ModuleConfig is embedded by every module's configuration.
type ModuleConfig struct {
	Whitelist []string `mapstructure:"whitelist"`
}

// ModulesConfig holds the per-module configuration.
type ModulesConfig struct {
	Attachment struct {
		ModuleConfig       `mapstructure:",squash"`
		ExtensionBlacklist []string `mapstructure:"extension_blacklist"`
	} `mapstructure:"attachment"`

	CHK struct {
		ModuleConfig `mapstructure:",squash"`
	} `mapstructure:"chk"`

	ReopenAwaiting struct {
		ModuleConfig `mapstructure:",squash"`
	} `mapstructure:"reopen_awaiting"`

	Piracy struct {
		ModuleConfig     `mapstructure:",squash"`
		PiracyMessage    string   `mapstructure:"piracy_message"`
		PiracySignatures []string `mapstructure:"piracy_signatures"`
	} `mapstructure:"piracy"`

	RemoveTriagedMeqs struct {
		ModuleConfig  `mapstructure:",squash"`
		MeqsTags      []string `mapstructure:"meqs_tags"`
		RemovalReason string   `mapstructure:"removal_reason"`
	} `mapstructure:"remove_triaged_meqs"`

	FutureVersion struct {
		ModuleConfig         `mapstructure:",squash"`
		FutureVersionMessage string `mapstructure:"future_version_message"`
	} `mapstructure:"future_version"`

	RemoveNonStaffMeqs struct {
		ModuleConfig  `mapstructure:",squash"`
		RemovalReason string `mapstructure:"removal_reason"`
	} `mapstructure:"remove_non_staff_meqs"`

	Empty struct {
		ModuleConfig `mapstructure:",squash"`
		EmptyMessage string `mapstructure:"empty_message"`
	} `mapstructure:"empty"`

	Crash struct {
		ModuleConfig     `mapstructure:",squash"`
		CrashExtensions  []string         `mapstructure:"crash_extensions"`
		Duplicates       []CrashDuplicate `mapstructure:"duplicates"`
		MaxAttachmentAge int              `mapstructure:"max_attachment_age"`
		ModdedMessage    string           `mapstructure:"modded_message"`
		DuplicateMessage string           `mapstructure:"duplicate_message"`
	} `mapstructure:"crash"`

	RevokeConfirmation struct {
		ModuleConfig `mapstructure:",squash"`
	} `mapstructure:"revoke_confirmation"`

	KeepPrivate struct {
		ModuleConfig       `mapstructure:",squash"`
		Tag                string `mapstructure:"tag"`
		KeepPrivateMessage string `mapstructure:"keep_private_message"`
	} `mapstructure:"keep_private"`

	HideImpostors struct {
		ModuleConfig `mapstructure:",squash"`
	} `mapstructure:"hide_impostors"`

	Privacy struct {
		ModuleConfig  `mapstructure:",squash"`
		Message       string   `mapstructure:"message"`
		CommentNote   string   `mapstructure:"comment_note"`
		AllowedEmails []string `mapstructure:"allowed_emails"`
	} `mapstructure:"privacy"`
}

// CrashDuplicate maps a known crash exception to the ticket it duplicates.
type CrashDuplicate struct {
	Exception string `mapstructure:"exception"`
	Duplicate string `mapstructure:"duplicate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("issues.check_interval", "10s")
	v.SetDefault("issues.lookback", "5m")
	v.SetDefault("issues.workers", 4)
	v.SetDefault("issues.requests_per_second", 10.0)
	v.SetDefault("cache.ttl", "290s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("custom_fields.confirmation_name", "Confirmation Status")
	v.SetDefault("modules.crash.max_attachment_age", 30)
}

// LoadConfig initializes and loads configuration from an optional YAML file and environment variables.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Map specific environment variables
	v.BindEnv("issues.url", "JIRA_URL")
	v.BindEnv("credentials.username", "JIRA_USERNAME")
	v.BindEnv("credentials.password", "JIRA_TOKEN")
	v.BindEnv("credentials.pat", "JIRA_PAT")
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("metrics.address", "METRICS_ADDRESS")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validateConfig ensures that all required configuration values are provided.
func validateConfig(config *Config) error {
	if err := ValidateJiraConfig(config); err != nil {
		return err
	}

	if len(config.Issues.Projects) == 0 {
		return fmt.Errorf("issues.projects must list at least one project")
	}
	if config.Issues.CheckInterval <= 0 {
		return fmt.Errorf("issues.check_interval must be positive, got %s", config.Issues.CheckInterval)
	}
	if config.Issues.Lookback < time.Minute {
		return fmt.Errorf("issues.lookback must be at least one minute, got %s", config.Issues.Lookback)
	}
	if config.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", config.Cache.TTL)
	}

	return nil
}

// ValidateJiraConfig validates JIRA-specific configuration.
func ValidateJiraConfig(config *Config) error {
	var missingVars []string

	// JIRA validation
	if config.Issues.URL == "" {
		missingVars = append(missingVars, "JIRA_URL")
	}
	if config.Credentials.Username == "" {
		missingVars = append(missingVars, "JIRA_USERNAME")
	}
	if config.Credentials.Password == "" && config.Credentials.PAT == "" {
		missingVars = append(missingVars, "JIRA_TOKEN")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}
