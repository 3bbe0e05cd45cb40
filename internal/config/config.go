package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/ayounce80/sfmc-inv2/internal/runner"
	"github.com/ayounce80/sfmc-inv2/internal/snapshot"
)

// Config represents the complete sfmc-inventory configuration.
// It can be loaded from .sfmc/config.yaml with environment variable overrides.
type Config struct {
	SFMC   SFMCConfig   `yaml:"sfmc" mapstructure:"sfmc"`
	Runner RunnerConfig `yaml:"runner" mapstructure:"runner"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
}

// SFMCConfig holds API credentials and account selection.
type SFMCConfig struct {
	Subdomain       string   `yaml:"subdomain" mapstructure:"subdomain"`
	ClientID        string   `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret    string   `yaml:"client_secret" mapstructure:"client_secret"`
	AccountID       string   `yaml:"account_id" mapstructure:"account_id"`               // MID; empty means the default business unit
	ParentAccountID string   `yaml:"parent_account_id" mapstructure:"parent_account_id"` // enterprise MID for shared lookups
	ChildAccountIDs []string `yaml:"child_account_ids" mapstructure:"child_account_ids"` // fan-out targets for multi-account extractors
	SOAPDebug       bool     `yaml:"soap_debug" mapstructure:"soap_debug"`
	RESTDebug       bool     `yaml:"rest_debug" mapstructure:"rest_debug"`
	SOAPMaxPages    int      `yaml:"soap_max_pages" mapstructure:"soap_max_pages"`
}

// AuthURL is the OAuth2 token endpoint.
func (c SFMCConfig) AuthURL() string {
	return fmt.Sprintf("https://%s.auth.marketingcloudapis.com/v2/token", c.Subdomain)
}

// RESTURL is the REST API base URL.
func (c SFMCConfig) RESTURL() string {
	return fmt.Sprintf("https://%s.rest.marketingcloudapis.com", c.Subdomain)
}

// SOAPURL is the SOAP API endpoint.
func (c SFMCConfig) SOAPURL() string {
	return fmt.Sprintf("https://%s.soap.marketingcloudapis.com/Service.asmx", c.Subdomain)
}

// RunnerConfig tunes extraction scheduling and paging.
type RunnerConfig struct {
	MaxConcurrentExtractors int           `yaml:"max_concurrent_extractors" mapstructure:"max_concurrent_extractors"`
	MaxConcurrentRequests   int           `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
	PageSize                int           `yaml:"page_size" mapstructure:"page_size"`
	MaxPages                int           `yaml:"max_pages" mapstructure:"max_pages"`
	IncludeDetails          bool          `yaml:"include_details" mapstructure:"include_details"`
	IncludeContent          bool          `yaml:"include_content" mapstructure:"include_content"`
	BaseDelay               time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay                time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	UsePlanner              bool          `yaml:"use_planner" mapstructure:"use_planner"`
	IncludeDependencies     bool          `yaml:"include_dependencies" mapstructure:"include_dependencies"`
	EnableMultiAccount      bool          `yaml:"enable_multi_account" mapstructure:"enable_multi_account"`
	CacheOnlyTypes          []string      `yaml:"cache_only_types" mapstructure:"cache_only_types"`
	PresetsFile             string        `yaml:"presets_file" mapstructure:"presets_file"` // extra presets in TOML
}

// OutputConfig controls where run results go.
type OutputConfig struct {
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	Format  string        `yaml:"format" mapstructure:"format"` // "json" or "yaml"
	SQLite  string        `yaml:"sqlite" mapstructure:"sqlite"` // database path; empty disables
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
}

// ArchiveConfig points at an S3-compatible bucket for snapshot uploads.
// An empty endpoint disables archiving.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region" mapstructure:"region"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// Enabled reports whether an archive target is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	rc := runner.DefaultConfig()
	return &Config{
		SFMC: SFMCConfig{
			SOAPMaxPages: 100,
		},
		Runner: RunnerConfig{
			MaxConcurrentExtractors: rc.MaxConcurrentExtractors,
			MaxConcurrentRequests:   rc.MaxConcurrentRequests,
			PageSize:                rc.PageSize,
			MaxPages:                rc.MaxPages,
			IncludeDetails:          rc.IncludeDetails,
			IncludeContent:          rc.IncludeContent,
			BaseDelay:               rc.BaseDelay,
			MaxDelay:                rc.MaxDelay,
			UsePlanner:              rc.UsePlanner,
			IncludeDependencies:     rc.IncludeDependencies,
			EnableMultiAccount:      rc.EnableMultiAccount,
		},
		Output: OutputConfig{
			Dir:    "./output",
			Format: snapshot.FormatJSON,
			Archive: ArchiveConfig{
				Region: "us-east-1",
				UseSSL: true,
			},
		},
	}
}

// WithAccount returns a copy of the configuration targeting accountID.
func (c *Config) WithAccount(accountID string) *Config {
	out := *c
	out.SFMC.AccountID = accountID
	out.SFMC.ChildAccountIDs = slices.Clone(c.SFMC.ChildAccountIDs)
	out.Runner.CacheOnlyTypes = slices.Clone(c.Runner.CacheOnlyTypes)
	return &out
}

// RunnerConfig converts the runner section into runner settings. Configured
// child accounts become the fan-out fallback.
func (c *Config) RunnerConfig() runner.Config {
	rc := runner.DefaultConfig()
	rc.MaxConcurrentExtractors = c.Runner.MaxConcurrentExtractors
	rc.MaxConcurrentRequests = c.Runner.MaxConcurrentRequests
	rc.PageSize = c.Runner.PageSize
	rc.MaxPages = c.Runner.MaxPages
	rc.IncludeDetails = c.Runner.IncludeDetails
	rc.IncludeContent = c.Runner.IncludeContent
	rc.BaseDelay = c.Runner.BaseDelay
	rc.MaxDelay = c.Runner.MaxDelay
	rc.UsePlanner = c.Runner.UsePlanner
	rc.IncludeDependencies = c.Runner.IncludeDependencies
	rc.EnableMultiAccount = c.Runner.EnableMultiAccount
	rc.CacheOnlyTypes = slices.Clone(c.Runner.CacheOnlyTypes)
	rc.DefaultChildAccountIDs = slices.Clone(c.SFMC.ChildAccountIDs)
	return rc
}

// ArchiveConfig converts the archive section for the snapshot archiver.
func (c *Config) ArchiveConfig() snapshot.ArchiveConfig {
	a := c.Output.Archive
	return snapshot.ArchiveConfig{
		Endpoint:  a.Endpoint,
		Region:    a.Region,
		AccessKey: a.AccessKey,
		SecretKey: a.SecretKey,
		Bucket:    a.Bucket,
		Prefix:    a.Prefix,
		UseSSL:    a.UseSSL,
	}
}
