package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigDir is the project-local directory holding config.yaml.
const ConfigDir = ".sfmc"

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → .env → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir    string
	configFile string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// NewFileLoader loads from an explicit config file instead of
// <rootDir>/.sfmc/config.yaml. The .env file is still looked up next to it.
func NewFileLoader(path string) Loader {
	return &loader{rootDir: filepath.Dir(path), configFile: path}
}

// credentialEnv maps credential keys to the unprefixed-section variable
// names used by existing .env files (SFMC_SUBDOMAIN, not SFMC_SFMC_SUBDOMAIN).
var credentialEnv = map[string]string{
	"sfmc.subdomain":         "SFMC_SUBDOMAIN",
	"sfmc.client_id":         "SFMC_CLIENT_ID",
	"sfmc.client_secret":     "SFMC_CLIENT_SECRET",
	"sfmc.account_id":        "SFMC_ACCOUNT_ID",
	"sfmc.parent_account_id": "SFMC_PARENT_ACCOUNT_ID",
	"sfmc.child_account_ids": "SFMC_CHILD_ACCOUNT_IDS",
	"sfmc.soap_debug":        "SFMC_SOAP_DEBUG",
	"sfmc.rest_debug":        "SFMC_REST_DEBUG",
	"sfmc.soap_max_pages":    "SFMC_SOAP_MAX_PAGES",
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (SFMC_*), including values from <rootDir>/.env
// 2. Config file (.sfmc/config.yaml or .sfmc/config.yml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(filepath.Join(l.rootDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(l.rootDir, ConfigDir))
	}

	v.SetEnvPrefix("SFMC")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., SFMC_RUNNER_PAGE_SIZE)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, env := range credentialEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values. Every key needs a
// default so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("sfmc.subdomain", d.SFMC.Subdomain)
	v.SetDefault("sfmc.client_id", d.SFMC.ClientID)
	v.SetDefault("sfmc.client_secret", d.SFMC.ClientSecret)
	v.SetDefault("sfmc.account_id", d.SFMC.AccountID)
	v.SetDefault("sfmc.parent_account_id", d.SFMC.ParentAccountID)
	v.SetDefault("sfmc.child_account_ids", d.SFMC.ChildAccountIDs)
	v.SetDefault("sfmc.soap_debug", d.SFMC.SOAPDebug)
	v.SetDefault("sfmc.rest_debug", d.SFMC.RESTDebug)
	v.SetDefault("sfmc.soap_max_pages", d.SFMC.SOAPMaxPages)

	v.SetDefault("runner.max_concurrent_extractors", d.Runner.MaxConcurrentExtractors)
	v.SetDefault("runner.max_concurrent_requests", d.Runner.MaxConcurrentRequests)
	v.SetDefault("runner.page_size", d.Runner.PageSize)
	v.SetDefault("runner.max_pages", d.Runner.MaxPages)
	v.SetDefault("runner.include_details", d.Runner.IncludeDetails)
	v.SetDefault("runner.include_content", d.Runner.IncludeContent)
	v.SetDefault("runner.base_delay", d.Runner.BaseDelay)
	v.SetDefault("runner.max_delay", d.Runner.MaxDelay)
	v.SetDefault("runner.use_planner", d.Runner.UsePlanner)
	v.SetDefault("runner.include_dependencies", d.Runner.IncludeDependencies)
	v.SetDefault("runner.enable_multi_account", d.Runner.EnableMultiAccount)
	v.SetDefault("runner.cache_only_types", d.Runner.CacheOnlyTypes)
	v.SetDefault("runner.presets_file", d.Runner.PresetsFile)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.sqlite", d.Output.SQLite)
	v.SetDefault("output.archive.endpoint", d.Output.Archive.Endpoint)
	v.SetDefault("output.archive.region", d.Output.Archive.Region)
	v.SetDefault("output.archive.bucket", d.Output.Archive.Bucket)
	v.SetDefault("output.archive.prefix", d.Output.Archive.Prefix)
	v.SetDefault("output.archive.access_key", d.Output.Archive.AccessKey)
	v.SetDefault("output.archive.secret_key", d.Output.Archive.SecretKey)
	v.SetDefault("output.archive.use_ssl", d.Output.Archive.UseSSL)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}
