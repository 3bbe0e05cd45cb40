package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayounce80/sfmc-inv2/internal/snapshot"
)

var (
	// ErrMissingSubdomain indicates the tenant subdomain is not configured
	ErrMissingSubdomain = errors.New("SFMC_SUBDOMAIN is required")

	// ErrMissingClientID indicates the API client id is not configured
	ErrMissingClientID = errors.New("SFMC_CLIENT_ID is required")

	// ErrMissingClientSecret indicates the API client secret is not configured
	ErrMissingClientSecret = errors.New("SFMC_CLIENT_SECRET is required")

	// ErrInvalidConcurrency indicates a non-positive concurrency limit
	ErrInvalidConcurrency = errors.New("invalid concurrency")

	// ErrInvalidPaging indicates a non-positive page size or page limit
	ErrInvalidPaging = errors.New("invalid paging")

	// ErrInvalidDelay indicates negative or inverted delay bounds
	ErrInvalidDelay = errors.New("invalid delay")

	// ErrInvalidFormat indicates an unsupported output format
	ErrInvalidFormat = errors.New("invalid output format")

	// ErrInvalidArchive indicates an incomplete archive target
	ErrInvalidArchive = errors.New("invalid archive settings")
)

// Validate checks that the configuration is consistent. Credentials are not
// required here so offline commands work without them; see
// ValidateCredentials.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateRunner(&cfg.Runner); err != nil {
		errs = append(errs, err)
	}

	if err := validateOutput(&cfg.Output); err != nil {
		errs = append(errs, err)
	}

	if cfg.SFMC.SOAPMaxPages <= 0 {
		errs = append(errs, fmt.Errorf("%w: soap_max_pages must be positive, got %d", ErrInvalidPaging, cfg.SFMC.SOAPMaxPages))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

// ValidateCredentials checks the settings needed to call the API.
func ValidateCredentials(cfg *SFMCConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.Subdomain) == "" {
		errs = append(errs, ErrMissingSubdomain)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		errs = append(errs, ErrMissingClientID)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		errs = append(errs, ErrMissingClientSecret)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateRunner(cfg *RunnerConfig) error {
	var errs []error

	if cfg.MaxConcurrentExtractors <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_concurrent_extractors must be positive, got %d", ErrInvalidConcurrency, cfg.MaxConcurrentExtractors))
	}
	if cfg.MaxConcurrentRequests <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_concurrent_requests must be positive, got %d", ErrInvalidConcurrency, cfg.MaxConcurrentRequests))
	}

	if cfg.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: page_size must be positive, got %d", ErrInvalidPaging, cfg.PageSize))
	}
	if cfg.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_pages must be positive, got %d", ErrInvalidPaging, cfg.MaxPages))
	}

	if cfg.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("%w: base_delay cannot be negative, got %s", ErrInvalidDelay, cfg.BaseDelay))
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		errs = append(errs, fmt.Errorf("%w: max_delay (%s) is below base_delay (%s)", ErrInvalidDelay, cfg.MaxDelay, cfg.BaseDelay))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateOutput(cfg *OutputConfig) error {
	var errs []error

	format := strings.ToLower(cfg.Format)
	if format != snapshot.FormatJSON && format != snapshot.FormatYAML {
		errs = append(errs, fmt.Errorf("%w: must be 'json' or 'yaml', got '%s'", ErrInvalidFormat, cfg.Format))
	}

	// Archiving is optional; only a configured endpoint needs the rest.
	if cfg.Archive.Enabled() {
		if cfg.Archive.Bucket == "" {
			errs = append(errs, fmt.Errorf("%w: bucket is required", ErrInvalidArchive))
		}
		if cfg.Archive.AccessKey == "" || cfg.Archive.SecretKey == "" {
			errs = append(errs, fmt.Errorf("%w: access_key and secret_key are required", ErrInvalidArchive))
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
// The result still matches each joined error with errors.Is.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return &validationError{
		msg:  fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - ")),
		errs: errs,
	}
}

type validationError struct {
	msg  string
	errs []error
}

func (e *validationError) Error() string   { return e.msg }
func (e *validationError) Unwrap() []error { return e.errs }
