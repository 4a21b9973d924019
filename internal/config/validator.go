package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers the gateway's validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"duration":   validateDuration,
		"redis_url":  validateRedisURL,
		"api_prefix": validateAPIPrefix,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateDuration accepts a positive time.ParseDuration string.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// validateRedisURL accepts redis:// and rediss:// URLs with a host.
func validateRedisURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "redis" || u.Scheme == "rediss") && u.Host != ""
}

// validateAPIPrefix accepts "/segment[/segment...]" without a trailing slash.
func validateAPIPrefix(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	return strings.HasPrefix(p, "/") && !strings.HasSuffix(p, "/") && !strings.Contains(p, "//")
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateBackendNames(); err != nil {
		return err
	}
	if err := c.validateFallbackBackend(); err != nil {
		return err
	}
	return nil
}

// validateBackendNames rejects names that cannot be used as metric labels
// or env keys.
func (c *Config) validateBackendNames() error {
	for _, name := range c.BackendNames() {
		if name == "" || strings.ContainsAny(name, " .\t/") {
			return fmt.Errorf("backends: invalid backend name %q", name)
		}
	}
	return nil
}

// validateFallbackBackend ensures the job fallback targets a known backend.
func (c *Config) validateFallbackBackend() error {
	if _, ok := c.Backends[c.Jobs.FallbackBackend]; !ok {
		return fmt.Errorf("jobs.fallback_backend: references unknown backend: %s", c.Jobs.FallbackBackend)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"30s\" or \"2h\"", field)
	case "redis_url":
		return fmt.Sprintf("%s must be a redis:// or rediss:// URL", field)
	case "cidr|ip":
		return fmt.Sprintf("%s must be an IP address or CIDR range", field)
	case "api_prefix":
		return fmt.Sprintf("%s must start with \"/\" and have no trailing slash", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
