package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom
// rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that
// cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Server.Auth.Enabled && len(cfg.Server.Auth.Users) == 0 {
		return fmt.Errorf("server.auth: enabled but no users configured")
	}

	if cfg.Storage.Type == "s3" {
		if v, _ := cfg.Storage.S3["bucket"].(string); v == "" {
			return fmt.Errorf("storage.s3: bucket is required")
		}
		if v, _ := cfg.Storage.S3["region"].(string); v == "" {
			return fmt.Errorf("storage.s3: region is required")
		}
	}

	if cfg.Locks.Type == "badger" {
		if v, _ := cfg.Locks.Badger["path"].(string); v == "" {
			return fmt.Errorf("locks.badger: path is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
