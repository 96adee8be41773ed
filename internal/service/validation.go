package service

import (
	"fmt"
	"regexp"
	"time"

	"contentsync/internal/models"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ContentValidator applies per-content-type rules before a write reaches the
// live store.
type ContentValidator struct{}

func NewContentValidator() *ContentValidator {
	return &ContentValidator{}
}

// Validate checks data against the rules for contentType. Unknown types fall
// through to the default rule: a non-empty payload.
func (v *ContentValidator) Validate(contentType string, data map[string]interface{}) models.ValidationResult {
	var errs []string

	switch contentType {
	case "content":
		errs = validateTitled(data)
	case "page":
		errs = validatePage(data)
	case "event":
		errs = validateEvent(data)
	default:
		if len(data) == 0 {
			errs = append(errs, "payload data must not be empty")
		}
	}

	return models.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func validateTitled(data map[string]interface{}) []string {
	var errs []string
	title, ok := stringField(data, "title")
	if !ok || title == "" {
		errs = append(errs, "title is required")
	} else if len(title) > 200 {
		errs = append(errs, "title must be at most 200 characters")
	}
	return errs
}

func validatePage(data map[string]interface{}) []string {
	errs := validateTitled(data)
	slug, ok := stringField(data, "slug")
	if !ok || slug == "" {
		errs = append(errs, "slug is required")
	} else if !slugPattern.MatchString(slug) {
		errs = append(errs, fmt.Sprintf("slug %q must be lowercase letters, digits and hyphens", slug))
	}
	return errs
}

func validateEvent(data map[string]interface{}) []string {
	errs := validateTitled(data)
	startsAt, ok := stringField(data, "starts_at")
	if !ok || startsAt == "" {
		errs = append(errs, "starts_at is required")
	} else if _, err := time.Parse(time.RFC3339, startsAt); err != nil {
		errs = append(errs, fmt.Sprintf("starts_at %q must be RFC3339", startsAt))
	}
	return errs
}

func stringField(data map[string]interface{}, key string) (string, bool) {
	raw, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}
