// Package validation provides structured validation error handling
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Error represents a validation error with field-specific details
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors represents multiple validation errors
type Errors []Error

// Error implements the error interface
func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}

	var messages []string
	for _, err := range ve {
		if err.Field != "" {
			messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
		} else {
			messages = append(messages, err.Message)
		}
	}

	return strings.Join(messages, "; ")
}

// Add adds a validation error
func (ve *Errors) Add(field, message string) {
	*ve = append(*ve, Error{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors
func (ve Errors) HasErrors() bool {
	return len(ve) > 0
}

// ValidateRequired checks if a value is not empty
func ValidateRequired(value string, fieldName string) *Error {
	if strings.TrimSpace(value) == "" {
		return &Error{
			Field:   fieldName,
			Message: "is required",
		}
	}
	return nil
}

// ValidateMaxLength checks if a string doesn't exceed the maximum length
func ValidateMaxLength(value string, maxLength int, fieldName string) *Error {
	if utf8.RuneCountInString(value) > maxLength {
		return &Error{
			Field:   fieldName,
			Message: fmt.Sprintf("must not exceed %d characters", maxLength),
		}
	}
	return nil
}

// ValidateURL checks that value is an absolute http(s) URL
func ValidateURL(value string, fieldName string) *Error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &Error{
			Field:   fieldName,
			Message: "must be an absolute http or https URL",
		}
	}
	return nil
}

// ValidateAlias checks a short-link alias or page alias: letters, digits,
// '-' and '_' only
func ValidateAlias(value string, fieldName string) *Error {
	if value == "" || len(value) > maxAliasLength {
		return &Error{
			Field:   fieldName,
			Message: fmt.Sprintf("must be 1 to %d characters", maxAliasLength),
		}
	}
	for _, c := range value {
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum && c != '-' && c != '_' {
			return &Error{
				Field:   fieldName,
				Message: "may only contain letters, digits, '-' and '_'",
			}
		}
	}
	return nil
}

const (
	maxURLLength   = 2048
	maxAliasLength = 64
)

// LinkValidation validates link creation parameters
type LinkValidation struct {
	URL    string
	Domain string
}

// Validate validates link fields
func (lv *LinkValidation) Validate() error {
	var errors Errors

	if err := ValidateRequired(lv.URL, "url"); err != nil {
		errors.Add(err.Field, err.Message)
	} else {
		if err := ValidateMaxLength(lv.URL, maxURLLength, "url"); err != nil {
			errors.Add(err.Field, err.Message)
		} else if err := ValidateURL(lv.URL, "url"); err != nil {
			errors.Add(err.Field, err.Message)
		}
	}

	// Domain is optional; the backend falls back to its default domain
	if lv.Domain != "" {
		if err := ValidateMaxLength(lv.Domain, 253, "domain"); err != nil {
			errors.Add(err.Field, err.Message)
		}
		if strings.ContainsAny(lv.Domain, "/ ") {
			errors.Add("domain", "must be a bare host name")
		}
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// LinkUpdateValidation validates link update and delete parameters
type LinkUpdateValidation struct {
	ID        string
	Original  string
	Shortened string
}

// Validate validates link update fields
func (lv *LinkUpdateValidation) Validate() error {
	var errors Errors

	if err := ValidateRequired(lv.ID, "id"); err != nil {
		errors.Add(err.Field, err.Message)
	}

	if lv.Original != "" {
		if err := ValidateMaxLength(lv.Original, maxURLLength, "original"); err != nil {
			errors.Add(err.Field, err.Message)
		} else if err := ValidateURL(lv.Original, "original"); err != nil {
			errors.Add(err.Field, err.Message)
		}
	}

	if lv.Shortened != "" {
		if err := ValidateAlias(lv.Shortened, "shortened"); err != nil {
			errors.Add(err.Field, err.Message)
		}
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}
