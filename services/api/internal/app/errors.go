package app

import (
	"errors"
	"fmt"

	"bizassist/pkg/ai"
)

// ValidationError reports user-correctable input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// LicenseInfo describes the module a caller is missing.
type LicenseInfo struct {
	Module string `json:"module"`
	Status string `json:"status"`
}

// AuthError is a missing or invalid session, or a missing license when
// License is set.
type AuthError struct {
	Code    string
	Message string
	License *LicenseInfo
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// LicenseRequired builds the AuthError returned when module is not licensed.
func LicenseRequired(module string) *AuthError {
	return &AuthError{
		Code:    "license_required",
		Message: fmt.Sprintf("your plan does not include the %s module", module),
		License: &LicenseInfo{Module: module, Status: "inactive"},
	}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConfigurationError means a required vendor credential or setting is unset.
// Hint and SetupInstructions are shown to the operator.
type ConfigurationError struct {
	Setting           string
	Message           string
	Hint              string
	SetupInstructions []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s not configured: %s", e.Setting, e.Message)
}

// ProviderHint returns a remediation hint for a failed vendor call.
func ProviderHint(err *ai.ProviderError) string {
	if err == nil {
		return ""
	}
	switch {
	case err.Status == 401 || err.Status == 403:
		return fmt.Sprintf("The %s credentials were rejected. Check the API key or reconnect the integration.", err.Service)
	case err.Status == 429:
		return fmt.Sprintf("%s is rate limiting requests. Wait a moment and try again.", err.Service)
	case err.Status == 0:
		return fmt.Sprintf("%s could not be reached. Check network access and the configured base URL.", err.Service)
	case err.Status >= 500:
		return fmt.Sprintf("%s is having problems. Try again later or pick another provider.", err.Service)
	default:
		return fmt.Sprintf("%s rejected the request. Adjust the input and try again.", err.Service)
	}
}

var errGatewayNotConfigured = &ConfigurationError{
	Setting: "gateway.baseURL",
	Message: "the AI gateway is not configured",
	Hint:    "Set gateway.baseURL in config.yaml or AI_GATEWAY_URL.",
	SetupInstructions: []string{
		"Deploy the AI gateway or obtain its URL from your administrator.",
		"Set AI_GATEWAY_URL (and AI_GATEWAY_API_KEY if required) for the API service.",
		"Restart the API service.",
	},
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
