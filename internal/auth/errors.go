package auth

import "fmt"

// ConfigurationError indicates that no usable authentication method is
// configured. It is fatal to the current operation and never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "auth configuration error: " + e.Reason
}

// ExchangeError is a rejection from the OAuth token endpoint. For service
// accounts it is absorbed by rotation; for the OAuth fallback it surfaces.
type ExchangeError struct {
	Status      int
	Code        string
	Description string
}

func (e *ExchangeError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("token exchange failed with status %d: %s", e.Status, e.Description)
	}
	return fmt.Sprintf("token exchange failed with status %d: %s: %s", e.Status, e.Code, e.Description)
}
