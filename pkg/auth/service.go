package auth

import (
	"errors"
	"os"
)

var (
	// ErrMissingServiceToken indicates no token was supplied
	ErrMissingServiceToken = errors.New("missing service token")
	// ErrInvalidServiceToken indicates the token did not match
	ErrInvalidServiceToken = errors.New("invalid service token")
)

// ValidateServiceToken compares a presented token against the expected one
func ValidateServiceToken(token string, expectedToken string) error {
	if token == "" {
		return ErrMissingServiceToken
	}

	if token != expectedToken {
		return ErrInvalidServiceToken
	}

	return nil
}

// GetServiceToken gets the service token from environment
func GetServiceToken() string {
	return os.Getenv("SERVICE_TOKEN")
}
