// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
)

// Common application errors.
var (
	// Authentication errors.
	ErrAuthFailed = errors.New("authentication failed")

	// Pipeline errors.
	ErrPageUnavailable = errors.New("order page unavailable")
	ErrMaxRetries      = errors.New("max retries exceeded")

	// Configuration errors.
	ErrInvalidHeaderFile = errors.New("invalid header file")
)
