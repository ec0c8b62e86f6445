package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig wraps every Validate failure. ErrUnknownDriver also
// matches it.
var (
	ErrInvalidConfig = errors.New("cohort config is invalid")
	ErrUnknownDriver = fmt.Errorf("unknown driver: %w", ErrInvalidConfig)
	ErrLoadConfig    = errors.New("cohort config could not be read")
)
