package config

import (
	"errors"
)

// Sentinel errors returned by Load and Validate; match them with errors.Is.
var (
	ErrInvalidConfig = errors.New("config: invalid")
	ErrLoadConfig    = errors.New("config: load failed")
)
