package repository

import "errors"

// Sentinel kinds for persistence errors.
var (
	ErrOpen            = errors.New("open database")
	ErrNotFound        = errors.New("session not found")
	ErrInvalidRecord   = errors.New("invalid record")
	ErrInvalidLimit    = errors.New("invalid message limit")
	ErrInvalidSchedule = errors.New("invalid sweep schedule")
)
