package service

import "errors"

var (
	// ErrNotStarted is returned by Mount before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrNoStore is returned by Start without a persistence collaborator.
	ErrNoStore = errors.New("no persistence store configured")
	// ErrNoStudent rejects a hello without a student ID.
	ErrNoStudent = errors.New("hello carries no student id")
	// ErrUnknownCommand is wrapped for unrecognized client commands.
	ErrUnknownCommand = errors.New("unknown command")
)
