package audio

import "errors"

var (
	// ErrAlreadyRecording rejects a second StartRecording on one bridge.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNoActiveRecording is returned by StopRecording outside Recording.
	ErrNoActiveRecording = errors.New("no active recording")
	// ErrEmptyClip means the recorder delivered no audio data.
	ErrEmptyClip = errors.New("recorded clip is empty")
	// ErrAborted means Abort ran while the microphone was being acquired.
	ErrAborted = errors.New("recording aborted")
)
