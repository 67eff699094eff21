package models

import "errors"

// Application-wide standard errors
var (
	// Input / request errors
	ErrInvalidInput = errors.New("invalid input data")
	ErrEmptyPrompt  = errors.New("prompt must not be empty")

	// Authentication errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSessionExpired = errors.New("session expired, sign-in required") // refresh token тоже невалиден
	ErrNoToken        = errors.New("no stored credential")

	// Transport / server errors
	ErrNetwork = errors.New("network failure")
	ErrServer  = errors.New("story service error")

	// Story / generation errors
	ErrStoryNotFound     = errors.New("story not found")
	ErrEmptyStory        = errors.New("completed story has no playable scenes")
	ErrGenerationFailed  = errors.New("story generation failed")
	ErrGenerationTimeout = errors.New("story generation timed out")

	// Playback errors
	ErrMediaLoad    = errors.New("failed to load scene media")
	ErrNoSceneIndex = errors.New("scene index out of range")

	// Local storage errors
	ErrKeyNotFound = errors.New("key not found in storage")
)
