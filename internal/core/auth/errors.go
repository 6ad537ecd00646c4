package auth

import "errors"

// Authentication errors. All of them are answered with 401; the message does
// not reveal which secret a key was checked against.
var (
	ErrMissingKey       = errors.New("API key required in X-API-Key header")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
)
