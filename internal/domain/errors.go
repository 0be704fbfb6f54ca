package domain

import "errors"

// ErrInvalidCredential covers every rejected token or password. Callers see
// one generic message regardless of which detail error wraps it.
var ErrInvalidCredential = errors.New("invalid or expired credential")

// Detail errors for observability. Both satisfy errors.Is(err, ErrInvalidCredential).
var (
	ErrTokenNotFound = &credentialError{msg: "refresh token not found"}
	ErrTokenExpired  = &credentialError{msg: "refresh token expired"}
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUserExists     = errors.New("user already exists")
	ErrTransientInfra = errors.New("infrastructure temporarily unavailable")
	ErrPoisonEvent    = errors.New("event handler failed")
)

type credentialError struct {
	msg string
}

func (e *credentialError) Error() string { return e.msg }

func (e *credentialError) Unwrap() error { return ErrInvalidCredential }
