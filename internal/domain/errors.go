package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrOutcomeLocked = errors.New("outcome already locked")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNetwork       = errors.New("network failure")
	ErrTimeout       = errors.New("timeout")
	ErrServer        = errors.New("server error")
	ErrParse         = errors.New("parse failure")
	ErrLockHeld      = errors.New("lock already held")
	ErrSessionActive = errors.New("stream session already active")
)

// StatusError is returned when the upstream analysis server answers with a
// non-2xx status. It matches ErrServer under errors.Is.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.Code, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrServer }
