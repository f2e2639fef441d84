package domain

import "errors"

var (
	ErrFlashAlreadyQueued = errors.New("a flash is already queued")
	ErrFlashCancelled     = errors.New("flash cancelled")
	ErrFlashInProgress    = errors.New("a flash is already in progress")
	ErrInvalidBuildConfig = errors.New("invalid build config")
	ErrInvalidTransition  = errors.New("invalid session status transition")
)
