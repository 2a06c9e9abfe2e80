package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrQueueFull     = errors.New("trigger queue is full")
	ErrMissingEmail  = errors.New("submission email is required")
	ErrMissingCode   = errors.New("submission event code is required")
	ErrRunInProgress = errors.New("another reconciliation is running")
	ErrLockLost      = errors.New("run lock lost before the write")
)
