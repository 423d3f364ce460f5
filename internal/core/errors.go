package core

import "errors"

var (
	// ErrUnauthenticated is returned when a webhook carries no signature header.
	ErrUnauthenticated = errors.New("missing webhook signature")
	// ErrInvalidSignature is returned when the signature does not match the body.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownRepository is returned when a webhook references a repository
	// that is not registered.
	ErrUnknownRepository = errors.New("repository is not registered")
	// ErrDispatchFailed is returned when a job was created but could not be queued.
	ErrDispatchFailed = errors.New("failed to dispatch job")
	// ErrQueueUnavailable is returned by the task queue on transport or auth errors.
	ErrQueueUnavailable = errors.New("task queue unavailable")
	// ErrBadRequest is returned for malformed worker callback payloads.
	ErrBadRequest = errors.New("malformed request")
	// ErrExecutionFailed marks a scan that returned an error or panicked.
	ErrExecutionFailed = errors.New("scan execution failed")

	ErrJobNotFound        = errors.New("job not found")
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrWorkspaceNotFound  = errors.New("workspace not found")
)
