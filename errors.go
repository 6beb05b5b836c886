package grove

import "errors"

var (
	// ErrRegistrationAfterStart is returned when Register is called after
	// [Orchestrator.Start]. The error message names the offending provider.
	ErrRegistrationAfterStart = errors.New("registration after start")

	// ErrProviderNotFound is returned when no provider is registered for the
	// requested type.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrNilProvider is returned when a nil instance is registered.
	ErrNilProvider = errors.New("provider is nil")

	// ErrInitFailed is returned by Start when a provider's Init returned an
	// error or panicked. The remaining init units are cancelled.
	ErrInitFailed = errors.New("provider init failed")

	// ErrInitTimeout is returned by Start when the init barrier does not
	// close within the configured init timeout.
	ErrInitTimeout = errors.New("init barrier timed out")

	// ErrNotStarted is returned when Shutdown is called before Start.
	ErrNotStarted = errors.New("orchestrator not started")

	// ErrAlreadyShutdown is returned when Shutdown is called more than once.
	ErrAlreadyShutdown = errors.New("orchestrator already shut down")
)
