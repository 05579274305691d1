package session

import "errors"

var (
	// ErrNotRunning is returned by control calls made outside the running state.
	ErrNotRunning = errors.New("session is not running")

	// ErrUnknownTool marks a call to a name absent from the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments marks a call whose arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrConfirmationTimeout marks a confirmation nobody answered in time.
	ErrConfirmationTimeout = errors.New("confirmation timed out")

	// ErrTransportClosed marks the end of the duplex channel.
	ErrTransportClosed = errors.New("transport closed")

	// ErrDeviceUnavailable wraps device open failures (missing hardware, denied permission).
	ErrDeviceUnavailable = errors.New("device unavailable")
)
