package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation/configuration errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeMissingParameter     ErrorCode = 102
	ErrCodeInvalidBackendURL    ErrorCode = 103
	ErrCodeInvalidInterval      ErrorCode = 104

	// Transport errors (200-299)
	ErrCodeDialFailed       ErrorCode = 200
	ErrCodeReadFailed       ErrorCode = 201
	ErrCodeWriteFailed      ErrorCode = 202
	ErrCodePeerClosed       ErrorCode = 203
	ErrCodeHeartbeatTimeout ErrorCode = 204

	// Decode errors (300-399)
	ErrCodeFrameMalformed ErrorCode = 300
	ErrCodeUnknownShape   ErrorCode = 301
	ErrCodeSchemaMismatch ErrorCode = 302
	ErrCodeEncodeFailed   ErrorCode = 303

	// Channel/queue errors (400-499)
	ErrCodeQueueOverflow  ErrorCode = 400
	ErrCodeCommandDropped ErrorCode = 401

	// Station lifecycle errors (500-599)
	ErrCodeStationInitFailed  ErrorCode = 500
	ErrCodeStationNotRunning  ErrorCode = 501
	ErrCodeShutdownRequested  ErrorCode = 502
	ErrCodeAlreadyRunning     ErrorCode = 503
	ErrCodeSubscriptionFailed ErrorCode = 504

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)
