package sdoclient

import "errors"

// Sentinel errors for programmer/lifecycle mistakes, returned
// synchronously by Start/Stop/Destroy. Protocol-level failures are never
// returned this way; they surface as AbortCode on the Transaction after
// the completion callback fires.
var (
	ErrAlreadyRunning = errors.New("sdoclient: transaction already running")
	ErrNotRunning     = errors.New("sdoclient: transaction not running")
	// ErrOutOfMemory is returned by the payload buffer when growing it
	// would exceed maxBufferSize; the transaction converts it into a
	// local AbortOutOfMem rather than returning it to the caller.
	ErrOutOfMemory = errors.New("sdoclient: buffer reserve failed")
)
