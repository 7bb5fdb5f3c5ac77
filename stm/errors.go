package stm

import "errors"

// Sentinel errors for typed handling on the caller side.
var (
	// ErrAborted is the Abort signal: a cooperative, recoverable
	// signal telling the caller a transaction did not commit. It is the
	// only error Store, Load and End ever return for conflict-related
	// reasons. By the time it is returned, the transaction's resources
	// have already been released.
	ErrAborted = errors.New("stm: transaction aborted, retry")

	// ErrInvalidConfiguration is returned by NewTransactionManager when the
	// requested versioning/detection combination is inconsistent.
	ErrInvalidConfiguration = errors.New("stm: eager versioning cannot be combined with optimistic conflict detection")

	// ErrAlreadyCommitting is the usage error raised when End is called a
	// second time on a transaction that is already in COMMITTING state.
	ErrAlreadyCommitting = errors.New("stm: transaction is already committing")
)
