package timesource

// JumpDispatcher receives jump notifications from a backend. The backend
// calls it once with beforeJump=true for every jump, then again with
// beforeJump=false if the jump crossed the threshold it was armed with.
// Implementations must be comparable; a backend keys its table on them.
type JumpDispatcher interface {
	DispatchJump(jump TimeJump, beforeJump bool)
}

// Backend is the raw time source a clock handle wraps.
//
// Reads and queries must be safe for concurrent use. Dispatch runs on
// whichever goroutine produces the jump.
type Backend interface {
	// Init prepares the backend to serve the given source type.
	Init(src SourceType) error

	// Finalize releases the backend. Safe to call multiple times.
	Finalize() error

	// Valid reports whether the backend is initialized and not finalized.
	Valid() bool

	// Type returns the source type passed to Init.
	Type() SourceType

	// ReadNow returns the current time in nanoseconds.
	ReadNow() (int64, error)

	// OverrideEnabled reports whether an override currently drives the source.
	OverrideEnabled() (bool, error)

	// ArmJumpDispatch starts delivering jumps crossing th to d.
	ArmJumpDispatch(th JumpThreshold, d JumpDispatcher) error

	// DisarmJumpDispatch stops delivering jumps to d. Jumps that begin
	// after it returns never reach d; a jump already being delivered on
	// another goroutine may still make one call.
	DisarmJumpDispatch(d JumpDispatcher) error
}

// Factory builds an uninitialized backend.
type Factory func() Backend

// DefaultFactory returns the in-process Source.
func DefaultFactory() Backend {
	return New()
}
