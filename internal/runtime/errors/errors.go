package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrProcessorRequired    = sterrors.New("procflow: processor is required")
	ErrNilProcessor         = sterrors.New("procflow: processor must not be a nil pointer")
	ErrUnknownProcessorType = sterrors.New("procflow: processor type is not registered")
	ErrShimRequired         = sterrors.New("procflow: adapter shim is required")
	ErrSinkRequired         = sterrors.New("procflow: output sink is required")
	ErrPublisherRequired    = sterrors.New("procflow: publisher is required")
	ErrSubscriberRequired   = sterrors.New("procflow: subscriber is required")
	ErrTopicRequired        = sterrors.New("procflow: topic is required")
	ErrConfigRequired       = sterrors.New("procflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("procflow: logger is required")
	ErrSideInputNotFound    = sterrors.New("procflow: side input not found")
	ErrEnvelopeInvalid      = sterrors.New("procflow: serialized processor envelope is invalid")
	ErrWindowRequired       = sterrors.New("procflow: engine supplied no window to a windowed processor")
	ErrRunnerClosed         = sterrors.New("procflow: runner is closed")
	ErrServiceRequired      = sterrors.New("procflow: service is required")
	ErrConsumeQueueRequired = sterrors.New("procflow: consume queue is required")
	ErrElementRequired      = sterrors.New("procflow: element value is required")
	ErrSetupFailed          = sterrors.New("procflow: processor setup failed")
)

// SignatureError reports a processor type whose declared parameters fall
// outside the supported vocabulary or combination rules. It is raised once per
// type at resolution time.
type SignatureError struct {
	ProcessorType string
	Method        string
	Reason        string
	Err           error
}

func (e *SignatureError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if e.Method == "" {
		return fmt.Sprintf("procflow: invalid processor signature for %s: %s", e.ProcessorType, reason)
	}
	return fmt.Sprintf("procflow: invalid processor signature for %s.%s: %s", e.ProcessorType, e.Method, reason)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// CapabilityError signals that a capability was requested in a phase where it
// is not available. Reaching it means the adapter was wired incorrectly.
type CapabilityError struct {
	Capability string
	Phase      string
	Reason     string
}

func (e *CapabilityError) Error() string {
	msg := fmt.Sprintf("procflow: capability %q is not available during %s", e.Capability, e.Phase)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// PhaseError tags a failure raised by user code with the lifecycle phase that
// was active. The wrapped error is returned unchanged by Unwrap.
type PhaseError struct {
	Phase     string
	Processor string
	Err       error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("procflow: %s failed in %s: %v", e.Processor, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// LifecycleError reports a call that violates the setup, bundle, teardown
// ordering.
type LifecycleError struct {
	From string
	To   string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("procflow: invalid lifecycle transition from %s to %s", e.From, e.To)
}

// ConfigValidationError wraps configuration validation failures.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "procflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// IsSignatureError reports whether err carries a SignatureError.
func IsSignatureError(err error) bool {
	var target *SignatureError
	return sterrors.As(err, &target)
}

// IsCapabilityError reports whether err carries a CapabilityError.
func IsCapabilityError(err error) bool {
	var target *CapabilityError
	return sterrors.As(err, &target)
}
