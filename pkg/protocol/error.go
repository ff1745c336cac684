package protocol

import (
	"context"
	"errors"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by a request that the device might
	// have received. For example, a write that timed out may still have reached the dongle.
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition. BLE
	// dongles regularly drop notifications or miss a write while the link is congested, so a
	// retry is worthwhile for these.
	Temporary() bool
}

var (
	// ErrConnection indicates every attempt to open the link to the device failed.
	ErrConnection = NewError("could not connect to device", false, true)
	// ErrNotConnected indicates an operation was attempted on a link that is not open.
	ErrNotConnected = NewError("device not connected", false, false)
	// ErrWrite indicates a request could not be written to the device.
	ErrWrite = NewError("failed to write to device", true, true)
	// ErrReadTimeout indicates the expected bytes did not arrive before the read deadline.
	ErrReadTimeout = NewError("timed out waiting for device response", true, true)
	// ErrProtocol indicates the device sent a response that could not be decoded.
	ErrProtocol = NewError("malformed device response", true, false)
	// ErrUpdateFailed indicates a full fetch cycle failed. Returned by session.Session.Fetch when
	// the link could not be opened, and by poller.Scheduler.Update when caching is disabled.
	ErrUpdateFailed = NewError("update failed", false, true)
)

type CommandError struct {
	Err               error
	PossibleSuccess   bool
	PossibleTemporary bool
}

func NewError(message string, mayHaveSucceeded bool, temporary bool) error {
	return &CommandError{Err: errors.New(message), PossibleSuccess: mayHaveSucceeded, PossibleTemporary: temporary}
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) MayHaveSucceeded() bool {
	return e.PossibleSuccess
}

func (e *CommandError) Temporary() bool {
	return e.PossibleTemporary
}

// MayHaveSucceeded returns true if err wraps an Error that indicates the request may have been
// received by the device.
func MayHaveSucceeded(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.MayHaveSucceeded() {
		return true
	}
	return false
}

// Temporary returns true if err wraps an Error that indicates the request failed due to possibly
// transient conditions.
func Temporary(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.Temporary() {
		return true
	}
	return false
}

// Kind is the outcome category of a failed operation. Loops switch on the Kind to decide whether
// to retry, skip to the next item, or abort.
type Kind int

const (
	KindNone Kind = iota
	KindConnection
	KindNotConnected
	KindWrite
	KindReadTimeout
	KindProtocol
	KindUpdateFailed
	KindCanceled
	KindUnknown
)

var kindNames = map[Kind]string{
	KindNone:         "none",
	KindConnection:   "connection",
	KindNotConnected: "not-connected",
	KindWrite:        "write",
	KindReadTimeout:  "read-timeout",
	KindProtocol:     "protocol",
	KindUpdateFailed: "update-failed",
	KindCanceled:     "canceled",
	KindUnknown:      "unknown",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Classify maps err onto a Kind. The most specific category wins, so a write that failed because
// the link was closed is KindNotConnected rather than KindWrite.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUpdateFailed):
		return KindUpdateFailed
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrWrite):
		return KindWrite
	case errors.Is(err, ErrReadTimeout):
		return KindReadTimeout
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindUnknown
}

// ShouldRetry returns true if a read-only query that failed with err is worth sending again.
func ShouldRetry(err error) bool {
	switch Classify(err) {
	case KindWrite, KindReadTimeout:
		return true
	}
	return false
}
