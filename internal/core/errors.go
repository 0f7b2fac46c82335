package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// RinaError wraps domain-specific errors with a kind tag. Raw platform and
// runtime errors are wrapped into the taxonomy at the adapter boundary;
// everything downstream tests kinds, never message text.
type RinaError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

type ErrorKind int

const (
	// ErrKindTransientNetwork covers connection timeouts, resets and similar
	// failures worth retrying with backoff.
	ErrKindTransientNetwork ErrorKind = iota
	// ErrKindSessionResume marks a fatal failure to resume a prior agent
	// session (process spawn or crash). Recovered by falling back to a
	// fresh session.
	ErrKindSessionResume
	// ErrKindAttachment marks an unreadable or oversized attachment.
	// Recovered by skipping the attachment.
	ErrKindAttachment
	ErrKindDatabase
	ErrKindConfig
)

func (e *RinaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RinaError) Unwrap() error { return e.Cause }

// IsTransient reports whether err is classified as a transient network
// failure anywhere in its chain.
func IsTransient(err error) bool {
	var re *RinaError
	return errors.As(err, &re) && re.Kind == ErrKindTransientNetwork
}

// IsResumeFatal reports whether err is classified as a fatal session-resume
// failure anywhere in its chain.
func IsResumeFatal(err error) bool {
	var re *RinaError
	return errors.As(err, &re) && re.Kind == ErrKindSessionResume
}

// WrapNetwork classifies a raw error from a platform call. Errors carrying a
// recognized transient-network signature are wrapped as ErrKindTransientNetwork;
// anything else passes through unchanged. Call this exactly where the platform
// SDK is invoked.
func WrapNetwork(err error) error {
	if err == nil {
		return nil
	}
	if !hasTransientSignature(err) {
		return err
	}
	return &RinaError{Kind: ErrKindTransientNetwork, Message: "transient network failure", Cause: err}
}

func hasTransientSignature(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "network error") ||
		strings.Contains(msg, "temporary failure")
}

func NewResumeError(msg string, cause error) error {
	return &RinaError{Kind: ErrKindSessionResume, Message: msg, Cause: cause}
}

func NewAttachmentError(msg string, cause error) error {
	return &RinaError{Kind: ErrKindAttachment, Message: msg, Cause: cause}
}

func NewConfigError(msg string) error {
	return &RinaError{Kind: ErrKindConfig, Message: msg}
}

func WrapDBError(err error) error {
	return &RinaError{Kind: ErrKindDatabase, Message: "database error", Cause: err}
}
