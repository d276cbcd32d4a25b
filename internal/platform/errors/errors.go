package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrNoActiveSession     = errors.New("no active session")
	ErrActiveSessionExists = errors.New("active session already exists")
	ErrRecoveryPending     = errors.New("recovery scan has not run")

	ErrCapture = errors.New("capture failed")

	ErrQuotaExceeded      = errors.New("persistence quota exceeded")
	ErrStoreExhausted     = errors.New("store exhausted")
	ErrDeliveredImmutable = errors.New("session already delivered")
	ErrNotRecoverable     = errors.New("session has no recoverable payload")

	ErrTransferRejected    = errors.New("transfer rejected")
	ErrTransferTransient   = errors.New("transfer failed transiently")
	ErrDeliveryUnconfirmed = errors.New("delivery not acknowledged")
	ErrGateClosed          = errors.New("delivery gate closed")
)

// TransferError reports a failed transfer attempt together with the HTTP
// status, when one was received.
type TransferError struct {
	Kind   error
	Status int
	Err    error
}

func (e *TransferError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%v: status %d: %v", e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%v: status %d", e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *TransferError) Is(target error) bool { return target == e.Kind }

func (e *TransferError) Unwrap() error { return e.Err }

// Retryable reports whether a failed transfer should be retried under
// backoff. Only a rejection by the endpoint is final.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrTransferRejected)
}
