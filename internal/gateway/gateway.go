// Package gateway wraps the external payment processor behind a small
// interface. Adapters are thin: they authorize, capture, refund, transfer
// and reverse, nothing else. Ledger writes stay with the escrow state
// machine so a gateway success is always paired with a ledger entry in the
// same logical step.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeclined is a hard decline from the processor. Not retryable.
	ErrDeclined = errors.New("payment declined by processor")
	// ErrOutcomeUnknown means the call may or may not have gone through
	// (timeout after retries). The caller must reconcile against the
	// processor before assuming either way.
	ErrOutcomeUnknown = errors.New("gateway outcome unknown")
	// ErrHoldNotFound is returned when the referenced hold does not exist
	// at the processor.
	ErrHoldNotFound = errors.New("hold not found at gateway")
)

// Hold states as reported by the processor, used during reconciliation.
const (
	HoldStateAuthorized = "authorized"
	HoldStateCaptured   = "captured"
	HoldStateCanceled   = "canceled"
	HoldStateUnknown    = "unknown"
)

type AuthorizeRequest struct {
	CustomerRef      string
	PaymentMethodRef string
	AmountCents      int64
	Metadata         map[string]string
	IdempotencyKey   string
}

type Authorization struct {
	HoldRef     string
	AmountCents int64
}

type Charge struct {
	ChargeRef   string
	HoldRef     string
	AmountCents int64
}

type Refund struct {
	RefundRef   string
	AmountCents int64
}

type Transfer struct {
	TransferRef string
	AmountCents int64
}

type Reversal struct {
	ReversalRef string
	AmountCents int64
}

// HoldState is the processor's view of a hold, fetched when a local record
// and the processor may disagree.
type HoldState struct {
	HoldRef       string
	ChargeRef     string
	Status        string
	CapturedCents int64
}

// Gateway is the closed set of money primitives the escrow engine uses.
// Every mutating call takes an idempotency key; adapters must pass it
// through unchanged on retry so the processor never performs the same
// operation twice.
type Gateway interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Capture(ctx context.Context, holdRef string, amountCents int64, idempotencyKey string) (*Charge, error)
	Cancel(ctx context.Context, holdRef string) error
	Refund(ctx context.Context, chargeRef string, amountCents int64, idempotencyKey string) (*Refund, error)
	Transfer(ctx context.Context, chargeRef, destinationRef string, amountCents int64, idempotencyKey string) (*Transfer, error)
	ReverseTransfer(ctx context.Context, transferRef string, amountCents int64, idempotencyKey string) (*Reversal, error)
	RetrieveHold(ctx context.Context, holdRef string) (*HoldState, error)
}

type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks an error as retryable with the same idempotency key.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
)

// withRetry runs fn up to maxAttempts times, backing off between transient
// failures. The operation must carry the same idempotency key on every
// attempt. After the budget is exhausted the error degrades to
// ErrOutcomeUnknown because the last attempt may have succeeded server-side.
func withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ErrOutcomeUnknown)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s after %d attempts: %w: %v", op, maxAttempts, ErrOutcomeUnknown, err)
}
