package gateway

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/paymentintent"
	"github.com/stripe/stripe-go/v72/refund"
	"github.com/stripe/stripe-go/v72/reversal"
	"github.com/stripe/stripe-go/v72/transfer"
)

// StripeGateway drives Stripe PaymentIntents in manual-capture mode. A hold
// is an uncaptured PaymentIntent; capture converts it into a charge; provider
// payouts ride on Transfers sourced from that charge.
type StripeGateway struct{}

func NewStripeGateway(secretKey string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is not configured")
	}
	stripe.Key = secretKey
	return &StripeGateway{}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Customer:      stripe.String(req.CustomerRef),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	var pi *stripe.PaymentIntent
	err := withRetry(ctx, "authorize", func() error {
		var callErr error
		pi, callErr = paymentintent.New(params)
		return classify(callErr)
	})
	if err != nil {
		return nil, err
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		return nil, fmt.Errorf("%w: intent %s in status %s", ErrDeclined, pi.ID, pi.Status)
	}
	return &Authorization{HoldRef: pi.ID, AmountCents: pi.Amount}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, holdRef string, amountCents int64, idempotencyKey string) (*Charge, error) {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(amountCents),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	var pi *stripe.PaymentIntent
	err := withRetry(ctx, "capture", func() error {
		var callErr error
		pi, callErr = paymentintent.Capture(holdRef, params)
		return classify(callErr)
	})
	if err != nil {
		return nil, err
	}
	chargeRef := ""
	if pi.Charges != nil && len(pi.Charges.Data) > 0 {
		chargeRef = pi.Charges.Data[0].ID
	}
	if chargeRef == "" {
		return nil, fmt.Errorf("capture of %s returned no charge: %w", holdRef, ErrOutcomeUnknown)
	}
	return &Charge{ChargeRef: chargeRef, HoldRef: holdRef, AmountCents: amountCents}, nil
}

func (g *StripeGateway) Cancel(ctx context.Context, holdRef string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	return withRetry(ctx, "cancel", func() error {
		_, callErr := paymentintent.Cancel(holdRef, params)
		return classify(callErr)
	})
}

func (g *StripeGateway) Refund(ctx context.Context, chargeRef string, amountCents int64, idempotencyKey string) (*Refund, error) {
	params := &stripe.RefundParams{
		Charge: stripe.String(chargeRef),
		Amount: stripe.Int64(amountCents),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	var ref *stripe.Refund
	err := withRetry(ctx, "refund", func() error {
		var callErr error
		ref, callErr = refund.New(params)
		return classify(callErr)
	})
	if err != nil {
		return nil, err
	}
	return &Refund{RefundRef: ref.ID, AmountCents: ref.Amount}, nil
}

func (g *StripeGateway) Transfer(ctx context.Context, chargeRef, destinationRef string, amountCents int64, idempotencyKey string) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:            stripe.Int64(amountCents),
		Currency:          stripe.String(string(stripe.CurrencyUSD)),
		Destination:       stripe.String(destinationRef),
		SourceTransaction: stripe.String(chargeRef),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	var tr *stripe.Transfer
	err := withRetry(ctx, "transfer", func() error {
		var callErr error
		tr, callErr = transfer.New(params)
		return classify(callErr)
	})
	if err != nil {
		return nil, err
	}
	return &Transfer{TransferRef: tr.ID, AmountCents: tr.Amount}, nil
}

func (g *StripeGateway) ReverseTransfer(ctx context.Context, transferRef string, amountCents int64, idempotencyKey string) (*Reversal, error) {
	params := &stripe.ReversalParams{
		Transfer: stripe.String(transferRef),
	}
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	var rev *stripe.Reversal
	err := withRetry(ctx, "reverse transfer", func() error {
		var callErr error
		rev, callErr = reversal.New(params)
		return classify(callErr)
	})
	if err != nil {
		return nil, err
	}
	return &Reversal{ReversalRef: rev.ID, AmountCents: rev.Amount}, nil
}

func (g *StripeGateway) RetrieveHold(ctx context.Context, holdRef string) (*HoldState, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	var pi *stripe.PaymentIntent
	err := withRetry(ctx, "retrieve hold", func() error {
		var callErr error
		pi, callErr = paymentintent.Get(holdRef, params)
		return classify(callErr)
	})
	if err != nil {
		return nil, err
	}

	state := &HoldState{HoldRef: pi.ID}
	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		state.Status = HoldStateAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		state.Status = HoldStateCaptured
		state.CapturedCents = pi.AmountReceived
		if pi.Charges != nil && len(pi.Charges.Data) > 0 {
			state.ChargeRef = pi.Charges.Data[0].ID
		}
	case stripe.PaymentIntentStatusCanceled:
		state.Status = HoldStateCanceled
	default:
		state.Status = HoldStateUnknown
	}
	return state, nil
}

// classify maps Stripe error types onto the gateway taxonomy: card errors
// are hard declines, connection and rate-limit errors are transient,
// missing resources map to ErrHoldNotFound, everything else surfaces as-is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if stripeErr, ok := err.(*stripe.Error); ok {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard:
			return fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
		case stripe.ErrorTypeAPIConnection, stripe.ErrorTypeRateLimit:
			return Transient(err)
		case stripe.ErrorTypeInvalidRequest:
			if stripeErr.Code == stripe.ErrorCodeResourceMissing {
				return ErrHoldNotFound
			}
			return err
		default:
			return err
		}
	}
	// Plain transport errors (no Stripe response) are retryable.
	return Transient(err)
}
