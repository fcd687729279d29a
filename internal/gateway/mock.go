package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockGateway is an in-memory processor used in development and tests. It
// honors idempotency keys the way a real processor does: replaying a key
// returns the original result without a second effect.
type MockGateway struct {
	mu        sync.Mutex
	holds     map[string]*mockHold
	transfers map[string]*Transfer
	seenKeys  map[string]interface{}

	// nextErrs, when non-empty, is popped on each mutating call. Tests use
	// FailNext to script declines and timeouts.
	nextErrs []error
}

type mockHold struct {
	ref           string
	amountCents   int64
	capturedCents int64
	refundedCents int64
	chargeRef     string
	status        string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		holds:     make(map[string]*mockHold),
		transfers: make(map[string]*Transfer),
		seenKeys:  make(map[string]interface{}),
	}
}

func (g *MockGateway) Name() string { return "mock" }

// FailNext scripts the error returned by the next mutating call.
func (g *MockGateway) FailNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextErrs = append(g.nextErrs, errs...)
}

func (g *MockGateway) popErr() error {
	if len(g.nextErrs) == 0 {
		return nil
	}
	err := g.nextErrs[0]
	g.nextErrs = g.nextErrs[1:]
	return err
}

func (g *MockGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.seenKeys[req.IdempotencyKey]; ok {
		return prev.(*Authorization), nil
	}
	if err := g.popErr(); err != nil {
		return nil, err
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", ErrDeclined)
	}
	hold := &mockHold{
		ref:         "hold_" + uuid.NewString(),
		amountCents: req.AmountCents,
		status:      HoldStateAuthorized,
	}
	g.holds[hold.ref] = hold
	auth := &Authorization{HoldRef: hold.ref, AmountCents: hold.amountCents}
	if req.IdempotencyKey != "" {
		g.seenKeys[req.IdempotencyKey] = auth
	}
	return auth, nil
}

func (g *MockGateway) Capture(ctx context.Context, holdRef string, amountCents int64, idempotencyKey string) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.seenKeys[idempotencyKey]; ok {
		return prev.(*Charge), nil
	}
	if err := g.popErr(); err != nil {
		return nil, err
	}
	hold, ok := g.holds[holdRef]
	if !ok {
		return nil, ErrHoldNotFound
	}
	if hold.status != HoldStateAuthorized {
		return nil, fmt.Errorf("%w: hold %s is %s", ErrDeclined, holdRef, hold.status)
	}
	if amountCents > hold.amountCents {
		return nil, fmt.Errorf("%w: capture %d exceeds authorized %d", ErrDeclined, amountCents, hold.amountCents)
	}
	hold.status = HoldStateCaptured
	hold.capturedCents = amountCents
	hold.chargeRef = "ch_" + uuid.NewString()
	charge := &Charge{ChargeRef: hold.chargeRef, HoldRef: holdRef, AmountCents: amountCents}
	if idempotencyKey != "" {
		g.seenKeys[idempotencyKey] = charge
	}
	return charge, nil
}

func (g *MockGateway) Cancel(ctx context.Context, holdRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.popErr(); err != nil {
		return err
	}
	hold, ok := g.holds[holdRef]
	if !ok {
		return ErrHoldNotFound
	}
	if hold.status == HoldStateCaptured {
		return fmt.Errorf("%w: hold %s already captured", ErrDeclined, holdRef)
	}
	hold.status = HoldStateCanceled
	return nil
}

func (g *MockGateway) Refund(ctx context.Context, chargeRef string, amountCents int64, idempotencyKey string) (*Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.seenKeys[idempotencyKey]; ok {
		return prev.(*Refund), nil
	}
	if err := g.popErr(); err != nil {
		return nil, err
	}
	for _, hold := range g.holds {
		if hold.chargeRef == chargeRef {
			if hold.refundedCents+amountCents > hold.capturedCents {
				return nil, fmt.Errorf("%w: refund exceeds captured amount", ErrDeclined)
			}
			hold.refundedCents += amountCents
			ref := &Refund{RefundRef: "re_" + uuid.NewString(), AmountCents: amountCents}
			if idempotencyKey != "" {
				g.seenKeys[idempotencyKey] = ref
			}
			return ref, nil
		}
	}
	return nil, ErrHoldNotFound
}

func (g *MockGateway) Transfer(ctx context.Context, chargeRef, destinationRef string, amountCents int64, idempotencyKey string) (*Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.seenKeys[idempotencyKey]; ok {
		return prev.(*Transfer), nil
	}
	if err := g.popErr(); err != nil {
		return nil, err
	}
	tr := &Transfer{TransferRef: "tr_" + uuid.NewString(), AmountCents: amountCents}
	g.transfers[tr.TransferRef] = tr
	if idempotencyKey != "" {
		g.seenKeys[idempotencyKey] = tr
	}
	return tr, nil
}

func (g *MockGateway) ReverseTransfer(ctx context.Context, transferRef string, amountCents int64, idempotencyKey string) (*Reversal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.seenKeys[idempotencyKey]; ok {
		return prev.(*Reversal), nil
	}
	if err := g.popErr(); err != nil {
		return nil, err
	}
	tr, ok := g.transfers[transferRef]
	if !ok {
		return nil, ErrHoldNotFound
	}
	amount := amountCents
	if amount <= 0 {
		amount = tr.AmountCents
	}
	rev := &Reversal{ReversalRef: "trr_" + uuid.NewString(), AmountCents: amount}
	if idempotencyKey != "" {
		g.seenKeys[idempotencyKey] = rev
	}
	return rev, nil
}

func (g *MockGateway) RetrieveHold(ctx context.Context, holdRef string) (*HoldState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	hold, ok := g.holds[holdRef]
	if !ok {
		return nil, ErrHoldNotFound
	}
	return &HoldState{
		HoldRef:       hold.ref,
		ChargeRef:     hold.chargeRef,
		Status:        hold.status,
		CapturedCents: hold.capturedCents,
	}, nil
}
