package escrow

import (
	"context"
	"testing"
	"time"

	"casa/internal/config"
	apperrors "casa/internal/errors"
	"casa/internal/gateway"
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// --- mocks -----------------------------------------------------------------

type MockEstimateRepo struct{ mock.Mock }

func (m *MockEstimateRepo) Create(e *models.Estimate) error {
	return m.Called(e).Error(0)
}
func (m *MockEstimateRepo) FindByID(id uint) (*models.Estimate, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Estimate), args.Error(1)
}
func (m *MockEstimateRepo) TransitionStatus(id uint, from, to string) (bool, error) {
	args := m.Called(id, from, to)
	return args.Bool(0), args.Error(1)
}
func (m *MockEstimateRepo) MarkApproved(id uint, from string, at time.Time) (bool, error) {
	args := m.Called(id, from, at)
	return args.Bool(0), args.Error(1)
}
func (m *MockEstimateRepo) ListExpirable(before time.Time, limit int) ([]models.Estimate, error) {
	args := m.Called(before, limit)
	return args.Get(0).([]models.Estimate), args.Error(1)
}

type MockHoldRepo struct{ mock.Mock }

func (m *MockHoldRepo) Create(h *models.PaymentHold) error {
	return m.Called(h).Error(0)
}
func (m *MockHoldRepo) FindByEstimateID(estimateID uint) (*models.PaymentHold, error) {
	args := m.Called(estimateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentHold), args.Error(1)
}
func (m *MockHoldRepo) TransitionStatus(id uint, from, to string) (bool, error) {
	args := m.Called(id, from, to)
	return args.Bool(0), args.Error(1)
}

type MockInvoiceRepo struct{ mock.Mock }

func (m *MockInvoiceRepo) Create(i *models.Invoice) error {
	return m.Called(i).Error(0)
}
func (m *MockInvoiceRepo) FindByID(id uint) (*models.Invoice, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}
func (m *MockInvoiceRepo) TransitionStatus(id uint, from, to string) (bool, error) {
	args := m.Called(id, from, to)
	return args.Bool(0), args.Error(1)
}
func (m *MockInvoiceRepo) MarkCaptured(id uint, from, to string, upd repositories.CaptureUpdate) (bool, error) {
	args := m.Called(id, from, to, upd)
	return args.Bool(0), args.Error(1)
}
func (m *MockInvoiceRepo) SetNeedsReconciliation(id uint, flag bool) error {
	return m.Called(id, flag).Error(0)
}
func (m *MockInvoiceRepo) ClaimTransferRef(id uint, ref string) (bool, error) {
	args := m.Called(id, ref)
	return args.Bool(0), args.Error(1)
}
func (m *MockInvoiceRepo) ListAutoApprovable(before time.Time, limit int) ([]models.Invoice, error) {
	args := m.Called(before, limit)
	return args.Get(0).([]models.Invoice), args.Error(1)
}
func (m *MockInvoiceRepo) ListNeedingReconciliation(limit int) ([]models.Invoice, error) {
	args := m.Called(limit)
	return args.Get(0).([]models.Invoice), args.Error(1)
}
func (m *MockInvoiceRepo) ListPayable(limit int) ([]models.Invoice, error) {
	args := m.Called(limit)
	return args.Get(0).([]models.Invoice), args.Error(1)
}

type MockDisputeRepo struct{ mock.Mock }

func (m *MockDisputeRepo) Create(d *models.Dispute) error {
	return m.Called(d).Error(0)
}
func (m *MockDisputeRepo) FindByID(id uint) (*models.Dispute, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}
func (m *MockDisputeRepo) FindByInvoiceID(invoiceID uint) ([]models.Dispute, error) {
	args := m.Called(invoiceID)
	return args.Get(0).([]models.Dispute), args.Error(1)
}
func (m *MockDisputeRepo) ExistsOpenByInvoiceID(invoiceID uint) (bool, error) {
	args := m.Called(invoiceID)
	return args.Bool(0), args.Error(1)
}
func (m *MockDisputeRepo) Resolve(id uint, resolution string, refundCents int64, notes string, resolvedBy uint, at time.Time) (bool, error) {
	args := m.Called(id, resolution, refundCents, notes, resolvedBy, at)
	return args.Bool(0), args.Error(1)
}
func (m *MockDisputeRepo) AttachAdvisory(id uint, advisory models.JSON) error {
	return m.Called(id, advisory).Error(0)
}

type MockProfileRepo struct{ mock.Mock }

func (m *MockProfileRepo) FindByUserID(userID uint) (*models.PaymentProfile, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentProfile), args.Error(1)
}
func (m *MockProfileRepo) Upsert(p *models.PaymentProfile) error {
	return m.Called(p).Error(0)
}

type MockLedger struct{ mock.Mock }

func (m *MockLedger) Record(ctx context.Context, e ledger.Entry) (*models.LedgerEntry, error) {
	args := m.Called(ctx, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}
func (m *MockLedger) History(ctx context.Context, invoiceID uint) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

type staticFeeSource struct{ cfg config.FeeConfig }

func (s staticFeeSource) Load(ctx context.Context) (config.FeeConfig, error) { return s.cfg, nil }
func (s staticFeeSource) Publish(ctx context.Context, cfg config.FeeConfig) error {
	return nil
}

// --- fixture ---------------------------------------------------------------

func testFeeConfig() config.FeeConfig {
	return config.FeeConfig{
		Version:                    1,
		PlatformFeePercentage:      3.0,
		PlatformFeeMinimumCents:    200,
		ProviderFeePercentage:      8.0,
		ProviderFeeMinimumCents:    500,
		EstimateBufferPercentage:   10.0,
		InstantPayoutFeePercentage: 1.0,
		AutoApproveHours:           72,
		DisputeWindowHours:         48,
	}
}

type fixture struct {
	svc       *service
	estimates *MockEstimateRepo
	holds     *MockHoldRepo
	invoices  *MockInvoiceRepo
	disputes  *MockDisputeRepo
	profiles  *MockProfileRepo
	ledger    *MockLedger
	gw        *gateway.MockGateway
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		estimates: new(MockEstimateRepo),
		holds:     new(MockHoldRepo),
		invoices:  new(MockInvoiceRepo),
		disputes:  new(MockDisputeRepo),
		profiles:  new(MockProfileRepo),
		ledger:    new(MockLedger),
		gw:        gateway.NewMockGateway(),
		now:       time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Config{
		Estimates: f.estimates,
		Holds:     f.holds,
		Invoices:  f.invoices,
		Disputes:  f.disputes,
		Profiles:  f.profiles,
		Ledger:    f.ledger,
		Gateway:   f.gw,
		FeeSource: staticFeeSource{cfg: testFeeConfig()},
	}).(*service)
	f.svc.now = func() time.Time { return f.now }
	return f
}

// authorizedHold places a real hold on the mock gateway and returns a local
// record pointing at it.
func (f *fixture) authorizedHold(t *testing.T, estimateID uint, amountCents int64) *models.PaymentHold {
	t.Helper()
	authz, err := f.gw.Authorize(context.Background(), gateway.AuthorizeRequest{
		CustomerRef:      "cus_test",
		PaymentMethodRef: "pm_test",
		AmountCents:      amountCents,
		IdempotencyKey:   "test-auth",
	})
	require.NoError(t, err)
	return &models.PaymentHold{
		ID:                    1,
		EstimateID:            estimateID,
		PaymentIntentRef:      authz.HoldRef,
		AuthorizedAmountCents: amountCents,
		Status:                models.HoldStatusAuthorized,
	}
}

func pendingInvoice(f *fixture) *models.Invoice {
	return &models.Invoice{
		ID:         7,
		EstimateID: 3,
		ProviderID: 11,
		CustomerID: 9,
		TotalCents: 52500,
		Status:     models.InvoiceStatusPendingApproval,
		CreatedAt:  f.now.Add(-2 * time.Hour),
	}
}

// --- CreateHold ------------------------------------------------------------

func TestCreateHold(t *testing.T) {
	ctx := context.Background()

	t.Run("authorizes the buffered total plus the platform fee", func(t *testing.T) {
		f := newFixture(t)
		f.estimates.On("FindByID", uint(3)).Return(&models.Estimate{
			ID: 3, ServiceRequestID: 5, ProviderID: 11, CustomerID: 9,
			TotalCents: 50000, Status: models.EstimateStatusApproved,
		}, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(nil, gorm.ErrRecordNotFound)
		f.profiles.On("FindByUserID", uint(9)).Return(&models.PaymentProfile{
			UserID: 9, CustomerRef: "cus_9", DefaultPaymentMethodRef: "pm_9",
		}, nil)
		f.holds.On("Create", mock.AnythingOfType("*models.PaymentHold")).Return(nil)

		hold, err := f.svc.CreateHold(ctx, 3)
		require.NoError(t, err)

		// 50000 + 10% buffer (5000) + 3% fee on 55000 (1650) = 56650.
		assert.Equal(t, int64(56650), hold.AuthorizedAmountCents)
		assert.Equal(t, int64(50000), hold.OriginalAmountCents)
		assert.Equal(t, int64(5000), hold.BufferAmountCents)
		assert.Equal(t, int64(1650), hold.MaxPlatformFeeCents)
		assert.Equal(t, 1, hold.FeeConfigVersion)
		assert.Equal(t, models.HoldStatusAuthorized, hold.Status)
		assert.NotEmpty(t, hold.PaymentIntentRef)
	})

	t.Run("returns the existing hold on a repeat call", func(t *testing.T) {
		f := newFixture(t)
		existing := &models.PaymentHold{ID: 4, EstimateID: 3, Status: models.HoldStatusAuthorized}
		f.estimates.On("FindByID", uint(3)).Return(&models.Estimate{
			ID: 3, CustomerID: 9, TotalCents: 50000, Status: models.EstimateStatusApproved,
		}, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(existing, nil)

		hold, err := f.svc.CreateHold(ctx, 3)
		require.NoError(t, err)
		assert.Same(t, existing, hold)
		f.holds.AssertNotCalled(t, "Create", mock.Anything)
	})

	t.Run("rejects an unapproved estimate", func(t *testing.T) {
		f := newFixture(t)
		f.estimates.On("FindByID", uint(3)).Return(&models.Estimate{
			ID: 3, TotalCents: 50000, Status: models.EstimateStatusSent,
		}, nil)

		_, err := f.svc.CreateHold(ctx, 3)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("declined authorization surfaces as a gateway error", func(t *testing.T) {
		f := newFixture(t)
		f.estimates.On("FindByID", uint(3)).Return(&models.Estimate{
			ID: 3, CustomerID: 9, TotalCents: 50000, Status: models.EstimateStatusApproved,
		}, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(nil, gorm.ErrRecordNotFound)
		f.profiles.On("FindByUserID", uint(9)).Return(&models.PaymentProfile{
			UserID: 9, CustomerRef: "cus_9", DefaultPaymentMethodRef: "pm_9",
		}, nil)
		f.gw.FailNext(gateway.ErrDeclined)

		_, err := f.svc.CreateHold(ctx, 3)
		assert.ErrorIs(t, err, apperrors.ErrGateway)
		f.holds.AssertNotCalled(t, "Create", mock.Anything)
	})
}

// --- CaptureInvoice --------------------------------------------------------

func TestCaptureInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("captures the three-way split within the authorization", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.ledger.On("Record", mock.Anything, mock.MatchedBy(func(e ledger.Entry) bool {
			return e.Operation == models.LedgerOpCapture && e.AmountCents == 54075 && e.Actor == "customer:9"
		})).Return(&models.LedgerEntry{ID: "le_1"}, nil)
		f.invoices.On("MarkCaptured", uint(7), models.InvoiceStatusPendingApproval, models.InvoiceStatusPaid,
			mock.MatchedBy(func(u repositories.CaptureUpdate) bool {
				return u.CapturedAmountCents == 54075 &&
					u.ProviderAmountCents == 48300 &&
					u.ProviderFeeCents == 4200 &&
					u.PlatformFeeCents == 1575 &&
					u.ChargeRef != ""
			})).Return(true, nil)
		f.holds.On("TransitionStatus", uint(1), models.HoldStatusAuthorized, models.HoldStatusCaptured).Return(true, nil)

		res, err := f.svc.CaptureInvoice(ctx, 7, Actor{Kind: ActorCustomer, ID: 9})
		require.NoError(t, err)
		assert.Equal(t, int64(54075), res.TotalCapturedCents)
		assert.Equal(t, int64(48300), res.ProviderAmountCents)
		assert.Equal(t, int64(4200), res.ProviderFeeCents)
		assert.Equal(t, int64(1575), res.HomeownerPlatformFeeCents)
		assert.Equal(t, models.InvoiceStatusPaid, res.Status)
		f.invoices.AssertExpectations(t)
	})

	t.Run("system actor lands the invoice in auto_approved", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.ledger.On("Record", mock.Anything, mock.Anything).Return(&models.LedgerEntry{ID: "le_1"}, nil)
		f.invoices.On("MarkCaptured", uint(7), models.InvoiceStatusPendingApproval, models.InvoiceStatusAutoApproved,
			mock.Anything).Return(true, nil)
		f.holds.On("TransitionStatus", uint(1), models.HoldStatusAuthorized, models.HoldStatusCaptured).Return(true, nil)

		res, err := f.svc.CaptureInvoice(ctx, 7, SystemActor)
		require.NoError(t, err)
		assert.Equal(t, models.InvoiceStatusAutoApproved, res.Status)
	})

	t.Run("already-paid invoice reports duplicate capture", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		invoice.Status = models.InvoiceStatusPaid
		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)

		_, err := f.svc.CaptureInvoice(ctx, 7, Actor{Kind: ActorCustomer, ID: 9})
		assert.ErrorIs(t, err, apperrors.ErrDuplicateCapture)
	})

	t.Run("disputed invoice cannot be captured from outside the resolver", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		invoice.Status = models.InvoiceStatusDisputed
		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)

		_, err := f.svc.CaptureInvoice(ctx, 7, SystemActor)
		assert.ErrorIs(t, err, apperrors.ErrInvoiceDisputed)
	})

	t.Run("losing the conditional update yields duplicate capture and one charge", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.ledger.On("Record", mock.Anything, mock.Anything).Return(&models.LedgerEntry{ID: "le_1"}, nil)
		f.invoices.On("MarkCaptured", uint(7), mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

		_, err := f.svc.CaptureInvoice(ctx, 7, Actor{Kind: ActorCustomer, ID: 9})
		assert.ErrorIs(t, err, apperrors.ErrDuplicateCapture)

		// The gateway saw exactly one capture; a retry with the same key
		// would replay it.
		state, gerr := f.gw.RetrieveHold(ctx, hold.PaymentIntentRef)
		require.NoError(t, gerr)
		assert.Equal(t, gateway.HoldStateCaptured, state.Status)
		assert.Equal(t, int64(54075), state.CapturedCents)
	})

	t.Run("variance above the authorization is a hard stop", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		invoice.TotalCents = 60000 // split total 61800 > authorized 56650
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)

		_, err := f.svc.CaptureInvoice(ctx, 7, Actor{Kind: ActorCustomer, ID: 9})
		assert.ErrorIs(t, err, apperrors.ErrInsufficientAuthorization)

		// Nothing was captured at the gateway.
		state, gerr := f.gw.RetrieveHold(ctx, hold.PaymentIntentRef)
		require.NoError(t, gerr)
		assert.Equal(t, gateway.HoldStateAuthorized, state.Status)
	})

	t.Run("a hard decline leaves the invoice pending", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.gw.FailNext(gateway.ErrDeclined)

		_, err := f.svc.CaptureInvoice(ctx, 7, Actor{Kind: ActorCustomer, ID: 9})
		assert.ErrorIs(t, err, apperrors.ErrGateway)
		f.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
		f.invoices.AssertNotCalled(t, "MarkCaptured", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("an unknown outcome flags the invoice for reconciliation", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.invoices.On("SetNeedsReconciliation", uint(7), true).Return(nil)
		f.gw.FailNext(gateway.ErrOutcomeUnknown)

		_, err := f.svc.CaptureInvoice(ctx, 7, SystemActor)
		assert.ErrorIs(t, err, apperrors.ErrReconciliationRequired)
		f.invoices.AssertCalled(t, "SetNeedsReconciliation", uint(7), true)
	})

	t.Run("a flagged invoice refuses further captures until reconciled", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		invoice.NeedsReconciliation = true
		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)

		_, err := f.svc.CaptureInvoice(ctx, 7, SystemActor)
		assert.ErrorIs(t, err, apperrors.ErrReconciliationRequired)
	})
}

// --- OpenDispute -----------------------------------------------------------

func TestOpenDispute(t *testing.T) {
	ctx := context.Background()

	setup := func(f *fixture, invoiceAge time.Duration) *models.Invoice {
		invoice := pendingInvoice(f)
		invoice.CreatedAt = f.now.Add(-invoiceAge)
		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		return invoice
	}

	t.Run("opens inside the window and wins the race", func(t *testing.T) {
		f := newFixture(t)
		setup(f, 47*time.Hour+59*time.Minute)
		f.disputes.On("ExistsOpenByInvoiceID", uint(7)).Return(false, nil)
		f.invoices.On("TransitionStatus", uint(7), models.InvoiceStatusPendingApproval, models.InvoiceStatusDisputed).
			Return(true, nil)
		f.disputes.On("Create", mock.MatchedBy(func(d *models.Dispute) bool {
			return d.InvoiceID == 7 && d.OpenedByID == 9 && d.Resolution == models.ResolutionPending
		})).Return(nil)

		dispute, err := f.svc.OpenDispute(ctx, 7, 9, "work_incomplete", "tile not grouted")
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionPending, dispute.Resolution)
	})

	t.Run("window boundary is closed", func(t *testing.T) {
		f := newFixture(t)
		setup(f, 48*time.Hour)

		_, err := f.svc.OpenDispute(ctx, 7, 9, "work_incomplete", "")
		assert.ErrorIs(t, err, apperrors.ErrDisputeWindowClosed)
	})

	t.Run("one minute past the window is closed even before the timer ran", func(t *testing.T) {
		f := newFixture(t)
		setup(f, 48*time.Hour+time.Minute)

		_, err := f.svc.OpenDispute(ctx, 7, 9, "work_incomplete", "")
		assert.ErrorIs(t, err, apperrors.ErrDisputeWindowClosed)
	})

	t.Run("losing the race to the timer reports a closed window", func(t *testing.T) {
		f := newFixture(t)
		setup(f, 2*time.Hour)
		f.disputes.On("ExistsOpenByInvoiceID", uint(7)).Return(false, nil)
		f.invoices.On("TransitionStatus", uint(7), models.InvoiceStatusPendingApproval, models.InvoiceStatusDisputed).
			Return(false, nil)

		_, err := f.svc.OpenDispute(ctx, 7, 9, "work_incomplete", "")
		assert.ErrorIs(t, err, apperrors.ErrDisputeWindowClosed)
		f.disputes.AssertNotCalled(t, "Create", mock.Anything)
	})

	t.Run("only the invoice's customer may dispute", func(t *testing.T) {
		f := newFixture(t)
		setup(f, 2*time.Hour)

		_, err := f.svc.OpenDispute(ctx, 7, 999, "work_incomplete", "")
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("requires a reason", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.OpenDispute(ctx, 7, 9, "", "")
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

// --- ResolveDisputed -------------------------------------------------------

func disputedInvoice(f *fixture) *models.Invoice {
	invoice := pendingInvoice(f)
	invoice.Status = models.InvoiceStatusDisputed
	return invoice
}

func TestResolveDisputed(t *testing.T) {
	ctx := context.Background()
	admin := Actor{Kind: ActorAdmin, ID: 1}

	t.Run("customer favor refunds a captured invoice in full", func(t *testing.T) {
		f := newFixture(t)
		invoice := disputedInvoice(f)
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		// Capture happened before the dispute was opened.
		charge, err := f.gw.Capture(ctx, hold.PaymentIntentRef, 54075, "inv:7:capture")
		require.NoError(t, err)
		invoice.ChargeRef = charge.ChargeRef
		invoice.CapturedAmountCents = 54075
		hold.Status = models.HoldStatusCaptured

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.ledger.On("Record", mock.Anything, mock.MatchedBy(func(e ledger.Entry) bool {
			return e.Operation == models.LedgerOpRefund && e.AmountCents == 54075
		})).Return(&models.LedgerEntry{ID: "le_refund"}, nil)
		f.invoices.On("TransitionStatus", uint(7), models.InvoiceStatusDisputed, models.InvoiceStatusRefunded).
			Return(true, nil)

		entry, err := f.svc.ResolveDisputed(ctx, 7, models.ResolutionCustomerFavor, 0, admin)
		require.NoError(t, err)
		assert.Equal(t, "le_refund", entry.ID)
	})

	t.Run("customer favor releases an uncaptured hold", func(t *testing.T) {
		f := newFixture(t)
		invoice := disputedInvoice(f)
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.holds.On("TransitionStatus", uint(1), models.HoldStatusAuthorized, models.HoldStatusCanceled).Return(true, nil)
		f.ledger.On("Record", mock.Anything, mock.MatchedBy(func(e ledger.Entry) bool {
			return e.Operation == models.LedgerOpRefund
		})).Return(&models.LedgerEntry{ID: "le_refund"}, nil)
		f.invoices.On("TransitionStatus", uint(7), models.InvoiceStatusDisputed, models.InvoiceStatusRefunded).
			Return(true, nil)

		_, err := f.svc.ResolveDisputed(ctx, 7, models.ResolutionCustomerFavor, 0, admin)
		require.NoError(t, err)

		state, gerr := f.gw.RetrieveHold(ctx, hold.PaymentIntentRef)
		require.NoError(t, gerr)
		assert.Equal(t, gateway.HoldStateCanceled, state.Status)
	})

	t.Run("provider favor captures the disputed invoice", func(t *testing.T) {
		f := newFixture(t)
		invoice := disputedInvoice(f)
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.ledger.On("Record", mock.Anything, mock.MatchedBy(func(e ledger.Entry) bool {
			return e.Operation == models.LedgerOpCapture && e.AmountCents == 54075
		})).Return(&models.LedgerEntry{ID: "le_capture"}, nil)
		f.invoices.On("MarkCaptured", uint(7), models.InvoiceStatusDisputed, models.InvoiceStatusPaid,
			mock.Anything).Return(true, nil)
		f.holds.On("TransitionStatus", uint(1), models.HoldStatusAuthorized, models.HoldStatusCaptured).Return(true, nil)

		entry, err := f.svc.ResolveDisputed(ctx, 7, models.ResolutionProviderFavor, 0, admin)
		require.NoError(t, err)
		assert.Equal(t, "le_capture", entry.ID)
	})

	t.Run("split refund above the captured total is rejected before any money moves", func(t *testing.T) {
		f := newFixture(t)
		invoice := disputedInvoice(f)
		invoice.ChargeRef = "ch_prior"
		invoice.CapturedAmountCents = 54075
		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)

		_, err := f.svc.ResolveDisputed(ctx, 7, models.ResolutionSplit, 60000, admin)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		f.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("split refunds part of a captured invoice", func(t *testing.T) {
		f := newFixture(t)
		invoice := disputedInvoice(f)
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		charge, err := f.gw.Capture(ctx, hold.PaymentIntentRef, 54075, "inv:7:capture")
		require.NoError(t, err)
		invoice.ChargeRef = charge.ChargeRef
		invoice.CapturedAmountCents = 54075

		f.invoices.On("FindByID", uint(7)).Return(invoice, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.ledger.On("Record", mock.Anything, mock.MatchedBy(func(e ledger.Entry) bool {
			return e.Operation == models.LedgerOpRefund && e.AmountCents == 20000
		})).Return(&models.LedgerEntry{ID: "le_split"}, nil)
		f.invoices.On("TransitionStatus", uint(7), models.InvoiceStatusDisputed, models.InvoiceStatusRefunded).
			Return(true, nil)

		entry, err := f.svc.ResolveDisputed(ctx, 7, models.ResolutionSplit, 20000, admin)
		require.NoError(t, err)
		assert.Equal(t, "le_split", entry.ID)
	})

	t.Run("split requires a positive refund amount", func(t *testing.T) {
		f := newFixture(t)
		f.invoices.On("FindByID", uint(7)).Return(disputedInvoice(f), nil)

		_, err := f.svc.ResolveDisputed(ctx, 7, models.ResolutionSplit, 0, Actor{Kind: ActorAdmin, ID: 1})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("rejects resolving an invoice that is not disputed", func(t *testing.T) {
		f := newFixture(t)
		f.invoices.On("FindByID", uint(7)).Return(pendingInvoice(f), nil)

		_, err := f.svc.ResolveDisputed(ctx, 7, models.ResolutionCustomerFavor, 0, Actor{Kind: ActorAdmin, ID: 1})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

// --- Reconcile -------------------------------------------------------------

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("a capture that went through is recorded and completed", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		invoice.NeedsReconciliation = true
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		// The gateway performed the capture but the original call timed out.
		_, err := f.gw.Capture(ctx, hold.PaymentIntentRef, 54075, "inv:7:capture")
		require.NoError(t, err)

		f.invoices.On("ListNeedingReconciliation", 50).Return([]models.Invoice{*invoice}, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.ledger.On("Record", mock.Anything, mock.MatchedBy(func(e ledger.Entry) bool {
			return e.Operation == models.LedgerOpCapture && e.AmountCents == 54075
		})).Return(&models.LedgerEntry{ID: "le_rec"}, nil)
		f.invoices.On("MarkCaptured", uint(7), models.InvoiceStatusPendingApproval, models.InvoiceStatusAutoApproved,
			mock.Anything).Return(true, nil)
		f.holds.On("TransitionStatus", uint(1), models.HoldStatusAuthorized, models.HoldStatusCaptured).Return(true, nil)

		n, err := f.svc.Reconcile(ctx, 50)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		f.invoices.AssertExpectations(t)
	})

	t.Run("a disputed invoice keeps its state when a capture is repaired", func(t *testing.T) {
		f := newFixture(t)
		invoice := disputedInvoice(f)
		invoice.NeedsReconciliation = true
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		// A split resolution captured at the gateway but the call timed
		// out; the refund half has not run yet.
		_, err := f.gw.Capture(ctx, hold.PaymentIntentRef, 54075, "inv:7:capture")
		require.NoError(t, err)

		f.invoices.On("ListNeedingReconciliation", 50).Return([]models.Invoice{*invoice}, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.ledger.On("Record", mock.Anything, mock.MatchedBy(func(e ledger.Entry) bool {
			return e.Operation == models.LedgerOpCapture && e.AmountCents == 54075
		})).Return(&models.LedgerEntry{ID: "le_rec"}, nil)
		f.invoices.On("MarkCaptured", uint(7), models.InvoiceStatusDisputed, models.InvoiceStatusDisputed,
			mock.Anything).Return(true, nil)
		f.holds.On("TransitionStatus", uint(1), models.HoldStatusAuthorized, models.HoldStatusCaptured).Return(true, nil)

		_, err = f.svc.Reconcile(ctx, 50)
		require.NoError(t, err)

		// The accounting landed but the invoice never left disputed; the
		// resolver can still drive the refund.
		f.invoices.AssertCalled(t, "MarkCaptured", uint(7),
			models.InvoiceStatusDisputed, models.InvoiceStatusDisputed, mock.Anything)
		f.invoices.AssertNotCalled(t, "MarkCaptured", uint(7),
			models.InvoiceStatusDisputed, models.InvoiceStatusAutoApproved, mock.Anything)
	})

	t.Run("a capture that never happened clears the flag", func(t *testing.T) {
		f := newFixture(t)
		invoice := pendingInvoice(f)
		invoice.NeedsReconciliation = true
		hold := f.authorizedHold(t, invoice.EstimateID, 56650)

		f.invoices.On("ListNeedingReconciliation", 50).Return([]models.Invoice{*invoice}, nil)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.invoices.On("SetNeedsReconciliation", uint(7), false).Return(nil)

		_, err := f.svc.Reconcile(ctx, 50)
		require.NoError(t, err)
		f.invoices.AssertCalled(t, "SetNeedsReconciliation", uint(7), false)
		f.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})
}

// --- ReleaseHold -----------------------------------------------------------

func TestReleaseHold(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels an authorized hold", func(t *testing.T) {
		f := newFixture(t)
		hold := f.authorizedHold(t, 3, 56650)
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)
		f.holds.On("TransitionStatus", uint(1), models.HoldStatusAuthorized, models.HoldStatusCanceled).Return(true, nil)

		err := f.svc.ReleaseHold(ctx, 3, Actor{Kind: ActorCustomer, ID: 9})
		require.NoError(t, err)

		state, gerr := f.gw.RetrieveHold(ctx, hold.PaymentIntentRef)
		require.NoError(t, gerr)
		assert.Equal(t, gateway.HoldStateCanceled, state.Status)
	})

	t.Run("refuses to release a captured hold", func(t *testing.T) {
		f := newFixture(t)
		hold := f.authorizedHold(t, 3, 56650)
		hold.Status = models.HoldStatusCaptured
		f.holds.On("FindByEstimateID", uint(3)).Return(hold, nil)

		err := f.svc.ReleaseHold(ctx, 3, Actor{Kind: ActorAdmin, ID: 1})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}
