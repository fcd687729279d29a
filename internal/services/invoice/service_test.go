package invoice

import (
	"context"
	"testing"
	"time"

	apperrors "casa/internal/errors"
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

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

func approvedEstimate() *models.Estimate {
	return &models.Estimate{
		ID: 3, ServiceRequestID: 5, ProviderID: 11, CustomerID: 9,
		TotalCents: 50000, Status: models.EstimateStatusApproved,
	}
}

func authorizedHold() *models.PaymentHold {
	return &models.PaymentHold{
		ID: 1, EstimateID: 3, AuthorizedAmountCents: 56650,
		Status: models.HoldStatusAuthorized,
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("files the invoice with variance against the estimate", func(t *testing.T) {
		invoices := new(MockInvoiceRepo)
		estimates := new(MockEstimateRepo)
		holds := new(MockHoldRepo)
		profiles := new(MockProfileRepo)
		estimates.On("FindByID", uint(3)).Return(approvedEstimate(), nil)
		holds.On("FindByEstimateID", uint(3)).Return(authorizedHold(), nil)
		profiles.On("FindByUserID", uint(11)).Return(nil, gorm.ErrRecordNotFound)
		invoices.On("Create", mock.MatchedBy(func(i *models.Invoice) bool {
			return i.TotalCents == 52500 &&
				i.EstimateTotalCents == 50000 &&
				i.VarianceCents == 2500 &&
				i.Status == models.InvoiceStatusPendingApproval &&
				!i.InstantPayout
		})).Return(nil)

		svc := NewService(invoices, estimates, holds, profiles, new(MockLedger))
		inv, err := svc.Submit(ctx, SubmitInput{
			EstimateID: 3,
			ProviderID: 11,
			LineItems: models.LineItems{
				{Description: "Labor", TotalCents: 40500},
				{Description: "Materials", TotalCents: 12000},
			},
			CompletionPhotos: []string{"https://cdn.example/photos/1.jpg"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2500), inv.VarianceCents)
		invoices.AssertExpectations(t)
	})

	t.Run("instant payout defaults from the provider's standing opt-in", func(t *testing.T) {
		invoices := new(MockInvoiceRepo)
		estimates := new(MockEstimateRepo)
		holds := new(MockHoldRepo)
		profiles := new(MockProfileRepo)
		estimates.On("FindByID", uint(3)).Return(approvedEstimate(), nil)
		holds.On("FindByEstimateID", uint(3)).Return(authorizedHold(), nil)
		profiles.On("FindByUserID", uint(11)).Return(&models.PaymentProfile{
			UserID: 11, AccountRef: "acct_11", InstantPayoutOptIn: true,
		}, nil)
		invoices.On("Create", mock.MatchedBy(func(i *models.Invoice) bool {
			return i.InstantPayout
		})).Return(nil)

		svc := NewService(invoices, estimates, holds, profiles, new(MockLedger))
		inv, err := svc.Submit(ctx, SubmitInput{
			EstimateID: 3,
			ProviderID: 11,
			LineItems:  models.LineItems{{Description: "Labor", TotalCents: 40500}},
		})
		require.NoError(t, err)
		assert.True(t, inv.InstantPayout)
		invoices.AssertExpectations(t)
	})

	t.Run("rejects a total the hold can never cover", func(t *testing.T) {
		estimates := new(MockEstimateRepo)
		holds := new(MockHoldRepo)
		estimates.On("FindByID", uint(3)).Return(approvedEstimate(), nil)
		holds.On("FindByEstimateID", uint(3)).Return(authorizedHold(), nil)

		svc := NewService(new(MockInvoiceRepo), estimates, holds, new(MockProfileRepo), new(MockLedger))
		_, err := svc.Submit(ctx, SubmitInput{
			EstimateID: 3,
			ProviderID: 11,
			LineItems:  models.LineItems{{Description: "Labor", TotalCents: 60000}},
		})
		assert.ErrorIs(t, err, apperrors.ErrInsufficientAuthorization)
	})

	t.Run("rejects submission against an unapproved estimate", func(t *testing.T) {
		estimates := new(MockEstimateRepo)
		est := approvedEstimate()
		est.Status = models.EstimateStatusSent
		estimates.On("FindByID", uint(3)).Return(est, nil)

		svc := NewService(new(MockInvoiceRepo), estimates, new(MockHoldRepo), new(MockProfileRepo), new(MockLedger))
		_, err := svc.Submit(ctx, SubmitInput{
			EstimateID: 3, ProviderID: 11,
			LineItems: models.LineItems{{Description: "Labor", TotalCents: 40000}},
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("rejects another provider's submission", func(t *testing.T) {
		estimates := new(MockEstimateRepo)
		estimates.On("FindByID", uint(3)).Return(approvedEstimate(), nil)

		svc := NewService(new(MockInvoiceRepo), estimates, new(MockHoldRepo), new(MockProfileRepo), new(MockLedger))
		_, err := svc.Submit(ctx, SubmitInput{
			EstimateID: 3, ProviderID: 999,
			LineItems: models.LineItems{{Description: "Labor", TotalCents: 40000}},
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestHistory(t *testing.T) {
	invoices := new(MockInvoiceRepo)
	led := new(MockLedger)
	invoices.On("FindByID", uint(7)).Return(&models.Invoice{ID: 7}, nil)
	led.On("History", mock.Anything, uint(7)).Return([]models.LedgerEntry{
		{ID: "le_1", OperationType: models.LedgerOpCapture, AmountCents: 54075},
		{ID: "le_2", OperationType: models.LedgerOpRefund, AmountCents: 20000},
	}, nil)

	svc := NewService(invoices, new(MockEstimateRepo), new(MockHoldRepo), new(MockProfileRepo), led)
	entries, err := svc.History(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
