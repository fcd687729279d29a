package escrow

import "fmt"

// Actor identifies who drove a transition, for the ledger and audit trail.
type Actor struct {
	Kind string
	ID   uint
}

const (
	ActorCustomer = "customer"
	ActorProvider = "provider"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
)

func (a Actor) String() string {
	if a.ID == 0 {
		return a.Kind
	}
	return fmt.Sprintf("%s:%d", a.Kind, a.ID)
}

// SystemActor is the identity the auto-approval timer and reconciler act as.
var SystemActor = Actor{Kind: ActorSystem}

// CaptureResult is the derived accounting of one capture. It is returned to
// callers and recorded on the invoice row; it is not a table of its own.
type CaptureResult struct {
	InvoiceID                 uint   `json:"invoice_id"`
	ChargeID                  string `json:"charge_id"`
	ProviderTransferID        string `json:"provider_transfer_id,omitempty"`
	TotalCapturedCents        int64  `json:"total_captured_cents"`
	ProviderAmountCents       int64  `json:"provider_amount_cents"`
	ProviderFeeCents          int64  `json:"provider_fee_cents"`
	HomeownerPlatformFeeCents int64  `json:"homeowner_platform_fee_cents"`
	Status                    string `json:"status"`
}
