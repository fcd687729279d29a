package errors

var (
	ErrConfig = &DomainError{
		Code:    "CONFIG_ERROR",
		Message: "invalid fee configuration",
	}
	ErrValidation = &DomainError{
		Code:    "VALIDATION_ERROR",
		Message: "invalid request",
	}
	ErrGateway = &DomainError{
		Code:    "GATEWAY_ERROR",
		Message: "payment could not be processed",
	}
	ErrDuplicateCapture = &DomainError{
		Code:    "DUPLICATE_CAPTURE",
		Message: "invoice has already been captured",
	}
	ErrDisputeWindowClosed = &DomainError{
		Code:    "DISPUTE_WINDOW_CLOSED",
		Message: "dispute window has closed",
	}
	ErrInsufficientAuthorization = &DomainError{
		Code:    "INSUFFICIENT_AUTHORIZATION",
		Message: "invoice total exceeds the authorized amount; a supplemental charge is required",
	}
	ErrReconciliationRequired = &DomainError{
		Code:    "RECONCILIATION_REQUIRED",
		Message: "payment outcome unknown, pending reconciliation",
	}
	ErrInvoiceDisputed = &DomainError{
		Code:    "INVOICE_DISPUTED",
		Message: "invoice is under dispute",
	}
	ErrNotFound = &DomainError{
		Code:    "NOT_FOUND",
		Message: "record not found",
	}
)
