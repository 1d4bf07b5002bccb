package audithook

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceCommitted = "invoice.committed"
	ActionInvoicePaid      = "invoice.paid"
	ActionInvoiceVoided    = "invoice.voided"

	// Account actions
	ActionAccountParked   = "account.parked"
	ActionAccountUnparked = "account.unparked"

	// Credit actions
	ActionCreditConsumed = "credit.consumed"
	ActionCreditRestored = "credit.restored"

	// Payment actions
	ActionPaymentRequested = "payment.requested"
)

// Resource constants for audit events.
const (
	ResourceInvoice = "invoice"
	ResourceAccount = "account"
	ResourceCredit  = "credit"
	ResourcePayment = "payment"
)

// Category constants for audit events.
const (
	CategoryBilling    = "billing"
	CategoryPayment    = "payment"
	CategoryOperations = "operations"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
