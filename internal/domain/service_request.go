package domain

import "time"

// RequestKind identifies a banking request flow.
type RequestKind string

const (
	RequestKindDeposit    RequestKind = "deposit"
	RequestKindLoan       RequestKind = "loan"
	RequestKindGrant      RequestKind = "grant"
	RequestKindTaxRefund  RequestKind = "tax_refund"
	RequestKindInvestment RequestKind = "investment"
)

// RequestStatus is the review state of a request.
type RequestStatus string

const (
	RequestStatusPending       RequestStatus = "PENDING"
	RequestStatusUnderReview   RequestStatus = "UNDER_REVIEW"
	RequestStatusSubmitted     RequestStatus = "SUBMITTED"
	RequestStatusPendingReview RequestStatus = "PENDING_REVIEW"
	RequestStatusActive        RequestStatus = "ACTIVE"
	RequestStatusReviewed      RequestStatus = "REVIEWED"
)

// MinInvestmentAmount is the smallest accepted investment.
const MinInvestmentAmount = 500.0

// RequestKindSpec describes storage and validation for one kind.
type RequestKindSpec struct {
	Table             string
	Bucket            string
	FilePrefix        string
	InitialStatus     RequestStatus
	MinAmount         float64
	RequiresAmount    bool
	RequiresDocuments bool

	// DocumentAlternative names a detail field that may stand in for documents.
	DocumentAlternative string
}

var requestKinds = map[RequestKind]RequestKindSpec{
	RequestKindDeposit: {
		Table: "transactions", Bucket: "receipts",
		InitialStatus: RequestStatusPending, RequiresAmount: true, RequiresDocuments: true,
		DocumentAlternative: "gift_code",
	},
	RequestKindLoan: {
		Table: "loans", Bucket: "loan-documents", FilePrefix: "loan_",
		InitialStatus: RequestStatusUnderReview, RequiresAmount: true, RequiresDocuments: true,
	},
	RequestKindGrant: {
		Table: "grants", Bucket: "grant-documents", FilePrefix: "grant_",
		InitialStatus: RequestStatusSubmitted, RequiresAmount: true,
	},
	RequestKindTaxRefund: {
		Table: "tax_refunds", Bucket: "tax-documents",
		InitialStatus: RequestStatusPendingReview,
	},
	RequestKindInvestment: {
		Table: "investments", Bucket: "investment-documents", FilePrefix: "investment_",
		InitialStatus: RequestStatusActive, RequiresAmount: true, MinAmount: MinInvestmentAmount,
	},
}

// Spec returns the kind's storage and validation rules.
func (k RequestKind) Spec() (RequestKindSpec, bool) {
	spec, ok := requestKinds[k]
	return spec, ok
}

// ServiceRequest is a submitted deposit, loan, grant, tax refund or investment.
type ServiceRequest struct {
	ID         string
	Kind       RequestKind
	UserID     string
	Amount     float64
	Details    map[string]string
	Documents  []string
	Status     RequestStatus
	CreatedAt  time.Time
	ReviewedAt *time.Time
	ReviewedBy *string
}
