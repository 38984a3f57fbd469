// Package remittance implements the inbound side of the billing pipeline:
// 835 ingestion, claim matching, payment posting, and variance detection.
package remittance

import (
	"time"

	"github.com/google/uuid"
)

// Remittance statuses.
const (
	StatusReceived        = "received"
	StatusPartiallyPosted = "partially_posted"
	StatusPosted          = "posted"
)

// Match confidence tiers, strongest first. High means the practice claim
// number matched and a service line confirmed on procedure code and date;
// medium covers every other claim hit (unconfirmed claim-number match,
// charge resolved by CPT and patient, or a payer-claim-number match); low
// is reserved for weaker heuristics and is never auto-posted; none means
// no candidate was found.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
	ConfidenceNone   = "none"
)

// Remittance maps to the remittance table: one row per 835 check received.
// CheckNumber is unique per organization; re-ingesting the same check
// replaces the line items as long as nothing has been posted.
type Remittance struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	OrgID         uuid.UUID  `db:"org_id" json:"org_id"`
	CheckNumber   string     `db:"check_number" json:"check_number"`
	CheckDate     *time.Time `db:"check_date" json:"check_date,omitempty"`
	PayerName     *string    `db:"payer_name" json:"payer_name,omitempty"`
	PayerID       *string    `db:"payer_id" json:"payer_id,omitempty"`
	TotalPaid     float64    `db:"total_paid" json:"total_paid"`
	TotalCharges  float64    `db:"total_charges" json:"total_charges"`
	TotalAdjusted float64    `db:"total_adjusted" json:"total_adjusted"`
	ClaimCount    int        `db:"claim_count" json:"claim_count"`
	Status        string     `db:"status" json:"status"`
	RawEDI        string     `db:"raw_edi" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	// Loaded on demand.
	Items []*LineItem `db:"-" json:"items,omitempty"`
}

// Adjustment is one CAS reason/amount pair carried on a line item. Stored
// as JSONB alongside the item.
type Adjustment struct {
	GroupCode  string  `json:"group_code"`
	ReasonCode string  `json:"reason_code"`
	Amount     float64 `json:"amount"`
}

// LineItem maps to the remittance_line_item table: one adjudicated service
// line from a CLP loop. Match fields are filled by the matcher; posting
// fields by the posting engine. A posted item is immutable.
type LineItem struct {
	ID           uuid.UUID `db:"id" json:"id"`
	RemittanceID uuid.UUID `db:"remittance_id" json:"remittance_id"`
	OrgID        uuid.UUID `db:"org_id" json:"org_id"`

	ClaimNumber      string     `db:"claim_number" json:"claim_number"`
	PayerClaimNumber *string    `db:"payer_claim_number" json:"payer_claim_number,omitempty"`
	PatientName      *string    `db:"patient_name" json:"patient_name,omitempty"`
	ClaimStatusCode  string     `db:"claim_status_code" json:"claim_status_code"`
	CPTCode          string     `db:"cpt_code" json:"cpt_code"`
	Modifiers        []string   `db:"modifiers" json:"modifiers,omitempty"`
	ServiceDate      *time.Time `db:"service_date" json:"service_date,omitempty"`

	ChargedAmount  float64      `db:"charged_amount" json:"charged_amount"`
	PaidAmount     float64      `db:"paid_amount" json:"paid_amount"`
	AllowedAmount  float64      `db:"allowed_amount" json:"allowed_amount"`
	AdjustedAmount float64      `db:"adjusted_amount" json:"adjusted_amount"`
	PatientAmount  float64      `db:"patient_amount" json:"patient_amount"`
	Adjustments    []Adjustment `db:"adjustments" json:"adjustments,omitempty"`
	RemarkCodes    []string     `db:"remark_codes" json:"remark_codes,omitempty"`

	MatchedClaimID       *uuid.UUID `db:"matched_claim_id" json:"matched_claim_id,omitempty"`
	MatchedServiceLineID *uuid.UUID `db:"matched_service_line_id" json:"matched_service_line_id,omitempty"`
	MatchConfidence      string     `db:"match_confidence" json:"match_confidence"`
	MatchReason          *string    `db:"match_reason" json:"match_reason,omitempty"`

	IsPosted bool       `db:"is_posted" json:"is_posted"`
	PostedAt *time.Time `db:"posted_at" json:"posted_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsDenied reports whether the line represents an outright denial: nothing
// paid and a denial-category adjustment present, or a denied CLP status.
func (li *LineItem) IsDenied(isDenialCode func(string) bool) bool {
	if li.ClaimStatusCode == "4" {
		return true
	}
	if li.PaidAmount != 0 {
		return false
	}
	for _, a := range li.Adjustments {
		if isDenialCode(a.ReasonCode) {
			return true
		}
	}
	return false
}

// Posting item outcomes.
const (
	PostPosted    = "posted"
	PostSkipped   = "skipped"
	PostUnmatched = "unmatched"
	PostError     = "error"
)

// PostingItemResult reports the outcome for one line item in a posting run.
type PostingItemResult struct {
	LineItemID  uuid.UUID  `json:"line_item_id"`
	ClaimNumber string     `json:"claim_number"`
	CPTCode     string     `json:"cpt_code"`
	Status      string     `json:"status"`
	Detail      string     `json:"detail,omitempty"`
	ChargeID    *uuid.UUID `json:"charge_id,omitempty"`
}

// PostingSummary is the result of posting one remittance.
type PostingSummary struct {
	RemittanceID uuid.UUID           `json:"remittance_id"`
	PaymentID    *uuid.UUID          `json:"payment_id,omitempty"`
	Posted       int                 `json:"posted"`
	Skipped      int                 `json:"skipped"`
	Unmatched    int                 `json:"unmatched"`
	Errors       int                 `json:"errors"`
	TotalApplied float64             `json:"total_applied"`
	Items        []PostingItemResult `json:"items"`
}

// DenialFlag describes one denied line for worklist review.
type DenialFlag struct {
	LineItemID    uuid.UUID  `json:"line_item_id"`
	ClaimNumber   string     `json:"claim_number"`
	CPTCode       string     `json:"cpt_code"`
	ChargedAmount float64    `json:"charged_amount"`
	ReasonCode    string     `json:"reason_code"`
	Reason        string     `json:"reason"`
	RemarkCodes   []string   `json:"remark_codes,omitempty"`
	MatchedClaim  *uuid.UUID `json:"matched_claim_id,omitempty"`
}

// UnderpaymentFlag describes a line paid below the allowed amount by more
// than the configured threshold.
type UnderpaymentFlag struct {
	LineItemID     uuid.UUID `json:"line_item_id"`
	ClaimNumber    string    `json:"claim_number"`
	CPTCode        string    `json:"cpt_code"`
	AllowedAmount  float64   `json:"allowed_amount"`
	PaidAmount     float64   `json:"paid_amount"`
	PatientAmount  float64   `json:"patient_amount"`
	ExpectedAmount float64   `json:"expected_amount"`
	Shortfall      float64   `json:"shortfall"`
}
