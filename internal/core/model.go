package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartyKind distinguishes the two counterparty sides of the ledger.
type PartyKind string

const (
	PartyCustomer PartyKind = "customer"
	PartyVendor   PartyKind = "vendor"
)

// DocumentKind distinguishes the two structurally symmetric document variants.
// Invoices face customers and consume stock; bills face vendors and add stock.
type DocumentKind string

const (
	KindInvoice DocumentKind = "invoice"
	KindBill    DocumentKind = "bill"
)

// PartyKind returns the counterparty side a document kind settles against.
func (k DocumentKind) PartyKind() PartyKind {
	if k == KindBill {
		return PartyVendor
	}
	return PartyCustomer
}

type DocumentStatus string

const (
	StatusDraft DocumentStatus = "Draft"
	StatusSent  DocumentStatus = "Sent"
	StatusPaid  DocumentStatus = "Paid"
)

// settlementTolerance is the fixed money-equality tolerance used for balance
// filtering and Paid status flips throughout the ledger.
var settlementTolerance = decimal.NewFromFloat(0.01)

// Item is an inventory master record. StockOnHand is a denormalized counter
// that mirrors the sum of quantity_remaining over the item's batches, except
// when an overdrawn FIFO consumption pushes it negative.
type Item struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	StockOnHand   decimal.Decimal `json:"stock_on_hand"`
	CreatedAt     time.Time       `json:"created_at"`
}

// StockBatch is one acquisition lot: units bought at one cost on one date.
// Batches are drained to zero, never deleted.
type StockBatch struct {
	ID                int             `json:"id"`
	ItemID            int             `json:"item_id"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	AcquisitionDate   string          `json:"acquisition_date"` // YYYY-MM-DD
	VendorID          *int            `json:"vendor_id,omitempty"`
}

// StockValuation summarizes an item's live batches.
type StockValuation struct {
	ItemID      int             `json:"item_id"`
	ItemName    string          `json:"item_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	TotalValue  decimal.Decimal `json:"total_value"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// Document is an invoice or bill header with its line items.
type Document struct {
	ID             int             `json:"id"`
	Kind           DocumentKind    `json:"kind"`
	Number         string          `json:"number"`
	PartyID        int             `json:"party_id"`
	PartyName      string          `json:"party_name"`
	Date           string          `json:"date"` // YYYY-MM-DD
	DueDate        *string         `json:"due_date,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TDSAmount      decimal.Decimal `json:"tds_amount"`
	TCSAmount      decimal.Decimal `json:"tcs_amount"`
	Adjustment     decimal.Decimal `json:"adjustment"`
	RoundOff       decimal.Decimal `json:"round_off"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	Status         DocumentStatus  `json:"status"`
	Notes          string          `json:"notes"`
	Lines          []DocumentLine  `json:"lines"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DocumentLine is one line item, owned exclusively by its document and
// replaced wholesale on edit.
type DocumentLine struct {
	ID              int             `json:"id"`
	DocumentID      int             `json:"document_id"`
	ItemID          int             `json:"item_id"`
	ItemName        string          `json:"item_name"`
	Quantity        decimal.Decimal `json:"quantity"`
	Rate            decimal.Decimal `json:"rate"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	Amount          decimal.Decimal `json:"amount"`
}

// LineInput is one requested line when creating or updating a document.
type LineInput struct {
	ItemID          int
	Quantity        decimal.Decimal
	Rate            decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// DocumentInput carries everything needed to create or replace a document.
type DocumentInput struct {
	PartyID    int
	Date       string // YYYY-MM-DD
	DueDate    *string
	Lines      []LineInput
	Notes      string
	Status     DocumentStatus // zero value means Draft
	TDSAmount  decimal.Decimal
	TCSAmount  decimal.Decimal
	Adjustment decimal.Decimal
	RoundOff   decimal.Decimal
	// DiscountAmount is a bill-only header discount, subtracted from the
	// grand total on top of per-line discounts.
	DiscountAmount decimal.Decimal
}

// PaymentRecord is one settlement slice. Exactly one of InvoiceID/BillID may
// be set; when both are nil the amount is unapplied credit held against the
// counterparty. Rows sharing a PaymentNumber belong to one payment event.
type PaymentRecord struct {
	ID            int             `json:"id"`
	PaymentNumber string          `json:"payment_number"`
	InvoiceID     *int            `json:"invoice_id,omitempty"`
	BillID        *int            `json:"bill_id,omitempty"`
	CustomerID    *int            `json:"customer_id,omitempty"`
	VendorID      *int            `json:"vendor_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"` // YYYY-MM-DD
	Method        string          `json:"method"`
	Reference     string          `json:"reference"`
	Notes         string          `json:"notes"`
	DepositTo     string          `json:"deposit_to"`
	BankCharges   decimal.Decimal `json:"bank_charges"`
	TaxDeducted   decimal.Decimal `json:"tax_deducted"`
	TaxAccount    string          `json:"tax_account"`
}

// IsCredit reports whether the row is unapplied credit.
func (p PaymentRecord) IsCredit() bool {
	return p.InvoiceID == nil && p.BillID == nil
}

// AllocationInput assigns a portion of a payment to one document.
type AllocationInput struct {
	DocumentID int
	Amount     decimal.Decimal
}

// PaymentInput is a full payment submission: money received from (or paid to)
// a party, fanned out across zero or more document allocations.
type PaymentInput struct {
	Kind           PartyKind
	PartyID        int
	AmountReceived decimal.Decimal
	Allocations    []AllocationInput
	UseCredits     bool
	Date           string // YYYY-MM-DD, today when empty
	Method         string
	Reference      string
	Notes          string
	DepositTo      string
	BankCharges    decimal.Decimal
	TaxDeducted    decimal.Decimal
	TaxAccount     string
}

// UnpaidDocument pairs a document with what remains owed on it.
type UnpaidDocument struct {
	Document   Document        `json:"document"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	BalanceDue decimal.Decimal `json:"balance_due"`
}
