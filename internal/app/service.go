package app

import (
	"context"

	"books-ledger/internal/core"

	"github.com/shopspring/decimal"
)

// ApplicationService is the single interface presentation layers call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// CreateInvoice creates a customer invoice, consuming stock FIFO for
	// every line in the same transaction.
	CreateInvoice(ctx context.Context, input core.DocumentInput) (*DocumentResult, error)

	// CreateBill creates a vendor bill, adding one stock batch per line at
	// the line rate in the same transaction.
	CreateBill(ctx context.Context, input core.DocumentInput) (*DocumentResult, error)

	// UpdateDocument replaces a document's header and lines, reconciling
	// stock against the previous line quantities.
	UpdateDocument(ctx context.Context, kind core.DocumentKind, id int, input core.DocumentInput) (*DocumentResult, error)

	// GetDocument returns a document with its lines.
	GetDocument(ctx context.Context, kind core.DocumentKind, id int) (*DocumentResult, error)

	// MarkSent transitions a Draft document to Sent.
	MarkSent(ctx context.Context, kind core.DocumentKind, id int) error

	// RecordPayment records a payment event and returns its payment number.
	RecordPayment(ctx context.Context, input core.PaymentInput) (*PaymentResult, error)

	// DeletePayment removes every row of a payment event and recomputes the
	// status of each document it touched.
	DeletePayment(ctx context.Context, paymentNumber string) error

	// UpdatePaymentAmount changes one payment row's amount and recomputes
	// the linked document's status.
	UpdatePaymentAmount(ctx context.Context, paymentID int, amount decimal.Decimal) error

	// GetCreditBalance returns a party's total unapplied credit.
	GetCreditBalance(ctx context.Context, kind core.PartyKind, partyID int) (decimal.Decimal, error)

	// ListUnpaidDocuments returns a party's open documents with balances.
	ListUnpaidDocuments(ctx context.Context, kind core.DocumentKind, partyID int) (*UnpaidListResult, error)

	// AddStock records a purchase batch for an item.
	AddStock(ctx context.Context, itemID int, quantity, unitCost decimal.Decimal, date string, vendorID *int) error

	// ConsumeStock consumes stock FIFO and returns the cost of goods sold.
	ConsumeStock(ctx context.Context, itemID int, quantity decimal.Decimal) (decimal.Decimal, error)

	// CorrectStock adjusts an item's stock to match a physical count.
	CorrectStock(ctx context.Context, itemID int, countedQuantity decimal.Decimal) error

	// GetStockValuation returns one item's batch-backed valuation.
	GetStockValuation(ctx context.Context, itemID int) (*core.StockValuation, error)

	// GetValuationSummary returns valuations for every item holding stock.
	GetValuationSummary(ctx context.Context) (*ValuationResult, error)

	// CalculateTax splits a GST amount between intra-state and inter-state
	// components without touching the database.
	CalculateTax(amount, rate decimal.Decimal, sellerState, buyerState string, inclusive bool) core.TaxBreakdown

	// GetSalesReport returns invoices in a date range, newest first.
	GetSalesReport(ctx context.Context, startDate, endDate string) (*ReportResult, error)

	// GetPurchaseReport returns bills in a date range, newest first.
	GetPurchaseReport(ctx context.Context, startDate, endDate string) (*ReportResult, error)

	// GetTaxSummary nets output tax against input tax for a date range.
	GetTaxSummary(ctx context.Context, startDate, endDate string) (*core.TaxSummary, error)

	// ListOutstandingDocuments returns every open document of a kind.
	ListOutstandingDocuments(ctx context.Context, kind core.DocumentKind) (*UnpaidListResult, error)
}
