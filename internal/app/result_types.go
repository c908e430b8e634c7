package app

import "books-ledger/internal/core"

// DocumentResult is returned by document lifecycle operations.
type DocumentResult struct {
	Document *core.Document
}

// PaymentResult is returned by RecordPayment.
type PaymentResult struct {
	PaymentNumber string
}

// UnpaidListResult is returned by ListUnpaidDocuments and
// ListOutstandingDocuments.
type UnpaidListResult struct {
	Documents []core.UnpaidDocument
}

// ValuationResult is returned by GetValuationSummary.
type ValuationResult struct {
	Items []core.StockValuation
}

// ReportResult is returned by the sales and purchase reports.
type ReportResult struct {
	Lines []core.DocumentReportLine
}
