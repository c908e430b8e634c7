package app

import (
	"context"
	"fmt"
	"time"

	"books-ledger/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type appService struct {
	pool      *pgxpool.Pool
	documents core.DocumentService
	payments  core.PaymentService
	stock     core.StockService
	reports   core.ReportingService
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	documents core.DocumentService,
	payments core.PaymentService,
	stock core.StockService,
	reports core.ReportingService,
) ApplicationService {
	return &appService{
		pool:      pool,
		documents: documents,
		payments:  payments,
		stock:     stock,
		reports:   reports,
	}
}

func (s *appService) CreateInvoice(ctx context.Context, input core.DocumentInput) (*DocumentResult, error) {
	doc, err := s.documents.CreateDocument(ctx, core.KindInvoice, input)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

func (s *appService) CreateBill(ctx context.Context, input core.DocumentInput) (*DocumentResult, error) {
	doc, err := s.documents.CreateDocument(ctx, core.KindBill, input)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

func (s *appService) UpdateDocument(ctx context.Context, kind core.DocumentKind, id int, input core.DocumentInput) (*DocumentResult, error) {
	doc, err := s.documents.UpdateDocument(ctx, kind, id, input)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

func (s *appService) GetDocument(ctx context.Context, kind core.DocumentKind, id int) (*DocumentResult, error) {
	doc, err := s.documents.GetDocument(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

func (s *appService) MarkSent(ctx context.Context, kind core.DocumentKind, id int) error {
	return s.documents.MarkSent(ctx, kind, id)
}

func (s *appService) RecordPayment(ctx context.Context, input core.PaymentInput) (*PaymentResult, error) {
	number, err := s.payments.RecordPayment(ctx, input)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{PaymentNumber: number}, nil
}

func (s *appService) DeletePayment(ctx context.Context, paymentNumber string) error {
	return s.payments.DeletePayment(ctx, paymentNumber)
}

func (s *appService) UpdatePaymentAmount(ctx context.Context, paymentID int, amount decimal.Decimal) error {
	return s.payments.UpdatePaymentAmount(ctx, paymentID, amount)
}

func (s *appService) GetCreditBalance(ctx context.Context, kind core.PartyKind, partyID int) (decimal.Decimal, error) {
	return s.payments.CreditBalance(ctx, kind, partyID)
}

func (s *appService) ListUnpaidDocuments(ctx context.Context, kind core.DocumentKind, partyID int) (*UnpaidListResult, error) {
	docs, err := s.payments.UnpaidDocuments(ctx, kind.PartyKind(), partyID)
	if err != nil {
		return nil, err
	}
	return &UnpaidListResult{Documents: docs}, nil
}

func (s *appService) AddStock(ctx context.Context, itemID int, quantity, unitCost decimal.Decimal, date string, vendorID *int) error {
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	return s.stock.AddBatch(ctx, itemID, quantity, unitCost, date, vendorID)
}

func (s *appService) ConsumeStock(ctx context.Context, itemID int, quantity decimal.Decimal) (decimal.Decimal, error) {
	return s.stock.ConsumeFIFO(ctx, itemID, quantity)
}

func (s *appService) CorrectStock(ctx context.Context, itemID int, countedQuantity decimal.Decimal) error {
	var current decimal.Decimal
	if err := s.pool.QueryRow(ctx,
		"SELECT stock_on_hand FROM items WHERE id = $1", itemID,
	).Scan(&current); err != nil {
		return fmt.Errorf("item %d not found: %w", itemID, err)
	}
	return s.stock.CorrectStock(ctx, itemID, current, countedQuantity, time.Now().Format("2006-01-02"))
}

func (s *appService) GetStockValuation(ctx context.Context, itemID int) (*core.StockValuation, error) {
	return s.stock.Valuation(ctx, itemID)
}

func (s *appService) GetValuationSummary(ctx context.Context) (*ValuationResult, error) {
	items, err := s.stock.ValuationSummary(ctx)
	if err != nil {
		return nil, err
	}
	return &ValuationResult{Items: items}, nil
}

func (s *appService) CalculateTax(amount, rate decimal.Decimal, sellerState, buyerState string, inclusive bool) core.TaxBreakdown {
	return core.CalculateTax(amount, rate, sellerState, buyerState, inclusive)
}

func (s *appService) GetSalesReport(ctx context.Context, startDate, endDate string) (*ReportResult, error) {
	lines, err := s.reports.SalesReport(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return &ReportResult{Lines: lines}, nil
}

func (s *appService) GetPurchaseReport(ctx context.Context, startDate, endDate string) (*ReportResult, error) {
	lines, err := s.reports.PurchaseReport(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return &ReportResult{Lines: lines}, nil
}

func (s *appService) GetTaxSummary(ctx context.Context, startDate, endDate string) (*core.TaxSummary, error) {
	return s.reports.TaxSummary(ctx, startDate, endDate)
}

func (s *appService) ListOutstandingDocuments(ctx context.Context, kind core.DocumentKind) (*UnpaidListResult, error) {
	docs, err := s.reports.OutstandingDocuments(ctx, kind)
	if err != nil {
		return nil, err
	}
	return &UnpaidListResult{Documents: docs}, nil
}
