package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// DocumentReportLine is one invoice or bill row in a sales/purchase report.
type DocumentReportLine struct {
	Number     string          `json:"number"`
	PartyName  string          `json:"party_name"`
	Date       string          `json:"date"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Status     DocumentStatus  `json:"status"`
}

// TaxSummary nets the tax collected on sales (output) against the tax paid
// on purchases (input) for a period.
type TaxSummary struct {
	OutputTax  decimal.Decimal `json:"output_tax"`
	InputTax   decimal.Decimal `json:"input_tax"`
	NetPayable decimal.Decimal `json:"net_payable"`
}

// ReportingService provides the read-only views consumed by the report
// screens. Dates are inclusive YYYY-MM-DD bounds.
type ReportingService interface {
	SalesReport(ctx context.Context, startDate, endDate string) ([]DocumentReportLine, error)
	PurchaseReport(ctx context.Context, startDate, endDate string) ([]DocumentReportLine, error)
	TaxSummary(ctx context.Context, startDate, endDate string) (*TaxSummary, error)
	// OutstandingDocuments lists every non-Paid document of the kind with a
	// balance above the settlement tolerance, regardless of party.
	OutstandingDocuments(ctx context.Context, kind DocumentKind) ([]UnpaidDocument, error)
}

type reportingService struct {
	pool *pgxpool.Pool
}

func NewReportingService(pool *pgxpool.Pool) ReportingService {
	return &reportingService{pool: pool}
}

func (s *reportingService) SalesReport(ctx context.Context, startDate, endDate string) ([]DocumentReportLine, error) {
	return s.documentReport(ctx, specFor(KindInvoice), startDate, endDate)
}

func (s *reportingService) PurchaseReport(ctx context.Context, startDate, endDate string) ([]DocumentReportLine, error) {
	return s.documentReport(ctx, specFor(KindBill), startDate, endDate)
}

func (s *reportingService) documentReport(ctx context.Context, spec kindSpec, startDate, endDate string) ([]DocumentReportLine, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT d.%s, p.name, d.date::text, d.grand_total, d.status
		FROM %s d
		JOIN %s p ON p.id = d.%s
		WHERE d.date BETWEEN $1 AND $2
		ORDER BY d.date DESC, d.id DESC
	`, spec.numberCol, spec.table, spec.partyTable, spec.partyCol), startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s report: %w", spec.table, err)
	}
	defer rows.Close()

	var lines []DocumentReportLine
	for rows.Next() {
		var l DocumentReportLine
		if err := rows.Scan(&l.Number, &l.PartyName, &l.Date, &l.GrandTotal, &l.Status); err != nil {
			return nil, fmt.Errorf("failed to scan report line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report lines: %w", err)
	}
	return lines, nil
}

func (s *reportingService) TaxSummary(ctx context.Context, startDate, endDate string) (*TaxSummary, error) {
	var summary TaxSummary
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(tax_amount), 0) FROM invoices WHERE date BETWEEN $1 AND $2",
		startDate, endDate,
	).Scan(&summary.OutputTax)
	if err != nil {
		return nil, fmt.Errorf("failed to sum output tax: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(tax_amount), 0) FROM bills WHERE date BETWEEN $1 AND $2",
		startDate, endDate,
	).Scan(&summary.InputTax)
	if err != nil {
		return nil, fmt.Errorf("failed to sum input tax: %w", err)
	}

	summary.NetPayable = summary.OutputTax.Sub(summary.InputTax)
	return &summary, nil
}

func (s *reportingService) OutstandingDocuments(ctx context.Context, kind DocumentKind) ([]UnpaidDocument, error) {
	spec := specFor(kind)
	pSpec := partySpecFor(kind.PartyKind())

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT d.id, d.%s, d.%s, p.name, d.date::text, d.due_date::text,
		       d.subtotal, d.tax_amount, d.discount_amount, d.tds_amount, d.tcs_amount,
		       d.adjustment, d.round_off, d.grand_total, d.status, d.notes, d.created_at,
		       COALESCE((SELECT SUM(pm.amount) FROM payments pm WHERE pm.%s = d.id), 0) AS amount_paid
		FROM %s d
		JOIN %s p ON p.id = d.%s
		WHERE d.status != 'Paid'
		ORDER BY d.date ASC, d.id ASC
	`, spec.numberCol, spec.partyCol, pSpec.docFK, spec.table, spec.partyTable, spec.partyCol))
	if err != nil {
		return nil, fmt.Errorf("failed to query outstanding %s: %w", spec.table, err)
	}
	defer rows.Close()

	var result []UnpaidDocument
	for rows.Next() {
		d := Document{Kind: kind}
		var amountPaid decimal.Decimal
		if err := rows.Scan(
			&d.ID, &d.Number, &d.PartyID, &d.PartyName, &d.Date, &d.DueDate,
			&d.Subtotal, &d.TaxAmount, &d.DiscountAmount, &d.TDSAmount, &d.TCSAmount,
			&d.Adjustment, &d.RoundOff, &d.GrandTotal, &d.Status, &d.Notes, &d.CreatedAt,
			&amountPaid,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outstanding document: %w", err)
		}
		balance := d.GrandTotal.Sub(amountPaid)
		if balance.GreaterThan(settlementTolerance) {
			result = append(result, UnpaidDocument{Document: d, AmountPaid: amountPaid, BalanceDue: balance})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outstanding documents: %w", err)
	}
	return result, nil
}
