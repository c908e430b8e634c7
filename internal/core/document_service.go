package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DocumentService builds and edits invoices and bills. Header, lines, and
// the stock side effects land in one transaction: a failed stock write rolls
// the document back with it.
//
// Status machine: Draft → Sent → Paid. This service only performs the
// explicit Draft → Sent transition; Paid flips (and Paid → Sent reversals)
// belong to PaymentService, which always recomputes them from stored rows.
type DocumentService interface {
	CreateDocument(ctx context.Context, kind DocumentKind, input DocumentInput) (*Document, error)
	// UpdateDocument recomputes totals exactly as CreateDocument, replaces
	// all lines, and reconciles the stock delta per item.
	UpdateDocument(ctx context.Context, kind DocumentKind, documentID int, input DocumentInput) (*Document, error)
	GetDocument(ctx context.Context, kind DocumentKind, documentID int) (*Document, error)
	MarkSent(ctx context.Context, kind DocumentKind, documentID int) error
	// NextDocumentNumber previews the number the next document of this kind
	// would receive.
	NextDocumentNumber(ctx context.Context, kind DocumentKind) (string, error)
}

type documentService struct {
	pool  *pgxpool.Pool
	stock StockService
}

func NewDocumentService(pool *pgxpool.Pool, stock StockService) DocumentService {
	return &documentService{pool: pool, stock: stock}
}

// kindSpec maps a document kind onto its tables and columns. Invoices and
// bills are symmetric; everything else in this service is written once
// against this mapping.
type kindSpec struct {
	table       string
	lineTable   string
	numberCol   string
	partyCol    string
	partyTable  string
	prefixKey   string
	prefixDflt  string
	consumes    bool // true: stock leaves on create (invoice); false: stock arrives (bill)
}

func specFor(kind DocumentKind) kindSpec {
	if kind == KindBill {
		return kindSpec{
			table: "bills", lineTable: "bill_items", numberCol: "bill_number",
			partyCol: "vendor_id", partyTable: "vendors",
			prefixKey: "bill_prefix", prefixDflt: "BILL-",
		}
	}
	return kindSpec{
		table: "invoices", lineTable: "invoice_items", numberCol: "invoice_number",
		partyCol: "customer_id", partyTable: "customers",
		prefixKey: "invoice_prefix", prefixDflt: "INV-",
		consumes: true,
	}
}

// ── Totals ───────────────────────────────────────────────────────────────────

type computedLine struct {
	LineInput
	Amount decimal.Decimal
}

type documentTotals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	GrandTotal     decimal.Decimal
	Lines          []computedLine
}

// computeDocumentTotals runs the per-line math shared by create and update:
// discount applies to the rate before tax, each taxable value goes through
// the tax split with the document-level state pair, and header adjustments
// land on the grand total last. Pure; callers supply the states.
func computeDocumentTotals(input DocumentInput, sellerState, buyerState string) documentTotals {
	t := documentTotals{
		Subtotal:       decimal.Zero,
		TaxAmount:      decimal.Zero,
		DiscountAmount: decimal.Zero,
		GrandTotal:     decimal.Zero,
	}

	for _, line := range input.Lines {
		discountedRate := line.Rate.Mul(decimalHundred.Sub(line.DiscountPercent)).Div(decimalHundred)
		lineDiscount := line.Rate.Sub(discountedRate).Mul(line.Quantity)
		taxable := discountedRate.Mul(line.Quantity)

		breakdown := CalculateTax(taxable, line.TaxPercent, sellerState, buyerState, false)

		t.Subtotal = t.Subtotal.Add(taxable)
		t.TaxAmount = t.TaxAmount.Add(breakdown.TotalTax)
		t.DiscountAmount = t.DiscountAmount.Add(lineDiscount)
		t.GrandTotal = t.GrandTotal.Add(breakdown.GrandTotal)

		t.Lines = append(t.Lines, computedLine{LineInput: line, Amount: breakdown.GrandTotal})
	}

	// Header-level discount (bills) and adjustments.
	t.DiscountAmount = t.DiscountAmount.Add(input.DiscountAmount)
	t.GrandTotal = t.GrandTotal.
		Sub(input.DiscountAmount).
		Sub(input.TDSAmount).
		Add(input.TCSAmount).
		Add(input.Adjustment).
		Add(input.RoundOff)

	t.Subtotal = t.Subtotal.Round(2)
	t.TaxAmount = t.TaxAmount.Round(2)
	t.DiscountAmount = t.DiscountAmount.Round(2)
	t.GrandTotal = t.GrandTotal.Round(2)
	return t
}

// ── Numbering ────────────────────────────────────────────────────────────────

// nextNumberTx computes prefix + (max numeric suffix + 1), zero-padded to 4
// digits. Legacy numbers with non-numeric suffixes are skipped, and gaps in
// the sequence are tolerated.
func nextNumberTx(ctx context.Context, tx pgx.Tx, spec kindSpec) (string, error) {
	prefix := spec.prefixDflt
	var configured string
	err := tx.QueryRow(ctx, "SELECT value FROM settings WHERE key = $1", spec.prefixKey).Scan(&configured)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to read %s: %w", spec.prefixKey, err)
	}
	if configured != "" {
		prefix = configured
	}

	rows, err := tx.Query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s LIKE $1", spec.numberCol, spec.table, spec.numberCol),
		prefix+"%",
	)
	if err != nil {
		return "", fmt.Errorf("failed to query existing numbers: %w", err)
	}
	defer rows.Close()

	maxNum := 0
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return "", fmt.Errorf("failed to scan number: %w", err)
		}
		suffix := strings.TrimPrefix(number, prefix)
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue // legacy non-numeric suffix
		}
		if n > maxNum {
			maxNum = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating numbers: %w", err)
	}

	return fmt.Sprintf("%s%04d", prefix, maxNum+1), nil
}

func (s *documentService) NextDocumentNumber(ctx context.Context, kind DocumentKind) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	return nextNumberTx(ctx, tx, specFor(kind))
}

// ── Create / Update ──────────────────────────────────────────────────────────

func (s *documentService) CreateDocument(ctx context.Context, kind DocumentKind, input DocumentInput) (*Document, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("document must have at least one line")
	}
	spec := specFor(kind)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sellerState, buyerState, err := s.resolveStates(ctx, tx, spec, input.PartyID, kind)
	if err != nil {
		return nil, err
	}

	totals := computeDocumentTotals(input, sellerState, buyerState)

	number, err := nextNumberTx(ctx, tx, spec)
	if err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = StatusDraft
	}

	var documentID int
	err = tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, %s, date, due_date, subtotal, tax_amount, discount_amount,
		                tds_amount, tcs_amount, adjustment, round_off, grand_total, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, spec.table, spec.numberCol, spec.partyCol),
		number, input.PartyID, input.Date, input.DueDate,
		totals.Subtotal, totals.TaxAmount, totals.DiscountAmount,
		input.TDSAmount, input.TCSAmount, input.Adjustment, input.RoundOff,
		totals.GrandTotal, string(status), input.Notes,
	).Scan(&documentID)
	if err != nil {
		return nil, mapDuplicateNumber(err, number)
	}

	if err := s.insertLines(ctx, tx, spec, documentID, totals.Lines); err != nil {
		return nil, err
	}

	// Stock side effects inside the same transaction: invoices drain
	// batches, bills create them (unit cost = line rate, source = vendor).
	for _, line := range totals.Lines {
		if spec.consumes {
			if _, err := s.stock.ConsumeFIFOTx(ctx, tx, line.ItemID, line.Quantity); err != nil {
				return nil, err
			}
		} else {
			vendorID := input.PartyID
			if err := s.stock.AddBatchTx(ctx, tx, line.ItemID, line.Quantity, line.Rate, input.Date, &vendorID); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit document: %w", err)
	}
	return s.GetDocument(ctx, kind, documentID)
}

func (s *documentService) UpdateDocument(ctx context.Context, kind DocumentKind, documentID int, input DocumentInput) (*Document, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("document must have at least one line")
	}
	spec := specFor(kind)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Snapshot old quantities per item for the stock delta.
	oldQty := map[int]decimal.Decimal{}
	rows, err := tx.Query(ctx, fmt.Sprintf(
		"SELECT item_id, quantity FROM %s WHERE %s_id = $1", spec.lineTable, strings.TrimSuffix(spec.table, "s"),
	), documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch existing lines: %w", err)
	}
	for rows.Next() {
		var itemID int
		var qty decimal.Decimal
		if err := rows.Scan(&itemID, &qty); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan existing line: %w", err)
		}
		oldQty[itemID] = oldQty[itemID].Add(qty)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating existing lines: %w", err)
	}

	newQty := map[int]decimal.Decimal{}
	newRate := map[int]decimal.Decimal{}
	for _, line := range input.Lines {
		newQty[line.ItemID] = newQty[line.ItemID].Add(line.Quantity)
		newRate[line.ItemID] = line.Rate
	}

	if err := s.reconcileStock(ctx, tx, spec, input, oldQty, newQty, newRate); err != nil {
		return nil, err
	}

	sellerState, buyerState, err := s.resolveStates(ctx, tx, spec, input.PartyID, kind)
	if err != nil {
		return nil, err
	}
	totals := computeDocumentTotals(input, sellerState, buyerState)

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET
			%s = $1, date = $2, due_date = $3, subtotal = $4, tax_amount = $5,
			discount_amount = $6, tds_amount = $7, tcs_amount = $8, adjustment = $9,
			round_off = $10, grand_total = $11, notes = $12
		WHERE id = $13
	`, spec.table, spec.partyCol),
		input.PartyID, input.Date, input.DueDate, totals.Subtotal, totals.TaxAmount,
		totals.DiscountAmount, input.TDSAmount, input.TCSAmount, input.Adjustment,
		input.RoundOff, totals.GrandTotal, input.Notes, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update document header: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%s %d: %w", kind, documentID, ErrDocumentNotFound)
	}

	// Lines are replaced wholesale.
	_, err = tx.Exec(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE %s_id = $1", spec.lineTable, strings.TrimSuffix(spec.table, "s"),
	), documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete old lines: %w", err)
	}
	if err := s.insertLines(ctx, tx, spec, documentID, totals.Lines); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit document update: %w", err)
	}
	return s.GetDocument(ctx, kind, documentID)
}

// reconcileStock applies the signed per-item quantity delta between the old
// and new line sets. For invoices a positive delta consumes more stock and a
// negative delta returns it (batched at the item's current purchase price,
// since the original batch cost is not tracked per line). Bills mirror this:
// more billed quantity means more stock on hand.
func (s *documentService) reconcileStock(ctx context.Context, tx pgx.Tx, spec kindSpec, input DocumentInput,
	oldQty, newQty, newRate map[int]decimal.Decimal) error {

	apply := func(itemID int, delta decimal.Decimal) error {
		if delta.IsZero() {
			return nil
		}
		outbound := delta.IsPositive() == spec.consumes
		if outbound {
			_, err := s.stock.ConsumeFIFOTx(ctx, tx, itemID, delta.Abs())
			return err
		}
		cost := newRate[itemID]
		var vendorID *int
		if !spec.consumes {
			v := input.PartyID
			vendorID = &v
		} else {
			// Returned invoice stock is re-batched at the item's current
			// purchase price; the original batch cost is not tracked per line.
			var purchasePrice decimal.Decimal
			err := tx.QueryRow(ctx, "SELECT purchase_price FROM items WHERE id = $1", itemID).Scan(&purchasePrice)
			if err != nil {
				return fmt.Errorf("failed to fetch purchase price for item %d: %w", itemID, err)
			}
			cost = purchasePrice
		}
		return s.stock.AddBatchTx(ctx, tx, itemID, delta.Abs(), cost, input.Date, vendorID)
	}

	for itemID, nq := range newQty {
		if err := apply(itemID, nq.Sub(oldQty[itemID])); err != nil {
			return err
		}
	}
	// Items removed entirely count as delta = -oldQuantity.
	for itemID, oq := range oldQty {
		if _, still := newQty[itemID]; !still {
			if err := apply(itemID, oq.Neg()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *documentService) insertLines(ctx context.Context, tx pgx.Tx, spec kindSpec, documentID int, lines []computedLine) error {
	fkCol := strings.TrimSuffix(spec.table, "s") + "_id"
	for i, line := range lines {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (%s, item_id, quantity, rate, discount_percent, tax_percent, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, spec.lineTable, fkCol),
			documentID, line.ItemID, line.Quantity, line.Rate,
			line.DiscountPercent, line.TaxPercent, line.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert line %d: %w", i+1, err)
		}
	}
	return nil
}

// resolveStates returns the (seller, buyer) state pair for the tax split.
// Invoices sell from the company to the customer; bills buy from the vendor
// into the company.
func (s *documentService) resolveStates(ctx context.Context, tx pgx.Tx, spec kindSpec, partyID int, kind DocumentKind) (string, string, error) {
	var companyState string
	err := tx.QueryRow(ctx, "SELECT value FROM settings WHERE key = 'company_state'").Scan(&companyState)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", "", fmt.Errorf("failed to read company state: %w", err)
	}

	var partyState string
	err = tx.QueryRow(ctx,
		fmt.Sprintf("SELECT state FROM %s WHERE id = $1", spec.partyTable), partyID,
	).Scan(&partyState)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", fmt.Errorf("%s %d not found", spec.partyTable, partyID)
		}
		return "", "", fmt.Errorf("failed to resolve %s %d: %w", spec.partyTable, partyID, err)
	}

	if kind == KindBill {
		return partyState, companyState, nil
	}
	return companyState, partyState, nil
}

// ── Reads / status ───────────────────────────────────────────────────────────

func (s *documentService) GetDocument(ctx context.Context, kind DocumentKind, documentID int) (*Document, error) {
	spec := specFor(kind)

	d := Document{Kind: kind}
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT d.id, d.%s, d.%s, p.name, d.date::text, d.due_date::text,
		       d.subtotal, d.tax_amount, d.discount_amount, d.tds_amount, d.tcs_amount,
		       d.adjustment, d.round_off, d.grand_total, d.status, d.notes, d.created_at
		FROM %s d
		JOIN %s p ON p.id = d.%s
		WHERE d.id = $1
	`, spec.numberCol, spec.partyCol, spec.table, spec.partyTable, spec.partyCol), documentID).Scan(
		&d.ID, &d.Number, &d.PartyID, &d.PartyName, &d.Date, &d.DueDate,
		&d.Subtotal, &d.TaxAmount, &d.DiscountAmount, &d.TDSAmount, &d.TCSAmount,
		&d.Adjustment, &d.RoundOff, &d.GrandTotal, &d.Status, &d.Notes, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s %d: %w", kind, documentID, ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to fetch %s %d: %w", kind, documentID, err)
	}

	fkCol := strings.TrimSuffix(spec.table, "s") + "_id"
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT l.id, l.%s, l.item_id, i.name, l.quantity, l.rate, l.discount_percent, l.tax_percent, l.amount
		FROM %s l
		JOIN items i ON i.id = l.item_id
		WHERE l.%s = $1
		ORDER BY l.id
	`, fkCol, spec.lineTable, fkCol), documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lines for %s %d: %w", kind, documentID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l DocumentLine
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.ItemID, &l.ItemName,
			&l.Quantity, &l.Rate, &l.DiscountPercent, &l.TaxPercent, &l.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		d.Lines = append(d.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lines: %w", err)
	}
	return &d, nil
}

func (s *documentService) MarkSent(ctx context.Context, kind DocumentKind, documentID int) error {
	spec := specFor(kind)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET status = $1 WHERE id = $2 AND status = $3", spec.table),
		string(StatusSent), documentID, string(StatusDraft),
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s %d sent: %w", kind, documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d is not in Draft status", kind, documentID)
	}
	return nil
}

// mapDuplicateNumber converts a Postgres unique violation on the document
// number index into the domain sentinel.
func mapDuplicateNumber(err error, number string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("number %s: %w", number, ErrDuplicateDocumentNumber)
	}
	return fmt.Errorf("failed to insert document: %w", err)
}
