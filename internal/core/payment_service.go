package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PaymentService records payments, allocates them against outstanding
// documents, manages the unapplied-credit pool per party, and drives the
// Sent ↔ Paid status transitions. Every operation runs in one transaction
// spanning all row inserts/updates plus any status writes.
type PaymentService interface {
	// RecordPayment settles money against the given allocations. When
	// UseCredits is set, each allocation is first covered from the party's
	// credit rows oldest-first (reassigning or splitting rows); the
	// remainder becomes a new cash row. Money left over beyond all
	// allocations becomes a new credit row. Returns the shared payment
	// number of every row written.
	RecordPayment(ctx context.Context, input PaymentInput) (string, error)

	// CreditBalance sums the party's unapplied-credit rows.
	CreditBalance(ctx context.Context, kind PartyKind, partyID int) (decimal.Decimal, error)

	// DeletePayment removes every row sharing the payment number and
	// recomputes the status of every document that lost a row, from the
	// rows that remain.
	DeletePayment(ctx context.Context, paymentNumber string) error

	// UpdatePaymentAmount changes one row's amount and recomputes the
	// linked document's status. Status is always recomputed, including
	// Paid → Sent reversals.
	UpdatePaymentAmount(ctx context.Context, paymentID int, newAmount decimal.Decimal) error

	// UnpaidDocuments lists the party's documents that still carry a
	// balance above the settlement tolerance, oldest first.
	UnpaidDocuments(ctx context.Context, kind PartyKind, partyID int) ([]UnpaidDocument, error)
}

type paymentService struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPaymentService(pool *pgxpool.Pool, log zerolog.Logger) PaymentService {
	return &paymentService{pool: pool, log: log.With().Str("component", "payments").Logger()}
}

// partySpec maps a counterparty kind onto the payment and document columns
// for that side. Customer payments settle invoices; vendor payments settle
// bills. Everything below is written once against this mapping.
type partySpec struct {
	docTable string
	docFK    string // payments column referencing the document
	partyFK  string // payments column referencing the party
}

func partySpecFor(kind PartyKind) partySpec {
	if kind == PartyVendor {
		return partySpec{docTable: "bills", docFK: "bill_id", partyFK: "vendor_id"}
	}
	return partySpec{docTable: "invoices", docFK: "invoice_id", partyFK: "customer_id"}
}

func (s *paymentService) RecordPayment(ctx context.Context, input PaymentInput) (string, error) {
	spec := partySpecFor(input.Kind)

	if input.AmountReceived.IsNegative() {
		return "", fmt.Errorf("amount received cannot be negative, got %s", input.AmountReceived)
	}

	date := input.Date
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	method := input.Method
	if method == "" {
		method = "Cash"
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Drop non-positive allocations up front, matching the submission rules.
	var allocations []AllocationInput
	totalAllocated := decimal.Zero
	for _, a := range input.Allocations {
		if a.Amount.IsPositive() {
			allocations = append(allocations, a)
			totalAllocated = totalAllocated.Add(a.Amount)
		}
	}

	// Credit rows are locked for the whole operation when in use.
	var credits []PaymentRecord
	creditBalance := decimal.Zero
	if input.UseCredits {
		credits, err = s.fetchCreditRowsTx(ctx, tx, spec, input.PartyID)
		if err != nil {
			return "", err
		}
		for _, c := range credits {
			creditBalance = creditBalance.Add(c.Amount)
		}
	}

	available := input.AmountReceived.Add(creditBalance)
	if totalAllocated.GreaterThan(available.Add(settlementTolerance)) {
		return "", fmt.Errorf("allocated %s against %s available: %w",
			totalAllocated, available, ErrAllocationExceedsReceived)
	}

	paymentNumber, err := nextNumberTx(ctx, tx, kindSpec{
		table: "payments", numberCol: "payment_number",
		prefixKey: "payment_prefix", prefixDflt: "PAY-",
	})
	if err != nil {
		return "", err
	}

	// Charges attach to the first cash-backed row of the submission, wherever
	// it falls: an explicit flag, never the allocation index.
	chargesApplied := false
	cashRemaining := input.AmountReceived

	// Paid totals are accumulated in memory across the operation so rows
	// written moments ago count toward the status check.
	storedPaid := map[int]decimal.Decimal{}
	appliedNow := map[int]decimal.Decimal{}

	for _, alloc := range allocations {
		var grandTotal decimal.Decimal
		var status string
		err = tx.QueryRow(ctx,
			fmt.Sprintf("SELECT grand_total, status FROM %s WHERE id = $1 AND %s = $2 FOR UPDATE",
				spec.docTable, spec.partyFK),
			alloc.DocumentID, input.PartyID,
		).Scan(&grandTotal, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", fmt.Errorf("%s %d for party %d: %w", spec.docTable, alloc.DocumentID, input.PartyID, ErrDocumentNotFound)
			}
			return "", fmt.Errorf("failed to lock %s %d: %w", spec.docTable, alloc.DocumentID, err)
		}

		if _, seen := storedPaid[alloc.DocumentID]; !seen {
			paid, err := s.sumPaidTx(ctx, tx, spec, alloc.DocumentID)
			if err != nil {
				return "", err
			}
			storedPaid[alloc.DocumentID] = paid
		}

		need := alloc.Amount

		if input.UseCredits && len(credits) > 0 {
			plan := planCreditConsumption(credits, need)
			credits, err = s.applyCreditPlanTx(ctx, tx, spec, plan, credits, alloc.DocumentID)
			if err != nil {
				return "", err
			}
			need = need.Sub(plan.Covered)
		}

		if need.IsPositive() {
			cashRemaining = cashRemaining.Sub(need)
			charges := paymentCharges{}
			if !chargesApplied {
				charges = paymentCharges{input.BankCharges, input.TaxDeducted, input.TaxAccount}
				chargesApplied = true
			}
			if err := s.insertRowTx(ctx, tx, spec, input, paymentNumber, date, method, &alloc.DocumentID, need, charges); err != nil {
				return "", err
			}
		}

		appliedNow[alloc.DocumentID] = appliedNow[alloc.DocumentID].Add(alloc.Amount)

		totalPaid := storedPaid[alloc.DocumentID].Add(appliedNow[alloc.DocumentID])
		if totalPaid.GreaterThanOrEqual(grandTotal.Sub(settlementTolerance)) && status != string(StatusPaid) {
			_, err = tx.Exec(ctx,
				fmt.Sprintf("UPDATE %s SET status = $1 WHERE id = $2", spec.docTable),
				string(StatusPaid), alloc.DocumentID,
			)
			if err != nil {
				return "", fmt.Errorf("failed to mark %s %d paid: %w", spec.docTable, alloc.DocumentID, err)
			}
		}
	}

	// Unallocated money becomes credit held against the party.
	if cashRemaining.GreaterThan(settlementTolerance) {
		charges := paymentCharges{}
		if !chargesApplied {
			charges = paymentCharges{input.BankCharges, input.TaxDeducted, input.TaxAccount}
			chargesApplied = true
		}
		if err := s.insertRowTx(ctx, tx, spec, input, paymentNumber, date, method, nil, cashRemaining, charges); err != nil {
			return "", err
		}
		s.log.Info().
			Str("payment_number", paymentNumber).
			Str("credit", cashRemaining.String()).
			Msg("unallocated amount held as credit")
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit payment: %w", err)
	}
	return paymentNumber, nil
}

type paymentCharges struct {
	BankCharges decimal.Decimal
	TaxDeducted decimal.Decimal
	TaxAccount  string
}

// fetchCreditRowsTx loads and locks the party's unapplied-credit rows in
// consumption order: oldest payment date first, insertion order as tiebreak.
func (s *paymentService) fetchCreditRowsTx(ctx context.Context, tx pgx.Tx, spec partySpec, partyID int) ([]PaymentRecord, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT id, payment_number, customer_id, vendor_id, amount, date::text,
		       method, reference, notes, deposit_to, bank_charges, tax_deducted, tax_account
		FROM payments
		WHERE %s = $1 AND invoice_id IS NULL AND bill_id IS NULL AND amount > 0
		ORDER BY date ASC, id ASC
		FOR UPDATE
	`, spec.partyFK), partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch credit rows: %w", err)
	}
	defer rows.Close()

	var credits []PaymentRecord
	for rows.Next() {
		var r PaymentRecord
		if err := rows.Scan(&r.ID, &r.PaymentNumber, &r.CustomerID, &r.VendorID, &r.Amount, &r.Date,
			&r.Method, &r.Reference, &r.Notes, &r.DepositTo, &r.BankCharges, &r.TaxDeducted, &r.TaxAccount); err != nil {
			return nil, fmt.Errorf("failed to scan credit row: %w", err)
		}
		credits = append(credits, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credit rows: %w", err)
	}
	return credits, nil
}

// applyCreditPlanTx executes a credit plan against the store: whole rows are
// reassigned to the document; a split shrinks the source row, reassigns it,
// and inserts a sibling credit row copying every descriptive field. Returns
// the surviving credit rows for subsequent allocations in the same operation.
func (s *paymentService) applyCreditPlanTx(ctx context.Context, tx pgx.Tx, spec partySpec,
	plan creditPlan, credits []PaymentRecord, documentID int) ([]PaymentRecord, error) {

	consumed := map[int]bool{}
	replacement := map[int]PaymentRecord{}

	for _, action := range plan.Actions {
		if !action.Split {
			_, err := tx.Exec(ctx,
				fmt.Sprintf("UPDATE payments SET %s = $1 WHERE id = $2", spec.docFK),
				documentID, action.Row.ID,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to reassign credit row %d: %w", action.Row.ID, err)
			}
			consumed[action.Row.ID] = true
			continue
		}

		_, err := tx.Exec(ctx,
			fmt.Sprintf("UPDATE payments SET amount = $1, %s = $2 WHERE id = $3", spec.docFK),
			action.Consume, documentID, action.Row.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to split credit row %d: %w", action.Row.ID, err)
		}

		var leftoverID int
		err = tx.QueryRow(ctx, fmt.Sprintf(`
			INSERT INTO payments (payment_number, %s, amount, date, method, reference, notes,
			                      deposit_to, bank_charges, tax_deducted, tax_account)
			SELECT payment_number, %s, $1, date, method, reference, notes,
			       deposit_to, bank_charges, tax_deducted, tax_account
			FROM payments WHERE id = $2
			RETURNING id
		`, spec.partyFK, spec.partyFK), action.Leftover, action.Row.ID).Scan(&leftoverID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert leftover credit row: %w", err)
		}

		leftover := action.Row
		leftover.ID = leftoverID
		leftover.Amount = action.Leftover
		consumed[action.Row.ID] = true
		replacement[action.Row.ID] = leftover
	}

	var remaining []PaymentRecord
	for _, c := range credits {
		if r, ok := replacement[c.ID]; ok {
			remaining = append(remaining, r)
			continue
		}
		if !consumed[c.ID] {
			remaining = append(remaining, c)
		}
	}
	return remaining, nil
}

func (s *paymentService) insertRowTx(ctx context.Context, tx pgx.Tx, spec partySpec, input PaymentInput,
	paymentNumber, date, method string, documentID *int, amount decimal.Decimal, charges paymentCharges) error {

	_, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO payments (payment_number, %s, %s, amount, date, method, reference, notes,
		                      deposit_to, bank_charges, tax_deducted, tax_account)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, spec.docFK, spec.partyFK),
		paymentNumber, documentID, input.PartyID, amount, date, method,
		input.Reference, input.Notes, input.DepositTo,
		charges.BankCharges, charges.TaxDeducted, charges.TaxAccount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment row: %w", err)
	}
	return nil
}

func (s *paymentService) sumPaidTx(ctx context.Context, tx pgx.Tx, spec partySpec, documentID int) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := tx.QueryRow(ctx,
		fmt.Sprintf("SELECT COALESCE(SUM(amount), 0) FROM payments WHERE %s = $1", spec.docFK),
		documentID,
	).Scan(&paid)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments for %s %d: %w", spec.docTable, documentID, err)
	}
	return paid, nil
}

func (s *paymentService) CreditBalance(ctx context.Context, kind PartyKind, partyID int) (decimal.Decimal, error) {
	spec := partySpecFor(kind)
	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE %s = $1 AND invoice_id IS NULL AND bill_id IS NULL
	`, spec.partyFK), partyID).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum credits for %s %d: %w", kind, partyID, err)
	}
	return balance, nil
}

func (s *paymentService) DeletePayment(ctx context.Context, paymentNumber string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		"SELECT invoice_id, bill_id FROM payments WHERE payment_number = $1 FOR UPDATE",
		paymentNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to fetch payment %s: %w", paymentNumber, err)
	}

	affectedInvoices := map[int]bool{}
	affectedBills := map[int]bool{}
	found := false
	for rows.Next() {
		found = true
		var invoiceID, billID *int
		if err := rows.Scan(&invoiceID, &billID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan payment row: %w", err)
		}
		if invoiceID != nil {
			affectedInvoices[*invoiceID] = true
		}
		if billID != nil {
			affectedBills[*billID] = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating payment rows: %w", err)
	}
	if !found {
		return fmt.Errorf("payment %s: %w", paymentNumber, ErrPaymentNotFound)
	}

	_, err = tx.Exec(ctx, "DELETE FROM payments WHERE payment_number = $1", paymentNumber)
	if err != nil {
		return fmt.Errorf("failed to delete payment %s: %w", paymentNumber, err)
	}

	// A delete may unwind several status flips at once; every affected
	// document is recomputed from the rows that remain, never assumed.
	for invoiceID := range affectedInvoices {
		if err := recomputeStatusTx(ctx, tx, partySpecFor(PartyCustomer), invoiceID); err != nil {
			return err
		}
	}
	for billID := range affectedBills {
		if err := recomputeStatusTx(ctx, tx, partySpecFor(PartyVendor), billID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payment deletion: %w", err)
	}
	return nil
}

func (s *paymentService) UpdatePaymentAmount(ctx context.Context, paymentID int, newAmount decimal.Decimal) error {
	if newAmount.IsNegative() {
		return fmt.Errorf("payment amount cannot be negative, got %s", newAmount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var invoiceID, billID *int
	err = tx.QueryRow(ctx,
		"SELECT invoice_id, bill_id FROM payments WHERE id = $1 FOR UPDATE",
		paymentID,
	).Scan(&invoiceID, &billID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("payment row %d: %w", paymentID, ErrPaymentNotFound)
		}
		return fmt.Errorf("failed to lock payment row %d: %w", paymentID, err)
	}

	_, err = tx.Exec(ctx, "UPDATE payments SET amount = $1 WHERE id = $2", newAmount, paymentID)
	if err != nil {
		return fmt.Errorf("failed to update payment row %d: %w", paymentID, err)
	}

	if invoiceID != nil {
		if err := recomputeStatusTx(ctx, tx, partySpecFor(PartyCustomer), *invoiceID); err != nil {
			return err
		}
	}
	if billID != nil {
		if err := recomputeStatusTx(ctx, tx, partySpecFor(PartyVendor), *billID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payment amount update: %w", err)
	}
	return nil
}

// recomputeStatusTx re-derives a document's status from its remaining linked
// payments: Paid iff the sum still clears the grand total within tolerance,
// else Sent.
func recomputeStatusTx(ctx context.Context, tx pgx.Tx, spec partySpec, documentID int) error {
	var grandTotal, paid decimal.Decimal
	err := tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT d.grand_total, COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.%s = d.id), 0)
		FROM %s d
		WHERE d.id = $1
		FOR UPDATE OF d
	`, spec.docFK, spec.docTable), documentID).Scan(&grandTotal, &paid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s %d: %w", spec.docTable, documentID, ErrDocumentNotFound)
		}
		return fmt.Errorf("failed to read %s %d: %w", spec.docTable, documentID, err)
	}

	status := StatusSent
	if paid.GreaterThanOrEqual(grandTotal.Sub(settlementTolerance)) {
		status = StatusPaid
	}
	_, err = tx.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET status = $1 WHERE id = $2", spec.docTable),
		string(status), documentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s %d status: %w", spec.docTable, documentID, err)
	}
	return nil
}

func (s *paymentService) UnpaidDocuments(ctx context.Context, kind PartyKind, partyID int) ([]UnpaidDocument, error) {
	spec := partySpecFor(kind)
	docKind := KindInvoice
	if kind == PartyVendor {
		docKind = KindBill
	}
	docSpec := specFor(docKind)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT d.id, d.%s, d.%s, p.name, d.date::text, d.due_date::text,
		       d.subtotal, d.tax_amount, d.discount_amount, d.tds_amount, d.tcs_amount,
		       d.adjustment, d.round_off, d.grand_total, d.status, d.notes, d.created_at,
		       COALESCE((SELECT SUM(pm.amount) FROM payments pm WHERE pm.%s = d.id), 0) AS amount_paid
		FROM %s d
		JOIN %s p ON p.id = d.%s
		WHERE d.%s = $1 AND d.status != 'Paid'
		ORDER BY d.date ASC, d.id ASC
	`, docSpec.numberCol, docSpec.partyCol, spec.docFK,
		docSpec.table, docSpec.partyTable, docSpec.partyCol, docSpec.partyCol), partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpaid %s: %w", spec.docTable, err)
	}
	defer rows.Close()

	var result []UnpaidDocument
	for rows.Next() {
		d := Document{Kind: docKind}
		var amountPaid decimal.Decimal
		if err := rows.Scan(
			&d.ID, &d.Number, &d.PartyID, &d.PartyName, &d.Date, &d.DueDate,
			&d.Subtotal, &d.TaxAmount, &d.DiscountAmount, &d.TDSAmount, &d.TCSAmount,
			&d.Adjustment, &d.RoundOff, &d.GrandTotal, &d.Status, &d.Notes, &d.CreatedAt,
			&amountPaid,
		); err != nil {
			return nil, fmt.Errorf("failed to scan unpaid document: %w", err)
		}

		balance := d.GrandTotal.Sub(amountPaid)
		if balance.GreaterThan(settlementTolerance) {
			result = append(result, UnpaidDocument{Document: d, AmountPaid: amountPaid, BalanceDue: balance})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unpaid documents: %w", err)
	}
	return result, nil
}
