package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StockService owns inventory acquisition batches and the FIFO costing that
// drains them. Batches are never deleted, only decremented to zero, so the
// table doubles as an audit trail of acquisitions.
type StockService interface {
	// AddBatch appends an acquisition batch and increments the item's
	// stock_on_hand. Quantity sign is not validated: negative batches are
	// how manual corrections enter the ledger.
	AddBatch(ctx context.Context, itemID int, quantity, unitCost decimal.Decimal, date string, vendorID *int) error

	// ConsumeFIFO drains batches oldest-first and returns the cost of goods
	// sold. stock_on_hand is decremented by the full requested quantity even
	// when batches run out; the shortfall is logged, not an error.
	ConsumeFIFO(ctx context.Context, itemID int, quantity decimal.Decimal) (decimal.Decimal, error)

	// ConsumeFIFOStrict behaves like ConsumeFIFO but rejects the operation
	// with ErrInsufficientStock when live batches cannot cover the request,
	// leaving all state untouched.
	ConsumeFIFOStrict(ctx context.Context, itemID int, quantity decimal.Decimal) (decimal.Decimal, error)

	// Valuation sums remaining quantity × unit cost over the item's live
	// batches. When no batches exist but stock_on_hand is nonzero (imported
	// legacy stock), it falls back to stock_on_hand × purchase_price.
	Valuation(ctx context.Context, itemID int) (*StockValuation, error)

	// ValuationSummary returns the valuation of every item holding stock.
	ValuationSummary(ctx context.Context) ([]StockValuation, error)

	// CorrectStock reconciles an after-the-fact quantity edit: a positive
	// delta enters as a new batch at the item's current purchase price, a
	// negative delta is consumed through the same FIFO path as a sale.
	CorrectStock(ctx context.Context, itemID int, oldQuantity, newQuantity decimal.Decimal, date string) error

	// TX-scoped variants used by DocumentService to keep stock side effects
	// atomic with document writes.
	AddBatchTx(ctx context.Context, tx pgx.Tx, itemID int, quantity, unitCost decimal.Decimal, date string, vendorID *int) error
	ConsumeFIFOTx(ctx context.Context, tx pgx.Tx, itemID int, quantity decimal.Decimal) (decimal.Decimal, error)
}

type stockService struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewStockService(pool *pgxpool.Pool, log zerolog.Logger) StockService {
	return &stockService{pool: pool, log: log.With().Str("component", "stock").Logger()}
}

func (s *stockService) AddBatch(ctx context.Context, itemID int, quantity, unitCost decimal.Decimal, date string, vendorID *int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.AddBatchTx(ctx, tx, itemID, quantity, unitCost, date, vendorID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *stockService) AddBatchTx(ctx context.Context, tx pgx.Tx, itemID int, quantity, unitCost decimal.Decimal, date string, vendorID *int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_batches (item_id, quantity_remaining, unit_cost, acquisition_date, vendor_id)
		VALUES ($1, $2, $3, $4, $5)
	`, itemID, quantity, unitCost, date, vendorID)
	if err != nil {
		return fmt.Errorf("failed to insert stock batch: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"UPDATE items SET stock_on_hand = stock_on_hand + $1 WHERE id = $2",
		quantity, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stock on hand: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", itemID, ErrItemNotFound)
	}
	return nil
}

func (s *stockService) ConsumeFIFO(ctx context.Context, itemID int, quantity decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cogs, err := s.ConsumeFIFOTx(ctx, tx, itemID, quantity)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit consumption: %w", err)
	}
	return cogs, nil
}

func (s *stockService) ConsumeFIFOTx(ctx context.Context, tx pgx.Tx, itemID int, quantity decimal.Decimal) (decimal.Decimal, error) {
	plan, err := s.consume(ctx, tx, itemID, quantity)
	if err != nil {
		return decimal.Zero, err
	}

	if plan.Shortfall.IsPositive() {
		// Deliberate policy: the sale proceeds and stock goes negative.
		// The shortfall carries no cost into COGS because no batch backs it.
		s.log.Warn().
			Int("item_id", itemID).
			Str("requested", quantity.String()).
			Str("shortfall", plan.Shortfall.String()).
			Msg("insufficient stock, consuming anyway")
	}
	return plan.COGS, nil
}

func (s *stockService) ConsumeFIFOStrict(ctx context.Context, itemID int, quantity decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	plan, err := s.consume(ctx, tx, itemID, quantity)
	if err != nil {
		return decimal.Zero, err
	}
	if plan.Shortfall.IsPositive() {
		// Rollback via defer discards the applied mutations.
		return decimal.Zero, fmt.Errorf("item %d short by %s: %w", itemID, plan.Shortfall.String(), ErrInsufficientStock)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit consumption: %w", err)
	}
	return plan.COGS, nil
}

// consume fetches the item's live batches in FIFO order, plans the
// consumption in memory, and applies the planned mutations plus the
// stock_on_hand decrement within the caller's transaction.
func (s *stockService) consume(ctx context.Context, tx pgx.Tx, itemID int, quantity decimal.Decimal) (fifoPlan, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, item_id, quantity_remaining, unit_cost, acquisition_date::text, vendor_id
		FROM stock_batches
		WHERE item_id = $1 AND quantity_remaining > 0
		ORDER BY acquisition_date ASC, id ASC
		FOR UPDATE
	`, itemID)
	if err != nil {
		return fifoPlan{}, fmt.Errorf("failed to fetch batches for item %d: %w", itemID, err)
	}

	var batches []StockBatch
	for rows.Next() {
		var b StockBatch
		if err := rows.Scan(&b.ID, &b.ItemID, &b.QuantityRemaining, &b.UnitCost, &b.AcquisitionDate, &b.VendorID); err != nil {
			rows.Close()
			return fifoPlan{}, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fifoPlan{}, fmt.Errorf("error iterating batches: %w", err)
	}

	plan := planFIFOConsumption(batches, quantity)

	for _, m := range plan.Mutations {
		_, err := tx.Exec(ctx,
			"UPDATE stock_batches SET quantity_remaining = $1 WHERE id = $2",
			m.NewRemaining, m.BatchID,
		)
		if err != nil {
			return fifoPlan{}, fmt.Errorf("failed to update batch %d: %w", m.BatchID, err)
		}
	}

	// Decrement by the requested quantity, not the covered quantity.
	tag, err := tx.Exec(ctx,
		"UPDATE items SET stock_on_hand = stock_on_hand - $1 WHERE id = $2",
		quantity, itemID,
	)
	if err != nil {
		return fifoPlan{}, fmt.Errorf("failed to update stock on hand: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fifoPlan{}, fmt.Errorf("item %d: %w", itemID, ErrItemNotFound)
	}
	return plan, nil
}

func (s *stockService) Valuation(ctx context.Context, itemID int) (*StockValuation, error) {
	var v StockValuation
	var stockOnHand, purchasePrice decimal.Decimal
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, stock_on_hand, purchase_price FROM items WHERE id = $1",
		itemID,
	).Scan(&v.ItemID, &v.ItemName, &stockOnHand, &purchasePrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", itemID, ErrItemNotFound)
		}
		return nil, fmt.Errorf("failed to fetch item %d: %w", itemID, err)
	}

	var batchCount int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(quantity_remaining), 0), COALESCE(SUM(quantity_remaining * unit_cost), 0)
		FROM stock_batches
		WHERE item_id = $1 AND quantity_remaining > 0
	`, itemID).Scan(&batchCount, &v.Quantity, &v.TotalValue)
	if err != nil {
		return nil, fmt.Errorf("failed to sum batches for item %d: %w", itemID, err)
	}

	if batchCount == 0 && !stockOnHand.IsZero() {
		// Imported legacy stock never got batches; value at the master price.
		v.Quantity = stockOnHand
		v.TotalValue = stockOnHand.Mul(purchasePrice)
	}

	if v.Quantity.IsPositive() {
		v.AverageCost = v.TotalValue.Div(v.Quantity).Round(2)
	} else {
		v.AverageCost = decimal.Zero
	}
	v.TotalValue = v.TotalValue.Round(2)
	return &v, nil
}

func (s *stockService) ValuationSummary(ctx context.Context) ([]StockValuation, error) {
	rows, err := s.pool.Query(ctx, "SELECT id FROM items ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	var summary []StockValuation
	for _, id := range ids {
		v, err := s.Valuation(ctx, id)
		if err != nil {
			return nil, err
		}
		if v.Quantity.IsZero() {
			continue
		}
		summary = append(summary, *v)
	}
	return summary, nil
}

func (s *stockService) CorrectStock(ctx context.Context, itemID int, oldQuantity, newQuantity decimal.Decimal, date string) error {
	delta := newQuantity.Sub(oldQuantity)
	if delta.IsZero() {
		return nil
	}

	if delta.IsPositive() {
		var purchasePrice decimal.Decimal
		err := s.pool.QueryRow(ctx, "SELECT purchase_price FROM items WHERE id = $1", itemID).Scan(&purchasePrice)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("item %d: %w", itemID, ErrItemNotFound)
			}
			return fmt.Errorf("failed to fetch item %d: %w", itemID, err)
		}
		return s.AddBatch(ctx, itemID, delta, purchasePrice, date, nil)
	}

	_, err := s.ConsumeFIFO(ctx, itemID, delta.Neg())
	return err
}
