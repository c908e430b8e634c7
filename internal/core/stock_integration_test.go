package core_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"books-ledger/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean and seed test DB. IDs restart from 1, so the seed order below
	// fixes customer 1 = Acme (intra-state), customer 2 = Beta (inter-state),
	// vendor 1 = SupplyCo, item 1 = Widget, item 2 = Gadget.
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE payments, invoice_items, bill_items, invoices, bills,
			stock_batches, items, customers, vendors, settings RESTART IDENTITY CASCADE;

		INSERT INTO settings (key, value) VALUES
			('company_state', 'Karnataka'),
			('invoice_prefix', 'INV-'),
			('bill_prefix', 'BILL-'),
			('payment_prefix', 'PAY-');

		INSERT INTO customers (name, state, email) VALUES
			('Acme Traders', 'Karnataka', 'billing@acme.in'),
			('Beta Industries', 'Maharashtra', 'billing@beta.in');

		INSERT INTO vendors (name, state) VALUES
			('SupplyCo', 'Karnataka');

		INSERT INTO items (name, unit, selling_price, purchase_price) VALUES
			('Widget', 'unit', 500, 100),
			('Gadget', 'unit', 1200, 250);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// itemStock fetches the denormalized stock counter for an item.
func itemStock(t *testing.T, ctx context.Context, pool *pgxpool.Pool, itemID int) decimal.Decimal {
	t.Helper()
	var stock decimal.Decimal
	if err := pool.QueryRow(ctx, "SELECT stock_on_hand FROM items WHERE id = $1", itemID).Scan(&stock); err != nil {
		t.Fatalf("Failed to read stock for item %d: %v", itemID, err)
	}
	return stock
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestStockService_ConsumeAcrossBatches(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool, zerolog.Nop())

	// 10 @ 100 bought in January, 5 @ 120 in February.
	if err := svc.AddBatch(ctx, 1, d("10"), d("100"), "2026-01-01", nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	if err := svc.AddBatch(ctx, 1, d("5"), d("120"), "2026-02-01", nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	cogs, err := svc.ConsumeFIFO(ctx, 1, d("12"))
	if err != nil {
		t.Fatalf("ConsumeFIFO failed: %v", err)
	}
	// 10 @ 100 + 2 @ 120
	if !cogs.Equal(d("1240")) {
		t.Errorf("COGS = %s, want 1240", cogs)
	}

	if stock := itemStock(t, ctx, pool, 1); !stock.Equal(d("3")) {
		t.Errorf("stock_on_hand = %s, want 3", stock)
	}

	val, err := svc.Valuation(ctx, 1)
	if err != nil {
		t.Fatalf("Valuation failed: %v", err)
	}
	if !val.Quantity.Equal(d("3")) || !val.TotalValue.Equal(d("360")) {
		t.Errorf("valuation = %s units worth %s, want 3 worth 360", val.Quantity, val.TotalValue)
	}
	if !val.AverageCost.Equal(d("120")) {
		t.Errorf("AverageCost = %s, want 120", val.AverageCost)
	}
}

func TestStockService_ShortfallGoesNegative(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool, zerolog.Nop())

	if err := svc.AddBatch(ctx, 1, d("5"), d("100"), "2026-01-01", nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	// Only the 5 available units are costed; the counter still drops by 8.
	cogs, err := svc.ConsumeFIFO(ctx, 1, d("8"))
	if err != nil {
		t.Fatalf("ConsumeFIFO failed: %v", err)
	}
	if !cogs.Equal(d("500")) {
		t.Errorf("COGS = %s, want 500", cogs)
	}
	if stock := itemStock(t, ctx, pool, 1); !stock.Equal(d("-3")) {
		t.Errorf("stock_on_hand = %s, want -3", stock)
	}
}

func TestStockService_StrictRejectsShortfall(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool, zerolog.Nop())

	if err := svc.AddBatch(ctx, 1, d("5"), d("100"), "2026-01-01", nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	_, err := svc.ConsumeFIFOStrict(ctx, 1, d("8"))
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	// Nothing may have been written.
	if stock := itemStock(t, ctx, pool, 1); !stock.Equal(d("5")) {
		t.Errorf("stock_on_hand = %s, want 5 after rollback", stock)
	}
	var remaining decimal.Decimal
	if err := pool.QueryRow(ctx,
		"SELECT quantity_remaining FROM stock_batches WHERE item_id = 1",
	).Scan(&remaining); err != nil {
		t.Fatalf("Failed to read batch: %v", err)
	}
	if !remaining.Equal(d("5")) {
		t.Errorf("batch remaining = %s, want 5 after rollback", remaining)
	}
}

func TestStockService_ValuationFallsBackToPurchasePrice(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool, zerolog.Nop())

	// Legacy data: a stock counter with no batches behind it.
	if _, err := pool.Exec(ctx, "UPDATE items SET stock_on_hand = 4 WHERE id = 2"); err != nil {
		t.Fatalf("Failed to set legacy stock: %v", err)
	}

	val, err := svc.Valuation(ctx, 2)
	if err != nil {
		t.Fatalf("Valuation failed: %v", err)
	}
	// 4 * purchase price 250
	if !val.TotalValue.Equal(d("1000")) {
		t.Errorf("TotalValue = %s, want 1000", val.TotalValue)
	}
	if !val.Quantity.Equal(d("4")) {
		t.Errorf("Quantity = %s, want 4", val.Quantity)
	}
}

func TestStockService_CorrectStock(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool, zerolog.Nop())

	if err := svc.AddBatch(ctx, 1, d("10"), d("100"), "2026-01-01", nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	// Count came in low: 10 → 6 consumes the difference.
	if err := svc.CorrectStock(ctx, 1, d("10"), d("6"), "2026-03-01"); err != nil {
		t.Fatalf("CorrectStock down failed: %v", err)
	}
	if stock := itemStock(t, ctx, pool, 1); !stock.Equal(d("6")) {
		t.Errorf("stock_on_hand = %s, want 6", stock)
	}

	// Count came in high: 6 → 9 adds a batch at the item's purchase price.
	if err := svc.CorrectStock(ctx, 1, d("6"), d("9"), "2026-03-02"); err != nil {
		t.Fatalf("CorrectStock up failed: %v", err)
	}
	if stock := itemStock(t, ctx, pool, 1); !stock.Equal(d("9")) {
		t.Errorf("stock_on_hand = %s, want 9", stock)
	}
	var cost decimal.Decimal
	if err := pool.QueryRow(ctx,
		"SELECT unit_cost FROM stock_batches WHERE item_id = 1 ORDER BY id DESC LIMIT 1",
	).Scan(&cost); err != nil {
		t.Fatalf("Failed to read correction batch: %v", err)
	}
	if !cost.Equal(d("100")) {
		t.Errorf("correction batch cost = %s, want purchase price 100", cost)
	}
}

func TestStockService_ValuationSummarySkipsEmptyItems(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool, zerolog.Nop())

	if err := svc.AddBatch(ctx, 1, d("2"), d("100"), "2026-01-01", nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	summary, err := svc.ValuationSummary(ctx)
	if err != nil {
		t.Fatalf("ValuationSummary failed: %v", err)
	}
	if len(summary) != 1 {
		t.Fatalf("got %d items in summary, want 1", len(summary))
	}
	if summary[0].ItemID != 1 || !summary[0].TotalValue.Equal(d("200")) {
		t.Errorf("summary[0] = %+v, want item 1 worth 200", summary[0])
	}
}
