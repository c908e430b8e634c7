package core_test

import (
	"context"
	"testing"

	"books-ledger/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func setupDocumentTest(t *testing.T) (*pgxpool.Pool, core.StockService, core.DocumentService, context.Context) {
	t.Helper()
	pool := setupTestDB(t)
	stock := core.NewStockService(pool, zerolog.Nop())
	docs := core.NewDocumentService(pool, stock)
	return pool, stock, docs, context.Background()
}

func TestDocumentService_CreateInvoice(t *testing.T) {
	pool, stock, docs, ctx := setupDocumentTest(t)
	defer pool.Close()

	if err := stock.AddBatch(ctx, 1, d("20"), d("100"), "2026-01-01", nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	// Customer 1 is intra-state: 2 × 500 at 18% → 1000 + 180.
	doc, err := docs.CreateDocument(ctx, core.KindInvoice, core.DocumentInput{
		PartyID: 1,
		Date:    "2026-03-01",
		Lines: []core.LineInput{
			{ItemID: 1, Quantity: d("2"), Rate: d("500"), TaxPercent: d("18")},
		},
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	if doc.Number != "INV-0001" {
		t.Errorf("Number = %s, want INV-0001", doc.Number)
	}
	if doc.Status != core.StatusDraft {
		t.Errorf("Status = %s, want Draft", doc.Status)
	}
	if !doc.Subtotal.Equal(d("1000")) || !doc.TaxAmount.Equal(d("180")) || !doc.GrandTotal.Equal(d("1180")) {
		t.Errorf("totals = %s/%s/%s, want 1000/180/1180", doc.Subtotal, doc.TaxAmount, doc.GrandTotal)
	}
	if len(doc.Lines) != 1 || doc.Lines[0].ItemName != "Widget" {
		t.Fatalf("lines = %+v, want one Widget line", doc.Lines)
	}
	if !doc.Lines[0].Amount.Equal(d("1180")) {
		t.Errorf("line amount = %s, want 1180", doc.Lines[0].Amount)
	}

	// Stock drained inside the same transaction.
	if stockNow := itemStock(t, ctx, pool, 1); !stockNow.Equal(d("18")) {
		t.Errorf("stock_on_hand = %s, want 18", stockNow)
	}
}

func TestDocumentService_CreateInvoiceInterState(t *testing.T) {
	pool, _, docs, ctx := setupDocumentTest(t)
	defer pool.Close()

	// Customer 2 is in Maharashtra, so the 18% lands entirely as IGST; the
	// totals are unchanged either way.
	doc, err := docs.CreateDocument(ctx, core.KindInvoice, core.DocumentInput{
		PartyID: 2,
		Date:    "2026-03-01",
		Lines: []core.LineInput{
			{ItemID: 1, Quantity: d("1"), Rate: d("1000"), TaxPercent: d("18")},
		},
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if !doc.TaxAmount.Equal(d("180")) || !doc.GrandTotal.Equal(d("1180")) {
		t.Errorf("tax/grand = %s/%s, want 180/1180", doc.TaxAmount, doc.GrandTotal)
	}
}

func TestDocumentService_CreateBillAddsStock(t *testing.T) {
	pool, _, docs, ctx := setupDocumentTest(t)
	defer pool.Close()

	doc, err := docs.CreateDocument(ctx, core.KindBill, core.DocumentInput{
		PartyID: 1,
		Date:    "2026-03-05",
		Lines: []core.LineInput{
			{ItemID: 2, Quantity: d("4"), Rate: d("250"), TaxPercent: d("18")},
		},
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	if doc.Number != "BILL-0001" {
		t.Errorf("Number = %s, want BILL-0001", doc.Number)
	}
	if stockNow := itemStock(t, ctx, pool, 2); !stockNow.Equal(d("4")) {
		t.Errorf("stock_on_hand = %s, want 4", stockNow)
	}

	// The purchase creates a batch costed at the line rate, traceable to the vendor.
	var cost decimal.Decimal
	var vendorID *int
	if err := pool.QueryRow(ctx,
		"SELECT unit_cost, vendor_id FROM stock_batches WHERE item_id = 2",
	).Scan(&cost, &vendorID); err != nil {
		t.Fatalf("Failed to read batch: %v", err)
	}
	if !cost.Equal(d("250")) {
		t.Errorf("batch cost = %s, want 250", cost)
	}
	if vendorID == nil || *vendorID != 1 {
		t.Errorf("batch vendor = %v, want 1", vendorID)
	}
}

func TestDocumentService_NumberingSkipsLegacySuffixes(t *testing.T) {
	pool, _, docs, ctx := setupDocumentTest(t)
	defer pool.Close()

	// Legacy rows: a gap and a non-numeric suffix.
	_, err := pool.Exec(ctx, `
		INSERT INTO invoices (invoice_number, customer_id, date) VALUES
		('INV-0007', 1, '2025-04-01'),
		('INV-OLD',  1, '2025-04-02')
	`)
	if err != nil {
		t.Fatalf("Failed to insert legacy invoices: %v", err)
	}

	next, err := docs.NextDocumentNumber(ctx, core.KindInvoice)
	if err != nil {
		t.Fatalf("NextDocumentNumber failed: %v", err)
	}
	if next != "INV-0008" {
		t.Errorf("next number = %s, want INV-0008", next)
	}
}

func TestDocumentService_UpdateInvoiceReturnsStock(t *testing.T) {
	pool, stock, docs, ctx := setupDocumentTest(t)
	defer pool.Close()

	if err := stock.AddBatch(ctx, 1, d("20"), d("100"), "2026-01-01", nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	doc, err := docs.CreateDocument(ctx, core.KindInvoice, core.DocumentInput{
		PartyID: 1,
		Date:    "2026-03-01",
		Lines: []core.LineInput{
			{ItemID: 1, Quantity: d("5"), Rate: d("500"), TaxPercent: d("18")},
		},
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if stockNow := itemStock(t, ctx, pool, 1); !stockNow.Equal(d("15")) {
		t.Fatalf("stock_on_hand = %s after create, want 15", stockNow)
	}

	// Quantity drops 5 → 2: three units come back as a batch at purchase price.
	updated, err := docs.UpdateDocument(ctx, core.KindInvoice, doc.ID, core.DocumentInput{
		PartyID: 1,
		Date:    "2026-03-01",
		Lines: []core.LineInput{
			{ItemID: 1, Quantity: d("2"), Rate: d("500"), TaxPercent: d("18")},
		},
	})
	if err != nil {
		t.Fatalf("UpdateDocument failed: %v", err)
	}

	if stockNow := itemStock(t, ctx, pool, 1); !stockNow.Equal(d("18")) {
		t.Errorf("stock_on_hand = %s after update, want 18", stockNow)
	}
	if !updated.GrandTotal.Equal(d("1180")) {
		t.Errorf("GrandTotal = %s, want 1180", updated.GrandTotal)
	}
	// Number survives the edit.
	if updated.Number != doc.Number {
		t.Errorf("Number changed on update: %s → %s", doc.Number, updated.Number)
	}

	var cost decimal.Decimal
	if err := pool.QueryRow(ctx,
		"SELECT unit_cost FROM stock_batches WHERE item_id = 1 ORDER BY id DESC LIMIT 1",
	).Scan(&cost); err != nil {
		t.Fatalf("Failed to read return batch: %v", err)
	}
	if !cost.Equal(d("100")) {
		t.Errorf("return batch cost = %s, want purchase price 100", cost)
	}
}

func TestDocumentService_MarkSent(t *testing.T) {
	pool, _, docs, ctx := setupDocumentTest(t)
	defer pool.Close()

	doc, err := docs.CreateDocument(ctx, core.KindInvoice, core.DocumentInput{
		PartyID: 1,
		Date:    "2026-03-01",
		Lines: []core.LineInput{
			{ItemID: 1, Quantity: d("1"), Rate: d("500")},
		},
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	if err := docs.MarkSent(ctx, core.KindInvoice, doc.ID); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	got, err := docs.GetDocument(ctx, core.KindInvoice, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Status != core.StatusSent {
		t.Errorf("Status = %s, want Sent", got.Status)
	}

	// Only Draft documents can be sent.
	if err := docs.MarkSent(ctx, core.KindInvoice, doc.ID); err == nil {
		t.Error("second MarkSent succeeded, want error")
	}
}
