package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"books-ledger/internal/app"
	"books-ledger/internal/core"
	"books-ledger/internal/db"
	"books-ledger/internal/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer pool.Close()

	stock := core.NewStockService(pool, log)
	documents := core.NewDocumentService(pool, stock)
	payments := core.NewPaymentService(pool, log)
	reports := core.NewReportingService(pool)
	svc := app.NewAppService(pool, documents, payments, stock, reports)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "valuation":
		result, err := svc.GetValuationSummary(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("valuation failed")
		}
		printJSON(log, result)

	case "stock-add":
		if len(os.Args) < 5 {
			log.Fatal().Msg("usage: app stock-add <item-id> <quantity> <unit-cost> [date]")
		}
		itemID := mustInt(log, os.Args[2])
		qty := mustDecimal(log, os.Args[3])
		cost := mustDecimal(log, os.Args[4])
		date := ""
		if len(os.Args) > 5 {
			date = os.Args[5]
		}
		if err := svc.AddStock(ctx, itemID, qty, cost, date, nil); err != nil {
			log.Fatal().Err(err).Msg("stock-add failed")
		}
		fmt.Println("Batch recorded.")

	case "stock-consume":
		if len(os.Args) < 4 {
			log.Fatal().Msg("usage: app stock-consume <item-id> <quantity>")
		}
		itemID := mustInt(log, os.Args[2])
		qty := mustDecimal(log, os.Args[3])
		cogs, err := svc.ConsumeStock(ctx, itemID, qty)
		if err != nil {
			log.Fatal().Err(err).Msg("stock-consume failed")
		}
		fmt.Printf("COGS: %s\n", cogs.StringFixed(2))

	case "stock-correct":
		if len(os.Args) < 4 {
			log.Fatal().Msg("usage: app stock-correct <item-id> <counted-quantity>")
		}
		itemID := mustInt(log, os.Args[2])
		counted := mustDecimal(log, os.Args[3])
		if err := svc.CorrectStock(ctx, itemID, counted); err != nil {
			log.Fatal().Err(err).Msg("stock-correct failed")
		}
		fmt.Println("Stock corrected.")

	case "unpaid":
		if len(os.Args) < 4 {
			log.Fatal().Msg("usage: app unpaid <invoice|bill> <party-id>")
		}
		kind := mustKind(log, os.Args[2])
		partyID := mustInt(log, os.Args[3])
		result, err := svc.ListUnpaidDocuments(ctx, kind, partyID)
		if err != nil {
			log.Fatal().Err(err).Msg("unpaid failed")
		}
		printJSON(log, result)

	case "credits":
		if len(os.Args) < 4 {
			log.Fatal().Msg("usage: app credits <customer|vendor> <party-id>")
		}
		var partyKind core.PartyKind
		switch os.Args[2] {
		case "customer":
			partyKind = core.PartyCustomer
		case "vendor":
			partyKind = core.PartyVendor
		default:
			log.Fatal().Str("kind", os.Args[2]).Msg("party kind must be customer or vendor")
		}
		partyID := mustInt(log, os.Args[3])
		balance, err := svc.GetCreditBalance(ctx, partyKind, partyID)
		if err != nil {
			log.Fatal().Err(err).Msg("credits failed")
		}
		fmt.Printf("Credit balance: %s\n", balance.StringFixed(2))

	case "outstanding":
		if len(os.Args) < 3 {
			log.Fatal().Msg("usage: app outstanding <invoice|bill>")
		}
		kind := mustKind(log, os.Args[2])
		result, err := svc.ListOutstandingDocuments(ctx, kind)
		if err != nil {
			log.Fatal().Err(err).Msg("outstanding failed")
		}
		printJSON(log, result)

	case "sales-report":
		if len(os.Args) < 4 {
			log.Fatal().Msg("usage: app sales-report <from> <to>")
		}
		result, err := svc.GetSalesReport(ctx, os.Args[2], os.Args[3])
		if err != nil {
			log.Fatal().Err(err).Msg("sales-report failed")
		}
		printJSON(log, result)

	case "purchase-report":
		if len(os.Args) < 4 {
			log.Fatal().Msg("usage: app purchase-report <from> <to>")
		}
		result, err := svc.GetPurchaseReport(ctx, os.Args[2], os.Args[3])
		if err != nil {
			log.Fatal().Err(err).Msg("purchase-report failed")
		}
		printJSON(log, result)

	case "tax-summary":
		if len(os.Args) < 4 {
			log.Fatal().Msg("usage: app tax-summary <from> <to>")
		}
		result, err := svc.GetTaxSummary(ctx, os.Args[2], os.Args[3])
		if err != nil {
			log.Fatal().Err(err).Msg("tax-summary failed")
		}
		printJSON(log, result)

	case "delete-payment":
		if len(os.Args) < 3 {
			log.Fatal().Msg("usage: app delete-payment <payment-number>")
		}
		if err := svc.DeletePayment(ctx, os.Args[2]); err != nil {
			log.Fatal().Err(err).Msg("delete-payment failed")
		}
		fmt.Println("Payment deleted.")

	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: app <command> [args]

Commands:
  valuation                               batch-backed stock valuation for all items
  stock-add <item> <qty> <cost> [date]    record a purchase batch
  stock-consume <item> <qty>              consume stock FIFO, print COGS
  stock-correct <item> <counted-qty>      adjust stock to a physical count
  unpaid <invoice|bill> <party-id>        open documents for a party
  outstanding <invoice|bill>              all open documents of a kind
  credits <customer|vendor> <party-id>    unapplied credit balance
  sales-report <from> <to>                invoices in a date range
  purchase-report <from> <to>             bills in a date range
  tax-summary <from> <to>                 output vs input tax
  delete-payment <payment-number>         remove a payment event`)
}

func printJSON(log zerolog.Logger, v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("failed to encode output")
	}
}

func mustInt(log zerolog.Logger, s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatal().Str("arg", s).Msg("expected an integer")
	}
	return n
}

func mustDecimal(log zerolog.Logger, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatal().Str("arg", s).Msg("expected a number")
	}
	return d
}

func mustKind(log zerolog.Logger, s string) core.DocumentKind {
	switch s {
	case "invoice":
		return core.KindInvoice
	case "bill":
		return core.KindBill
	}
	log.Fatal().Str("arg", s).Msg("document kind must be invoice or bill")
	return ""
}
