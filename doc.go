// Package invoicing provides a subscription invoice generation, repair,
// and void engine for Go applications.
//
// Invoicing is designed as a library, not a service. Import it directly
// into your Go application. It provides:
//
//   - Full-ledger invoice recomputation from a billing fact stream
//   - Retroactive change handling via linked repair adjustments
//   - Invoice void with automatic credit restoration
//   - A derived account credit ledger (cba_adj items, never a counter)
//   - Per-account serialized reconciliation with a background dispatcher
//   - Pluggable hooks for commit, void, park, and credit events
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/invoicing"
//	    "github.com/xraph/invoicing/store/memory"
//	)
//
//	eng := invoicing.New(memory.New(),
//	    invoicing.WithFactSource(facts),
//	    invoicing.WithPricer(pricer),
//	)
//
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Accounts anchor billing: every invoice, item, and credit movement
// belongs to exactly one account, and all reconciliation for an account
// is serialized through its lock.
//
// Reconciliation recomputes what the account should have been billed
// from the full fact stream, compares it with what was committed, and
// commits exactly the difference:
//
//	inv, err := eng.Reconcile(ctx, accountID, targetDate)
//
// A second pass with unchanged facts commits nothing. A retroactive
// change (backdated cancel, plan change) produces repair adjustments
// that negate the invalidated items; committed items are never edited.
//
// Voiding flips a committed invoice out of the ledger without touching
// its items:
//
//	err := eng.VoidInvoice(ctx, invoiceID, "billed in error")
//
// The next reconciliation sees the voided items as gone and re-invoices
// the affected periods.
//
// # Money
//
// All monetary calculations use integer arithmetic in the smallest
// currency unit (cents for USD, pence for GBP). Proration divides with
// half-up rounding via shopspring/decimal.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID
//	item_01h455vb4pex5vsknk084sn02q  // Item ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package invoicing
