// Package inventory implements the stock and sales ledger.
//
// A Ledger owns two kinds of records: Goods, keyed by name, and Aggregates,
// string-valued running totals keyed by a fixed string. Every Ledger
// operation runs inside one Store transaction, so the stock debit and the
// sales credit of a sale commit together or not at all.
//
// Two Store implementations are provided:
//   - MemoryStore: in-process, for tests and single-node development.
//   - PostgresStore: durable, using row locks for per-good serialisation.
//
// Payloads arriving from the HTTP boundary are checked by ValidateStockPayload
// and ValidateSalePayload before they reach the Ledger.
package inventory
