package config

import (
	"os"
	"strings"
)

// StrictReceivingConflictCheck rejects a receiving submission whose
// remaining-quantity snapshot no longer matches the stored order, instead of
// letting the last writer win.
//
// Set via env:
// - STRICT_RECEIVING_CONFLICT_CHECK=true
func StrictReceivingConflictCheck() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_RECEIVING_CONFLICT_CHECK")))
	if v == "" {
		// Default on: two concurrent receiving sessions against the same
		// purchase order would otherwise under- or over-count receipt.
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// GuardedStockDecrement applies the transfer manager's optimistic on-hand
// decrement only when the submitter's cache version still matches the stored
// one; a stale optimistic write is discarded and the next catalog sync wins.
//
// Set via env:
// - GUARDED_STOCK_DECREMENT=false to fall back to last-writer-wins
func GuardedStockDecrement() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("GUARDED_STOCK_DECREMENT")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
