package chainindex

import "fmt"

// mustInvariant panics with a formatted message when cond is false. Used
// exactly where spec.md §7 calls for "programmer/data error -> terminate":
// a missing record that should exist, or a corruption signal such as a
// receipts/transactions length mismatch. Never used for benign not-found,
// which callers express as (T, bool) or (*T, error) instead.
func mustInvariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
