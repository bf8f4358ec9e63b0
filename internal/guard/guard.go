// Package guard enforces read-only semantics on untrusted query text before
// it reaches either backing store.
//
// The check is a conservative lexical filter, not a SQL parser: it rejects
// any text containing a mutation or DDL clause keyword as a substring,
// case-insensitively. That means it can over-reject (a keyword inside a
// string literal or identifier) and under-reject (vendor-specific spellings
// of destructive operations). The tradeoff is deliberate; a real statement
// parser can be layered behind Classify without changing its signature.
package guard

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotReadOnly is returned when the query text contains a blocked clause.
// Callers should treat it as a validation failure and refuse the text before
// creating any ledger state.
var ErrNotReadOnly = errors.New("only read-only queries are allowed")

// blockedClauses are scanned as substrings of the lowercased query text.
// The trailing space mirrors clause syntax ("drop table", "insert into")
// and keeps column names like "dropped_at" from tripping the filter.
var blockedClauses = []string{
	"drop ",
	"delete ",
	"truncate ",
	"alter ",
	"insert ",
	"update ",
}

// Classify inspects candidate query text and returns nil when the text is
// acceptable for execution, or an error wrapping ErrNotReadOnly naming the
// offending clause.
func Classify(query string) error {
	lower := strings.ToLower(query)
	for _, kw := range blockedClauses {
		if strings.Contains(lower, kw) {
			return fmt.Errorf("%w: contains %q", ErrNotReadOnly, strings.TrimSpace(kw))
		}
	}
	return nil
}
