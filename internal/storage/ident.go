package storage

import (
	"fmt"
	"regexp"
)

var sourceIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateSourceID checks that id can safely name a table and a file.
func ValidateSourceID(id string) error {
	if !sourceIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSource, id)
	}
	return nil
}

// quoteIdent quotes an already validated identifier for SQL.
func quoteIdent(id string) string { return `"` + id + `"` }
