package ruledoc

import (
	"errors"
	"strings"
)

var (
	errBadKeyword  = errors.New("empty keyword or keyword with whitespace")
	errEmptyDomain = errors.New("empty domain")
)

// ValidationError rejects bad category input.
type ValidationError struct {
	Category string
	Entry    string // offending entry, empty for category level problems
	Reason   string
	Cause    error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("[ruledoc] [" + e.Category + "] " + e.Reason)
	if e.Entry != "" {
		b.WriteString(" [" + e.Entry + "]")
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Cause }
