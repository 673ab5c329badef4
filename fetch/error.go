package fetch

import (
	"errors"
	"fmt"
)

// error codes carried by FetchError
const (
	CodeFailed    = "FETCH_FAILED"    // transport level failure
	CodeTimeout   = "FETCH_TIMEOUT"   // deadline hit while connecting or reading
	CodeStatus    = "FETCH_STATUS"    // upstream answered non 2xx
	CodeTooLarge  = "FETCH_TOO_LARGE" // body exceeds the configured cap
	CodeMalformed = "FETCH_MALFORMED" // body could not be decoded or parsed
	CodeInvalid   = "FETCH_INVALID"   // bad request url
)

// ErrMalformed is the cause of every CodeMalformed error built via Malformed.
var ErrMalformed = errors.New("malformed upstream response")

// FetchError reports an unreachable or misbehaving upstream.
type FetchError struct {
	Code   string
	URL    string
	Status int // http status, 0 when no response was received
	Cause  error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "[fetch] [" + e.Code + "] [" + e.URL + "]"
	if e.Status != 0 {
		msg += fmt.Sprintf(" [status %d]", e.Status)
	}
	if e.Cause != nil {
		msg += " " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Malformed wraps a decode or parse failure of an upstream body.
func Malformed(url string, cause error) *FetchError {
	if cause == nil {
		cause = ErrMalformed
	} else {
		cause = errors.Join(ErrMalformed, cause)
	}
	return &FetchError{Code: CodeMalformed, URL: url, Cause: cause}
}
