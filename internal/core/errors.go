package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks missing credentials, precision mismatches and
	// unsupported venue or pair names. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrNetwork marks endpoint timeouts and connection failures.
	ErrNetwork = errors.New("network error")
	// ErrProtocolShape marks a response whose structure does not match what the
	// venue is known to return. Never retried.
	ErrProtocolShape = errors.New("unexpected response shape")
	// ErrUnsupported marks a case with no defined handling.
	ErrUnsupported = errors.New("unsupported")
	// ErrInvalidOrder marks a malformed order intent or order type.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrOrderNotFound marks a venue reply saying the order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInsufficientBalance marks a venue reply rejecting an order for funds.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func Shapef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolShape, fmt.Sprintf(format, args...))
}

func InvalidPairError(pair string) error {
	return Configf("pair %q must have exactly two underscore separated parts", pair)
}

// VenueError carries a non-success reply from a venue verbatim.
type VenueError struct {
	Venue   string
	Code    string
	Message string
	Payload string
}

func (e VenueError) Error() string {
	var b strings.Builder
	b.WriteString(e.Venue)
	b.WriteString(" error")
	if e.Code != "" {
		b.WriteString(" ")
		b.WriteString(e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// ClassifyVenueError joins a VenueError with the sentinel kinds matched by its
// message so callers can use errors.Is and errors.As on the result.
func ClassifyVenueError(venueErr VenueError, kinds map[string]error) error {
	msg := strings.ToLower(strings.TrimSpace(venueErr.Message))
	chain := []error{venueErr}
	for needle, kind := range kinds {
		if needle != "" && strings.Contains(msg, needle) && !containsErr(chain, kind) {
			chain = append(chain, kind)
		}
	}
	if len(chain) == 1 {
		return venueErr
	}
	return errors.Join(chain...)
}

func AsVenueError(err error) (VenueError, bool) {
	var venueErr VenueError
	if err == nil || !errors.As(err, &venueErr) {
		return VenueError{}, false
	}
	return venueErr, true
}

func containsErr(list []error, target error) bool {
	for _, err := range list {
		if err == target {
			return true
		}
	}
	return false
}

// PartialSuccessError reports a broadcast transaction whose follow-up lookup
// failed. The transaction id is proof of submission and must not be dropped.
type PartialSuccessError struct {
	TxID string
	Err  error
}

func (e *PartialSuccessError) Error() string {
	return fmt.Sprintf("transaction %s submitted but not resolved: %v", e.TxID, e.Err)
}

func (e *PartialSuccessError) Unwrap() error {
	return e.Err
}

func AsPartialSuccess(err error) (*PartialSuccessError, bool) {
	var partial *PartialSuccessError
	if err == nil || !errors.As(err, &partial) {
		return nil, false
	}
	return partial, true
}
