package chat

import (
	"fmt"
	"strconv"
)

// DestinationID identifies a chat channel. Discord channel IDs are
// snowflakes, i.e. non-zero unsigned 64-bit integers.
type DestinationID uint64

// String returns the decimal form used by the platform API.
func (d DestinationID) String() string {
	return strconv.FormatUint(uint64(d), 10)
}

// DestinationError reports a destination identifier that failed validation.
type DestinationError struct {
	Value string
	Err   error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("invalid destination %q: %v", e.Value, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }

// ParseDestinationID validates and parses a configured destination. The value
// must be plain decimal digits; surrounding whitespace is rejected.
func ParseDestinationID(s string) (DestinationID, error) {
	if s == "" {
		return 0, &DestinationError{Value: s, Err: fmt.Errorf("empty value")}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &DestinationError{Value: s, Err: err}
	}
	if n == 0 {
		return 0, &DestinationError{Value: s, Err: fmt.Errorf("zero is not a valid id")}
	}
	return DestinationID(n), nil
}
