package vehicle

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized link errors.
var (
	ErrInvalidRange = errors.New("INVALID_RANGE")
	ErrBusy         = errors.New("BUSY")
	ErrUnavailable  = errors.New("UNAVAILABLE")
	ErrInternal     = errors.New("INTERNAL")
)

// TokenMap lists the substrings of a bridge error message that select each code.
type TokenMap struct {
	Range       []string
	Busy        []string
	Unavailable []string
}

// LinkErrorMappings holds the token tables per bridge. Unknown bridges use "generic";
// unmatched messages map to INTERNAL.
var LinkErrorMappings = map[string]TokenMap{
	"mavlink": {
		Range: []string{
			"MAV_RESULT_DENIED",
			"MAV_RESULT_UNSUPPORTED",
			"PWM_OUT_OF_RANGE",
			"CHANNEL_OUT_OF_RANGE",
		},
		Busy: []string{
			"MAV_RESULT_TEMPORARILY_REJECTED",
			"MAV_RESULT_IN_PROGRESS",
			"QUEUE_FULL",
		},
		Unavailable: []string{
			"NO_HEARTBEAT",
			"LINK_LOST",
			"NOT_ARMED",
			"DISCONNECTED",
		},
	},
	"generic": {
		Range: []string{
			"OUT_OF_RANGE",
			"INVALID_RANGE",
			"BAD_VALUE",
		},
		Busy: []string{
			"BUSY",
			"RETRY",
			"BACKOFF",
		},
		Unavailable: []string{
			"UNAVAILABLE",
			"OFFLINE",
			"NOT_READY",
			"TIMEOUT",
			"DEADLINE EXCEEDED",
		},
	},
}

// LinkError carries the normalized code together with the bridge's own error.
type LinkError struct {
	Code     error
	Original error
	Details  any
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%v (link: %v)", e.Code, e.Original)
}

func (e *LinkError) Unwrap() error {
	return e.Code
}

// NormalizeLinkError maps err with the generic table.
func NormalizeLinkError(err error, details any) error {
	return NormalizeLinkErrorFor(err, details, "generic")
}

// NormalizeLinkErrorFor maps err with the table of the named bridge.
func NormalizeLinkErrorFor(err error, details any, bridge string) error {
	if err == nil {
		return nil
	}
	var le *LinkError
	if errors.As(err, &le) {
		return err
	}
	return &LinkError{
		Code:     codeFor(err.Error(), bridge),
		Original: err,
		Details:  details,
	}
}

func codeFor(msg, bridge string) error {
	tokens, ok := LinkErrorMappings[bridge]
	if !ok {
		tokens = LinkErrorMappings["generic"]
	}
	upper := strings.ToUpper(msg)

	for _, t := range tokens.Range {
		if strings.Contains(upper, t) {
			return ErrInvalidRange
		}
	}
	for _, t := range tokens.Busy {
		if strings.Contains(upper, t) {
			return ErrBusy
		}
	}
	for _, t := range tokens.Unavailable {
		if strings.Contains(upper, t) {
			return ErrUnavailable
		}
	}
	return ErrInternal
}
