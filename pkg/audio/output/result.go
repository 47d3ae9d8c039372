// ABOUTME: Platform result codes for stream operations
// ABOUTME: Result implements error so codes survive wrapping
package output

import (
	"errors"
	"fmt"
)

// Result is a platform status code. Negative values are errors.
type Result int32

const (
	ResultOK             Result = 0
	ErrorBase            Result = -900
	ErrorDisconnected    Result = -899
	ErrorIllegalArgument Result = -898
	ErrorIncompatible    Result = -897
	ErrorInternal        Result = -896
	ErrorInvalidState    Result = -895
	ErrorUnexpectedState Result = -894
	ErrorUnexpectedValue Result = -893
	ErrorInvalidHandle   Result = -892
	ErrorInvalidQuery    Result = -891
	ErrorUnimplemented   Result = -890
	ErrorUnavailable     Result = -889
	ErrorNoFreeHandles   Result = -888
	ErrorNoMemory        Result = -887
	ErrorNull            Result = -886
	ErrorTimeout         Result = -885
	ErrorWouldBlock      Result = -884
	ErrorInvalidOrder    Result = -883
	ErrorOutOfRange      Result = -882
	ErrorNoService       Result = -881
)

var resultText = map[Result]string{
	ResultOK:             "OK",
	ErrorBase:            "base",
	ErrorDisconnected:    "disconnected",
	ErrorIllegalArgument: "illegal argument",
	ErrorIncompatible:    "incompatible",
	ErrorInternal:        "internal error",
	ErrorInvalidState:    "invalid state",
	ErrorUnexpectedState: "unexpected state",
	ErrorUnexpectedValue: "unexpected value",
	ErrorInvalidHandle:   "invalid handle",
	ErrorInvalidQuery:    "invalid query",
	ErrorUnimplemented:   "unimplemented",
	ErrorUnavailable:     "unavailable",
	ErrorNoFreeHandles:   "no free handles",
	ErrorNoMemory:        "no memory",
	ErrorNull:            "null",
	ErrorTimeout:         "timeout",
	ErrorWouldBlock:      "would block",
	ErrorInvalidOrder:    "invalid order",
	ErrorOutOfRange:      "out of range",
	ErrorNoService:       "no service",
}

func (r Result) Error() string {
	if s, ok := resultText[r]; ok {
		return fmt.Sprintf("%s (%d)", s, int32(r))
	}
	return fmt.Sprintf("result %d", int32(r))
}

// ResultOf extracts the platform code carried by err. Errors without a
// code map to ErrorInternal.
func ResultOf(err error) Result {
	if err == nil {
		return ResultOK
	}
	var r Result
	if errors.As(err, &r) {
		return r
	}
	return ErrorInternal
}
