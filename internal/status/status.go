// Package status defines the observable status codes the named-pipe
// subsystem returns across its request surface, modeled on NTSTATUS the
// way go-winio's ntStatus models it for the real Windows kernel.
package status

import "fmt"

// Status is an NTSTATUS-like result code. Zero is success; negative-style
// "failure" codes are just distinct non-zero values here since this
// subsystem never talks to a real NT kernel.
type Status int32

// Error implements the error interface so a Status can be returned and
// compared (via errors.Is) like any other Go error.
func (s Status) Error() string {
	if msg, ok := messages[s]; ok {
		return msg
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Ok reports whether s represents successful completion.
func (s Status) Ok() bool { return s == Success }

const (
	Success Status = iota
	Pending
	PipeListening
	PipeConnected
	PipeDisconnected
	PipeBroken
	NoDataDetected
	PipeNotAvailable
	InstanceNotAvailable
	AccessDenied
	InvalidParameter
	InvalidHandle
	ObjectTypeMismatch
	ObjectNameInvalid
	ObjectPathSyntaxBad
	ObjectNameExists
	NotSupported
	BufferOverflow
	Alerted
	IoTimeout
	NoMemory
	InfoLengthMismatch
)

var messages = map[Status]string{
	Success:              "success",
	Pending:              "pending",
	PipeListening:        "pipe is listening",
	PipeConnected:        "pipe is connected",
	PipeDisconnected:     "pipe disconnected",
	PipeBroken:           "pipe broken",
	NoDataDetected:       "no data detected",
	PipeNotAvailable:     "pipe not available",
	InstanceNotAvailable: "instance not available",
	AccessDenied:         "access denied",
	InvalidParameter:     "invalid parameter",
	InvalidHandle:        "invalid handle",
	ObjectTypeMismatch:   "object type mismatch",
	ObjectNameInvalid:    "object name invalid",
	ObjectPathSyntaxBad:  "object path syntax bad",
	ObjectNameExists:     "object name exists",
	NotSupported:         "not supported",
	BufferOverflow:       "buffer overflow",
	Alerted:              "alerted",
	IoTimeout:            "i/o timeout",
	NoMemory:             "no memory",
	InfoLengthMismatch:   "info length mismatch",
}
