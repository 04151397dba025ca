package worker

import (
	"context"
	"errors"

	"github.com/hyperjump/bertlib/internal/protocol"
)

var (
	// ErrUninitialized is returned when no worker has been started.
	ErrUninitialized = errors.New("worker not initialized")
	// ErrSpawn is returned when the worker executable cannot be started.
	ErrSpawn = errors.New("failed to spawn worker")
	// ErrAlreadyRunning is returned by Start under PolicyReject while a worker is alive.
	ErrAlreadyRunning = errors.New("worker already running")
	// ErrTransport is returned when writing to or reading from the worker fails.
	ErrTransport = errors.New("worker transport failure")
)

// Kind classifies an error returned by a Handle or an encode call.
type Kind int

const (
	KindOK Kind = iota
	KindUninitialized
	KindSpawn
	KindTransport
	KindProtocol
	KindInvalidInput
	KindCancelled
	KindAlreadyRunning
	KindUnknown
)

var kindNames = map[Kind]string{
	KindOK:             "ok",
	KindUninitialized:  "uninitialized",
	KindSpawn:          "spawn",
	KindTransport:      "transport",
	KindProtocol:       "protocol",
	KindInvalidInput:   "invalid_input",
	KindCancelled:      "cancelled",
	KindAlreadyRunning: "already_running",
	KindUnknown:        "unknown",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// KindOf maps err onto the error taxonomy. A nil error is KindOK.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrUninitialized):
		return KindUninitialized
	case errors.Is(err, ErrSpawn):
		return KindSpawn
	case errors.Is(err, ErrAlreadyRunning):
		return KindAlreadyRunning
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, protocol.ErrInvalidSentence), errors.Is(err, protocol.ErrShortBuffer):
		return KindInvalidInput
	case errors.Is(err, protocol.ErrTruncated), errors.Is(err, protocol.ErrMalformedToken):
		return KindProtocol
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindUnknown
	}
}
