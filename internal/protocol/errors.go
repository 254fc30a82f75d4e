package protocol

import (
	"errors"
	"fmt"
)

// DecodeError marks a malformed payload. It is fatal to the single message
// only: the caller drops the frame and keeps draining the channel.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s at offset %d", e.Reason, e.Offset)
}

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

var (
	// ErrUnknownChannel is returned for frames addressed to a channel id
	// outside the defined set.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrProtocolMismatch refuses a handshake whose protocol id differs.
	ErrProtocolMismatch = errors.New("protocol id mismatch")

	// ErrServerFull refuses a handshake when the server is at max clients.
	ErrServerFull = errors.New("server full")
)
