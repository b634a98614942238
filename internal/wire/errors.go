package wire

import (
	"errors"
	"fmt"
)

var (
	ErrConnection            = errors.New("connection error")
	ErrMalformedRequest      = errors.New("malformed request")
	ErrMalformedResponse     = errors.New("malformed response")
	ErrIncompleteRequest     = errors.New("incomplete request")
	ErrIncompleteResponse    = errors.New("incomplete response")
	ErrHeaderBufferOverflow  = fmt.Errorf("header block larger than %d bytes", HeaderBufferSize)
	ErrInvalidLengthHeader   = errors.New("invalid Content-Length header")
	ErrContentLengthMismatch = errors.New("body does not match Content-Length")
	ErrBodyTooLarge          = fmt.Errorf("body larger than %d bytes", MaxBodySize)
	ErrUnsupportedMethod     = errors.New("unsupported method, only " + MethodGet + " is allowed")
)

// IncompleteRequestError is returned when the client hangs up before sending
// a complete header block.
type IncompleteRequestError struct {
	BytesRead int
}

func (e *IncompleteRequestError) Error() string {
	return fmt.Sprintf("%s: peer hung up after %d bytes", ErrIncompleteRequest, e.BytesRead)
}

func (e *IncompleteRequestError) Unwrap() error {
	return ErrIncompleteRequest
}
