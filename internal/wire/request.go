package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadRequest reads a request from r. The whole accumulated buffer is parsed
// again after every read until a complete header block is found.
//
// If the request declares a Content-Length, the body is read until complete.
// Otherwise the body is whatever followed the header block in the buffer.
func ReadRequest(r io.Reader) (*Request, error) {
	buf := make([]byte, HeaderBufferSize)
	read := 0

	for {
		if read == len(buf) {
			return nil, ErrHeaderBufferOverflow
		}

		n, err := r.Read(buf[read:])
		read += n

		if n > 0 {
			req, headLen, parseErr := parseRequestHead(buf[:read])
			if parseErr != nil {
				return nil, parseErr
			}
			if headLen > 0 {
				req.Body, err = readRequestBody(r, req.Headers, buf[headLen:read])
				if err != nil {
					return nil, err
				}
				return req, nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &IncompleteRequestError{read}
			}
			return nil, fmt.Errorf("%w: %w", ErrConnection, err)
		}
	}
}

func parseRequestHead(buf []byte) (*Request, int, error) {
	req := &Request{}

	headers, headLen, err := parseHead(buf, ErrMalformedRequest, req.parseRequestLine)
	if err != nil || headLen == 0 {
		return nil, 0, err
	}

	req.Headers = headers
	return req, headLen, nil
}

func (r *Request) parseRequestLine(line string) error {
	method, rest, ok := strings.Cut(line, " ")
	if !ok || !isToken(method) {
		return fmt.Errorf("%w: invalid request line %q", ErrMalformedRequest, line)
	}

	target, version, ok := strings.Cut(rest, " ")
	if !ok || !isRequestTarget(target) || !isValidVersion(version) {
		return fmt.Errorf("%w: invalid request line %q", ErrMalformedRequest, line)
	}

	if method != MethodGet {
		return fmt.Errorf("%w: got %s", ErrUnsupportedMethod, method)
	}

	r.Method = method
	r.Target = target
	r.Version = version
	return nil
}

func readRequestBody(r io.Reader, headers Headers, buffered []byte) ([]byte, error) {
	length, declared, err := contentLength(headers)
	if err != nil {
		return nil, err
	}

	if !declared {
		return append([]byte(nil), buffered...), nil
	}

	if len(buffered) > length {
		return nil, fmt.Errorf(
			"%w: declared %d bytes, received %d",
			ErrContentLengthMismatch,
			length,
			len(buffered),
		)
	}

	// The buffer grows with the bytes received, not with the declared length.
	body := bytes.NewBuffer(append([]byte(nil), buffered...))
	if _, err := io.CopyN(body, r, int64(length-len(buffered))); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf(
				"%w: declared %d bytes, peer hung up after %d",
				ErrContentLengthMismatch,
				length,
				body.Len(),
			)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	return body.Bytes(), nil
}
