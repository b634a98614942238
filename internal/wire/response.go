package wire

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadResponse reads the reply to a request made with requestMethod.
//
// The body is read until the peer closes the connection. When present,
// Content-Length must match the number of bytes received.
func ReadResponse(r io.Reader, requestMethod string) (*Response, error) {
	buf := make([]byte, HeaderBufferSize)
	read := 0

	for {
		if read == len(buf) {
			return nil, ErrHeaderBufferOverflow
		}

		n, err := r.Read(buf[read:])
		read += n

		if n > 0 {
			resp, headLen, parseErr := parseResponseHead(buf[:read])
			if parseErr != nil {
				return nil, parseErr
			}
			if headLen > 0 {
				if !HasBody(requestMethod, resp.StatusCode) {
					return resp, nil
				}

				// The reader already returned EOF, there is nothing more to read.
				src := r
				if err != nil {
					src = eofReader{err}
				}

				resp.Body, err = readResponseBody(src, resp.Headers, buf[headLen:read])
				if err != nil {
					return nil, err
				}
				return resp, nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: peer hung up after %d bytes", ErrIncompleteResponse, read)
			}
			return nil, fmt.Errorf("%w: %w", ErrConnection, err)
		}
	}
}

func parseResponseHead(buf []byte) (*Response, int, error) {
	resp := &Response{}

	headers, headLen, err := parseHead(buf, ErrMalformedResponse, resp.parseStatusLine)
	if err != nil || headLen == 0 {
		return nil, 0, err
	}

	resp.Headers = headers
	return resp, headLen, nil
}

func (r *Response) parseStatusLine(line string) error {
	version, rest, _ := strings.Cut(line, " ")
	code, reason, _ := strings.Cut(rest, " ")

	if !isValidVersion(version) || len(code) != 3 || !isFieldValue(reason) {
		return fmt.Errorf("%w: invalid status line %q", ErrMalformedResponse, line)
	}

	status, err := strconv.Atoi(code)
	if err != nil || status < 100 {
		return fmt.Errorf("%w: invalid status code %q", ErrMalformedResponse, code)
	}

	r.Version = version
	r.StatusCode = status
	r.Reason = reason
	return nil
}

// readResponseBody reads the body until the peer closes the connection. With
// a Content-Length, any byte past the declared length is an error, however
// the stream was split.
func readResponseBody(r io.Reader, headers Headers, buffered []byte) ([]byte, error) {
	length, declared, err := contentLength(headers)
	if err != nil {
		return nil, err
	}

	tooMany := func(received int) error {
		return fmt.Errorf(
			"%w: declared %d bytes, received at least %d",
			ErrContentLengthMismatch,
			length,
			received,
		)
	}

	if declared && len(buffered) > length {
		return nil, tooMany(len(buffered))
	}

	capacity := len(buffered)
	if declared {
		capacity = length
	}
	body := make([]byte, len(buffered), capacity)
	copy(body, buffered)

	chunk := make([]byte, bodyChunkSize)
	for {
		n, err := r.Read(chunk)

		if n > 0 {
			if declared && len(body)+n > length {
				return nil, tooMany(len(body) + n)
			}
			if len(body)+n > MaxBodySize {
				return nil, ErrBodyTooLarge
			}
			body = append(body, chunk[:n]...)
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %w", ErrConnection, err)
			}
			if declared && len(body) < length {
				return nil, fmt.Errorf(
					"%w: declared %d bytes, peer hung up after %d",
					ErrContentLengthMismatch,
					length,
					len(body),
				)
			}
			return body, nil
		}
	}
}

type eofReader struct{ err error }

func (e eofReader) Read([]byte) (int, error) {
	return 0, e.err
}
