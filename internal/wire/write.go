package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteRequest serializes req to w: the request line, each header as
// `name: value`, a blank line, then the body if not empty.
func WriteRequest(w io.Writer, req *Request) error {
	bw := bufio.NewWriter(w)

	_, _ = bw.WriteString(req.Method + " " + req.Target + " " + req.Version + "\r\n")
	writeHeadersAndBody(bw, req.Headers, req.Body)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return nil
}

// WriteResponse serializes resp to w, exactly as it was received.
func WriteResponse(w io.Writer, resp *Response) error {
	bw := bufio.NewWriter(w)

	_, _ = bw.WriteString(resp.Version + " " + strconv.Itoa(resp.StatusCode))
	if resp.Reason != "" {
		_, _ = bw.WriteString(" " + resp.Reason)
	}
	_, _ = bw.WriteString("\r\n")
	writeHeadersAndBody(bw, resp.Headers, resp.Body)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return nil
}

// bufio.Writer errors are sticky, they are reported by Flush.
func writeHeadersAndBody(bw *bufio.Writer, headers Headers, body []byte) {
	for _, field := range headers {
		_, _ = bw.WriteString(field.Name + ": " + field.Value + "\r\n")
	}
	_, _ = bw.WriteString("\r\n")

	if len(body) > 0 {
		_, _ = bw.Write(body)
	}
}
