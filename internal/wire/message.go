// Package wire frames the HTTP/1.1-shaped text protocol spoken between
// clients, the proxy and the origin. It reads complete messages out of
// partial socket reads and serializes them back to bytes.
package wire

import (
	"slices"
	"strings"
)

const (
	// HeaderBufferSize is the capacity of the buffer a header block must fit in.
	HeaderBufferSize = 8192
	MaxHeaders       = 64
	MaxBodySize      = 10_000_000

	// MethodGet is the only method clients may use.
	MethodGet  = "GET"
	MethodHead = "HEAD"

	Version10 = "HTTP/1.0"
	Version11 = "HTTP/1.1"

	bodyChunkSize = 512
)

type Header struct {
	Name  string
	Value string
}

// Headers keeps header fields in the order they were received, with their
// original case and duplicates.
type Headers []Header

// Get returns the value of the first field matching name case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, field := range h {
		if strings.EqualFold(field.Name, name) {
			return field.Value, true
		}
	}
	return "", false
}

func (h Headers) Values(name string) []string {
	var values []string
	for _, field := range h {
		if strings.EqualFold(field.Name, name) {
			values = append(values, field.Value)
		}
	}
	return values
}

func (h Headers) Clone() Headers {
	return slices.Clone(h)
}

type Request struct {
	Method  string
	Target  string
	Version string
	Headers Headers
	Body    []byte
}

type Response struct {
	Version    string
	StatusCode int
	Reason     string
	Headers    Headers
	Body       []byte
}

func (r *Response) Clone() *Response {
	return &Response{
		r.Version,
		r.StatusCode,
		r.Reason,
		r.Headers.Clone(),
		slices.Clone(r.Body),
	}
}

// Size approximates the number of bytes the response occupies on the wire.
func (r *Response) Size() int {
	size := len(r.Version) + len(r.Reason) + 8
	for _, field := range r.Headers {
		size += len(field.Name) + len(field.Value) + 4
	}
	return size + 2 + len(r.Body)
}

// HasBody reports whether a response with the given status code, answering a
// request with the given method, may carry a body.
func HasBody(requestMethod string, statusCode int) bool {
	return requestMethod != MethodHead &&
		statusCode >= 200 &&
		statusCode != 204 &&
		statusCode != 304
}
