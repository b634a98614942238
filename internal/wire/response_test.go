package wire_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestReadResponseWithContentLength(t *testing.T) {
	t.Parallel()

	data := "HTTP/1.1 200 OK\r\n" +
		"Content-Length: 5\r\n" +
		"Date: Thu, 15 Oct 2026 10:00:00 GMT\r\n" +
		"\r\n" +
		"hello"

	for name, reader := range map[string]io.Reader{
		"single-read":   strings.NewReader(data),
		"one-byte":      iotest.OneByteReader(strings.NewReader(data)),
		"data-with-eof": iotest.DataErrReader(strings.NewReader(data)),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			resp, err := wire.ReadResponse(reader, wire.MethodGet)
			require.NoError(t, err)
			assert.Equal(
				t,
				&wire.Response{
					Version:    "HTTP/1.1",
					StatusCode: 200,
					Reason:     "OK",
					Headers: wire.Headers{
						{"Content-Length", "5"},
						{"Date", "Thu, 15 Oct 2026 10:00:00 GMT"},
					},
					Body: []byte("hello"),
				},
				resp,
			)
		})
	}
}

func TestReadResponseWaitsForEOFAfterContentLength(t *testing.T) {
	t.Parallel()

	reader, writer := io.Pipe()
	go func() {
		_, _ = writer.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\n"))
		_, _ = writer.Write([]byte("abc"))
		_, _ = writer.Write([]byte("def"))
		_ = writer.Close()
	}()

	_, err := wire.ReadResponse(reader, wire.MethodGet)
	require.ErrorIs(t, err, wire.ErrContentLengthMismatch)
}

func TestReadResponseWithoutContentLengthReadsUntilEOF(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("0123456789", 200)
	resp, err := wire.ReadResponse(
		iotest.HalfReader(strings.NewReader("HTTP/1.0 200 OK\n\n"+body)),
		wire.MethodGet,
	)
	require.NoError(t, err)
	assert.Equal(t, body, string(resp.Body))
	assert.Equal(t, "HTTP/1.0", resp.Version)
}

func TestReadResponseWithoutBody(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		method string
		data   string
	}{
		{"no-content", wire.MethodGet, "HTTP/1.1 204 No Content\r\n\r\nignored"},
		{"not-modified", wire.MethodGet, "HTTP/1.1 304 Not Modified\r\nContent-Length: 10\r\n\r\n"},
		{"informational", wire.MethodGet, "HTTP/1.1 100 Continue\r\n\r\n"},
		{"head", wire.MethodHead, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp, err := wire.ReadResponse(strings.NewReader(tc.data), tc.method)
			require.NoError(t, err)
			assert.Empty(t, resp.Body)
		})
	}
}

func TestReadResponseAcceptsMissingReason(t *testing.T) {
	t.Parallel()

	resp, err := wire.ReadResponse(
		strings.NewReader("HTTP/1.1 200\r\nContent-Length: 0\r\n\r\n"),
		wire.MethodGet,
	)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, resp.Reason)
}

func TestReadResponseRejectsInvalidResponses(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		reader   io.Reader
		expected error
	}{
		{
			"bad-status",
			strings.NewReader("HTTP/1.1 abc OK\r\n\r\n"),
			wire.ErrMalformedResponse,
		},
		{
			"bad-version",
			strings.NewReader("HTTX/1.1 200 OK\r\n\r\n"),
			wire.ErrMalformedResponse,
		},
		{
			"bad-header",
			strings.NewReader("HTTP/1.1 200 OK\r\n: empty\r\n\r\n"),
			wire.ErrMalformedResponse,
		},
		{
			"incomplete",
			strings.NewReader("HTTP/1.1 200 OK\r\nContent-"),
			wire.ErrIncompleteResponse,
		},
		{
			"oversized-header",
			strings.NewReader("HTTP/1.1 200 OK\r\nX: " + strings.Repeat("a", wire.HeaderBufferSize)),
			wire.ErrHeaderBufferOverflow,
		},
		{
			"invalid-length",
			strings.NewReader("HTTP/1.1 200 OK\r\nContent-Length: 1.5\r\n\r\n"),
			wire.ErrInvalidLengthHeader,
		},
		{
			"premature-hang-up",
			strings.NewReader("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhello"),
			wire.ErrContentLengthMismatch,
		},
		{
			"too-many-bytes-buffered",
			strings.NewReader("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhello"),
			wire.ErrContentLengthMismatch,
		},
		{
			"too-many-bytes-afterwards",
			io.MultiReader(
				strings.NewReader("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n"),
				strings.NewReader("hello"),
			),
			wire.ErrContentLengthMismatch,
		},
		{
			"too-many-bytes-one-by-one",
			iotest.OneByteReader(
				strings.NewReader("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhelloEXTRA"),
			),
			wire.ErrContentLengthMismatch,
		},
		{
			"declared-too-large",
			strings.NewReader("HTTP/1.1 200 OK\r\nContent-Length: 10000001\r\n\r\n"),
			wire.ErrBodyTooLarge,
		},
		{
			"sent-too-large",
			io.MultiReader(
				strings.NewReader("HTTP/1.1 200 OK\r\n\r\n"),
				io.LimitReader(zeroReader{}, wire.MaxBodySize+1),
			),
			wire.ErrBodyTooLarge,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := wire.ReadResponse(tc.reader, wire.MethodGet)
			require.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestReadResponseAcceptsBodyOfMaximumSize(t *testing.T) {
	t.Parallel()

	resp, err := wire.ReadResponse(
		io.MultiReader(
			strings.NewReader("HTTP/1.1 200 OK\r\n\r\n"),
			io.LimitReader(zeroReader{}, wire.MaxBodySize),
		),
		wire.MethodGet,
	)
	require.NoError(t, err)
	assert.Len(t, resp.Body, wire.MaxBodySize)
	assert.True(t, bytes.Equal(make([]byte, wire.MaxBodySize), resp.Body))
}
