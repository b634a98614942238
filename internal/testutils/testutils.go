package testutils

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

func TestLogger(tb testing.TB) *zerolog.Logger {
	tb.Helper()

	logger := zerolog.New(zerolog.NewConsoleWriter(zerolog.ConsoleTestWriter(tb)))
	return &logger
}

// NewResponse builds a 200 response carrying body and a Date header set to
// date.
func NewResponse(date time.Time, body string) *wire.Response {
	return &wire.Response{
		Version:    wire.Version11,
		StatusCode: http.StatusOK,
		Reason:     "OK",
		Headers: wire.Headers{
			{Name: "Date", Value: date.UTC().Format(http.TimeFormat)},
			{Name: "Content-Length", Value: strconv.Itoa(len(body))},
		},
		Body: []byte(body),
	}
}

// Origin is a TCP server standing in for the origin in tests. It counts the
// connections it accepts.
type Origin struct {
	Addr string

	listener    net.Listener
	connections atomic.Int64
	wg          sync.WaitGroup
}

// NewOrigin starts an origin calling handle for every connection. The
// connection is closed once handle returns.
func NewOrigin(tb testing.TB, handle func(conn net.Conn)) *Origin {
	tb.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)

	origin := &Origin{Addr: listener.Addr().String(), listener: listener}
	origin.wg.Add(1)
	go origin.serve(handle)

	tb.Cleanup(func() {
		_ = listener.Close()
		origin.wg.Wait()
	})
	return origin
}

// NewRespondingOrigin starts an origin answering every request with the
// response returned by respond.
func NewRespondingOrigin(tb testing.TB, respond func(req *wire.Request) *wire.Response) *Origin {
	tb.Helper()

	return NewOrigin(tb, func(conn net.Conn) {
		req, err := wire.ReadRequest(conn)
		if err != nil {
			return
		}
		_ = wire.WriteResponse(conn, respond(req))
	})
}

func (o *Origin) Connections() int64 {
	return o.connections.Load()
}

func (o *Origin) serve(handle func(conn net.Conn)) {
	defer o.wg.Done()

	for {
		conn, err := o.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		o.connections.Add(1)
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			defer conn.Close() //nolint:errcheck
			handle(conn)
		}()
	}
}

// UnusedAddress returns a local address nothing listens on.
func UnusedAddress(tb testing.TB) string {
	tb.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)
	addr := listener.Addr().String()
	require.NoError(tb, listener.Close())
	return addr
}
