package upstream_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/cacheproxy/internal/metrics"
	"github.com/benjaminschubert/cacheproxy/internal/testutils"
	"github.com/benjaminschubert/cacheproxy/internal/upstream"
	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

type recorder struct {
	lock            sync.Mutex
	outcomes        []string
	bytesDownloaded int64
}

func (r *recorder) RecordUpstream(outcome string, _ time.Duration) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorder) AddBytesDownloaded(n int64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.bytesDownloaded += n
}

func (r *recorder) snapshot() ([]string, int64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.outcomes...), r.bytesDownloaded
}

func newRequest(body string) *wire.Request {
	return &wire.Request{
		Method:  wire.MethodGet,
		Target:  "/",
		Version: wire.Version11,
		Headers: wire.Headers{
			{Name: "Host", Value: "example.com"},
			{Name: "Content-Length", Value: "5"},
		},
		Body: []byte(body),
	}
}

func TestForwardReturnsOriginResponse(t *testing.T) {
	t.Parallel()

	expected := testutils.NewResponse(time.Now(), "world")
	received := make(chan *wire.Request, 1)
	origin := testutils.NewRespondingOrigin(t, func(req *wire.Request) *wire.Response {
		received <- req
		return expected
	})

	rec := &recorder{}
	forwarder := upstream.New(origin.Addr, upstream.Options{Timeout: 5 * time.Second}, rec)

	resp, err := forwarder.Forward(context.Background(), newRequest("hello"), testutils.TestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, expected, resp)
	assert.Equal(t, newRequest("hello"), <-received)

	serialized := bytes.NewBuffer(nil)
	require.NoError(t, wire.WriteResponse(serialized, expected))

	outcomes, downloaded := rec.snapshot()
	assert.Equal(t, []string{metrics.OutcomeSuccess}, outcomes)
	assert.Equal(t, int64(serialized.Len()), downloaded)
	assert.Equal(t, int64(1), origin.Connections())
}

func TestForwardRejectsNonSuccessStatus(t *testing.T) {
	t.Parallel()

	origin := testutils.NewRespondingOrigin(t, func(*wire.Request) *wire.Response {
		resp := testutils.NewResponse(time.Now(), "not found")
		resp.StatusCode = http.StatusNotFound
		resp.Reason = "Not Found"
		return resp
	})

	forwarder := upstream.New(
		origin.Addr,
		upstream.Options{Timeout: 5 * time.Second, Attempts: 3, RetryDelay: time.Millisecond},
		nil,
	)

	resp, err := forwarder.Forward(context.Background(), newRequest("hello"), testutils.TestLogger(t))
	require.ErrorIs(t, err, upstream.ErrUpstreamStatus)
	assert.Nil(t, resp)

	var statusErr *upstream.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	// Not retried
	assert.Equal(t, int64(1), origin.Connections())
}

func TestForwardReportsUnavailableOrigin(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	forwarder := upstream.New(
		testutils.UnusedAddress(t),
		upstream.Options{Timeout: 5 * time.Second, Attempts: 3, RetryDelay: time.Millisecond},
		rec,
	)

	_, err := forwarder.Forward(context.Background(), newRequest("hello"), testutils.TestLogger(t))
	require.ErrorIs(t, err, upstream.ErrUpstreamUnavailable)
	require.ErrorIs(t, err, wire.ErrConnection)

	outcomes, _ := rec.snapshot()
	assert.Equal(
		t,
		[]string{metrics.OutcomeUnavailable, metrics.OutcomeUnavailable, metrics.OutcomeUnavailable},
		outcomes,
	)
}

func TestForwardRetriesDroppedConnections(t *testing.T) {
	t.Parallel()

	calls := atomic.Int64{}
	origin := testutils.NewOrigin(t, func(conn net.Conn) {
		req, err := wire.ReadRequest(conn)
		if err != nil {
			return
		}
		// Drop the first connection without answering
		if calls.Add(1) == 1 {
			return
		}
		_ = wire.WriteResponse(conn, testutils.NewResponse(time.Now(), string(req.Body)))
	})

	forwarder := upstream.New(
		origin.Addr,
		upstream.Options{Timeout: 5 * time.Second, Attempts: 2, RetryDelay: time.Millisecond},
		nil,
	)

	resp, err := forwarder.Forward(context.Background(), newRequest("hello"), testutils.TestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), resp.Body)
	assert.Equal(t, int64(2), origin.Connections())
}

func TestForwardDoesNotRetryWithSingleAttempt(t *testing.T) {
	t.Parallel()

	origin := testutils.NewOrigin(t, func(conn net.Conn) {
		_, _ = wire.ReadRequest(conn)
	})

	forwarder := upstream.New(origin.Addr, upstream.Options{Timeout: 5 * time.Second}, nil)

	_, err := forwarder.Forward(context.Background(), newRequest("hello"), testutils.TestLogger(t))
	require.ErrorIs(t, err, upstream.ErrUpstreamUnavailable)
	require.ErrorIs(t, err, wire.ErrIncompleteResponse)
	assert.Equal(t, int64(1), origin.Connections())
}

func TestForwardDoesNotRetryInvalidResponses(t *testing.T) {
	t.Parallel()

	origin := testutils.NewOrigin(t, func(conn net.Conn) {
		if _, err := wire.ReadRequest(conn); err != nil {
			return
		}
		_, _ = conn.Write([]byte("garbage\r\n\r\n"))
	})

	rec := &recorder{}
	forwarder := upstream.New(
		origin.Addr,
		upstream.Options{Timeout: 5 * time.Second, Attempts: 3, RetryDelay: time.Millisecond},
		rec,
	)

	_, err := forwarder.Forward(context.Background(), newRequest("hello"), testutils.TestLogger(t))
	require.ErrorIs(t, err, wire.ErrMalformedResponse)
	require.NotErrorIs(t, err, upstream.ErrUpstreamUnavailable)
	assert.Equal(t, int64(1), origin.Connections())

	outcomes, _ := rec.snapshot()
	assert.Equal(t, []string{metrics.OutcomeInvalid}, outcomes)
}

func TestForwardTimesOut(t *testing.T) {
	t.Parallel()

	origin := testutils.NewOrigin(t, func(conn net.Conn) {
		// Never answer, wait for the client to go away
		_, _ = io.Copy(io.Discard, conn)
	})

	forwarder := upstream.New(
		origin.Addr,
		upstream.Options{Timeout: 50 * time.Millisecond, Attempts: 3},
		nil,
	)

	_, err := forwarder.Forward(context.Background(), newRequest("hello"), testutils.TestLogger(t))
	require.ErrorIs(t, err, upstream.ErrUpstreamTimeout)
	assert.Equal(t, int64(1), origin.Connections())
}

func TestForwardStopsWhenContextIsCancelled(t *testing.T) {
	t.Parallel()

	origin := testutils.NewOrigin(t, func(conn net.Conn) {
		_, _ = io.Copy(io.Discard, conn)
	})

	forwarder := upstream.New(origin.Addr, upstream.Options{Attempts: 3}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := forwarder.Forward(ctx, newRequest("hello"), testutils.TestLogger(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), origin.Connections())
}
