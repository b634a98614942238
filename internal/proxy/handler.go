// Package proxy serves client connections, answering from the cache when
// possible and forwarding to the origin otherwise.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/benjaminschubert/cacheproxy/internal/cache"
	"github.com/benjaminschubert/cacheproxy/internal/metrics"
	"github.com/benjaminschubert/cacheproxy/internal/upstream"
	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

type Forwarder interface {
	Forward(ctx context.Context, req *wire.Request, logger *zerolog.Logger) (*wire.Response, error)
}

type Recorder interface {
	RecordRequest(result string)
	AddBytesServed(n int64)
}

type noopRecorder struct{}

func (noopRecorder) RecordRequest(string) {}
func (noopRecorder) AddBytesServed(int64) {}

type Options struct {
	// ReadTimeout bounds the time to receive a full request. Zero disables it.
	ReadTimeout time.Duration
	// WriteTimeout bounds the time to send the reply. Zero disables it.
	WriteTimeout time.Duration
}

type Handler struct {
	cache     *cache.Cache
	forwarder Forwarder
	recorder  Recorder
	options   Options
}

func NewHandler(c *cache.Cache, forwarder Forwarder, recorder Recorder, options Options) *Handler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Handler{c, forwarder, recorder, options}
}

// requestError is a failure serving a request, with the status to reply to
// the client. A zero status means no reply is attempted.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string {
	return e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

// ServeConn answers a single request read from conn, then closes it.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn, logger *zerolog.Logger) {
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Debug().Err(err).Msg("error closing client connection")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			h.recorder.RecordRequest(metrics.ResultError)
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("panic while serving connection")
		}
	}()

	start := time.Now()
	result, key, err := h.serve(ctx, conn, logger)
	h.recorder.RecordRequest(result)

	if err != nil {
		h.reportError(conn, err, logger)
		return
	}

	logger.Info().
		Str("result", result).
		Str("key", key).
		Dur("duration", time.Since(start)).
		Msg("Processed request")
}

func (h *Handler) serve(
	ctx context.Context,
	conn net.Conn,
	logger *zerolog.Logger,
) (result, key string, err error) {
	if h.options.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.options.ReadTimeout)); err != nil {
			return metrics.ResultError, "", &requestError{0, fmt.Errorf("%w: %w", wire.ErrConnection, err)}
		}
	}

	req, err := wire.ReadRequest(conn)
	if err != nil {
		return metrics.ResultError, "", &requestError{requestErrorStatus(err), err}
	}

	key = string(req.Body)
	entry, result, err := h.getEntry(ctx, key, req, logger)
	if err != nil {
		return metrics.ResultError, key, err
	}

	// The entry lock is never held while writing to the client.
	resp, err := entry.Response()
	if err != nil {
		return metrics.ResultError, key, &requestError{http.StatusInternalServerError, err}
	}

	if h.options.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(h.options.WriteTimeout)); err != nil {
			return metrics.ResultError, key, &requestError{0, fmt.Errorf("%w: %w", wire.ErrConnection, err)}
		}
	}

	out := &countingWriter{w: conn}
	err = wire.WriteResponse(out, resp)
	h.recorder.AddBytesServed(out.written)
	if err != nil {
		return metrics.ResultError, key, &requestError{0, err}
	}

	return result, key, nil
}

// getEntry returns the cached entry for key, fetching it from the origin on
// a miss.
func (h *Handler) getEntry(
	ctx context.Context,
	key string,
	req *wire.Request,
	logger *zerolog.Logger,
) (*cache.Entry, string, error) {
	entry, found, err := h.cache.Lookup(key)
	if err != nil {
		return nil, "", &requestError{http.StatusInternalServerError, err}
	}
	if found {
		return entry, metrics.ResultHit, nil
	}

	resp, err := h.forwarder.Forward(ctx, req, logger)
	if err != nil {
		return nil, "", &requestError{upstreamErrorStatus(err), err}
	}

	entry, inserted, err := h.cache.InsertIfAbsent(key, resp)
	if err != nil {
		return nil, "", &requestError{http.StatusInternalServerError, err}
	}
	if !inserted {
		logger.Debug().Msg("response cached concurrently by another connection, discarding ours")
	}

	return entry, metrics.ResultMiss, nil
}

func (h *Handler) reportError(conn net.Conn, err error, logger *zerolog.Logger) {
	event := logger.Warn()
	if errors.Is(err, cache.ErrLockUnusable) {
		event = logger.Error()
	}

	var reqErr *requestError
	status := 0
	if errors.As(err, &reqErr) {
		status = reqErr.status
	}

	event.Err(err).Int("status", status).Msg("Unable to serve request")
	if status == 0 {
		return
	}

	if h.options.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.options.WriteTimeout))
	}
	if err := wire.WriteResponse(conn, errorResponse(status)); err != nil {
		logger.Debug().Err(err).Msg("unable to send error response to client")
	}
}

func requestErrorStatus(err error) int {
	switch {
	case errors.Is(err, wire.ErrIncompleteRequest), errors.Is(err, wire.ErrConnection):
		// The client is gone or not talking, nobody to answer to.
		return 0
	case errors.Is(err, wire.ErrUnsupportedMethod):
		return http.StatusMethodNotAllowed
	case errors.Is(err, wire.ErrHeaderBufferOverflow):
		return http.StatusRequestHeaderFieldsTooLarge
	default:
		return http.StatusBadRequest
	}
}

func upstreamErrorStatus(err error) int {
	switch {
	case errors.Is(err, upstream.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func errorResponse(status int) *wire.Response {
	body := http.StatusText(status)
	return &wire.Response{
		Version:    wire.Version11,
		StatusCode: status,
		Reason:     body,
		Headers: wire.Headers{
			{Name: "Content-Type", Value: "text/plain"},
			{Name: "Content-Length", Value: strconv.Itoa(len(body))},
			{Name: "Connection", Value: "close"},
		},
		Body: []byte(body),
	}
}

type countingWriter struct {
	w       io.Writer
	written int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written += int64(n)
	return n, err
}
