// Package upstream forwards requests to the origin server, opening a new
// connection for every exchange.
package upstream

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/benjaminschubert/cacheproxy/internal/metrics"
	"github.com/benjaminschubert/cacheproxy/internal/teereader"
	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

var (
	ErrUpstreamStatus      = errors.New("origin replied with a non-success status")
	ErrUpstreamUnavailable = errors.New("unable to exchange with the origin")
	ErrUpstreamTimeout     = errors.New("origin did not reply in time")
)

type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUpstreamStatus, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamStatus
}

type Recorder interface {
	RecordUpstream(outcome string, duration time.Duration)
	AddBytesDownloaded(n int64)
}

type noopRecorder struct{}

func (noopRecorder) RecordUpstream(string, time.Duration) {}
func (noopRecorder) AddBytesDownloaded(int64)             {}

type Options struct {
	// Timeout bounds a single attempt, from dialing to the end of the
	// response. Zero disables it.
	Timeout    time.Duration
	Attempts   uint
	RetryDelay time.Duration
}

type Forwarder struct {
	origin   string
	options  Options
	dialer   net.Dialer
	recorder Recorder
}

func New(origin string, options Options, recorder Recorder) *Forwarder {
	if options.Attempts == 0 {
		options.Attempts = 1
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &Forwarder{origin: origin, options: options, recorder: recorder}
}

// Forward sends req to the origin and returns its response, which is only
// accepted with a 200 status.
//
// Failures to reach the origin, or connections dropped before a full
// response arrived, are retried up to the configured number of attempts.
// Any other failure is returned immediately.
func (f *Forwarder) Forward(
	ctx context.Context,
	req *wire.Request,
	logger *zerolog.Logger,
) (*wire.Response, error) {
	policy := backoff.NewExponentialBackOff()
	if f.options.RetryDelay > 0 {
		policy.InitialInterval = f.options.RetryDelay
	}

	attempt := 0
	resp, err := backoff.Retry(
		ctx,
		func() (*wire.Response, error) {
			attempt++
			return f.attempt(ctx, req, logger.With().Int("attempt", attempt).Logger())
		},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(f.options.Attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug().Err(err).Dur("retryIn", next).Msg("exchange with origin failed, retrying")
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Err
		}
		return nil, err
	}

	return resp, nil
}

func (f *Forwarder) attempt(
	ctx context.Context,
	req *wire.Request,
	logger zerolog.Logger,
) (*wire.Response, error) {
	start := time.Now()

	resp, err := f.exchange(ctx, req, &logger)
	if err == nil {
		f.recorder.RecordUpstream(metrics.OutcomeSuccess, time.Since(start))
		return resp, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, backoff.Permanent(ctxErr)
	}

	outcome, retryable, err := classify(err)
	f.recorder.RecordUpstream(outcome, time.Since(start))
	if !retryable {
		return nil, backoff.Permanent(err)
	}
	return nil, err
}

func (f *Forwarder) exchange(
	ctx context.Context,
	req *wire.Request,
	logger *zerolog.Logger,
) (*wire.Response, error) {
	if f.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.options.Timeout)
		defer cancel()
	}

	conn, err := f.dialer.DialContext(ctx, "tcp", f.origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", wire.ErrConnection, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: %w", wire.ErrConnection, err)
		}
	}
	// Unblock any pending read if the caller goes away.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	hasher := blake3.New()
	src := teereader.New(conn, hasher, func(stats teereader.Stats) {
		f.recorder.AddBytesDownloaded(stats.BytesRead)
		if stats.ReadErr != nil {
			logger.Debug().Err(stats.ReadErr).Msg("Reading from origin stopped on error")
		}
		if stats.WriteErr != nil {
			logger.Warn().Err(stats.WriteErr).Msg("Unable to hash the origin response")
		}
		logger.Debug().
			Int64("bytes", stats.BytesRead).
			Str("digest", hex.EncodeToString(hasher.Sum(nil))).
			Msg("Connection to origin closed")
	})
	defer func() {
		if err := src.Close(); err != nil {
			logger.Debug().Err(err).Msg("error closing connection to origin")
		}
	}()

	if err := wire.WriteRequest(conn, req); err != nil {
		return nil, err
	}

	resp, err := wire.ReadResponse(src, req.Method)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{resp.StatusCode}
	}
	return resp, nil
}

func classify(err error) (outcome string, retryable bool, wrapped error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return metrics.OutcomeTimeout, false, fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}

	switch {
	case errors.Is(err, ErrUpstreamStatus):
		return metrics.OutcomeStatus, false, err
	case errors.Is(err, wire.ErrConnection), errors.Is(err, wire.ErrIncompleteResponse):
		return metrics.OutcomeUnavailable, true, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	default:
		return metrics.OutcomeInvalid, false, err
	}
}
