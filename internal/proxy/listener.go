package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

var ErrListenerClosed = errors.New("proxy listener closed")

// Listener accepts client connections and serves each one in its own
// goroutine.
type Listener struct {
	handler  *Handler
	listener net.Listener
	logger   *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	lock   sync.Mutex
	active map[net.Conn]struct{}
}

func Listen(address string, handler *Handler, logger *zerolog.Logger) (*Listener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("unable to listen on %s: %w", address, err)
	}

	return NewListener(listener, handler, logger), nil
}

func NewListener(listener net.Listener, handler *Handler, logger *zerolog.Logger) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		handler:  handler,
		listener: listener,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[net.Conn]struct{}),
	}
}

func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Serve accepts connections until Shutdown is called, in which case
// ErrListenerClosed is returned.
func (l *Listener) Serve() error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 5 * time.Millisecond
	retry.MaxInterval = time.Second

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ErrListenerClosed
			}

			// Most likely out of file descriptors, give it some time.
			delay := retry.NextBackOff()
			l.logger.Error().Err(err).Dur("retryIn", delay).Msg("unable to accept connection")

			select {
			case <-time.After(delay):
				continue
			case <-l.ctx.Done():
				return ErrListenerClosed
			}
		}
		retry.Reset()

		logger := l.logger.With().
			Str("conn", xid.New().String()).
			Str("remote", conn.RemoteAddr().String()).
			Logger()

		l.track(conn, true)
		l.conns.Add(1)
		go func() {
			defer l.conns.Done()
			defer l.track(conn, false)
			l.handler.ServeConn(l.ctx, conn, &logger)
		}()
	}
}

// Shutdown stops accepting connections and waits for the ones in flight. If
// ctx expires first, pending exchanges with the origin are cancelled.
func (l *Listener) Shutdown(ctx context.Context) error {
	err := l.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	done := make(chan struct{})
	go func() {
		l.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		l.cancel()
		l.closeActive()
		<-done
		err = errors.Join(err, ctx.Err())
	}

	l.cancel()
	return err
}

func (l *Listener) track(conn net.Conn, add bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if add {
		l.active[conn] = struct{}{}
	} else {
		delete(l.active, conn)
	}
}

func (l *Listener) closeActive() {
	l.lock.Lock()
	defer l.lock.Unlock()

	for conn := range l.active {
		_ = conn.Close()
	}
}
