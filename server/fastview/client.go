package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second

	// The rate at which ele-updates are sent to the client, so as not to overburden it.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// The number of lost pings tolerated before concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// client publishes updates unidirectionally to a web client via websocket.
// Items on the updates chan must be idempotent: intervening updates are
// discarded when they arrive faster than pubResolution, so each update alone
// must describe the new client state.
type client[T any] struct {
	updates  <-chan T
	ws       *websock
	logger   zerolog.Logger
	lastPong atomic.Int64
}

// NewClient upgrades the request to a websocket and returns a publisher of the
// passed updates over it.
func NewClient[T any](
	updates <-chan T,
	w http.ResponseWriter,
	r *http.Request,
	logger zerolog.Logger,
) (*client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		return nil, err
	}

	cli := &client[T]{
		updates: updates,
		ws:      NewWebSocket(ws),
		logger:  logger.With().Str("remote", r.RemoteAddr).Logger(),
	}
	cli.lastPong.Store(time.Now().UnixNano())
	return cli, nil
}

// errClientClosed signals a normal close by the peer.
var errClientClosed = errors.New("client closed the websocket")

// Sync publishes incoming updates until the client disconnects, the updates chan
// closes, or ctx is cancelled. It returns nil on a normal disconnect.
func (cli *client[T]) Sync(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})
	group.Go(func() error {
		// Unblocks the reader, which only returns once the socket errors.
		<-groupCtx.Done()
		cli.ws.Close()
		return nil
	})

	err := group.Wait()
	if errors.Is(err, errClientClosed) {
		err = nil
	}
	cli.logger.Debug().Err(err).Msg("websocket client done")
	return err
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// pingPong runs the client liveness check. The pong handler is only invoked
// while readMessages is running.
func (cli *client[T]) pingPong(ctx context.Context) error {
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		cli.lastPong.Store(time.Now().UnixNano())
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(time.Unix(0, cli.lastPong.Load())) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		}
	}
}

func (cli *client[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				err = fmt.Errorf("ping failed: %w", err)
			}
			return
		})
}

// readMessages drains messages from the client. Errors returned by websocket Read
// methods are permanent, hence any error tears down the client.
func (cli *client[T]) readMessages(ctx context.Context) error {
	for {
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, _, readErr = ws.ReadMessage()
				return
			})
		switch {
		case ctx.Err() != nil:
			return nil
		case isClosure(err):
			return errClientClosed
		case err != nil:
			return err
		}
	}
}

func (cli *client[T]) publish(ctx context.Context) error {
	var lastSync time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case updates, ok := <-cli.updates:
			if !ok {
				return nil
			}
			// Drop updates when receiving too quickly.
			if time.Since(lastSync) < pubResolution {
				break
			}

			lastSync = time.Now()
			err := cli.ws.Write(
				ctx,
				func(ws *websocket.Conn) (writeErr error) {
					if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
						return fmt.Errorf("failed to set deadline: %w", writeErr)
					}
					if writeErr = ws.WriteJSON(updates); writeErr != nil {
						writeErr = fmt.Errorf("publish failed: %w", writeErr)
					}
					return
				})
			if err != nil {
				return err
			}
		}
	}
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const (
	readDeadline  = time.Second
	writeDeadline = time.Second
)

// websock serializes reads and writes to the websocket, which allows at most one
// concurrent reader and one concurrent writer.
type websock struct {
	// These are merely mutexes, but channel semantics allow a timeout.
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
	closed   atomic.Bool
}

func NewWebSocket(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Returns the underlying websocket.
// This should only be used non-concurrently for setup, e.g. adding handlers.
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close frame and closes the connection. Calls after the first are no-ops.
func (sock *websock) Close() {
	if sock.closed.Swap(true) {
		return
	}
	select {
	case sock.writeSem <- struct{}{}:
		_ = sock.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		<-sock.writeSem
	case <-time.After(writeDeadline):
	}
	sock.ws.Close()
}

// Read serializes read operations on the internal web socket.
func (sock *websock) Read(
	ctx context.Context,
	readFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	case <-time.After(readDeadline):
		return ErrSockCongestion
	}
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
