package vndb

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultAddr is the public VNDB API endpoint (TLS).
	DefaultAddr = "api.vndb.org:19535"

	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second

	backoffStep = time.Second
	backoffMax  = 5 * time.Second
)

var (
	// ErrNotConnected is returned for requests made while no session is
	// established. The caller may retry once the client reconnects.
	ErrNotConnected = errors.New("vndb: not connected")

	// ErrConnAborted completes every pending waiter when the session is
	// lost. In-flight requests are never replayed.
	ErrConnAborted = errors.New("vndb: connection aborted")
)

// DialFunc opens the transport connection. Injectable for tests.
type DialFunc func(ctx context.Context) (net.Conn, error)

// TLSDialer dials addr over TLS with the default system roots.
func TLSDialer(addr string) DialFunc {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return func(ctx context.Context) (net.Conn, error) {
		d := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: dialTimeout},
			Config:    &tls.Config{ServerName: host},
		}
		return d.DialContext(ctx, "tcp", addr)
	}
}

type waiterResult struct {
	resp Response
	err  error
}

// waiter is a one-shot completion handle. Buffered so the actor never
// blocks on a caller that went away.
type waiter chan waiterResult

type clientRequest struct {
	req    Request
	waiter waiter
}

// Client owns exactly one connection to the remote service and
// multiplexes request/response exchanges over it. The protocol carries
// no request IDs; correlation is positional, so the client keeps a FIFO
// queue of waiters matched against response frames in arrival order.
//
// The client self-heals: on any connection failure it fails all pending
// waiters with ErrConnAborted and reconnects with additive backoff
// (+1s per failure, capped at 5s, reset once a session is established).
type Client struct {
	dial DialFunc
	log  zerolog.Logger

	requests chan clientRequest
	stop     chan struct{}
	done     chan struct{}
}

// NewClient creates a client for addr. The actor does not run until
// Start is called.
func NewClient(addr string) *Client {
	return NewClientDialer(TLSDialer(addr))
}

// NewClientDialer creates a client using a custom dialer.
func NewClientDialer(dial DialFunc) *Client {
	return &Client{
		dial:     dial,
		log:      log.With().Str("component", "vndb").Logger(),
		requests: make(chan clientRequest),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the actor goroutine.
func (c *Client) Start() {
	go c.run()
}

// Stop terminates the actor. Pending waiters complete with
// ErrConnAborted. Returns once the actor has exited.
func (c *Client) Stop() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.stop)
	<-c.done
}

// Do sends the request and waits for its response. Callers abandoning
// the wait (context cancellation) do not cancel the wire exchange; the
// actor still consumes the matching response to keep correlation intact.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	w := make(waiter, 1)
	select {
	case c.requests <- clientRequest{req: req, waiter: w}:
	case <-c.done:
		return Response{}, ErrNotConnected
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case res := <-w:
		return res.resp, res.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// run is the actor loop: Disconnected -> Connecting -> LoggingIn ->
// Ready, back to Disconnected on any failure. Requests arriving outside
// Ready complete immediately with ErrNotConnected.
func (c *Client) run() {
	defer close(c.done)

	var backoff time.Duration
	for {
		if !c.sleepRejecting(backoff) {
			return
		}

		conn, err := c.connect()
		if err != nil {
			if errors.Is(err, errStopped) {
				return
			}
			c.log.Warn().Err(err).Dur("backoff", backoff).Msg("connect failed")
			backoff = growBackoff(backoff)
			continue
		}

		err = c.session(conn, &backoff)
		conn.Close()
		if errors.Is(err, errStopped) {
			return
		}
		c.log.Warn().Err(err).Msg("session lost, restarting")
		backoff = growBackoff(backoff)
	}
}

func growBackoff(d time.Duration) time.Duration {
	if d < backoffMax {
		d += backoffStep
	}
	return d
}

var errStopped = errors.New("vndb: client stopped")

// sleepRejecting waits out the backoff delay, completing any incoming
// requests with ErrNotConnected. Returns false when the client stops.
func (c *Client) sleepRejecting(d time.Duration) bool {
	if d == 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return true
		case req := <-c.requests:
			req.waiter <- waiterResult{err: ErrNotConnected}
		case <-c.stop:
			return false
		}
	}
}

// connect dials in the background, still answering (rejecting) requests
// so that callers never block on a reconnecting client.
func (c *Client) connect() (net.Conn, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}
	dialed := make(chan dialResult, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		conn, err := c.dial(ctx)
		dialed <- dialResult{conn: conn, err: err}
	}()

	c.log.Info().Msg("connecting")
	for {
		select {
		case res := <-dialed:
			return res.conn, res.err
		case req := <-c.requests:
			req.waiter <- waiterResult{err: ErrNotConnected}
		case <-c.stop:
			cancel()
			if res := <-dialed; res.err == nil {
				res.conn.Close()
			}
			return nil, errStopped
		}
	}
}

type frameEvent struct {
	frame string
	err   error
}

// readFrames delivers delimiter-terminated frames until the connection
// fails. Closing the connection unblocks the reader.
func readFrames(conn net.Conn, frames chan<- frameEvent) {
	r := bufio.NewReader(conn)
	for {
		frame, err := r.ReadString(Delimiter)
		if err != nil {
			frames <- frameEvent{err: err}
			return
		}
		frames <- frameEvent{frame: frame[:len(frame)-1]}
	}
}

func (c *Client) writeFrame(conn net.Conn, req Request) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := conn.Write(append([]byte(req.String()), Delimiter))
	return err
}

// session logs in and then serves requests until the connection fails.
// On return every queued waiter has been completed.
func (c *Client) session(conn net.Conn, backoff *time.Duration) error {
	frames := make(chan frameEvent, 1)
	go readFrames(conn, frames)

	c.log.Info().Msg("connected, logging in")
	if err := c.writeFrame(conn, Login()); err != nil {
		return err
	}

	// Invariant: len(queue) equals the number of frames written and not
	// yet answered, in write order.
	var queue []waiter
	ready := false

	failAll := func(err error) {
		for _, w := range queue {
			w <- waiterResult{err: err}
		}
		queue = nil
	}

	for {
		select {
		case req := <-c.requests:
			if !ready {
				req.waiter <- waiterResult{err: ErrNotConnected}
				continue
			}
			if err := c.writeFrame(conn, req.req); err != nil {
				req.waiter <- waiterResult{err: err}
				failAll(ErrConnAborted)
				return err
			}
			queue = append(queue, req.waiter)

		case ev := <-frames:
			if ev.err != nil {
				failAll(ErrConnAborted)
				return ev.err
			}
			resp, err := ParseResponse(ev.frame)
			if err != nil {
				failAll(ErrConnAborted)
				return err
			}
			if len(queue) > 0 {
				queue[0] <- waiterResult{resp: resp}
				queue = queue[1:]
				continue
			}
			// Unsolicited frame: the ok completing login is the only
			// one the protocol allows.
			if !ready && resp.Kind == ResponseOk {
				ready = true
				*backoff = 0
				c.log.Info().Msg("login complete")
				continue
			}
			c.log.Warn().Stringer("kind", resp.Kind).Msg("unsolicited frame discarded")

		case <-c.stop:
			failAll(ErrConnAborted)
			return errStopped
		}
	}
}
