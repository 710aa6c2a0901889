package electrum

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/elementsproject/electrumpay/log"
	"github.com/elementsproject/electrumpay/metrics"
	"github.com/pkg/errors"
)

// DefaultRequestTimeout bounds how long a request waits for its correlated
// response.
const DefaultRequestTimeout = 30 * time.Second

// MaxMessageSize is the longest inbound line the client buffers. A server
// exceeding it is disconnected.
const MaxMessageSize = 16 << 20

// Client is an electrum protocol client that multiplexes concurrent requests
// over a single persistent socket. Responses are correlated to requests by id
// and may arrive in any order.
//
// The socket is opened lazily on the first request and reopened on the next
// request after it broke. Requests that were in flight when the socket broke
// are not re-sent; they fail once the request timeout passes.
type Client struct {
	transport *transport
	params    *chaincfg.Params
	timeout   time.Duration
	metrics   *metrics.Electrum

	maxMessageSize int

	mu        sync.Mutex
	conn      net.Conn
	connected bool

	// writeSem serializes writes. It is a channel so that waiting writers
	// give up at their deadline.
	writeSem chan struct{}

	pendingMu sync.Mutex
	pending   map[uint64]chan *response

	requestCounter uint64
}

// NewClient creates a disconnected client for endpoint (tcp://host:port or
// ssl://host:port). params select the network used to decode addresses.
func NewClient(endpoint string, params *chaincfg.Params) (*Client, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &Client{
		transport:      newTransport(ep),
		params:         params,
		timeout:        DefaultRequestTimeout,
		maxMessageSize: MaxMessageSize,
		writeSem:       make(chan struct{}, 1),
		pending:        make(map[uint64]chan *response),
	}, nil
}

// WithTimeout sets the per request timeout. It bounds both the write of the
// request and the wait for its response. Zero disables it, in which case a
// request ends only with its response or its context.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// WithTLSConfig sets the tls config for ssl endpoints. A dialer set with
// WithDialer is kept.
func (c *Client) WithTLSConfig(cfg *tls.Config) *Client {
	c.transport.setTLSConfig(cfg)
	return c
}

// WithDialer replaces the dialer of the raw stream. For ssl endpoints the tls
// handshake still runs on top of it.
func (c *Client) WithDialer(d Dialer) *Client {
	c.transport.dialer = d
	return c
}

func (c *Client) WithMetrics(m *metrics.Electrum) *Client {
	c.metrics = m
	return c
}

func (c *Client) Endpoint() Endpoint {
	return c.transport.endpoint
}

func (c *Client) Params() *chaincfg.Params {
	return c.params
}

// Connect opens the socket if it is not open yet.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	conn, err := c.transport.dial(ctx)
	if err != nil {
		c.connected = false
		c.metrics.ObserveConnect("error")
		return err
	}
	c.conn = conn
	c.connected = true
	c.metrics.ObserveConnect("ok")
	log.Debugf("connected to electrum server %s", c.transport.endpoint)
	go c.readQueue(conn)
	return nil
}

// Disconnect closes the socket. Pending requests are left to time out.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// PendingCount returns the number of requests waiting for a response.
func (c *Client) PendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

func (c *Client) readQueue(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(64*1024, c.maxMessageSize)), c.maxMessageSize)
	scanner.Split(splitLines)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		resp, err := decodeResponse(line)
		if err != nil {
			log.Infof("dropping malformed electrum message: %v", err)
			c.metrics.IncDropped()
			continue
		}
		c.handleResponse(resp)
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.markDisconnected(conn, err)
}

// splitLines splits on '\n'. Unlike bufio.ScanLines it drops a trailing
// line without newline, which is not a complete message.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	return 0, nil, nil
}

// markDisconnected is called by the reader when the socket broke. It only
// flips the state if conn is still the current connection.
func (c *Client) markDisconnected(conn net.Conn, cause error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		c.connected = false
	}
	c.mu.Unlock()
	conn.Close()
	if current {
		log.Infof("electrum connection to %s closed: %v, %d requests pending",
			c.transport.endpoint, cause, c.PendingCount())
	}
}

// handleResponse completes the pending request with the matching id.
// Messages without a known id, e.g. subscription notifications, are ignored.
func (c *Client) handleResponse(resp *response) {
	id, ok := resp.id()
	if !ok {
		log.Debugf("ignoring electrum message without request id (method=%q)", resp.Method)
		return
	}
	c.pendingMu.Lock()
	replyChan, exists := c.pending[id]
	if exists {
		delete(c.pending, id)
	}
	n := len(c.pending)
	c.pendingMu.Unlock()
	if !exists {
		log.Debugf("no pending request found for response with id %d", id)
		return
	}
	c.metrics.SetPending(n)
	replyChan <- resp
}

func (c *Client) nextID() uint64 {
	return atomic.AddUint64(&c.requestCounter, 1)
}

func (c *Client) addPending(id uint64, replyChan chan *response) {
	c.pendingMu.Lock()
	c.pending[id] = replyChan
	n := len(c.pending)
	c.pendingMu.Unlock()
	c.metrics.SetPending(n)
}

func (c *Client) removePending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	n := len(c.pending)
	c.pendingMu.Unlock()
	c.metrics.SetPending(n)
}

// write sends one encoded request. It gives up at deadline, both while
// waiting for another writer and while the peer is not reading. A failed or
// timed out write leaves the stream in an unknown state, so the connection
// is marked broken.
func (c *Client) write(ctx context.Context, method string, data []byte, deadline time.Time) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.Wrapf(ErrConnection, "write %s: not connected", method)
	}

	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case c.writeSem <- struct{}{}:
	case <-expired:
		return errors.Wrapf(ErrTimeout, "write %s: waiting for another write", method)
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "write %s", method)
	}
	defer func() { <-c.writeSem }()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		c.markDisconnected(conn, err)
		return errors.Wrapf(ErrConnection, "write %s: %v", method, err)
	}
	_, err := conn.Write(data)
	if err != nil {
		c.markDisconnected(conn, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "write %s: %v", method, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return errors.Wrapf(ErrTimeout, "write %s: %v", method, err)
		}
		return errors.Wrapf(ErrConnection, "write %s: %v", method, err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return nil
}

// writeDeadline is the earlier of the request timeout and the ctx deadline.
// It bounds connecting and writing.
func (c *Client) writeDeadline(ctx context.Context, start time.Time) time.Time {
	var deadline time.Time
	if c.timeout > 0 {
		deadline = start.Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// request issues method with params and decodes the result into out. It
// connects first if needed. It returns once the correlated response arrived,
// the request timeout passed or ctx is done; the latter two evict the pending
// entry. The timeout counts from the start of the call.
func (c *Client) request(ctx context.Context, method string, out interface{}, params ...interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveRequest(method, outcome(err), time.Since(start))
	}()

	deadline := c.writeDeadline(ctx, start)
	if !c.IsConnected() {
		connectCtx := ctx
		if !deadline.IsZero() {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithDeadline(ctx, deadline)
			defer cancel()
		}
		if err := c.Connect(connectCtx); err != nil {
			return errors.Wrapf(err, "connect for %s", method)
		}
	}

	id := c.nextID()
	data, err := encodeRequest(&request{ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}

	replyChan := make(chan *response, 1)
	c.addPending(id, replyChan)
	if err := c.write(ctx, method, data, deadline); err != nil {
		c.removePending(id)
		return err
	}

	var timeout <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(time.Until(start.Add(c.timeout)))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp := <-replyChan:
		return handleReply(method, resp, out)
	case <-timeout:
		c.removePending(id)
		return errors.Wrapf(ErrTimeout, "%s (id %d) after %s", method, id, c.timeout)
	case <-ctx.Done():
		c.removePending(id)
		return errors.Wrapf(ctx.Err(), "%s (id %d)", method, id)
	}
}

func handleReply(method string, resp *response, out interface{}) error {
	if resp.Error != nil {
		return errors.Wrap(resp.Error, method)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return errors.Wrapf(ErrProtocol, "decode %s result: %v", method, err)
	}
	return nil
}

func outcome(err error) string {
	var rpcErr *RPCError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnection):
		return "connection_error"
	case errors.Is(err, ErrProtocol):
		return "decode_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
